package cpu

// Register index encoding used by the instruction set: B C D E H L (HL) A.
func (c *CPU) reg8(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg8(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

// 16-bit register pair index: BC DE HL SP.
func (c *CPU) getRR(idx byte) uint16 {
	switch idx {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		return c.SP
	}
}

func (c *CPU) setRR(idx byte, v uint16) {
	switch idx {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.SP = v
	}
}

// PUSH/POP use AF in place of SP.
func (c *CPU) getRRStack(idx byte) uint16 {
	if idx == 3 {
		return c.getAF()
	}
	return c.getRR(idx)
}

func (c *CPU) setRRStack(idx byte, v uint16) {
	if idx == 3 {
		c.setAF(v)
		return
	}
	c.setRR(idx, v)
}

// Condition index: NZ Z NC C.
func (c *CPU) cond(idx byte) bool {
	switch idx {
	case 0:
		return c.F&flagZ == 0
	case 1:
		return c.F&flagZ != 0
	case 2:
		return c.F&flagC == 0
	default:
		return c.F&flagC != 0
	}
}

// alu applies the 8-bit accumulator operation selected by bits 5-3 of the
// 0x80-0xBF opcode block: ADD ADC SUB SBC AND XOR OR CP.
func (c *CPU) alu(opIdx, v byte) {
	switch opIdx {
	case 0: // ADD
		sum := uint16(c.A) + uint16(v)
		c.setZNHC(byte(sum) == 0, false, c.A&0x0F+v&0x0F > 0x0F, sum > 0xFF)
		c.A = byte(sum)
	case 1: // ADC
		var ci uint16
		if c.carrySet() {
			ci = 1
		}
		sum := uint16(c.A) + uint16(v) + ci
		c.setZNHC(byte(sum) == 0, false, uint16(c.A&0x0F)+uint16(v&0x0F)+ci > 0x0F, sum > 0xFF)
		c.A = byte(sum)
	case 2: // SUB
		r := c.A - v
		c.setZNHC(r == 0, true, c.A&0x0F < v&0x0F, c.A < v)
		c.A = r
	case 3: // SBC
		var ci byte
		if c.carrySet() {
			ci = 1
		}
		r := c.A - v - ci
		c.setZNHC(r == 0, true, int(c.A&0x0F)-int(v&0x0F)-int(ci) < 0, int(c.A)-int(v)-int(ci) < 0)
		c.A = r
	case 4: // AND
		c.A &= v
		c.setZNHC(c.A == 0, false, true, false)
	case 5: // XOR
		c.A ^= v
		c.setZNHC(c.A == 0, false, false, false)
	case 6: // OR
		c.A |= v
		c.setZNHC(c.A == 0, false, false, false)
	default: // CP
		c.setZNHC(c.A == v, true, c.A&0x0F < v&0x0F, c.A < v)
	}
}

// spOffset computes SP+r8 for ADD SP,r8 and LD HL,SP+r8. Both set H and C
// from the unsigned low-byte addition regardless of the offset's sign.
func (c *CPU) spOffset() uint16 {
	off := int8(c.fetch8())
	lo := byte(c.SP)
	c.setZNHC(false, false, lo&0x0F+byte(off)&0x0F > 0x0F, uint16(lo)+uint16(byte(off)) > 0xFF)
	return uint16(int32(c.SP) + int32(off))
}

func (c *CPU) jr(taken bool) int {
	off := int8(c.fetch8())
	if !taken {
		return 8
	}
	c.PC = uint16(int32(c.PC) + int32(off))
	return 12
}

func (c *CPU) execute(op byte) int {
	// 0x40-0xBF is fully regular: LD r,r' then the accumulator ALU block.
	if op >= 0x40 && op <= 0xBF {
		if op == 0x76 { // HALT
			if !c.IME && c.pending() != 0 {
				c.haltBug = true
			} else {
				c.halted = true
			}
			return 4
		}
		usesHL := op&7 == 6
		if op < 0x80 {
			dst := (op >> 3) & 7
			c.setReg8(dst, c.reg8(op&7))
			if usesHL || dst == 6 {
				return 8
			}
			return 4
		}
		c.alu((op>>3)&7, c.reg8(op&7))
		if usesHL {
			return 8
		}
		return 4
	}

	switch op & 0xC7 {
	case 0x04: // INC r
		idx := (op >> 3) & 7
		v := c.reg8(idx) + 1
		c.setReg8(idx, v)
		c.setZNHC(v == 0, false, v&0x0F == 0, c.carrySet())
		if idx == 6 {
			return 12
		}
		return 4
	case 0x05: // DEC r
		idx := (op >> 3) & 7
		v := c.reg8(idx) - 1
		c.setReg8(idx, v)
		c.setZNHC(v == 0, true, v&0x0F == 0x0F, c.carrySet())
		if idx == 6 {
			return 12
		}
		return 4
	case 0x06: // LD r,d8
		idx := (op >> 3) & 7
		c.setReg8(idx, c.fetch8())
		if idx == 6 {
			return 12
		}
		return 8
	case 0xC6: // ALU A,d8
		c.alu((op>>3)&7, c.fetch8())
		return 8
	case 0xC7: // RST t
		c.push16(c.PC)
		c.PC = uint16(op & 0x38)
		return 16
	}

	switch op & 0xCF {
	case 0x01: // LD rr,d16
		c.setRR((op>>4)&3, c.fetch16())
		return 12
	case 0x03: // INC rr
		i := (op >> 4) & 3
		c.setRR(i, c.getRR(i)+1)
		return 8
	case 0x0B: // DEC rr
		i := (op >> 4) & 3
		c.setRR(i, c.getRR(i)-1)
		return 8
	case 0x09: // ADD HL,rr (Z preserved)
		hl := c.getHL()
		rr := c.getRR((op >> 4) & 3)
		sum := uint32(hl) + uint32(rr)
		c.setZNHC(c.F&flagZ != 0, false, hl&0x0FFF+rr&0x0FFF > 0x0FFF, sum > 0xFFFF)
		c.setHL(uint16(sum))
		return 8
	case 0xC5: // PUSH rr
		c.push16(c.getRRStack((op >> 4) & 3))
		return 16
	case 0xC1: // POP rr
		c.setRRStack((op>>4)&3, c.pop16())
		return 12
	}

	switch op {
	case 0x00: // NOP
		return 4
	case 0x10: // STOP consumes its padding byte
		c.fetch8()
		return 4

	case 0x02:
		c.write8(c.getBC(), c.A)
		return 8
	case 0x12:
		c.write8(c.getDE(), c.A)
		return 8
	case 0x0A:
		c.A = c.read8(c.getBC())
		return 8
	case 0x1A:
		c.A = c.read8(c.getDE())
		return 8

	case 0x22: // LD (HL+),A
		c.write8(c.getHL(), c.A)
		c.setHL(c.getHL() + 1)
		return 8
	case 0x2A: // LD A,(HL+)
		c.A = c.read8(c.getHL())
		c.setHL(c.getHL() + 1)
		return 8
	case 0x32: // LD (HL-),A
		c.write8(c.getHL(), c.A)
		c.setHL(c.getHL() - 1)
		return 8
	case 0x3A: // LD A,(HL-)
		c.A = c.read8(c.getHL())
		c.setHL(c.getHL() - 1)
		return 8

	case 0x08: // LD (a16),SP
		c.write16(c.fetch16(), c.SP)
		return 20

	case 0x07: // RLCA
		carry := c.A&0x80 != 0
		c.A = c.A<<1 | c.A>>7
		c.setZNHC(false, false, false, carry)
		return 4
	case 0x0F: // RRCA
		carry := c.A&1 != 0
		c.A = c.A>>1 | c.A<<7
		c.setZNHC(false, false, false, carry)
		return 4
	case 0x17: // RLA
		var ci byte
		if c.carrySet() {
			ci = 1
		}
		carry := c.A&0x80 != 0
		c.A = c.A<<1 | ci
		c.setZNHC(false, false, false, carry)
		return 4
	case 0x1F: // RRA
		var ci byte
		if c.carrySet() {
			ci = 0x80
		}
		carry := c.A&1 != 0
		c.A = c.A>>1 | ci
		c.setZNHC(false, false, false, carry)
		return 4

	case 0x27: // DAA
		a := c.A
		carry := c.carrySet()
		if c.F&flagN == 0 {
			if carry || a > 0x99 {
				a += 0x60
				carry = true
			}
			if c.F&flagH != 0 || a&0x0F > 0x09 {
				a += 0x06
			}
		} else {
			if carry {
				a -= 0x60
			}
			if c.F&flagH != 0 {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(a == 0, c.F&flagN != 0, false, carry)
		return 4
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = c.F&(flagZ|flagC) | flagN | flagH
		return 4
	case 0x37: // SCF
		c.F = c.F&flagZ | flagC
		return 4
	case 0x3F: // CCF
		c.F = (c.F & (flagZ | flagC)) ^ flagC
		return 4

	case 0x18: // JR r8
		return c.jr(true)
	case 0x20, 0x28, 0x30, 0x38: // JR cc,r8
		return c.jr(c.cond((op >> 3) & 3))

	case 0xC3: // JP a16
		c.PC = c.fetch16()
		return 16
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,a16
		addr := c.fetch16()
		if c.cond((op >> 3) & 3) {
			c.PC = addr
			return 16
		}
		return 12
	case 0xE9: // JP HL
		c.PC = c.getHL()
		return 4

	case 0xCD: // CALL a16
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
		return 24
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,a16
		addr := c.fetch16()
		if c.cond((op >> 3) & 3) {
			c.push16(c.PC)
			c.PC = addr
			return 24
		}
		return 12

	case 0xC9: // RET
		c.PC = c.pop16()
		return 16
	case 0xD9: // RETI
		c.PC = c.pop16()
		c.IME = true
		return 16
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if c.cond((op >> 3) & 3) {
			c.PC = c.pop16()
			return 20
		}
		return 8

	case 0xE0: // LDH (a8),A
		c.write8(0xFF00+uint16(c.fetch8()), c.A)
		return 12
	case 0xF0: // LDH A,(a8)
		c.A = c.read8(0xFF00 + uint16(c.fetch8()))
		return 12
	case 0xE2: // LD (FF00+C),A
		c.write8(0xFF00+uint16(c.C), c.A)
		return 8
	case 0xF2: // LD A,(FF00+C)
		c.A = c.read8(0xFF00 + uint16(c.C))
		return 8
	case 0xEA: // LD (a16),A
		c.write8(c.fetch16(), c.A)
		return 16
	case 0xFA: // LD A,(a16)
		c.A = c.read8(c.fetch16())
		return 16

	case 0xE8: // ADD SP,r8
		c.SP = c.spOffset()
		return 16
	case 0xF8: // LD HL,SP+r8
		c.setHL(c.spOffset())
		return 12
	case 0xF9: // LD SP,HL
		c.SP = c.getHL()
		return 8

	case 0xF3: // DI
		c.IME = false
		c.eiPending = false
		return 4
	case 0xFB: // EI
		c.eiPending = true
		return 4

	case 0xCB:
		return c.executeCB()
	}

	// 0xD3 0xDB 0xDD 0xE3 0xE4 0xEB 0xEC 0xED 0xF4 0xFC 0xFD
	return Fault
}

func (c *CPU) executeCB() int {
	op := c.fetch8()
	idx := op & 7
	y := (op >> 3) & 7
	v := c.reg8(idx)

	switch op >> 6 {
	case 0: // rotates, shifts, SWAP
		var carry bool
		switch y {
		case 0: // RLC
			carry = v&0x80 != 0
			v = v<<1 | v>>7
		case 1: // RRC
			carry = v&1 != 0
			v = v>>1 | v<<7
		case 2: // RL
			var ci byte
			if c.carrySet() {
				ci = 1
			}
			carry = v&0x80 != 0
			v = v<<1 | ci
		case 3: // RR
			var ci byte
			if c.carrySet() {
				ci = 0x80
			}
			carry = v&1 != 0
			v = v>>1 | ci
		case 4: // SLA
			carry = v&0x80 != 0
			v <<= 1
		case 5: // SRA
			carry = v&1 != 0
			v = v>>1 | v&0x80
		case 6: // SWAP
			v = v<<4 | v>>4
		case 7: // SRL
			carry = v&1 != 0
			v >>= 1
		}
		c.setReg8(idx, v)
		c.setZNHC(v == 0, false, false, carry)
	case 1: // BIT y,r leaves the operand alone and only reads (HL)
		c.F = c.F&flagC | flagH
		if v&(1<<y) == 0 {
			c.F |= flagZ
		}
		if idx == 6 {
			return 12
		}
		return 8
	case 2: // RES y,r
		c.setReg8(idx, v&^(1<<y))
	default: // SET y,r
		c.setReg8(idx, v|1<<y)
	}

	if idx == 6 {
		return 16
	}
	return 8
}
