package cpu

import (
	"encoding/binary"
	"io"
)

// Memory is the CPU's view of the address space. The bus implements it; tests
// can substitute a flat 64KB array.
type Memory interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// Fault is returned by Step when the CPU fetches one of the opcodes that
// permanently lock up the SM83 (0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC,
// 0xED, 0xF4, 0xFC, 0xFD). Once faulted, every further Step returns Fault
// and machine state stops changing.
const Fault = -1

// CPU is an SM83 core. It owns the architectural registers and the
// IME/halt machinery; timing fan-out to the rest of the machine is the
// caller's job, driven by the cycle count Step returns.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME    bool
	halted bool
	// EI takes effect after the instruction that follows it.
	eiPending bool
	// HALT with IME clear and an interrupt already pending makes the next
	// opcode byte get fetched twice.
	haltBug bool
	faulted bool

	mem Memory
}

func New(mem Memory) *CPU {
	return &CPU{mem: mem, SP: 0xFFFE}
}

// Reset puts the registers in the DMG post-boot-ROM state so execution can
// start at the cartridge entry point without a boot ROM.
func (c *CPU) Reset() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
	c.eiPending = false
	c.haltBug = false
	c.faulted = false
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Halted reports whether the core is sleeping in HALT.
func (c *CPU) Halted() bool { return c.halted }

// Faulted reports whether an illegal opcode has locked the core up.
func (c *CPU) Faulted() bool { return c.faulted }

const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) carrySet() bool { return c.F&flagC != 0 }

func (c *CPU) read8(addr uint16) byte     { return c.mem.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.mem.Write(addr, v) }

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | hi<<8
}

func (c *CPU) read16(addr uint16) uint16 {
	return uint16(c.read8(addr)) | uint16(c.read8(addr+1))<<8
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

func (c *CPU) pending() byte {
	return c.read8(0xFFFF) & c.read8(0xFF0F) & 0x1F
}

// service dispatches the highest-priority pending interrupt: clear its IF
// bit, drop IME, push PC, jump to the vector. Takes 20 cycles.
func (c *CPU) service() int {
	pending := c.pending()
	var bit uint
	for ; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			break
		}
	}
	c.write8(0xFF0F, c.read8(0xFF0F)&^(1<<bit))
	c.IME = false
	c.push16(c.PC)
	c.PC = 0x0040 + uint16(bit)*8
	return 20
}

// Step runs one instruction (or services one interrupt) and returns the
// cycle count consumed, or Fault for a lock-up opcode.
func (c *CPU) Step() int {
	if c.faulted {
		return Fault
	}

	// IME from a previous EI turns on after the instruction that follows
	// it, so remember whether it was armed before this one.
	enableIME := c.eiPending

	if c.halted {
		if c.pending() == 0 {
			return 4
		}
		c.halted = false
		// With IME clear the core wakes but does not service.
	}

	if c.IME && c.pending() != 0 {
		return c.service()
	}

	op := c.read8(c.PC)
	if c.haltBug {
		c.haltBug = false // PC stays put: the byte is fetched again next time
	} else {
		c.PC++
	}

	cycles := c.execute(op)
	if cycles == Fault {
		c.faulted = true
		return Fault
	}

	if enableIME && c.eiPending {
		c.IME = true
		c.eiPending = false
	}
	return cycles
}

type cpuRegs struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME, Halted            bool
	EIPending, HaltBug     bool
	Faulted                bool
}

func (c *CPU) EncodeState(w io.Writer) error {
	s := cpuRegs{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted,
		EIPending: c.eiPending, HaltBug: c.haltBug,
		Faulted: c.faulted,
	}
	return binary.Write(w, binary.BigEndian, &s)
}

func (c *CPU) DecodeState(r io.Reader, version uint16) error {
	var s cpuRegs
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted = s.IME, s.Halted
	c.eiPending, c.haltBug = s.EIPending, s.HaltBug
	c.faulted = s.Faulted
	return nil
}
