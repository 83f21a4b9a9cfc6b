package cart

import (
	"encoding/binary"
	"io"
)

// MBC1 banks up to 2MB of ROM and 32KB of RAM. The 0x6000 mode register
// selects whether the two upper bank bits steer the RAM bank or the high ROM
// bank bits (which in mode 1 also remap the fixed 0x0000 window).
type MBC1 struct {
	rom []byte
	ram []byte

	bankLow5   byte // lower 5 bits of the ROM bank, 0 remapped to 1
	bankHigh2  byte // RAM bank in mode 1, ROM bank bits 5-6 otherwise
	ramEnabled bool
	mode       byte // 0: ROM banking, 1: RAM banking
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, bankLow5: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		off := int(addr)
		if m.mode == 1 {
			off += int(m.bankHigh2&0x03) << 19 // bank<<5 * 0x4000
		}
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.bankLow5 | (m.bankHigh2 << 5))
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		off, ok := m.ramOffset(addr)
		if !ok {
			return 0xFF
		}
		return m.ram[off]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.bankLow5 = value & 0x1F
		if m.bankLow5 == 0 {
			m.bankLow5 = 1
		}
	case addr < 0x6000:
		m.bankHigh2 = value & 0x03
	case addr < 0x8000:
		m.mode = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if off, ok := m.ramOffset(addr); ok {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) ramOffset(addr uint16) (int, bool) {
	if !m.ramEnabled || len(m.ram) == 0 {
		return 0, false
	}
	bank := 0
	if m.mode == 1 {
		bank = int(m.bankHigh2 & 0x03)
	}
	off := bank*0x2000 + int(addr-0xA000)
	if off >= len(m.ram) {
		return 0, false
	}
	return off, true
}

func (m *MBC1) Update(cycles int) {}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc1Regs struct {
	BankLow5   byte
	BankHigh2  byte
	RAMEnabled bool
	Mode       byte
}

func (m *MBC1) EncodeState(w io.Writer) error {
	s := mbc1Regs{m.bankLow5, m.bankHigh2, m.ramEnabled, m.mode}
	if err := binary.Write(w, binary.BigEndian, &s); err != nil {
		return err
	}
	return writeBlob(w, m.ram)
}

func (m *MBC1) DecodeState(r io.Reader, version uint16) error {
	var s mbc1Regs
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	if err := readBlobInto(r, m.ram); err != nil {
		return err
	}
	m.bankLow5, m.bankHigh2, m.ramEnabled, m.mode = s.BankLow5, s.BankHigh2, s.RAMEnabled, s.Mode
	return nil
}
