package cart

import (
	"encoding/binary"
	"io"
)

// MBC5 addresses up to 8MB of ROM through a 9-bit bank number split across
// two registers. Unlike MBC1/MBC3, bank 0 is selectable in the switchable
// window.
type MBC5 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBankLow byte
	romBankHi  byte // single bit
	ramBank    byte
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom, romBankLow: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBankHi&0x01)<<8 | int(m.romBankLow)
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if off, ok := m.ramOffset(addr); ok {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x3000:
		m.romBankLow = value
	case addr < 0x4000:
		m.romBankHi = value & 0x01
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if off, ok := m.ramOffset(addr); ok {
			m.ram[off] = value
		}
	}
}

func (m *MBC5) ramOffset(addr uint16) (int, bool) {
	if !m.ramEnabled || len(m.ram) == 0 {
		return 0, false
	}
	off := int(m.ramBank)*0x2000 + int(addr-0xA000)
	if off >= len(m.ram) {
		return 0, false
	}
	return off, true
}

func (m *MBC5) Update(cycles int) {}

func (m *MBC5) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC5) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc5Regs struct {
	RAMEnabled bool
	ROMBankLow byte
	ROMBankHi  byte
	RAMBank    byte
}

func (m *MBC5) EncodeState(w io.Writer) error {
	s := mbc5Regs{
		RAMEnabled: m.ramEnabled,
		ROMBankLow: m.romBankLow,
		ROMBankHi:  m.romBankHi,
		RAMBank:    m.ramBank,
	}
	if err := binary.Write(w, binary.BigEndian, &s); err != nil {
		return err
	}
	return writeBlob(w, m.ram)
}

func (m *MBC5) DecodeState(r io.Reader, version uint16) error {
	var s mbc5Regs
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	if err := readBlobInto(r, m.ram); err != nil {
		return err
	}
	m.ramEnabled = s.RAMEnabled
	m.romBankLow = s.ROMBankLow
	m.romBankHi = s.ROMBankHi
	m.ramBank = s.RAMBank
	return nil
}
