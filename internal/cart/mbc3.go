package cart

import (
	"encoding/binary"
	"io"
)

const cyclesPerSecond = 4194304

// MBC3 banks up to 2MB of ROM and 32KB of RAM and optionally carries a
// real-time clock. Selecting 0x08–0x0C in the 0x4000 register maps an RTC
// register into the external-RAM window instead of a RAM bank; writing 0x00
// then 0x01 to 0x6000 latches the live clock into the readable registers.
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits, 0 remapped to 1
	ramSel     byte // 0-3 RAM bank or 0x08-0x0C RTC register

	hasRTC   bool
	rtc      rtcClock
	latched  rtcClock
	latchArm bool // wrote 0x00, waiting for 0x01
	cycles   int  // sub-second cycle accumulator
}

// rtcClock holds the five RTC registers. dh packs the day counter's bit 8
// (bit 0), the halt flag (bit 6), and the day-carry flag (bit 7).
type rtcClock struct {
	sec, min, hour byte
	dayLow, dh     byte
}

func NewMBC3(rom []byte, ramSize int, hasRTC bool) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1, hasRTC: hasRTC}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramSel >= 0x08 && m.ramSel <= 0x0C {
			if !m.hasRTC {
				return 0xFF
			}
			return m.latched.read(m.ramSel)
		}
		if off, ok := m.ramOffset(addr); ok {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.romBank = value & 0x7F
		if m.romBank == 0 {
			m.romBank = 1
		}
	case addr < 0x6000:
		m.ramSel = value & 0x0F
	case addr < 0x8000:
		if m.hasRTC {
			if value == 0x00 {
				m.latchArm = true
			} else if value == 0x01 && m.latchArm {
				m.latched = m.rtc
				m.latchArm = false
			} else {
				m.latchArm = false
			}
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramSel >= 0x08 && m.ramSel <= 0x0C {
			if m.hasRTC {
				m.rtc.write(m.ramSel, value)
				if m.ramSel == 0x08 {
					m.cycles = 0 // writing seconds resets the sub-second counter
				}
			}
			return
		}
		if off, ok := m.ramOffset(addr); ok {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) ramOffset(addr uint16) (int, bool) {
	if len(m.ram) == 0 || m.ramSel > 0x03 {
		return 0, false
	}
	off := int(m.ramSel)*0x2000 + int(addr-0xA000)
	if off >= len(m.ram) {
		return 0, false
	}
	return off, true
}

// Update advances the RTC. The clock counts CPU cycles so that emulated time
// tracks emulated speed, not wall time.
func (m *MBC3) Update(cycles int) {
	if !m.hasRTC || m.rtc.dh&0x40 != 0 { // halt flag stops the clock
		return
	}
	m.cycles += cycles
	for m.cycles >= cyclesPerSecond {
		m.cycles -= cyclesPerSecond
		m.rtc.tickSecond()
	}
}

func (c *rtcClock) tickSecond() {
	c.sec++
	if c.sec == 60 {
		c.sec = 0
		c.min++
	} else if c.sec >= 64 {
		c.sec = 0 // out-of-range values written by software wrap at 64
	}
	if c.min == 60 {
		c.min = 0
		c.hour++
	} else if c.min >= 64 {
		c.min = 0
	}
	if c.hour == 24 {
		c.hour = 0
		c.incDay()
	} else if c.hour >= 32 {
		c.hour = 0
	}
}

func (c *rtcClock) incDay() {
	if c.dayLow == 0xFF {
		c.dayLow = 0
		if c.dh&0x01 != 0 {
			c.dh &^= 0x01
			c.dh |= 0x80 // day counter overflow sticks until cleared
		} else {
			c.dh |= 0x01
		}
	} else {
		c.dayLow++
	}
}

func (c *rtcClock) read(reg byte) byte {
	switch reg {
	case 0x08:
		return c.sec
	case 0x09:
		return c.min
	case 0x0A:
		return c.hour
	case 0x0B:
		return c.dayLow
	default:
		return c.dh
	}
}

func (c *rtcClock) write(reg byte, v byte) {
	switch reg {
	case 0x08:
		c.sec = v & 0x3F
	case 0x09:
		c.min = v & 0x3F
	case 0x0A:
		c.hour = v & 0x1F
	case 0x0B:
		c.dayLow = v
	default:
		c.dh = v & 0xC1
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc3Regs struct {
	RAMEnabled bool
	ROMBank    byte
	RAMSel     byte
	HasRTC     bool
	RTC        [5]byte
	Latched    [5]byte
	LatchArm   bool
	Cycles     int64
}

func (m *MBC3) EncodeState(w io.Writer) error {
	s := mbc3Regs{
		RAMEnabled: m.ramEnabled,
		ROMBank:    m.romBank,
		RAMSel:     m.ramSel,
		HasRTC:     m.hasRTC,
		RTC:        [5]byte{m.rtc.sec, m.rtc.min, m.rtc.hour, m.rtc.dayLow, m.rtc.dh},
		Latched:    [5]byte{m.latched.sec, m.latched.min, m.latched.hour, m.latched.dayLow, m.latched.dh},
		LatchArm:   m.latchArm,
		Cycles:     int64(m.cycles),
	}
	if err := binary.Write(w, binary.BigEndian, &s); err != nil {
		return err
	}
	return writeBlob(w, m.ram)
}

func (m *MBC3) DecodeState(r io.Reader, version uint16) error {
	var s mbc3Regs
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	if err := readBlobInto(r, m.ram); err != nil {
		return err
	}
	m.ramEnabled, m.romBank, m.ramSel = s.RAMEnabled, s.ROMBank, s.RAMSel
	m.rtc = rtcClock{s.RTC[0], s.RTC[1], s.RTC[2], s.RTC[3], s.RTC[4]}
	m.latched = rtcClock{s.Latched[0], s.Latched[1], s.Latched[2], s.Latched[3], s.Latched[4]}
	m.latchArm = s.LatchArm
	m.cycles = int(s.Cycles)
	return nil
}
