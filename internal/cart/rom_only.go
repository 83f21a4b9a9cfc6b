package cart

import "io"

// ROMOnly is a cartridge without an MBC: up to 32KB of ROM mapped flat, no
// external RAM.
type ROMOnly struct {
	rom []byte
}

func NewROMOnly(rom []byte) *ROMOnly {
	return &ROMOnly{rom: rom}
}

func (c *ROMOnly) Read(addr uint16) byte {
	if addr < 0x8000 && int(addr) < len(c.rom) {
		return c.rom[addr]
	}
	return 0xFF
}

// Write is ignored: there are no banking registers and no external RAM.
func (c *ROMOnly) Write(addr uint16, value byte) {}

func (c *ROMOnly) Update(cycles int) {}

func (c *ROMOnly) EncodeState(w io.Writer) error                 { return nil }
func (c *ROMOnly) DecodeState(r io.Reader, version uint16) error { return nil }
