package cart

import (
	"fmt"
	"io"
)

// Cartridge is the interface the bus uses for ROM/RAM banking. Addresses are
// CPU addresses: ROM and MBC control registers live in 0x0000–0x7FFF, external
// RAM in 0xA000–0xBFFF.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	// Update advances any in-cartridge peripheral (the MBC3 real-time clock)
	// by the given number of CPU cycles.
	Update(cycles int)
	// EncodeState/DecodeState serialize banking registers and external RAM
	// for save states.
	EncodeState(w io.Writer) error
	DecodeState(r io.Reader, version uint16) error
}

// BatteryBacked is implemented by cartridges whose external RAM survives
// power-off. SaveRAM returns a copy of the RAM contents (nil when the
// cartridge has none); LoadRAM restores previously persisted contents.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// New builds a cartridge from a raw ROM image, picking the mapper from the
// header's cartridge-type byte. ROM images with a malformed header or an
// unsupported mapper are a load error, never a silent fallback.
func New(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x0F, 0x10:
		return NewMBC3(rom, h.RAMSizeBytes, true), nil
	case 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes, false), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, fmt.Errorf("cart: unsupported cartridge type %#02x (%s)", h.CartType, cartTypeString(h.CartType))
	}
}
