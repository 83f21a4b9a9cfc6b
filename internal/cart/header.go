package cart

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const headerEnd = 0x014F

// ErrBadHeader is wrapped by all header parse failures.
var ErrBadHeader = errors.New("cart: malformed ROM header")

// Header holds the decoded cartridge header at 0x0100–0x014F.
type Header struct {
	Title          string
	CGBFlag        byte   // 0x0143
	NewLicensee    string // 0x0144–0x0145, meaningful when OldLicensee is 0x33
	SGBFlag        byte   // 0x0146
	CartType       byte   // 0x0147
	ROMSizeCode    byte   // 0x0148
	RAMSizeCode    byte   // 0x0149
	Destination    byte   // 0x014A
	OldLicensee    byte   // 0x014B
	ROMVersion     byte   // 0x014C
	HeaderChecksum byte   // 0x014D
	GlobalChecksum uint16 // 0x014E–0x014F

	ROMSizeBytes int
	ROMBanks     int
	RAMSizeBytes int
}

// ParseHeader decodes and validates the cartridge header. The ROM must be at
// least large enough to contain the header, and the declared ROM size must not
// exceed the image; either condition failing is a fatal load error.
func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerEnd+1 {
		return nil, fmt.Errorf("%w: image is %d bytes, header needs %d", ErrBadHeader, len(rom), headerEnd+1)
	}

	h := &Header{
		Title:          strings.TrimRight(string(rom[0x0134:0x0144]), "\x00"),
		CGBFlag:        rom[0x0143],
		NewLicensee:    string(rom[0x0144:0x0146]),
		SGBFlag:        rom[0x0146],
		CartType:       rom[0x0147],
		ROMSizeCode:    rom[0x0148],
		RAMSizeCode:    rom[0x0149],
		Destination:    rom[0x014A],
		OldLicensee:    rom[0x014B],
		ROMVersion:     rom[0x014C],
		HeaderChecksum: rom[0x014D],
		GlobalChecksum: binary.BigEndian.Uint16(rom[0x014E:0x0150]),
	}
	h.ROMSizeBytes, h.ROMBanks = decodeROMSize(h.ROMSizeCode)
	h.RAMSizeBytes = decodeRAMSize(h.RAMSizeCode)

	if h.ROMSizeBytes == 0 {
		return nil, fmt.Errorf("%w: unknown ROM size code %#02x", ErrBadHeader, h.ROMSizeCode)
	}
	if h.ROMSizeBytes > len(rom) {
		return nil, fmt.Errorf("%w: header declares %d bytes but image has %d", ErrBadHeader, h.ROMSizeBytes, len(rom))
	}
	return h, nil
}

// ChecksumOK recomputes the 8-bit header checksum over 0x0134–0x014C and
// compares it against the stored value. Real hardware (the boot ROM) locks up
// on mismatch; we only report it.
func ChecksumOK(rom []byte) bool {
	if len(rom) < 0x014E {
		return false
	}
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	return sum == rom[0x014D]
}

func decodeROMSize(code byte) (size, banks int) {
	if code <= 0x08 {
		banks = 2 << code
		return banks * 0x4000, banks
	}
	switch code {
	case 0x52:
		return 1152 * 1024, 72
	case 0x53:
		return 1280 * 1024, 80
	case 0x54:
		return 1536 * 1024, 96
	default:
		return 0, 0
	}
}

func decodeRAMSize(code byte) int {
	switch code {
	case 0x02:
		return 8 * 1024
	case 0x03:
		return 32 * 1024
	case 0x04:
		return 128 * 1024
	case 0x05:
		return 64 * 1024
	default:
		return 0
	}
}

// TypeString names the mapper family of the header's cartridge type.
func (h *Header) TypeString() string { return cartTypeString(h.CartType) }

func cartTypeString(code byte) string {
	switch code {
	case 0x00, 0x08, 0x09:
		return "ROM"
	case 0x01, 0x02, 0x03:
		return "MBC1"
	case 0x05, 0x06:
		return "MBC2"
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return "MBC3"
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return "MBC5"
	default:
		return "unknown"
	}
}

// HasBattery reports whether the given cartridge-type byte includes
// battery-backed RAM (or a battery-backed RTC).
func HasBattery(cartType byte) bool {
	switch cartType {
	case 0x03, 0x06, 0x09, 0x0D, 0x0F, 0x10, 0x13, 0x1B, 0x1E:
		return true
	}
	return false
}
