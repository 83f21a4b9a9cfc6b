package cart

import (
	"encoding/binary"
	"errors"
	"testing"
)

// buildROM makes a synthetic ROM with a valid header & checksums.
// size should match the ROM size code (e.g. 64*1024 for code 0x01).
func buildROM(title string, cartType, romSizeCode, ramSizeCode byte, size int) []byte {
	rom := make([]byte, size)

	// Title 0x0134–0x0143 (16 bytes max)
	tbytes := []byte(title)
	if len(tbytes) > 16 {
		tbytes = tbytes[:16]
	}
	copy(rom[0x0134:0x0144], tbytes)

	rom[0x0144], rom[0x0145] = '0', '1' // New licensee ("01")
	rom[0x0147] = cartType
	rom[0x0148] = romSizeCode
	rom[0x0149] = ramSizeCode
	rom[0x014B] = 0x33 // Old licensee (use new licensee)

	// Header checksum over 0x0134–0x014C (Pan Docs algorithm)
	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	// Global checksum: sum of all bytes except 0x014E–0x014F (big-endian)
	var gsum uint16
	for i := 0; i < len(rom); i++ {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)

	return rom
}

func TestParseHeader_Basics(t *testing.T) {
	rom := buildROM("TESTGAME", 0x01, 0x01, 0x02, 64*1024)
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if h.Title != "TESTGAME" {
		t.Fatalf("title got %q want %q", h.Title, "TESTGAME")
	}
	if h.CartType != 0x01 {
		t.Fatalf("cart type got %02X want 01", h.CartType)
	}
	if h.ROMSizeBytes != 64*1024 || h.ROMBanks != 4 {
		t.Fatalf("ROM size got %d bytes / %d banks, want 65536/4", h.ROMSizeBytes, h.ROMBanks)
	}
	if h.RAMSizeBytes != 8*1024 {
		t.Fatalf("RAM size got %d want 8192", h.RAMSizeBytes)
	}
	if !ChecksumOK(rom) {
		t.Fatalf("header checksum should verify")
	}
}

func TestParseHeader_TooSmall(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 0x100)); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("want ErrBadHeader for truncated image, got %v", err)
	}
}

func TestParseHeader_DeclaredSizeExceedsImage(t *testing.T) {
	// Header says 128KB (code 0x02) but the image is only 32KB.
	rom := buildROM("BIG", 0x00, 0x02, 0x00, 32*1024)
	if _, err := ParseHeader(rom); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("want ErrBadHeader for oversized declaration, got %v", err)
	}
}

func TestParseHeader_UnknownROMSizeCode(t *testing.T) {
	rom := buildROM("ODD", 0x00, 0x42, 0x00, 32*1024)
	if _, err := ParseHeader(rom); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("want ErrBadHeader for unknown size code, got %v", err)
	}
}

func TestChecksumOK_DetectsCorruption(t *testing.T) {
	rom := buildROM("CKSUM", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0134] ^= 0xFF
	if ChecksumOK(rom) {
		t.Fatalf("corrupted header should not verify")
	}
}

func TestNew_UnsupportedMapper(t *testing.T) {
	rom := buildROM("HUC", 0xFE, 0x00, 0x00, 32*1024)
	if _, err := New(rom); err == nil {
		t.Fatalf("want error for unsupported cartridge type")
	}
}
