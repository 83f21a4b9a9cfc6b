// Command rominfo prints the parsed cartridge header of a ROM image.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dotmatrix-emu/dotmatrix/internal/cart"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: rominfo <rom.gb>\n")
		os.Exit(2)
	}

	rom, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	h, err := cart.ParseHeader(rom)
	if err != nil {
		log.Fatalf("parse header: %v", err)
	}

	checksum := "ok"
	if !cart.ChecksumOK(rom) {
		checksum = "BAD (real hardware would not boot this)"
	}
	battery := "no"
	if cart.HasBattery(h.CartType) {
		battery = "yes"
	}

	fmt.Printf("title:           %s\n", h.Title)
	fmt.Printf("mapper:          %s (type %#02x)\n", h.TypeString(), h.CartType)
	fmt.Printf("rom:             %d bytes, %d banks\n", h.ROMSizeBytes, h.ROMBanks)
	fmt.Printf("ram:             %d bytes\n", h.RAMSizeBytes)
	fmt.Printf("battery:         %s\n", battery)
	fmt.Printf("cgb flag:        %#02x\n", h.CGBFlag)
	fmt.Printf("sgb flag:        %#02x\n", h.SGBFlag)
	fmt.Printf("destination:     %#02x\n", h.Destination)
	fmt.Printf("rom version:     %d\n", h.ROMVersion)
	fmt.Printf("header checksum: %#02x (%s)\n", h.HeaderChecksum, checksum)
	fmt.Printf("global checksum: %#04x\n", h.GlobalChecksum)
}
