package bus

// startDMA begins an OAM DMA from page value<<8. One byte lands per cycle
// for 160 cycles; the CPU only reaches IO and HRAM meanwhile.
func (b *Bus) startDMA(value byte) {
	b.dmaReg = value
	b.dmaSrc = uint16(value) << 8
	b.dmaCount = 0
	b.dmaActive = true
}

func (b *Bus) tickDMA() {
	if !b.dmaActive {
		return
	}
	b.ppu.DMAWriteOAM(byte(b.dmaCount), b.dmaRead(b.dmaSrc+uint16(b.dmaCount)))
	b.dmaCount++
	if b.dmaCount == 0xA0 {
		b.dmaActive = false
	}
}

// dmaRead fetches a source byte without the CPU-side access gating.
func (b *Bus) dmaRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.DMAReadVRAM(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}
