package ppu

import "sort"

// scanSprites performs the mode 2 OAM scan: pick at most ten sprites that
// fall on the current line, then order them by screen X with OAM slot as
// the tiebreaker, which is the DMG's drawing priority.
func (p *PPU) scanSprites() {
	p.numSprites = 0
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	cmp := int(p.ly) + 16
	for i := 0; i < 40 && p.numSprites < 10; i++ {
		top := int(p.oam[i*4])
		if cmp < top || cmp >= top+height {
			continue
		}
		p.lineSprites[p.numSprites] = sprite{
			y:     p.oam[i*4],
			x:     p.oam[i*4+1],
			tile:  p.oam[i*4+2],
			flags: p.oam[i*4+3],
			index: byte(i),
		}
		p.numSprites++
	}
	s := p.lineSprites[:p.numSprites]
	sort.SliceStable(s, func(a, b int) bool { return s[a].x < s[b].x })
}

// tilePixel reads one background or window pixel: map lookup, tile-data
// addressing per LCDC bit 4, then the 2bpp decode.
func (p *PPU) tilePixel(mapBase uint16, x, y byte) byte {
	tileIdx := p.vram[mapBase-0x8000+uint16(y>>3)*32+uint16(x>>3)]
	var base uint16
	if p.lcdc&0x10 != 0 {
		base = uint16(tileIdx) * 16
	} else {
		base = uint16(0x1000 + int(int8(tileIdx))*16)
	}
	base += uint16(y&7) * 2
	lo, hi := p.vram[base], p.vram[base+1]
	bit := 7 - x&7
	return (hi>>bit&1)<<1 | lo>>bit&1
}

// renderScanline composes BG, window, and sprites for the current LY into
// the frame buffer as final 2-bit shades.
func (p *PPU) renderScanline() {
	y := int(p.ly)
	if y >= FrameHeight {
		return
	}
	row := p.frame[y*FrameWidth : y*FrameWidth+FrameWidth]

	// Color indices before BGP mapping; sprite priority needs them.
	var colorIdx [FrameWidth]byte

	bgEnabled := p.lcdc&0x01 != 0
	if bgEnabled {
		mapBase := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			mapBase = 0x9C00
		}
		bgY := byte(y) + p.scy
		for x := 0; x < FrameWidth; x++ {
			colorIdx[x] = p.tilePixel(mapBase, byte(x)+p.scx, bgY)
		}
	}

	windowDrawn := false
	if bgEnabled && p.lcdc&0x20 != 0 && p.wyHit && p.wx <= 166 {
		mapBase := uint16(0x9800)
		if p.lcdc&0x40 != 0 {
			mapBase = 0x9C00
		}
		startX := int(p.wx) - 7
		x := startX
		if x < 0 {
			x = 0
		}
		for ; x < FrameWidth; x++ {
			colorIdx[x] = p.tilePixel(mapBase, byte(x-startX), p.winLine)
			windowDrawn = true
		}
	}

	for x := 0; x < FrameWidth; x++ {
		row[x] = p.bgp >> (2 * colorIdx[x]) & 3
	}

	if p.lcdc&0x02 != 0 {
		p.renderSprites(row, &colorIdx)
	}

	if windowDrawn {
		p.winLine++
	}
}

func (p *PPU) renderSprites(row []byte, colorIdx *[FrameWidth]byte) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	// A pixel is claimed by the first sprite with an opaque pixel there;
	// a lower-priority sprite never shows through, even when BG-over-OBJ
	// ends up hiding the winner.
	var claimed [FrameWidth]bool

	for i := 0; i < p.numSprites; i++ {
		s := p.lineSprites[i]
		line := int(p.ly) + 16 - int(s.y)
		if s.flags&0x40 != 0 { // Y flip
			line = height - 1 - line
		}
		tile := s.tile
		if height == 16 {
			tile &= 0xFE
			if line >= 8 {
				tile |= 0x01
				line -= 8
			}
		}
		base := uint16(tile)*16 + uint16(line)*2
		lo, hi := p.vram[base], p.vram[base+1]

		pal := p.obp0
		if s.flags&0x10 != 0 {
			pal = p.obp1
		}
		for px := 0; px < 8; px++ {
			x := int(s.x) - 8 + px
			if x < 0 || x >= FrameWidth || claimed[x] {
				continue
			}
			bit := 7 - px
			if s.flags&0x20 != 0 { // X flip
				bit = px
			}
			ci := (hi>>bit&1)<<1 | lo>>bit&1
			if ci == 0 {
				continue
			}
			claimed[x] = true
			if s.flags&0x80 != 0 && colorIdx[x] != 0 {
				continue // behind BG colors 1-3
			}
			row[x] = pal >> (2 * ci) & 3
		}
	}
}
