// Package ppu models the DMG picture processor: VRAM/OAM, the LCDC/STAT
// register set, the per-scanline mode machine, and a scanline renderer.
package ppu

import (
	"encoding/binary"
	"io"
)

// InterruptRequester is a callback to request IF bits (0: VBlank, 1: STAT).
type InterruptRequester func(bit int)

const (
	modeHBlank byte = 0
	modeVBlank byte = 1
	modeOAM    byte = 2
	modeDraw   byte = 3

	dotsPerLine  = 456
	oamScanDots  = 80
	linesVisible = 144
	linesTotal   = 154

	// Mode 3 stretches with fine scroll and sprite fetches but never past
	// this many dots.
	mode3Max = 289

	// FrameWidth and FrameHeight are the LCD dimensions in pixels.
	FrameWidth  = 160
	FrameHeight = 144
)

type sprite struct {
	y, x  byte
	tile  byte
	flags byte
	index byte // OAM slot, breaks priority ties
}

type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte // FF40
	stat byte // FF41
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot      int // dots into the current line [0..455]
	mode3Len int // length of mode 3 on the current line

	// The STAT interrupt fires on the rising edge of the OR of all enabled
	// sources, so a second source turning on while the line is already high
	// stays silent.
	statLine bool

	// Window machinery: the window keeps its own line counter, and WY only
	// has to match once per frame to arm it.
	winLine byte
	wyHit   bool

	// Sprites picked by the OAM scan for the line being drawn.
	lineSprites [10]sprite
	numSprites  int

	frame      [FrameHeight * FrameWidth]byte // 2-bit shades after palette mapping
	frameReady bool

	req InterruptRequester
}

func New(req InterruptRequester) *PPU {
	return &PPU{req: req}
}

// Reset puts the registers in the DMG post-boot-ROM state.
func (p *PPU) Reset() {
	p.lcdc = 0x91
	p.stat = 0x85
	p.scy, p.scx = 0, 0
	p.ly, p.lyc = 0, 0
	p.bgp = 0xFC
	p.obp0, p.obp1 = 0xFF, 0xFF
	p.wy, p.wx = 0, 0
	p.dot = 0
	p.statLine = false
	p.winLine = 0
	p.wyHit = false
	p.frameReady = false
	// Line 0 needs a mode-3 length before its first transition.
	p.numSprites = 0
	p.mode3Len = p.mode3Length()
}

func (p *PPU) mode() byte { return p.stat & 0x03 }

func (p *PPU) lcdOn() bool { return p.lcdc&0x80 != 0 }

// lyValue is LY as the CPU sees it: on line 153 it snaps to 0 a few dots in.
func (p *PPU) lyValue() byte {
	if p.ly == 153 && p.dot >= 4 {
		return 0
	}
	return p.ly
}

// FrameReady reports whether a complete frame has been presented since the
// last call to ConsumeFrame.
func (p *PPU) FrameReady() bool { return p.frameReady }

// ConsumeFrame acknowledges the current frame and returns its shade indices
// (row-major, 0 lightest to 3 darkest).
func (p *PPU) ConsumeFrame() *[FrameHeight * FrameWidth]byte {
	p.frameReady = false
	return &p.frame
}

// Frame returns the current shade buffer without consuming it.
func (p *PPU) Frame() *[FrameHeight * FrameWidth]byte { return &p.frame }

// Read handles VRAM, OAM, and the FF40-FF4B register window. VRAM is
// unreadable during mode 3, OAM during modes 2 and 3.
func (p *PPU) Read(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.lcdOn() && p.mode() == modeDraw {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.lcdOn() && p.mode() >= modeOAM {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | p.stat
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.lyValue()
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

func (p *PPU) Write(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.lcdOn() && p.mode() == modeDraw {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.lcdOn() && p.mode() >= modeOAM {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&0x80 != 0 && value&0x80 == 0 {
			p.lcdDisable()
		} else if prev&0x80 == 0 && value&0x80 != 0 {
			p.lcdEnable()
		}
	case addr == 0xFF41:
		// Mode and coincidence bits are read-only.
		p.stat = p.stat&0x07 | value&0x78
		p.updateSTATLine()
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// LY is read-only.
	case addr == 0xFF45:
		p.lyc = value
		p.compareLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// DMAWriteOAM bypasses mode-based access gating: OAM DMA lands regardless
// of what the PPU is doing.
func (p *PPU) DMAWriteOAM(off byte, value byte) {
	if int(off) < len(p.oam) {
		p.oam[off] = value
	}
}

// DMAReadVRAM reads VRAM for an OAM DMA source without the mode-3 gate.
func (p *PPU) DMAReadVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

func (p *PPU) lcdDisable() {
	p.ly = 0
	p.dot = 0
	p.setModeBits(modeHBlank)
	p.compareLYC()
	// The panel goes blank.
	for i := range p.frame {
		p.frame[i] = 0
	}
	p.frameReady = true
}

func (p *PPU) lcdEnable() {
	p.ly = 0
	p.dot = 0
	p.winLine = 0
	p.wyHit = false
	p.startLine()
	p.compareLYC()
}

// Tick advances the PPU by the given number of dots. One CPU cycle is one
// dot on DMG.
func (p *PPU) Tick(cycles int) {
	if !p.lcdOn() {
		return
	}
	for i := 0; i < cycles; i++ {
		p.tickDot()
	}
}

func (p *PPU) tickDot() {
	p.dot++

	if p.ly < linesVisible {
		switch p.dot {
		case oamScanDots:
			p.setMode(modeDraw)
		case oamScanDots + p.mode3Len:
			p.renderScanline()
			p.setMode(modeHBlank)
		}
	} else if p.ly == 153 && p.dot == 4 {
		// LY already reads 0 here; re-run the LYC compare against it.
		p.compareLYC()
	}
	if p.dot < dotsPerLine {
		return
	}

	p.dot = 0
	p.ly++
	switch {
	case p.ly == linesVisible:
		p.setMode(modeVBlank)
		p.frameReady = true
		if p.req != nil {
			p.req(0)
		}
	case p.ly >= linesTotal:
		p.ly = 0
		p.winLine = 0
		p.wyHit = false
		p.startLine()
	case p.ly < linesVisible:
		p.startLine()
	}
	p.compareLYC()
}

// startLine begins a visible line: OAM scan and the mode 3 budget both
// depend on this line's sprites.
func (p *PPU) startLine() {
	p.setMode(modeOAM)
	if p.ly == p.wy {
		p.wyHit = true
	}
	p.scanSprites()
	p.mode3Len = p.mode3Length()
}

// mode3Length is the drawing-phase duration for the current line: the 172
// dot base, the discarded SCX fine-scroll pixels, a per-sprite fetch stall
// that shrinks as the sprite aligns with the background fetcher, and a six
// dot hit when the window starts on this line.
func (p *PPU) mode3Length() int {
	n := 172 + int(p.scx%8)
	for i := 0; i < p.numSprites; i++ {
		align := int((p.lineSprites[i].x + p.scx) % 8)
		if align > 5 {
			align = 5
		}
		n += 11 - align
	}
	if p.windowOnLine() {
		n += 6
	}
	if n > mode3Max {
		n = mode3Max
	}
	return n
}

func (p *PPU) windowOnLine() bool {
	return p.lcdc&0x20 != 0 && p.lcdc&0x01 != 0 && p.wyHit && p.wx <= 166
}

func (p *PPU) setMode(mode byte) {
	if p.mode() == mode {
		return
	}
	p.setModeBits(mode)
	p.updateSTATLine()
}

func (p *PPU) setModeBits(mode byte) {
	p.stat = p.stat&^0x03 | mode&0x03
}

func (p *PPU) compareLYC() {
	if p.lyValue() == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
	p.updateSTATLine()
}

func (p *PPU) updateSTATLine() {
	line := false
	switch p.mode() {
	case modeHBlank:
		line = p.stat&(1<<3) != 0
	case modeVBlank:
		line = p.stat&(1<<4) != 0
	case modeOAM:
		line = p.stat&(1<<5) != 0
	}
	if p.stat&(1<<6) != 0 && p.stat&(1<<2) != 0 {
		line = true
	}
	if line && !p.statLine && p.req != nil {
		p.req(1)
	}
	p.statLine = line
}

// ppuStateV1 is the original save-state layout; ppuStateV2 holds the
// window/timing fields a version-2 state appends to it.
type ppuStateV1 struct {
	VRAM [0x2000]byte
	OAM  [0xA0]byte

	LCDC, STAT, SCY, SCX byte
	LY, LYC              byte
	BGP, OBP0, OBP1      byte
	WY, WX               byte

	Dot      int32
	STATLine bool
}

type ppuStateV2 struct {
	Mode3Len   int32
	WinLine    byte
	WYHit      bool
	FrameReady bool
}

func (p *PPU) EncodeState(w io.Writer) error {
	v1 := ppuStateV1{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx,
		Dot: int32(p.dot), STATLine: p.statLine,
	}
	if err := binary.Write(w, binary.BigEndian, &v1); err != nil {
		return err
	}
	v2 := ppuStateV2{
		Mode3Len: int32(p.mode3Len),
		WinLine:  p.winLine, WYHit: p.wyHit,
		FrameReady: p.frameReady,
	}
	return binary.Write(w, binary.BigEndian, &v2)
}

func (p *PPU) DecodeState(r io.Reader, version uint16) error {
	var v1 ppuStateV1
	if err := binary.Read(r, binary.BigEndian, &v1); err != nil {
		return err
	}
	p.vram, p.oam = v1.VRAM, v1.OAM
	p.lcdc, p.stat, p.scy, p.scx = v1.LCDC, v1.STAT, v1.SCY, v1.SCX
	p.ly, p.lyc = v1.LY, v1.LYC
	p.bgp, p.obp0, p.obp1 = v1.BGP, v1.OBP0, v1.OBP1
	p.wy, p.wx = v1.WY, v1.WX
	p.dot, p.statLine = int(v1.Dot), v1.STATLine
	// The per-line sprite scratch is not serialized; rebuild it from OAM
	// when the restore lands mid-line.
	if p.lcdOn() && p.ly < linesVisible && p.mode() >= modeOAM {
		p.scanSprites()
	}
	if version >= 2 {
		var v2 ppuStateV2
		if err := binary.Read(r, binary.BigEndian, &v2); err != nil {
			return err
		}
		p.mode3Len = int(v2.Mode3Len)
		p.winLine, p.wyHit = v2.WinLine, v2.WYHit
		p.frameReady = v2.FrameReady
		return nil
	}
	// Version 1 carried no window state; recompute what we can and let the
	// window counter restart on the next frame.
	p.mode3Len = p.mode3Length()
	p.winLine, p.wyHit = 0, false
	p.frameReady = false
	return nil
}
