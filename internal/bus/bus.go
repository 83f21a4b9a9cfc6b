// Package bus is the DMG memory map: it routes CPU accesses to the
// cartridge, PPU, APU, serial port, WRAM, HRAM, and the IO registers, and
// owns the timers, OAM DMA engine, and joypad.
package bus

import (
	"encoding/binary"
	"io"

	"github.com/dotmatrix-emu/dotmatrix/internal/apu"
	"github.com/dotmatrix-emu/dotmatrix/internal/cart"
	"github.com/dotmatrix-emu/dotmatrix/internal/ppu"
	"github.com/dotmatrix-emu/dotmatrix/internal/serial"
)

// Interrupt flag bits (IF/IE).
const (
	IntVBlank byte = 1 << 0
	IntSTAT   byte = 1 << 1
	IntTimer  byte = 1 << 2
	IntSerial byte = 1 << 3
	IntJoypad byte = 1 << 4
)

// Joypad button masks for SetJoypadState. The low nibble is the direction
// group, the high nibble the action group.
const (
	JoypRight     byte = 1 << 0
	JoypLeft      byte = 1 << 1
	JoypUp        byte = 1 << 2
	JoypDown      byte = 1 << 3
	JoypA         byte = 1 << 4
	JoypB         byte = 1 << 5
	JoypSelectBtn byte = 1 << 6
	JoypStart     byte = 1 << 7
)

type Bus struct {
	cart   cart.Cartridge
	ppu    *ppu.PPU
	apu    *apu.APU
	serial *serial.Port

	wram [0x2000]byte
	hram [0x7F]byte

	ifReg byte
	ie    byte

	joypSel byte // P14/P15 select bits as last written
	buttons byte // pressed buttons, Joyp* masks

	// Timer block. DIV is the high byte of a 16-bit counter; TIMA
	// increments on the falling edge of the TAC-selected counter bit.
	divInternal uint16
	tima        byte
	tma         byte
	tac         byte
	// TIMA overflow leaves 0 in the register for four cycles before the
	// reload from TMA and the interrupt.
	reloadPending bool
	reloadCnt     int

	// OAM DMA.
	dmaActive bool
	dmaReg    byte
	dmaSrc    uint16
	dmaCount  int
}

func New(c cart.Cartridge, sampleRate int) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	b.apu = apu.New(sampleRate)
	b.serial = serial.New(func() { b.ifReg |= IntSerial })
	return b
}

func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }
func (b *Bus) Serial() *serial.Port { return b.serial }

// Request sets interrupt flag bits directly.
func (b *Bus) Request(mask byte) { b.ifReg |= mask }

func (b *Bus) Read(addr uint16) byte {
	// The CPU only reaches IO and HRAM while OAM DMA runs.
	if b.dmaActive && addr < 0xFF00 {
		return 0xFF
	}
	return b.read(addr)
}

func (b *Bus) read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.Read(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00: // echo RAM
		return b.wram[addr-0xE000]
	case addr < 0xFEA0:
		return b.ppu.Read(addr)
	case addr < 0xFF00: // unusable
		return 0xFF
	case addr < 0xFF80:
		return b.readIO(addr)
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default:
		return b.ie
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	if b.dmaActive && addr < 0xFF00 {
		return
	}
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.Write(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
	case addr < 0xFEA0:
		b.ppu.Write(addr, value)
	case addr < 0xFF00:
		// unusable
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default:
		b.ie = value
	}
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return b.joypRead()
	case addr == 0xFF01:
		return b.serial.ReadSB()
	case addr == 0xFF02:
		return b.serial.ReadSC()
	case addr == 0xFF04:
		return byte(b.divInternal >> 8)
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | b.tac
	case addr == 0xFF0F:
		return 0xE0 | b.ifReg&0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.Read(addr)
	case addr == 0xFF46:
		return b.dmaReg
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.Read(addr)
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.joypSel = value & 0x30
	case addr == 0xFF01:
		b.serial.WriteSB(value)
	case addr == 0xFF02:
		b.serial.WriteSC(value)
	case addr == 0xFF04:
		b.writeDIV()
	case addr == 0xFF05:
		b.writeTIMA(value)
	case addr == 0xFF06:
		b.tma = value
	case addr == 0xFF07:
		b.writeTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.Write(addr, value)
	case addr == 0xFF46:
		b.startDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.Write(addr, value)
	}
}

// Tick advances every clocked component by the given CPU cycles.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.tickTimer()
		b.tickDMA()
	}
	b.ppu.Tick(cycles)
	b.apu.Tick(cycles)
	b.serial.Tick(cycles)
	b.cart.Update(cycles)
}

// SetJoypadState replaces the pressed-button mask. A press that pulls a
// selected input line low raises the joypad interrupt.
func (b *Bus) SetJoypadState(mask byte) {
	before := b.joypRead() & 0x0F
	b.buttons = mask
	after := b.joypRead() & 0x0F
	if before&^after != 0 {
		b.ifReg |= IntJoypad
	}
}

func (b *Bus) joypRead() byte {
	v := 0xC0 | b.joypSel | 0x0F
	if b.joypSel&0x10 == 0 { // P14 low: direction keys
		v &^= b.buttons & 0x0F
	}
	if b.joypSel&0x20 == 0 { // P15 low: action keys
		v &^= b.buttons >> 4 & 0x0F
	}
	return v
}

type busState struct {
	WRAM [0x2000]byte
	HRAM [0x7F]byte

	IF, IE           byte
	JoypSel, Buttons byte

	DivInternal    uint16
	TIMA, TMA, TAC byte
	ReloadPending  bool
	ReloadCnt      int32

	DMAActive bool
	DMAReg    byte
	DMASrc    uint16
	DMACount  int32
}

func (b *Bus) EncodeState(w io.Writer) error {
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IF: b.ifReg, IE: b.ie,
		JoypSel: b.joypSel, Buttons: b.buttons,
		DivInternal: b.divInternal,
		TIMA:        b.tima, TMA: b.tma, TAC: b.tac,
		ReloadPending: b.reloadPending, ReloadCnt: int32(b.reloadCnt),
		DMAActive: b.dmaActive, DMAReg: b.dmaReg,
		DMASrc: b.dmaSrc, DMACount: int32(b.dmaCount),
	}
	return binary.Write(w, binary.BigEndian, &s)
}

func (b *Bus) DecodeState(r io.Reader, version uint16) error {
	var s busState
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ifReg, b.ie = s.IF, s.IE
	b.joypSel, b.buttons = s.JoypSel, s.Buttons
	b.divInternal = s.DivInternal
	b.tima, b.tma, b.tac = s.TIMA, s.TMA, s.TAC
	b.reloadPending, b.reloadCnt = s.ReloadPending, int(s.ReloadCnt)
	b.dmaActive, b.dmaReg = s.DMAActive, s.DMAReg
	b.dmaSrc, b.dmaCount = s.DMASrc, int(s.DMACount)
	return nil
}
