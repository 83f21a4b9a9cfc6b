// Package gb composes the SM83 core with the bus into a runnable DMG
// machine and owns the save-state container format.
package gb

import (
	"errors"
	"fmt"
	"image"

	"github.com/dotmatrix-emu/dotmatrix/internal/bus"
	"github.com/dotmatrix-emu/dotmatrix/internal/cart"
	"github.com/dotmatrix-emu/dotmatrix/internal/cpu"
	"github.com/dotmatrix-emu/dotmatrix/internal/ppu"
	"github.com/dotmatrix-emu/dotmatrix/internal/serial"
)

// CyclesPerFrame is one full LCD refresh: 154 lines of 456 dots.
const CyclesPerFrame = 154 * 456

// ErrCPUFault is returned once the core fetches a lock-up opcode. The
// machine state is frozen from that point on.
var ErrCPUFault = errors.New("gb: cpu executed a lock-up opcode")

type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

type Config struct {
	// SampleRate is the APU output rate in Hz; 0 picks 48000.
	SampleRate int
	// Palette maps the 2-bit LCD shades to RGB for FrameImage.
	Palette ppu.Palette
}

type Machine struct {
	cfg Config
	bus *bus.Bus
	cpu *cpu.CPU

	// Pollers running outside the emulation goroutine post button updates
	// here; Step drains them between instructions.
	events chan Buttons
}

func New(cfg Config) *Machine {
	if cfg.Palette.Name == "" {
		cfg.Palette = ppu.PaletteGreen
	}
	return &Machine{
		cfg:    cfg,
		events: make(chan Buttons, 8),
	}
}

// LoadCartridge parses the ROM, builds the mapper, and wires a fresh bus
// and CPU in the DMG post-boot state.
func (m *Machine) LoadCartridge(rom []byte) error {
	c, err := cart.New(rom)
	if err != nil {
		return fmt.Errorf("gb: %w", err)
	}
	m.bus = bus.New(c, m.cfg.SampleRate)
	m.cpu = cpu.New(m.bus)
	m.Reset()
	return nil
}

// Reset returns the machine to the state right after the boot ROM hands
// off, keeping the loaded cartridge.
func (m *Machine) Reset() {
	if m.bus == nil {
		return
	}
	m.cpu.Reset()
	m.bus.PPU().Reset()
	m.bus.APU().Reset()
	// IO defaults the PPU and APU resets don't cover.
	m.bus.Write(0xFF00, 0xCF) // JOYP
	m.bus.Write(0xFF05, 0x00) // TIMA
	m.bus.Write(0xFF06, 0x00) // TMA
	m.bus.Write(0xFF07, 0x00) // TAC
	m.bus.Write(0xFF0F, 0xE1) // IF: VBlank pending after boot
	m.bus.Write(0xFFFF, 0x00) // IE
}

// Step executes one instruction (or services one interrupt) and advances
// every clocked component by the cycles it took.
func (m *Machine) Step() (int, error) {
	m.drainEvents()
	cycles := m.cpu.Step()
	if cycles == cpu.Fault {
		return 0, ErrCPUFault
	}
	m.bus.Tick(cycles)
	return cycles, nil
}

// RunFrame steps until the PPU presents a frame, never splitting an
// instruction. With the LCD disabled it gives up after two frames' worth
// of cycles so callers cannot spin forever.
func (m *Machine) RunFrame() error {
	p := m.bus.PPU()
	// A frame left over from the previous call would satisfy the loop
	// before a single instruction runs, so acknowledge it first.
	if p.FrameReady() {
		p.ConsumeFrame()
	}
	for acc := 0; !p.FrameReady(); {
		cycles, err := m.Step()
		if err != nil {
			return err
		}
		acc += cycles
		if acc > 2*CyclesPerFrame {
			break
		}
	}
	return nil
}

func (m *Machine) drainEvents() {
	for {
		select {
		case b := <-m.events:
			m.SetButtons(b)
		default:
			return
		}
	}
}

// PostButtons queues a button update from another goroutine. It never
// blocks; it reports false when the queue is full and the update dropped.
func (m *Machine) PostButtons(b Buttons) bool {
	select {
	case m.events <- b:
		return true
	default:
		return false
	}
}

// SetButtons applies a button state directly. Only safe from the goroutine
// driving Step.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

// AttachSerial connects a link-cable peer.
func (m *Machine) AttachSerial(d serial.Device) { m.bus.Serial().Attach(d) }

// Frame returns the current shade buffer without consuming it.
func (m *Machine) Frame() *[ppu.FrameHeight * ppu.FrameWidth]byte {
	return m.bus.PPU().Frame()
}

// FrameImage consumes the pending frame and renders it through the
// configured palette.
func (m *Machine) FrameImage() *image.RGBA {
	return m.cfg.Palette.Image(m.bus.PPU().ConsumeFrame())
}

// Bus exposes the memory map, mostly for tests and the CLI.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// Faulted reports whether the core has hit a lock-up opcode.
func (m *Machine) Faulted() bool { return m.cpu.Faulted() }

// SaveBattery returns a copy of the cartridge's battery-backed RAM, or
// false when the cartridge has none.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// LoadBattery restores previously persisted battery RAM.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}
