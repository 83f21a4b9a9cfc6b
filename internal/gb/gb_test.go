package gb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dotmatrix-emu/dotmatrix/internal/ppu"
	"github.com/dotmatrix-emu/dotmatrix/internal/serial"
)

// testROM builds a 32KB ROM-only image with program placed at the entry
// point 0x0100. The rest of the image is NOPs.
func testROM(program []byte) []byte {
	rom := make([]byte, 0x8000)
	copy(rom[0x0134:], "GBTEST")
	rom[0x0147] = 0x00
	rom[0x0148] = 0x00
	copy(rom[0x0100:], program)
	return rom
}

func newMachine(t *testing.T, rom []byte) *Machine {
	t.Helper()
	m := New(Config{})
	if err := m.LoadCartridge(rom); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	return m
}

func TestMachine_LoadCartridgeRejectsBadROM(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(make([]byte, 0x100)); err == nil {
		t.Fatalf("truncated ROM accepted")
	}
}

func TestMachine_ROMReadAfterLoad(t *testing.T) {
	rom := testROM(nil)
	rom[0x0150] = 0x3C
	m := newMachine(t, rom)
	if got := m.Bus().Read(0x0150); got != 0x3C {
		t.Fatalf("read(0x0150) = %02x, want 3C", got)
	}
}

func TestMachine_TimerProgram(t *testing.T) {
	// LD A,0x05; LDH (FF07),A enables the timer at 262144 Hz (one TIMA
	// increment per 16 cycles), then NOPs.
	m := newMachine(t, testROM([]byte{0x3E, 0x05, 0xE0, 0x07}))

	for i := 0; i < 2; i++ { // the two setup instructions
		if _, err := m.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	for i := 0; i < 64; i++ { // 64 NOPs = 256 cycles
		if _, err := m.Step(); err != nil {
			t.Fatalf("nop %d: %v", i, err)
		}
	}
	// The TAC write lands before its instruction's cycles tick, so the
	// timer counts every bit-3 falling edge from divider 16 through 272.
	if got := m.Bus().Read(0xFF05); got != 17 {
		t.Fatalf("TIMA = %d, want 17", got)
	}
}

func TestMachine_LCDOffDuringMode3(t *testing.T) {
	m := newMachine(t, testROM(nil))

	// Step into the mode-3 window of line 0.
	acc := 0
	for acc < 100 {
		cycles, err := m.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		acc += cycles
	}
	if got := m.Bus().Read(0xFF41) & 0x03; got != 3 {
		t.Fatalf("mode = %d before LCD off, want 3", got)
	}

	m.Bus().Write(0xFF40, 0x11) // LCD off
	if got := m.Bus().Read(0xFF44); got != 0 {
		t.Fatalf("LY = %d with LCD off, want 0", got)
	}
	if got := m.Bus().Read(0xFF41) & 0x03; got != 0 {
		t.Fatalf("mode = %d with LCD off, want 0", got)
	}
	for i, s := range m.Frame() {
		if s != 0 {
			t.Fatalf("frame[%d] = %d with LCD off, want 0", i, s)
		}
	}

	m.Bus().Write(0xFF40, 0x91) // back on: restarts from line 0, mode 2
	if got := m.Bus().Read(0xFF41) & 0x03; got != 2 {
		t.Fatalf("mode = %d after LCD on, want 2", got)
	}
}

func TestMachine_RunFrame(t *testing.T) {
	m := newMachine(t, testROM(nil))
	if err := m.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if !m.Bus().PPU().FrameReady() {
		t.Fatalf("no frame after RunFrame")
	}
	img := m.FrameImage()
	if img.Bounds().Dx() != ppu.FrameWidth || img.Bounds().Dy() != ppu.FrameHeight {
		t.Fatalf("frame image is %v", img.Bounds())
	}
	if m.Bus().PPU().FrameReady() {
		t.Fatalf("FrameImage did not consume the frame")
	}
}

func TestMachine_RunFrameAdvancesAcrossCalls(t *testing.T) {
	m := newMachine(t, testROM(nil))
	// No FrameImage between calls: an unconsumed frame must not stall the
	// next RunFrame.
	prevDIV := m.Bus().Read(0xFF04)
	for i := 0; i < 10; i++ {
		if err := m.RunFrame(); err != nil {
			t.Fatalf("RunFrame %d: %v", i, err)
		}
		div := m.Bus().Read(0xFF04)
		if div == prevDIV {
			t.Fatalf("DIV stuck at %02x after RunFrame %d", div, i)
		}
		prevDIV = div
	}
}

func TestMachine_SerialEchoLeavesSBUnchanged(t *testing.T) {
	// LD A,0x5A; LDH (FF01),A; LD A,0x81; LDH (FF02),A
	m := newMachine(t, testROM([]byte{0x3E, 0x5A, 0xE0, 0x01, 0x3E, 0x81, 0xE0, 0x02}))
	m.AttachSerial(serial.EchoDevice{})

	for i := 0; i < 1100; i++ { // more than the 4096-cycle transfer
		if _, err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if got := m.Bus().Read(0xFF01); got != 0x5A {
		t.Fatalf("SB after echo transfer = %02x, want 5A", got)
	}
	if m.Bus().Read(0xFF0F)&(1<<3) == 0 {
		t.Fatalf("serial interrupt not raised")
	}
}

func TestMachine_CPUFault(t *testing.T) {
	m := newMachine(t, testROM([]byte{0xD3}))
	if _, err := m.Step(); !errors.Is(err, ErrCPUFault) {
		t.Fatalf("Step error = %v, want ErrCPUFault", err)
	}
	if !m.Faulted() {
		t.Fatalf("machine not marked faulted")
	}
	if _, err := m.Step(); !errors.Is(err, ErrCPUFault) {
		t.Fatalf("fault did not latch")
	}
}

func TestMachine_Buttons(t *testing.T) {
	m := newMachine(t, testROM(nil))
	m.Bus().Write(0xFF00, 0x10) // select the action group
	m.SetButtons(Buttons{Start: true})
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x07 {
		t.Fatalf("JOYP = %x with Start held, want 0x07", got)
	}

	// Posted events apply on the next Step.
	if !m.PostButtons(Buttons{}) {
		t.Fatalf("PostButtons rejected with empty queue")
	}
	if _, err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x0F {
		t.Fatalf("JOYP = %x after release, want 0x0F", got)
	}
}

func TestMachine_Battery(t *testing.T) {
	rom := testROM(nil)
	rom[0x0147] = 0x03 // MBC1+RAM+BATTERY
	rom[0x0149] = 0x02 // 8KB RAM
	m := newMachine(t, rom)

	m.Bus().Write(0x0000, 0x0A) // RAM enable
	m.Bus().Write(0xA000, 0x42)
	data, ok := m.SaveBattery()
	if !ok || len(data) != 0x2000 {
		t.Fatalf("SaveBattery ok=%v len=%d", ok, len(data))
	}
	if data[0] != 0x42 {
		t.Fatalf("saved RAM[0] = %02x, want 42", data[0])
	}

	m2 := newMachine(t, rom)
	if !m2.LoadBattery(data) {
		t.Fatalf("LoadBattery failed")
	}
	m2.Bus().Write(0x0000, 0x0A)
	if got := m2.Bus().Read(0xA000); got != 0x42 {
		t.Fatalf("restored RAM[0] = %02x, want 42", got)
	}
}

func TestMachine_SaveStateRoundTrip(t *testing.T) {
	rom := testROM(nil)
	m1 := newMachine(t, rom)
	for i := 0; i < 1000; i++ {
		if _, err := m1.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	m1.Bus().Write(0xC123, 0x77)

	var state bytes.Buffer
	if err := m1.SaveState(&state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	first := append([]byte(nil), state.Bytes()...)

	m2 := newMachine(t, rom)
	if err := m2.LoadState(&state); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := m2.Bus().Read(0xC123); got != 0x77 {
		t.Fatalf("WRAM not restored: %02x", got)
	}

	var again bytes.Buffer
	if err := m2.SaveState(&again); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if !bytes.Equal(first, again.Bytes()) {
		t.Fatalf("save state not bit-identical across round trip")
	}
}

func TestMachine_LoadStateRejectsBadImages(t *testing.T) {
	m := newMachine(t, testROM(nil))

	if err := m.LoadState(bytes.NewReader([]byte("XXXX\x00\x02"))); !errors.Is(err, ErrBadState) {
		t.Fatalf("bad magic error = %v, want ErrBadState", err)
	}
	if err := m.LoadState(bytes.NewReader([]byte("DMXS\x00\x09"))); !errors.Is(err, ErrBadState) {
		t.Fatalf("future version error = %v, want ErrBadState", err)
	}

	// A truncated image must roll back, leaving the machine untouched.
	var before bytes.Buffer
	if err := m.SaveState(&before); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := m.LoadState(bytes.NewReader([]byte("DMXS\x00\x02\x01\x02\x03"))); !errors.Is(err, ErrBadState) {
		t.Fatalf("truncated image error = %v, want ErrBadState", err)
	}
	var after bytes.Buffer
	if err := m.SaveState(&after); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if !bytes.Equal(before.Bytes(), after.Bytes()) {
		t.Fatalf("failed load modified machine state")
	}
}
