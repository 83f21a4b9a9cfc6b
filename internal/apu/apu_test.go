package apu

import (
	"bytes"
	"testing"
)

func newAPU() *APU {
	a := New(48000)
	a.Write(0xFF26, 0x80)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF25, 0xFF)
	return a
}

func TestAPU_ReadMasks(t *testing.T) {
	a := newAPU()

	a.Write(0xFF10, 0x00)
	if got := a.Read(0xFF10); got != 0x80 {
		t.Fatalf("NR10 = %#02x, want 0x80", got)
	}
	a.Write(0xFF11, 0x80) // duty 2, length 0
	if got := a.Read(0xFF11); got != 0xBF {
		t.Fatalf("NR11 = %#02x, want 0xBF (length bits unreadable)", got)
	}
	a.Write(0xFF12, 0xA5)
	if got := a.Read(0xFF12); got != 0xA5 {
		t.Fatalf("NR12 = %#02x, want 0xA5", got)
	}
	a.Write(0xFF13, 0x12)
	if got := a.Read(0xFF13); got != 0xFF {
		t.Fatalf("NR13 = %#02x, want 0xFF (write only)", got)
	}
	a.Write(0xFF14, 0x40)
	if got := a.Read(0xFF14); got != 0xFF {
		t.Fatalf("NR14 = %#02x, want 0xFF (only length enable readable)", got)
	}
	if got := a.Read(0xFF15); got != 0xFF {
		t.Fatalf("FF15 = %#02x, want 0xFF", got)
	}
	a.Write(0xFF1A, 0x80)
	if got := a.Read(0xFF1A); got != 0xFF {
		t.Fatalf("NR30 = %#02x, want 0xFF", got)
	}
	a.Write(0xFF1C, 0x40)
	if got := a.Read(0xFF1C); got != 0xDF {
		t.Fatalf("NR32 = %#02x, want 0xDF", got)
	}
	for addr := uint16(0xFF27); addr <= 0xFF2F; addr++ {
		if got := a.Read(addr); got != 0xFF {
			t.Fatalf("read %#04x = %#02x, want 0xFF", addr, got)
		}
	}
}

func TestAPU_WaveRAM(t *testing.T) {
	a := newAPU()
	for i := uint16(0); i < 16; i++ {
		a.Write(0xFF30+i, byte(i)*0x11)
	}
	for i := uint16(0); i < 16; i++ {
		if got := a.Read(0xFF30 + i); got != byte(i)*0x11 {
			t.Fatalf("wave[%d] = %#02x, want %#02x", i, got, byte(i)*0x11)
		}
	}
}

func TestAPU_TriggerSetsStatusBit(t *testing.T) {
	a := newAPU()
	a.Write(0xFF17, 0xF0) // DAC on
	a.Write(0xFF19, 0x80)
	if got := a.Read(0xFF26); got&0x02 == 0 {
		t.Fatalf("NR52 = %#02x, want channel 2 active", got)
	}
}

func TestAPU_TriggerWithDACOffStaysOff(t *testing.T) {
	a := newAPU()
	a.Write(0xFF17, 0x00)
	a.Write(0xFF19, 0x80)
	if got := a.Read(0xFF26); got&0x02 != 0 {
		t.Fatalf("NR52 = %#02x, channel 2 should be inactive with DAC off", got)
	}
}

func TestAPU_LengthCounterExpires(t *testing.T) {
	a := newAPU()
	a.Write(0xFF17, 0xF0)
	a.Write(0xFF16, 0x3F) // length counter = 1
	a.Write(0xFF19, 0xC0) // trigger, length enabled
	if a.Read(0xFF26)&0x02 == 0 {
		t.Fatalf("channel 2 should be active after trigger")
	}
	a.Tick(frameSeqPeriod) // first sequencer step clocks length
	if a.Read(0xFF26)&0x02 != 0 {
		t.Fatalf("channel 2 should have expired, NR52 = %#02x", a.Read(0xFF26))
	}
}

func TestAPU_EnvelopeDecreases(t *testing.T) {
	a := newAPU()
	a.Write(0xFF17, 0xF1) // vol 15, decrease, period 1
	a.Write(0xFF19, 0x80)
	if a.ch2.vol != 15 {
		t.Fatalf("vol = %d after trigger, want 15", a.ch2.vol)
	}
	a.Tick(8 * frameSeqPeriod) // step 7 clocks the envelope
	if a.ch2.vol != 14 {
		t.Fatalf("vol = %d after one envelope clock, want 14", a.ch2.vol)
	}
}

func TestAPU_SweepOverflowKillsChannel(t *testing.T) {
	a := newAPU()
	a.Write(0xFF10, 0x01) // shift 1, add mode
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF13, 0xFF)
	a.Write(0xFF14, 0x87) // trigger with freq 2047
	if got := a.Read(0xFF26); got&0x01 != 0 {
		t.Fatalf("NR52 = %#02x, sweep overflow should disable channel 1", got)
	}
}

func TestAPU_SweepNegateClearKillsChannel(t *testing.T) {
	a := newAPU()
	a.Write(0xFF10, 0x19) // period 1, negate, shift 1
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF13, 0x00)
	a.Write(0xFF14, 0x84)
	if a.Read(0xFF26)&0x01 == 0 {
		t.Fatalf("channel 1 should be active after trigger")
	}
	a.Write(0xFF10, 0x11) // leaving negate mode after a negate calc
	if got := a.Read(0xFF26); got&0x01 != 0 {
		t.Fatalf("NR52 = %#02x, channel 1 should be dead", got)
	}
}

func TestAPU_PowerOffClearsRegisters(t *testing.T) {
	a := newAPU()
	a.Write(0xFF12, 0xF3)
	a.Write(0xFF30, 0xAB)
	a.Write(0xFF26, 0x00)

	if got := a.Read(0xFF26); got != 0x70 {
		t.Fatalf("NR52 = %#02x while off, want 0x70", got)
	}
	if got := a.Read(0xFF12); got != 0x00 {
		t.Fatalf("NR12 = %#02x after power off, want 0x00", got)
	}
	if got := a.Read(0xFF24); got != 0x00 {
		t.Fatalf("NR50 = %#02x after power off, want 0x00", got)
	}
	if got := a.Read(0xFF30); got != 0xAB {
		t.Fatalf("wave RAM = %#02x after power off, want 0xAB", got)
	}

	// Register writes are ignored while powered off.
	a.Write(0xFF12, 0x55)
	if got := a.Read(0xFF12); got != 0x00 {
		t.Fatalf("NR12 = %#02x, writes should be ignored while off", got)
	}
	// Length counters stay writable on DMG.
	a.Write(0xFF16, 0x3F)
	if a.ch2.lengthCtr != 1 {
		t.Fatalf("ch2 length = %d, want 1", a.ch2.lengthCtr)
	}
}

func TestAPU_NoiseLFSR(t *testing.T) {
	a := newAPU()
	a.Write(0xFF21, 0xF0)
	a.Write(0xFF22, 0x00) // divisor 8, shift 0
	a.Write(0xFF23, 0x80)
	if a.ch4.lfsr != 0x7FFF {
		t.Fatalf("lfsr = %#04x after trigger, want 0x7FFF", a.ch4.lfsr)
	}
	a.Tick(8) // one LFSR step at divisor 8
	if a.ch4.lfsr != 0x3FFF {
		t.Fatalf("lfsr = %#04x after one step, want 0x3FFF", a.ch4.lfsr)
	}
}

func TestAPU_SampleBuffer(t *testing.T) {
	a := newAPU()
	a.Tick(cpuHz / 100) // 10ms worth
	n := a.BufferedSamples()
	if n < 900 || n > 1000 {
		t.Fatalf("buffered %d samples after 10ms at 48kHz, want ~960", n)
	}
	if n&1 != 0 {
		t.Fatalf("buffered sample count %d is odd", n)
	}
	dst := make([]int16, n)
	if got := a.ReadSamples(dst); got != n {
		t.Fatalf("ReadSamples = %d, want %d", got, n)
	}
	if a.BufferedSamples() != 0 {
		t.Fatalf("buffer not drained, %d left", a.BufferedSamples())
	}
}

func TestAPU_MutedStillProducesSamples(t *testing.T) {
	a := newAPU()
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF14, 0x80)
	a.SetMuted(true)
	a.Tick(cpuHz / 100)
	n := a.BufferedSamples()
	if n < 900 || n > 1000 {
		t.Fatalf("buffered %d samples while muted, want ~960", n)
	}
	dst := make([]int16, n)
	a.ReadSamples(dst)
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("muted sample %d = %d, want 0", i, s)
		}
	}
	a.SetMuted(false)
	a.Tick(cpuHz / 100)
	dst = make([]int16, a.BufferedSamples())
	a.ReadSamples(dst)
	silent := true
	for _, s := range dst {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatalf("no output after unmuting a triggered channel")
	}
}

func TestAPU_StateRoundTrip(t *testing.T) {
	a := newAPU()
	a.Write(0xFF10, 0x34)
	a.Write(0xFF12, 0xF2)
	a.Write(0xFF13, 0x83)
	a.Write(0xFF14, 0x87)
	a.Write(0xFF1A, 0x80)
	a.Write(0xFF30, 0x5A)
	a.Write(0xFF1E, 0x86)
	a.Write(0xFF22, 0x25)
	a.Write(0xFF23, 0x80)
	a.Tick(12345)

	var buf bytes.Buffer
	if err := a.EncodeState(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	first := append([]byte(nil), buf.Bytes()...)

	b := New(48000)
	if err := b.DecodeState(&buf, 2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var buf2 bytes.Buffer
	if err := b.EncodeState(&buf2); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(first, buf2.Bytes()) {
		t.Fatalf("state changed across round trip")
	}
}
