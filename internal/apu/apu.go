// Package apu implements the four DMG sound channels, the 512 Hz frame
// sequencer, and a stereo sample ring buffer for recording or playback.
package apu

import (
	"encoding/binary"
	"io"
)

const (
	cpuHz          = 4194304
	frameSeqPeriod = cpuHz / 512

	ringCap = 32768 // interleaved L/R samples
)

// Read-back masks for FF10-FF26: unreadable bits are forced high.
var regMasks = [23]byte{
	0x80, 0x3F, 0x00, 0xFF, 0xBF, // NR10-NR14
	0xFF, 0x3F, 0x00, 0xFF, 0xBF, // FF15, NR21-NR24
	0x7F, 0xFF, 0x9F, 0xFF, 0xBF, // NR30-NR34
	0xFF, 0xFF, 0x00, 0x00, 0xBF, // FF1F, NR41-NR44
	0x00, 0x00, 0x70, // NR50-NR52
}

type APU struct {
	enabled bool

	fsCounter int
	fsStep    int

	ch1 pulse
	ch2 pulse
	ch3 wave
	ch4 noise

	nr50 byte
	nr51 byte

	sampleRate      int
	cyclesPerSample float64
	sampleAcc       float64

	// muted silences the mixer without disturbing channel timing, so
	// enabling audio mid-run picks up exactly where the synth would be.
	muted bool

	// Interleaved stereo ring; oldest samples are dropped on overflow.
	ring []int16
	head int
	size int
}

func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	a := &APU{
		enabled:         true,
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		fsCounter:       frameSeqPeriod,
		ring:            make([]int16, ringCap),
	}
	a.ch1.hasSweep = true
	return a
}

// Reset applies the DMG post-boot register values.
func (a *APU) Reset() {
	a.Write(0xFF26, 0x80)
	a.Write(0xFF10, 0x80)
	a.Write(0xFF11, 0xBF)
	a.Write(0xFF12, 0xF3)
	a.Write(0xFF14, 0xBF)
	a.Write(0xFF16, 0x3F)
	a.Write(0xFF19, 0xBF)
	a.Write(0xFF1A, 0x7F)
	a.Write(0xFF1B, 0xFF)
	a.Write(0xFF1C, 0x9F)
	a.Write(0xFF1E, 0xBF)
	a.Write(0xFF20, 0xFF)
	a.Write(0xFF23, 0xBF)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF25, 0xF3)
}

func (a *APU) SampleRate() int { return a.sampleRate }

func (a *APU) SetMuted(muted bool) { a.muted = muted }

func (a *APU) Read(addr uint16) byte {
	if addr >= 0xFF30 && addr <= 0xFF3F {
		return a.ch3.ram[addr-0xFF30]
	}
	if addr < 0xFF10 || addr > 0xFF26 {
		return 0xFF
	}
	var v byte
	switch {
	case addr <= 0xFF14:
		v = a.pulseReg(&a.ch1, int(addr-0xFF10))
	case addr == 0xFF15:
		v = 0
	case addr <= 0xFF19:
		v = a.pulseReg(&a.ch2, int(addr-0xFF15))
	case addr <= 0xFF1E:
		v = a.waveReg(int(addr - 0xFF1A))
	case addr == 0xFF1F:
		v = 0
	case addr <= 0xFF23:
		v = a.noiseReg(int(addr - 0xFF1F))
	case addr == 0xFF24:
		v = a.nr50
	case addr == 0xFF25:
		v = a.nr51
	default: // NR52
		if a.enabled {
			v |= 0x80
		}
		if a.ch1.enabled {
			v |= 1 << 0
		}
		if a.ch2.enabled {
			v |= 1 << 1
		}
		if a.ch3.enabled {
			v |= 1 << 2
		}
		if a.ch4.enabled {
			v |= 1 << 3
		}
	}
	return v | regMasks[addr-0xFF10]
}

func (a *APU) pulseReg(c *pulse, reg int) byte {
	switch reg {
	case 0:
		return c.nrx0
	case 1:
		return c.nrx1
	case 2:
		return c.nrx2
	case 3:
		return c.nrx3
	default:
		return c.nrx4
	}
}

func (a *APU) waveReg(reg int) byte {
	switch reg {
	case 0:
		return a.ch3.nrx0
	case 1:
		return a.ch3.nrx1
	case 2:
		return a.ch3.nrx2
	case 3:
		return a.ch3.nrx3
	default:
		return a.ch3.nrx4
	}
}

func (a *APU) noiseReg(reg int) byte {
	switch reg {
	case 1:
		return a.ch4.nrx1
	case 2:
		return a.ch4.nrx2
	case 3:
		return a.ch4.nrx3
	case 4:
		return a.ch4.nrx4
	default:
		return 0
	}
}

func (a *APU) Write(addr uint16, v byte) {
	if addr >= 0xFF30 && addr <= 0xFF3F {
		a.ch3.ram[addr-0xFF30] = v
		return
	}
	if addr == 0xFF26 {
		on := v&0x80 != 0
		if on && !a.enabled {
			a.enabled = true
			a.fsStep = 0
			a.fsCounter = frameSeqPeriod
		} else if !on && a.enabled {
			a.powerOff()
		}
		return
	}
	if !a.enabled {
		// Powered off, only the length counters remain writable on DMG.
		switch addr {
		case 0xFF11:
			a.ch1.lengthCtr = 64 - int(v&0x3F)
		case 0xFF16:
			a.ch2.lengthCtr = 64 - int(v&0x3F)
		case 0xFF1B:
			a.ch3.lengthCtr = 256 - int(v)
		case 0xFF20:
			a.ch4.lengthCtr = 64 - int(v&0x3F)
		}
		return
	}
	switch {
	case addr >= 0xFF10 && addr <= 0xFF14:
		a.ch1.writeReg(int(addr-0xFF10), v)
	case addr >= 0xFF16 && addr <= 0xFF19:
		a.ch2.writeReg(int(addr-0xFF15), v)
	case addr >= 0xFF1A && addr <= 0xFF1E:
		a.ch3.writeReg(int(addr-0xFF1A), v)
	case addr >= 0xFF20 && addr <= 0xFF23:
		a.ch4.writeReg(int(addr-0xFF1F), v)
	case addr == 0xFF24:
		a.nr50 = v
	case addr == 0xFF25:
		a.nr51 = v
	}
}

// powerOff clears every register and channel but keeps wave RAM.
func (a *APU) powerOff() {
	a.enabled = false
	a.ch1.powerOff()
	a.ch2.powerOff()
	a.ch3.powerOff()
	a.ch4.powerOff()
	a.nr50, a.nr51 = 0, 0
}

// Tick advances the APU by CPU cycles, clocking the frame sequencer and
// channel timers and emitting samples at the configured rate.
func (a *APU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		if a.enabled {
			a.fsCounter--
			if a.fsCounter <= 0 {
				a.fsCounter += frameSeqPeriod
				a.clockFrameSequencer()
			}
			a.ch1.tick()
			a.ch2.tick()
			a.ch3.tick()
			a.ch4.tick()
		}
		a.sampleAcc++
		if a.sampleAcc >= a.cyclesPerSample {
			a.sampleAcc -= a.cyclesPerSample
			l, r := a.mix()
			a.push(l, r)
		}
	}
}

// clockFrameSequencer: length on steps 0/2/4/6, sweep on 2/6, envelopes
// on 7.
func (a *APU) clockFrameSequencer() {
	step := a.fsStep
	a.fsStep = (a.fsStep + 1) & 7

	if step&1 == 0 {
		a.ch1.clockLength()
		a.ch2.clockLength()
		a.ch3.clockLength()
		a.ch4.clockLength()
	}
	if step == 2 || step == 6 {
		a.ch1.clockSweep()
	}
	if step == 7 {
		a.ch1.clockEnvelope()
		a.ch2.clockEnvelope()
		a.ch4.clockEnvelope()
	}
}

func (a *APU) mix() (int16, int16) {
	if !a.enabled || a.muted {
		return 0, 0
	}
	outs := [4]int{a.ch1.output(), a.ch2.output(), a.ch3.output(), a.ch4.output()}
	var l, r int
	for i, o := range outs {
		if a.nr51&(1<<(4+i)) != 0 {
			l += o
		}
		if a.nr51&(1<<i) != 0 {
			r += o
		}
	}
	volL := int(a.nr50>>4&7) + 1
	volR := int(a.nr50&7) + 1
	// 4 channels * ±15 * 64 * 8 stays inside int16.
	return int16(l * 64 * volL / 8), int16(r * 64 * volR / 8)
}

func (a *APU) push(l, r int16) {
	if a.size+2 > len(a.ring) {
		a.head = (a.head + 2) % len(a.ring)
		a.size -= 2
	}
	tail := (a.head + a.size) % len(a.ring)
	a.ring[tail] = l
	a.ring[tail+1] = r
	a.size += 2
}

// ReadSamples drains up to len(dst) interleaved stereo samples and returns
// how many were copied. dst should have even length.
func (a *APU) ReadSamples(dst []int16) int {
	n := len(dst) &^ 1
	if n > a.size {
		n = a.size
	}
	for i := 0; i < n; i++ {
		dst[i] = a.ring[(a.head+i)%len(a.ring)]
	}
	a.head = (a.head + n) % len(a.ring)
	a.size -= n
	return n
}

// BufferedSamples reports how many interleaved samples are waiting.
func (a *APU) BufferedSamples() int { return a.size }

type pulseState struct {
	NRx0, NRx1, NRx2, NRx3, NRx4 byte
	Enabled                      bool
	LengthCtr                    int32
	Timer                        int32
	Phase                        int32
	Vol                          byte
	EnvTimer                     byte
	SweepEnabled                 bool
	SweepTimer                   byte
	ShadowFreq                   uint16
	SweepNegated                 bool
}

type waveState struct {
	NRx0, NRx1, NRx2, NRx3, NRx4 byte
	RAM                          [16]byte
	Enabled                      bool
	LengthCtr                    int32
	Timer                        int32
	Pos                          int32
}

type noiseState struct {
	NRx1, NRx2, NRx3, NRx4 byte
	Enabled                bool
	LengthCtr              int32
	Timer                  int32
	Vol                    byte
	EnvTimer               byte
	LFSR                   uint16
}

type apuState struct {
	Enabled    bool
	FSCounter  int32
	FSStep     int32
	NR50, NR51 byte
	CH1, CH2   pulseState
	CH3        waveState
	CH4        noiseState
}

func pulseToState(c *pulse) pulseState {
	return pulseState{
		NRx0: c.nrx0, NRx1: c.nrx1, NRx2: c.nrx2, NRx3: c.nrx3, NRx4: c.nrx4,
		Enabled: c.enabled, LengthCtr: int32(c.lengthCtr),
		Timer: int32(c.timer), Phase: int32(c.phase),
		Vol: c.vol, EnvTimer: c.envTimer,
		SweepEnabled: c.sweepEnabled, SweepTimer: c.sweepTimer,
		ShadowFreq: c.shadowFreq, SweepNegated: c.sweepNegated,
	}
}

func pulseFromState(c *pulse, s pulseState) {
	c.nrx0, c.nrx1, c.nrx2, c.nrx3, c.nrx4 = s.NRx0, s.NRx1, s.NRx2, s.NRx3, s.NRx4
	c.enabled = s.Enabled
	c.lengthCtr, c.timer, c.phase = int(s.LengthCtr), int(s.Timer), int(s.Phase)
	c.vol, c.envTimer = s.Vol, s.EnvTimer
	c.sweepEnabled, c.sweepTimer = s.SweepEnabled, s.SweepTimer
	c.shadowFreq, c.sweepNegated = s.ShadowFreq, s.SweepNegated
}

func (a *APU) EncodeState(w io.Writer) error {
	s := apuState{
		Enabled:   a.enabled,
		FSCounter: int32(a.fsCounter), FSStep: int32(a.fsStep),
		NR50: a.nr50, NR51: a.nr51,
		CH1: pulseToState(&a.ch1), CH2: pulseToState(&a.ch2),
		CH3: waveState{
			NRx0: a.ch3.nrx0, NRx1: a.ch3.nrx1, NRx2: a.ch3.nrx2,
			NRx3: a.ch3.nrx3, NRx4: a.ch3.nrx4,
			RAM: a.ch3.ram, Enabled: a.ch3.enabled,
			LengthCtr: int32(a.ch3.lengthCtr), Timer: int32(a.ch3.timer),
			Pos: int32(a.ch3.pos),
		},
		CH4: noiseState{
			NRx1: a.ch4.nrx1, NRx2: a.ch4.nrx2, NRx3: a.ch4.nrx3, NRx4: a.ch4.nrx4,
			Enabled:   a.ch4.enabled,
			LengthCtr: int32(a.ch4.lengthCtr), Timer: int32(a.ch4.timer),
			Vol: a.ch4.vol, EnvTimer: a.ch4.envTimer, LFSR: a.ch4.lfsr,
		},
	}
	return binary.Write(w, binary.BigEndian, &s)
}

func (a *APU) DecodeState(r io.Reader, version uint16) error {
	var s apuState
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	a.enabled = s.Enabled
	a.fsCounter, a.fsStep = int(s.FSCounter), int(s.FSStep)
	a.nr50, a.nr51 = s.NR50, s.NR51
	pulseFromState(&a.ch1, s.CH1)
	pulseFromState(&a.ch2, s.CH2)
	a.ch3.nrx0, a.ch3.nrx1, a.ch3.nrx2 = s.CH3.NRx0, s.CH3.NRx1, s.CH3.NRx2
	a.ch3.nrx3, a.ch3.nrx4 = s.CH3.NRx3, s.CH3.NRx4
	a.ch3.ram = s.CH3.RAM
	a.ch3.enabled = s.CH3.Enabled
	a.ch3.lengthCtr, a.ch3.timer, a.ch3.pos = int(s.CH3.LengthCtr), int(s.CH3.Timer), int(s.CH3.Pos)
	a.ch4.nrx1, a.ch4.nrx2, a.ch4.nrx3, a.ch4.nrx4 = s.CH4.NRx1, s.CH4.NRx2, s.CH4.NRx3, s.CH4.NRx4
	a.ch4.enabled = s.CH4.Enabled
	a.ch4.lengthCtr, a.ch4.timer = int(s.CH4.LengthCtr), int(s.CH4.Timer)
	a.ch4.vol, a.ch4.envTimer, a.ch4.lfsr = s.CH4.Vol, s.CH4.EnvTimer, s.CH4.LFSR
	return nil
}
