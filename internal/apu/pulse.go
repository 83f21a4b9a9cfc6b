package apu

// Duty patterns, one bit per phase step (pan docs ordering).
var dutyTable = [4][8]byte{
	{0, 0, 0, 0, 0, 0, 0, 1}, // 12.5%
	{1, 0, 0, 0, 0, 0, 0, 1}, // 25%
	{1, 0, 0, 0, 0, 1, 1, 1}, // 50%
	{0, 1, 1, 1, 1, 1, 1, 0}, // 75%
}

// pulse is a square channel. Channel 1 carries the sweep unit; channel 2 is
// the same circuit with nrx0 unwired.
type pulse struct {
	hasSweep bool

	// Raw register bytes, so read-back only needs the OR masks.
	nrx0, nrx1, nrx2, nrx3, nrx4 byte

	enabled   bool
	lengthCtr int
	timer     int
	phase     int
	vol       byte
	envTimer  byte

	sweepEnabled bool
	sweepTimer   byte
	shadowFreq   uint16
	sweepNegated bool // a negate-mode calc happened since the last trigger
}

func (c *pulse) dacOn() bool { return c.nrx2&0xF8 != 0 }

func (c *pulse) freq() uint16 {
	return uint16(c.nrx3) | uint16(c.nrx4&7)<<8
}

func (c *pulse) setFreq(f uint16) {
	c.nrx3 = byte(f)
	c.nrx4 = c.nrx4&^0x07 | byte(f>>8)&7
}

func (c *pulse) period() int { return int(2048-c.freq()) * 4 }

func (c *pulse) writeReg(reg int, v byte) {
	switch reg {
	case 0:
		old := c.nrx0
		c.nrx0 = v
		// Clearing negate mode after a negate-mode sweep calculation kills
		// the channel.
		if c.hasSweep && old&0x08 != 0 && v&0x08 == 0 && c.sweepNegated {
			c.enabled = false
		}
	case 1:
		c.nrx1 = v
		c.lengthCtr = 64 - int(v&0x3F)
	case 2:
		c.nrx2 = v
		if !c.dacOn() {
			c.enabled = false
		}
	case 3:
		c.nrx3 = v
	case 4:
		c.nrx4 = v
		if v&0x80 != 0 {
			c.trigger()
		}
	}
}

func (c *pulse) trigger() {
	c.enabled = c.dacOn()
	if c.lengthCtr == 0 {
		c.lengthCtr = 64
	}
	c.timer = c.period()
	c.vol = c.nrx2 >> 4
	c.envTimer = envPeriod(c.nrx2)
	if c.hasSweep {
		c.shadowFreq = c.freq()
		c.sweepNegated = false
		per := c.nrx0 >> 4 & 7
		shift := c.nrx0 & 7
		c.sweepEnabled = per != 0 || shift != 0
		c.sweepTimer = per
		if c.sweepTimer == 0 {
			c.sweepTimer = 8
		}
		if shift != 0 && c.sweepCalc() > 2047 {
			c.enabled = false
		}
	}
}

// sweepCalc computes the next sweep frequency from the shadow register.
func (c *pulse) sweepCalc() uint16 {
	delta := c.shadowFreq >> (c.nrx0 & 7)
	if c.nrx0&0x08 != 0 {
		c.sweepNegated = true
		return c.shadowFreq - delta
	}
	return c.shadowFreq + delta
}

func (c *pulse) clockSweep() {
	if !c.hasSweep {
		return
	}
	if c.sweepTimer > 0 {
		c.sweepTimer--
	}
	if c.sweepTimer != 0 {
		return
	}
	per := c.nrx0 >> 4 & 7
	c.sweepTimer = per
	if c.sweepTimer == 0 {
		c.sweepTimer = 8
	}
	if !c.sweepEnabled || per == 0 {
		return
	}
	next := c.sweepCalc()
	if next > 2047 {
		c.enabled = false
		return
	}
	if shift := c.nrx0 & 7; shift != 0 {
		c.shadowFreq = next
		c.setFreq(next)
		if c.sweepCalc() > 2047 {
			c.enabled = false
		}
	}
}

func (c *pulse) clockLength() {
	if c.nrx4&0x40 != 0 && c.lengthCtr > 0 {
		c.lengthCtr--
		if c.lengthCtr == 0 {
			c.enabled = false
		}
	}
}

func (c *pulse) clockEnvelope() {
	per := c.nrx2 & 7
	if per == 0 {
		return
	}
	c.envTimer--
	if c.envTimer > 0 {
		return
	}
	c.envTimer = per
	if c.nrx2&0x08 != 0 {
		if c.vol < 15 {
			c.vol++
		}
	} else if c.vol > 0 {
		c.vol--
	}
}

func (c *pulse) tick() {
	c.timer--
	if c.timer <= 0 {
		c.timer = c.period()
		c.phase = (c.phase + 1) & 7
	}
}

// output is the channel's DAC level: 0 with the DAC off, otherwise a value
// centered on zero in [-15, 15].
func (c *pulse) output() int {
	if !c.enabled || !c.dacOn() {
		return 0
	}
	d := dutyTable[c.nrx1>>6][c.phase] * c.vol
	return int(d)*2 - 15
}

func envPeriod(nrx2 byte) byte {
	per := nrx2 & 7
	if per == 0 {
		return 8
	}
	return per
}

func (c *pulse) powerOff() {
	*c = pulse{hasSweep: c.hasSweep}
}
