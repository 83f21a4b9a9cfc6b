package apu

var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// noise is channel 4: a 15-bit LFSR with an optional 7-bit short mode.
type noise struct {
	nrx1, nrx2, nrx3, nrx4 byte

	enabled   bool
	lengthCtr int
	timer     int
	vol       byte
	envTimer  byte
	lfsr      uint16
}

func (c *noise) dacOn() bool { return c.nrx2&0xF8 != 0 }

func (c *noise) period() int {
	return noiseDivisors[c.nrx3&7] << (c.nrx3 >> 4)
}

func (c *noise) writeReg(reg int, v byte) {
	switch reg {
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

func (c *noise) trigger() {
	c.enabled = c.dacOn()
	if c.lengthCtr == 0 {
		c.lengthCtr = 64
	}
	c.timer = c.period()
	c.vol = c.nrx2 >> 4
	c.envTimer = envPeriod(c.nrx2)
	c.lfsr = 0x7FFF
}

func (c *noise) clockLength() {
	if c.nrx4&0x40 != 0 && c.lengthCtr > 0 {
		c.lengthCtr--
		if c.lengthCtr == 0 {
			c.enabled = false
		}
	}
}

func (c *noise) clockEnvelope() {
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

func (c *noise) tick() {
	c.timer--
	if c.timer <= 0 {
		c.timer = c.period()
		fb := (c.lfsr ^ c.lfsr>>1) & 1
		c.lfsr = c.lfsr>>1 | fb<<14
		if c.nrx3&0x08 != 0 { // 7-bit mode feeds bit 6 too
			c.lfsr = c.lfsr&^0x40 | fb<<6
		}
	}
}

func (c *noise) output() int {
	if !c.enabled || !c.dacOn() {
		return 0
	}
	var d byte
	if c.lfsr&1 == 0 {
		d = c.vol
	}
	return int(d)*2 - 15
}

func (c *noise) powerOff() {
	*c = noise{}
}
