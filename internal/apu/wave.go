package apu

// wave is channel 3: 32 four-bit samples played from FF30-FF3F.
type wave struct {
	nrx0, nrx1, nrx2, nrx3, nrx4 byte

	ram [16]byte

	enabled   bool
	lengthCtr int
	timer     int
	pos       int
}

func (c *wave) dacOn() bool { return c.nrx0&0x80 != 0 }

func (c *wave) freq() uint16 {
	return uint16(c.nrx3) | uint16(c.nrx4&7)<<8
}

func (c *wave) period() int { return int(2048-c.freq()) * 2 }

func (c *wave) writeReg(reg int, v byte) {
	switch reg {
	case 0:
		c.nrx0 = v
		if !c.dacOn() {
			c.enabled = false
		}
	case 1:
		c.nrx1 = v
		c.lengthCtr = 256 - int(v)
	case 2:
		c.nrx2 = v
	case 3:
		c.nrx3 = v
	case 4:
		c.nrx4 = v
		if v&0x80 != 0 {
			c.trigger()
		}
	}
}

func (c *wave) trigger() {
	c.enabled = c.dacOn()
	if c.lengthCtr == 0 {
		c.lengthCtr = 256
	}
	c.timer = c.period()
	c.pos = 0
}

func (c *wave) clockLength() {
	if c.nrx4&0x40 != 0 && c.lengthCtr > 0 {
		c.lengthCtr--
		if c.lengthCtr == 0 {
			c.enabled = false
		}
	}
}

func (c *wave) tick() {
	c.timer--
	if c.timer <= 0 {
		c.timer = c.period()
		c.pos = (c.pos + 1) & 31
	}
}

func (c *wave) sample() byte {
	b := c.ram[c.pos/2]
	if c.pos&1 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

func (c *wave) output() int {
	if !c.enabled || !c.dacOn() {
		return 0
	}
	s := c.sample()
	switch c.nrx2 >> 5 & 3 {
	case 0:
		s = 0
	case 2:
		s >>= 1
	case 3:
		s >>= 2
	}
	return int(s)*2 - 15
}

func (c *wave) powerOff() {
	ram := c.ram // wave RAM survives power cycles
	*c = wave{ram: ram}
}
