// Package serial implements the link-cable port (SB/SC) and the device
// protocol a counterpart plugs in through.
package serial

import (
	"encoding/binary"
	"io"
)

// Device is the far end of the link cable. ExchangeByte is called once per
// completed transfer: it receives the byte this Game Boy shifted out and
// returns the byte the device shifted back in. A disconnected cable reads
// as 0xFF, which Port supplies when no device is attached.
type Device interface {
	ExchangeByte(send byte) byte
}

// Transfers clocked internally take 512 cycles per bit on DMG.
const cyclesPerTransfer = 8 * 512

// Port is the serial controller behind 0xFF01 (SB) and 0xFF02 (SC).
type Port struct {
	sb byte
	sc byte

	device Device

	transferring bool
	counter      int // cycles left on an internally clocked transfer
	extBits      int // bits shifted in on an externally clocked transfer

	irq func()
}

// New builds a port. irq is invoked when a transfer completes and must set
// the serial bit in IF.
func New(irq func()) *Port {
	return &Port{irq: irq}
}

// Attach plugs a device into the link cable. Passing nil disconnects it.
func (p *Port) Attach(d Device) { p.device = d }

func (p *Port) ReadSB() byte { return p.sb }

func (p *Port) WriteSB(v byte) { p.sb = v }

// ReadSC: only bit 7 (transfer in progress) and bit 0 (clock select) exist.
func (p *Port) ReadSC() byte {
	v := p.sc | 0x7E
	if p.transferring {
		v |= 0x80
	} else {
		v &^= 0x80
	}
	return v
}

func (p *Port) WriteSC(v byte) {
	p.sc = v
	if v&0x80 == 0 {
		p.transferring = false
		return
	}
	p.transferring = true
	if v&0x01 != 0 {
		p.counter = cyclesPerTransfer
	} else {
		// External clock: progress only comes from ClockExternal pulses.
		p.extBits = 0
	}
}

// Tick advances an internally clocked transfer by the given cycle count.
func (p *Port) Tick(cycles int) {
	if !p.transferring || p.sc&0x01 == 0 {
		return
	}
	p.counter -= cycles
	if p.counter <= 0 {
		p.complete()
	}
}

// ClockExternal delivers one externally generated bit clock. Eight pulses
// finish a transfer started with SC bit 0 clear. Without a counterpart
// driving the clock such a transfer never completes, as on hardware.
func (p *Port) ClockExternal() {
	if !p.transferring || p.sc&0x01 != 0 {
		return
	}
	p.extBits++
	if p.extBits >= 8 {
		p.complete()
	}
}

func (p *Port) complete() {
	received := byte(0xFF)
	if p.device != nil {
		received = p.device.ExchangeByte(p.sb)
	}
	p.sb = received
	p.transferring = false
	p.extBits = 0
	if p.irq != nil {
		p.irq()
	}
}

type portState struct {
	SB, SC       byte
	Transferring bool
	Counter      int32
	ExtBits      int32
}

func (p *Port) EncodeState(w io.Writer) error {
	s := portState{
		SB: p.sb, SC: p.sc,
		Transferring: p.transferring,
		Counter:      int32(p.counter),
		ExtBits:      int32(p.extBits),
	}
	return binary.Write(w, binary.BigEndian, &s)
}

func (p *Port) DecodeState(r io.Reader, version uint16) error {
	var s portState
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return err
	}
	p.sb, p.sc = s.SB, s.SC
	p.transferring = s.Transferring
	p.counter = int(s.Counter)
	p.extBits = int(s.ExtBits)
	return nil
}
