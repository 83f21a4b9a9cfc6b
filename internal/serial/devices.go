package serial

import (
	"io"
	"time"
)

// WriterDevice captures everything the emulated program sends and answers
// with a disconnected-looking 0xFF. Blargg's test ROMs print their results
// over the link cable, so wiring one of these to os.Stdout shows them.
type WriterDevice struct {
	W io.Writer
}

func (d *WriterDevice) ExchangeByte(send byte) byte {
	if d.W != nil {
		d.W.Write([]byte{send})
	}
	return 0xFF
}

// EchoDevice answers every byte with itself. Handy for loopback tests.
type EchoDevice struct{}

func (EchoDevice) ExchangeByte(send byte) byte { return send }

// TimeoutDevice wraps a device whose ExchangeByte may block, such as one
// backed by a network peer. If the wrapped call does not answer within the
// timeout the exchange falls back to 0xFF so the emulated machine keeps
// running instead of hanging mid-transfer, and the device is treated as
// disconnected from then on.
type TimeoutDevice struct {
	Inner   Device
	Timeout time.Duration

	// OnLost, if set, fires once when an exchange first times out.
	OnLost func()

	lost bool
}

func (d *TimeoutDevice) ExchangeByte(send byte) byte {
	if d.lost {
		return 0xFF
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	done := make(chan byte, 1)
	go func() { done <- d.Inner.ExchangeByte(send) }()
	select {
	case v := <-done:
		return v
	case <-time.After(timeout):
		d.lost = true
		if d.OnLost != nil {
			d.OnLost()
		}
		return 0xFF
	}
}
