package serial

import (
	"bytes"
	"testing"
	"time"
)

func TestPort_InternalClock_Disconnected(t *testing.T) {
	fired := false
	p := New(func() { fired = true })

	p.WriteSB(0x42)
	p.WriteSC(0x81)
	if p.ReadSC()&0x80 == 0 {
		t.Fatal("SC bit7 should read set during transfer")
	}

	p.Tick(cyclesPerTransfer - 4)
	if fired {
		t.Fatal("transfer completed early")
	}
	p.Tick(4)
	if !fired {
		t.Fatal("transfer did not complete after 4096 cycles")
	}
	if got := p.ReadSB(); got != 0xFF {
		t.Fatalf("disconnected cable should shift in FF, got %02X", got)
	}
	if p.ReadSC()&0x80 != 0 {
		t.Fatal("SC bit7 should clear on completion")
	}
}

func TestPort_FastClockBitUnwired(t *testing.T) {
	// SC bit 1 selects the fast clock on CGB only. On DMG it is unwired:
	// it reads back 1 like the other unused bits and never shortens the
	// 4096-cycle transfer.
	fired := false
	p := New(func() { fired = true })

	p.WriteSB(0x42)
	p.WriteSC(0x83)
	if p.ReadSC()&0x02 == 0 {
		t.Fatal("SC bit1 should read 1 on DMG")
	}
	p.Tick(256)
	if fired {
		t.Fatal("transfer completed on the CGB fast-clock budget")
	}
	p.Tick(cyclesPerTransfer - 256)
	if !fired {
		t.Fatal("transfer did not complete after 4096 cycles")
	}
}

func TestPort_EchoLeavesSBUnchanged(t *testing.T) {
	p := New(nil)
	p.Attach(EchoDevice{})

	p.WriteSB(0x5A)
	p.WriteSC(0x81)
	p.Tick(cyclesPerTransfer)
	if got := p.ReadSB(); got != 0x5A {
		t.Fatalf("echo exchange changed SB: got %02X want 5A", got)
	}
}

func TestPort_ExternalClock_NeedsPulses(t *testing.T) {
	fired := false
	p := New(func() { fired = true })
	p.Attach(EchoDevice{})

	p.WriteSB(0x10)
	p.WriteSC(0x80) // external clock

	// Internal ticking must not advance an externally clocked transfer.
	p.Tick(10 * cyclesPerTransfer)
	if fired {
		t.Fatal("external-clock transfer advanced by internal ticks")
	}

	for i := 0; i < 7; i++ {
		p.ClockExternal()
	}
	if fired {
		t.Fatal("completed before 8 pulses")
	}
	p.ClockExternal()
	if !fired || p.ReadSC()&0x80 != 0 {
		t.Fatalf("external transfer did not complete: fired=%v SC=%02X", fired, p.ReadSC())
	}
}

func TestWriterDevice_CapturesOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(nil)
	p.Attach(&WriterDevice{W: &buf})

	for _, b := range []byte("ok") {
		p.WriteSB(b)
		p.WriteSC(0x81)
		p.Tick(cyclesPerTransfer)
	}
	if buf.String() != "ok" {
		t.Fatalf("captured %q want %q", buf.String(), "ok")
	}
	if p.ReadSB() != 0xFF {
		t.Fatalf("writer device should answer FF, got %02X", p.ReadSB())
	}
}

type slowDevice struct{ delay time.Duration }

func (d slowDevice) ExchangeByte(send byte) byte {
	time.Sleep(d.delay)
	return send
}

func TestTimeoutDevice_FallsBack(t *testing.T) {
	lost := 0
	d := &TimeoutDevice{
		Inner:   slowDevice{delay: time.Second},
		Timeout: 5 * time.Millisecond,
		OnLost:  func() { lost++ },
	}
	if got := d.ExchangeByte(0x31); got != 0xFF {
		t.Fatalf("timed-out exchange got %02X want FF", got)
	}
	if lost != 1 {
		t.Fatalf("OnLost fired %d times, want 1", lost)
	}
	// Once lost, the wrapped device is never consulted again.
	if got := d.ExchangeByte(0x42); got != 0xFF {
		t.Fatalf("exchange after loss got %02X want FF", got)
	}
	if lost != 1 {
		t.Fatalf("OnLost fired %d times after second exchange, want 1", lost)
	}

	fast := &TimeoutDevice{Inner: EchoDevice{}, Timeout: time.Second}
	if got := fast.ExchangeByte(0x31); got != 0x31 {
		t.Fatalf("fast exchange got %02X want 31", got)
	}
}

func TestPort_StateRoundTrip(t *testing.T) {
	p := New(nil)
	p.WriteSB(0x77)
	p.WriteSC(0x81)
	p.Tick(1000)

	var buf bytes.Buffer
	if err := p.EncodeState(&buf); err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	p2 := New(nil)
	if err := p2.DecodeState(&buf, 2); err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	p2.Tick(cyclesPerTransfer - 1000)
	if p2.ReadSB() != 0xFF || p2.ReadSC()&0x80 != 0 {
		t.Fatalf("restored transfer did not finish: SB=%02X SC=%02X", p2.ReadSB(), p2.ReadSC())
	}
}
