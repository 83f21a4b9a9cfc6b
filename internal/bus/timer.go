package bus

// timerInput is the signal TIMA counts: the TAC-selected divider bit,
// gated by the TAC enable. TIMA increments on its falling edges, which is
// why DIV and TAC writes can produce spurious ticks.
func (b *Bus) timerInput() bool {
	if b.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0:
		bit = 9
	case 1:
		bit = 3
	case 2:
		bit = 5
	default:
		bit = 7
	}
	return b.divInternal&(1<<bit) != 0
}

func (b *Bus) tickTimer() {
	if b.reloadPending {
		b.reloadCnt--
		if b.reloadCnt == 0 {
			b.reloadPending = false
			b.tima = b.tma
			b.ifReg |= IntTimer
		}
	}
	old := b.timerInput()
	b.divInternal++
	if old && !b.timerInput() {
		b.incTIMA()
	}
}

func (b *Bus) incTIMA() {
	if b.reloadPending {
		return
	}
	b.tima++
	if b.tima == 0 {
		b.reloadPending = true
		b.reloadCnt = 4
	}
}

// writeDIV resets the divider. If the selected bit was high the reset is a
// falling edge and TIMA ticks.
func (b *Bus) writeDIV() {
	if b.timerInput() {
		b.incTIMA()
	}
	b.divInternal = 0
}

func (b *Bus) writeTIMA(v byte) {
	// A write during the reload delay cancels the reload and the interrupt.
	b.reloadPending = false
	b.tima = v
}

func (b *Bus) writeTAC(v byte) {
	old := b.timerInput()
	b.tac = v & 0x07
	if old && !b.timerInput() {
		b.incTIMA()
	}
}
