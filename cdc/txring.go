package cdc

import (
	"go.uber.org/atomic"

	"github.com/ardnew/softcdc/hal"
	"github.com/ardnew/softcdc/pkg"
)

// FlushState describes where the transmit ring is in its hand-off cycle.
type FlushState uint8

// Flush states.
const (
	FlushIdle               FlushState = iota // Nothing handed off and unconfirmed
	FlushInFlight                             // A run was just handed to the transport
	FlushAwaitingCompletion                   // A run is overdue; ticks are being counted
)

// String returns the state name.
func (s FlushState) String() string {
	switch s {
	case FlushIdle:
		return "idle"
	case FlushInFlight:
		return "in-flight"
	case FlushAwaitingCompletion:
		return "awaiting-completion"
	default:
		return "unknown"
	}
}

// txRing is the device-to-host circular buffer.
//
// Cursor ownership:
//   - write is advanced only by the producer (Write, WriteAlways).
//   - shadow is advanced by the flush context when a run is handed off.
//   - read is advanced by the flush context once a hand-off is confirmed.
//
// read..shadow is in flight, shadow..write is queued. One slot is always
// left empty so that write == read means empty.
type txRing struct {
	buf       []byte
	mask      uint32
	maxPacket uint32
	maxWait   uint8

	write  atomic.Uint32
	read   atomic.Uint32
	shadow atomic.Uint32

	needEmpty bool
	waitTicks uint8

	stats *stats
}

func newTxRing(capacity, maxPacket int, maxWait uint8, st *stats) *txRing {
	return &txRing{
		buf:       make([]byte, capacity),
		mask:      uint32(capacity - 1),
		maxPacket: uint32(maxPacket),
		maxWait:   maxWait,
		stats:     st,
	}
}

// reset empties the ring. Only call from the flush context.
func (r *txRing) reset() {
	r.write.Store(0)
	r.read.Store(0)
	r.shadow.Store(0)
	r.needEmpty = false
	r.waitTicks = 0
}

func (r *txRing) full() bool {
	return (r.write.Load()+1)&r.mask == r.read.Load()
}

// put stores one byte and advances the write cursor. The caller checks for
// space; storing into a full ring discards everything queued.
func (r *txRing) put(b byte) {
	r.commit(r.write.Load(), b)
}

// commit stores b at w and advances the write cursor from w. It fails if
// the cursor moved since w was loaded, so a reset from the flush context
// is never undone by a producer caught mid-store.
func (r *txRing) commit(w uint32, b byte) bool {
	r.buf[w] = b
	return r.write.CompareAndSwap(w, (w+1)&r.mask)
}

// backlog returns the bytes written but not yet confirmed drained.
func (r *txRing) backlog() int {
	return int((r.write.Load() - r.read.Load()) & r.mask)
}

func (r *txRing) halfEmpty() bool {
	return r.backlog() <= len(r.buf)/2
}

// run returns the contiguous queued span starting at shadow. A span that
// wraps is cut at the end of the buffer.
func (r *txRing) run() (start, n uint32) {
	start = r.shadow.Load()
	write := r.write.Load()
	if start > write {
		return start, uint32(len(r.buf)) - start
	}
	return start, write - start
}

// take hands up to n bytes of the current run to the caller and advances
// shadow past them. Used by debug handlers that drain the ring themselves.
func (r *txRing) take(n int) []byte {
	start, avail := r.run()
	if n < 0 {
		n = 0
	}
	if uint32(n) > avail {
		n = int(avail)
	}
	r.shadow.Store((start + uint32(n)) & r.mask)
	return r.buf[start : start+uint32(n)]
}

// confirm marks everything handed off as drained.
func (r *txRing) confirm() {
	if shadow := r.shadow.Load(); r.read.Load() != shadow {
		r.read.Store(shadow)
	}
}

func (r *txRing) state() FlushState {
	switch {
	case r.read.Load() == r.shadow.Load():
		return FlushIdle
	case r.waitTicks == 0:
		return FlushInFlight
	default:
		return FlushAwaitingCompletion
	}
}

// flush runs one step of the hand-off state machine.
func (r *txRing) flush(t hal.Transport) {
	if r.read.Load() == r.write.Load() && !r.needEmpty {
		return
	}

	if shadow := r.shadow.Load(); r.read.Load() != shadow {
		pending := t.InTransferPending()
		if pending && r.waitTicks < r.maxWait {
			r.waitTicks++
			return
		}
		if pending {
			// The host may never have received this run. Reclaiming the
			// space keeps the writer from stalling on a dead host.
			r.stats.txForcedDrains.Add(1)
			pkg.LogWarn(pkg.ComponentTx, "hand-off not confirmed, reclaiming",
				"bytes", (shadow-r.read.Load())&r.mask,
				"ticks", r.waitTicks,
				"status", pkg.HandoffDropped)
		}
		r.read.Store(shadow)
		r.waitTicks = 0
	}

	start, n := r.run()
	if n == 0 && !r.needEmpty {
		return
	}

	t.SetTransmitBuffer(r.buf[start : start+n])
	if err := t.TransmitPacket(); err != nil {
		r.stats.txBusy.Add(1)
		pkg.LogDebug(pkg.ComponentTx, "hand-off declined",
			"bytes", n,
			"status", pkg.StatusOf(err))
		return
	}

	shadow := (start + n) & r.mask
	r.shadow.Store(shadow)
	r.waitTicks = 0

	// A transfer ending on a packet boundary is held by the host until a
	// short packet arrives; owe a zero-length one.
	r.needEmpty = n > 0 && n%r.maxPacket == 0 && shadow == r.write.Load()

	r.stats.txHandoffs.Add(1)
	r.stats.txBytes.Add(uint64(n))
	if n == 0 {
		r.stats.txZeroLength.Add(1)
	}
	pkg.LogDebug(pkg.ComponentTx, "run handed off",
		"offset", start,
		"bytes", n,
		"needEmpty", r.needEmpty)
}
