package cdc

import (
	"go.uber.org/atomic"

	"github.com/ardnew/softcdc/pkg"
)

// rxRing is the host-to-device buffer. Packets land at buf[fill:], the
// application consumes from buf[read:fill].
//
// Cursor ownership:
//   - fill is advanced only by the ingestion context.
//   - read is advanced only by the consumer, except that ingestion resets
//     it to zero while the buffer is fully consumed.
//
// The consumer advances read with compare-and-swap so that a reset
// racing with a stale read is detected and retried.
type rxRing struct {
	buf       []byte
	maxPacket uint32

	fill atomic.Uint32
	read atomic.Uint32

	stats *stats
}

func newRxRing(capacity, maxPacket int, st *stats) *rxRing {
	return &rxRing{
		buf:       make([]byte, capacity),
		maxPacket: uint32(maxPacket),
		stats:     st,
	}
}

func (r *rxRing) reset() {
	r.fill.Store(0)
	r.read.Store(0)
}

// tail returns the region the transport should write the next packet into.
func (r *rxRing) tail() []byte {
	return r.buf[r.fill.Load():]
}

func (r *rxRing) available() int {
	rd := r.read.Load()
	fill := r.fill.Load()
	if rd >= fill {
		return 0
	}
	return int(fill - rd)
}

// get consumes one byte.
func (r *rxRing) get() (byte, bool) {
	for {
		rd := r.read.Load()
		if rd >= r.fill.Load() {
			return 0, false
		}
		b := r.buf[rd]
		if r.read.CompareAndSwap(rd, rd+1) {
			return b, true
		}
	}
}

// ingest accepts a packet of n bytes that the transport wrote at tail().
// Returns the number of bytes made available to the consumer.
func (r *rxRing) ingest(n int, scan *interruptScanner) int {
	fill := r.fill.Load()
	if room := len(r.buf) - int(fill); n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}

	// Everything before the new packet has been read: move the packet to
	// the front instead of appending behind dead bytes.
	if rd := r.read.Load(); rd > 0 && rd >= fill {
		r.fill.Store(0)
		r.read.Store(0)
		copy(r.buf, r.buf[fill:fill+uint32(n)])
		fill = 0
	}

	delta := n
	if scan.enabled() {
		delta = scan.strip(r.buf[fill : fill+uint32(n)])
	}

	r.stats.rxPackets.Add(1)

	// Keep room for one more full packet; otherwise the next reception
	// could run past the end of the buffer.
	if int(fill)+delta+int(r.maxPacket) > len(r.buf) {
		r.stats.rxOverflows.Add(1)
		r.stats.rxDroppedBytes.Add(uint64(delta))
		pkg.LogWarn(pkg.ComponentRx, "receive buffer full, packet dropped",
			"bytes", delta,
			"buffered", int(fill)-int(r.read.Load()),
			"error", pkg.ErrOverflow)
		return 0
	}

	r.fill.Store(fill + uint32(delta))
	r.stats.rxBytes.Add(uint64(delta))
	return delta
}
