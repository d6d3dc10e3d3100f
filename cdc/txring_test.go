package cdc

import (
	"bytes"
	"testing"
)

func newTestTxRing(capacity, maxPacket int) (*txRing, *stats) {
	st := &stats{}
	return newTxRing(capacity, maxPacket, 15, st), st
}

func putAll(r *txRing, p []byte) {
	for _, b := range p {
		r.put(b)
	}
}

func TestTxRingFlushOrder(t *testing.T) {
	r, st := newTestTxRing(16, 8)
	mt := newMockTransport(8)

	putAll(r, []byte("abc"))
	r.flush(mt)

	if got := r.state(); got != FlushInFlight {
		t.Errorf("state() = %v, want %v", got, FlushInFlight)
	}
	if got := r.backlog(); got != 3 {
		t.Errorf("backlog() = %d, want 3 while in flight", got)
	}

	putAll(r, []byte("de"))
	r.flush(mt)
	r.flush(mt)

	if got := mt.stream(); !bytes.Equal(got, []byte("abcde")) {
		t.Errorf("stream = %q, want %q", got, "abcde")
	}
	if got := len(mt.sent()); got != 2 {
		t.Errorf("hand-offs = %d, want 2", got)
	}
	if got := r.backlog(); got != 0 {
		t.Errorf("backlog() = %d, want 0", got)
	}
	if st.txBytes.Load() != 5 {
		t.Errorf("txBytes = %d, want 5", st.txBytes.Load())
	}
}

func TestTxRingWrapSplitsRun(t *testing.T) {
	r, _ := newTestTxRing(16, 64)
	mt := newMockTransport(64)

	putAll(r, bytes.Repeat([]byte{'x'}, 12))
	r.flush(mt)
	r.flush(mt)

	data := []byte("0123456789")
	putAll(r, data)
	r.flush(mt)
	r.flush(mt)
	r.flush(mt)

	sent := mt.sent()
	if len(sent) != 3 {
		t.Fatalf("hand-offs = %d, want 3", len(sent))
	}
	if !bytes.Equal(sent[1], data[:4]) {
		t.Errorf("first wrapped run = %q, want %q", sent[1], data[:4])
	}
	if !bytes.Equal(sent[2], data[4:]) {
		t.Errorf("second wrapped run = %q, want %q", sent[2], data[4:])
	}
}

func TestTxRingZeroLengthPacket(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		wantZLP  bool
		handoffs int
	}{
		{"short", 10, false, 1},
		{"one packet", 64, true, 2},
		{"two packets", 128, true, 2},
		{"packet and a bit", 65, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newTestTxRing(256, 64)
			mt := newMockTransport(64)

			putAll(r, make([]byte, tt.size))
			for range 4 {
				r.flush(mt)
			}

			sent := mt.sent()
			if len(sent) != tt.handoffs {
				t.Fatalf("hand-offs = %d, want %d", len(sent), tt.handoffs)
			}
			gotZLP := len(sent[len(sent)-1]) == 0
			if gotZLP != tt.wantZLP {
				t.Errorf("zero-length packet = %v, want %v", gotZLP, tt.wantZLP)
			}
			k := (tt.size + 63) / 64
			if tt.wantZLP {
				k++
			}
			if got := mt.packets(); got != k {
				t.Errorf("packets = %d, want %d", got, k)
			}
			if tt.wantZLP && st.txZeroLength.Load() != 1 {
				t.Errorf("txZeroLength = %d, want 1", st.txZeroLength.Load())
			}
		})
	}
}

func TestTxRingNoZeroLengthWhenMoreQueued(t *testing.T) {
	r, _ := newTestTxRing(256, 64)
	mt := newMockTransport(64)

	putAll(r, make([]byte, 64))
	r.flush(mt)
	putAll(r, []byte("tail"))
	r.flush(mt)
	r.flush(mt)

	sent := mt.sent()
	if len(sent) != 2 {
		t.Fatalf("hand-offs = %d, want 2", len(sent))
	}
	if string(sent[1]) != "tail" {
		t.Errorf("second hand-off = %q, want %q", sent[1], "tail")
	}
}

func TestTxRingBusyRetries(t *testing.T) {
	r, st := newTestTxRing(16, 8)
	mt := newMockTransport(8)
	mt.setBusy(true)

	putAll(r, []byte("hi"))
	r.flush(mt)

	if len(mt.sent()) != 0 {
		t.Fatal("busy transport accepted a hand-off")
	}
	if st.txBusy.Load() != 1 {
		t.Errorf("txBusy = %d, want 1", st.txBusy.Load())
	}
	if got := r.state(); got != FlushIdle {
		t.Errorf("state() = %v, want %v", got, FlushIdle)
	}

	mt.setBusy(false)
	r.flush(mt)
	if got := mt.stream(); string(got) != "hi" {
		t.Errorf("stream = %q, want %q", got, "hi")
	}
}

func TestTxRingForcedDrain(t *testing.T) {
	r, st := newTestTxRing(16, 8)
	mt := newMockTransport(8)
	mt.setPending(false, true)

	putAll(r, []byte("abc"))
	r.flush(mt)
	putAll(r, []byte("d"))

	for i := range 15 {
		r.flush(mt)
		if got := r.state(); got != FlushAwaitingCompletion {
			t.Fatalf("tick %d: state() = %v, want %v", i, got, FlushAwaitingCompletion)
		}
		if len(mt.sent()) != 1 {
			t.Fatalf("tick %d: queued data sent before completion", i)
		}
	}

	r.flush(mt)
	if st.txForcedDrains.Load() != 1 {
		t.Errorf("txForcedDrains = %d, want 1", st.txForcedDrains.Load())
	}
	if got := mt.stream(); string(got) != "abcd" {
		t.Errorf("stream = %q, want %q", got, "abcd")
	}
}

func TestTxRingFullAndHalfEmpty(t *testing.T) {
	r, _ := newTestTxRing(8, 8)

	if !r.halfEmpty() {
		t.Error("empty ring not half empty")
	}
	putAll(r, []byte("12345"))
	if r.halfEmpty() {
		t.Error("ring with 5 of 8 in use reported half empty")
	}
	putAll(r, []byte("67"))
	if !r.full() {
		t.Error("ring with capacity-1 bytes not full")
	}
	if got := r.backlog(); got != 7 {
		t.Errorf("backlog() = %d, want 7", got)
	}
}

func TestTxRingTake(t *testing.T) {
	r, _ := newTestTxRing(16, 8)
	putAll(r, []byte("hello"))

	if got := r.take(3); string(got) != "hel" {
		t.Errorf("take(3) = %q, want %q", got, "hel")
	}
	if _, n := r.run(); n != 2 {
		t.Errorf("run() length = %d, want 2", n)
	}
	if got := r.take(10); string(got) != "lo" {
		t.Errorf("take(10) = %q, want %q", got, "lo")
	}
	if got := r.backlog(); got != 5 {
		t.Errorf("backlog() = %d, want 5 before confirm", got)
	}
	r.confirm()
	if got := r.backlog(); got != 0 {
		t.Errorf("backlog() = %d, want 0 after confirm", got)
	}
}

func TestTxRingResetDuringPut(t *testing.T) {
	r, _ := newTestTxRing(16, 8)
	putAll(r, []byte("abcde"))

	// A producer loaded the cursor, then the flush context reset the ring
	// before the producer stored it back.
	w := r.write.Load()
	r.reset()
	if r.commit(w, 'f') {
		t.Error("commit() after reset = true, want false")
	}
	if got := r.backlog(); got != 0 {
		t.Errorf("backlog() = %d, want 0", got)
	}

	putAll(r, []byte("xy"))
	if _, n := r.run(); n != 2 || !bytes.Equal(r.buf[:2], []byte("xy")) {
		t.Errorf("run after reset = %d bytes %q, want 2 bytes \"xy\"", n, r.buf[:n])
	}
}

func TestFlushStateString(t *testing.T) {
	tests := []struct {
		state FlushState
		want  string
	}{
		{FlushIdle, "idle"},
		{FlushInFlight, "in-flight"},
		{FlushAwaitingCompletion, "awaiting-completion"},
		{FlushState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("FlushState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
