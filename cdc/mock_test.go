package cdc

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/ardnew/softcdc/pkg"
)

// =============================================================================
// Mock Transport for Testing
// =============================================================================

// mockTransport implements hal.Transport. Every accepted hand-off is
// recorded whole; packets() splits them the way the bus would.
type mockTransport struct {
	mu        sync.Mutex
	maxPacket int

	txBuf    []byte
	handoffs [][]byte
	busy     bool
	pending  bool // InTransferPending result
	hold     bool // leave pending set after each hand-off

	rxBuf []byte
	armed int
}

func newMockTransport(maxPacket int) *mockTransport {
	return &mockTransport{maxPacket: maxPacket}
}

func (m *mockTransport) SetTransmitBuffer(buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txBuf = buf
}

func (m *mockTransport) TransmitPacket() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return fmt.Errorf("mock: %w", pkg.ErrBusy)
	}
	m.handoffs = append(m.handoffs, append([]byte{}, m.txBuf...))
	m.pending = m.hold
	return nil
}

func (m *mockTransport) SetReceiveBuffer(buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxBuf = buf
}

func (m *mockTransport) ArmReceive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed++
}

func (m *mockTransport) InTransferPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *mockTransport) MaxPacketSize() int {
	return m.maxPacket
}

func (m *mockTransport) setBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
}

func (m *mockTransport) setPending(pending, hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pending
	m.hold = hold
}

// sent returns a copy of the recorded hand-offs.
func (m *mockTransport) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.handoffs))
	copy(out, m.handoffs)
	return out
}

// stream returns all transmitted bytes in order.
func (m *mockTransport) stream() []byte {
	var out []byte
	for _, h := range m.sent() {
		out = append(out, h...)
	}
	return out
}

// packets returns the number of bus packets the hand-offs amount to.
func (m *mockTransport) packets() int {
	n := 0
	for _, h := range m.sent() {
		if len(h) == 0 {
			n++
			continue
		}
		n += (len(h) + m.maxPacket - 1) / m.maxPacket
	}
	return n
}

// deliver writes one OUT packet into the armed buffer and reports it.
func (m *mockTransport) deliver(t *testing.T, ch *Channel, data []byte) {
	t.Helper()
	if len(data) > m.maxPacket {
		t.Fatalf("packet of %d bytes exceeds max packet %d", len(data), m.maxPacket)
	}
	m.mu.Lock()
	n := copy(m.rxBuf, data)
	m.mu.Unlock()
	ch.OnReceive(n)
}

// =============================================================================
// Helpers
// =============================================================================

func newTestChannel(t *testing.T, cfg Config) (*Channel, *mockTransport) {
	t.Helper()
	mt := newMockTransport(64)
	ch, err := New(mt, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ch.Init()
	return ch, mt
}

func connect(ch *Channel) {
	ch.HandleControl(RequestSetControlLineState, ControlLineDTR, nil)
}

func setBaud(ch *Channel, baud uint32) {
	data := make([]byte, LineCodingSize)
	binary.LittleEndian.PutUint32(data, baud)
	data[6] = 8
	ch.HandleControl(RequestSetLineCoding, 0, data)
}

// stepClock returns a clock that advances by step on every read.
func stepClock(start, step uint32) (Clock, func() uint32) {
	var mu sync.Mutex
	now := start
	calls := uint32(0)
	clock := ClockFunc(func() uint32 {
		mu.Lock()
		defer mu.Unlock()
		v := now
		now += step
		calls++
		return v
	})
	return clock, func() uint32 {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
}
