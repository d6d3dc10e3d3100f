package cdc

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softcdc/pkg"
)

type debugCommand struct {
	payload []byte
	request uint8
	length  uint32
}

// recordingHandler records commands and OUT data, and produces IN data
// from a counter, or from the transmit ring for request 0x82.
type recordingHandler struct {
	ch       *Channel
	commands []debugCommand
	consumed []byte
	fromRing bool
	next     byte
}

func (h *recordingHandler) Control(payload []byte, request uint8, length uint32) {
	h.commands = append(h.commands, debugCommand{
		payload: append([]byte{}, payload...),
		request: request,
		length:  length,
	})
	h.fromRing = request == 0x82
}

func (h *recordingHandler) Produce(buf []byte) {
	if h.fromRing {
		n := copy(buf, h.ch.DebugTxTake(len(buf)))
		clear(buf[n:])
		return
	}
	for i := range buf {
		buf[i] = h.next
		h.next++
	}
}

func (h *recordingHandler) Consume(data []byte) {
	h.consumed = append(h.consumed, data...)
}

func frame(request uint8, length uint32, payload ...byte) []byte {
	f := []byte{DebugCommandMarker, request}
	f = append(f, lengthLE(length)...)
	return append(f, payload...)
}

func newDebugChannel(t *testing.T) (*Channel, *mockTransport, *recordingHandler) {
	t.Helper()
	ch, mt := newTestChannel(t, DefaultConfig())
	h := &recordingHandler{ch: ch}
	ch.SetDebugHandler(h)
	connect(ch)
	setBaud(ch, DebugBaudFast)
	return ch, mt, h
}

func TestDebugCommandDecode(t *testing.T) {
	_, mt, h := newDebugChannel(t)
	ch := h.ch

	mt.deliver(t, ch, frame(0x01, 3, 'x', 'y'))
	if len(h.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(h.commands))
	}
	cmd := h.commands[0]
	if cmd.request != 0x01 || cmd.length != 3 || string(cmd.payload) != "xy" {
		t.Errorf("command = %+v", cmd)
	}

	mt.deliver(t, ch, []byte("ab"))
	mt.deliver(t, ch, []byte("c"))
	if string(h.consumed) != "abc" {
		t.Errorf("consumed = %q, want %q", h.consumed, "abc")
	}

	// Back in command phase: data without a marker is ignored.
	mt.deliver(t, ch, []byte("stray"))
	if len(h.commands) != 1 || string(h.consumed) != "abc" {
		t.Errorf("stray packet handled: commands = %d, consumed = %q", len(h.commands), h.consumed)
	}

	st := ch.Stats()
	if st.DebugCommands != 1 || st.DebugPacketsOut != 2 {
		t.Errorf("DebugCommands = %d, DebugPacketsOut = %d, want 1, 2", st.DebugCommands, st.DebugPacketsOut)
	}
	if st.RxPackets != 0 {
		t.Errorf("RxPackets = %d, want 0 in debug mode", st.RxPackets)
	}
}

func TestDebugShortFrameIgnored(t *testing.T) {
	_, mt, h := newDebugChannel(t)

	mt.deliver(t, h.ch, []byte{DebugCommandMarker, 0x01, 0x00})
	if len(h.commands) != 0 {
		t.Errorf("commands = %d, want 0", len(h.commands))
	}
}

func TestDebugOutSaturates(t *testing.T) {
	_, mt, h := newDebugChannel(t)

	mt.deliver(t, h.ch, frame(0x01, 3))
	mt.deliver(t, h.ch, []byte("abcde"))
	mt.deliver(t, h.ch, frame(0x02, 0))

	if string(h.consumed) != "abcde" {
		t.Errorf("consumed = %q, want %q", h.consumed, "abcde")
	}
	if len(h.commands) != 2 {
		t.Errorf("commands = %d, want next frame decoded", len(h.commands))
	}
}

func TestDebugInPhase(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
		want   []int
	}{
		{"short", 10, []int{10}},
		{"partial last", 130, []int{64, 64, 2}},
		{"packet boundary", 128, []int{64, 64, 0}},
		{"single full", 64, []int{64, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, mt, h := newDebugChannel(t)

			mt.deliver(t, ch, frame(0x81, tt.length))
			for range len(tt.want) + 2 {
				ch.OnTransmitComplete()
			}

			sent := mt.sent()
			if got := sizes(sent); !equalInts(got, tt.want) {
				t.Fatalf("packet sizes = %v, want %v", got, tt.want)
			}
			var data []byte
			for _, p := range sent {
				data = append(data, p...)
			}
			for i, b := range data {
				if b != byte(i) {
					t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
				}
			}
			if h.next != byte(tt.length) {
				t.Errorf("produced %d bytes, want %d", h.next, tt.length)
			}
		})
	}
}

func TestDebugDrainsTransmitRing(t *testing.T) {
	ch, mt, _ := newDebugChannel(t)

	if _, err := ch.Write(context.Background(), []byte("console"), time.Second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	ch.Tick()
	if len(mt.sent()) != 0 {
		t.Fatal("Tick() flushed the ring in debug mode")
	}
	if ch.DebugTxPending() != 7 {
		t.Errorf("DebugTxPending() = %d, want 7", ch.DebugTxPending())
	}

	mt.deliver(t, ch, frame(0x82, 7))
	if got := mt.stream(); string(got) != "console" {
		t.Errorf("stream = %q, want %q", got, "console")
	}
	if ch.TxBacklog() != 7 {
		t.Errorf("TxBacklog() = %d before completion, want 7", ch.TxBacklog())
	}

	ch.OnTransmitComplete()
	if ch.TxBacklog() != 0 {
		t.Errorf("TxBacklog() = %d after completion, want 0", ch.TxBacklog())
	}
}

func TestDebugModeHidesReceiveData(t *testing.T) {
	ch, mt, _ := newDebugChannel(t)

	mt.deliver(t, ch, frame(0x01, 0))
	if ch.Available() != 0 {
		t.Errorf("Available() = %d, want 0", ch.Available())
	}
	if _, err := ch.Read(context.Background(), make([]byte, 4), time.Second); !errors.Is(err, pkg.ErrDebugMode) {
		t.Errorf("Read() error = %v, want %v", err, pkg.ErrDebugMode)
	}
}

func TestDebugBusyTransport(t *testing.T) {
	ch, mt, _ := newDebugChannel(t)
	mt.setBusy(true)

	mt.deliver(t, ch, frame(0x81, 8))
	if len(mt.sent()) != 0 {
		t.Error("busy transport accepted a packet")
	}
	if got := ch.Stats().DebugPacketsIn; got != 0 {
		t.Errorf("DebugPacketsIn = %d, want 0", got)
	}
}

func TestNilDebugHandler(t *testing.T) {
	ch, mt := newTestChannel(t, DefaultConfig())
	ch.SetDebugHandler(nil)
	setBaud(ch, DebugBaudSlow)

	mt.deliver(t, ch, frame(0x81, 4))
	sent := mt.sent()
	if len(sent) != 1 || !bytes.Equal(sent[0], make([]byte, 4)) {
		t.Errorf("sent = %v, want four zero bytes", sent)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
