package cdc

import (
	"encoding/binary"

	"github.com/ardnew/softcdc/hal"
	"github.com/ardnew/softcdc/pkg"
)

// DebugHandler implements the request/response protocol carried by the
// channel while the host has selected a debug baud rate. Payload formats
// are opaque to the channel.
//
// Methods are called from the transport's event context and must not block.
type DebugHandler interface {
	// Control receives a command frame. payload is whatever followed the
	// frame header in the same packet. length is the size of the data phase
	// that follows; request&DebugRequestIn selects its direction.
	Control(payload []byte, request uint8, length uint32)

	// Produce fills buf with the next device-to-host data.
	Produce(buf []byte)

	// Consume accepts one host-to-device data packet.
	Consume(data []byte)
}

type nopDebugHandler struct{}

func (nopDebugHandler) Control([]byte, uint8, uint32) {}
func (nopDebugHandler) Produce(buf []byte)            { clear(buf) }
func (nopDebugHandler) Consume([]byte)                {}

// debugChannel multiplexes framed debug transfers onto the endpoint pair.
type debugChannel struct {
	remaining  uint32
	dirIn      bool
	lastPacket uint32
	scratch    []byte
	handler    DebugHandler
	stats      *stats
}

func (d *debugChannel) reset() {
	d.remaining = 0
	d.dirIn = false
	d.lastPacket = 0
}

// receive handles one OUT packet.
func (d *debugChannel) receive(t hal.Transport, p []byte) {
	if d.remaining > 0 {
		d.handler.Consume(p)
		d.stats.debugPacketsOut.Add(1)
		if uint32(len(p)) >= d.remaining {
			d.remaining = 0
		} else {
			d.remaining -= uint32(len(p))
		}
		return
	}

	if len(p) < DebugCommandHeader || p[0] != DebugCommandMarker {
		pkg.LogDebug(pkg.ComponentDebug, "ignoring packet outside transfer",
			"bytes", len(p))
		return
	}

	request := p[1]
	length := binary.LittleEndian.Uint32(p[2:DebugCommandHeader])
	d.remaining = length
	d.dirIn = request&DebugRequestIn != 0
	d.stats.debugCommands.Add(1)
	pkg.LogDebug(pkg.ComponentDebug, "command",
		"request", request,
		"length", length)

	d.handler.Control(p[DebugCommandHeader:], request, length)

	if d.dirIn && d.remaining > 0 {
		d.send(t)
	}
}

// send pulls the next packet from the handler and hands it off.
func (d *debugChannel) send(t hal.Transport) {
	n := min(d.remaining, uint32(len(d.scratch)))
	pkt := d.scratch[:n]
	d.handler.Produce(pkt)
	d.lastPacket = n
	d.remaining -= n

	t.SetTransmitBuffer(pkt)
	if err := t.TransmitPacket(); err != nil {
		pkg.LogWarn(pkg.ComponentDebug, "data packet not accepted",
			"bytes", n,
			"status", pkg.StatusOf(err))
		return
	}
	d.stats.debugPacketsIn.Add(1)
}

// transmitComplete continues an IN data phase, or confirms ring data taken
// by the handler and terminates a transfer that ended on a packet boundary.
func (d *debugChannel) transmitComplete(t hal.Transport, tx *txRing) {
	if d.dirIn && d.remaining > 0 {
		d.send(t)
		return
	}

	tx.confirm()

	if d.lastPacket == uint32(len(d.scratch)) {
		d.lastPacket = 0
		t.SetTransmitBuffer(d.scratch[:0])
		if err := t.TransmitPacket(); err != nil {
			pkg.LogWarn(pkg.ComponentDebug, "zero-length packet not accepted",
				"status", pkg.StatusOf(err))
			return
		}
		d.stats.txZeroLength.Add(1)
	}
}
