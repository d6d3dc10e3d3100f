// Package cdc implements the buffering, flow control, and protocol
// multiplexing that turn a USB CDC bulk endpoint pair into a reliable byte
// stream, plus an alternate framed debug channel on the same endpoints.
//
// # Architecture
//
// A [Channel] owns all state:
//
//   - Connection state: DTR-driven connected flag, negotiated baud rate, mode
//   - Transmit ring: circular buffer drained by a periodic flush state machine
//   - Receive buffer: linear buffer filled packet by packet, with compaction
//     and interrupt-character stripping
//   - Debug channel: command frames and data phases used when the host
//     selects [DebugBaudSlow] or [DebugBaudFast]
//
// # Timing Domains
//
// Three contexts meet in a Channel:
//
//   - Foreground callers: [Channel.Write], [Channel.WriteAlways], [Channel.Read]
//   - The flush timer: [Channel.Tick], usually driven by [Channel.Run]
//   - Transport events: [Channel.OnReceive], [Channel.OnTransmitComplete],
//     [Channel.HandleControl]
//
// Timer and transport events are serialized with each other. Foreground
// calls share state with them through atomic cursors with a single writer
// each, so a blocked writer never holds up the transport.
//
// Callbacks installed with SetOn* run in event context. They must not
// block or call the Channel's setters.
//
// # Packet Boundaries
//
// A bulk transfer ends with a short packet. When the last run handed to
// the transport is a non-zero multiple of the packet size, the next tick
// sends a zero-length packet so the host releases the data.
//
// # Usage
//
//	ch, err := cdc.New(transport, cdc.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	ch.SetInterrupt(0x03, nil)
//	ch.SetSignalSink(cdc.SignalFunc(func(any) { cancel() }))
//	ch.Init()
//	go ch.Run(ctx)
//
//	n, err := ch.Write(ctx, []byte("hello\r\n"), time.Second)
package cdc
