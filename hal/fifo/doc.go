// Package fifo implements a [hal.Transport] over named pipes (FIFOs).
//
// This transport is intended for simulation and testing. A device process
// and a host process exchange control requests and bulk packets through a
// directory of pipes, which lets a [cdc.Channel] run end to end without USB
// hardware.
//
// # Layout
//
//	/tmp/cdc/                  # Directory shared by both sides
//	├── connection             # Presence signal (device → host)
//	├── control                # Class requests (host → device)
//	├── control_response       # Request responses (device → host)
//	├── ep_out                 # Bulk OUT packets (host → device)
//	└── ep_in                  # Bulk IN packets (device → host)
//
// Every message on a pipe is framed as [type, len_lo, len_hi, payload...].
// A control request payload is [request, value_lo, value_hi, length_lo,
// length_hi, data...], where length is the size of the response buffer the
// host expects.
//
// # Packets
//
// A transmit hand-off is split into packets of at most MaxPacketSize bytes.
// A zero-length hand-off sends one zero-length packet. The transport stays
// busy until every packet is written, then calls
// [hal.EventHandler.OnTransmitComplete].
//
// # Usage
//
//	t := fifo.New("/tmp/cdc", 64)
//	if err := t.Open(); err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	ch, _ := cdc.New(t, cdc.DefaultConfig())
//	ch.Init()
//	go ch.Run(ctx)
//	return t.Run(ctx, ch)
//
// The host side opens the same directory with [OpenHost].
//
// [cdc.Channel]: github.com/ardnew/softcdc/cdc.Channel
package fifo
