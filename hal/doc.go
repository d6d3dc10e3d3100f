// Package hal defines the transport contract between the softcdc channel
// core and a USB device controller.
//
// A controller exposes one bulk IN and one bulk OUT endpoint to the channel.
// The channel hands contiguous runs of buffered bytes to [Transport] for
// transmission, polls for completion, and points the controller at the
// region of its receive buffer where the next OUT packet should land.
// Controllers report events back through [EventHandler].
//
// Enumeration, descriptors, and endpoint configuration stay inside the
// controller; the channel never sees them.
//
// A named-pipe implementation for simulation and testing is available in
// [github.com/ardnew/softcdc/hal/fifo].
package hal
