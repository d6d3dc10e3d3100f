package cdc

import "go.uber.org/atomic"

// Stats is a point-in-time copy of a channel's counters.
type Stats struct {
	TxHandoffs      uint64 // Runs accepted by the transport, including zero-length packets
	TxBytes         uint64 // Bytes accepted by the transport
	TxZeroLength    uint64 // Zero-length packets sent to terminate a transfer
	TxBusy          uint64 // Hand-offs declined because the transport was busy
	TxForcedDrains  uint64 // Hand-offs abandoned after the completion budget
	RxPackets       uint64 // OUT packets ingested in normal mode
	RxBytes         uint64 // Bytes accepted into the receive buffer
	RxOverflows     uint64 // Packets discarded for lack of headroom
	RxDroppedBytes  uint64 // Bytes in discarded packets
	Signals         uint64 // Interrupt characters stripped and delivered
	DebugCommands   uint64 // Debug command frames decoded
	DebugPacketsIn  uint64 // Debug data packets sent to the host
	DebugPacketsOut uint64 // Debug data packets received from the host
	ModeSwitches    uint64 // Transitions between normal and debug mode
}

// stats holds the live counters. Each field has a single writer context but
// may be read from anywhere.
type stats struct {
	txHandoffs      atomic.Uint64
	txBytes         atomic.Uint64
	txZeroLength    atomic.Uint64
	txBusy          atomic.Uint64
	txForcedDrains  atomic.Uint64
	rxPackets       atomic.Uint64
	rxBytes         atomic.Uint64
	rxOverflows     atomic.Uint64
	rxDroppedBytes  atomic.Uint64
	signals         atomic.Uint64
	debugCommands   atomic.Uint64
	debugPacketsIn  atomic.Uint64
	debugPacketsOut atomic.Uint64
	modeSwitches    atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		TxHandoffs:      s.txHandoffs.Load(),
		TxBytes:         s.txBytes.Load(),
		TxZeroLength:    s.txZeroLength.Load(),
		TxBusy:          s.txBusy.Load(),
		TxForcedDrains:  s.txForcedDrains.Load(),
		RxPackets:       s.rxPackets.Load(),
		RxBytes:         s.rxBytes.Load(),
		RxOverflows:     s.rxOverflows.Load(),
		RxDroppedBytes:  s.rxDroppedBytes.Load(),
		Signals:         s.signals.Load(),
		DebugCommands:   s.debugCommands.Load(),
		DebugPacketsIn:  s.debugPacketsIn.Load(),
		DebugPacketsOut: s.debugPacketsOut.Load(),
		ModeSwitches:    s.modeSwitches.Load(),
	}
}
