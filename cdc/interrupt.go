package cdc

import "github.com/ardnew/softcdc/pkg"

// SignalSink receives interrupt-character notifications. Deliver is called
// from the receive path and must not block.
type SignalSink interface {
	Deliver(token any)
}

// SignalFunc adapts a function to a SignalSink.
type SignalFunc func(token any)

// Deliver calls f(token).
func (f SignalFunc) Deliver(token any) { f(token) }

// NoInterrupt disables interrupt-character scanning.
const NoInterrupt = -1

// interruptScanner strips the configured character from received packets.
type interruptScanner struct {
	char  int
	token any
	sink  SignalSink
	stats *stats
}

func (s *interruptScanner) enabled() bool {
	return s.char >= 0 && s.char <= 0xFF
}

// strip removes every occurrence of the interrupt character from p in
// place, delivering one signal per occurrence. Bytes before the first
// occurrence are not moved; bytes after it shift left. Returns the number
// of bytes kept.
func (s *interruptScanner) strip(p []byte) int {
	c := byte(s.char)
	found := false
	kept := 0
	for _, b := range p {
		if b == c {
			found = true
			s.deliver()
			continue
		}
		if found {
			p[kept] = b
		}
		kept++
	}
	return kept
}

func (s *interruptScanner) deliver() {
	s.stats.signals.Add(1)
	pkg.LogDebug(pkg.ComponentRx, "interrupt character received", "char", s.char)
	if s.sink != nil {
		s.sink.Deliver(s.token)
	}
}
