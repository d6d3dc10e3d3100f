package cdc

import (
	"context"
	"io"
	"time"
)

// Port is an io.ReadWriter view of a Channel with a fixed per-call timeout.
type Port struct {
	ch      *Channel
	ctx     context.Context
	timeout time.Duration
}

// Port returns an io.ReadWriter bound to ctx. Each Read and Write waits at
// most timeout per byte.
func (c *Channel) Port(ctx context.Context, timeout time.Duration) *Port {
	return &Port{ch: c, ctx: ctx, timeout: timeout}
}

// Read reads whatever is buffered, waiting for at least one byte.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n := min(max(p.ch.Available(), 1), len(b))
	got, err := p.ch.Read(p.ctx, b[:n], p.timeout)
	if got > 0 {
		return got, nil
	}
	return 0, err
}

// Write queues b, returning a short count with an error on timeout.
func (p *Port) Write(b []byte) (int, error) {
	return p.ch.Write(p.ctx, b, p.timeout)
}

var _ io.ReadWriter = (*Port)(nil)
