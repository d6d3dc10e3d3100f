package cdc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/ardnew/softcdc/hal"
	"github.com/ardnew/softcdc/pkg"
)

// Mode selects which protocol the endpoint pair carries.
type Mode uint32

// Channel modes.
const (
	ModeNormal Mode = iota // Byte stream
	ModeDebug              // Framed debug protocol
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// pollInterval bounds how long a blocked caller sleeps without an event
// before re-checking its condition and the clock.
const pollInterval = time.Millisecond

// Channel turns a packet transport into a buffered byte stream, and into a
// framed debug channel when the host selects a debug baud rate.
//
// Two kinds of context touch a Channel. Event context covers the transport
// callbacks (HandleControl, OnReceive, OnTransmitComplete) and the flush
// timer (Tick); these are serialized with each other. Foreground context
// covers Read, Write, and the queries; these share state with event context
// only through atomic cursors and never wait on the event lock while
// moving data.
type Channel struct {
	cfg       Config
	transport hal.Transport
	clock     Clock
	maxPacket int

	isr  sync.Mutex // event context
	txmu sync.Mutex // producers
	rxmu sync.Mutex // consumers

	connected    atomic.Bool
	mode         atomic.Uint32
	baud         atomic.Uint32
	flushEnabled atomic.Bool
	controlState uint16

	tx   *txRing
	rx   *rxRing
	dbg  debugChannel
	intr interruptScanner

	onLineCodingChange   func(*LineCoding)
	onControlStateChange func(dtr, rts bool)
	onBreak              func(millis uint16)
	onModeChange         func(Mode)

	wake    chan struct{}
	running atomic.Bool
	stats   stats
}

// New creates a channel on top of t. The packet size comes from
// cfg.MaxPacketSize, or from the transport when that is zero.
func New(t hal.Transport, cfg Config) (*Channel, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", pkg.ErrInvalidParameter)
	}
	maxPacket := cfg.MaxPacketSize
	if maxPacket == 0 {
		maxPacket = t.MaxPacketSize()
	}
	if err := cfg.Validate(maxPacket); err != nil {
		return nil, err
	}

	c := &Channel{
		cfg:       cfg,
		transport: t,
		clock:     SystemClock(),
		maxPacket: maxPacket,
		wake:      make(chan struct{}, 1),
	}
	c.tx = newTxRing(cfg.TxCapacity, maxPacket, cfg.FlushWaitTicks, &c.stats)
	c.rx = newRxRing(cfg.RxCapacity, maxPacket, &c.stats)
	c.dbg = debugChannel{
		scratch: make([]byte, maxPacket),
		handler: nopDebugHandler{},
		stats:   &c.stats,
	}
	c.intr = interruptScanner{char: NoInterrupt, stats: &c.stats}
	c.baud.Store(DefaultBaudRate)
	c.flushEnabled.Store(true)
	return c, nil
}

// SetClock replaces the millisecond clock used for timeouts. Call before
// any blocking operation.
func (c *Channel) SetClock(clock Clock) {
	c.clock = clock
}

// SetOnLineCodingChange sets the callback for line coding changes.
func (c *Channel) SetOnLineCodingChange(cb func(*LineCoding)) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.onLineCodingChange = cb
}

// SetOnControlStateChange sets the callback for control line state changes.
func (c *Channel) SetOnControlStateChange(cb func(dtr, rts bool)) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.onControlStateChange = cb
}

// SetOnBreak sets the callback for break signaling.
func (c *Channel) SetOnBreak(cb func(millis uint16)) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.onBreak = cb
}

// SetOnModeChange sets the callback invoked when the channel switches
// between normal and debug mode.
func (c *Channel) SetOnModeChange(cb func(Mode)) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.onModeChange = cb
}

// SetInterrupt configures the interrupt character. Each occurrence in
// received data is removed and token is delivered to the signal sink.
// Pass NoInterrupt to disable scanning.
func (c *Channel) SetInterrupt(char int, token any) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.intr.char = char
	c.intr.token = token
}

// SetSignalSink sets the receiver of interrupt-character signals.
func (c *Channel) SetSignalSink(sink SignalSink) {
	c.isr.Lock()
	defer c.isr.Unlock()
	c.intr.sink = sink
}

// SetDebugHandler sets the handler for the debug protocol. A nil handler
// accepts and discards everything and produces zeros.
func (c *Channel) SetDebugHandler(h DebugHandler) {
	c.isr.Lock()
	defer c.isr.Unlock()
	if h == nil {
		h = nopDebugHandler{}
	}
	c.dbg.handler = h
}

// Init installs the channel buffers with the transport and arms reception.
// The interrupt configuration is left alone so that it may be set before
// the host enumerates.
func (c *Channel) Init() {
	c.isr.Lock()
	c.tx.reset()
	c.rx.reset()
	c.dbg.reset()
	c.transport.SetTransmitBuffer(c.tx.buf[:0])
	c.transport.SetReceiveBuffer(c.rx.buf)
	c.transport.ArmReceive()
	c.isr.Unlock()

	pkg.LogInfo(pkg.ComponentChannel, "channel initialized",
		"txCapacity", len(c.tx.buf),
		"rxCapacity", len(c.rx.buf),
		"maxPacket", c.maxPacket)
}

// DeInit returns the channel to its empty, disconnected state. Buffers are
// kept for the next Init.
func (c *Channel) DeInit() {
	c.isr.Lock()
	c.connected.Store(false)
	c.controlState = 0
	c.mode.Store(uint32(ModeNormal))
	c.baud.Store(DefaultBaudRate)
	c.flushEnabled.Store(true)
	c.tx.reset()
	c.rx.reset()
	c.dbg.reset()
	c.transport.SetReceiveBuffer(c.rx.buf)
	c.isr.Unlock()
	c.notify()

	pkg.LogInfo(pkg.ComponentChannel, "channel deinitialized")
}

// Run drives Tick from a timer every Config.TickInterval until ctx is
// cancelled.
func (c *Channel) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer c.running.Store(false)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.flushEnabled.Load() {
				c.Tick()
			}
		}
	}
}

// Tick runs one step of the transmit flush state machine. It does nothing
// in debug mode or while no host is connected.
func (c *Channel) Tick() {
	c.isr.Lock()
	if Mode(c.mode.Load()) == ModeNormal && c.connected.Load() && c.flushEnabled.Load() {
		c.tx.flush(c.transport)
	}
	c.isr.Unlock()
	c.notify()
}

// OnTransmitComplete implements hal.EventHandler.
func (c *Channel) OnTransmitComplete() {
	c.isr.Lock()
	if Mode(c.mode.Load()) == ModeDebug {
		c.dbg.transmitComplete(c.transport, c.tx)
	}
	c.isr.Unlock()
	c.notify()
}

// OnReceive implements hal.EventHandler.
func (c *Channel) OnReceive(n int) {
	c.isr.Lock()
	if Mode(c.mode.Load()) == ModeDebug {
		c.dbg.receive(c.transport, c.rx.buf[:min(n, len(c.rx.buf))])
		c.transport.SetReceiveBuffer(c.rx.buf)
	} else {
		c.rx.ingest(n, &c.intr)
		c.transport.SetReceiveBuffer(c.rx.tail())
	}
	c.transport.ArmReceive()
	c.isr.Unlock()
	c.notify()
}

// HandleControl implements hal.EventHandler. Every request is
// acknowledged; unsupported ones have no effect.
func (c *Channel) HandleControl(request uint8, value uint16, data []byte) int {
	c.isr.Lock()
	n := c.handleControl(request, value, data)
	c.isr.Unlock()
	c.notify()
	return n
}

func (c *Channel) handleControl(request uint8, value uint16, data []byte) int {
	switch request {
	case RequestSetLineCoding:
		lc := fixedLineCoding(c.baud.Load())
		if !ParseLineCoding(data, &lc) {
			pkg.LogDebug(pkg.ComponentControl, "short line coding ignored",
				"bytes", len(data))
			return 0
		}
		c.baud.Store(lc.DTERate)
		if c.cfg.isDebugBaud(lc.DTERate) {
			c.setMode(ModeDebug)
		} else {
			c.setMode(ModeNormal)
		}
		pkg.LogDebug(pkg.ComponentControl, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType,
			"stopBits", lc.CharFormat)
		if c.onLineCodingChange != nil {
			c.onLineCodingChange(&lc)
		}
		return 0

	case RequestGetLineCoding:
		lc := fixedLineCoding(c.baud.Load())
		return lc.MarshalTo(data)

	case RequestSetControlLineState:
		c.controlState = value
		dtr := value&ControlLineDTR != 0
		rts := value&ControlLineRTS != 0
		if c.connected.Swap(dtr) != dtr {
			pkg.LogInfo(pkg.ComponentControl, "host connection changed",
				"connected", dtr)
		}
		if c.onControlStateChange != nil {
			c.onControlStateChange(dtr, rts)
		}
		return 0

	case RequestSendBreak:
		pkg.LogDebug(pkg.ComponentControl, "break signaled",
			"duration_ms", value)
		if c.onBreak != nil {
			c.onBreak(value)
		}
		return 0

	default:
		pkg.LogDebug(pkg.ComponentControl, "request acknowledged",
			"request", requestName(request),
			"code", request)
		return 0
	}
}

// setMode resets the transmit side on every line coding change, and the
// receive side as well when the mode actually flips.
func (c *Channel) setMode(m Mode) {
	prev := Mode(c.mode.Swap(uint32(m)))
	c.tx.reset()
	c.dbg.reset()
	c.flushEnabled.Store(m == ModeNormal)
	if prev == m {
		return
	}

	c.rx.reset()
	c.transport.SetReceiveBuffer(c.rx.buf)
	c.stats.modeSwitches.Add(1)
	pkg.LogInfo(pkg.ComponentChannel, "mode changed",
		"from", prev,
		"to", m)
	if c.onModeChange != nil {
		c.onModeChange(m)
	}
}

// notify wakes one blocked caller.
func (c *Channel) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// wait blocks until an event arrives, the poll interval passes, or ctx is
// done.
func (c *Channel) wait(ctx context.Context) error {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.wake:
	case <-timer.C:
	}
	return nil
}

// timeoutMillis converts a timeout to clock ticks, saturating at the
// largest representable wait.
func timeoutMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// Write queues p for transmission. For each byte it waits, up to timeout,
// for a connected host and free space. On timeout it returns the count
// queued so far with pkg.ErrTimeout, which also matches pkg.ErrDisconnected
// if no host was connected; the queued bytes are still sent.
func (c *Channel) Write(ctx context.Context, p []byte, timeout time.Duration) (int, error) {
	limit := timeoutMillis(timeout)

	c.txmu.Lock()
	defer c.txmu.Unlock()

	for i, b := range p {
		start := c.clock.Millis()
		for !c.connected.Load() || c.tx.full() {
			if elapsed(c.clock.Millis(), start) >= limit {
				if !c.connected.Load() {
					return i, fmt.Errorf("%w: %w", pkg.ErrTimeout, pkg.ErrDisconnected)
				}
				return i, pkg.ErrTimeout
			}
			if err := c.wait(ctx); err != nil {
				return i, err
			}
		}
		c.tx.put(b)
	}
	return len(p), nil
}

// WriteAlways queues p regardless of connection state. While a host is
// connected it waits up to Config.WriteAlwaysTimeout per byte for a full
// ring to drain; after that, or with no host, it overwrites. Overwriting a
// full ring discards what was queued. Meant for best-effort diagnostics.
func (c *Channel) WriteAlways(p []byte) {
	limit := timeoutMillis(c.cfg.WriteAlwaysTimeout)

	c.txmu.Lock()
	defer c.txmu.Unlock()

	for _, b := range p {
		if c.connected.Load() {
			start := c.clock.Millis()
			for c.tx.full() && elapsed(c.clock.Millis(), start) <= limit {
				_ = c.wait(context.Background())
			}
		}
		c.tx.put(b)
	}
}

// Read fills p with received bytes. For each byte it waits up to timeout
// for data; on timeout it returns the count read so far with
// pkg.ErrTimeout. In debug mode it returns pkg.ErrDebugMode at once.
func (c *Channel) Read(ctx context.Context, p []byte, timeout time.Duration) (int, error) {
	if c.Mode() == ModeDebug {
		return 0, pkg.ErrDebugMode
	}
	limit := timeoutMillis(timeout)

	c.rxmu.Lock()
	defer c.rxmu.Unlock()

	for i := range p {
		start := c.clock.Millis()
		for {
			b, ok := c.rx.get()
			if ok {
				p[i] = b
				break
			}
			if elapsed(c.clock.Millis(), start) >= limit {
				return i, pkg.ErrTimeout
			}
			if err := c.wait(ctx); err != nil {
				return i, err
			}
		}
	}
	return len(p), nil
}

// Available returns the number of received bytes ready to read.
func (c *Channel) Available() int {
	if c.Mode() == ModeDebug {
		return 0
	}
	return c.rx.available()
}

// TxBacklog returns the bytes queued for transmission and not yet
// confirmed delivered.
func (c *Channel) TxBacklog() int {
	return c.tx.backlog()
}

// TxHalfEmpty reports whether at most half the transmit ring is in use.
func (c *Channel) TxHalfEmpty() bool {
	return c.tx.halfEmpty()
}

// DebugTxPending returns the length of the next contiguous run of queued
// transmit data. Only call from a DebugHandler method.
func (c *Channel) DebugTxPending() int {
	_, n := c.tx.run()
	return int(n)
}

// DebugTxTake removes up to n bytes of queued transmit data for the debug
// handler to forward itself. The space is reclaimed on the next transmit
// completion. Only call from a DebugHandler method; the returned slice is
// valid until then.
func (c *Channel) DebugTxTake(n int) []byte {
	return c.tx.take(n)
}

// Connected reports whether the host has asserted DTR.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Mode returns the current channel mode.
func (c *Channel) Mode() Mode {
	return Mode(c.mode.Load())
}

// BaudRate returns the last rate set by the host.
func (c *Channel) BaudRate() uint32 {
	return c.baud.Load()
}

// LineCoding returns the line coding reported to the host.
func (c *Channel) LineCoding() LineCoding {
	return fixedLineCoding(c.baud.Load())
}

// DTR returns the current DTR (Data Terminal Ready) state.
func (c *Channel) DTR() bool {
	c.isr.Lock()
	defer c.isr.Unlock()
	return c.controlState&ControlLineDTR != 0
}

// RTS returns the current RTS (Request To Send) state.
func (c *Channel) RTS() bool {
	c.isr.Lock()
	defer c.isr.Unlock()
	return c.controlState&ControlLineRTS != 0
}

// FlushEnabled reports whether the periodic flush source is enabled.
func (c *Channel) FlushEnabled() bool {
	return c.flushEnabled.Load()
}

// FlushState returns the position of the transmit hand-off cycle.
func (c *Channel) FlushState() FlushState {
	c.isr.Lock()
	defer c.isr.Unlock()
	return c.tx.state()
}

// MaxPacketSize returns the packet size used for framing decisions.
func (c *Channel) MaxPacketSize() int {
	return c.maxPacket
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	return c.stats.snapshot()
}

// Compile-time interface check
var _ hal.EventHandler = (*Channel)(nil)
