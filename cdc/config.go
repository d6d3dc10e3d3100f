package cdc

import (
	"fmt"
	"time"

	"github.com/ardnew/softcdc/pkg"
)

// Config holds the tunables of a Channel. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// TxCapacity is the transmit ring size in bytes. Must be a power of two.
	TxCapacity int `mapstructure:"tx_capacity"`

	// RxCapacity is the receive buffer size in bytes. Must hold at least
	// two maximum-size packets.
	RxCapacity int `mapstructure:"rx_capacity"`

	// MaxPacketSize overrides the transport's bulk packet size when non-zero.
	MaxPacketSize int `mapstructure:"max_packet_size"`

	// DebugBaudSlow and DebugBaudFast select debug mode when negotiated.
	DebugBaudSlow uint32 `mapstructure:"debug_baud_slow"`
	DebugBaudFast uint32 `mapstructure:"debug_baud_fast"`

	// FlushWaitTicks bounds how many ticks a hand-off may stay unconfirmed
	// before its buffer space is reclaimed anyway.
	FlushWaitTicks uint8 `mapstructure:"flush_wait_ticks"`

	// TickInterval is the period of the flush timer driven by Run.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// WriteAlwaysTimeout bounds how long WriteAlways waits for a full ring
	// to drain while a host is connected.
	WriteAlwaysTimeout time.Duration `mapstructure:"write_always_timeout"`
}

// DefaultConfig returns the configuration used by the reference firmware:
// 512-byte rings, 10 ms ticks, and a 15-tick (150 ms) completion budget.
func DefaultConfig() Config {
	return Config{
		TxCapacity:         512,
		RxCapacity:         512,
		DebugBaudSlow:      DebugBaudSlow,
		DebugBaudFast:      DebugBaudFast,
		FlushWaitTicks:     15,
		TickInterval:       10 * time.Millisecond,
		WriteAlwaysTimeout: 500 * time.Millisecond,
	}
}

// Validate checks the configuration against a transport packet size.
func (c *Config) Validate(maxPacket int) error {
	if maxPacket <= 0 {
		return fmt.Errorf("%w: max packet size %d", pkg.ErrInvalidParameter, maxPacket)
	}
	if c.TxCapacity < 2 || c.TxCapacity&(c.TxCapacity-1) != 0 {
		return fmt.Errorf("%w: tx capacity %d is not a power of two", pkg.ErrInvalidParameter, c.TxCapacity)
	}
	if c.TxCapacity > 1<<16 {
		return fmt.Errorf("%w: tx capacity %d exceeds 65536", pkg.ErrInvalidParameter, c.TxCapacity)
	}
	if c.RxCapacity < 2*maxPacket {
		return fmt.Errorf("%w: rx capacity %d below two packets of %d", pkg.ErrInvalidParameter, c.RxCapacity, maxPacket)
	}
	if c.FlushWaitTicks == 0 {
		return fmt.Errorf("%w: flush wait ticks must be positive", pkg.ErrInvalidParameter)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval %v", pkg.ErrInvalidParameter, c.TickInterval)
	}
	return nil
}

// isDebugBaud reports whether baud selects debug mode.
func (c *Config) isDebugBaud(baud uint32) bool {
	return baud != 0 && (baud == c.DebugBaudSlow || baud == c.DebugBaudFast)
}
