package cdc

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a channel's counters and buffer levels to Prometheus.
type Collector struct {
	ch *Channel

	txHandoffs     *prometheus.Desc
	txBytes        *prometheus.Desc
	txZeroLength   *prometheus.Desc
	txBusy         *prometheus.Desc
	txForcedDrains *prometheus.Desc
	txBacklog      *prometheus.Desc
	rxPackets      *prometheus.Desc
	rxBytes        *prometheus.Desc
	rxOverflows    *prometheus.Desc
	rxDropped      *prometheus.Desc
	rxAvailable    *prometheus.Desc
	signals        *prometheus.Desc
	debugCommands  *prometheus.Desc
	debugPackets   *prometheus.Desc
	modeSwitches   *prometheus.Desc
	connected      *prometheus.Desc
	debugMode      *prometheus.Desc
}

// NewCollector returns a collector for ch. Register it with a
// prometheus.Registerer; wrap the registerer to add labels or a prefix.
func NewCollector(ch *Channel) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("cdc", "", name), help, labels, nil)
	}
	return &Collector{
		ch:             ch,
		txHandoffs:     desc("tx_handoffs_total", "Runs accepted by the transport."),
		txBytes:        desc("tx_bytes_total", "Bytes accepted by the transport."),
		txZeroLength:   desc("tx_zero_length_packets_total", "Zero-length packets sent to terminate a transfer."),
		txBusy:         desc("tx_busy_total", "Hand-offs declined by a busy transport."),
		txForcedDrains: desc("tx_forced_drains_total", "Hand-offs reclaimed without confirmed completion."),
		txBacklog:      desc("tx_backlog_bytes", "Bytes queued and not yet confirmed delivered."),
		rxPackets:      desc("rx_packets_total", "Packets ingested in normal mode."),
		rxBytes:        desc("rx_bytes_total", "Bytes accepted into the receive buffer."),
		rxOverflows:    desc("rx_overflows_total", "Packets discarded for lack of headroom."),
		rxDropped:      desc("rx_dropped_bytes_total", "Bytes in discarded packets."),
		rxAvailable:    desc("rx_available_bytes", "Received bytes waiting to be read."),
		signals:        desc("interrupt_signals_total", "Interrupt characters stripped and delivered."),
		debugCommands:  desc("debug_commands_total", "Debug command frames decoded."),
		debugPackets:   desc("debug_packets_total", "Debug data packets by direction.", "direction"),
		modeSwitches:   desc("mode_switches_total", "Transitions between normal and debug mode."),
		connected:      desc("connected", "Whether the host has asserted DTR."),
		debugMode:      desc("debug_mode", "Whether the channel carries the debug protocol."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.txHandoffs, c.txBytes, c.txZeroLength, c.txBusy, c.txForcedDrains, c.txBacklog,
		c.rxPackets, c.rxBytes, c.rxOverflows, c.rxDropped, c.rxAvailable,
		c.signals, c.debugCommands, c.debugPackets, c.modeSwitches,
		c.connected, c.debugMode,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.ch.Stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	flag := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	counter(c.txHandoffs, s.TxHandoffs)
	counter(c.txBytes, s.TxBytes)
	counter(c.txZeroLength, s.TxZeroLength)
	counter(c.txBusy, s.TxBusy)
	counter(c.txForcedDrains, s.TxForcedDrains)
	gauge(c.txBacklog, float64(c.ch.TxBacklog()))
	counter(c.rxPackets, s.RxPackets)
	counter(c.rxBytes, s.RxBytes)
	counter(c.rxOverflows, s.RxOverflows)
	counter(c.rxDropped, s.RxDroppedBytes)
	gauge(c.rxAvailable, float64(c.ch.Available()))
	counter(c.signals, s.Signals)
	counter(c.debugCommands, s.DebugCommands)
	counter(c.debugPackets, s.DebugPacketsIn, "in")
	counter(c.debugPackets, s.DebugPacketsOut, "out")
	counter(c.modeSwitches, s.ModeSwitches)
	gauge(c.connected, flag(c.ch.Connected()))
	gauge(c.debugMode, flag(c.ch.Mode() == ModeDebug))
}

var _ prometheus.Collector = (*Collector)(nil)
