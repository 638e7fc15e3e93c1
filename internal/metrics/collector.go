// Package metrics exposes Prometheus instrumentation for the switch
// fabric, generalized from the teacher's BFD session/packet collector
// (_examples/dantte-lp-gobfd/internal/metrics/collector.go) to
// switch/port/class/link labels.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "govswitch"
	subsystem = "fabric"
)

// Label names for fabric metrics.
const (
	labelSwitchID = "switch_id"
	labelPort     = "port"
	labelClass    = "class"
	labelLinkID   = "link_id"
)

// Collector holds all switch-fabric Prometheus metrics.
type Collector struct {
	// SwitchesActive tracks the number of currently registered switch
	// instances.
	SwitchesActive prometheus.Gauge

	// RxPackets/TxPackets/Drops count frames per switch.
	RxPackets *prometheus.CounterVec
	TxPackets *prometheus.CounterVec
	Drops     *prometheus.CounterVec
	TTLExpired *prometheus.CounterVec

	// QueueDepth/QueueDropped are per-port, per-class priority queue gauges
	// and drop counters (spec.md §4.C).
	QueueDepth   *prometheus.GaugeVec
	QueueDropped *prometheus.CounterVec

	// LinkTxPackets/LinkRxPackets/LinkLossDrops count virtual-link endpoint
	// traffic (spec.md §4.D).
	LinkTxPackets *prometheus.CounterVec
	LinkRxPackets *prometheus.CounterVec
	LinkLossDrops *prometheus.CounterVec
}

// NewCollector creates a Collector with all fabric metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SwitchesActive,
		c.RxPackets,
		c.TxPackets,
		c.Drops,
		c.TTLExpired,
		c.QueueDepth,
		c.QueueDropped,
		c.LinkTxPackets,
		c.LinkRxPackets,
		c.LinkLossDrops,
	)

	return c
}

func newMetrics() *Collector {
	switchLabels := []string{labelSwitchID}
	queueLabels := []string{labelSwitchID, labelPort, labelClass}
	linkLabels := []string{labelLinkID}

	return &Collector{
		SwitchesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "switches_active",
			Help:      "Number of currently registered switch instances.",
		}),

		RxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rx_packets_total",
			Help:      "Total frames received by a switch instance.",
		}, switchLabels),

		TxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tx_packets_total",
			Help:      "Total frames transmitted by a switch instance.",
		}, switchLabels),

		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drops_total",
			Help:      "Total frames dropped by a switch instance, all causes.",
		}, switchLabels),

		TTLExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ttl_expired_total",
			Help:      "Total frames dropped due to TTL/hop-limit expiry.",
		}, switchLabels),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current depth of a per-port, per-class priority ring.",
		}, queueLabels),

		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_dropped_total",
			Help:      "Total frames dropped on enqueue to a full priority ring.",
		}, queueLabels),

		LinkTxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "link_tx_packets_total",
			Help:      "Total frames transmitted by a virtual-link endpoint.",
		}, linkLabels),

		LinkRxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "link_rx_packets_total",
			Help:      "Total frames received by a virtual-link endpoint.",
		}, linkLabels),

		LinkLossDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "link_loss_drops_total",
			Help:      "Total frames dropped by simulated loss on a virtual-link endpoint.",
		}, linkLabels),
	}
}

// ObserveQueueDepth sets the queue_depth gauge for one port/class pair.
func (c *Collector) ObserveQueueDepth(switchID, port int, class uint8, depth int) {
	c.QueueDepth.WithLabelValues(strconv.Itoa(switchID), strconv.Itoa(port), strconv.Itoa(int(class))).Set(float64(depth))
}

// IncQueueDropped increments the queue_dropped_total counter for one
// port/class pair.
func (c *Collector) IncQueueDropped(switchID, port int, class uint8) {
	c.QueueDropped.WithLabelValues(strconv.Itoa(switchID), strconv.Itoa(port), strconv.Itoa(int(class))).Inc()
}
