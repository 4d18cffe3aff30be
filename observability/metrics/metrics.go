// Package metrics provisions the node's Prometheus counters and gauges,
// grounded on original_source/crates/common/metrics/src/lib.rs's shape (a
// handful of named collectors registered once at startup) and promoting
// github.com/prometheus/client_golang from the teacher's indirect
// dependency set (pulled in transitively via libp2p) to direct use.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the node registers at startup.
type Metrics struct {
	HeadSlot               prometheus.Gauge
	JustifiedSlot          prometheus.Gauge
	FinalizedSlot          prometheus.Gauge
	BlocksProcessedTotal   prometheus.Counter
	AttestationsProcessed  prometheus.Counter
	ConnectedPeers         prometheus.Gauge
}

// New registers every collector against the default registry.
func New() *Metrics {
	return &Metrics{
		HeadSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gean_head_slot",
			Help: "Slot of the current fork-choice head.",
		}),
		JustifiedSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gean_justified_slot",
			Help: "Slot of the latest justified checkpoint.",
		}),
		FinalizedSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gean_finalized_slot",
			Help: "Slot of the latest finalized checkpoint.",
		}),
		BlocksProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gean_blocks_processed_total",
			Help: "Count of blocks successfully processed by on_block.",
		}),
		AttestationsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gean_attestations_processed_total",
			Help: "Count of attestations successfully processed by on_attestation.",
		}),
		ConnectedPeers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gean_connected_peers",
			Help: "Number of peers currently in the Connected state.",
		}),
	}
}

// Handler exposes the default registry over HTTP for -metrics-addr.
func Handler() http.Handler {
	return promhttp.Handler()
}
