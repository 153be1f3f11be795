// Package metrics exposes the plugin's prometheus instrumentation. All
// collectors register on the default registry; Serve optionally exposes
// them over HTTP when the config names a listen address.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// BlocksEmitted counts slots fully emitted to the pipes.
	BlocksEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "firehose_geyser",
		Name:      "blocks_emitted_total",
		Help:      "Slots emitted to the downstream pipes.",
	})

	// LastSentSlot tracks the most recently emitted slot number.
	LastSentSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "firehose_geyser",
		Name:      "last_sent_slot",
		Help:      "Most recently emitted slot.",
	})

	// AccountWritesDropped counts account writes suppressed by the dedup
	// rules, labelled by reason.
	AccountWritesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firehose_geyser",
		Name:      "account_writes_dropped_total",
		Help:      "Account writes dropped before buffering.",
	}, []string{"reason"})

	// RPCFailures counts failed chain RPC lookups, labelled by call.
	RPCFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firehose_geyser",
		Name:      "rpc_failures_total",
		Help:      "Failed chain RPC lookups.",
	}, []string{"call"})

	// BufferedSlots tracks slots currently holding buffered account writes.
	BufferedSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "firehose_geyser",
		Name:      "buffered_slots",
		Help:      "Slots with buffered account writes.",
	})
)

// Serve exposes /metrics on addr until the returned shutdown func runs.
// An empty addr disables the listener and returns a no-op shutdown.
func Serve(addr string, log *logrus.Entry) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics listener failed")
		}
	}()

	return func() { _ = srv.Close() }
}
