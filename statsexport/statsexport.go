// Package statsexport publishes the per-thread accounting the epoch
// engine accumulates as Prometheus metrics.
package statsexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/memlat/epoch"
)

// Exporter holds the Prometheus collectors this daemon publishes.
//
// epochCount and stallCyclesTotal are modeled as gauges rather than
// counters: Observe is called by a periodic scrape loop that reads
// epoch.Stats' already-cumulative fields and republishes their current
// value, not a per-scrape delta, so Set (not Add) is the correct
// operation.
type Exporter struct {
	epochCount       *prometheus.GaugeVec
	stallCyclesTotal *prometheus.GaugeVec
	overheadCycles   *prometheus.GaugeVec
	remoteDRAMBytes  *prometheus.GaugeVec
	localDRAMBytes   *prometheus.GaugeVec
	epochDurationUs  *prometheus.HistogramVec
}

// NewExporter registers the epoch-engine metrics against reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		epochCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memlat",
			Name:      "epochs_closed_total",
			Help:      "Number of epochs closed per thread.",
		}, []string{"thread_id"}),
		stallCyclesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memlat",
			Name:      "stall_cycles_total",
			Help:      "Cumulative memory-attributable stall cycles observed per thread.",
		}, []string{"thread_id"}),
		overheadCycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memlat",
			Name:      "overhead_cycles",
			Help:      "Unrepaid epoch-engine overhead cycles currently owed per thread.",
		}, []string{"thread_id"}),
		remoteDRAMBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memlat",
			Name:      "remote_dram_bytes_total",
			Help:      "Bytes serviced from remote DRAM per thread, derived from line-fill counts.",
		}, []string{"thread_id"}),
		localDRAMBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memlat",
			Name:      "local_dram_bytes_total",
			Help:      "Bytes serviced from local DRAM per thread, derived from line-fill counts.",
		}, []string{"thread_id"}),
		epochDurationUs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memlat",
			Name:      "epoch_duration_us",
			Help:      "Observed wall-clock duration between consecutive epoch closes.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"thread_id"}),
	}

	reg.MustRegister(e.epochCount, e.stallCyclesTotal, e.overheadCycles,
		e.remoteDRAMBytes, e.localDRAMBytes, e.epochDurationUs)
	return e
}

// Observe records the current snapshot of a thread's state against
// its labeled series. cmd/memlatd calls it from a periodic scrape loop,
// independent of when the thread's epochs close.
func (e *Exporter) Observe(threadLabel string, ts *epoch.State) {
	e.overheadCycles.WithLabelValues(threadLabel).Set(float64(ts.OverheadCycles))
	if !ts.Stats.Enabled {
		return
	}
	e.epochCount.WithLabelValues(threadLabel).Set(float64(ts.Stats.EpochCount))
	e.stallCyclesTotal.WithLabelValues(threadLabel).Set(float64(ts.Stats.StallCyclesTotal))
	e.remoteDRAMBytes.WithLabelValues(threadLabel).Set(float64(ts.Stats.RemoteDRAMBytes))
	e.localDRAMBytes.WithLabelValues(threadLabel).Set(float64(ts.Stats.LocalDRAMBytes))
}

// ObserveEpochDuration records one epoch's wall-clock span.
func (e *Exporter) ObserveEpochDuration(threadLabel string, durationUs float64) {
	e.epochDurationUs.WithLabelValues(threadLabel).Observe(durationUs)
}

// Handler returns the HTTP handler serving this Exporter's registry in
// the Prometheus text exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
