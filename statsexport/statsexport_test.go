package statsexport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/memlat/epoch"
)

func TestObserveExportsStallAndOverheadMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewExporter(reg)

	ts := &epoch.State{
		ThreadID:       3,
		OverheadCycles: 42,
		Stats: epoch.Stats{
			Enabled:          true,
			EpochCount:       1,
			StallCyclesTotal: 1000,
		},
	}
	exp.Observe("3", ts)
	exp.ObserveEpochDuration("3", 250)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`memlat_overhead_cycles{thread_id="3"} 42`,
		`memlat_stall_cycles_total{thread_id="3"} 1000`,
		`memlat_epochs_closed_total{thread_id="3"} 1`,
		`memlat_epoch_duration_us_sum{thread_id="3"} 250`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q; got:\n%s", want, body)
		}
	}
}

func TestObserveSkipsCountersWhenStatsDisabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewExporter(reg)

	ts := &epoch.State{ThreadID: 1, OverheadCycles: 7}
	exp.Observe("1", ts)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	if strings.Contains(body, `memlat_epochs_closed_total{thread_id="1"}`) {
		t.Errorf("expected no epoch-count series when stats disabled; got:\n%s", body)
	}
	if !strings.Contains(body, `memlat_overhead_cycles{thread_id="1"} 7`) {
		t.Errorf("expected overhead gauge regardless of stats flag; got:\n%s", body)
	}
}
