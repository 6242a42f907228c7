package cpuarch

import "testing"

func TestStallsTotalNoRemoteOrLocalTraffic(t *testing.T) {
	e := Estimator{L3Factor: 1.0}
	d := Deltas{100, 50, 0, 0}
	if got := e.StallsTotal(d); got != 0 {
		t.Errorf("StallsTotal with no LLC-miss traffic = %d, want 0", got)
	}
}

func TestStallsTotalAllMiss(t *testing.T) {
	e := Estimator{L3Factor: 1.0}
	// hit == 0, all L2 stall attributed to memory.
	d := Deltas{1000, 0, 40, 60}
	got := e.StallsTotal(d)
	if got != 1000 {
		t.Errorf("StallsTotal all-miss = %d, want 1000", got)
	}
}

func TestStallsTotalExperimentalL3Factor(t *testing.T) {
	low := Estimator{L3Factor: 1.0}
	high := Estimator{L3Factor: 7.0}
	d := Deltas{1000, 500, 10, 10}

	if high.StallsTotal(d) <= low.StallsTotal(d) {
		t.Errorf("higher L3Factor should attribute more stall cycles to memory: low=%d high=%d",
			low.StallsTotal(d), high.StallsTotal(d))
	}
}

func TestStallsRemoteSplitsProportionally(t *testing.T) {
	e := Estimator{L3Factor: 1.0}
	d := Deltas{1000, 0, 50, 50}

	remote := e.StallsRemote(d, 200, 100)
	total := e.StallsTotal(d)
	if remote == 0 || remote >= total {
		t.Errorf("StallsRemote = %d, want strictly between 0 and total %d", remote, total)
	}
}

func TestStallsRemoteZeroWhenTotalZero(t *testing.T) {
	e := Estimator{L3Factor: 1.0}
	d := Deltas{100, 50, 0, 0}
	if got := e.StallsRemote(d, 200, 100); got != 0 {
		t.Errorf("StallsRemote with zero total = %d, want 0", got)
	}
}
