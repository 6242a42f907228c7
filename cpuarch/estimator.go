package cpuarch

// Deltas holds one snapshot of the fixed four-slot counter bank, in
// semantic slot order:
//
//	0: L2 miss stall cycles
//	1: LLC-hit-but-serviced
//	2: LLC miss serviced from remote DRAM
//	3: LLC miss serviced from local DRAM
type Deltas [4]uint64

func (d Deltas) l2() uint64  { return d[0] }
func (d Deltas) hit() uint64 { return d[1] }
func (d Deltas) rem() uint64 { return d[2] }
func (d Deltas) loc() uint64 { return d[3] }

// Estimator is the pair of pure functions a microarch Descriptor carries
// to turn counter deltas into stall cycles attributable to memory.
type Estimator struct {
	// L3Factor weights LLC-miss traffic against LLC hits in the stall
	// attribution formula. 1.0 for Sandy/Ivy/Haswell-era descriptors;
	// 7.0 (experimental) for Sapphire Rapids.
	L3Factor float64
}

// StallsTotal computes
//
//	stalls_total = l2 * (L3_FACTOR*(rem+loc)) / (L3_FACTOR*(rem+loc) + hit)
//
// returning 0 when rem == loc == 0 or the denominator is 0.
func (e Estimator) StallsTotal(d Deltas) uint64 {
	rem, loc := d.rem(), d.loc()
	if rem == 0 && loc == 0 {
		return 0
	}

	num := e.L3Factor * float64(rem+loc)
	den := num + float64(d.hit())
	if den == 0 {
		return 0
	}

	return uint64(float64(d.l2()) * (num / den))
}

// StallsRemote computes
//
//	stalls_remote = stalls_total * (rem*hw_remote) / (rem*hw_remote + loc*hw_local)
//
// returning 0 when the denominator is 0. hwRemoteLatencyNs and
// hwLocalLatencyNs are the thread's assigned virtual-node latencies.
func (e Estimator) StallsRemote(d Deltas, hwRemoteLatencyNs, hwLocalLatencyNs uint64) uint64 {
	total := e.StallsTotal(d)
	if total == 0 {
		return 0
	}

	rem, loc := d.rem(), d.loc()
	num := float64(rem) * float64(hwRemoteLatencyNs)
	den := num + float64(loc)*float64(hwLocalLatencyNs)
	if den == 0 {
		return 0
	}

	return uint64(float64(total) * (num / den))
}
