// Package topology models the virtual NUMA topology the emulation
// runs against: pairs of DRAM-backed and NVRAM-backed nodes, each
// carrying a measured hardware latency that must sit strictly below
// the configured emulation targets.
package topology

import "fmt"

// Node is one memory region in the virtual topology: a NUMA-local DRAM
// node or its paired NVRAM-emulation node, identified by the OS's NUMA
// node id it's backed by and the hardware latency measured for it.
type Node struct {
	ID             int
	HardwareLatencyNs uint64
}

// VirtualNode pairs the DRAM node a thread runs "close" to with the
// NVRAM-backed node standing in for the emulated slower medium.
type VirtualNode struct {
	Name  string
	DRAM  Node
	NVRAM Node
}

// Topology is the full set of virtual nodes threads can be assigned to.
type Topology struct {
	Nodes []VirtualNode
}

// ErrInvalidTopology is returned by Validate when a node's hardware
// latency does not sit strictly below the target read/write latency.
type ErrInvalidTopology struct {
	Node      string
	Side      string // "dram" or "nvram"
	LatencyNs uint64
	TargetNs  uint64
	TargetKind string // "read" or "write"
}

func (e *ErrInvalidTopology) Error() string {
	return fmt.Sprintf("topology: virtual node %q %s hardware latency %dns is not strictly below target %s latency %dns",
		e.Node, e.Side, e.LatencyNs, e.TargetKind, e.TargetNs)
}

// Validate checks that for every virtual node, both the DRAM-backed
// and NVRAM-backed node's hardware latencies are strictly less than
// readLatencyNs and writeLatencyNs. Violation is a fatal startup error
// in the caller.
func (t *Topology) Validate(readLatencyNs, writeLatencyNs uint64) error {
	for _, vn := range t.Nodes {
		if err := checkSide(vn.Name, "dram", vn.DRAM.HardwareLatencyNs, readLatencyNs, writeLatencyNs); err != nil {
			return err
		}
		if err := checkSide(vn.Name, "nvram", vn.NVRAM.HardwareLatencyNs, readLatencyNs, writeLatencyNs); err != nil {
			return err
		}
	}
	return nil
}

func checkSide(name, side string, latencyNs, readLatencyNs, writeLatencyNs uint64) error {
	if latencyNs >= readLatencyNs {
		return &ErrInvalidTopology{Node: name, Side: side, LatencyNs: latencyNs, TargetNs: readLatencyNs, TargetKind: "read"}
	}
	if latencyNs >= writeLatencyNs {
		return &ErrInvalidTopology{Node: name, Side: side, LatencyNs: latencyNs, TargetNs: writeLatencyNs, TargetKind: "write"}
	}
	return nil
}

// ByName finds a virtual node by name, used when assigning threads to
// nodes.
func (t *Topology) ByName(name string) (*VirtualNode, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].Name == name {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}
