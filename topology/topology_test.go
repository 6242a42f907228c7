package topology

import "testing"

func validTopology() *Topology {
	return &Topology{Nodes: []VirtualNode{
		{Name: "node0", DRAM: Node{ID: 0, HardwareLatencyNs: 80}, NVRAM: Node{ID: 1, HardwareLatencyNs: 150}},
	}}
}

func TestValidateAcceptsStrictlyBelowTargets(t *testing.T) {
	topo := validTopology()
	if err := topo.Validate(300, 200); err != nil {
		t.Fatalf("Validate: unexpected error: %v", err)
	}
}

func TestValidateRejectsEqualLatency(t *testing.T) {
	topo := &Topology{Nodes: []VirtualNode{
		{Name: "node0", DRAM: Node{HardwareLatencyNs: 100}, NVRAM: Node{HardwareLatencyNs: 150}},
	}}
	if err := topo.Validate(100, 200); err == nil {
		t.Fatal("Validate: expected error when dram latency equals read target, got nil")
	}
}

func TestValidateRejectsNVRAMAboveTarget(t *testing.T) {
	topo := &Topology{Nodes: []VirtualNode{
		{Name: "node0", DRAM: Node{HardwareLatencyNs: 80}, NVRAM: Node{HardwareLatencyNs: 500}},
	}}
	if err := topo.Validate(300, 200); err == nil {
		t.Fatal("Validate: expected error when nvram latency exceeds targets, got nil")
	}
}

func TestByNameFindsRegisteredNode(t *testing.T) {
	topo := validTopology()
	vn, ok := topo.ByName("node0")
	if !ok || vn.DRAM.ID != 0 {
		t.Fatalf("ByName: got %+v, %v", vn, ok)
	}
	if _, ok := topo.ByName("missing"); ok {
		t.Fatal("ByName: expected false for unregistered node")
	}
}
