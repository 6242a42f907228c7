package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default(): unexpected validation error: %v", err)
	}
}

func TestValidateCatchesZeroLatency(t *testing.T) {
	c := Default()
	c.Latency.ReadLatencyNs = 0
	if err := c.Validate(); err == nil {
		t.Fatal("Validate: expected error for zero read_latency_ns")
	}
}

func TestValidateCatchesDuplicateNodeNames(t *testing.T) {
	c := Default()
	c.Nodes = append(c.Nodes, c.Nodes[0])
	if err := c.Validate(); err == nil {
		t.Fatal("Validate: expected error for duplicate node names")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memlat.yaml")

	want := Default()
	want.Latency.ReadLatencyNs = 450
	want.Latency.Enabled = true
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if got.Latency.ReadLatencyNs != 450 || !got.Latency.Enabled {
		t.Fatalf("Load: got %+v, want ReadLatencyNs=450 Enabled=true", got.Latency)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := Default()
	clone := c.Clone()
	clone.Nodes[0].Name = "mutated"
	if c.Nodes[0].Name == "mutated" {
		t.Fatal("Clone: mutating the clone's nodes affected the source config")
	}
}

func TestTopologyBuildsFromNodes(t *testing.T) {
	c := Default()
	topo := c.Topology()
	if len(topo.Nodes) != len(c.Nodes) {
		t.Fatalf("Topology: got %d nodes, want %d", len(topo.Nodes), len(c.Nodes))
	}
	if err := topo.Validate(c.Latency.ReadLatencyNs, c.Latency.WriteLatencyNs); err != nil {
		t.Fatalf("Topology built from Default(): unexpected validation error: %v", err)
	}
}
