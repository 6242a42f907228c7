package nvram

import (
	"testing"

	"github.com/sarchlab/memlat/topology"
)

func TestAllocReturnsZeroedRegionOfRequestedSize(t *testing.T) {
	a := NewAllocator()
	r, err := a.Alloc(topology.Node{ID: 1, HardwareLatencyNs: 150}, 4096)
	if err != nil {
		t.Fatalf("Alloc: unexpected error: %v", err)
	}
	defer r.Free()

	if len(r.Data) != 4096 {
		t.Fatalf("Alloc: got %d bytes, want 4096", len(r.Data))
	}
	for i, b := range r.Data {
		if b != 0 {
			t.Fatalf("Alloc: byte %d not zeroed: %d", i, b)
		}
	}
}

func TestAllocRejectsNonPositiveSize(t *testing.T) {
	a := NewAllocator()
	if _, err := a.Alloc(topology.Node{}, 0); err == nil {
		t.Fatal("Alloc: expected error for size 0")
	}
}

func TestFreeAllUnmapsEverything(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 3; i++ {
		if _, err := a.Alloc(topology.Node{ID: i}, 4096); err != nil {
			t.Fatalf("Alloc %d: unexpected error: %v", i, err)
		}
	}
	if err := a.FreeAll(); err != nil {
		t.Fatalf("FreeAll: unexpected error: %v", err)
	}
	if len(a.regions) != 0 {
		t.Fatalf("FreeAll: regions not cleared: %d remain", len(a.regions))
	}
}
