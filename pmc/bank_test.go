package pmc_test

import (
	"errors"
	"testing"

	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/pmc"
	"github.com/sarchlab/memlat/pmc/msr"
	"github.com/sarchlab/memlat/pmc/perfopen"
)

func TestSentinelErrorsAreDistinct(t *testing.T) {
	if errors.Is(pmc.ErrNoSuchEvent, pmc.ErrCountersExhausted) {
		t.Fatal("ErrNoSuchEvent and ErrCountersExhausted must be distinct sentinels")
	}
	if errors.Is(pmc.ErrSlotNotProgrammed, pmc.ErrNoSuchEvent) {
		t.Fatal("ErrSlotNotProgrammed and ErrNoSuchEvent must be distinct sentinels")
	}
}

// TestRegistryEventsHaveBackendEncodings guards against a microarch
// Descriptor naming an event that neither counter backend knows how to
// program, which would otherwise only surface at Program() time on
// real hardware.
func TestRegistryEventsHaveBackendEncodings(t *testing.T) {
	infoIntel := &cpuarch.CPUInfo{VendorID: "GenuineIntel", ModelName: "Intel(R) Xeon(R)"}

	families := []struct{ family, model int }{
		{6, 0x2A}, {6, 0x2D}, {6, 0x3A}, {6, 0x3E}, {6, 0x3C}, {6, 0x3F},
	}
	for _, fm := range families {
		d, err := cpuarch.Select(infoIntel, fm.family, fm.model, cpuarch.SelectOptions{})
		if err != nil {
			t.Fatalf("Select(%d,%d): %v", fm.family, fm.model, err)
		}
		for _, name := range d.EventSet {
			if !msr.SupportsEvent(name) {
				t.Errorf("%s: msr backend has no encoding for %q", d.Name, name)
			}
			if !perfopen.SupportsEvent(name) {
				t.Errorf("%s: perfopen backend has no encoding for %q", d.Name, name)
			}
		}
	}

	spr, err := cpuarch.Select(infoIntel, 6, 0x8F, cpuarch.SelectOptions{AllowSPRExperimental: true})
	if err != nil {
		t.Fatalf("Select SPR: %v", err)
	}
	for _, name := range spr.EventSet {
		if !msr.SupportsEvent(name) || !perfopen.SupportsEvent(name) {
			t.Errorf("Sapphire Rapids Xeon: missing backend encoding for %q", name)
		}
	}
}
