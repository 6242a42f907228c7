// Package nvram hands out anonymous-mmap-backed memory regions tagged
// with the topology.Node a virtual node assigns them to, so a virtual
// node's emulated slower region has real memory behind it. It never
// participates in the delay-injection path itself; the engine only
// ever injects cycles, never intercepts memory operations.
package nvram

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/memlat/topology"
)

// Region is one allocated NVRAM-backed memory region.
type Region struct {
	Node topology.Node
	Data []byte
}

// Free unmaps the region's backing memory. Using Data after Free is
// undefined, same as any unmapped memory.
func (r *Region) Free() error {
	if r.Data == nil {
		return nil
	}
	err := unix.Munmap(r.Data)
	r.Data = nil
	return err
}

// Allocator hands out Regions and tracks them for bulk cleanup.
type Allocator struct {
	mu      sync.Mutex
	regions []*Region
}

// NewAllocator creates an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Alloc maps a new anonymous, zero-filled region of the given size,
// tagged with the NVRAM-side topology.Node it is standing in for.
func (a *Allocator) Alloc(node topology.Node, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("nvram: alloc size must be > 0, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("nvram: mmap %d bytes for node %q: %w", size, nodeLabel(node), err)
	}

	r := &Region{Node: node, Data: data}
	a.mu.Lock()
	a.regions = append(a.regions, r)
	a.mu.Unlock()
	return r, nil
}

// FreeAll unmaps every region this Allocator has handed out.
func (a *Allocator) FreeAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, r := range a.regions {
		if err := r.Free(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.regions = nil
	return firstErr
}

func nodeLabel(n topology.Node) string {
	return fmt.Sprintf("node%d@%dns", n.ID, n.HardwareLatencyNs)
}
