//go:build amd64

package cpuarch

// cpuidLeaf1 is implemented in ident_amd64.s; it executes CPUID with
// EAX=1 and returns the resulting EAX.
func cpuidLeaf1() uint32

func identify() (family, model int, ok bool) {
	eax := cpuidLeaf1()
	family, model = decodeLeaf1(eax)
	return family, model, true
}
