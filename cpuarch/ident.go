package cpuarch

// decodeLeaf1 applies the classical CPUID leaf-1 EAX decoding:
// family_number = family + extended_family,
// model_number = (extended_model << 4) | model. Extracted as a pure
// function (no CPUID execution) so it can be table-tested without the
// amd64 build tag.
func decodeLeaf1(eax uint32) (family, model int) {
	extract := func(v uint32, msb, lsb uint) uint32 {
		mask := (uint32(1)<<(msb-lsb+1) - 1) << lsb
		return (v & mask) >> lsb
	}

	baseModel := extract(eax, 7, 4)
	extModel := extract(eax, 19, 16)
	baseFamily := extract(eax, 11, 8)
	extFamily := extract(eax, 27, 20)

	family = int(baseFamily + extFamily)
	model = int(extModel<<4 | baseModel)
	return family, model
}

// Identify reads the vendor CPU-identification instruction's leaf-1 result
// on this core. ok is false on platforms without a CPUID equivalent wired
// up (see ident_fallback.go).
func Identify() (family, model int, ok bool) {
	return identify()
}
