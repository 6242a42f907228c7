//go:build !amd64

package cpuarch

func identify() (family, model int, ok bool) {
	return 0, 0, false
}
