package cpuarch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// CPUInfo holds the fields this package reads out of the kernel-exposed
// CPU information text stream: the brand string, the parsed LLC size in
// bytes, and (best-effort, not polled frequently) the current clock
// speed.
type CPUInfo struct {
	ModelName    string
	VendorID     string
	LLCSizeBytes uint64
	SpeedMHz     uint32
}

// procFS is overridable in tests.
var procFS = "/proc"

// DetectCPUInfo reads the running machine's CPUInfo, for callers (such
// as cmd/memlatd) that need it outside of a test's controlled procFS.
func DetectCPUInfo() (*CPUInfo, error) {
	return readCPUInfo()
}

// readCPUInfo reads "model name"/"vendor_id"/"cpu MHz" via
// github.com/prometheus/procfs, then separately scans the raw stream for
// "cache size", a field procfs's CPUInfo does not expose, splitting each
// matching line on the first colon and trimming the remainder.
func readCPUInfo() (*CPUInfo, error) {
	fs, err := procfs.NewFS(procFS)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	cpus, err := fs.CPUInfo()
	if err != nil {
		return nil, fmt.Errorf("read cpuinfo: %w", err)
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("cpuinfo: no processors reported")
	}
	first := cpus[0]

	cacheBytes, err := readCacheSizeBytes()
	if err != nil {
		// Non-fatal: the LLC size enriches the descriptor but never
		// drives selection.
		cacheBytes = 0
	}

	return &CPUInfo{
		ModelName:    first.ModelName,
		VendorID:     first.VendorID,
		LLCSizeBytes: cacheBytes,
		SpeedMHz:     uint32(first.CPUMHz),
	}, nil
}

func readCacheSizeBytes() (uint64, error) {
	f, err := os.Open(procFS + "/cpuinfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "cache size") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		return parseSizeSuffix(value)
	}
	return 0, fmt.Errorf("cache size field not found")
}

// parseSizeSuffix converts strings like "8192 KB" into a byte count.
func parseSizeSuffix(s string) (uint64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty size string")
	}

	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}

	if len(fields) == 1 {
		return n, nil
	}

	switch strings.ToUpper(fields[1]) {
	case "KB", "K":
		return n * 1024, nil
	case "MB", "M":
		return n * 1024 * 1024, nil
	case "GB", "G":
		return n * 1024 * 1024 * 1024, nil
	default:
		return n, nil
	}
}
