// Command memlatctl is the operator-facing control tool: it runs
// out-of-core calibration against a recorded access trace and prints
// the resulting calibration factor, or prints the microarch descriptor
// it would select for the running CPU.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memlat/calibration"
	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/internal/logging"
)

var (
	tracePath            string
	targetLatencyNs      uint64
	hwLatencyNs          uint64
	cpuSpeedMHz          uint32
	maxRounds            int
	tolerance            float64
	stepSize             float64
	numSets              int
	associativity        int
	blockSize            int
	allowSPRExperimental bool
)

func main() {
	root := &cobra.Command{
		Use:   "memlatctl",
		Short: "Operate and inspect a memlatd deployment",
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Derive a calibration factor from a recorded access trace",
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().StringVar(&tracePath, "trace", "", "CSV file of address,stall_cycles_raw rows (required)")
	calibrateCmd.Flags().Uint64Var(&targetLatencyNs, "target-latency-ns", 300, "emulation target latency")
	calibrateCmd.Flags().Uint64Var(&hwLatencyNs, "hw-latency-ns", 80, "measured local hardware latency")
	calibrateCmd.Flags().Uint32Var(&cpuSpeedMHz, "cpu-speed-mhz", 2000, "CPU clock speed used for cycle-to-ns conversion")
	calibrateCmd.Flags().IntVar(&maxRounds, "max-rounds", 50, "maximum calibration rounds")
	calibrateCmd.Flags().Float64Var(&tolerance, "tolerance", 0.05, "convergence tolerance as a relative error ratio")
	calibrateCmd.Flags().Float64Var(&stepSize, "step-size", 0.5, "proportional step applied to the calibration factor each round")
	calibrateCmd.Flags().IntVar(&numSets, "cache-sets", 64, "number of cache sets to replay the trace against")
	calibrateCmd.Flags().IntVar(&associativity, "cache-associativity", 8, "cache associativity to replay the trace against")
	calibrateCmd.Flags().IntVar(&blockSize, "cache-block-size", 64, "cache block size, in bytes")
	_ = calibrateCmd.MarkFlagRequired("trace")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the microarch descriptor memlatd would select on this machine",
		RunE:  runStats,
	}
	statsCmd.Flags().BoolVar(&allowSPRExperimental, "allow-spr-experimental", false, "opt in to the experimental Sapphire Rapids descriptor")

	root.AddCommand(calibrateCmd, statsCmd)

	if err := root.Execute(); err != nil {
		logging.Fatalf("memlatctl: %v", err)
	}
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	trace, err := loadTrace(tracePath)
	if err != nil {
		return fmt.Errorf("memlatctl: load trace: %w", err)
	}

	cfg := calibration.Config{
		NumSets:              numSets,
		Associativity:        associativity,
		BlockSize:            blockSize,
		TargetLatencyNs:      targetLatencyNs,
		HwLatencyNs:          hwLatencyNs,
		CPUSpeedMHz:          cpuSpeedMHz,
		MaxRounds:            maxRounds,
		ConvergenceTolerance: tolerance,
		StepSize:             stepSize,
	}

	res := calibration.Run(cfg, trace)
	fmt.Printf("calibration_factor=%.6f rounds=%d converged=%v final_error_ratio=%.6f\n",
		res.CalibrationFactor, res.Rounds, res.Converged, res.FinalErrorRatio)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	info, err := cpuarch.DetectCPUInfo()
	if err != nil {
		return fmt.Errorf("memlatctl: detect CPU info: %w", err)
	}
	family, model, ok := cpuarch.Identify()
	if !ok {
		return fmt.Errorf("memlatctl: no CPUID-equivalent support on this platform")
	}
	desc, err := cpuarch.Select(info, family, model, cpuarch.SelectOptions{AllowSPRExperimental: allowSPRExperimental})
	if err != nil {
		return fmt.Errorf("memlatctl: select microarch descriptor: %w", err)
	}

	fmt.Printf("descriptor=%s family=%d model=%d xeon=%v llc_bytes=%d counters=%d spr_experimental=%v\n",
		desc.Name, desc.FamilyID, desc.ModelID, desc.IsXeon, desc.LLCSizeBytes, desc.CounterCount, desc.SPRExperimental)
	return nil
}

// loadTrace reads a two-column CSV (address,stall_cycles_raw) into a
// calibration.Trace.
func loadTrace(path string) (calibration.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return calibration.Trace{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return calibration.Trace{}, err
	}

	var trace calibration.Trace
	for i, rec := range records {
		if len(rec) < 2 {
			return calibration.Trace{}, fmt.Errorf("trace row %d: expected 2 columns, got %d", i, len(rec))
		}
		addr, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return calibration.Trace{}, fmt.Errorf("trace row %d: parse address: %w", i, err)
		}
		stall, err := strconv.ParseUint(rec[1], 10, 64)
		if err != nil {
			return calibration.Trace{}, fmt.Errorf("trace row %d: parse stall cycles: %w", i, err)
		}
		trace.Addresses = append(trace.Addresses, addr)
		trace.StallCyclesRaw = append(trace.StallCyclesRaw, stall)
	}
	return trace, nil
}
