// Command memlatd is the long-running process that hosts the epoch
// engine: it loads the configuration, selects the running CPU's
// microarch descriptor, enrolls one worker thread per configured
// virtual node, and drives periodic epoch closes until signaled to
// stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/memlat/config"
	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/epoch"
	"github.com/sarchlab/memlat/internal/logging"
	"github.com/sarchlab/memlat/latencymodel"
	"github.com/sarchlab/memlat/pmc"
	"github.com/sarchlab/memlat/pmc/perfopen"
	"github.com/sarchlab/memlat/statsexport"
	"github.com/sarchlab/memlat/threadmgr"
)

var (
	configPath           string
	metricsAddr          string
	allowSPRExperimental bool
	epochIntervalMs      int
)

func main() {
	root := &cobra.Command{
		Use:   "memlatd",
		Short: "Run the memory-latency emulation daemon",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the daemon and keep injecting delay until stopped",
		RunE:  runDaemon,
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file (defaults if unset)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090 (disabled if unset)")
	runCmd.Flags().BoolVar(&allowSPRExperimental, "allow-spr-experimental", false, "opt in to the experimental Sapphire Rapids descriptor")
	runCmd.Flags().IntVar(&epochIntervalMs, "epoch-interval-ms", 10, "periodic epoch-close trigger interval, in milliseconds")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		logging.Fatalf("memlatd: %v", err)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("memlatd: invalid config: %w", err)
	}

	info, err := cpuarch.DetectCPUInfo()
	if err != nil {
		return fmt.Errorf("memlatd: detect CPU info: %w", err)
	}
	family, model, ok := cpuarch.Identify()
	if !ok {
		return fmt.Errorf("memlatd: no CPUID-equivalent support on this platform")
	}
	desc, err := cpuarch.Select(info, family, model, cpuarch.SelectOptions{AllowSPRExperimental: allowSPRExperimental})
	if err != nil {
		return fmt.Errorf("memlatd: select microarch descriptor: %w", err)
	}
	logging.Infof("memlatd: selected descriptor %q (xeon=%v, llc=%d bytes)", desc.Name, desc.IsXeon, desc.LLCSizeBytes)

	topo := cfg.Topology()

	var exporter *statsexport.Exporter
	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		exporter = statsexport.NewExporter(reg)
		srv := &http.Server{Addr: metricsAddr, Handler: statsexport.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("memlatd: metrics server: %v", err)
			}
		}()
		logging.Infof("memlatd: serving metrics on %s/metrics", metricsAddr)
	}

	mgr := threadmgr.NewManager()

	if exporter != nil {
		go scrapeStatsLoop(mgr, exporter)
	}
	var banks []pmc.Bank

	for i, vn := range topo.Nodes {
		bank, err := perfopen.Open()
		if err != nil {
			return fmt.Errorf("memlatd: open PMC bank for node %q: %w", vn.Name, err)
		}
		banks = append(banks, bank)

		model, err := latencymodel.Init(cfg, desc, bank)
		if err != nil {
			return fmt.Errorf("memlatd: init latency model for node %q: %w", vn.Name, err)
		}

		ts := &epoch.State{
			ThreadID:          i,
			DRAMNodeID:        vn.DRAM.ID,
			NVRAMNodeID:       vn.NVRAM.ID,
			HwLocalLatencyNs:  vn.DRAM.HardwareLatencyNs,
			HwRemoteLatencyNs: vn.NVRAM.HardwareLatencyNs,
			CPUSpeedMHz:       info.SpeedMHz,
			Stats:             epoch.Stats{Enabled: true},
		}

		engine := &epoch.Engine{Model: model, Bank: bank, Clock: wallClock{}}
		th := threadmgr.Enroll(ts, engine, model.MinEpochDurationUs)
		engine.Gate = th
		engine.MinDuration = th

		th.RunTicker(time.Duration(epochIntervalMs) * time.Millisecond)
		mgr.Add(th)
		logging.Infof("memlatd: enrolled thread %d on virtual node %q", i, vn.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logging.Infof("memlatd: shutting down")
	mgr.StopAll()
	for _, b := range banks {
		_ = b.Close()
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

type wallClock struct{}

func (wallClock) NowMicros() uint64 {
	return threadmgr.NowMicros()
}

// scrapeStatsLoop periodically pushes every enrolled thread's current
// state into the Prometheus exporter, independent of how often that
// thread's own epochs close.
func scrapeStatsLoop(mgr *threadmgr.Manager, exporter *statsexport.Exporter) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, th := range mgr.Snapshot() {
			label := fmt.Sprintf("%d", th.State.ThreadID)
			exporter.Observe(label, th.State)
		}
	}
}
