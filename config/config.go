// Package config loads and validates the process-wide YAML
// configuration: latency targets, injection and calibration toggles,
// and the virtual node list the topology is built from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/memlat/topology"
)

// NodeConfig is one virtual node entry as it appears on disk.
type NodeConfig struct {
	Name           string `yaml:"name"`
	DRAMNodeID     int    `yaml:"dram_node_id"`
	DRAMLatencyNs  uint64 `yaml:"dram_latency_ns"`
	NVRAMNodeID    int    `yaml:"nvram_node_id"`
	NVRAMLatencyNs uint64 `yaml:"nvram_latency_ns"`
}

// LatencyConfig holds the latency-model attributes: read/write
// targets, injection and calibration toggles.
type LatencyConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ReadLatencyNs      uint64 `yaml:"read"`
	WriteLatencyNs     uint64 `yaml:"write"`
	InjectDelay        bool   `yaml:"inject_delay"`
	Calibration        bool   `yaml:"calibration"`
	MinEpochDurationUs uint64 `yaml:"min_epoch_duration_us"`
}

// Config is the top-level on-disk configuration document.
type Config struct {
	Latency              LatencyConfig `yaml:"latency"`
	Nodes                []NodeConfig  `yaml:"nodes"`
	AllowSPRExperimental bool          `yaml:"allow_spr_experimental"`
}

// Default returns conservative defaults: emulation disabled, a single
// local virtual node, and a 100us minimum epoch.
func Default() *Config {
	return &Config{
		Latency: LatencyConfig{
			Enabled:            false,
			ReadLatencyNs:      300,
			WriteLatencyNs:     300,
			InjectDelay:        false,
			Calibration:        false,
			MinEpochDurationUs: 100,
		},
		Nodes: []NodeConfig{
			{Name: "node0", DRAMNodeID: 0, DRAMLatencyNs: 80, NVRAMNodeID: 0, NVRAMLatencyNs: 150},
		},
	}
}

// Load reads a Config from a YAML file, starting from Default() so
// unspecified fields keep sane values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read latency config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse latency config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize latency config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write latency config file: %w", err)
	}
	return nil
}

// Validate checks field-level sanity that doesn't require the runtime
// topology (NUMA-node latency bounds are checked separately via
// Topology().Validate).
func (c *Config) Validate() error {
	if c.Latency.ReadLatencyNs == 0 {
		return fmt.Errorf("latency.read must be > 0")
	}
	if c.Latency.WriteLatencyNs == 0 {
		return fmt.Errorf("latency.write must be > 0")
	}
	if c.Latency.MinEpochDurationUs == 0 {
		return fmt.Errorf("latency.min_epoch_duration_us must be > 0")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one virtual node must be configured")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.Name] {
			return fmt.Errorf("duplicate virtual node name %q", n.Name)
		}
		seen[n.Name] = true
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	nodes := make([]NodeConfig, len(c.Nodes))
	copy(nodes, c.Nodes)
	return &Config{
		Latency:              c.Latency,
		Nodes:                nodes,
		AllowSPRExperimental: c.AllowSPRExperimental,
	}
}

// Topology builds a topology.Topology from the configured node list.
func (c *Config) Topology() *topology.Topology {
	t := &topology.Topology{Nodes: make([]topology.VirtualNode, len(c.Nodes))}
	for i, n := range c.Nodes {
		t.Nodes[i] = topology.VirtualNode{
			Name:  n.Name,
			DRAM:  topology.Node{ID: n.DRAMNodeID, HardwareLatencyNs: n.DRAMLatencyNs},
			NVRAM: topology.Node{ID: n.NVRAMNodeID, HardwareLatencyNs: n.NVRAMLatencyNs},
		}
	}
	return t
}
