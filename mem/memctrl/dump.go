package memctrl

import (
	"io"

	"gopkg.in/yaml.v3"
)

type configDump struct {
	Type               string `yaml:"type"`
	NumberOfBanks      int    `yaml:"number_of_banks"`
	Latency            uint64 `yaml:"latency"`
	LatencyNs          uint64 `yaml:"latency_ns"`
	MaxPendingRequests int    `yaml:"max_pending_requests"`
	PendingQueueSize   int    `yaml:"pending_queue_size"`
}

// DumpConfiguration writes the configuration of the controller as a YAML
// document keyed by the controller name.
func (c *Comp) DumpConfiguration(w io.Writer) error {
	doc := map[string]configDump{
		c.name: {
			Type:               "dram_cont",
			NumberOfBanks:      c.NumBanks(),
			Latency:            uint64(c.latency),
			LatencyNs:          c.latencyNs,
			MaxPendingRequests: c.maxPending,
			PendingQueueSize:   len(c.pending),
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return err
	}

	return enc.Close()
}
