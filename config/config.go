// Package config holds the parameters of a memsim run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math/bits"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/memsim/timing"
)

// ErrInvalidConfig is wrapped by all validation errors.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// EnvPrefix is the prefix of the environment variables read by LoadEnv.
const EnvPrefix = "MEMSIM_"

// Config describes a simulated memory system and the traffic that drives it.
type Config struct {
	FreqMHz    uint64 `yaml:"freq_mhz"`
	LatencyNs  uint64 `yaml:"latency_ns"`
	NumBanks   int    `yaml:"number_of_banks"`
	MaxPending int    `yaml:"max_pending_requests"`

	Traffic Traffic `yaml:"traffic"`

	TraceDB     string `yaml:"trace_db"`
	EventLog    bool   `yaml:"event_log"`
	MonitorPort int    `yaml:"monitor_port"`
}

// Traffic configures the synthetic request generator.
type Traffic struct {
	NumRequests    int     `yaml:"num_requests"`
	NumCores       int     `yaml:"num_cores"`
	MaxOutstanding int     `yaml:"max_outstanding"`
	AddressSpace   uint64  `yaml:"address_space"`
	Seed           int64   `yaml:"seed"`
	WriteRatio     float64 `yaml:"write_ratio"`
	UpdateRatio    float64 `yaml:"update_ratio"`
	AnnulRatio     float64 `yaml:"annul_ratio"`
	RefuseRatio    float64 `yaml:"refuse_ratio"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		FreqMHz:    2000,
		LatencyNs:  50,
		NumBanks:   8,
		MaxPending: 64,
		Traffic: Traffic{
			NumRequests:    1000,
			NumCores:       2,
			MaxOutstanding: 16,
			AddressSpace:   1 << 24,
			Seed:           1,
			WriteRatio:     0.2,
			UpdateRatio:    0.1,
			AnnulRatio:     0.02,
			RefuseRatio:    0.1,
		},
	}
}

// Freq returns the core frequency.
func (c Config) Freq() timing.FreqInHz {
	return timing.FreqInHz(c.FreqMHz) * timing.MHz
}

// Load reads a YAML file on top of the default configuration. An empty path
// returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// LoadEnv overrides the configuration with MEMSIM_ variables found in the
// given .env files and in the environment. The environment wins over the
// files. Missing files are skipped.
func (c *Config) LoadEnv(files ...string) error {
	values := make(map[string]string)

	for _, f := range files {
		fileValues, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return fmt.Errorf("config: reading %s: %w", f, err)
		}

		for k, v := range fileValues {
			values[k] = v
		}
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}

		v, ok := values[EnvPrefix+name]

		return v, ok
	}

	fields := []struct {
		name string
		set  func(string) error
	}{
		{"FREQ_MHZ", uintSetter(&c.FreqMHz)},
		{"LATENCY_NS", uintSetter(&c.LatencyNs)},
		{"NUM_BANKS", intSetter(&c.NumBanks)},
		{"MAX_PENDING", intSetter(&c.MaxPending)},
		{"NUM_REQUESTS", intSetter(&c.Traffic.NumRequests)},
		{"SEED", int64Setter(&c.Traffic.Seed)},
		{"TRACE_DB", func(v string) error { c.TraceDB = v; return nil }},
		{"MONITOR_PORT", intSetter(&c.MonitorPort)},
	}

	for _, f := range fields {
		v, ok := lookup(f.name)
		if !ok {
			continue
		}

		if err := f.set(v); err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, f.name, err)
		}
	}

	return nil
}

func uintSetter(dst *uint64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func int64Setter(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

// Validate checks that a memory system can be built from the configuration.
func (c Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format,
				append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.FreqMHz > 0, "freq_mhz must be positive")
	check(c.LatencyNs > 0, "latency_ns must be positive")
	check(c.NumBanks > 0 && bits.OnesCount(uint(c.NumBanks)) == 1,
		"number_of_banks %d is not a power of two", c.NumBanks)
	check(c.MaxPending > 0, "max_pending_requests must be positive")

	t := c.Traffic
	check(t.NumRequests >= 0, "num_requests cannot be negative")
	check(t.NumCores > 0, "num_cores must be positive")
	check(t.MaxOutstanding > 0, "max_outstanding must be positive")
	check(t.AddressSpace >= 64, "address_space must hold a cache line")
	check(t.WriteRatio >= 0 && t.UpdateRatio >= 0 &&
		t.WriteRatio+t.UpdateRatio <= 1,
		"write_ratio and update_ratio must be within [0, 1]")
	check(t.AnnulRatio >= 0 && t.AnnulRatio <= 1,
		"annul_ratio must be within [0, 1]")
	check(t.RefuseRatio >= 0 && t.RefuseRatio < 1,
		"refuse_ratio must be within [0, 1)")
	check(c.MonitorPort >= 0 && c.MonitorPort < 65536,
		"monitor_port %d is out of range", c.MonitorPort)

	return errors.Join(errs...)
}
