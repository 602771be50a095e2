package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/radar-sweep/internal/serialmux"
	"github.com/banshee-data/radar-sweep/internal/sweep"
)

// DefaultConfigPath is the path to the canonical sweep defaults file.
const DefaultConfigPath = "config/sweep.defaults.json"

// SweepConfig is the startup configuration of the sweep service. Every field
// is optional; the Get* methods fall back to built-in defaults, so a partial
// file only overrides what it names.
type SweepConfig struct {
	// Serial transport
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	// Sweep geometry
	Resolution *int     `json:"resolution,omitempty"`
	MoveSize   *int     `json:"move_size,omitempty"`
	HeadLength *float64 `json:"head_length,omitempty"`

	// Acquisition
	ErrorPolicy   *string `json:"error_policy,omitempty"` // "resync" or "fail-fast"
	MaxDigits     *int    `json:"max_digits,omitempty"`
	IdleBackoff   *string `json:"idle_backoff,omitempty"`   // duration string like "5ms"
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "10s"

	// Consumers
	StreamInterval *string `json:"stream_interval,omitempty"`
	Listen         *string `json:"listen,omitempty"`
	GRPCListen     *string `json:"grpc_listen,omitempty"`
}

// Built-in defaults used when a field is absent.
const (
	DefaultPort           = "/dev/ttyUSB0"
	DefaultStatsInterval  = 10 * time.Second
	DefaultStreamInterval = 100 * time.Millisecond
	DefaultListen         = ":8080"
	DefaultGRPCListen     = "localhost:50051"
)

// EmptySweepConfig returns a SweepConfig with all fields unset.
func EmptySweepConfig() *SweepConfig {
	return &SweepConfig{}
}

// LoadSweepConfig loads a SweepConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadSweepConfig(path string) (*SweepConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySweepConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. It panics if the file cannot be loaded and is intended
// for test setup.
func MustLoadDefaultConfig() *SweepConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSweepConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *SweepConfig) Validate() error {
	if _, err := c.PortOptions().Normalise(); err != nil {
		return fmt.Errorf("serial options: %w", err)
	}

	n := c.GetResolution()
	if n <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", n)
	}
	if c.MoveSize != nil && (*c.MoveSize < 0 || *c.MoveSize > n) {
		return fmt.Errorf("move_size must be between 0 and %d, got %d", n, *c.MoveSize)
	}
	if c.HeadLength != nil && *c.HeadLength <= 0 {
		return fmt.Errorf("head_length must be positive, got %f", *c.HeadLength)
	}

	if c.ErrorPolicy != nil {
		if _, err := sweep.ParsePolicy(*c.ErrorPolicy); err != nil {
			return err
		}
	}
	if c.MaxDigits != nil && (*c.MaxDigits < 1 || *c.MaxDigits > sweep.DefaultMaxDigits) {
		return fmt.Errorf("max_digits must be between 1 and %d, got %d", sweep.DefaultMaxDigits, *c.MaxDigits)
	}

	for name, s := range map[string]*string{
		"idle_backoff":    c.IdleBackoff,
		"stats_interval":  c.StatsInterval,
		"stream_interval": c.StreamInterval,
	} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *s)
		}
	}

	return nil
}

// PortOptions returns the serial options named by the config. Unset fields
// are left zero so that Normalise applies the transport defaults.
func (c *SweepConfig) PortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetPort returns the serial device path or the default.
func (c *SweepConfig) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return DefaultPort
	}
	return *c.Port
}

// GetResolution returns the number of angular steps per revolution.
func (c *SweepConfig) GetResolution() int {
	if c.Resolution == nil {
		return sweep.DefaultResolution
	}
	return *c.Resolution
}

// GetMoveSize returns the chord span in steps.
func (c *SweepConfig) GetMoveSize() int {
	if c.MoveSize == nil {
		return sweep.DefaultMoveSize
	}
	return *c.MoveSize
}

// GetHeadLength returns the length of the head line.
func (c *SweepConfig) GetHeadLength() float64 {
	if c.HeadLength == nil {
		return sweep.DefaultHeadLength
	}
	return *c.HeadLength
}

// GetErrorPolicy returns the parser error policy. An invalid value, which
// Validate would have rejected, falls back to resync.
func (c *SweepConfig) GetErrorPolicy() sweep.Policy {
	if c.ErrorPolicy == nil {
		return sweep.PolicyResync
	}
	p, err := sweep.ParsePolicy(*c.ErrorPolicy)
	if err != nil {
		return sweep.PolicyResync
	}
	return p
}

// GetMaxDigits returns the per-field digit limit.
func (c *SweepConfig) GetMaxDigits() int {
	if c.MaxDigits == nil {
		return sweep.DefaultMaxDigits
	}
	return *c.MaxDigits
}

// GetIdleBackoff returns the pause after an empty read. Zero retries at once.
func (c *SweepConfig) GetIdleBackoff() time.Duration {
	return parseDurationOr(c.IdleBackoff, 0)
}

// GetStatsInterval returns how often acquisition statistics are logged.
func (c *SweepConfig) GetStatsInterval() time.Duration {
	return parseDurationOr(c.StatsInterval, DefaultStatsInterval)
}

// GetStreamInterval returns the default gRPC frame interval.
func (c *SweepConfig) GetStreamInterval() time.Duration {
	return parseDurationOr(c.StreamInterval, DefaultStreamInterval)
}

// GetListen returns the HTTP listen address.
func (c *SweepConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC listen address.
func (c *SweepConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return DefaultGRPCListen
	}
	return *c.GRPCListen
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
