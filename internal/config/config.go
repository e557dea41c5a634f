// Package config loads and validates the supervisor TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the supervisor configuration.
type Config struct {
	General  General  `toml:"general"`
	Receipts Receipts `toml:"receipts"`
	Sidecars Sidecars `toml:"sidecars"`
	Retry    Retry    `toml:"retry"`
	Budget   Budget   `toml:"budget"`
}

type General struct {
	LogLevel string `toml:"log_level"` // debug, info, warn, error
	// EventBuffer is the per-run event channel capacity.
	EventBuffer int `toml:"event_buffer"`
}

type Receipts struct {
	// Dir holds one <run_id>.json per receipt.
	Dir string `toml:"dir"`
	// IndexDB is the SQLite receipt index path. Empty disables indexing.
	IndexDB string `toml:"index_db"`
}

type Sidecars struct {
	// Dir is scanned for descriptor files (one JSON per backend).
	Dir string `toml:"dir"`
	// HelloTimeout bounds the handshake wait.
	HelloTimeout Duration `toml:"hello_timeout"`
}

type Retry struct {
	MaxRetries     int      `toml:"max_retries"`
	BaseDelay      Duration `toml:"base_delay"`
	MaxDelay       Duration `toml:"max_delay"`
	OverallTimeout Duration `toml:"overall_timeout"`
	JitterFactor   float64  `toml:"jitter_factor"`
}

type Budget struct {
	// MaxRunDuration caps every run's wall-clock time. Zero disables.
	MaxRunDuration Duration `toml:"max_run_duration"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".abp")
	return Config{
		General: General{
			LogLevel:    "info",
			EventBuffer: 256,
		},
		Receipts: Receipts{
			Dir: filepath.Join(base, "receipts"),
		},
		Sidecars: Sidecars{
			Dir:          filepath.Join(base, "sidecars"),
			HelloTimeout: Duration{10 * time.Second},
		},
		Retry: Retry{
			MaxRetries:     3,
			BaseDelay:      Duration{100 * time.Millisecond},
			MaxDelay:       Duration{10 * time.Second},
			OverallTimeout: Duration{60 * time.Second},
			JitterFactor:   0.5,
		},
	}
}

// Load reads a TOML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate accumulates every configuration problem.
func (c Config) Validate() error {
	var problems []string

	switch strings.ToLower(strings.TrimSpace(c.General.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("general.log_level %q is not one of debug/info/warn/error", c.General.LogLevel))
	}
	if c.General.EventBuffer < 0 {
		problems = append(problems, "general.event_buffer must be >= 0")
	}
	if strings.TrimSpace(c.Receipts.Dir) == "" {
		problems = append(problems, "receipts.dir must be set")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must be >= 0")
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		problems = append(problems, "retry.jitter_factor must be in [0,1]")
	}
	if c.Retry.BaseDelay.Duration < 0 || c.Retry.MaxDelay.Duration < 0 {
		problems = append(problems, "retry delays must be >= 0")
	}
	if c.Retry.MaxDelay.Duration > 0 && c.Retry.BaseDelay.Duration > c.Retry.MaxDelay.Duration {
		problems = append(problems, "retry.base_delay exceeds retry.max_delay")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
