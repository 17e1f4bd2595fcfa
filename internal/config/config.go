// Package config loads application settings from YAML, an optional .env
// file and LOTTO_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDirName = "lotto-desk"

type Config struct {
	App        AppCfg        `yaml:"app"`
	Storage    StorageCfg    `yaml:"storage"`
	Simulation SimulationCfg `yaml:"simulation"`
	Predictor  PredictorCfg  `yaml:"predictor"`
	HTTP       HTTPCfg       `yaml:"http"`
	Fair       FairCfg       `yaml:"fair"`
}

type AppCfg struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

type StorageCfg struct {
	Backend    string `yaml:"backend"` // sqlite | badger | memory
	SQLitePath string `yaml:"sqlite_path"`
	BadgerDir  string `yaml:"badger_dir"`
	Archive    bool   `yaml:"archive"`
}

type SimulationCfg struct {
	Interval time.Duration `yaml:"interval"`
	Cooldown time.Duration `yaml:"cooldown"`
	Source   string        `yaml:"source"` // math | fair
	Record   bool          `yaml:"record"`
}

type PredictorCfg struct {
	Kind       string        `yaml:"kind"` // local | script
	ScriptPath string        `yaml:"script_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type HTTPCfg struct {
	Enabled     bool     `yaml:"enabled"`
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type FairCfg struct {
	Service      string `yaml:"service"`
	FallbackPath string `yaml:"fallback_path"`
	ClientSeed   string `yaml:"client_seed"`
}

// Default returns the built-in settings rooted at the user config directory.
// File paths are left empty; ResolvePaths derives them from the data
// directory once overrides are applied.
func Default() Config {
	return Config{
		App: AppCfg{DataDir: defaultDataDir(), LogLevel: "info"},
		Storage: StorageCfg{
			Backend: "sqlite",
			Archive: true,
		},
		Simulation: SimulationCfg{Interval: time.Second, Cooldown: 3 * time.Second, Source: "math"},
		Predictor:  PredictorCfg{Kind: "local", Timeout: 5 * time.Second},
		HTTP: HTTPCfg{
			Addr:        "127.0.0.1:17889",
			CORSOrigins: []string{"http://localhost:*", "wails://wails"},
		},
		Fair: FairCfg{
			Service:    appDirName,
			ClientSeed: "lotto-desk",
		},
	}
}

// ResolvePaths fills every storage path that is still empty from
// App.DataDir. Paths set explicitly are kept.
func (c *Config) ResolvePaths() {
	if c.App.DataDir == "" {
		c.App.DataDir = defaultDataDir()
	}
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = filepath.Join(c.App.DataDir, name)
		}
	}
	fill(&c.Storage.SQLitePath, "history.db")
	fill(&c.Storage.BadgerDir, "badger")
	fill(&c.Fair.FallbackPath, "fair_seeds.json")
}

// Load builds the configuration. path may be empty, in which case only the
// defaults, .env and environment apply. A missing .env is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.ResolvePaths()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("LOTTO_DATA_DIR", &cfg.App.DataDir)
	str("LOTTO_LOG_LEVEL", &cfg.App.LogLevel)
	str("LOTTO_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("LOTTO_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("LOTTO_BADGER_DIR", &cfg.Storage.BadgerDir)
	str("LOTTO_SIMULATION_SOURCE", &cfg.Simulation.Source)
	str("LOTTO_PREDICTOR", &cfg.Predictor.Kind)
	str("LOTTO_SCRIPT_PATH", &cfg.Predictor.ScriptPath)
	str("LOTTO_HTTP_ADDR", &cfg.HTTP.Addr)
	str("LOTTO_FAIR_CLIENT_SEED", &cfg.Fair.ClientSeed)
	if v := os.Getenv("LOTTO_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}

	for _, err := range []error{
		boolean("LOTTO_ARCHIVE", &cfg.Storage.Archive),
		boolean("LOTTO_SIMULATION_RECORD", &cfg.Simulation.Record),
		boolean("LOTTO_HTTP_ENABLED", &cfg.HTTP.Enabled),
		duration("LOTTO_SIMULATION_INTERVAL", &cfg.Simulation.Interval),
		duration("LOTTO_SIMULATION_COOLDOWN", &cfg.Simulation.Cooldown),
		duration("LOTTO_PREDICTOR_TIMEOUT", &cfg.Predictor.Timeout),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("config: simulation interval must be positive, got %s", c.Simulation.Interval)
	}
	if c.Simulation.Cooldown <= 0 {
		return fmt.Errorf("config: simulation cooldown must be positive, got %s", c.Simulation.Cooldown)
	}
	switch c.Simulation.Source {
	case "math", "fair":
	default:
		return fmt.Errorf("config: unknown simulation source %q", c.Simulation.Source)
	}
	switch c.Predictor.Kind {
	case "local":
	case "script":
		if c.Predictor.ScriptPath == "" {
			return errors.New("config: predictor kind script needs script_path")
		}
	default:
		return fmt.Errorf("config: unknown predictor kind %q", c.Predictor.Kind)
	}
	if c.Predictor.Timeout < 0 {
		return fmt.Errorf("config: predictor timeout must not be negative")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.New("config: http enabled without addr")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appDirName)
	}
	return "."
}
