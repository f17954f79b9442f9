// Package config loads Echo's engine-wide settings from environment
// variables or an optional YAML policy file, and validates them before an
// engine.Engine is constructed from them.
//
// Echo has no process-wide configuration singleton: every setting here is
// read once, at startup, into a Config value that the caller passes
// explicitly into engine.New — see spec §9, "Global-state avoidance".
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//		log.Fatalf("loading config: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables:
//
//	ECHO_POLICY_ID=1
//	ECHO_WORKERS=8
//	ECHO_INTENT_DRAIN_MAX=0        // 0 = unbounded
//	ECHO_LEDGER_DIR=./data/ledger
//	ECHO_INSPECT_API_KEY_HASH=...  // bcrypt hash, see pkg/inspect
//	ECHO_POLICY_FILE=./policy.yaml // optional, overrides the above
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/flyingrobots/echo/pkg/engine"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the loadable subset of engine.Config's fields (policy
// id and worker count); callers convert with ToEngine.
type EngineConfig struct {
	PolicyID uint32 `yaml:"policy_id"`
	Workers  int    `yaml:"workers"`
}

// IngressConfig bounds how many intents one DrainIntents call pulls per
// tick (spec §4.2's drain_for_tick(max)).
type IngressConfig struct {
	DrainMax int `yaml:"drain_max"`
}

// LedgerConfig points at the durable backing store for committed
// HistoryEntries (spec §4.12, pkg/ledgerstore).
type LedgerConfig struct {
	Dir               string `yaml:"dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
	EncryptionSecret  string `yaml:"-"` // ECHO_LEDGER_SECRET only, never in YAML
}

// InspectConfig gates the read-only Inspection API (spec §4.10): a
// bounded, authenticated debug/viewer surface over the live store.
type InspectConfig struct {
	APIKeyHash string `yaml:"api_key_hash"`
	MaxLimit   int    `yaml:"max_limit"`
	CacheSize  int64  `yaml:"cache_size"`
}

// Config is the root of Echo's ambient configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Ingress IngressConfig `yaml:"ingress"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Inspect InspectConfig `yaml:"inspect"`
}

// ToEngine converts the engine-relevant subset of c into an engine.Config.
// Callers still supply their own engine.Config.RootOf if they need
// anything other than the all-zero default seed.
func (c Config) ToEngine() engine.Config {
	return engine.Config{PolicyID: c.Engine.PolicyID, Workers: c.Engine.Workers}
}

// Default returns the baseline configuration a brand-new engine runs
// under if nothing overrides it: a single worker, policy 0, unbounded
// drain, an in-repo ledger directory, and inspection disabled (no API key
// configured means every inspection request is rejected).
func Default() Config {
	return Config{
		Engine:  EngineConfig{PolicyID: 0, Workers: 1},
		Ingress: IngressConfig{DrainMax: 0},
		Ledger:  LedgerConfig{Dir: "./data/ledger"},
		Inspect: InspectConfig{MaxLimit: 1000, CacheSize: 1 << 20},
	}
}

// LoadFromEnv builds a Config starting from Default, overriding fields
// whose ECHO_* environment variable is set. If ECHO_POLICY_FILE names a
// readable YAML file, its contents are merged in last and win over
// individual ECHO_* values for the fields the file sets.
func LoadFromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("ECHO_POLICY_ID"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: ECHO_POLICY_ID: %w", err)
		}
		cfg.Engine.PolicyID = uint32(n)
	}
	if v, ok := os.LookupEnv("ECHO_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ECHO_WORKERS: %w", err)
		}
		cfg.Engine.Workers = n
	}
	if v, ok := os.LookupEnv("ECHO_INTENT_DRAIN_MAX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ECHO_INTENT_DRAIN_MAX: %w", err)
		}
		cfg.Ingress.DrainMax = n
	}
	if v, ok := os.LookupEnv("ECHO_LEDGER_DIR"); ok {
		cfg.Ledger.Dir = v
	}
	if v, ok := os.LookupEnv("ECHO_LEDGER_SECRET"); ok {
		cfg.Ledger.EncryptionEnabled = true
		cfg.Ledger.EncryptionSecret = v
	}
	if v, ok := os.LookupEnv("ECHO_INSPECT_API_KEY_HASH"); ok {
		cfg.Inspect.APIKeyHash = v
	}
	if v, ok := os.LookupEnv("ECHO_INSPECT_MAX_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ECHO_INSPECT_MAX_LIMIT: %w", err)
		}
		cfg.Inspect.MaxLimit = n
	}

	if path, ok := os.LookupEnv("ECHO_POLICY_FILE"); ok {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func (c *Config) mergeYAMLFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate rejects a Config an engine must never be constructed from:
// an out-of-range worker count (spec §4.5's W ∈ [1, 64]) or a negative
// drain/limit bound.
func (c Config) Validate() error {
	if c.Engine.Workers < 1 || c.Engine.Workers > 64 {
		return fmt.Errorf("config: workers must be in [1, 64], got %d", c.Engine.Workers)
	}
	if c.Ingress.DrainMax < 0 {
		return fmt.Errorf("config: ingress drain_max must be >= 0, got %d", c.Ingress.DrainMax)
	}
	if c.Inspect.MaxLimit < 0 {
		return fmt.Errorf("config: inspect max_limit must be >= 0, got %d", c.Inspect.MaxLimit)
	}
	if c.Ledger.Dir == "" {
		return fmt.Errorf("config: ledger dir must not be empty")
	}
	return nil
}
