// Package config loads ThreatLens configuration via viper: defaults,
// then an optional YAML file, then THREATLENS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/threatlens/threatlens/internal/policy"
)

// DefaultConfigDir is created under the user's home directory.
const (
	DefaultConfigDir = ".threatlens"
	DefaultRulesDir  = "rules"
	DefaultAuditFile = "audit.jsonl"
	DefaultDBFile    = "threatlens.db"
)

// Config is the full runtime configuration.
type Config struct {
	Server ServerConfig          `mapstructure:"server"`
	Engine EngineConfig          `mapstructure:"engine"`
	Policy policy.SecurityPolicy `mapstructure:"policy"`
	Cache  CacheConfig           `mapstructure:"cache"`
	Store  StoreConfig           `mapstructure:"store"`
	Audit  AuditConfig           `mapstructure:"audit"`

	// ConfigDir is ~/.threatlens, created on load.
	ConfigDir string `mapstructure:"-"`
}

// ServerConfig controls the REST API server.
type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	MaxBatchSize int    `mapstructure:"max_batch_size"`
	Endpoint     string `mapstructure:"endpoint"` // remote API for hybrid SDK/CLI mode
}

// EngineConfig controls the detection engine.
type EngineConfig struct {
	RulesDir    string `mapstructure:"rules_dir"`
	MaxInputLen int    `mapstructure:"max_input_len"`
}

// CacheConfig controls the verdict cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	// RedisAddr switches the cache from in-process to Redis when set.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// StoreConfig controls the analysis history database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AuditConfig controls the JSONL audit log.
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration. An empty path searches ~/.threatlens and
// the working directory for config.yaml; a missing file is fine and
// yields the defaults.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, configDir)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("THREATLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; the default search may come up empty.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigDir = configDir

	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.max_batch_size", 100)
	v.SetDefault("server.endpoint", "")

	v.SetDefault("engine.rules_dir", filepath.Join(configDir, DefaultRulesDir))
	v.SetDefault("engine.max_input_len", 64*1024)

	v.SetDefault("policy.default_action", "allow")
	v.SetDefault("policy.warn_threshold", 40)
	v.SetDefault("policy.block_threshold", 70)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("store.path", filepath.Join(configDir, DefaultDBFile))
	v.SetDefault("audit.path", filepath.Join(configDir, DefaultAuditFile))
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
