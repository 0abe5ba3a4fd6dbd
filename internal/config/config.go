// Package config provides configuration management for painmap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for tunable parameters. The similarity threshold and batch limit
// are business parameters, not architectural constants; operators override
// them in the settings file.
const (
	DefaultSimilarityThreshold = 0.80
	DefaultBatchLimit          = 500
	DefaultEmbeddingDim        = 384
	DefaultJudgeTimeoutSecs    = 30
	DefaultJudgeConcurrency    = 4
	DefaultMaxConns            = 4
	DefaultListenAddr          = "127.0.0.1:8787"
)

// Config holds painmap settings.
type Config struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	BatchLimit          int     `yaml:"batch_limit"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
	JudgeURL            string  `yaml:"judge_url"`
	JudgeTimeoutSecs    int     `yaml:"judge_timeout_secs"`
	JudgeConcurrency    int     `yaml:"judge_concurrency"`
	MaxConns            int     `yaml:"max_conns"`
	ListenAddr          string  `yaml:"listen_addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		BatchLimit:          DefaultBatchLimit,
		EmbeddingDim:        DefaultEmbeddingDim,
		JudgeTimeoutSecs:    DefaultJudgeTimeoutSecs,
		JudgeConcurrency:    DefaultJudgeConcurrency,
		MaxConns:            DefaultMaxConns,
		ListenAddr:          DefaultListenAddr,
	}
}

// JudgeTimeout returns the judge client timeout as a duration.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.JudgeTimeoutSecs) * time.Second
}

// DataDir returns the painmap data directory (~/.painmap).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".painmap")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "painmap.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// Load reads the settings file. Missing or zero fields fall back to defaults
// so partial settings files keep working across upgrades.
func Load() (*Config, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	def := Default()
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = def.EmbeddingDim
	}
	if cfg.JudgeTimeoutSecs <= 0 {
		cfg.JudgeTimeoutSecs = def.JudgeTimeoutSecs
	}
	if cfg.JudgeConcurrency <= 0 {
		cfg.JudgeConcurrency = def.JudgeConcurrency
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = def.MaxConns
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	return cfg, nil
}

// Save writes the configuration to the settings file.
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(SettingsPath(), data, 0o644)
}
