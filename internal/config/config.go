// Package config provides configuration loading and structs for the basho server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/basho/internal/failure"
	"github.com/hyperjump/basho/internal/grouping"
	"github.com/hyperjump/basho/internal/ranking"
	"github.com/hyperjump/basho/internal/reliability"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool                  `yaml:"debug"`
	Server      ServerConfig          `yaml:"server"`
	Search      SearchConfig          `yaml:"search"`
	Ranking     ranking.RankingConfig `yaml:"ranking"`
	Grouping    grouping.Config       `yaml:"grouping"`
	Failure     failure.Config        `yaml:"failure"`
	Store       StoreConfig           `yaml:"store"`
	Hub         HubConfig             `yaml:"hub"`
	Jobs        JobsConfig            `yaml:"jobs"`
	Reliability ReliabilityConfig     `yaml:"reliability"`
	Provider    ProviderConfig        `yaml:"provider"`
	Narration   NarrationConfig       `yaml:"narration"`
}

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Environment    string        `yaml:"environment"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IsProduction reports whether the server runs in production mode.
func (s *ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, EnvProduction)
}

// SearchConfig holds fast-path settings.
type SearchConfig struct {
	DefaultLimit    int     `yaml:"default_limit"`
	MaxLimit        int     `yaml:"max_limit"`
	DefaultLanguage string  `yaml:"default_language"`
	ProviderLimit   int     `yaml:"provider_limit"`
	SearchRadiusM   float64 `yaml:"search_radius_m"`
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// StoreConfig holds request state store settings.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	DatabasePath  string        `yaml:"database_path"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HubConfig holds streaming connection settings.
type HubConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendBuffer        int           `yaml:"send_buffer"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes"`
	SubscribeRate     float64       `yaml:"subscribe_rate"`
	SubscribeBurst    int           `yaml:"subscribe_burst"`
}

// JobsConfig holds streaming job runner settings.
type JobsConfig struct {
	NarrationTimeout    time.Duration `yaml:"narration_timeout"`
	RecommendationCount int           `yaml:"recommendation_count"`
	QueueSize           int           `yaml:"queue_size"`
	Workers             int           `yaml:"workers"`
	DeltaBuffer         int           `yaml:"delta_buffer"`
}

// CallPolicy is the timeout and retry policy of one external call.
type CallPolicy struct {
	Timeout    time.Duration `yaml:"timeout"`
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	Multiplier float64       `yaml:"multiplier"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Policy converts c to a reliability policy.
func (c CallPolicy) Policy() reliability.Policy {
	return reliability.Policy{
		Timeout:    c.Timeout,
		Attempts:   c.Attempts,
		Backoff:    c.Backoff,
		Multiplier: c.Multiplier,
		MaxBackoff: c.MaxBackoff,
	}
}

// ReliabilityConfig holds per-collaborator call policies.
type ReliabilityConfig struct {
	Intent   CallPolicy `yaml:"intent"`
	Geocode  CallPolicy `yaml:"geocode"`
	Provider CallPolicy `yaml:"provider"`
}

// Policies returns the guard policies keyed by call name.
func (r ReliabilityConfig) Policies() map[string]reliability.Policy {
	return map[string]reliability.Policy{
		OpIntent:   r.Intent.Policy(),
		OpGeocode:  r.Geocode.Policy(),
		OpProvider: r.Provider.Policy(),
	}
}

// Guarded call names.
const (
	OpIntent   = "intent.resolve"
	OpGeocode  = "provider.geocode"
	OpProvider = "provider.search"
	// OpNarration is never retried; its timeout is jobs.narration_timeout.
	OpNarration = "narration.narrate"
)

// Provider kinds.
const (
	ProviderFixture = "fixture"
	ProviderHTTP    = "http"
)

// ProviderConfig selects and configures the place provider.
type ProviderConfig struct {
	Kind        string        `yaml:"kind"`
	FixturePath string        `yaml:"fixture_path"`
	Watch       bool          `yaml:"watch"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// Narrator kinds.
const (
	NarratorTemplate = "template"
	NarratorOpenAI   = "openai"
)

// NarrationConfig selects and configures the narration collaborator.
type NarrationConfig struct {
	Kind      string `yaml:"kind"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	if cfg.Provider.FixturePath != "" {
		cfg.Provider.FixturePath = expandPath(cfg.Provider.FixturePath, configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
