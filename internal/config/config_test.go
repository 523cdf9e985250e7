package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
provider:
  kind: fixture
  fixture_path: "./fixtures/places.yaml"
store:
  ttl: 120s
  sweep_interval: 15s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.TTL != 120*time.Second || cfg.Store.SweepInterval != 15*time.Second {
		t.Errorf("store durations: %+v", cfg.Store)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
provider:
  fixture_path: "./places.yaml"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  database_path: "./data/db/requests.db"
provider:
  fixture_path: "./dev/places.yaml"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	wantDB := filepath.Join(dir, "data", "db", "requests.db")
	if cfg.Store.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Store.DatabasePath, wantDB)
	}
	wantFixture := filepath.Join(dir, "dev", "places.yaml")
	if cfg.Provider.FixturePath != wantFixture {
		t.Errorf("fixture_path = %s, want %s", cfg.Provider.FixturePath, wantFixture)
	}
}

func TestLoad_rejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown provider", "provider:\n  kind: carrier-pigeon\n", "provider.kind"},
		{"http without url", "provider:\n  kind: http\n", "base_url"},
		{"bad store", "store:\n  backend: redis\nprovider:\n  fixture_path: ./p.yaml\n", "store.backend"},
		{"radii inverted", "grouping:\n  default:\n    exact_m: 3000\n    nearby_m: 1000\nprovider:\n  fixture_path: ./p.yaml\n", "grouping"},
		{"ttl shorter than narration", "store:\n  ttl: 10s\njobs:\n  narration_timeout: 15s\nprovider:\n  fixture_path: ./p.yaml\n", "store.ttl"},
		{"weak below min viable", "ranking:\n  weak_match_threshold: 5\n  min_viable_score: 10\nprovider:\n  fixture_path: ./p.yaml\n", "ranking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.IsProduction() {
		t.Error("default environment should not be production")
	}
	if cfg.Store.TTL != 300*time.Second || cfg.Store.SweepInterval != 60*time.Second {
		t.Errorf("store defaults: %+v", cfg.Store)
	}
	if cfg.Hub.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat default: %v", cfg.Hub.HeartbeatInterval)
	}
	if cfg.Jobs.NarrationTimeout != 15*time.Second {
		t.Errorf("narration timeout default: %v", cfg.Jobs.NarrationTimeout)
	}
	if cfg.Ranking.WeakMatchThreshold != 30 || cfg.Ranking.MinViableScore != 10 || cfg.Ranking.MaxDistanceMeters != 5000 {
		t.Errorf("ranking defaults: %+v", cfg.Ranking)
	}
	if cfg.Provider.Kind != ProviderFixture || cfg.Narration.Kind != NarratorTemplate {
		t.Errorf("collaborator defaults: %s / %s", cfg.Provider.Kind, cfg.Narration.Kind)
	}
	p := cfg.Reliability.Policies()[OpProvider]
	if p.Attempts != 3 || p.Timeout != 5*time.Second {
		t.Errorf("provider policy: %+v", p)
	}
}

func TestServerConfig_IsProduction(t *testing.T) {
	s := ServerConfig{Environment: "Production"}
	if !s.IsProduction() {
		t.Error("environment match should be case-insensitive")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:   ServerConfig{Host: "localhost", Port: 9090},
		Provider: ProviderConfig{Kind: ProviderFixture, FixturePath: "/tmp/places.yaml"},
		Store:    StoreConfig{TTL: 90 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Store.TTL != 90*time.Second {
		t.Errorf("loaded ttl: got %v", loaded.Store.TTL)
	}
}
