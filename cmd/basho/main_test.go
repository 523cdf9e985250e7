package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/basho/internal/cli"
	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"ramen near shibuya", "-limit", "5"},
			expected: []string{"-limit", "5", "ramen near shibuya"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "ramen near shibuya"},
			expected: []string{"-limit", "5", "ramen near shibuya"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"ramen near shibuya"},
			expected: []string{"ramen near shibuya"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"cheap", "ramen", "-open-now"},
			expected: []string{"-open-now", "cheap", "ramen"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"ramen"}, "ramen"},
		{"multiple words", []string{"ramen", "near", "shibuya"}, "ramen near shibuya"},
		{"single quoted phrase", []string{"ramen near shibuya"}, "ramen near shibuya"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSearchConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		defaultPath string
		want        string
	}{
		{"no config flag", []string{"-limit", "5", "query"}, "/default.yaml", "/default.yaml"},
		{"-config present", []string{"-config", "/custom.yaml", "query"}, "/default.yaml", "/custom.yaml"},
		{"--config present", []string{"--config", "/other.yaml"}, "/default.yaml", "/other.yaml"},
		{"config at end", []string{"query", "-config", "/end.yaml"}, "/default.yaml", "/end.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchConfigPathFromArgs(tt.args, tt.defaultPath)
			if got != tt.want {
				t.Errorf("searchConfigPathFromArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSearchLimitDefaultFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
search:
  default_limit: 7
provider:
  fixture_path: "./places.yaml"
`)
	if got := searchLimitDefaultFromConfig(path); got != 7 {
		t.Errorf("searchLimitDefaultFromConfig() = %d, want 7", got)
	}
	if got := searchLimitDefaultFromConfig(filepath.Join(dir, "nonexistent.yaml")); got != 10 {
		t.Errorf("searchLimitDefaultFromConfig(nonexistent) = %d, want 10", got)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `
debug: true
server:
  host: "localhost"
  port: 8080
provider:
  fixture_path: "./places.yaml"
`)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `
server:
  host: "127.0.0.1"
  port: 9000
provider:
  fixture_path: "./places.yaml"
`)

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Provider.FixturePath != filepath.Join(dir, "places.yaml") {
		t.Errorf("fixture path not expanded: %s", cfg.Provider.FixturePath)
	}
}

func TestLoadConfig_invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
provider:
  kind: "carrier-pigeon"
`)
	if _, _, err := loadConfig(path); err == nil {
		t.Error("expected validation error for unknown provider kind")
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    cli.SearchOutputFormat
		wantErr bool
	}{
		{"", cli.OutputText, false},
		{"text", cli.OutputText, false},
		{"json", cli.OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := parseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" || r.URL.Query().Get("mode") != models.SearchModeSync {
			http.Error(w, "unexpected request "+r.URL.String(), http.StatusBadRequest)
			return
		}
		var req models.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query != "ramen" || req.Limit != 3 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.SearchResponse{RequestID: "req-1", Meta: models.SearchMeta{Total: 1}})
	}))
	defer srv.Close()

	resp, err := searchViaHTTP(srv.URL+"/", &models.SearchRequest{Query: "ramen", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "req-1" || resp.Meta.Total != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if _, err := searchViaHTTP(srv.URL, &models.SearchRequest{Query: "sushi"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestRequestViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/requests/req-1":
			_ = json.NewEncoder(w).Encode(models.RequestState{RequestID: "req-1", Status: models.StatusCompleted})
		case "/api/v1/requests/boom":
			http.Error(w, "kaput", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	st, err := requestViaHTTP(srv.URL, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != models.StatusCompleted {
		t.Errorf("status = %q", st.Status)
	}
	if _, err := requestViaHTTP(srv.URL, "gone"); !errors.Is(err, errRequestNotFound) {
		t.Errorf("got %v, want errRequestNotFound", err)
	}
	if _, err := requestViaHTTP(srv.URL, "boom"); err == nil {
		t.Error("expected error for 500")
	}
}

func TestInitializeComponents(t *testing.T) {
	fixture, err := filepath.Abs("../../internal/provider/testdata/places.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Provider.FixturePath = fixture
	cfg.Narration.Kind = config.NarratorOpenAI
	cfg.Narration.APIKeyEnv = "BASHO_TEST_UNSET_KEY"

	c, err := initializeComponents(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Engine == nil || c.Runner == nil || c.Hub == nil || c.Store == nil {
		t.Fatalf("incomplete components: %+v", c)
	}
	if c.Provider.Name() != "fixture" {
		t.Errorf("provider = %s", c.Provider.Name())
	}
}
