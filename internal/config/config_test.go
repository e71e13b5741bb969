package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"storyvoice/internal/config"
)

func TestLoadDefaultConfigUsesEnvUserAndExpandsPaths(t *testing.T) {
	t.Setenv("STORYVOICE_USER_ID", "user-1")
	t.Setenv("STORYVOICE_API_URL", "")
	t.Setenv("XDG_CACHE_HOME", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.API.UserID != "user-1" {
		t.Fatalf("expected user id from env, got %q", cfg.API.UserID)
	}
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected base url: %q", cfg.API.BaseURL)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "storyvoice")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	wantCache := filepath.Join(tempHome, ".cache", "storyvoice", "audio")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Upload.MaxBytes != 10*1024*1024 {
		t.Fatalf("unexpected upload ceiling: %d", cfg.Upload.MaxBytes)
	}
	if cfg.StateDBPath() != filepath.Join(wantState, "catalog.db") {
		t.Fatalf("unexpected state db path: %q", cfg.StateDBPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("STORYVOICE_USER_ID", "")
	t.Setenv("STORYVOICE_API_URL", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "storyvoice.toml")

	contents := `
[api]
base_url = "https://narration.example.com/api/"
user_id = "  abc123  "

[upload]
allowed_types = ["AUDIO/WAV", "audio/wav", " audio/mpeg "]

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.API.BaseURL != "https://narration.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.UserID != "abc123" {
		t.Fatalf("expected trimmed user id, got %q", cfg.API.UserID)
	}
	if got := strings.Join(cfg.Upload.AllowedTypes, ","); got != "audio/wav,audio/mpeg" {
		t.Fatalf("unexpected allowed types: %q", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lower-cased log format, got %q", cfg.Logging.Format)
	}
}

func TestEnvBaseURLOverridesConfigFile(t *testing.T) {
	t.Setenv("STORYVOICE_API_URL", "http://override:9000/")
	configPath := filepath.Join(t.TempDir(), "storyvoice.toml")
	if err := os.WriteFile(configPath, []byte("[api]\nbase_url = \"http://file:8000\"\nuser_id = \"u\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://override:9000" {
		t.Fatalf("expected env override, got %q", cfg.API.BaseURL)
	}
}

func TestLoadRequiresUserID(t *testing.T) {
	t.Setenv("STORYVOICE_USER_ID", "")
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "missing.toml")

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error without user id")
	}
	if !strings.Contains(err.Error(), "api.user_id") {
		t.Fatalf("expected user id hint in error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_user_id_here") {
		t.Fatalf("sample config missing placeholder user id: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Upload.MaxBytes != 10485760 {
		t.Fatalf("unexpected sample upload ceiling: %d", cfg.Upload.MaxBytes)
	}
	if len(cfg.Capture.Command) == 0 || cfg.Capture.Command[0] != "arecord" {
		t.Fatalf("unexpected sample capture command: %v", cfg.Capture.Command)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.API.UserID = "user"
		return cfg
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with user id to validate, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"ftp scheme", func(c *config.Config) { c.API.BaseURL = "ftp://example.com" }},
		{"missing host", func(c *config.Config) { c.API.BaseURL = "http://" }},
		{"negative timeout", func(c *config.Config) { c.API.RequestTimeout = -1 }},
		{"empty capture command", func(c *config.Config) { c.Capture.Command = nil }},
		{"negative capture cap", func(c *config.Config) { c.Capture.MaxSeconds = -5 }},
		{"zero upload ceiling", func(c *config.Config) { c.Upload.MaxBytes = 0 }},
		{"video type allowed", func(c *config.Config) { c.Upload.AllowedTypes = []string{"video/mp4"} }},
		{"unknown log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
