package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "ecourts-fetcher" {
		t.Errorf("expected server name 'ecourts-fetcher', got %q", cfg.Server.Name)
	}
	if cfg.Server.Listen != ":5000" {
		t.Errorf("expected listen ':5000', got %q", cfg.Server.Listen)
	}
	if !cfg.Browser.IsHeadless() {
		t.Error("expected headless by default")
	}
	if cfg.Portal.BaseURL != "https://services.ecourts.gov.in/ecourtindia_v6/" {
		t.Errorf("unexpected portal base url %q", cfg.Portal.BaseURL)
	}
	if cfg.Session.IdleExpiry() != 5*time.Minute {
		t.Errorf("expected 5m idle expiry, got %v", cfg.Session.IdleExpiry())
	}
	if cfg.Download.RequestTimeout() != 30*time.Second {
		t.Errorf("expected 30s download timeout, got %v", cfg.Download.RequestTimeout())
	}
	if !cfg.Journal.Enable {
		t.Error("expected journal enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if err.Error() != "config path is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  name: "court-fetcher"
  listen: ":8080"

browser:
  debugger_url: "ws://localhost:9222"
  headless: false
  element_timeout: "12s"
  result_timeout: "25s"

portal:
  base_url: "http://portal.test/ecourtindia_v6/"

session:
  idle_timeout: "90s"

download:
  timeout: "5s"
  concurrency: 2

history:
  enable: true
  dsn: ":memory:"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Name != "court-fetcher" {
		t.Errorf("expected server name 'court-fetcher', got %q", cfg.Server.Name)
	}
	if cfg.Browser.IsHeadless() {
		t.Error("expected headless false")
	}
	if cfg.Browser.WaitTimeout() != 12*time.Second {
		t.Errorf("expected 12s element timeout, got %v", cfg.Browser.WaitTimeout())
	}
	if cfg.Browser.ResultWaitTimeout() != 25*time.Second {
		t.Errorf("expected 25s result timeout, got %v", cfg.Browser.ResultWaitTimeout())
	}
	if cfg.Session.IdleExpiry() != 90*time.Second {
		t.Errorf("expected 90s idle expiry, got %v", cfg.Session.IdleExpiry())
	}
	if cfg.Download.Workers() != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Download.Workers())
	}
	// Untouched sections keep their defaults.
	if cfg.Output.Dir != "data/output" {
		t.Errorf("expected default output dir, got %q", cfg.Output.Dir)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty server name", mutate: func(c *Config) { c.Server.Name = "" }, wantErr: true},
		{name: "empty output dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantErr: true},
		{name: "relative portal url", mutate: func(c *Config) { c.Portal.BaseURL = "/ecourtindia_v6/" }, wantErr: true},
		{name: "unknown time zone", mutate: func(c *Config) { c.Portal.TimeZone = "Mars/Olympus_Mons" }, wantErr: true},
		{name: "history without dsn", mutate: func(c *Config) { c.History.DSN = "" }, wantErr: true},
		{name: "history disabled without dsn", mutate: func(c *Config) { c.History.Enable = false; c.History.DSN = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	b := BrowserConfig{DefaultNavigationTimeout: "garbage", ElementTimeout: "-3s"}
	if b.NavigationTimeout() != 30*time.Second {
		t.Errorf("expected fallback 30s, got %v", b.NavigationTimeout())
	}
	if b.WaitTimeout() != 20*time.Second {
		t.Errorf("expected fallback 20s, got %v", b.WaitTimeout())
	}
	if (SessionConfig{}).SweepEvery() != 30*time.Second {
		t.Error("expected 30s sweep fallback")
	}
	if (DownloadConfig{}).Workers() != 4 {
		t.Error("expected 4 workers fallback")
	}
}

func TestPortalURLs(t *testing.T) {
	p := PortalConfig{BaseURL: "https://services.ecourts.gov.in/ecourtindia_v6/", CauseListPath: "?p=cause_list/"}
	if got := p.Origin(); got != "https://services.ecourts.gov.in" {
		t.Errorf("Origin() = %q", got)
	}
	if got := p.CauseListURL(); got != "https://services.ecourts.gov.in/ecourtindia_v6/?p=cause_list/" {
		t.Errorf("CauseListURL() = %q", got)
	}

	noSlash := PortalConfig{BaseURL: "http://127.0.0.1:8080/portal", CauseListPath: "causelist.html"}
	if got := noSlash.CauseListURL(); got != "http://127.0.0.1:8080/portal/causelist.html" {
		t.Errorf("CauseListURL() = %q", got)
	}
	if got := noSlash.Origin(); got != "http://127.0.0.1:8080" {
		t.Errorf("Origin() = %q", got)
	}
}

func TestPortalLocation(t *testing.T) {
	if got := DefaultConfig().Portal.TimeZone; got != DefaultPortalTimeZone {
		t.Errorf("default time zone = %q", got)
	}

	// 20:00 UTC is already the next day in India.
	evening := time.Date(2025, 10, 20, 20, 0, 0, 0, time.UTC)
	for _, p := range []PortalConfig{{}, {TimeZone: DefaultPortalTimeZone}, {TimeZone: "Nowhere/Unknown"}} {
		local := evening.In(p.Location())
		if local.Day() != 21 || local.Hour() != 1 || local.Minute() != 30 {
			t.Errorf("zone %q: %v, want 21 Oct 01:30", p.TimeZone, local)
		}
	}

	if loc := (PortalConfig{TimeZone: "UTC"}).Location(); evening.In(loc).Day() != 20 {
		t.Errorf("explicit UTC zone not honoured: %v", loc)
	}
}

func TestDiscoverWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	wsDir := filepath.Join(tmpDir, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0o755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte("server:\n  name: test\n"), 0o644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}

	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}

	result, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}

	empty := t.TempDir()
	result, err = DiscoverWorkspace(empty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestLoadWithWorkspaceResolvesPaths(t *testing.T) {
	root := t.TempDir()
	if err := InitWorkspace(root); err != nil {
		t.Fatalf("InitWorkspace failed: %v", err)
	}
	wsConfig := "output:\n  dir: \"artifacts\"\nhistory:\n  dsn: \":memory:\"\n"
	if err := os.WriteFile(filepath.Join(root, WorkspaceDirName, WorkspaceConfigFile), []byte(wsConfig), 0o644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}

	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != root {
		t.Errorf("expected workspace %q, got %q", root, wsDir)
	}
	if cfg.Output.Dir != filepath.Join(root, "artifacts") {
		t.Errorf("expected resolved output dir, got %q", cfg.Output.Dir)
	}
	if cfg.History.DSN != ":memory:" {
		t.Errorf("in-memory dsn must not be resolved, got %q", cfg.History.DSN)
	}

	explicit := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(explicit, []byte("server:\n  listen: \":7000\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}
	cfg, _, err = LoadWithWorkspace(explicit, WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Listen != ":7000" {
		t.Errorf("explicit config should win, got %q", cfg.Server.Listen)
	}
}

func TestInitWorkspaceTwice(t *testing.T) {
	root := t.TempDir()
	if err := InitWorkspace(root); err != nil {
		t.Fatalf("first InitWorkspace failed: %v", err)
	}
	if err := InitWorkspace(root); err == nil {
		t.Error("expected error when workspace already exists")
	}
}
