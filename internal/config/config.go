package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level fetcher config.
	WorkspaceDirName = ".ecourts"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the fetcher service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Portal   PortalConfig   `yaml:"portal"`
	Session  SessionConfig  `yaml:"session"`
	Output   OutputConfig   `yaml:"output"`
	Download DownloadConfig `yaml:"download"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
	Journal  JournalConfig  `yaml:"journal"`
	Trace    TraceConfig    `yaml:"trace"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Listen is the HTTP listen address (e.g., ":5000").
	Listen string `yaml:"listen"`
	// CORSOrigins restricts cross-origin callers; empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Optional when launch is set.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command (e.g., ["chromium", "--no-sandbox"]). Empty uses Rod's managed browser.
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "30s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Timeout for waiting on individual form controls.
	ElementTimeout string `yaml:"element_timeout"`
	// Timeout for waiting on result tables after a submit.
	ResultTimeout string `yaml:"result_timeout"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// PortalConfig points the workflows at the court-records portal.
type PortalConfig struct {
	BaseURL       string `yaml:"base_url"`
	CauseListPath string `yaml:"cause_list_path"`

	// TimeZone is the IANA zone hearing dates are read in.
	TimeZone string `yaml:"time_zone"`
}

// SessionConfig bounds how long an abandoned captcha gate may hold a browser context.
type SessionConfig struct {
	IdleTimeout   string `yaml:"idle_timeout"`
	SweepInterval string `yaml:"sweep_interval"`
}

// OutputConfig is where downloaded and rendered artifacts are written and served from.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type DownloadConfig struct {
	Timeout     string `yaml:"timeout"`
	Concurrency int    `yaml:"concurrency"`
}

// LoggingConfig controls the zap logger and its rotating file sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// HistoryConfig controls persistence of terminal session outcomes.
type HistoryConfig struct {
	Enable bool   `yaml:"enable"`
	DSN    string `yaml:"dsn"`
}

// JournalConfig controls the embedded deductive lifecycle journal.
type JournalConfig struct {
	Enable          bool `yaml:"enable"`
	FactBufferLimit int  `yaml:"fact_buffer_limit"`

	// SchemaPath overrides the built-in lifecycle rules.
	SchemaPath string `yaml:"schema_path"`
}

// TraceConfig controls per-session JSONL trace files.
type TraceConfig struct {
	Enable   bool   `yaml:"enable"`
	Dir      string `yaml:"dir"`
	MaxFiles int    `yaml:"max_files"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port next to the HTTP API.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "ecourts-fetcher",
			Version: "0.3.0",
			Listen:  ":5000",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "30s",
			ElementTimeout:           "20s",
			ResultTimeout:            "20s",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Portal: PortalConfig{
			BaseURL:       "https://services.ecourts.gov.in/ecourtindia_v6/",
			CauseListPath: "?p=cause_list/",
			TimeZone:      DefaultPortalTimeZone,
		},
		Session: SessionConfig{
			IdleTimeout:   "5m",
			SweepInterval: "30s",
		},
		Output: OutputConfig{
			Dir: "data/output",
		},
		Download: DownloadConfig{
			Timeout:     "30s",
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			File:       "data/ecourts-fetcher.log",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		History: HistoryConfig{
			Enable: true,
			DSN:    "data/history.db",
		},
		Journal: JournalConfig{
			Enable:          true,
			FactBufferLimit: 4096,
		},
		Trace: TraceConfig{
			Enable:   false,
			Dir:      "data/traces",
			MaxFiles: 50,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .ecourts/config.yaml file.
// Returns the workspace root directory (parent of .ecourts/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .ecourts/config.yaml <- explicit --config
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .ecourts/ directory with a template config at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	for _, d := range []string{wsDir, filepath.Join(wsDir, "data")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# ecourts-fetcher project-level configuration
# Values here override defaults but are overridden by --config.

# server:
#   listen: ":5000"

# browser:
#   headless: false
#   element_timeout: "20s"
#   result_timeout: "20s"

# session:
#   idle_timeout: "5m"

# output:
#   dir: "data/output"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0o644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("data/\n"), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Logging.File = resolve(cfg.Logging.File)
	cfg.Output.Dir = resolve(cfg.Output.Dir)
	cfg.Journal.SchemaPath = resolve(cfg.Journal.SchemaPath)
	cfg.Trace.Dir = resolve(cfg.Trace.Dir)
	if cfg.History.DSN != ":memory:" {
		cfg.History.DSN = resolve(cfg.History.DSN)
	}
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Output.Dir == "" {
		return errors.New("output.dir is required")
	}
	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("portal.base_url must be an absolute URL, got %q", c.Portal.BaseURL)
	}
	if c.Portal.TimeZone != "" && c.Portal.TimeZone != DefaultPortalTimeZone {
		if _, err := time.LoadLocation(c.Portal.TimeZone); err != nil {
			return fmt.Errorf("portal.time_zone %q: %w", c.Portal.TimeZone, err)
		}
	}
	if c.History.Enable && c.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 30*time.Second)
}

// WaitTimeout returns how long a single form control may take to appear.
func (b BrowserConfig) WaitTimeout() time.Duration {
	return parseDurationOr(b.ElementTimeout, 20*time.Second)
}

// ResultWaitTimeout returns how long a result table may take to render after submit.
func (b BrowserConfig) ResultWaitTimeout() time.Duration {
	return parseDurationOr(b.ResultTimeout, 20*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// Origin returns scheme://host of the portal, used to absolutize host-relative links.
func (p PortalConfig) Origin() string {
	u, err := url.Parse(p.BaseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// CauseListURL joins the base URL with the cause-list page path.
func (p PortalConfig) CauseListURL() string {
	if p.CauseListPath == "" {
		return p.BaseURL
	}
	if !strings.HasSuffix(p.BaseURL, "/") && !strings.HasPrefix(p.CauseListPath, "?") {
		return p.BaseURL + "/" + p.CauseListPath
	}
	return p.BaseURL + p.CauseListPath
}

// DefaultPortalTimeZone is the zone the portal publishes dates in.
const DefaultPortalTimeZone = "Asia/Kolkata"

// Location resolves TimeZone. Indian Standard Time is used when the zone is
// unset or the host has no tzdata for it.
func (p PortalConfig) Location() *time.Location {
	if p.TimeZone != "" {
		if loc, err := time.LoadLocation(p.TimeZone); err == nil {
			return loc
		}
	}
	return time.FixedZone("IST", 5*3600+30*60)
}

// IdleExpiry returns the inactivity window after which an open session is reaped.
func (s SessionConfig) IdleExpiry() time.Duration {
	return parseDurationOr(s.IdleTimeout, 5*time.Minute)
}

// SweepEvery returns how often the idle sweeper runs.
func (s SessionConfig) SweepEvery() time.Duration {
	return parseDurationOr(s.SweepInterval, 30*time.Second)
}

// RequestTimeout returns the per-document download timeout.
func (d DownloadConfig) RequestTimeout() time.Duration {
	return parseDurationOr(d.Timeout, 30*time.Second)
}

// Workers returns the per-session download concurrency.
func (d DownloadConfig) Workers() int {
	if d.Concurrency <= 0 {
		return 4
	}
	return d.Concurrency
}
