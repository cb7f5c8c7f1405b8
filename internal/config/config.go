// Package config loads and validates the linkscan configuration file.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// Config is the root of linkscan.yaml.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Scan     ScanConfig     `yaml:"scan"`
	Probe    ProbeConfig    `yaml:"probe"`
	Store    StoreConfig    `yaml:"store"`
	Progress ProgressConfig `yaml:"progress"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SiteConfig identifies the scanned site.
type SiteConfig struct {
	URL string `yaml:"url"`
}

// CatalogConfig points at the site content.
type CatalogConfig struct {
	Root          string        `yaml:"root"`
	PublicTypes   []string      `yaml:"public_types,omitempty"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce,omitempty"`
	Git           *GitConfig    `yaml:"git,omitempty"`
}

// GitConfig makes the catalog a checkout of a remote repository.
type GitConfig struct {
	URL          string `yaml:"url"`
	Branch       string `yaml:"branch,omitempty"`
	Token        string `yaml:"token,omitempty"`
	SyncSchedule string `yaml:"sync_schedule,omitempty"` // cron, empty disables periodic pulls
}

// ScanConfig holds the defaults for new scans.
type ScanConfig struct {
	Depth            int           `yaml:"depth"`
	MaxPages         int           `yaml:"max_pages"`
	IncludeExternal  bool          `yaml:"include_external"`
	Throttle         time.Duration `yaml:"throttle"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	Schedule         string        `yaml:"schedule,omitempty"` // cron for recurring scans
}

// ProbeConfig tunes external link probes.
type ProbeConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxRedirects    int           `yaml:"max_redirects"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
	HeadFallbackGET *bool         `yaml:"head_fallback_get,omitempty"`
}

// FallbackToGET reports whether HEAD probes rejected with 405/501 are retried with GET.
func (p ProbeConfig) FallbackToGET() bool {
	return p.HeadFallbackGET == nil || *p.HeadFallbackGET
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      StoreDriver `yaml:"driver"`
	DSN         string      `yaml:"dsn"`
	TablePrefix string      `yaml:"table_prefix,omitempty"`
}

// ProgressConfig selects where progress snapshots live.
type ProgressConfig struct {
	Backend ProgressBackend `yaml:"backend"`
	Bucket  string          `yaml:"bucket,omitempty"`
	TTL     time.Duration   `yaml:"ttl,omitempty"`
}

// NATSConfig enables broken-link events. An empty URL disables NATS.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
	Name    string `yaml:"name,omitempty"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig exposes Prometheus metrics on the API server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ScanRequest returns the configured scan defaults as a request.
func (c *Config) ScanRequest() model.ScanRequest {
	return model.ScanRequest{
		Depth:           model.Depth(c.Scan.Depth),
		MaxPages:        c.Scan.MaxPages,
		IncludeExternal: c.Scan.IncludeExternal,
	}
}

// Load reads path, expands environment variables, applies defaults and
// validates the result. .env and .env.local are loaded first without
// overriding variables already set.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundError("configuration file not found").
			WithContext("path", path).
			Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML config content. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config").Build()
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied for siteURL.
func Default(siteURL string) *Config {
	cfg := &Config{Site: SiteConfig{URL: siteURL}}
	cfg.applyDefaults()
	return cfg
}

// Init writes a commented starter configuration to path. An existing file
// is only replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.AlreadyExistsError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path)).
			WithContext("path", path).
			Build()
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to write config file").
			WithContext("path", path).
			Build()
	}
	return nil
}

const starterConfig = `# linkscan configuration
site:
  # Root URL every document permalink lives under.
  url: https://example.com

catalog:
  # Directory of markdown/HTML documents with YAML front matter.
  root: ./content
  # Public content types in registration order (default: derived from content).
  # public_types: [post, page]
  watch: false
  # git:
  #   url: https://git.example.com/site/content.git
  #   branch: main
  #   token: ${CONTENT_GIT_TOKEN}
  #   sync_schedule: "*/15 * * * *"

scan:
  # 1 pages, 2 pages+posts, 3 all public types, 4 reserved (same as 3)
  depth: 2
  max_pages: 100
  include_external: false
  throttle: 100ms
  probe_concurrency: 4
  # schedule: "0 3 * * *"

probe:
  timeout: 10s
  max_redirects: 5
  head_fallback_get: true

store:
  # sqlite, mysql or postgres
  driver: sqlite
  dsn: linkscan.db

progress:
  # memory or nats
  backend: memory

# nats:
#   url: nats://127.0.0.1:4222
#   subject: linkscan.broken_links
#   stream: LINKSCAN

http:
  addr: ":8080"

logging:
  level: info
  format: text

metrics:
  enabled: true
  path: /metrics
`
