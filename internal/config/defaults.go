package config

import (
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

const (
	DefaultThrottle         = 100 * time.Millisecond
	DefaultProbeConcurrency = 4
	DefaultProbeTimeout     = 10 * time.Second
	DefaultMaxRedirects     = 5
	DefaultStoreDSN         = "linkscan.db"
	DefaultHTTPAddr         = ":8080"
	DefaultMetricsPath      = "/metrics"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultWatchDebounce    = 2 * time.Second
	DefaultProgressBucket   = "linkscan_progress"
	DefaultProgressTTL      = 24 * time.Hour
	DefaultNATSSubject      = "linkscan.broken_links"
	DefaultGitBranch        = "main"
	DefaultGitCheckout      = ".linkscan/content"
)

func (c *Config) applyDefaults() {
	c.Site.URL = strings.TrimRight(strings.TrimSpace(c.Site.URL), "/")

	if c.Catalog.Git != nil {
		if c.Catalog.Git.Branch == "" {
			c.Catalog.Git.Branch = DefaultGitBranch
		}
		if c.Catalog.Root == "" {
			c.Catalog.Root = filepath.FromSlash(DefaultGitCheckout)
		}
	}
	if c.Catalog.WatchDebounce <= 0 {
		c.Catalog.WatchDebounce = DefaultWatchDebounce
	}

	if c.Scan.Depth == 0 {
		c.Scan.Depth = int(model.DefaultDepth)
	}
	if c.Scan.MaxPages <= 0 {
		c.Scan.MaxPages = model.DefaultMaxPages
	}
	if c.Scan.Throttle == 0 {
		c.Scan.Throttle = DefaultThrottle
	}
	if c.Scan.ProbeConcurrency <= 0 {
		c.Scan.ProbeConcurrency = DefaultProbeConcurrency
	}

	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}
	if c.Probe.MaxRedirects == 0 {
		c.Probe.MaxRedirects = DefaultMaxRedirects
	}
	if c.Probe.UserAgent == "" {
		c.Probe.UserAgent = "LinkScan/1.0"
		if c.Site.URL != "" {
			c.Probe.UserAgent += " (+" + c.Site.URL + ")"
		}
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == StoreSQLite {
		c.Store.DSN = DefaultStoreDSN
	}

	if c.Progress.Backend == "" {
		c.Progress.Backend = ProgressMemory
	}
	if c.Progress.Bucket == "" {
		c.Progress.Bucket = DefaultProgressBucket
	}
	if c.Progress.TTL <= 0 {
		c.Progress.TTL = DefaultProgressTTL
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "linkscan"
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
