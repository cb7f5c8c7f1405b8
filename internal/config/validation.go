package config

import (
	"fmt"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// Validate checks a configuration after defaults were applied.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateSite,
		c.validateCatalog,
		c.validateScan,
		c.validateProbe,
		c.validateBackends,
		c.validateHTTP,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return errors.ValidationError(fmt.Sprintf(format, args...)).
		WithContext("field", field).
		Build()
}

func (c *Config) validateSite() error {
	if c.Site.URL == "" {
		return invalid("site.url", "site.url is required")
	}
	u, err := url.Parse(c.Site.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("site.url", "site.url must be an absolute http(s) URL, got %q", c.Site.URL)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.Git != nil && c.Catalog.Git.URL == "" {
		return invalid("catalog.git.url", "catalog.git.url is required when catalog.git is set")
	}
	for _, t := range c.Catalog.PublicTypes {
		if strings.TrimSpace(t) == "" {
			return invalid("catalog.public_types", "catalog.public_types must not contain empty names")
		}
	}
	return nil
}

func (c *Config) validateScan() error {
	if !model.Depth(c.Scan.Depth).Valid() {
		return invalid("scan.depth", "scan.depth must be between %d and %d, got %d", model.DepthPages, model.DepthDeep, c.Scan.Depth)
	}
	if c.Scan.Throttle < 0 {
		return invalid("scan.throttle", "scan.throttle must not be negative")
	}
	return nil
}

func (c *Config) validateProbe() error {
	if c.Probe.MaxRedirects < 0 {
		return invalid("probe.max_redirects", "probe.max_redirects must not be negative")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.Store.DSN == "" {
		return invalid("store.dsn", "store.dsn is required for driver %s", c.Store.Driver)
	}
	if c.Progress.Backend == ProgressNATS && !c.NATS.Enabled() {
		return invalid("nats.url", "progress.backend nats requires nats.url")
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "metrics.path must start with /")
	}
	return nil
}
