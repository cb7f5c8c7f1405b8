package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("site:\n  url: https://example.com/\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Site.URL)
	assert.Equal(t, int(model.DepthPagesPosts), cfg.Scan.Depth)
	assert.Equal(t, 100, cfg.Scan.MaxPages)
	assert.False(t, cfg.Scan.IncludeExternal)
	assert.Equal(t, 100*time.Millisecond, cfg.Scan.Throttle)
	assert.Equal(t, 4, cfg.Scan.ProbeConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 5, cfg.Probe.MaxRedirects)
	assert.Equal(t, "LinkScan/1.0 (+https://example.com)", cfg.Probe.UserAgent)
	assert.True(t, cfg.Probe.FallbackToGET())
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "linkscan.db", cfg.Store.DSN)
	assert.Equal(t, ProgressMemory, cfg.Progress.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.False(t, cfg.NATS.Enabled())

	req := cfg.ScanRequest()
	assert.Equal(t, model.DepthPagesPosts, req.Depth)
	assert.Equal(t, 100, req.MaxPages)
}

func TestParse_FullConfig(t *testing.T) {
	t.Setenv("LINKSCAN_TEST_DSN", "postgres://scan@db/linkscan?sslmode=disable")
	yml := `
site:
  url: https://blog.example.org
catalog:
  root: ./content
  public_types: [post, page, product]
  git:
    url: https://git.example.org/blog.git
scan:
  depth: 3
  max_pages: 25
  include_external: true
  throttle: 250ms
  schedule: "0 3 * * *"
probe:
  timeout: 3s
  max_redirects: 2
  user_agent: custom/2.0
  head_fallback_get: false
store:
  driver: PostgreSQL
  dsn: ${LINKSCAN_TEST_DSN}
  table_prefix: wp_
progress:
  backend: nats
nats:
  url: nats://127.0.0.1:4222
logging:
  level: DEBUG
  format: json
`
	cfg, err := Parse([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, []string{"post", "page", "product"}, cfg.Catalog.PublicTypes)
	require.NotNil(t, cfg.Catalog.Git)
	assert.Equal(t, "main", cfg.Catalog.Git.Branch)
	assert.Equal(t, "./content", cfg.Catalog.Root)
	assert.Equal(t, 3, cfg.Scan.Depth)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.Throttle)
	assert.Equal(t, "0 3 * * *", cfg.Scan.Schedule)
	assert.Equal(t, 2, cfg.Probe.MaxRedirects)
	assert.Equal(t, "custom/2.0", cfg.Probe.UserAgent)
	assert.False(t, cfg.Probe.FallbackToGET())
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://scan@db/linkscan?sslmode=disable", cfg.Store.DSN)
	assert.Equal(t, ProgressNATS, cfg.Progress.Backend)
	assert.Equal(t, "linkscan.broken_links", cfg.NATS.Subject)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing site":       "scan:\n  depth: 2\n",
		"relative site":      "site:\n  url: /blog\n",
		"bad depth":          "site:\n  url: https://e.com\nscan:\n  depth: 9\n",
		"bad driver":         "site:\n  url: https://e.com\nstore:\n  driver: oracle\n",
		"mysql without dsn":  "site:\n  url: https://e.com\nstore:\n  driver: mysql\n",
		"nats progress only": "site:\n  url: https://e.com\nprogress:\n  backend: nats\n",
		"git without url":    "site:\n  url: https://e.com\ncatalog:\n  git:\n    branch: dev\n",
		"metrics path":       "site:\n  url: https://e.com\nmetrics:\n  path: metrics\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(yml))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation), "got %v", err)
		})
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("site:\n  url: https://e.com\nsurprise: true\n"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkscan.yaml")
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.Site.URL)
	assert.Equal(t, "./content", cfg.Catalog.Root)

	err = Init(path, false)
	assert.True(t, errors.HasCategory(err, errors.CategoryAlreadyExists))
	assert.NoError(t, Init(path, true))
}

func TestLoad_EnvFileDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(".env", []byte("LINKSCAN_SITE=https://from-env-file.example\nLINKSCAN_ADDR=:9999\n"), 0o600))
	t.Setenv("LINKSCAN_ADDR", ":7070")
	t.Setenv("LINKSCAN_SITE", "")
	require.NoError(t, os.Unsetenv("LINKSCAN_SITE"))

	require.NoError(t, os.WriteFile("cfg.yaml", []byte("site:\n  url: ${LINKSCAN_SITE}\nhttp:\n  addr: ${LINKSCAN_ADDR}\n"), 0o600))
	cfg, err := Load("cfg.yaml")
	require.NoError(t, err)
	assert.Equal(t, "https://from-env-file.example", cfg.Site.URL)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	t.Cleanup(func() { _ = os.Unsetenv("LINKSCAN_SITE") })
}

func TestNormalizeHelpers(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("chatty"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
}
