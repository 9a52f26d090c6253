package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Index.Store != StoreSQLite || cfg.Index.Table != "global" || !cfg.Index.Reset {
		t.Fatalf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.Index.DescriptorMarker != "/ncml/" || cfg.Index.ContainerElement != "netcdf" {
		t.Fatalf("unexpected extraction defaults: %+v", cfg.Index)
	}
	if len(cfg.Harvest.Selectors) != 2 || len(cfg.Harvest.SkipPatterns) != 6 {
		t.Fatalf("unexpected crawl defaults: %+v", cfg.Harvest)
	}
	if cfg.Harvest.ServiceLabel != "ISO" || cfg.Harvest.Concurrency != 1 {
		t.Fatalf("unexpected harvest defaults: %+v", cfg.Harvest)
	}
	if got := cfg.Timeout(); got != 30*time.Second {
		t.Fatalf("expected timeout 30s, got %v", got)
	}
	if cfg.HTTP.Retries != 0 || cfg.RetryBackoff() != 500*time.Millisecond {
		t.Fatalf("unexpected retry defaults: %+v", cfg.HTTP)
	}
	if cfg.Index.LandingFailurePolicy != "" {
		t.Fatalf("landing failure policy must have no default")
	}
	if err := cfg.ValidateIndex(); err == nil {
		t.Fatal("expected ValidateIndex to fail without catalog url and policy")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
http:
  timeout_seconds: 45
  user_agent: storm-bot
  delay_ms: 250
logging:
  development: false
  level: debug
index:
  catalog_url: http://h/thredds/catalog/SSV-Ncml/catalog.html
  store: memory
  landing_failure_policy: skip
  columns:
    - name: location
      type: text
    - name: StormYear
      type: integer
harvest:
  catalog_url: http://h/thredds/catalog.xml
  iso_path: /tmp/iso
  concurrency: 4
  selectors: [".*\\.nc$"]
metrics:
  addr: ":9100"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.UserAgent != "storm-bot" || cfg.Delay() != 250*time.Millisecond {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides to apply: %+v", cfg.Logging)
	}
	if err := cfg.ValidateIndex(); err != nil {
		t.Fatalf("ValidateIndex() error = %v", err)
	}
	if err := cfg.ValidateHarvest(false); err != nil {
		t.Fatalf("ValidateHarvest() error = %v", err)
	}
	schema, err := cfg.Index.Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if names := schema.Names(); len(names) != 2 || names[1] != "stormyear" {
		t.Fatalf("unexpected schema columns: %v", names)
	}
	if len(cfg.Harvest.Selectors) != 1 || cfg.Harvest.Concurrency != 4 {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected metrics addr override, got %q", cfg.Metrics.Addr)
	}
}

func TestLoadFlagBindings(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("iso-path", "", "")
	if err := fs.Parse([]string{"--iso-path", "/data/iso"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", Binding{Key: "harvest.iso_path", Flag: fs.Lookup("iso-path")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Harvest.ISOPath != "/data/iso" {
		t.Fatalf("expected flag to set iso path, got %q", cfg.Harvest.ISOPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Harvest: HarvestConfig{Concurrency: 1},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "negative delay",
			cfg: func() Config {
				c := base
				c.HTTP.DelayMs = -1
				return c
			}(),
			want: "http.delay_ms",
		},
		{
			name: "negative retries",
			cfg: func() Config {
				c := base
				c.HTTP.Retries = -1
				return c
			}(),
			want: "http.retries",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Harvest.Concurrency = 0
				return c
			}(),
			want: "harvest.concurrency",
		},
		{
			name: "negative max depth",
			cfg: func() Config {
				c := base
				c.Harvest.MaxDepth = -2
				return c
			}(),
			want: "harvest.max_depth",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateIndexErrors(t *testing.T) {
	t.Parallel()

	base := Config{Index: IndexConfig{
		CatalogURL:           "http://h/thredds/catalog.html",
		Store:                StoreSQLite,
		DBPath:               "thredds.db",
		LandingFailurePolicy: string(harvest.LandingAbort),
	}}
	if err := base.ValidateIndex(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing policy", mutate: func(c *Config) { c.Index.LandingFailurePolicy = "" }, want: "index.landing_failure_policy"},
		{name: "unknown policy", mutate: func(c *Config) { c.Index.LandingFailurePolicy = "retry" }, want: "index.landing_failure_policy"},
		{name: "relative catalog", mutate: func(c *Config) { c.Index.CatalogURL = "catalog.html" }, want: "index.catalog_url"},
		{name: "unknown store", mutate: func(c *Config) { c.Index.Store = "bolt" }, want: "index.store"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Index.Store = StorePostgres }, want: "db.dsn"},
		{name: "bad table", mutate: func(c *Config) { c.Index.Table = "a-b" }, want: "index.table"},
		{name: "bad columns", mutate: func(c *Config) {
			c.Index.Columns = []harvest.Column{{Name: "location", Type: harvest.ColumnText}, {Name: "location", Type: harvest.ColumnText}}
		}, want: "index.columns"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.ValidateIndex()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateHarvestErrors(t *testing.T) {
	t.Parallel()

	c := Config{Harvest: HarvestConfig{CatalogURL: "http://h/catalog.xml", ServiceLabel: "ISO"}}
	if err := c.ValidateHarvest(false); err == nil || !strings.Contains(err.Error(), "harvest.iso_path") {
		t.Fatalf("expected iso_path error, got %v", err)
	}
	c.Harvest.ISOPath = "/tmp/iso"
	if err := c.ValidateHarvest(false); err != nil {
		t.Fatalf("ValidateHarvest() error = %v", err)
	}
}

func TestValidateHarvestRetryWithoutCatalogURL(t *testing.T) {
	t.Parallel()

	c := Config{Harvest: HarvestConfig{ISOPath: "/tmp/iso", ServiceLabel: "ISO"}}
	if err := c.ValidateHarvest(false); err == nil || !strings.Contains(err.Error(), "harvest.catalog_url") {
		t.Fatalf("expected catalog_url error for a crawl run, got %v", err)
	}
	if err := c.ValidateHarvest(true); err != nil {
		t.Fatalf("retry run without catalog url: %v", err)
	}
	c.Harvest.CatalogURL = "not a url"
	if err := c.ValidateHarvest(true); err == nil {
		t.Fatal("expected a set but invalid catalog url to be rejected in retry mode")
	}
}
