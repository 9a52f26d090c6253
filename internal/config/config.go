// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tdsharvest/internal/bookkeeper"
	"github.com/JakeFAU/tdsharvest/internal/catalog"
	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/ncml"
	"github.com/JakeFAU/tdsharvest/internal/storage"
	"github.com/JakeFAU/tdsharvest/internal/storage/sqlite"
	"github.com/JakeFAU/tdsharvest/internal/thredds"
)

// EnvPrefix prefixes every environment override, e.g. TDSHARVEST_HTTP_DELAY_MS.
const EnvPrefix = "TDSHARVEST"

// Index store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Index   IndexConfig   `mapstructure:"index"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// HTTPConfig controls the shared fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	// DelayMs is the fixed pause between requests to one host; 0 disables it.
	DelayMs       int  `mapstructure:"delay_ms"`
	RespectRobots bool `mapstructure:"respect_robots"`
	MaxBodyBytes  int  `mapstructure:"max_body_bytes"`
	// Retries is how many extra attempts a transport error or 5xx gets.
	Retries        int `mapstructure:"retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// IndexConfig drives the index pipeline.
type IndexConfig struct {
	CatalogURL           string           `mapstructure:"catalog_url"`
	Store                string           `mapstructure:"store"`
	DBPath               string           `mapstructure:"db_path"`
	Table                string           `mapstructure:"table"`
	Reset                bool             `mapstructure:"reset"`
	Columns              []harvest.Column `mapstructure:"columns"`
	DescriptorMarker     string           `mapstructure:"descriptor_marker"`
	ContainerElement     string           `mapstructure:"container_element"`
	LandingFailurePolicy string           `mapstructure:"landing_failure_policy"`
	DescriptorListPath   string           `mapstructure:"descriptor_list_path"`
}

// HarvestConfig drives the harvest pipeline.
type HarvestConfig struct {
	CatalogURL       string   `mapstructure:"catalog_url"`
	ISOPath          string   `mapstructure:"iso_path"`
	LogPath          string   `mapstructure:"log_path"`
	CrawlResultsPath string   `mapstructure:"crawl_results_path"`
	RetryPath        string   `mapstructure:"retry_path"`
	SuccessPath      string   `mapstructure:"success_path"`
	Selectors        []string `mapstructure:"selectors"`
	SkipPatterns     []string `mapstructure:"skip_patterns"`
	ServiceLabel     string   `mapstructure:"service_label"`
	Concurrency      int      `mapstructure:"concurrency"`
	MaxDepth         int      `mapstructure:"max_depth"`
}

// DBConfig controls access to Postgres when it backs the index.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig enables the status server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Binding maps a command-line flag onto a configuration key.
type Binding struct {
	Key  string
	Flag *pflag.Flag
}

// Load builds a Config from disk/environment, with flags taking precedence.
func Load(path string, bindings ...Binding) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", b.Key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "tdsharvest/0.1")
	v.SetDefault("http.delay_ms", 0)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.retries", 0)
	v.SetDefault("http.retry_backoff_ms", 500)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("index.store", StoreSQLite)
	v.SetDefault("index.db_path", sqlite.DefaultPath)
	v.SetDefault("index.table", storage.DefaultTable)
	v.SetDefault("index.reset", true)
	v.SetDefault("index.descriptor_marker", catalog.DefaultDescriptorMarker)
	v.SetDefault("index.container_element", ncml.DefaultContainer)
	v.SetDefault("harvest.crawl_results_path", bookkeeper.DefaultCrawlResultsPath)
	v.SetDefault("harvest.retry_path", bookkeeper.DefaultRetryPath)
	v.SetDefault("harvest.success_path", bookkeeper.DefaultSuccessPath)
	v.SetDefault("harvest.selectors", thredds.DefaultSelectors)
	v.SetDefault("harvest.skip_patterns", thredds.DefaultSkipPatterns)
	v.SetDefault("harvest.service_label", thredds.DefaultServiceLabel)
	v.SetDefault("harvest.concurrency", 1)
	v.SetDefault("harvest.max_depth", 0)
}

// Validate enforces values shared by every command.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DelayMs < 0 {
		return fmt.Errorf("http.delay_ms must be >= 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if c.HTTP.Retries < 0 || c.HTTP.RetryBackoffMs < 0 {
		return fmt.Errorf("http.retries and http.retry_backoff_ms must be >= 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.MaxDepth < 0 {
		return fmt.Errorf("harvest.max_depth must be >= 0")
	}
	return nil
}

// ValidateIndex enforces what the index command needs.
func (c Config) ValidateIndex() error {
	if err := validateCatalogURL("index.catalog_url", c.Index.CatalogURL); err != nil {
		return err
	}
	if _, err := harvest.ParseLandingPolicy(c.Index.LandingFailurePolicy); err != nil {
		return fmt.Errorf("index.landing_failure_policy must be %q or %q", harvest.LandingAbort, harvest.LandingSkip)
	}
	switch c.Index.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.Index.DBPath) == "" {
			return fmt.Errorf("index.db_path must be set for the sqlite store")
		}
	case StorePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("index.store must be one of %s, %s, %s", StoreSQLite, StorePostgres, StoreMemory)
	}
	if _, err := storage.TableName(c.Index.Table); err != nil {
		return fmt.Errorf("index.table: %w", err)
	}
	if _, err := c.Index.Schema(); err != nil {
		return fmt.Errorf("index.columns: %w", err)
	}
	return nil
}

// ValidateHarvest enforces what the harvest command needs. A retry run reaps
// the previous retry list, so the catalog URL is only checked when set.
func (c Config) ValidateHarvest(retry bool) error {
	if !retry || strings.TrimSpace(c.Harvest.CatalogURL) != "" {
		if err := validateCatalogURL("harvest.catalog_url", c.Harvest.CatalogURL); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Harvest.ISOPath) == "" {
		return fmt.Errorf("harvest.iso_path must be set")
	}
	if strings.TrimSpace(c.Harvest.ServiceLabel) == "" {
		return fmt.Errorf("harvest.service_label must be set")
	}
	return nil
}

// Schema builds the index schema, falling back to the default columns.
func (c IndexConfig) Schema() (*harvest.Schema, error) {
	cols := c.Columns
	if len(cols) == 0 {
		cols = harvest.DefaultColumns()
	}
	return harvest.NewSchema(cols)
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay converts the inter-request delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.HTTP.DelayMs) * time.Millisecond
}

// RetryBackoff converts the fetch retry backoff into a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.HTTP.RetryBackoffMs) * time.Millisecond
}

func validateCatalogURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
