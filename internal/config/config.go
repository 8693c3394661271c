// Package config loads and validates questledger configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Update   UpdateConfig   `mapstructure:"update"`
}

// StoreConfig locates the main progress database.
type StoreConfig struct {
	Path           string `mapstructure:"path"`
	LegacyUserFile string `mapstructure:"legacy_user_file"`
	BusyTimeoutMs  int    `mapstructure:"busy_timeout_ms"`
	Backup         bool   `mapstructure:"backup"`
}

// CacheConfig bounds the on-disk page cache.
type CacheConfig struct {
	Path                  string `mapstructure:"path"`
	TTLHours              int    `mapstructure:"ttl_hours"`
	MaxSizeMB             int    `mapstructure:"max_size_mb"`
	MaxEntries            int    `mapstructure:"max_entries"`
	VacuumIntervalMinutes int    `mapstructure:"vacuum_interval_minutes"`
}

// HTTPConfig configures fetch timeouts, retry behavior and throttling.
type HTTPConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BackoffFactorMs int    `mapstructure:"backoff_factor_ms"`
	BackoffMaxMs    int    `mapstructure:"backoff_max_ms"`
	RequestDelayMs  int    `mapstructure:"request_delay_ms"`
}

// ProfilesConfig governs profile naming.
type ProfilesConfig struct {
	Default       string `mapstructure:"default"`
	MaxNameLength int    `mapstructure:"max_name_length"`
}

// CatalogConfig lists the synchronized categories in order plus the curated
// baseline entries for each.
type CatalogConfig struct {
	Categories          []CategorySource `mapstructure:"categories"`
	Baseline            []BaselineEntry  `mapstructure:"baseline"`
	MaxEntryNameLength  int              `mapstructure:"max_entry_name_length"`
	MaxGroupLabelLength int              `mapstructure:"max_group_label_length"`
}

// CategorySource binds a category name to the page listing its entries.
type CategorySource struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// BaselineEntry is the curated, never-removed entry list for one category.
// Entries containing the section marker are grouping labels.
type BaselineEntry struct {
	Category string   `mapstructure:"category"`
	Entries  []string `mapstructure:"entries"`
}

// ExtractConfig holds the table heuristics used when parsing list pages.
type ExtractConfig struct {
	ContentSelector      string   `mapstructure:"content_selector"`
	HeaderLabels         []string `mapstructure:"header_labels"`
	GroupLabels          []string `mapstructure:"group_labels"`
	ExcludedTableClasses []string `mapstructure:"excluded_table_classes"`
	Ignore               []string `mapstructure:"ignore"`
	NonEntryMarkers      []string `mapstructure:"non_entry_markers"`
	CatchAllLabel        string   `mapstructure:"catch_all_label"`
	MinNameLength        int      `mapstructure:"min_name_length"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the optional Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// UpdateConfig points `version --check` at a GitHub "latest release" endpoint.
type UpdateConfig struct {
	ReleasesURL string `mapstructure:"releases_url"`
}

// Load builds a Config from disk/environment. When path is empty the
// working directory and $HOME/.questledger are searched for questledger.yaml;
// a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUESTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("questledger")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.questledger")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyCatalogDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "questledger.db")
	v.SetDefault("store.legacy_user_file", "")
	v.SetDefault("store.busy_timeout_ms", 60000)
	v.SetDefault("store.backup", true)
	v.SetDefault("cache.path", "questledger_cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_size_mb", 50)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.vacuum_interval_minutes", 10)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_factor_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.request_delay_ms", 1000)
	v.SetDefault("profiles.default", "Default")
	v.SetDefault("profiles.max_name_length", 32)
	v.SetDefault("catalog.max_entry_name_length", 128)
	v.SetDefault("catalog.max_group_label_length", 64)
	v.SetDefault("extract.content_selector", "#mw-content-text")
	v.SetDefault("extract.header_labels", []string{"quest", "location", "given by", "type", "level"})
	v.SetDefault("extract.group_labels", []string{"location", "given at"})
	v.SetDefault("extract.excluded_table_classes", []string{"navbox", "catlinks", "mw-footer"})
	v.SetDefault("extract.ignore", DefaultIgnoreList())
	v.SetDefault("extract.non_entry_markers", []string{"Category:", "Help:"})
	v.SetDefault("extract.catch_all_label", "Uncategorized")
	v.SetDefault("extract.min_name_length", 2)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("update.releases_url", "https://api.github.com/repos/JakeFAU/questledger/releases/latest")
}

// applyCatalogDefaults fills list-of-struct settings that Viper defaults
// cannot express cleanly.
func (c *Config) applyCatalogDefaults() {
	if len(c.Catalog.Categories) == 0 {
		c.Catalog.Categories = DefaultCategories()
	}
	if len(c.Catalog.Baseline) == 0 {
		c.Catalog.Baseline = DefaultBaseline()
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Store.BusyTimeoutMs < 0 {
		return fmt.Errorf("store.busy_timeout_ms must be >= 0")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path must be set")
	}
	if c.Cache.Path == c.Store.Path {
		return fmt.Errorf("cache.path must differ from store.path")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.Cache.MaxSizeMB <= 0 {
		return fmt.Errorf("cache.max_size_mb must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffFactorMs < 0 || c.HTTP.RequestDelayMs < 0 {
		return fmt.Errorf("http backoff and delay must be >= 0")
	}
	if c.Profiles.Default == "" {
		return fmt.Errorf("profiles.default must be set")
	}
	if c.Profiles.MaxNameLength <= 0 {
		return fmt.Errorf("profiles.max_name_length must be > 0")
	}
	if len(c.Profiles.Default) > c.Profiles.MaxNameLength {
		return fmt.Errorf("profiles.default exceeds profiles.max_name_length")
	}
	if c.Catalog.MaxEntryNameLength <= 0 {
		return fmt.Errorf("catalog.max_entry_name_length must be > 0")
	}
	seen := make(map[string]struct{}, len(c.Catalog.Categories))
	for _, src := range c.Catalog.Categories {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("catalog.categories entries need name and url")
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("catalog.categories: duplicate category %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	if len(c.Extract.HeaderLabels) == 0 {
		return fmt.Errorf("extract.header_labels must not be empty")
	}
	if c.Extract.CatchAllLabel == "" {
		return fmt.Errorf("extract.catch_all_label must be set")
	}
	return nil
}

// CacheTTL returns the configured cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// CacheMaxBytes converts the megabyte cap into bytes.
func (c Config) CacheMaxBytes() int64 {
	return int64(c.Cache.MaxSizeMB) * 1024 * 1024
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestDelay is the pause between consecutive category fetches.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.HTTP.RequestDelayMs) * time.Millisecond
}

// BusyTimeout converts the SQLite busy timeout into a duration.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.Store.BusyTimeoutMs) * time.Millisecond
}
