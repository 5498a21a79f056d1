// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Browser BrowserConfig `mapstructure:"browser"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Media   MediaConfig   `mapstructure:"media"`
	Detail  DetailConfig  `mapstructure:"detail"`
	Session SessionConfig `mapstructure:"session"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig names the target site.
type SiteConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	SourceName string `mapstructure:"source_name"`
	// BrandStoplist holds tokens that never count as a store name.
	BrandStoplist []string `mapstructure:"brand_stoplist"`
}

// BrowserConfig selects and tunes the page driver.
type BrowserConfig struct {
	Driver         string        `mapstructure:"driver"`
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	UserDataDir    string        `mapstructure:"user_data_dir"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	// IsolateCookies gives every detail tab its own cookie-seeded browser context.
	IsolateCookies bool          `mapstructure:"isolate_cookies"`
	WindowWidth    int           `mapstructure:"window_width"`
	WindowHeight   int           `mapstructure:"window_height"`
	Locale         string        `mapstructure:"locale"`
	Timezone       string        `mapstructure:"timezone"`
	// ControlURL attaches the rod driver to a running browser.
	ControlURL string `mapstructure:"control_url"`
}

// ScrapeConfig bounds discovery and ranking.
type ScrapeConfig struct {
	MaxCandidates  int  `mapstructure:"max_candidates"`
	TopN           int  `mapstructure:"top_n"`
	CardMultiplier int  `mapstructure:"card_multiplier"`
	ScrollCycles   int  `mapstructure:"scroll_cycles"`
	SkipBlockCheck bool `mapstructure:"skip_block_check"`
}

// PacingConfig spaces network-facing steps.
type PacingConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	MaxRPS   float64       `mapstructure:"max_rps"`
}

// RetryConfig drives the shared exponential retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// MediaConfig controls image downloads.
type MediaConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Root       string `mapstructure:"root"`
	BaseFolder string `mapstructure:"base_folder"`
	// Backend is local or gcs.
	Backend    string        `mapstructure:"backend"`
	GCSBucket  string        `mapstructure:"gcs_bucket"`
	GCSPrefix  string        `mapstructure:"gcs_prefix"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxBytes   int64         `mapstructure:"max_bytes"`
	TargetSize int           `mapstructure:"target_size"`
}

// DetailConfig tunes product page extraction.
type DetailConfig struct {
	MaxImages int `mapstructure:"max_images"`
}

// SessionConfig locates the persisted cookie file.
type SessionConfig struct {
	StateFile string `mapstructure:"state_file"`
}

// OutputConfig selects row sinks.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// Formats lists sinks: xlsx, csv, postgres, pubsub.
	Formats []string `mapstructure:"formats"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the health and metrics listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

var (
	drivers  = []string{"chromedp", "rod"}
	backends = []string{"local", "gcs"}
	formats  = []string{"xlsx", "csv", "postgres", "pubsub"}
	levels   = []string{"", "debug", "info", "warn", "error"}
)

// Load builds a Config from disk/environment. An empty path searches the
// working directory and $HOME/.prodrefs for a prodrefs config file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRODREFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		// Without an explicit path, prodrefs.{yaml,json,toml} is optional.
		v.SetConfigName("prodrefs")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.prodrefs")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.tokopedia.com")
	v.SetDefault("site.source_name", "tokopedia")
	v.SetDefault("site.brand_stoplist", []string{"tokopedia"})
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.nav_timeout", 15*time.Second)
	v.SetDefault("browser.wait_timeout", 8*time.Second)
	v.SetDefault("browser.isolate_cookies", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.locale", "id-ID")
	v.SetDefault("browser.timezone", "Asia/Jakarta")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("scrape.max_candidates", 30)
	v.SetDefault("scrape.top_n", 5)
	v.SetDefault("scrape.card_multiplier", 5)
	v.SetDefault("scrape.scroll_cycles", 3)
	v.SetDefault("scrape.skip_block_check", false)
	v.SetDefault("pacing.min_delay", time.Second)
	v.SetDefault("pacing.max_delay", 3*time.Second)
	v.SetDefault("pacing.max_rps", 1.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 8*time.Second)
	v.SetDefault("media.enabled", true)
	v.SetDefault("media.root", "images")
	v.SetDefault("media.base_folder", "tokopedia")
	v.SetDefault("media.backend", "local")
	v.SetDefault("media.gcs_bucket", "")
	v.SetDefault("media.gcs_prefix", "images")
	v.SetDefault("media.timeout", 10*time.Second)
	v.SetDefault("media.max_bytes", 5<<20)
	v.SetDefault("media.target_size", 700)
	v.SetDefault("detail.max_images", 10)
	v.SetDefault("session.state_file", "tokopedia_storage_state.json")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", []string{"xlsx"})
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "product_refs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if !slices.Contains(drivers, c.Browser.Driver) {
		return fmt.Errorf("browser.driver must be one of %v, got %q", drivers, c.Browser.Driver)
	}
	if c.Browser.NavTimeout <= 0 || c.Browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout and browser.wait_timeout must be > 0")
	}
	if c.Scrape.MaxCandidates <= 0 {
		return fmt.Errorf("scrape.max_candidates must be > 0")
	}
	if c.Scrape.TopN <= 0 {
		return fmt.Errorf("scrape.top_n must be > 0")
	}
	if c.Pacing.MinDelay < 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
		return fmt.Errorf("pacing.max_delay must be >= pacing.min_delay >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Media.Enabled {
		if !slices.Contains(backends, c.Media.Backend) {
			return fmt.Errorf("media.backend must be one of %v, got %q", backends, c.Media.Backend)
		}
		if c.Media.Backend == "gcs" && c.Media.GCSBucket == "" {
			return fmt.Errorf("media.gcs_bucket must be set when media.backend is gcs")
		}
		if c.Media.MaxBytes <= 0 {
			return fmt.Errorf("media.max_bytes must be > 0")
		}
	}
	for _, f := range c.Output.Formats {
		if !slices.Contains(formats, f) {
			return fmt.Errorf("output.formats: unknown format %q", f)
		}
	}
	if c.Sinks("postgres") && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when output.formats includes postgres")
	}
	if c.Sinks("pubsub") && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when output.formats includes pubsub")
	}
	if !slices.Contains(levels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// Sinks reports whether format is among the configured outputs.
func (c Config) Sinks(format string) bool {
	return slices.Contains(c.Output.Formats, format)
}
