package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for NewsHound.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"     yaml:"engine"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	AI         AIConfig         `mapstructure:"ai"         yaml:"ai"`
	Media      MediaConfig      `mapstructure:"media"      yaml:"media"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
	API        APIConfig        `mapstructure:"api"        yaml:"api"`
}

// EngineConfig controls monitors, locks and the watchdog.
type EngineConfig struct {
	LocksDir         string        `mapstructure:"locks_dir"          yaml:"locks_dir"`
	MasterLockMaxAge time.Duration `mapstructure:"master_lock_max_age" yaml:"master_lock_max_age"`
	StaleLockAge     time.Duration `mapstructure:"stale_lock_age"     yaml:"stale_lock_age"`
	DefaultInterval  time.Duration `mapstructure:"default_interval"   yaml:"default_interval"`
	ErrorBackoff     time.Duration `mapstructure:"error_backoff"      yaml:"error_backoff"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"  yaml:"watchdog_interval"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"      yaml:"startup_delay"`
	SeenTTL          time.Duration `mapstructure:"seen_ttl"           yaml:"seen_ttl"` // 0 keeps fingerprints for the process lifetime
}

// FetcherConfig controls the HTTP and browser fetchers.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	BrowserPages    int           `mapstructure:"browser_pages"     yaml:"browser_pages"`
	BrowserStealth  bool          `mapstructure:"browser_stealth"   yaml:"browser_stealth"`
}

// StorageConfig selects the article and source stores.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"` // sqlite, mongodb
	DSN             string `mapstructure:"dsn"              yaml:"dsn"`
	SourcesDSN      string `mapstructure:"sources_dsn"      yaml:"sources_dsn"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// AIConfig controls the rewrite service.
type AIConfig struct {
	Enabled     bool          `mapstructure:"enabled"     yaml:"enabled"`
	Provider    string        `mapstructure:"provider"    yaml:"provider"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// MediaConfig controls where downloaded images land.
type MediaConfig struct {
	Dir       string `mapstructure:"dir"         yaml:"dir"`
	URLPrefix string `mapstructure:"url_prefix"  yaml:"url_prefix"`
	MaxSizeMB int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// TranscriptConfig controls video transcript fetching.
type TranscriptConfig struct {
	Endpoint    string        `mapstructure:"endpoint"     yaml:"endpoint"`
	OEmbedURL   string        `mapstructure:"oembed_url"   yaml:"oembed_url"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the status/control HTTP API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port"    yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			LocksDir:         "locks",
			MasterLockMaxAge: 60 * time.Second,
			StaleLockAge:     time.Hour,
			DefaultInterval:  10 * time.Minute,
			ErrorBackoff:     60 * time.Second,
			WatchdogInterval: 30 * time.Second,
			StartupDelay:     5 * time.Second,
		},
		Fetcher: FetcherConfig{
			RequestTimeout: 15 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    50,
			BrowserPages:    2,
			BrowserStealth:  true,
		},
		Storage: StorageConfig{
			Type:            "sqlite",
			DSN:             "newshound.db",
			MongoDatabase:   "newshound",
			MongoCollection: "articles",
		},
		AI: AIConfig{
			Enabled:   true,
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   120 * time.Second,
		},
		Media: MediaConfig{
			Dir:       "media/images/downloaded",
			URLPrefix: "/media/images/downloaded/",
			MaxSizeMB: 10,
		},
		Transcript: TranscriptConfig{
			Endpoint:    "https://video.google.com/timedtext",
			OEmbedURL:   "https://www.youtube.com/oembed",
			MinInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		API: APIConfig{
			Enabled: false,
			Port:    8088,
		},
	}
}
