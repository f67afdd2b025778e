package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.LocksDir == "" {
		return fmt.Errorf("engine.locks_dir must not be empty")
	}
	if cfg.Engine.MasterLockMaxAge <= 0 {
		return fmt.Errorf("engine.master_lock_max_age must be > 0")
	}
	if cfg.Engine.StaleLockAge <= 0 {
		return fmt.Errorf("engine.stale_lock_age must be > 0")
	}
	if cfg.Engine.DefaultInterval <= 0 {
		return fmt.Errorf("engine.default_interval must be > 0")
	}
	if cfg.Engine.ErrorBackoff < 0 {
		return fmt.Errorf("engine.error_backoff must be >= 0")
	}
	if cfg.Engine.WatchdogInterval <= 0 {
		return fmt.Errorf("engine.watchdog_interval must be > 0")
	}
	if cfg.Engine.SeenTTL < 0 {
		return fmt.Errorf("engine.seen_ttl must be >= 0")
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for sqlite")
		}
	case "mongodb":
		if cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for mongodb")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, mongodb)", cfg.Storage.Type)
	}

	if cfg.AI.Enabled {
		validProviders := map[string]bool{
			"anthropic": true, "openai": true, "ollama": true, "custom": true,
		}
		if !validProviders[cfg.AI.Provider] {
			return fmt.Errorf("ai.provider must be anthropic/openai/ollama/custom, got %q", cfg.AI.Provider)
		}
		if cfg.AI.MaxTokens < 1 {
			return fmt.Errorf("ai.max_tokens must be >= 1, got %d", cfg.AI.MaxTokens)
		}
		if (cfg.AI.Provider == "ollama" || cfg.AI.Provider == "custom") && cfg.AI.Endpoint == "" {
			return fmt.Errorf("ai.endpoint is required for provider %q", cfg.AI.Provider)
		}
	}

	if cfg.Media.Dir == "" {
		return fmt.Errorf("media.dir must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}
	if cfg.API.Enabled {
		if cfg.API.Port < 1 || cfg.API.Port > 65535 {
			return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a source endpoint.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
