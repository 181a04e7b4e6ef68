package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/renderinc/report-highlights/internal/highlight"
)

var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidValue    = errors.New("invalid value")
)

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true}

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %w: %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_burst must be > 0: %w", ErrInvalidValue)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required: %w", ErrInvalidValue)
	}
	if _, err := highlight.ParseMode(c.Highlight.OverlapMode); err != nil {
		return fmt.Errorf("highlight.overlap_mode: %w", err)
	}
	if c.Pages.BaseURL != "" {
		u, err := url.Parse(c.Pages.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("pages.base_url %q must be an absolute URL: %w", c.Pages.BaseURL, ErrInvalidValue)
		}
	}
	if c.Pages.CacheSize > 0 && c.Pages.CacheTTL < 0 {
		return fmt.Errorf("pages.cache_ttl must be >= 0: %w", ErrInvalidValue)
	}
	if c.Verify.Concurrency <= 0 {
		return fmt.Errorf("verify.concurrency must be > 0: %w", ErrInvalidValue)
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("log.level %q: %w", c.Log.Level, ErrInvalidLogLevel)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q must be console or json: %w", c.Log.Format, ErrInvalidValue)
	}
	return nil
}

// Mode returns the parsed overlap mode.
func (c *Config) Mode() highlight.Mode {
	m, err := highlight.ParseMode(c.Highlight.OverlapMode)
	if err != nil {
		return highlight.ModeStack
	}
	return m
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
