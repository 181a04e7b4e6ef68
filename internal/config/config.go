package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Highlight HighlightConfig `yaml:"highlight"`
	Pages     PagesConfig     `yaml:"pages"`
	Search    SearchConfig    `yaml:"search"`
	Share     ShareConfig     `yaml:"share"`
	Verify    VerifyConfig    `yaml:"verify"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"127.0.0.1"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// RateLimit is the number of mutating requests per second allowed per
	// client. A negative value disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"SERVER_RATE_LIMIT" env-default:"5"`
	RateBurst int     `yaml:"rate_burst" env:"SERVER_RATE_BURST" env-default:"20"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"         env:"DATABASE_PATH"         env-default:"./data/highlights.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"DATABASE_BUSY_TIMEOUT" env-default:"5s"`
	// SessionPath persists highlights kept while the database is
	// unavailable. Empty keeps them in memory only.
	SessionPath string `yaml:"session_path" env:"DATABASE_SESSION_PATH"`
}

// HighlightConfig holds anchoring and rendering settings.
type HighlightConfig struct {
	OverlapMode       string `yaml:"overlap_mode"       env:"HIGHLIGHT_OVERLAP_MODE"       env-default:"stack"`
	QuoteFallback     bool   `yaml:"quote_fallback"     env:"HIGHLIGHT_QUOTE_FALLBACK"     env-default:"false"`
	ContainerSelector string `yaml:"container_selector" env:"HIGHLIGHT_CONTAINER_SELECTOR" env-default:"article"`
}

// PagesConfig holds settings for loading report pages. Dir takes precedence
// over BaseURL.
type PagesConfig struct {
	BaseURL   string        `yaml:"base_url"   env:"PAGES_BASE_URL"`
	Dir       string        `yaml:"dir"        env:"PAGES_DIR"`
	Timeout   time.Duration `yaml:"timeout"    env:"PAGES_TIMEOUT"    env-default:"30s"`
	// CacheSize is the number of pages kept. A negative value disables the
	// cache.
	CacheSize int           `yaml:"cache_size" env:"PAGES_CACHE_SIZE" env-default:"64"`
	CacheTTL  time.Duration `yaml:"cache_ttl"  env:"PAGES_CACHE_TTL"  env-default:"10m"`
}

// SearchConfig holds quote index settings. Booleans default to false because
// cleanenv cannot tell an explicit false from a missing value.
type SearchConfig struct {
	Disabled  bool   `yaml:"disabled"   env:"SEARCH_DISABLED"`
	IndexPath string `yaml:"index_path" env:"SEARCH_INDEX_PATH" env-default:"./data/quotes.bleve"`
}

// ShareConfig holds share link settings.
type ShareConfig struct {
	Hashtag   string `yaml:"hashtag"   env:"SHARE_HASHTAG"   env-default:"#IFRC"`
	Separator string `yaml:"separator" env:"SHARE_SEPARATOR" env-default:"\\n"`
}

// VerifyConfig holds settings of the re-anchoring worker.
type VerifyConfig struct {
	Concurrency int `yaml:"concurrency" env:"VERIFY_CONCURRENCY" env-default:"5"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}
