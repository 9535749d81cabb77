// Package config loads Encore's configuration from defaults, an optional
// YAML file, and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ewilliams-labs/encore/internal/logging"
)

// Config is the full process configuration. It is built once in main.
type Config struct {
	Spotify   SpotifyConfig   `koanf:"spotify"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Notify    NotifyConfig    `koanf:"notify"`
	Cache     CacheConfig     `koanf:"cache"`
	Store     StoreConfig     `koanf:"store"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Run       RunConfig       `koanf:"run"`
}

// SpotifyConfig holds Web API credentials and client tuning.
type SpotifyConfig struct {
	ClientID          string        `koanf:"client_id"`
	ClientSecret      string        `koanf:"client_secret"`
	RefreshToken      string        `koanf:"refresh_token"`
	RedirectURI       string        `koanf:"redirect_uri"`
	PlaylistID        string        `koanf:"playlist_id"`
	BaseURL           string        `koanf:"base_url" validate:"omitempty,url"`
	TokenURL          string        `koanf:"token_url" validate:"omitempty,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gte=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff      time.Duration `koanf:"retry_backoff" validate:"gte=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	MatchThreshold    float64       `koanf:"match_threshold" validate:"gte=0,lte=1"`
}

// CatalogConfig selects and configures the catalog source.
type CatalogConfig struct {
	// Source is sqlite, duckdb or postgres.
	Source   string         `koanf:"source" validate:"oneof=sqlite duckdb postgres"`
	CSVPath  string         `koanf:"csv_path"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// PostgresConfig describes the warehouse catalog. DSN wins over the pieces.
type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"gte=0,lte=65535"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`
	Table    string `koanf:"table"`
	OrderBy  string `koanf:"order_by"`
	SSLMode  string `koanf:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// RecommendConfig tunes the similarity recommender.
type RecommendConfig struct {
	TopN        int  `koanf:"top_n" validate:"gte=0"`
	ExcludeSelf bool `koanf:"exclude_self"`
	RecentLimit int  `koanf:"recent_limit" validate:"gte=0,lte=50"`
}

// NotifyConfig configures the NATS run notifier.
type NotifyConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	Subject          string        `koanf:"subject"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait" validate:"gte=0"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
}

// CacheConfig configures the track ID cache. An empty Dir keeps it in memory.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Dir     string        `koanf:"dir"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
	MissTTL time.Duration `koanf:"miss_ttl"`
}

// StoreConfig points at the SQLite database holding the catalog and runs.
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ScheduleConfig drives serve mode.
type ScheduleConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"gt=0"`
	RunOnStart bool          `koanf:"run_on_start"`
	Workers    int           `koanf:"workers" validate:"gte=1"`
	QueueSize  int           `koanf:"queue_size" validate:"gte=1"`
}

// ServerConfig is the HTTP listener of serve mode.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	// SubmitRateLimit caps POST /runs per client IP and window. Zero disables it.
	SubmitRateLimit  int           `koanf:"submit_rate_limit" validate:"gte=0"`
	SubmitRateWindow time.Duration `koanf:"submit_rate_window" validate:"gte=0"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// RunConfig bounds one reconcile run.
type RunConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnString returns the DSN, assembling it from the pieces when DSN is unset.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{Scheme: "postgres", Host: p.Host, Path: "/" + p.Database}
	if p.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", p.Host, p.Port)
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// QualifiedTable returns schema.table, or the bare table without a schema.
func (p PostgresConfig) QualifiedTable() string {
	if p.Schema == "" || p.Table == "" || strings.Contains(p.Table, ".") {
		return p.Table
	}
	return p.Schema + "." + p.Table
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules struct tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	switch c.Catalog.Source {
	case "duckdb":
		if c.Catalog.CSVPath == "" {
			errs = append(errs, errors.New("catalog.csv_path is required for the duckdb source"))
		}
	case "postgres":
		if c.Catalog.Postgres.DSN == "" && c.Catalog.Postgres.Host == "" {
			errs = append(errs, errors.New("catalog.postgres.dsn or catalog.postgres.host is required for the postgres source"))
		}
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		errs = append(errs, errors.New("notify.url is required when notify is enabled"))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	return errors.Join(errs...)
}

// RequireSpotify reports the missing credentials needed for a live run.
func (c *Config) RequireSpotify() error {
	var missing []string
	if c.Spotify.ClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}
	if c.Spotify.RefreshToken == "" {
		missing = append(missing, "SPOTIFY_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing spotify credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
