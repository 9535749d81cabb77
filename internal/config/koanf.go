package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/encore/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix namespaces every generic environment override,
// e.g. ENCORE_SCHEDULE_INTERVAL -> schedule.interval.
const EnvPrefix = "ENCORE_"

// legacyEnv maps the variable names the lambda deployment used.
var legacyEnv = map[string]string{
	"SPOTIFY_CLIENT_ID":     "spotify.client_id",
	"SPOTIFY_CLIENT_SECRET": "spotify.client_secret",
	"SPOTIFY_REFRESH_TOKEN": "spotify.refresh_token",
	"SPOTIFY_REDIRECT_URI":  "spotify.redirect_uri",
	"SPOTIFY_PLAYLIST_ID":   "spotify.playlist_id",
	"SNOWFLAKE_ACCOUNT":     "catalog.postgres.host",
	"SNOWFLAKE_USER":        "catalog.postgres.user",
	"SNOWFLAKE_PASSWORD":    "catalog.postgres.password",
	"SNOWFLAKE_DATABASE":    "catalog.postgres.database",
	"SNOWFLAKE_SCHEMA":      "catalog.postgres.schema",
	"SNS_TOPIC_ARN":         "notify.subject",
	"NATS_URL":              "notify.url",
	"LOG_LEVEL":             "log.level",
	"HTTP_PORT":             "server.port",
}

func defaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			Timeout:           15 * time.Second,
			MaxRetries:        3,
			RetryBackoff:      500 * time.Millisecond,
			RequestsPerSecond: 5,
			Burst:             5,
			MatchThreshold:    0.8,
		},
		Catalog: CatalogConfig{
			Source: "sqlite",
			Postgres: PostgresConfig{
				Port:  5432,
				Table: "kaggle_data_top_10000",
			},
		},
		Recommend: RecommendConfig{
			TopN:        5,
			ExcludeSelf: false,
			RecentLimit: 20,
		},
		Notify: NotifyConfig{
			Enabled:          false,
			Subject:          "encore.runs",
			MaxReconnects:    5,
			ReconnectWait:    2 * time.Second,
			FailureThreshold: 3,
			BreakerTimeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "",
			TTL:     30 * 24 * time.Hour,
			MissTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "encore.db",
		},
		Schedule: ScheduleConfig{
			Interval:   time.Hour,
			RunOnStart: true,
			Workers:    1,
			QueueSize:  4,
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			SubmitRateLimit:  30,
			SubmitRateWindow: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Run: RunConfig{
			Timeout: 5 * time.Minute,
		},
	}
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped and variables already set are left alone.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load layers defaults, the YAML file at path (or the first one found), and
// the environment, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps legacy names directly and ENCORE_<PATH> names onto
// the known config keys. Anything else is ignored.
func envTransformFunc(keys []string) func(string) string {
	known := make(map[string]string, len(keys))
	for _, key := range keys {
		known[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return func(name string) string {
		if path, ok := legacyEnv[name]; ok {
			return path
		}
		return known[name]
	}
}
