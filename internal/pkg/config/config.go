package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	Google       GoogleConfig       `mapstructure:"google"`
	Ticketmaster TicketmasterConfig `mapstructure:"ticketmaster"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Usage        UsageConfig        `mapstructure:"usage"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Valkey       ValkeyConfig       `mapstructure:"valkey"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type GenerationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

type TicketmasterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type CacheConfig struct {
	// Backend is "memory" or "valkey".
	Backend       string        `mapstructure:"backend"`
	PlaceTTL      time.Duration `mapstructure:"place_ttl"`
	PhotoTTL      time.Duration `mapstructure:"photo_ttl"`
	GeocodeTTL    time.Duration `mapstructure:"geocode_ttl"`
	EventTTL      time.Duration `mapstructure:"event_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// UsageConfig carries the daily limits as explicit fields because viper lowercases map keys.
type UsageConfig struct {
	PlaceDetailsLimit int           `mapstructure:"place_details_limit"`
	PlacePhotosLimit  int           `mapstructure:"place_photos_limit"`
	GeocodingLimit    int           `mapstructure:"geocoding_limit"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	WarnRatio         float64       `mapstructure:"warn_ratio"`
}

// Limits returns the per-category daily limits.
func (u UsageConfig) Limits() domain.DailyLimits {
	return domain.DailyLimits{
		domain.CategoryPlaceDetails: u.PlaceDetailsLimit,
		domain.CategoryPlacePhotos:  u.PlacePhotosLimit,
		domain.CategoryGeocoding:    u.GeocodingLimit,
	}
}

type StorageConfig struct {
	// Driver is "memory", "sqlite", "postgres" or "valkey".
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRIPCORE_GENERATION_BASE_URL → generation.base_url
	v.SetEnvPrefix("TRIPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("generation.base_url", "http://localhost:11434")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.timeout", 45*time.Second)
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.base_url", "https://maps.googleapis.com")
	v.SetDefault("google.rate_per_second", 10.0)
	v.SetDefault("ticketmaster.api_key", "")
	v.SetDefault("ticketmaster.base_url", "https://app.ticketmaster.com")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.place_ttl", 24*time.Hour)
	v.SetDefault("cache.photo_ttl", 24*time.Hour)
	v.SetDefault("cache.geocode_ttl", 24*time.Hour)
	v.SetDefault("cache.event_ttl", 30*time.Minute)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("usage.place_details_limit", 1000)
	v.SetDefault("usage.place_photos_limit", 1000)
	v.SetDefault("usage.geocoding_limit", 1000)
	v.SetDefault("usage.check_interval", time.Hour)
	v.SetDefault("usage.warn_ratio", 0.8)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "tripcore.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tripcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tripcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Generation.BaseURL == "" {
		errs = append(errs, "generation.base_url is required")
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, "generation.timeout must be positive")
	}
	if c.Google.RatePerSecond <= 0 {
		errs = append(errs, "google.rate_per_second must be positive")
	}
	if c.Usage.WarnRatio <= 0 || c.Usage.WarnRatio > 1 {
		errs = append(errs, fmt.Sprintf("usage.warn_ratio must be in (0, 1], got %g", c.Usage.WarnRatio))
	}
	if c.Usage.CheckInterval <= 0 {
		errs = append(errs, "usage.check_interval must be positive")
	}
	for name, ttl := range map[string]time.Duration{
		"cache.place_ttl":   c.Cache.PlaceTTL,
		"cache.photo_ttl":   c.Cache.PhotoTTL,
		"cache.geocode_ttl": c.Cache.GeocodeTTL,
		"cache.event_ttl":   c.Cache.EventTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}

	switch c.Cache.Backend {
	case "memory":
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for cache.backend=valkey")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be memory or valkey, got %q", c.Cache.Backend))
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "storage.sqlite_path is required for storage.driver=sqlite")
		}
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for storage.driver=valkey")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be memory, sqlite, postgres or valkey, got %q", c.Storage.Driver))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
