package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	CarparkAPI CarparkAPIConfig `mapstructure:"carpark_api"`
	Locator    LocatorConfig    `mapstructure:"locator"`
	Geocoder   GeocoderConfig   `mapstructure:"geocoder"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	DataMall   DataMallConfig   `mapstructure:"datamall"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CarparkAPIConfig points at the remote lots/rates/info query service.
type CarparkAPIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxIDsPerRequest int           `mapstructure:"max_ids_per_request"`
}

// LocatorConfig tunes the per-session nearby/availability/detail pipeline.
type LocatorConfig struct {
	RadiusKm       float64       `mapstructure:"radius_km"`
	DefaultLotType string        `mapstructure:"default_lot_type"`
	DefaultWindow  time.Duration `mapstructure:"default_window"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
	MapCenterLat   float64       `mapstructure:"map_center_lat"`
	MapCenterLon   float64       `mapstructure:"map_center_lon"`
	Timezone       string        `mapstructure:"timezone"`
}

type GeocoderConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Debounce time.Duration `mapstructure:"debounce"`
	Limit    int           `mapstructure:"limit"`
	CacheTTL int           `mapstructure:"cache_ttl"`
}

type IdentityConfig struct {
	UserInfoURL string        `mapstructure:"userinfo_url"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// CatalogConfig selects where the facility catalog is loaded from.
type CatalogConfig struct {
	Source string `mapstructure:"source"` // file | postgres | minio
	Path   string `mapstructure:"path"`
	Object string `mapstructure:"object"`
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
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
	// CatalogCron schedules the catalog sync; empty runs it once.
	CatalogCron string `mapstructure:"catalog_cron"`
}

// DataMallConfig points at the LTA DataMall availability feed used to build the catalog.
type DataMallConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AccountKey string        `mapstructure:"account_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PageSize   int           `mapstructure:"page_size"`
	MaxSkip    int           `mapstructure:"max_skip"`
	PageDelay  time.Duration `mapstructure:"page_delay"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("carpark_api.base_url", "http://api-cs5224-app.wanioco.com")
	v.SetDefault("carpark_api.timeout", 15*time.Second)
	v.SetDefault("carpark_api.max_ids_per_request", 100)
	v.SetDefault("locator.radius_km", 1.0)
	v.SetDefault("locator.default_lot_type", "C")
	v.SetDefault("locator.default_window", 2*time.Hour)
	v.SetDefault("locator.poll_interval", 0)
	v.SetDefault("locator.session_idle_ttl", 30*time.Minute)
	v.SetDefault("locator.map_center_lat", 1.2949927)
	v.SetDefault("locator.map_center_lon", 103.7733938)
	v.SetDefault("locator.timezone", "Asia/Singapore")
	v.SetDefault("geocoder.base_url", "https://www.onemap.gov.sg/api/common/elastic/search")
	v.SetDefault("geocoder.timeout", 10*time.Second)
	v.SetDefault("geocoder.debounce", 500*time.Millisecond)
	v.SetDefault("geocoder.limit", 10)
	v.SetDefault("geocoder.cache_ttl", 300)
	v.SetDefault("identity.userinfo_url", "https://www.googleapis.com/oauth2/v2/userinfo")
	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.token_ttl", 24*time.Hour)
	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.path", "data/carpark_locations.csv")
	v.SetDefault("catalog.object", "catalog/carpark_locations.csv")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "carpark")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "carparkfinder")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "carparkfinder")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "catalog-sync-queue")
	v.SetDefault("temporal.catalog_cron", "0 3 * * *")
	v.SetDefault("datamall.base_url", "https://datamall2.mytransport.sg/ltaodataservice/CarParkAvailabilityv2")
	v.SetDefault("datamall.account_key", "")
	v.SetDefault("datamall.timeout", 15*time.Second)
	v.SetDefault("datamall.page_size", 500)
	v.SetDefault("datamall.max_skip", 2500)
	v.SetDefault("datamall.page_delay", time.Second)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: CARPARK_CARPARK_API_BASE_URL → carpark_api.base_url
	v.SetEnvPrefix("CARPARK")
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
	if c.CarparkAPI.BaseURL == "" {
		errs = append(errs, "carpark_api.base_url is required")
	}
	if c.CarparkAPI.Timeout <= 0 {
		errs = append(errs, "carpark_api.timeout must be positive")
	}
	if c.CarparkAPI.MaxIDsPerRequest <= 0 {
		errs = append(errs, "carpark_api.max_ids_per_request must be positive")
	}
	if c.Locator.RadiusKm <= 0 {
		errs = append(errs, "locator.radius_km must be positive")
	}
	if c.Locator.DefaultWindow <= 0 {
		errs = append(errs, "locator.default_window must be positive")
	}
	if _, err := time.LoadLocation(c.Locator.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("locator.timezone %q: %v", c.Locator.Timezone, err))
	}
	if c.Locator.PollInterval < 0 {
		errs = append(errs, "locator.poll_interval must not be negative")
	}
	switch c.Locator.DefaultLotType {
	case "C", "H", "Y", "S", "L", "M":
	default:
		errs = append(errs, fmt.Sprintf("locator.default_lot_type %q is not a lot code", c.Locator.DefaultLotType))
	}
	switch c.Catalog.Source {
	case "file":
		if c.Catalog.Path == "" {
			errs = append(errs, "catalog.path is required for file source")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, "database.host and database.dbname are required for postgres catalog")
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" || c.Catalog.Object == "" {
			errs = append(errs, "minio.endpoint, minio.bucket and catalog.object are required for minio catalog")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.source must be file, postgres or minio, got %q", c.Catalog.Source))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
