package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Services lists every API the binary can serve, in start order.
var Services = []string{"patients", "agenda", "measures", "documents", "identity"}

type Config struct {
	Env           string `mapstructure:"ENV"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"` // empty: embedded migrations

	PatientsAddr  string `mapstructure:"PATIENTS_ADDR"`
	AgendaAddr    string `mapstructure:"AGENDA_ADDR"`
	MeasuresAddr  string `mapstructure:"MEASURES_ADDR"`
	DocumentsAddr string `mapstructure:"DOCUMENTS_ADDR"`
	IdentityAddr  string `mapstructure:"IDENTITY_ADDR"`

	DefaultPageSize int `mapstructure:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `mapstructure:"MAX_PAGE_SIZE"`

	JWTKey               string   `mapstructure:"JWT_KEY"`
	JWTIssuer            string   `mapstructure:"JWT_ISSUER"`
	JWTAudiences         []string `mapstructure:"JWT_AUDIENCES"`
	AccessTokenLifetime  int      `mapstructure:"ACCESS_TOKEN_LIFETIME"`
	RefreshTokenLifetime int      `mapstructure:"REFRESH_TOKEN_LIFETIME"`

	RedisURL       string   `mapstructure:"REDIS_URL"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	S3Bucket   string `mapstructure:"S3_BUCKET"`
	S3Region   string `mapstructure:"S3_REGION"`
	S3Endpoint string `mapstructure:"S3_ENDPOINT"`
}

var keys = []string{
	"ENV", "LOG_FORMAT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"PATIENTS_ADDR", "AGENDA_ADDR", "MEASURES_ADDR", "DOCUMENTS_ADDR", "IDENTITY_ADDR",
	"DEFAULT_PAGE_SIZE", "MAX_PAGE_SIZE",
	"JWT_KEY", "JWT_ISSUER", "JWT_AUDIENCES", "ACCESS_TOKEN_LIFETIME", "REFRESH_TOKEN_LIFETIME",
	"REDIS_URL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PATIENTS_ADDR", ":8001")
	v.SetDefault("AGENDA_ADDR", ":8002")
	v.SetDefault("MEASURES_ADDR", ":8003")
	v.SetDefault("DOCUMENTS_ADDR", ":8004")
	v.SetDefault("IDENTITY_ADDR", ":8005")
	v.SetDefault("DEFAULT_PAGE_SIZE", 30)
	v.SetDefault("MAX_PAGE_SIZE", 100)
	v.SetDefault("JWT_ISSUER", "http://localhost:8005")
	v.SetDefault("JWT_AUDIENCES", "medeasy")
	v.SetDefault("ACCESS_TOKEN_LIFETIME", 10)
	v.SetDefault("REFRESH_TOKEN_LIFETIME", 20)
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("S3_REGION", "eu-west-1")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.JWTAudiences = splitList(cfg.JWTAudiences, v.GetString("JWT_AUDIENCES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList prefers the raw comma separated value that env vars carry and
// trims each entry.
func splitList(decoded []string, raw string) []string {
	if raw == "" {
		return decoded
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address of a service.
func (c *Config) Addr(service string) string {
	switch service {
	case "patients":
		return c.PatientsAddr
	case "agenda":
		return c.AgendaAddr
	case "measures":
		return c.MeasuresAddr
	case "documents":
		return c.DocumentsAddr
	case "identity":
		return c.IdentityAddr
	}
	return ""
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenLifetime) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenLifetime) * time.Minute
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive, got %d", c.DefaultPageSize)
	}
	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must be >= DEFAULT_PAGE_SIZE (%d)", c.MaxPageSize, c.DefaultPageSize)
	}
	if c.IsProduction() && len(c.JWTKey) < 32 {
		return fmt.Errorf("JWT_KEY must be at least 32 characters in production")
	}
	if c.JWTKey == "" && !c.IsDev() {
		return fmt.Errorf("JWT_KEY is required outside development")
	}
	if c.AccessTokenLifetime < 1 || c.RefreshTokenLifetime < 1 {
		return fmt.Errorf("token lifetimes must be at least one minute")
	}
	if c.RefreshTokenLifetime < c.AccessTokenLifetime {
		return fmt.Errorf("REFRESH_TOKEN_LIFETIME must be >= ACCESS_TOKEN_LIFETIME")
	}
	switch c.LogFormat {
	case "json", "console", "ecs":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\", \"console\" or \"ecs\", got %q", c.LogFormat)
	}
	return nil
}
