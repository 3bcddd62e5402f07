package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"medisync/internal/availability"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	JWTTTL          time.Duration `mapstructure:"JWT_TTL"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	RuleCacheTTL    time.Duration `mapstructure:"RULE_CACHE_TTL"`
	SlotMatchMode   string        `mapstructure:"SLOT_MATCH_MODE"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	LoginRatePerMin int           `mapstructure:"LOGIN_RATE_PER_MIN"`
	Timezone        string        `mapstructure:"TIMEZONE"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	AWSRegion    string `mapstructure:"AWS_REGION"`
	SESFromEmail string `mapstructure:"SES_FROM_EMAIL"`
	SESFromName  string `mapstructure:"SES_FROM_NAME"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_TTL", "REDIS_URL", "RULE_CACHE_TTL", "SLOT_MATCH_MODE",
	"CORS_ORIGINS", "LOGIN_RATE_PER_MIN", "TIMEZONE",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URL",
	"AWS_REGION", "SES_FROM_EMAIL", "SES_FROM_NAME",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RULE_CACHE_TTL", "10m")
	v.SetDefault("SLOT_MATCH_MODE", "exact")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("LOGIN_RATE_PER_MIN", 20)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("SES_FROM_NAME", "MediSync")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks settings needed by the server. The migrate command only
// needs DATABASE_URL and skips it.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development, got %d", len(c.JWTSecret))
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if _, err := availability.ParseMatchMode(c.SlotMatchMode); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.GoogleEnabled() && c.GoogleRedirectURL == "" {
		return fmt.Errorf("GOOGLE_REDIRECT_URL is required when GOOGLE_CLIENT_ID is set")
	}
	if c.AWSRegion != "" && c.SESFromEmail == "" {
		return fmt.Errorf("SES_FROM_EMAIL is required when AWS_REGION is set")
	}
	return nil
}

func (c *Config) MatchMode() availability.MatchMode {
	m, _ := availability.ParseMatchMode(c.SlotMatchMode)
	return m
}

// Location is the clinic's time zone, used to resolve "today" and calendar dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c *Config) EmailEnabled() bool {
	return c.AWSRegion != "" && c.SESFromEmail != ""
}
