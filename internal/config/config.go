// Package config loads service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/database"
	"github.com/mark-chris/storefront-auth/internal/email"
)

// Rate limiter backends
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// Config is the full service configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Email       EmailConfig     `mapstructure:"email"`
	Logs        LogsConfig      `mapstructure:"logs"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	// AllowedOrigins is a comma separated list of storefront origins.
	AllowedOrigins string `mapstructure:"allowed_origins"`
	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix.
	MaxBodySize     string        `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	MinVersion string `mapstructure:"min_version"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	URL         string `mapstructure:"url"`
	Name        string `mapstructure:"name"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type AuthConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	VerificationTTL      time.Duration `mapstructure:"verification_ttl"`
	ResetTTL             time.Duration `mapstructure:"reset_ttl"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	AdminEmail           string        `mapstructure:"admin_email"`
	SessionPurgeInterval time.Duration `mapstructure:"session_purge_interval"`
}

// LimitPolicy is one fixed-window budget
type LimitPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxEntries      int           `mapstructure:"max_entries"`
	Signup          LimitPolicy   `mapstructure:"signup"`
	Login           LimitPolicy   `mapstructure:"login"`
	ForgotPassword  LimitPolicy   `mapstructure:"forgot_password"`
}

type EmailConfig struct {
	Provider       string        `mapstructure:"provider"`
	From           string        `mapstructure:"from"`
	SiteURL        string        `mapstructure:"site_url"`
	StoreName      string        `mapstructure:"store_name"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SendGridKey    string        `mapstructure:"sendgrid_key"`
	MailgunDomain  string        `mapstructure:"mailgun_domain"`
	MailgunKey     string        `mapstructure:"mailgun_key"`
	MailgunAPIBase string        `mapstructure:"mailgun_api_base"`
}

type LogsConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with every key defaulted. Keys must have a
// default to be picked up from the environment by Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "production")

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.max_body_size", "1MB")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.min_version", "1.2")

	v.SetDefault("database.driver", database.DriverMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.name", "storefront")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.access_token_secret", "")
	v.SetDefault("auth.refresh_token_secret", "")
	v.SetDefault("auth.access_token_ttl", auth.DefaultAccessTokenTTL)
	v.SetDefault("auth.refresh_token_ttl", auth.DefaultRefreshTokenTTL)
	v.SetDefault("auth.verification_ttl", auth.DefaultVerificationTTL)
	v.SetDefault("auth.reset_ttl", auth.DefaultResetTTL)
	v.SetDefault("auth.bcrypt_cost", auth.DefaultBcryptCost)
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.session_purge_interval", time.Hour)

	v.SetDefault("rate_limit.backend", LimiterMemory)
	v.SetDefault("rate_limit.redis_addr", "")
	v.SetDefault("rate_limit.redis_password", "")
	v.SetDefault("rate_limit.redis_db", 0)
	v.SetDefault("rate_limit.redis_prefix", "ratelimit:")
	v.SetDefault("rate_limit.cleanup_interval", time.Minute)
	v.SetDefault("rate_limit.max_entries", 100000)
	v.SetDefault("rate_limit.signup.max_attempts", 10)
	v.SetDefault("rate_limit.signup.window", time.Hour)
	v.SetDefault("rate_limit.login.max_attempts", 5)
	v.SetDefault("rate_limit.login.window", 15*time.Minute)
	v.SetDefault("rate_limit.forgot_password.max_attempts", 3)
	v.SetDefault("rate_limit.forgot_password.window", time.Hour)

	v.SetDefault("email.provider", email.ProviderConsole)
	v.SetDefault("email.from", "")
	v.SetDefault("email.site_url", "http://localhost:8888")
	v.SetDefault("email.store_name", "Storefront")
	v.SetDefault("email.timeout", auth.DefaultEmailTimeout)
	v.SetDefault("email.sendgrid_key", "")
	v.SetDefault("email.mailgun_domain", "")
	v.SetDefault("email.mailgun_key", "")
	v.SetDefault("email.mailgun_api_base", "")

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")

	return v
}

// Load reads cfgFile (or $CONFIG_FILE) when set and unmarshals v
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	return &cfg, nil
}

// IsDevelopment reports whether weak secrets and plaintext connections are tolerated
func (c *Config) IsDevelopment() bool {
	return auth.IsDevelopmentMode(c.Environment)
}

// DatabaseOptions returns the store settings
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Driver:      c.Database.Driver,
		URL:         c.Database.URL,
		Name:        c.Database.Name,
		AutoMigrate: c.Database.AutoMigrate,
		IsDev:       c.IsDevelopment(),
	}
}

// EmailOptions returns the sender settings
func (c *Config) EmailOptions() email.Config {
	return email.Config{
		Provider:       c.Email.Provider,
		From:           c.Email.From,
		Production:     !c.IsDevelopment(),
		SendGridKey:    c.Email.SendGridKey,
		MailgunDomain:  c.Email.MailgunDomain,
		MailgunKey:     c.Email.MailgunKey,
		MailgunAPIBase: c.Email.MailgunAPIBase,
	}
}

// Validate fails fast on settings the service cannot run with. Weak secrets
// are logged and accepted in development.
func (c *Config) Validate(log logrus.FieldLogger) error {
	isDev := c.IsDevelopment()
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file and server.tls.key_file are required when TLS is enabled"))
		}
	}
	switch c.Server.TLS.MinVersion {
	case "", "1.2", "1.3":
	default:
		errs = append(errs, fmt.Errorf("server.tls.min_version must be 1.2 or 1.3, got %q", c.Server.TLS.MinVersion))
	}

	if err := auth.ValidateSecretPair(c.Auth.AccessTokenSecret, c.Auth.RefreshTokenSecret, isDev, log); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("auth token TTLs must be positive"))
	}

	if err := database.ValidateDatabaseURL(c.Database.Driver, c.Database.URL, isDev); err != nil {
		errs = append(errs, err)
	}

	switch c.RateLimit.Backend {
	case LimiterMemory:
	case LimiterRedis:
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("rate_limit.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	for name, p := range map[string]LimitPolicy{
		"signup":          c.RateLimit.Signup,
		"login":           c.RateLimit.Login,
		"forgot_password": c.RateLimit.ForgotPassword,
	} {
		if p.MaxAttempts <= 0 || p.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s needs positive max_attempts and window", name))
		}
	}

	if err := c.EmailOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Email.SiteURL == "" {
		errs = append(errs, errors.New("email.site_url is required"))
	}

	return errors.Join(errs...)
}
