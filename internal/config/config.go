// Package config loads the service configuration from an optional YAML file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ONBOARD_SERVER_PORT.
const EnvPrefix = "ONBOARD"

// Draft store backends.
const (
	DraftStoreAuto     = "auto"
	DraftStoreRedis    = "redis"
	DraftStorePostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Survey    SurveyConfig    `mapstructure:"survey"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Client    ClientConfig    `mapstructure:"client"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	DraftTTL time.Duration `mapstructure:"draft_ttl"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // json or console
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"` // days
	Compress    bool   `mapstructure:"compress"`
}

// AuthConfig carries the raw auth settings; see JWT and Password for validated forms.
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTExpirationHours int    `mapstructure:"jwt_expiration_hours"`
	BcryptCost         int    `mapstructure:"bcrypt_cost"`
	PasswordPepper     string `mapstructure:"password_pepper"`
}

// SurveyConfig tunes the survey controller.
type SurveyConfig struct {
	SubmitTimeout                  time.Duration `mapstructure:"submit_timeout"`
	UploadTimeout                  time.Duration `mapstructure:"upload_timeout"`
	DraftTimeout                   time.Duration `mapstructure:"draft_timeout"`
	MaxInteractions                int           `mapstructure:"max_interactions"`
	ResetDownstreamOnProfileChange bool          `mapstructure:"reset_downstream_on_profile_change"`
	DraftStore                     string        `mapstructure:"draft_store"`
	ControllerIdleTimeout          time.Duration `mapstructure:"controller_idle_timeout"`
}

// UploadConfig configures local portfolio storage.
type UploadConfig struct {
	Dir          string `mapstructure:"dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
	MaxBytes     int64  `mapstructure:"max_bytes"`
}

// ClientConfig configures the HTTP submission client used by submit-draft.
type ClientConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
}

type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// RateLimitConfig configures the per-endpoint limiter.
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	DefaultWindow   time.Duration `mapstructure:"default_window"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Whitelist       []string      `mapstructure:"whitelist"`
	Blacklist       []string      `mapstructure:"blacklist"`
}

// SetDefaults registers default values for every key so environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.url", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.draft_ttl", "720h")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service_name", "onboard-survey")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.password_pepper", "")

	v.SetDefault("survey.submit_timeout", "30s")
	v.SetDefault("survey.upload_timeout", "2m")
	v.SetDefault("survey.draft_timeout", "5s")
	v.SetDefault("survey.max_interactions", 0)
	v.SetDefault("survey.reset_downstream_on_profile_change", true)
	v.SetDefault("survey.draft_store", DraftStoreAuto)
	v.SetDefault("survey.controller_idle_timeout", "30m")

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.public_prefix", "/uploads/")
	v.SetDefault("upload.max_bytes", 10*1024*1024)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.base_backoff", "1s")

	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_limit", 1000)
	v.SetDefault("rate_limit.default_window", "1m")
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.whitelist", []string{})
	v.SetDefault("rate_limit.blacklist", []string{})
}

// bareEnv maps keys to the unprefixed variable names deployments already use.
var bareEnv = map[string]string{
	"database.url":              "DATABASE_URL",
	"redis.url":                 "REDIS_URL",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.jwt_expiration_hours": "JWT_EXPIRATION_HOURS",
	"auth.bcrypt_cost":          "BCRYPT_COST",
	"auth.password_pepper":      "PASSWORD_PEPPER",
	"github.token":              "GITHUB_TOKEN",
	"server.port":               "PORT",
}

// NewViper returns a viper instance with defaults, environment binding and, when cfgFile
// is set or ./config.yaml exists, the config file loaded.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range bareEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}
	return v, nil
}

// Load builds and validates the configuration.
func Load(cfgFile string) (*Config, error) {
	v, err := NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	c.Survey.DraftStore = strings.ToLower(strings.TrimSpace(c.Survey.DraftStore))
	switch c.Survey.DraftStore {
	case DraftStoreAuto, DraftStoreRedis, DraftStorePostgres:
	default:
		return fmt.Errorf("survey.draft_store must be auto, redis or postgres, got %q", c.Survey.DraftStore)
	}
	if c.Survey.DraftStore == DraftStoreRedis && c.Redis.URL == "" {
		return fmt.Errorf("survey.draft_store is redis but REDIS_URL is not set")
	}
	if c.Survey.MaxInteractions < 0 {
		return fmt.Errorf("survey.max_interactions must be non-negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.DefaultLimit <= 0 || c.RateLimit.DefaultWindow <= 0) {
		return fmt.Errorf("rate_limit.default_limit and default_window must be positive")
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must be non-negative")
	}
	if !strings.HasSuffix(c.Upload.PublicPrefix, "/") {
		c.Upload.PublicPrefix += "/"
	}
	return nil
}

// JWT returns the validated token configuration.
func (c *Config) JWT() (*JWTConfig, error) {
	return NewJWTConfig(c.Auth.JWTSecret, c.Auth.JWTExpirationHours)
}

// Password returns the validated password hashing configuration.
func (c *Config) Password() (*PasswordConfig, error) {
	return NewPasswordConfig(c.Auth.BcryptCost, c.Auth.PasswordPepper)
}

// DraftBackend resolves the auto draft store choice.
func (c *Config) DraftBackend() string {
	if c.Survey.DraftStore != DraftStoreAuto {
		return c.Survey.DraftStore
	}
	if c.Redis.URL != "" {
		return DraftStoreRedis
	}
	return DraftStorePostgres
}
