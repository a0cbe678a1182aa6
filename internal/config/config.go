package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the release reported at startup and by the health endpoint
const Version = "0.1.0"

// Environment names the deployment profile whose YAML file is layered over the base file
type Environment string

const (
	EnvironmentLocal Environment = "local"
	EnvironmentProd  Environment = "prod"
)

// ParseEnvironment parses APP_ENV values, case-insensitively
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(EnvironmentLocal):
		return EnvironmentLocal, nil
	case string(EnvironmentProd):
		return EnvironmentProd, nil
	default:
		return "", fmt.Errorf("%q is not a supported environment, use either 'local' or 'prod'", value)
	}
}

// Config holds all configuration for the application
type Config struct {
	Environment Environment       `mapstructure:"-"`
	Application ApplicationConfig `mapstructure:"application"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Email       EmailConfig       `mapstructure:"email"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ApplicationConfig holds HTTP server configuration
type ApplicationConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is the public address embedded in confirmation links
	BaseURL string `mapstructure:"base_url"`
}

// Addr returns the listen address
func (c ApplicationConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EmailConfig holds email delivery configuration
type EmailConfig struct {
	// Provider selects the transport: "http", "smtp" or "gmail"
	Provider      string           `mapstructure:"provider"`
	SenderAddress string           `mapstructure:"sender_address"`
	SenderName    string           `mapstructure:"sender_name"`
	HTTP          HTTPEmailConfig  `mapstructure:"http"`
	SMTP          SMTPEmailConfig  `mapstructure:"smtp"`
	Gmail         GmailEmailConfig `mapstructure:"gmail"`
	Redelivery    RedeliveryConfig `mapstructure:"redelivery"`
}

// HTTPEmailConfig holds the HTTP email provider API settings
type HTTPEmailConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	AuthorizationToken string `mapstructure:"authorization_token"`
	// Timeout bounds a single provider call; zero leaves the transport default
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMTPEmailConfig holds SMTP relay settings
type SMTPEmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// TLSMode is one of "auto", "starttls", "ssl" or "none"
	TLSMode string `mapstructure:"tls_mode"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// RedeliveryConfig controls the background retry of confirmation emails
// that failed after the subscriber was committed
type RedeliveryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from the working directory
func Load() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return LoadFrom(dir)
}

// LoadFrom reads .env, config/base.yaml and config/<APP_ENV>.yaml under dir,
// then applies MAILBOLT_* environment variables on top
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	env, err := ParseEnvironment(os.Getenv("APP_ENV"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	configDir := filepath.Join(dir, "config")
	for _, name := range []string{"base", string(env)} {
		if err := mergeFile(v, filepath.Join(configDir, name+".yaml")); err != nil {
			return nil, err
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("MAILBOLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeFile layers one YAML file into v; a missing file is not an error
func mergeFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	switch c.Email.Provider {
	case "http", "smtp", "gmail":
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}
	if c.Email.Redelivery.Enabled && !c.Redis.Enabled {
		return errors.New("email redelivery requires redis to be enabled")
	}
	if c.Application.BaseURL == "" {
		return errors.New("application.base_url is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("application.host", "127.0.0.1")
	v.SetDefault("application.port", 8000)
	v.SetDefault("application.base_url", "http://127.0.0.1:8000")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "newsletter")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Email defaults
	v.SetDefault("email.provider", "http")
	v.SetDefault("email.sender_address", "newsletter@example.com")
	v.SetDefault("email.sender_name", "Mailbolt")
	v.SetDefault("email.http.base_url", "http://localhost:8025")
	v.SetDefault("email.http.authorization_token", "")
	v.SetDefault("email.http.timeout", "10s")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.user", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.tls_mode", "auto")
	v.SetDefault("email.gmail.credentials_json", "")
	v.SetDefault("email.gmail.client_id", "")
	v.SetDefault("email.gmail.client_secret", "")
	v.SetDefault("email.gmail.refresh_token", "")
	v.SetDefault("email.redelivery.enabled", false)
	v.SetDefault("email.redelivery.max_attempts", 5)
	v.SetDefault("email.redelivery.poll_interval", "5s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
