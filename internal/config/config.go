package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/viper"
)

type Config struct {
	APIPort int `mapstructure:"apiPort"`
	// BaseURL is the public frontend address used in recovery links.
	BaseURL string `mapstructure:"baseURL"`
	// FrontendURL is the origin allowed by CORS.
	FrontendURL string         `mapstructure:"frontendURL"`
	Server      ServerConfig   `mapstructure:"server"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Database    DatabaseConfig `mapstructure:"database"`
	SMTP        SMTPConfig     `mapstructure:"smtp"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Log         LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwtSecret"`
	ResetTokenTTL        time.Duration `mapstructure:"resetTokenTTL"`
	ResetCleanupInterval time.Duration `mapstructure:"resetCleanupInterval"`
	ConfirmRetries       uint64        `mapstructure:"confirmRetries"`
	BcryptCost           int           `mapstructure:"bcryptCost"`
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxConns        int           `mapstructure:"maxConns"`
	MaxIdle         int           `mapstructure:"maxIdle"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	MaxRetries      uint64        `mapstructure:"maxRetries"`
	RetryDelay      time.Duration `mapstructure:"retryDelay"`
	QueryTimeout    time.Duration `mapstructure:"queryTimeout"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	FromName string        `mapstructure:"fromName"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"apiPort":                   3000,
	"baseURL":                   "http://localhost:5173",
	"frontendURL":               "http://localhost:5173",
	"server.readTimeout":        "15s",
	"server.writeTimeout":       "30s",
	"server.shutdownTimeout":    "10s",
	"auth.jwtSecret":            "",
	"auth.resetTokenTTL":        "1h",
	"auth.resetCleanupInterval": "1h",
	"auth.confirmRetries":       2,
	"auth.bcryptCost":           10,
	"database.type":             "sqlite",
	"database.path":             "agenda.db",
	"database.host":             "localhost",
	"database.port":             "5432",
	"database.name":             "agenda",
	"database.user":             "",
	"database.password":         "",
	"database.sslMode":          "disable",
	"database.maxConns":         10,
	"database.maxIdle":          5,
	"database.connMaxLifetime":  "30m",
	"database.maxRetries":       5,
	"database.retryDelay":       "1s",
	"database.queryTimeout":     "5s",
	"smtp.host":                 "",
	"smtp.port":                 587,
	"smtp.user":                 "",
	"smtp.password":             "",
	"smtp.from":                 "",
	"smtp.fromName":             "Agenda Personal",
	"smtp.timeout":              "10s",
	"metrics.addr":              ":9090",
	"log.level":                 "info",
	"log.format":                "text",
}

// legacyEnv maps config keys to the environment variable names the service
// has always been deployed with. They are checked after the derived
// SECTION_KEY names.
var legacyEnv = map[string]string{
	"apiPort":           "PORT",
	"baseURL":           "BASE_URL",
	"frontendURL":       "DEBUG_URL",
	"auth.jwtSecret":    "JWT_SECRET",
	"database.host":     "DB_HOST",
	"database.user":     "DB_USER",
	"database.password": "DB_PASS",
	"database.name":     "DB_NAME",
	"smtp.host":         "SMTP_HOST",
	"smtp.port":         "SMTP_PORT",
	"smtp.user":         "SMTP_USER",
	"smtp.password":     "SMTP_PASS",
}

// LoadConfig loads the configuration from an optional YAML file and the
// environment. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		derived := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, derived, env); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	// Deployments that only set SMTP_USER send from that address.
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}

	return &cfg, nil
}

// Validate reports configuration that would make the service unusable. A
// missing signing secret is always fatal.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return oops.Code("CONFIG_INVALID").With("key", "auth.jwtSecret").
			Errorf("JWT signing secret is required (set JWT_SECRET)")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return oops.Code("CONFIG_INVALID").With("key", "apiPort").
			Errorf("invalid API port %d", c.APIPort)
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return oops.Code("CONFIG_INVALID").With("key", "database.type").
			Errorf("unsupported database type %q", c.Database.Type)
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return oops.Code("CONFIG_INVALID").With("key", "baseURL").
			Errorf("base URL must be absolute, got %q", c.BaseURL)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return oops.Code("CONFIG_INVALID").With("key", "smtp.from").
			Errorf("sender address is required when SMTP is configured")
	}
	if c.SMTP.Host != "" && c.SMTP.Timeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "smtp.timeout").
			Errorf("SMTP timeout must be positive, got %s", c.SMTP.Timeout)
	}
	return nil
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}
