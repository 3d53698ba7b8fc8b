package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CLI      CLIConfig      `mapstructure:"cli"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	// Whole-file JSON snapshot of registration requests
	RequestsFile string `mapstructure:"requests_file"`
}

type AccountsConfig struct {
	DBPath       string `mapstructure:"db_path"`
	DefaultRole  string `mapstructure:"default_role"`
	DefaultQuota int64  `mapstructure:"default_quota"`
	Onboarding   bool   `mapstructure:"onboarding"`
}

// AdminConfig lists the bearer tokens allowed to process registration requests.
// Kept as a list because viper lowercases map keys.
type AdminConfig struct {
	Tokens []AdminToken `mapstructure:"tokens"`
}

// AdminToken binds a bearer token to the admin account ID recorded as processedBy
type AdminToken struct {
	Token   string `mapstructure:"token"`
	AdminID string `mapstructure:"admin_id"`
}

// Lookup returns the admin ID bound to token
func (a AdminConfig) Lookup(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for _, t := range a.Tokens {
		if t.Token == token {
			return t.AdminID, true
		}
	}
	return "", false
}

type LimiterConfig struct {
	RPS   float64       `mapstructure:"rps"`
	Burst int           `mapstructure:"burst"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	AdminUserID    int64         `mapstructure:"admin_user_id"`
	AdminAccountID string        `mapstructure:"admin_account_id"`
	PollingTimeout int           `mapstructure:"polling_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSONFormat bool   `mapstructure:"json_format"`
}

// CLIConfig points the admin commands at a running server.
// The server owns the requests file, so commands never open it themselves.
type CLIConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AdminServerURL returns cli.server_url, or a loopback URL for server.addr when unset
func (c *Config) AdminServerURL() string {
	if c.CLI.ServerURL != "" {
		return strings.TrimRight(c.CLI.ServerURL, "/")
	}

	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return "http://" + c.Server.Addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func Load() (*Config, error) {
	return load(viper.New(), "")
}

// LoadFile reads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	// Set defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("storage.requests_file", "./data/registration_requests.json")
	v.SetDefault("accounts.db_path", "./data/accounts.db")
	v.SetDefault("accounts.default_role", "user")
	v.SetDefault("accounts.default_quota", int64(1_000_000_000))
	v.SetDefault("accounts.onboarding", true)
	v.SetDefault("limiter.rps", 0.2)
	v.SetDefault("limiter.burst", 5)
	v.SetDefault("limiter.ttl", "10m")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("telegram.request_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_format", false)
	v.SetDefault("cli.server_url", "")
	v.SetDefault("cli.token", "")
	v.SetDefault("cli.timeout", "15s")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Config file locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/regdesk")
	}

	// Environment variables
	v.SetEnvPrefix("REGDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found is OK, use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Storage.RequestsFile == "" {
		return fmt.Errorf("storage.requests_file is required")
	}
	if c.Accounts.DBPath == "" {
		return fmt.Errorf("accounts.db_path is required")
	}
	if c.Accounts.DefaultRole == "" {
		return fmt.Errorf("accounts.default_role is required")
	}
	if c.Accounts.DefaultQuota < 0 {
		return fmt.Errorf("accounts.default_quota must not be negative")
	}
	for i, t := range c.Admin.Tokens {
		if t.Token == "" || t.AdminID == "" {
			return fmt.Errorf("admin.tokens[%d] needs both token and admin_id", i)
		}
	}
	if c.Limiter.RPS < 0 {
		return fmt.Errorf("limiter.rps must not be negative")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.AdminUserID == 0 {
			return fmt.Errorf("telegram.admin_user_id is required when telegram is enabled")
		}
		if c.Telegram.AdminAccountID == "" {
			return fmt.Errorf("telegram.admin_account_id is required when telegram is enabled")
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
