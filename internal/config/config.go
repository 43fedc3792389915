package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Notification NotificationConfig `mapstructure:"notification"`
	Escalation   EscalationConfig   `mapstructure:"escalation"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// NotificationConfig holds outbox delivery configuration
type NotificationConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	DeliveryPoll   time.Duration `mapstructure:"delivery_poll"`
	DeliveryBatch  int           `mapstructure:"delivery_batch"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EscalationConfig holds overdue-step escalation and retention configuration
type EscalationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetentionAge time.Duration `mapstructure:"retention_age"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/approvals.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Notification delivery defaults
	viper.SetDefault("notification.delivery_poll", 30*time.Second)
	viper.SetDefault("notification.delivery_batch", 50)
	viper.SetDefault("notification.request_timeout", 10*time.Second)

	// Escalation defaults
	viper.SetDefault("escalation.poll_interval", 10*time.Minute)
	viper.SetDefault("escalation.retention_age", 90*24*time.Hour)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("notification.webhook_url", "NOTIFICATION_WEBHOOK_URL")
	viper.BindEnv("server.port", "SERVER_PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Notification.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.Notification.WebhookURL); err != nil {
			return fmt.Errorf("notification.webhook_url is not a valid URL: %w", err)
		}
	}
	if c.Notification.DeliveryPoll <= 0 {
		return fmt.Errorf("notification.delivery_poll must be positive")
	}
	if c.Escalation.PollInterval <= 0 {
		return fmt.Errorf("escalation.poll_interval must be positive")
	}
	return nil
}
