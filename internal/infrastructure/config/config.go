package config

import (
	"fmt"
	"net"
	"time"
	_ "time/tzdata" // Zone database for REMINDER_TZ

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Backup    BackupConfig
	Reminder  ReminderConfig
	SMTP      SMTPConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// Addr returns host:port for the REST listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// WebSocketConfig holds the sync listener configuration. It listens on its
// own port, separate from the REST server.
type WebSocketConfig struct {
	Port             string        `envconfig:"WS_PORT" default:"5001"`
	Host             string        `envconfig:"WS_HOST" default:"0.0.0.0"`
	ReadBufferSize   int           `envconfig:"WS_READ_BUFFER" default:"4096"`
	HandshakeTimeout time.Duration `envconfig:"WS_HANDSHAKE_TIMEOUT" default:"10s"`
	AcceptPoll       time.Duration `envconfig:"WS_ACCEPT_POLL" default:"1s"`
	MaxPayload       int           `envconfig:"WS_MAX_PAYLOAD" default:"16777216"`
}

// Addr returns host:port for the WebSocket listener.
func (w WebSocketConfig) Addr() string {
	return net.JoinHostPort(w.Host, w.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds REST rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// BackupConfig holds backup configuration.
type BackupConfig struct {
	Dir     string `envconfig:"BACKUP_DIR" default:"back"`
	Keep    int    `envconfig:"BACKUP_KEEP" default:"10"`
	Gzip    bool   `envconfig:"BACKUP_GZIP" default:"false"`
	OnStart bool   `envconfig:"BACKUP_ON_START" default:"true"`
	Restore bool   `envconfig:"BACKUP_RESTORE" default:"false"`
}

// ReminderConfig holds the daily digest schedule.
type ReminderConfig struct {
	Enabled  bool   `envconfig:"REMINDER_ENABLED" default:"false"`
	Hour     int    `envconfig:"REMINDER_HOUR" default:"0"`
	Timezone string `envconfig:"REMINDER_TZ" default:"Asia/Shanghai"`
}

// SMTPConfig holds mail relay settings for the reminder digest.
type SMTPConfig struct {
	Host      string `envconfig:"SMTP_HOST" default:"smtp.qq.com"`
	Port      int    `envconfig:"SMTP_PORT" default:"587"`
	Username  string `envconfig:"SMTP_USERNAME"`
	Password  string `envconfig:"SMTP_PASSWORD"`
	Sender    string `envconfig:"SMTP_SENDER"`
	Recipient string `envconfig:"SMTP_RECIPIENT"`
}

// Configured reports whether enough is set to attempt a send.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Sender != "" && s.Recipient != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == c.WebSocket.Port {
		return fmt.Errorf("invalid config: HTTP and WebSocket ports must differ (both %s)", c.Server.Port)
	}
	if c.Reminder.Hour < 0 || c.Reminder.Hour > 23 {
		return fmt.Errorf("invalid config: REMINDER_HOUR %d out of range", c.Reminder.Hour)
	}
	if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
		return fmt.Errorf("invalid config: REMINDER_TZ: %w", err)
	}
	if c.Backup.Keep < 1 {
		return fmt.Errorf("invalid config: BACKUP_KEEP must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5000",
			Host: "0.0.0.0",
		},
		WebSocket: WebSocketConfig{
			Port:             "5001",
			Host:             "0.0.0.0",
			ReadBufferSize:   4096,
			HandshakeTimeout: 10 * time.Second,
			AcceptPoll:       time.Second,
			MaxPayload:       16 * 1024 * 1024,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Backup: BackupConfig{
			Dir:     "back",
			Keep:    10,
			OnStart: true,
		},
		Reminder: ReminderConfig{
			Timezone: "Asia/Shanghai",
		},
		SMTP: SMTPConfig{
			Host: "smtp.qq.com",
			Port: 587,
		},
	}
}
