package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Security      SecurityConfig      `mapstructure:"security"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Platforms     PlatformsConfig     `mapstructure:"platforms"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Events        EventsConfig        `mapstructure:"events"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`    // 优先于 host/port 等字段
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PostgresDSN builds a key=value DSN unless DSN is set.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, ssl)
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxAge     int    `mapstructure:"max_age"`     // days
	MaxBackups int    `mapstructure:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress"`
}

type MonitoringConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MetricsPath string        `mapstructure:"metrics_path"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP gRPC 端点，例如 otel-collector:4317
	Insecure    bool    `mapstructure:"insecure"`     // 是否使用明文（本地/开发）
	SampleRatio float64 `mapstructure:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `mapstructure:"service_name"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// SchedulerConfig 调度器配置；Interval 为 0 时只由外部 cron 触发
type SchedulerConfig struct {
	CronSecret   string        `mapstructure:"cron_secret"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	Interval     time.Duration `mapstructure:"interval"`
}

type PlatformsConfig struct {
	Timeout        time.Duration         `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig  `mapstructure:"circuit_breaker"`
	Accounts       []PlatformAccountConf `mapstructure:"accounts"`
}

type CircuitBreakerConfig struct {
	MaxFailures     int           `mapstructure:"max_failures"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMaxReqs int           `mapstructure:"half_open_max_requests"`
}

// PlatformAccountConf one ad platform; Mock uses the in-process connector.
type PlatformAccountConf struct {
	Platform    string `mapstructure:"platform"`
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
	Mock        bool   `mapstructure:"mock"`
}

type NotificationsConfig struct {
	DefaultChannel string         `mapstructure:"default_channel"` // log, email, slack
	SendGrid       SendGridConfig `mapstructure:"sendgrid"`
	Slack          SlackConfig    `mapstructure:"slack"`
}

type SendGridConfig struct {
	APIKey           string `mapstructure:"api_key"`
	FromName         string `mapstructure:"from_name"`
	FromEmail        string `mapstructure:"from_email"`
	DefaultRecipient string `mapstructure:"default_recipient"`
}

type SlackConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// secret env bindings, applied on top of AutomaticEnv
var envBindings = map[string]string{
	"database.dsn":                    "DB_DSN",
	"jwt.secret":                      "JWT_SECRET",
	"scheduler.cron_secret":           "CRON_SECRET",
	"notifications.sendgrid.api_key":  "SENDGRID_API_KEY",
	"notifications.slack.webhook_url": "SLACK_WEBHOOK_URL",
}

// BindEnv wires environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Load unmarshals v on top of GetDefaultConfig. A nil v uses the global viper.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Unmarshal only sees env values for keys viper already knows about
	for key := range envBindings {
		if s := v.GetString(key); s != "" {
			setSecret(cfg, key, s)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setSecret(cfg *Config, key, value string) {
	switch key {
	case "database.dsn":
		cfg.Database.DSN = value
	case "jwt.secret":
		cfg.JWT.Secret = value
	case "scheduler.cron_secret":
		cfg.Scheduler.CronSecret = value
	case "notifications.sendgrid.api_key":
		cfg.Notifications.SendGrid.APIKey = value
	case "notifications.slack.webhook_url":
		cfg.Notifications.Slack.WebhookURL = value
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Notifications.DefaultChannel) {
	case "log", "email", "slack":
	default:
		return fmt.Errorf("config: unsupported notification channel %q", c.Notifications.DefaultChannel)
	}
	if c.Scheduler.BatchSize < 0 || c.Scheduler.Concurrency < 0 {
		return fmt.Errorf("config: scheduler batch_size and concurrency must not be negative")
	}
	for i, a := range c.Platforms.Accounts {
		if strings.TrimSpace(a.Platform) == "" {
			return fmt.Errorf("config: platforms.accounts[%d]: platform is required", i)
		}
		if !a.Mock && a.BaseURL == "" {
			return fmt.Errorf("config: platforms.accounts[%d]: base_url is required unless mock", i)
		}
	}
	return nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "growzzy",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/growzzy.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "growzzy",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
			},
		},
		Scheduler: SchedulerConfig{
			BatchSize:    100,
			BatchTimeout: 50 * time.Second,
			Concurrency:  4,
		},
		Platforms: PlatformsConfig{
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 1,
			},
		},
		Notifications: NotificationsConfig{
			DefaultChannel: "log",
			SendGrid: SendGridConfig{
				FromName: "Growzzy Automations",
			},
			Slack: SlackConfig{
				Timeout: 10 * time.Second,
			},
		},
		Events: EventsConfig{
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "growzzy",
			},
		},
	}
}
