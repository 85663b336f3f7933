package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Redis        RedisConfig        `yaml:"redis"`
	Email        EmailConfig        `yaml:"email"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Notification NotificationConfig `yaml:"notification"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig enables the asynq email queue and the realtime backplane.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
	AppURL   string `yaml:"app_url"`
}

type RealtimeConfig struct {
	PreviewLength    int      `yaml:"preview_length"`
	SendBuffer       int      `yaml:"send_buffer"`
	Backplane        bool     `yaml:"backplane"` // requires redis.enabled
	BackplaneChannel string   `yaml:"backplane_channel"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

type NotificationConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	CleanupCron   string `yaml:"cleanup_cron"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so omitted keys keep their values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "teamspace.db",
		},
		JWT: JWTConfig{
			Secret:     "teamspace-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Email: EmailConfig{
			Enabled: false,
			Port:    587,
			UseTLS:  false,
		},
		Realtime: RealtimeConfig{
			PreviewLength:    120,
			SendBuffer:       256,
			BackplaneChannel: "teamspace:realtime",
		},
		Notification: NotificationConfig{
			RetentionDays: 30,
			CleanupCron:   "0 3 * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.Email.Enabled = true
		c.Email.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Email.Port = p
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		c.Email.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		c.Email.Password = pass
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		c.Email.From = from
	}
	if os.Getenv("REALTIME_BACKPLANE") == "true" {
		c.Realtime.Backplane = true
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

// BackplaneEnabled reports whether room broadcasts go through Redis pub/sub.
func (c *Config) BackplaneEnabled() bool {
	return c.Redis.Enabled && c.Realtime.Backplane
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
