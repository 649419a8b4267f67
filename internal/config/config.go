package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"medtrack/internal/logger"
)

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: MEDTRACK_TIMER__BASE_URL sets timer.base_url.
const EnvPrefix = "MEDTRACK_"

// Storage backend names
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

var backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendMongo, BackendRedis, BackendBadger, BackendPostgres}

const (
	minInterval = time.Second
	maxInterval = time.Minute
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Alert     AlertConfig     `koanf:"alert"`
	Timer     TimerConfig     `koanf:"timer"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Addr      string `koanf:"addr"`
	StaticDir string `koanf:"static_dir"` // Caregiver UI bundle, served at /
	TLSCert   string `koanf:"tls_cert"`
	TLSKey    string `koanf:"tls_key"`
}

type StorageConfig struct {
	Backend  string         `koanf:"backend"`
	Key      string         `koanf:"key"`
	File     FileConfig     `koanf:"file"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Mongo    MongoConfig    `koanf:"mongo"`
	Redis    RedisConfig    `koanf:"redis"`
	Badger   BadgerConfig   `koanf:"badger"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type FileConfig struct {
	Dir string `koanf:"dir"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type BadgerConfig struct {
	Path string `koanf:"path"` // empty runs in memory
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

type SchedulerConfig struct {
	Interval time.Duration `koanf:"interval"`
}

type AlertConfig struct {
	RepeatDelay time.Duration  `koanf:"repeat_delay"`
	Voice       VoiceConfig    `koanf:"voice"`
	Speech      SpeechConfig   `koanf:"speech"`
	Audio       AudioConfig    `koanf:"audio"`
	Telegram    TelegramConfig `koanf:"telegram"`
}

type VoiceConfig struct {
	Rate   float64 `koanf:"rate"`
	Pitch  float64 `koanf:"pitch"`
	Volume float64 `koanf:"volume"`
}

type SpeechConfig struct {
	Command string `koanf:"command"`
}

type AudioConfig struct {
	Player string `koanf:"player"`
	File   string `koanf:"file"`
}

type TelegramConfig struct {
	Token   string        `koanf:"token"`
	ChatID  int64         `koanf:"chat_id"`
	Timeout time.Duration `koanf:"timeout"`
}

type TimerConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

// Load layers defaults, the optional YAML file at configPath and
// MEDTRACK_ environment variables, in that order.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if !isBackend(c.Storage.Backend) {
		return fmt.Errorf("unknown storage backend: %s (supported: %s)",
			c.Storage.Backend, strings.Join(backends, ", "))
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server tls_cert and tls_key must be set together")
	}

	if c.Storage.Key == "" {
		return fmt.Errorf("storage key is required")
	}

	if c.Scheduler.Interval < minInterval || c.Scheduler.Interval > maxInterval {
		return fmt.Errorf("scheduler interval must be between %s and %s, got %s",
			minInterval, maxInterval, c.Scheduler.Interval)
	}

	if c.Alert.RepeatDelay < 0 {
		return fmt.Errorf("alert repeat_delay must not be negative")
	}

	if c.Alert.Voice.Rate <= 0 || c.Alert.Voice.Pitch <= 0 || c.Alert.Voice.Volume < 0 {
		return fmt.Errorf("alert voice rate and pitch must be positive and volume not negative")
	}

	if c.Alert.Telegram.Timeout <= 0 {
		return fmt.Errorf("alert telegram timeout must be positive")
	}

	if c.Timer.Timeout <= 0 {
		return fmt.Errorf("timer timeout must be positive")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func isBackend(name string) bool {
	for _, b := range backends {
		if b == name {
			return true
		}
	}
	return false
}
