// Package config loads bot, OCR and server settings from an optional YAML file,
// a local .env file and the environment, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	OCR      OCRConfig      `yaml:"ocr"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig holds bot transport settings.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	Mode          string `yaml:"mode"` // polling or webhook
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	Workers       int    `yaml:"workers"`
	PollTimeout   int    `yaml:"poll_timeout"` // seconds
	Debug         bool   `yaml:"debug"`
}

// OCRConfig holds engine and preprocessing settings.
type OCRConfig struct {
	Engine            string        `yaml:"engine"` // tesseract or vision
	Language          string        `yaml:"language"`
	TessdataPrefix    string        `yaml:"tessdata_prefix"`
	PageSegMode       int           `yaml:"psm"`
	VisionCredentials string        `yaml:"vision_credentials"`
	Preprocess        string        `yaml:"preprocess"` // none, binarize or adaptive
	Threshold         int           `yaml:"threshold"`
	MinHeight         int           `yaml:"min_height"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// AuthConfig holds API token settings. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DedupeConfig selects where seen update ids are remembered.
type DedupeConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads configuration from a YAML file (optional) and applies .env and
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// .env never overrides variables that are already set
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode:        "polling",
			Workers:     4,
			PollTimeout: 60,
		},
		OCR: OCRConfig{
			Engine:     "tesseract",
			Language:   "eng",
			Preprocess: "binarize",
			Threshold:  150,
			Timeout:    60 * time.Second,
		},
		Server: ServerConfig{
			Addr:             ":8081",
			MaxUploadBytes:   5 * 1024 * 1024,
			GracefulShutdown: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Dedupe: DedupeConfig{
			Driver: "memory",
			TTL:    10 * time.Minute,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Telegram.Mode != "polling" && c.Telegram.Mode != "webhook" {
		return fmt.Errorf("invalid telegram mode: %s", c.Telegram.Mode)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookURL == "" {
		return fmt.Errorf("webhook mode requires webhook_url")
	}
	if c.Telegram.Workers < 1 {
		return fmt.Errorf("telegram workers must be at least 1")
	}
	if c.OCR.Engine != "tesseract" && c.OCR.Engine != "vision" {
		return fmt.Errorf("invalid ocr engine: %s", c.OCR.Engine)
	}
	switch c.OCR.Preprocess {
	case "none", "binarize", "adaptive":
	default:
		return fmt.Errorf("invalid preprocess mode: %s", c.OCR.Preprocess)
	}
	if c.OCR.Threshold < 0 || c.OCR.Threshold > 255 {
		return fmt.Errorf("threshold must be between 0 and 255")
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("ocr timeout must be positive")
	}
	if c.Dedupe.Driver != "memory" && c.Dedupe.Driver != "redis" {
		return fmt.Errorf("invalid dedupe driver: %s", c.Dedupe.Driver)
	}
	if c.Dedupe.TTL <= 0 {
		return fmt.Errorf("dedupe ttl must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	return nil
}

// RequireToken reports an error when no bot token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("BOT_TOKEN not set")
	}
	return nil
}

// applyEnvOverrides copies set environment variables over cfg. Malformed
// values are reported together rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var env envReader
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("BOT_MODE"); v != "" {
		cfg.Telegram.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Telegram.WebhookURL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Telegram.WebhookSecret = v
	}
	if n, ok := env.getInt("BOT_WORKERS"); ok {
		cfg.Telegram.Workers = n
	}
	if v, ok := env.getBool("BOT_DEBUG"); ok {
		cfg.Telegram.Debug = v
	}

	if v := os.Getenv("OCR_ENGINE"); v != "" {
		cfg.OCR.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("OCR_LANG"); v != "" {
		cfg.OCR.Language = v
	}
	if v := os.Getenv("TESSDATA_PREFIX"); v != "" {
		cfg.OCR.TessdataPrefix = v
	}
	if n, ok := env.getInt("OCR_PSM"); ok {
		cfg.OCR.PageSegMode = n
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.OCR.VisionCredentials = v
	}
	if v := os.Getenv("OCR_PREPROCESS"); v != "" {
		// accept boolean spellings as well as mode names
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				v = "binarize"
			} else {
				v = "none"
			}
		}
		cfg.OCR.Preprocess = strings.ToLower(v)
	}
	if n, ok := env.getInt("OCR_THRESHOLD"); ok {
		cfg.OCR.Threshold = n
	}
	if d, ok := env.getDuration("OCR_TIMEOUT"); ok {
		cfg.OCR.Timeout = d
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("DEDUPE_DRIVER"); v != "" {
		cfg.Dedupe.Driver = strings.ToLower(v)
	}
	if d, ok := env.getDuration("DEDUPE_TTL"); ok {
		cfg.Dedupe.TTL = d
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		// redis://[user:password@]host:port[/db], as injected by Railway and Heroku
		opt, err := redis.ParseURL(v)
		if err != nil {
			env.errs = append(env.errs, fmt.Errorf("REDIS_URL: %w", err))
		} else {
			cfg.Dedupe.Driver = "redis"
			cfg.Dedupe.Redis.Addr = opt.Addr
			cfg.Dedupe.Redis.Username = opt.Username
			cfg.Dedupe.Redis.Password = opt.Password
			cfg.Dedupe.Redis.DB = opt.DB
			cfg.Dedupe.Redis.TLS = opt.TLSConfig != nil
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Dedupe.Redis.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return errors.Join(env.errs...)
}

// envReader parses typed environment variables and collects parse failures.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) getInt(key string) (int, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return 0, false
	}
	return n, true
}

func (e *envReader) getBool(key string) (bool, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return false, false
	}
	return b, true
}

func (e *envReader) getDuration(key string) (time.Duration, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q (use a unit, e.g. 30s)", key, v))
		return 0, false
	}
	return d, true
}
