package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/loadbalancer"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server    ServerConfig    `json:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `json:"redis" envPrefix:"REDIS_"`
	Backend   BackendConfig   `json:"backend" envPrefix:"BACKEND_"`
	Delivery  DeliveryConfig  `json:"delivery" envPrefix:"DELIVERY_"`
	JWT       JWTConfig       `json:"jwt" envPrefix:"JWT_"`
	RateLimit RateLimitConfig `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Audit     AuditConfig     `json:"audit" envPrefix:"AUDIT_"`

	MessagesFile string `json:"messages_file" env:"MESSAGES_FILE"`
	LogLevel     string `json:"log_level" env:"LOG_LEVEL"`
}

type ServerConfig struct {
	Port        string `json:"port" env:"PORT"`
	Environment string `json:"environment" env:"ENVIRONMENT"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn" env:"DSN"`
}

type RedisConfig struct {
	Host     string `json:"host" env:"HOST"`
	Port     int    `json:"port" env:"PORT"`
	Password string `json:"password" env:"PASSWORD"`
	DB       int    `json:"db" env:"DB"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Generative backend; an empty APIKey selects the offline stub
type BackendConfig struct {
	BaseURL string `json:"base_url" env:"BASE_URL"`
	// Extra OpenAI-compatible endpoints; with more than one URL in total,
	// completions are balanced across them and fail over on error.
	FallbackURLs    []string `json:"fallback_urls" env:"FALLBACK_URLS" envSeparator:","`
	Balancing       string   `json:"balancing" env:"BALANCING"` // "round_robin", "random" or "least_busy"
	APIKey          string   `json:"api_key" env:"API_KEY"`
	Model           string   `json:"model" env:"MODEL"`
	Timeout         Duration `json:"timeout" env:"TIMEOUT"`
	MaxRetries      int      `json:"max_retries" env:"MAX_RETRIES"`
	PromptPrice     string   `json:"prompt_price_per_million" env:"PROMPT_PRICE"`
	CompletionPrice string   `json:"completion_price_per_million" env:"COMPLETION_PRICE"`

	BreakerMaxFailures int      `json:"breaker_max_failures" env:"BREAKER_MAX_FAILURES"`
	BreakerCooldown    Duration `json:"breaker_cooldown" env:"BREAKER_COOLDOWN"`
}

// Reply delivery; an empty BotToken logs replies instead of posting them
type DeliveryConfig struct {
	APIBase  string   `json:"api_base" env:"API_BASE"`
	BotToken string   `json:"bot_token" env:"BOT_TOKEN"`
	Timeout  Duration `json:"timeout" env:"TIMEOUT"`
}

type JWTConfig struct {
	Secret      string `json:"secret" env:"SECRET"`
	ExpiryHours int    `json:"expiry_hours" env:"EXPIRY_HOURS"`
}

type RateLimitConfig struct {
	Backend   string `json:"backend" env:"BACKEND"`     // "memory" or "redis"
	Algorithm string `json:"algorithm" env:"ALGORITHM"` // "sliding_window" or "fixed_window"
	Dedupe    string `json:"dedupe" env:"DEDUPE"`       // "memory" or "redis"

	// Per API key (or client IP) throttle on the HTTP surface
	HTTPPerMinute int `json:"http_per_minute" env:"HTTP_PER_MINUTE"`
}

type AuditConfig struct {
	BufferSize    int      `json:"buffer_size" env:"BUFFER_SIZE"`
	BatchSize     int      `json:"batch_size" env:"BATCH_SIZE"`
	FlushInterval Duration `json:"flush_interval" env:"FLUSH_INTERVAL"`
	RetentionDays int      `json:"retention_days" env:"RETENTION_DAYS"`
}

// Duration reads "30s" style strings from both JSON and the environment
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func Defaults() Config {
	return Config{
		Server:   ServerConfig{Port: "8080", Environment: "development"},
		Database: DatabaseConfig{DSN: "host=localhost user=postgres password=postgres dbname=admission port=5432 sslmode=disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Backend: BackendConfig{
			Model:              "gpt-4o-mini",
			Timeout:            Duration{30 * time.Second},
			MaxRetries:         2,
			Balancing:          "round_robin",
			PromptPrice:        "0.15",
			CompletionPrice:    "0.60",
			BreakerMaxFailures: 5,
			BreakerCooldown:    Duration{30 * time.Second},
		},
		Delivery:  DeliveryConfig{Timeout: Duration{10 * time.Second}},
		JWT:       JWTConfig{ExpiryHours: 24},
		RateLimit: RateLimitConfig{Backend: "redis", Algorithm: "sliding_window", Dedupe: "redis", HTTPPerMinute: 600},
		Audit: AuditConfig{
			BufferSize:    1000,
			BatchSize:     100,
			FlushInterval: Duration{5 * time.Second},
			RetentionDays: 30,
		},
		MessagesFile: "messages.yaml",
		LogLevel:     "info",
	}
}

// Load reads the JSON file at path over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := json.Unmarshal(file, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required (JWT_SECRET)"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	switch c.RateLimit.Dedupe {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown duplicate guard backend %q", c.RateLimit.Dedupe))
	}
	if _, err := loadbalancer.NewStrategy(c.Backend.Balancing); err != nil {
		errs = append(errs, err)
	}
	if c.Backend.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
