package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"signal_exec/internal/models"
	"signal_exec/pkg/tracing"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	bybitKeyENV       = "BYBIT_API_KEY"
	bybitSecretENV    = "BYBIT_API_SECRET"
)

// Credentials — ключи биржи. В логи не попадают.
type Credentials struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

func (c Credentials) Empty() bool { return c.APIKey == "" || c.APISecret == "" }

func (c Credentials) String() string {
	if c.APIKey == "" {
		return "credentials{}"
	}
	return "credentials{key=" + mask(c.APIKey) + ", secret=***}"
}

func (c Credentials) GoString() string { return c.String() }

func mask(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}

type Worker struct {
	BatchLimit        int           `yaml:"batch_limit"`
	MaxParallel       int           `yaml:"max_parallel"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	// 0 — без ограничения числа попыток
	MaxAttempts int `yaml:"max_attempts"`
}

type Bybit struct {
	Network     models.Network `yaml:"network"`
	Credentials Credentials    `yaml:",inline"`
	RecvWindow  int            `yaml:"recv_window"`
	Category    string         `yaml:"category"`
	HTTPTimeout time.Duration  `yaml:"http_timeout"`
	BaseURL     string         `yaml:"base_url"` // переопределение для тестов/прокси
}

type Stream struct {
	Enabled      bool                           `yaml:"enabled"`
	Topics       map[models.StreamKind][]string `yaml:"topics"`
	URLs         map[models.StreamKind]string   `yaml:"urls"` // переопределение endpoint'ов
	BackoffFloor time.Duration                  `yaml:"backoff_floor"`
	BackoffCap   time.Duration                  `yaml:"backoff_cap"`
	Heartbeat    time.Duration                  `yaml:"heartbeat"`
	AuthTTL      time.Duration                  `yaml:"auth_ttl"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB         string `yaml:"db_dsn"`
	DBMaxConns int32  `yaml:"db_max_conns"`
	Service    struct {
		Name      string `yaml:"name"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`
	LogLevel string `yaml:"log_level"`

	Worker  Worker         `yaml:"worker"`
	Bybit   Bybit          `yaml:"bybit"`
	Stream  Stream         `yaml:"stream"`
	Tracing tracing.Config `yaml:"tracing"`
}

// Default — значения, которые перекрываются файлом и env.
func Default() Config {
	cfg := Config{
		LogLevel: "info",
		Worker: Worker{
			BatchLimit:        50,
			MaxParallel:       8,
			VisibilityTimeout: 60 * time.Second,
			PollInterval:      5 * time.Second,
			MaxAttempts:       5,
		},
		Bybit: Bybit{
			Network:     models.NetworkMain,
			RecvWindow:  5000,
			Category:    "linear",
			HTTPTimeout: 10 * time.Second,
		},
		Stream: Stream{
			Enabled:      true,
			BackoffFloor: time.Second,
			BackoffCap:   30 * time.Second,
			Heartbeat:    20 * time.Second,
			AuthTTL:      60 * time.Second,
		},
	}
	cfg.Service.Name = "signal-exec"
	cfg.Service.AdminPort = 8080
	return cfg
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	dir := getenvDefault(configDirENV, "configs")

	cfg := Default()

	file, err := os.Open(dir + "/" + configFileName)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := Decode(file, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		// файла нет — живём на дефолтах и env
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode читает yaml поверх уже заполненного cfg.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv(tokenTelegramENV); token != "" {
		cfg.Telegram.Token = token
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		cfg.DB = dsn
	}
	if v := os.Getenv(bybitKeyENV); v != "" {
		cfg.Bybit.Credentials.APIKey = v
	}
	if v := os.Getenv(bybitSecretENV); v != "" {
		cfg.Bybit.Credentials.APISecret = v
	}
	if v := os.Getenv("BYBIT_NETWORK"); v != "" {
		cfg.Bybit.Network = models.Network(strings.ToLower(v))
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.Worker.BatchLimit = intFromEnv("WORKER_BATCH_LIMIT", cfg.Worker.BatchLimit)
	cfg.Worker.MaxParallel = intFromEnv("WORKER_MAX_PARALLEL", cfg.Worker.MaxParallel)
	cfg.Worker.MaxAttempts = intFromEnv("WORKER_MAX_ATTEMPTS", cfg.Worker.MaxAttempts)
	cfg.Worker.VisibilityTimeout = durationFromEnv("WORKER_VISIBILITY_TIMEOUT", cfg.Worker.VisibilityTimeout)
	cfg.Worker.PollInterval = durationFromEnv("WORKER_POLL_INTERVAL", cfg.Worker.PollInterval)
	cfg.Stream.Enabled = boolFromEnv("STREAM_ENABLED", cfg.Stream.Enabled)
	cfg.Tracing.Enabled = boolFromEnv("TRACING_ENABLED", cfg.Tracing.Enabled)
}

func (c *Config) Validate() error {
	if c.Worker.BatchLimit <= 0 {
		return fmt.Errorf("worker.batch_limit must be > 0")
	}
	if c.Worker.MaxParallel <= 0 {
		return fmt.Errorf("worker.max_parallel must be > 0")
	}
	if c.Worker.VisibilityTimeout <= 0 {
		return fmt.Errorf("worker.visibility_timeout must be > 0")
	}
	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("worker.max_attempts must be >= 0")
	}
	if c.Bybit.Network != models.NetworkMain && c.Bybit.Network != models.NetworkTest {
		return fmt.Errorf("bybit.network must be main|test, got %q", c.Bybit.Network)
	}
	if c.Stream.BackoffFloor <= 0 || c.Stream.BackoffCap < c.Stream.BackoffFloor {
		return fmt.Errorf("stream backoff: floor must be > 0 and <= cap")
	}
	for kind := range c.Stream.Topics {
		if err := kind.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
