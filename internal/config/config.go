package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/fetch"
)

// Prefix of every environment variable read by Load.
const Prefix = "MODELFETCH"

// testModeCap is the transfer cap applied by TEST_MODE when no explicit cap is set.
const testModeCap = 1 << 20

// Config struct for environment variables.
type Config struct {
	BaseURL         string `envconfig:"BASE_URL" validate:"required,url"`
	ReachabilityURL string `envconfig:"REACHABILITY_URL" default:"https://huggingface.co" validate:"required,url"`
	ModelDir        string `envconfig:"MODEL_DIR" default:"/workspace/ComfyUI/models" validate:"required"`
	CatalogFile     string `envconfig:"CATALOG_FILE"`
	HFToken         string `envconfig:"HF_TOKEN"`
	IncludeSchnell  bool   `envconfig:"INCLUDE_SCHNELL" default:"false"`
	TestMode        bool   `envconfig:"TEST_MODE" default:"false"`

	Engine struct {
		ChunkSize        int           `split_words:"true" default:"8192" validate:"gt=0"`
		Timeout          time.Duration `split_words:"true" default:"60s" validate:"gt=0"`
		ReadTimeout      time.Duration `split_words:"true" default:"5m" validate:"gt=0"`
		Retries          int           `split_words:"true" default:"3" validate:"gte=1"`
		ProgressInterval time.Duration `split_words:"true" default:"100ms" validate:"gt=0"`
		BackoffBase      time.Duration `split_words:"true" default:"2s" validate:"gte=0"`
		TestCap          int64         `split_words:"true" default:"0" validate:"gte=0"`
		PartialSuffix    string        `split_words:"true" default:".part" validate:"required"`
	}

	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	LogDir    string `envconfig:"LOG_DIR" default:"/workspace/logs/modelfetch"`
	MarkerDir string `envconfig:"MARKER_DIR" default:"/workspace/logs" validate:"required"`
	DBPath    string `envconfig:"DB_PATH" default:"/workspace/logs/modelfetch.db" validate:"required"`

	PartialRetention  time.Duration `envconfig:"PARTIAL_RETENTION" default:"168h" validate:"gt=0"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h" validate:"gt=0"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"modelfetch"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// Load reads envFiles (default: an optional .env), then environment variables prefixed with
// MODELFETCH_, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	// A missing default .env is fine; a named file must exist.
	if err := godotenv.Load(envFiles...); err != nil && (len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist)) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = catalog.DefaultBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of every field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// EngineOptions maps the engine settings onto fetch.Options. Test mode caps
// transfers at 1 MiB unless a cap is configured.
func (c *Config) EngineOptions() fetch.Options {
	opts := fetch.Options{
		ChunkSize:        c.Engine.ChunkSize,
		ReadTimeout:      c.Engine.ReadTimeout,
		Retries:          c.Engine.Retries,
		ProgressInterval: c.Engine.ProgressInterval,
		BackoffBase:      c.Engine.BackoffBase,
		TestCap:          c.Engine.TestCap,
		PartialSuffix:    c.Engine.PartialSuffix,
	}

	if c.TestMode && opts.TestCap == 0 {
		opts.TestCap = testModeCap
	}

	return opts
}

// ClientConfig returns the settings of the remote-store client.
func (c *Config) ClientConfig() fetch.ClientConfig {
	return fetch.ClientConfig{
		BaseURL:     c.BaseURL,
		Token:       c.HFToken,
		Timeout:     c.Engine.Timeout,
		BackoffBase: c.Engine.BackoffBase,
	}
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
