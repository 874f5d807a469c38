package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the environment driven configuration of the relay server.
type Config struct {
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"4444"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	StaticDir       string        `env:"STATIC_DIR" envDefault:"public"`

	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL" envDefault:"https://api.deepseek.com"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	PersonasFile string `env:"PERSONAS_FILE"`
	PersonaDir   string `env:"PERSONA_DIR" envDefault:"personas"`
	APIKey       string `env:"AI_API_KEY"`
}

const (
	HistoryBackendJSON = "json"
	HistoryBackendBolt = "bolt"
)

var defaultHistoryFiles = map[string]string{
	HistoryBackendJSON: "chat_history.json",
	HistoryBackendBolt: "chat_history.db",
}

// BotConfig configures the Telegram conversation client.
type BotConfig struct {
	TelegramToken  string        `env:"TELEGRAM_BOT_TOKEN,notEmpty"`
	RelayURL       string        `env:"RELAY_URL" envDefault:"http://localhost:4444"`
	RelayTimeout   time.Duration `env:"RELAY_TIMEOUT" envDefault:"35s"`
	HistoryFile    string        `env:"HISTORY_FILE"`
	HistoryBackend string        `env:"HISTORY_BACKEND" envDefault:"json"`
	PersonasFile   string        `env:"PERSONAS_FILE"`
	AdminUserIDs   []int64       `env:"ADMIN_USER_IDS" envSeparator:","`
	AllowedUserIDs []int64       `env:"ALLOWED_TELEGRAM_USER_IDS" envSeparator:","`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the relay configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.UpstreamBaseURL = strings.TrimRight(strings.TrimSpace(cfg.UpstreamBaseURL), "/")
	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL must not be empty")
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", cfg.UpstreamTimeout)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

// LoadBot parses the Telegram client configuration from the environment.
func LoadBot() (*BotConfig, error) {
	cfg := &BotConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.RelayURL = strings.TrimRight(strings.TrimSpace(cfg.RelayURL), "/")
	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))
	switch cfg.HistoryBackend {
	case HistoryBackendJSON, HistoryBackendBolt:
	default:
		return nil, fmt.Errorf("HISTORY_BACKEND must be %q or %q, got %q", HistoryBackendJSON, HistoryBackendBolt, cfg.HistoryBackend)
	}
	cfg.HistoryFile = strings.TrimSpace(cfg.HistoryFile)
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = defaultHistoryFiles[cfg.HistoryBackend]
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// LoadEnvFiles reads .env files from the working directory or its parent.
// Variables already present in the environment win.
func LoadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}
}
