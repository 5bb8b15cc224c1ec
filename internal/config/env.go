package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env is the process configuration read from the environment.
type Env struct {
	APIKey      string        `env:"GEMINI_API_KEY"`
	DBPath      string        `env:"MURMUR_DB_PATH"`
	LogFile     string        `env:"MURMUR_LOG_FILE"`
	LogLevel    string        `env:"MURMUR_LOG_LEVEL" envDefault:"info"`
	Provider    string        `env:"MURMUR_PROVIDER" envDefault:"gemini"`
	BaseURL     string        `env:"MURMUR_BASE_URL"`
	ContextFile string        `env:"MURMUR_CONTEXT_FILE"`
	STTCommand  string        `env:"MURMUR_STT_COMMAND"`
	TTSCommand  string        `env:"MURMUR_TTS_COMMAND"`
	HTTPTimeout time.Duration `env:"MURMUR_HTTP_TIMEOUT" envDefault:"60s"`
}

// LoadEnv loads envFile (when given) into the process environment and parses
// the result into an Env.
func LoadEnv(envFile string) (Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Env{}, fmt.Errorf("error loading env file '%s': %w", envFile, err)
		}
	}

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func (e Env) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(e.LogLevel)) {
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

// LogPath returns the log file, defaulting to murmur.log next to the database.
func (e Env) LogPath(dbPath string) string {
	if e.LogFile != "" {
		return e.LogFile
	}
	return filepath.Join(filepath.Dir(dbPath), "murmur.log")
}
