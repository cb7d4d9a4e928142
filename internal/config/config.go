// Package config loads application settings with multi-source priority:
// environment variables override the optional config file, which overrides
// built-in defaults. The model endpoint and model name are re-resolved on
// every request so a running process picks up changes without a restart.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidListenAddr indicates the configured listen address is empty.
var ErrInvalidListenAddr = errors.New("config: invalid listen address")

const (
	// DefaultEndpoint matches a local LM Studio / llama.cpp style server.
	DefaultEndpoint = "http://localhost:1234/v1/chat"

	DefaultModel      = "Qwen/Qwen1.5-7B-Chat-GGUF"
	DefaultListenAddr = ":8100"
	DefaultDBPath     = "toolhub.db"

	// DefaultHistoryTokenBudget caps how much conversation history is
	// replayed into a prompt.
	DefaultHistoryTokenBudget = 2048
)

// Config carries the process-level settings that do not change per request.
type Config struct {
	ListenAddr         string
	DBPath             string
	EmbedderBaseURL    string
	EmbedderModel      string
	BooksBaseURL       string
	HistoryTokenBudget int
}

// Load reads config.yaml from the working directory if present, binds
// TOOLHUB_* environment variables, and applies defaults.
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("TOOLHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		ListenAddr:         viper.GetString("listen_addr"),
		DBPath:             viper.GetString("db_path"),
		EmbedderBaseURL:    viper.GetString("embedder_base_url"),
		EmbedderModel:      viper.GetString("embedder_model"),
		BooksBaseURL:       viper.GetString("books_base_url"),
		HistoryTokenBudget: viper.GetInt("history_token_budget"),
	}
	if cfg.ListenAddr == "" {
		return nil, ErrInvalidListenAddr
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("listen_addr", DefaultListenAddr)
	viper.SetDefault("db_path", DefaultDBPath)
	viper.SetDefault("endpoint", DefaultEndpoint)
	viper.SetDefault("model", DefaultModel)
	viper.SetDefault("history_token_budget", DefaultHistoryTokenBudget)
}

// Endpoint returns the current model endpoint base URL. Read through viper
// on every call so TOOLHUB_ENDPOINT takes effect mid-process.
func Endpoint() string {
	return viper.GetString("endpoint")
}

// Model returns the current model identifier, re-read per call like
// Endpoint.
func Model() string {
	return viper.GetString("model")
}
