// Package config loads daemon configuration from a JSON config file,
// a .env file, and QIANBAN_* environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Cloud    CloudConfig
	Ollama   OllamaConfig
	Storage  StorageConfig
	History  HistoryConfig
	Interest InterestConfig
	Log      LogConfig

	// ProfileID names whose interest book this daemon serves.
	ProfileID string

	// APIToken guards the HTTP API. Set via QIANBAN_API_TOKEN; when empty
	// the server generates one on first start and persists it in DataDir.
	APIToken string
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// CloudConfig points at the managed OpenAI-compatible endpoint used as
// the primary inference backend.
type CloudConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OllamaConfig points at the self-hosted fallback backend.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

// HistoryConfig selects where chat history lives. With an empty RedisURL
// history is kept in process memory only.
type HistoryConfig struct {
	RedisURL string
	TTL      string
}

type InterestConfig struct {
	AnalyzeTimeout string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4700,
			MCPPort: 4701,
		},
		Cloud: CloudConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "qwen/qwen3-32b",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5:7b",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			TTL: "168h",
		},
		Interest: InterestConfig{
			AnalyzeTimeout: "10s",
		},
		Log: LogConfig{
			Level: "info",
		},
		ProfileID: "default",
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "qianban-data"
		}
	}
	return filepath.Join(dir, "qianban")
}

// Load reads configuration. A .env file in the working directory is read
// first so QIANBAN_* variables can live there during development.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// HistoryTTL parses the configured history retention. Unparseable values
// fall back to seven days.
func (c Config) HistoryTTL() time.Duration {
	d, err := time.ParseDuration(c.History.TTL)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// AnalyzeTimeout parses the interest extraction deadline. Zero means the
// extractor's built-in default.
func (c Config) AnalyzeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Interest.AnalyzeTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "qianban", "config.json")
}

// Validate checks the parts of the config the server cannot start without.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MCPPort <= 0 || c.Server.MCPPort > 65535 {
		return fmt.Errorf("invalid MCP port %d", c.Server.MCPPort)
	}
	if c.Cloud.APIKey == "" && c.Ollama.BaseURL == "" {
		return fmt.Errorf("no inference backend configured: set QIANBAN_CLOUD_API_KEY or QIANBAN_OLLAMA_BASE_URL")
	}
	return nil
}
