// Package config loads settings shared by the server and the CLI from the
// environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Port      int
	StaticDir string

	SandboxDir string
	InstallCmd string
	DevCmd     string
	// WatchSandbox enables the on-disk file watcher for the sandbox root.
	WatchSandbox bool

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	ChatMaxTokens    int64
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Port:           8420,
		StaticDir:      "./frontend/dist",
		SandboxDir:     filepath.Join(os.TempDir(), "boltforge-sandbox"),
		InstallCmd:     "npm install",
		DevCmd:         "npm run dev",
		WatchSandbox:   true,
		AnthropicModel: "claude-sonnet-4-5",
		ChatMaxTokens:  8000,
	}
}

// Load reads envFiles (".env" when none are given) into the environment
// without overriding variables that are already set, then builds the config.
// Missing env files are ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the config from getenv. Unset or empty variables keep their
// defaults; malformed numbers are an error.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = n
	}
	if v := getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := getenv("SANDBOX_DIR"); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SANDBOX_DIR %q: %w", v, err)
		}
		cfg.SandboxDir = abs
	}
	if v := strings.TrimSpace(getenv("INSTALL_CMD")); v != "" {
		cfg.InstallCmd = v
	}
	if v := strings.TrimSpace(getenv("DEV_CMD")); v != "" {
		cfg.DevCmd = v
	}
	if v := getenv("WATCH_SANDBOX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WATCH_SANDBOX %q", v)
		}
		cfg.WatchSandbox = b
	}

	cfg.AnthropicAPIKey = getenv("ANTHROPIC_API_KEY")
	if v := getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.AnthropicModel = v
	}
	cfg.AnthropicBaseURL = getenv("ANTHROPIC_BASE_URL")
	if v := getenv("CHAT_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CHAT_MAX_TOKENS %q", v)
		}
		cfg.ChatMaxTokens = n
	}

	return cfg, nil
}
