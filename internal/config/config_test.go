package config

import (
	"os"
	"path/filepath"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.Port != 8420 || cfg.InstallCmd != "npm install" || cfg.DevCmd != "npm run dev" || cfg.ChatMaxTokens != 8000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.SandboxDir) {
		t.Errorf("expected absolute sandbox dir, got %s", cfg.SandboxDir)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":               "9000",
		"SANDBOX_DIR":        "/srv/sandbox",
		"INSTALL_CMD":        "pnpm install",
		"DEV_CMD":            " pnpm dev ",
		"WATCH_SANDBOX":      "false",
		"ANTHROPIC_API_KEY":  "sk-test",
		"ANTHROPIC_MODEL":    "claude-haiku-4-5",
		"ANTHROPIC_BASE_URL": "http://localhost:9999",
		"CHAT_MAX_TOKENS":    "4096",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	want := Config{
		Port:             9000,
		StaticDir:        "./frontend/dist",
		SandboxDir:       "/srv/sandbox",
		InstallCmd:       "pnpm install",
		DevCmd:           "pnpm dev",
		WatchSandbox:     false,
		AnthropicAPIKey:  "sk-test",
		AnthropicModel:   "claude-haiku-4-5",
		AnthropicBaseURL: "http://localhost:9999",
		ChatMaxTokens:    4096,
	}
	if cfg != want {
		t.Errorf("expected %+v, got %+v", want, cfg)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "http"},
		{"PORT", "70000"},
		{"WATCH_SANDBOX", "maybe"},
		{"CHAT_MAX_TOKENS", "-1"},
	}
	for _, tt := range tests {
		if _, err := FromEnv(envMap(map[string]string{tt.key: tt.value})); err == nil {
			t.Errorf("expected error for %s=%q", tt.key, tt.value)
		}
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("BOLTFORGE_TEST_DEV_CMD=yarn dev\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOLTFORGE_TEST_DEV_CMD", "")
	os.Unsetenv("BOLTFORGE_TEST_DEV_CMD")

	if _, err := Load(envFile); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("BOLTFORGE_TEST_DEV_CMD"); got != "yarn dev" {
		t.Errorf("expected env file to be loaded, got %q", got)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("expected missing env file to be ignored, got %v", err)
	}
}
