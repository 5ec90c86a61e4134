package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.MinInterval != 3*time.Second {
		t.Errorf("min_interval = %v, want 3s", cfg.Chat.MinInterval)
	}
	if cfg.Chat.MaxInterval != 6*time.Second {
		t.Errorf("max_interval = %v, want 6s", cfg.Chat.MaxInterval)
	}
	if cfg.Chat.ResponseChance != 0.7 {
		t.Errorf("response_chance = %v, want 0.7", cfg.Chat.ResponseChance)
	}
	if cfg.Chat.DefaultTokenLimit != 200 {
		t.Errorf("default_token_limit = %d, want 200", cfg.Chat.DefaultTokenLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfig_IntervalValidation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "chat:\n  min_interval: 5s\n  max_interval: 5s\n"))
	if err == nil {
		t.Fatal("expected validation error when max_interval <= min_interval")
	}
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "storage:\n  remote: carrier-pigeon\n"))
	if err == nil {
		t.Fatal("expected validation error for unknown storage backend")
	}
}

func TestLoadConfig_RedisRequiresAddr(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "storage:\n  remote: redis\n"))
	if err == nil {
		t.Fatal("expected validation error when redis addr is missing")
	}
}
