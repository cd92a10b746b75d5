package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Agent.Name != "CalAgent" {
		t.Fatalf("unexpected agent name: %q", cfg.Agent.Name)
	}
	if cfg.Server.Port != 10000 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Calendar.DefaultDurationMin != 60 {
		t.Fatalf("unexpected default duration: %d", cfg.Calendar.DefaultDurationMin)
	}
	if cfg.Google.RedirectURL != "http://localhost:10000/oauth2callback" {
		t.Fatalf("unexpected redirect url: %q", cfg.Google.RedirectURL)
	}
	if cfg.Trace.RetentionDays != 30 {
		t.Fatalf("unexpected retention: %d", cfg.Trace.RetentionDays)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "key-from-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-from-env")
	t.Setenv("PORT", "8088")

	mgr, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.LLM.APIKey != "key-from-env" {
		t.Fatalf("api key not taken from env: %q", cfg.LLM.APIKey)
	}
	if cfg.Telegram.BotToken != "bot-from-env" {
		t.Fatalf("bot token not taken from env: %q", cfg.Telegram.BotToken)
	}
	if cfg.Server.Port != 8088 {
		t.Fatalf("port not taken from env: %d", cfg.Server.Port)
	}
}

func TestSecretsNeverWrittenToDisk(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "super-secret")
	t.Setenv("GOOGLE_CLIENT_SECRET", "also-secret")
	t.Setenv("SESSION_SECRET", "very-secret")

	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := NewManager(path); err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse config file: %v", err)
	}
	if onDisk.LLM.APIKey != "" || onDisk.Google.ClientSecret != "" || onDisk.Server.SessionSecret != "" {
		t.Fatalf("secrets leaked to disk: %+v", onDisk)
	}
}

func TestLoadExistingFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	seed := `{"agent": {"name": "Custom"}, "server": {"port": 9000}}`
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	cfg := mgr.Get()
	if cfg.Agent.Name != "Custom" || cfg.Server.Port != 9000 {
		t.Fatalf("file values not honored: %+v", cfg)
	}
	if cfg.LLM.Model == "" || cfg.Calendar.MaxResults == 0 {
		t.Fatalf("defaults not applied over file: %+v", cfg)
	}
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	updated, err := mgr.Update(func(c *Config) {
		c.Calendar.TimeZone = "Asia/Kolkata"
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Calendar.TimeZone != "Asia/Kolkata" {
		t.Fatalf("unexpected timezone: %q", updated.Calendar.TimeZone)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Get().Calendar.TimeZone != "Asia/Kolkata" {
		t.Fatalf("update not persisted: %q", reloaded.Get().Calendar.TimeZone)
	}
}
