package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DataSourceMode != "mock" {
		t.Fatalf("expected data_source_mode=mock by default, got %q", cfg.DataSourceMode)
	}
	if cfg.Ingest.PollInterval <= 0 {
		t.Fatal("expected positive ingest poll interval")
	}
	if cfg.Ingest.MinFlushInterval <= 0 {
		t.Fatal("expected positive ingest min flush interval")
	}
	if cfg.Rules.EvalInterval <= 0 {
		t.Fatal("expected positive rule eval interval")
	}
	if cfg.Telegram.Enabled {
		t.Fatal("expected telegram disabled by default")
	}
	if cfg.PolicyID == "" {
		t.Fatal("expected a default policy id")
	}
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
data_source_mode: real
venue_base_url: https://example.invalid
db_path: /tmp/mp.db
rule_engine:
  eval_interval: 5s
  lookback: 30m
ingest:
  poll_interval: 15s
  chunk_size: 10
  max_concurrency: 4
telegram:
  enabled: true
  bot_token: tok
  chat_id: chat
`
	f, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte(yaml)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataSourceMode != "real" {
		t.Fatalf("expected data_source_mode=real, got %q", cfg.DataSourceMode)
	}
	if cfg.VenueBaseURL != "https://example.invalid" {
		t.Fatalf("expected venue_base_url override, got %q", cfg.VenueBaseURL)
	}
	if cfg.Rules.EvalInterval != 5*time.Second {
		t.Fatalf("expected eval_interval=5s, got %v", cfg.Rules.EvalInterval)
	}
	if cfg.Rules.Lookback != 30*time.Minute {
		t.Fatalf("expected lookback=30m, got %v", cfg.Rules.Lookback)
	}
	if cfg.Ingest.ChunkSize != 10 {
		t.Fatalf("expected chunk_size=10, got %d", cfg.Ingest.ChunkSize)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "tok" || cfg.Telegram.ChatID != "chat" {
		t.Fatalf("expected telegram fields from yaml, got %+v", cfg.Telegram)
	}
}

func TestLoadFileInvalidPath(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	f, err := os.CreateTemp("", "bad-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte("{{invalid yaml")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = LoadFile(f.Name())
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestApplyEnvDataSourceMode(t *testing.T) {
	t.Setenv("MARKETPULSE_DATA_SOURCE_MODE", "REAL")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.DataSourceMode != "real" {
		t.Fatalf("expected data_source_mode from env to be lowercased 'real', got %q", cfg.DataSourceMode)
	}
}

func TestApplyEnvTelegramEnablesOnToken(t *testing.T) {
	t.Setenv("MARKETPULSE_TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("MARKETPULSE_TELEGRAM_CHAT_ID", "chat")
	cfg := Default()
	cfg.ApplyEnv()
	if !cfg.Telegram.Enabled {
		t.Fatal("expected setting a bot token via env to enable telegram")
	}
	if cfg.Telegram.BotToken != "tok" || cfg.Telegram.ChatID != "chat" {
		t.Fatalf("expected telegram creds from env, got %+v", cfg.Telegram)
	}
}

func TestApplyEnvDBPath(t *testing.T) {
	t.Setenv("MARKETPULSE_DB_PATH", "/tmp/override.db")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected db_path override, got %q", cfg.DBPath)
	}
}
