package config

import "testing"

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidateInvalidDataSourceMode(t *testing.T) {
	cfg := Default()
	cfg.DataSourceMode = "invalid-mode"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid data_source_mode to fail validation")
	}
}

func TestValidateRealModeRequiresVenueBaseURL(t *testing.T) {
	cfg := Default()
	cfg.DataSourceMode = "real"
	cfg.VenueBaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected data_source_mode=real without venue_base_url to fail validation")
	}
}

func TestValidateTelegramRequiresBothCredentials(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Enabled = true
	cfg.Telegram.BotToken = "tok"
	cfg.Telegram.ChatID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected telegram enabled without chat_id to fail validation")
	}
}

func TestValidateNonPositiveIntervals(t *testing.T) {
	cfg := Default()
	cfg.Rules.EvalInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero rule_engine.eval_interval to fail validation")
	}

	cfg = Default()
	cfg.Ingest.ChunkSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero ingest.chunk_size to fail validation")
	}
}
