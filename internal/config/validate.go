package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.DataSourceMode))
	if mode != "" && mode != "mock" && mode != "real" {
		return fmt.Errorf("data_source_mode must be 'mock' or 'real', got %q", c.DataSourceMode)
	}
	if mode == "real" && strings.TrimSpace(c.VenueBaseURL) == "" {
		return fmt.Errorf("venue_base_url is required when data_source_mode=real")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.PolicyID == "" {
		return fmt.Errorf("policy_id must not be empty")
	}

	if c.Ingest.PollInterval <= 0 {
		return fmt.Errorf("ingest.poll_interval must be > 0, got %s", c.Ingest.PollInterval)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxConcurrency <= 0 {
		return fmt.Errorf("ingest.max_concurrency must be > 0, got %d", c.Ingest.MaxConcurrency)
	}
	if c.Ingest.MinFlushInterval <= 0 {
		return fmt.Errorf("ingest.min_flush_interval must be > 0, got %s", c.Ingest.MinFlushInterval)
	}

	if c.Rules.EvalInterval <= 0 {
		return fmt.Errorf("rule_engine.eval_interval must be > 0, got %s", c.Rules.EvalInterval)
	}
	if c.Rules.Lookback <= 0 {
		return fmt.Errorf("rule_engine.lookback must be > 0, got %s", c.Rules.Lookback)
	}

	if c.Intent.ExpireInterval <= 0 {
		return fmt.Errorf("intent.expire_interval must be > 0, got %s", c.Intent.ExpireInterval)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.enabled requires both bot_token and chat_id")
	}

	return nil
}
