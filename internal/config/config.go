package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marketpulse/marketpulse-x/internal/ingest"
	"github.com/marketpulse/marketpulse-x/internal/ruleengine"
)

// Config is the top-level process configuration for marketpulse-x, loaded
// from a YAML file and then overlaid with environment variables — the
// same two-step load the teacher uses for its trading config.
type Config struct {
	DBPath         string `yaml:"db_path"`
	DataSourceMode string `yaml:"data_source_mode"` // "mock" | "real"
	VenueBaseURL   string `yaml:"venue_base_url"`
	RulesDir       string `yaml:"rules_dir"`
	SynonymsDir    string `yaml:"synonyms_dir"`
	PolicyID       string `yaml:"policy_id"`
	LogLevel       string `yaml:"log_level"`

	MetricsAddr string `yaml:"metrics_addr"`

	Ingest   IngestConfig   `yaml:"ingest"`
	Rules    RuleConfig     `yaml:"rule_engine"`
	Intent   IntentConfig   `yaml:"intent"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type IngestConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	ChunkSize        int           `yaml:"chunk_size"`
	MaxConcurrency   int           `yaml:"max_concurrency"`
	MinFlushInterval time.Duration `yaml:"min_flush_interval"`
}

type RuleConfig struct {
	EvalInterval time.Duration `yaml:"eval_interval"`
	Lookback     time.Duration `yaml:"lookback"`
}

type IntentConfig struct {
	ExpireInterval time.Duration `yaml:"expire_interval"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Default returns the conservative defaults a fresh checkout runs with —
// mock data source, dry-run notifications, no Telegram credentials.
func Default() Config {
	ic := ingest.DefaultConfig()
	rc := ruleengine.DefaultConfig()
	return Config{
		DBPath:         "marketpulse.db",
		DataSourceMode: "mock",
		RulesDir:       "rules",
		SynonymsDir:    "synonyms",
		PolicyID:       "default",
		LogLevel:       "info",
		MetricsAddr:    ":9090",
		Ingest: IngestConfig{
			PollInterval:     ic.PollInterval,
			ChunkSize:        ic.ChunkSize,
			MaxConcurrency:   ic.MaxConcurrency,
			MinFlushInterval: ic.MinFlushInterval,
		},
		Rules: RuleConfig{
			EvalInterval: rc.EvalInterval,
			Lookback:     rc.Lookback,
		},
		Intent: IntentConfig{
			ExpireInterval: 30 * time.Second,
		},
	}
}

// LoadFile reads path as YAML over the defaults; a missing or malformed
// file falls back to Default() the same way the teacher's LoadFile does,
// leaving the caller to log the warning.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays well-known environment variables onto a loaded config,
// letting operators override secrets and the data-source mode without
// editing the checked-in YAML.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("MARKETPULSE_DATA_SOURCE_MODE")); v != "" {
		c.DataSourceMode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("MARKETPULSE_VENUE_BASE_URL")); v != "" {
		c.VenueBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKETPULSE_DB_PATH")); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MARKETPULSE_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("MARKETPULSE_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKETPULSE_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}
