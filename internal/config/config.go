// Package config implements the ambient configuration stack: a JSON config
// file deep-merged against compiled-in defaults at the top level only, with
// secrets layered from ARCRELAY_* environment variables (see applyEnv). New
// default keys are added silently; unknown keys are preserved; the file is
// written back only when new keys were added.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/arcrelay/bridge/internal/corerr"
)

// Config is the runtime configuration of the bridge.
type Config struct {
	AllowedUserIDs []int64 `json:"allowed_user_ids"`

	DefaultProvider string            `json:"default_provider"`
	DefaultModel    string            `json:"default_model"`
	KnownModels     map[string]bool   `json:"known_models"`
	Equivalence     map[string]string `json:"provider_equivalence"`

	HeartbeatPrompt       string `json:"heartbeat_prompt"`
	HeartbeatAckToken     string `json:"heartbeat_ack_token"`
	HeartbeatCooldownSecs int    `json:"heartbeat_cooldown_seconds"`

	SessionAgeThresholdHours int `json:"session_age_threshold_hours"`
	MemoryHookEvery          int `json:"memory_hook_every"`

	DefaultPermissionMode string  `json:"default_permission_mode"`
	DefaultMaxTurns       int     `json:"default_max_turns"`
	DefaultMaxBudget      float64 `json:"default_max_budget"`
	CLITimeoutSeconds     int     `json:"cli_timeout_seconds"`

	StopCommand   string   `json:"stop_command"`
	AbortKeywords []string `json:"abort_keywords"`
	DedupeTTLSecs int      `json:"dedupe_ttl_seconds"`

	Timezone       string `json:"timezone"`
	QuietHourStart int    `json:"quiet_hour_start"`
	QuietHourEnd   int    `json:"quiet_hour_end"`

	WebhookBindAddr   string `json:"webhook_bind_addr"`
	WebhookGlobalAuth string `json:"webhook_global_token"`
	RateLimitPerMin   int    `json:"webhook_rate_limit_per_minute"`

	CleanupCheckHour     int            `json:"cleanup_check_hour"`
	CleanupRetentionDays map[string]int `json:"cleanup_retention_days"`

	RelayEnabled bool   `json:"relay_enabled"`
	RelayAddr    string `json:"relay_addr"`

	// Secrets, populated from the environment, never written to disk.
	TelegramToken  string `json:"-"`
	DiscordToken   string `json:"-"`
	DiscordGuildID string `json:"-"`
}

// Defaults returns the packaged defaults deep-merged into every
// config.json.
func Defaults() Config {
	return Config{
		AllowedUserIDs:  []int64{},
		DefaultProvider: "claude",
		DefaultModel:    "",
		KnownModels: map[string]bool{
			"claude": true,
			"codex":  true,
		},
		Equivalence: map[string]string{
			"claude": "codex",
			"codex":  "claude",
		},
		HeartbeatPrompt:          "Anything worth checking in on?",
		HeartbeatAckToken:        "NOOP",
		HeartbeatCooldownSecs:    3600,
		SessionAgeThresholdHours: 12,
		MemoryHookEvery:          6,
		DefaultPermissionMode:    "default",
		DefaultMaxTurns:          0,
		DefaultMaxBudget:         0,
		CLITimeoutSeconds:        600,
		StopCommand:              "/stop",
		AbortKeywords:            []string{"stop", "abort", "cancel"},
		DedupeTTLSecs:            30,
		Timezone:                 "",
		QuietHourStart:           0,
		QuietHourEnd:             0,
		WebhookBindAddr:          "127.0.0.1:8765",
		RateLimitPerMin:          30,
		CleanupCheckHour:         4,
		CleanupRetentionDays: map[string]int{
			"telegram_files": 14,
			"output_to_user": 14,
		},
		RelayEnabled: false,
		RelayAddr:    "",
	}
}

// Load reads path, deep-merges it over Defaults() at the top level only,
// writes back if new keys were added, then layers environment-variable
// secrets over the result.
func Load(path string) (*Config, error) {
	defaults := Defaults()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := defaults
		if writeErr := write(path, cfg); writeErr != nil {
			return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "writing default config", writeErr)
		}
		if envErr := applyEnv(&cfg); envErr != nil {
			return nil, envErr
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "reading config file", err)
	}

	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "parsing config JSON", err)
	}

	defaultsMap, err := toMap(defaults)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "encoding defaults", err)
	}

	added := false
	merged := make(map[string]json.RawMessage, len(defaultsMap))
	for k, v := range onDisk {
		merged[k] = v
	}
	for k, v := range defaultsMap {
		if _, present := onDisk[k]; !present {
			merged[k] = v
			added = true
		}
	}

	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "re-encoding merged config", err)
	}
	var cfg Config
	if err := json.Unmarshal(mergedBytes, &cfg); err != nil {
		return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "decoding merged config", err)
	}

	if added {
		if err := renameio.WriteFile(path, mergedBytes, 0o644); err != nil {
			return nil, corerr.Wrap(corerr.KindInfrastructure, "config.Load", "writing back merged config", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

func toMap(cfg Config) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// applyEnv layers secret material from the environment:
// ARCRELAY_TELEGRAM_TOKEN, ARCRELAY_DISCORD_TOKEN, ARCRELAY_DISCORD_GUILD_ID,
// ARCRELAY_ALLOWED_USER_IDS (comma-separated, replaces the file's list) and
// ARCRELAY_WEBHOOK_TOKEN, plus TZ when no timezone is configured. The root
// directory and agent-O home overrides are read by internal/workspace.
func applyEnv(cfg *Config) error {
	cfg.TelegramToken = os.Getenv("ARCRELAY_TELEGRAM_TOKEN")
	cfg.DiscordToken = os.Getenv("ARCRELAY_DISCORD_TOKEN")
	cfg.DiscordGuildID = os.Getenv("ARCRELAY_DISCORD_GUILD_ID")

	if ids := os.Getenv("ARCRELAY_ALLOWED_USER_IDS"); ids != "" {
		parsed := make([]int64, 0)
		for _, idStr := range strings.Split(ids, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return corerr.Wrap(corerr.KindInfrastructure, "config.applyEnv", "invalid ARCRELAY_ALLOWED_USER_IDS entry "+idStr, err)
			}
			parsed = append(parsed, id)
		}
		cfg.AllowedUserIDs = parsed
	}

	if cfg.Timezone == "" {
		cfg.Timezone = os.Getenv("TZ")
	}
	if token := os.Getenv("ARCRELAY_WEBHOOK_TOKEN"); token != "" {
		cfg.WebhookGlobalAuth = token
	}
	return nil
}
