// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package config loads the runtime's configuration surface from
// YAML/TOML/JSON and environment: github.com/spf13/viper with mapstructure
// tags; an env override names a nested key with each "." replaced by "_".
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentrt/agentrt/internal/contextmgr"
	"github.com/agentrt/agentrt/internal/entity"
)

// ModelBackendConfig configures the model backend boundary.
type ModelBackendConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // seconds
	MaxRetries  int     `mapstructure:"max_retries"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ContextConfig maps directly onto contextmgr.CompactionConfig.
type ContextConfig struct {
	Strategy               string `mapstructure:"strategy"`
	TriggerThresholdTokens int    `mapstructure:"trigger_threshold_tokens"`
	TargetTokens           int    `mapstructure:"target_tokens"`
	PreserveRecentTurns    int    `mapstructure:"preserve_recent_turns"`
	PreserveSystemPrompt   bool   `mapstructure:"preserve_system_prompt"`
	SummarizationModel     string `mapstructure:"summarization_model"`
}

// ToCompactionConfig translates the config surface into the
// contextmgr package's native shape.
func (c ContextConfig) ToCompactionConfig() contextmgr.CompactionConfig {
	kind := entity.CompactionStrategy(c.Strategy)
	if kind == "" {
		kind = entity.StrategySelectivePrune
	}
	return contextmgr.CompactionConfig{
		StrategyKind:           kind,
		TriggerThresholdTokens: c.TriggerThresholdTokens,
		TargetTokens:           c.TargetTokens,
		PreserveRecentTurns:    c.PreserveRecentTurns,
		PreserveSystemPrompt:   c.PreserveSystemPrompt,
		SummarizationModel:     c.SummarizationModel,
	}
}

// RetryConfig selects the aggressiveness-level retry table plus the
// circuit breaker's thresholds.
type RetryConfig struct {
	Level            int           `mapstructure:"retry_level"` // 1-3
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// TokenizerConfig tunes the token counter.
type TokenizerConfig struct {
	Encoding      string            `mapstructure:"encoding"`
	ModelMapping  map[string]string `mapstructure:"model_mapping"`
	SafetyMargin  float64           `mapstructure:"safety_margin"`
}

// CostConfig is the per-model USD/1K-token rate table with a default
// fallback. Load fills it; nothing in this module converts it into the
// usage.RateTable that usage.Tracker.EstimateCost takes.
type CostConfig struct {
	RatesPerThousand map[string]float64 `mapstructure:"rates_per_thousand"`
	Default          float64            `mapstructure:"default"`
}

// ReactConfig mirrors react.Config's fields, loaded from the same
// configuration surface.
type ReactConfig struct {
	ExposeReasoning        bool    `mapstructure:"expose_reasoning"`
	ReasoningPrefix        string  `mapstructure:"reasoning_prefix"`
	ActionPrefix           string  `mapstructure:"action_prefix"`
	ObservationPrefix      string  `mapstructure:"observation_prefix"`
	FinalAnswerToolName    string  `mapstructure:"final_answer_tool_name"`
	AutoCompactInWorkflow  bool    `mapstructure:"auto_compact_in_workflow"`
	CompactThresholdRatio  float64 `mapstructure:"compact_threshold_ratio"`
	MaxConsecutiveThoughts int     `mapstructure:"max_consecutive_thoughts"`
	IncludeScratchpad      bool    `mapstructure:"include_scratchpad"`
	ToolRetryCount         int     `mapstructure:"tool_retry_count"`
	MaxIterations          int     `mapstructure:"max_iterations"`
	TimeoutSeconds         float64 `mapstructure:"timeout_seconds"`
	StepTimeoutSeconds     float64 `mapstructure:"step_timeout_seconds"`
}

// LogConfig configures internal/logging.New.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MCPServerConfig is the on-disk shape of one mcp.ServerConfig.
type MCPServerConfig struct {
	Name      string            `mapstructure:"name"`
	Transport string            `mapstructure:"transport"`
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	URL       string            `mapstructure:"url"`
	ToolPrefix string           `mapstructure:"tool_prefix"`
	Auth      *MCPAuthConfig    `mapstructure:"auth"`
}

// MCPAuthConfig is the on-disk shape of one mcp.AuthConfig.
type MCPAuthConfig struct {
	Key        string `mapstructure:"key"`
	KeyEnv     string `mapstructure:"key_env"`
	HeaderName string `mapstructure:"header_name"`
}

// Config is the full configuration surface the runtime exposes.
type Config struct {
	ModelBackend ModelBackendConfig `mapstructure:"model_backend"`
	Context      ContextConfig      `mapstructure:"context"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Tokenizer    TokenizerConfig    `mapstructure:"tokenizer"`
	Cost         CostConfig         `mapstructure:"cost"`
	React        ReactConfig        `mapstructure:"react"`
	Log          LogConfig          `mapstructure:"log"`
	MCP          []MCPServerConfig  `mapstructure:"mcp"`

	v *viper.Viper // retained so Dump can redact and print what was actually loaded
}

// Load reads configuration from a config.{yaml,toml,json} searched in the
// working directory and $HOME/.agentrt, defaults filled first, environment
// variables last — for env lookup each "." of a nested key becomes "_", so
// MODEL_BACKEND_BASE_URL overrides model_backend.base_url.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentrt"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	cfg.v = v
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_backend.base_url", "https://api.openai.com/v1")
	v.SetDefault("model_backend.model", "gpt-4o-mini")
	v.SetDefault("model_backend.timeout", 120)
	v.SetDefault("model_backend.max_retries", 3)
	v.SetDefault("model_backend.temperature", 0.7)

	v.SetDefault("context.strategy", "selective_prune")
	v.SetDefault("context.trigger_threshold_tokens", 6400)
	v.SetDefault("context.target_tokens", 4800)
	v.SetDefault("context.preserve_recent_turns", 4)
	v.SetDefault("context.preserve_system_prompt", true)

	v.SetDefault("retry.retry_level", 2)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.success_threshold", 2)
	v.SetDefault("retry.breaker_timeout", "30s")

	v.SetDefault("tokenizer.encoding", "cl100k_base")
	v.SetDefault("tokenizer.safety_margin", 0.1)

	v.SetDefault("cost.default", 0.002)

	v.SetDefault("react.expose_reasoning", true)
	v.SetDefault("react.reasoning_prefix", "Thought: ")
	v.SetDefault("react.action_prefix", "Action: ")
	v.SetDefault("react.observation_prefix", "Observation: ")
	v.SetDefault("react.final_answer_tool_name", "final_answer")
	v.SetDefault("react.auto_compact_in_workflow", true)
	v.SetDefault("react.compact_threshold_ratio", 0.8)
	v.SetDefault("react.max_consecutive_thoughts", 3)
	v.SetDefault("react.include_scratchpad", true)
	v.SetDefault("react.tool_retry_count", 1)
	v.SetDefault("react.max_iterations", 15)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
}

// secretKeyFragments names config keys Dump redacts, the same
// credential-shaped-key scan entity.RedactArgs applies to tool arguments.
var secretKeyFragments = []string{"key", "secret", "token", "password", "auth"}

// Dump returns a redacted map[string]any of every configuration value,
// safe to print or log: any key whose path contains a credential-shaped
// fragment is replaced with "[REDACTED]".
func (c *Config) Dump() map[string]any {
	out := make(map[string]any)
	if c.v == nil {
		return out
	}
	for _, key := range c.v.AllKeys() {
		if isSecretKey(key) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = c.v.Get(key)
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
