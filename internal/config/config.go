// Package config provides configuration loading and management for alignsim.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultImprovementGoal is used when a run config carries no goal.
const DefaultImprovementGoal = "Refine the currently bound plan to better achieve the user's objectives."

// Config is the root configuration.
type Config struct {
	LLM        LLMConfig        `json:"llm"              mapstructure:"llm"`
	Simulation SimulationConfig `json:"simulation"       mapstructure:"simulation"`
	Assistant  AssistantConfig  `json:"assistant"        mapstructure:"assistant"`
	Server     ServerConfig     `json:"server,omitempty" mapstructure:"server"`
}

// LLMConfig describes how to reach the model provider.
type LLMConfig struct {
	APIKey    string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Model     string        `json:"model,omitempty"       mapstructure:"model"`
	Timeout   time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
}

// SimulationConfig defines defaults and limits for simulation runs.
type SimulationConfig struct {
	DefaultGoal        string `json:"default_goal,omitempty"  mapstructure:"default_goal"`
	DefaultTurns       int    `json:"default_turns,omitempty" mapstructure:"default_turns"`
	MaxTurns           int    `json:"max_turns,omitempty"     mapstructure:"max_turns"`
	UserModel          string `json:"user_model,omitempty"    mapstructure:"user_model"`
	JudgeModel         string `json:"judge_model,omitempty"   mapstructure:"judge_model"`
	StopOnMisalignment bool   `json:"stop_on_misalignment"    mapstructure:"stop_on_misalignment"`
}

// AssistantConfig describes the structured planning assistant.
type AssistantConfig struct {
	Model      string `json:"model,omitempty"       mapstructure:"model"`
	MaxHistory int    `json:"max_history,omitempty" mapstructure:"max_history"`
}

// ServerConfig describes the HTTP API server.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

const (
	defaultModel      = "gemini-2.5-flash"
	defaultTurns      = 5
	defaultTurnCap    = 10
	defaultMaxHistory = 10
	defaultTimeout    = 120 * time.Second
	defaultAddr       = ":8780"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = defaultTimeout
	}
	if c.Simulation.DefaultGoal == "" {
		c.Simulation.DefaultGoal = DefaultImprovementGoal
	}
	if c.Simulation.DefaultTurns <= 0 {
		c.Simulation.DefaultTurns = defaultTurns
	}
	if c.Simulation.MaxTurns <= 0 {
		c.Simulation.MaxTurns = defaultTurnCap
	}
	if c.Simulation.UserModel == "" {
		c.Simulation.UserModel = c.LLM.Model
	}
	if c.Simulation.JudgeModel == "" {
		c.Simulation.JudgeModel = c.LLM.Model
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = c.LLM.Model
	}
	if c.Assistant.MaxHistory <= 0 {
		c.Assistant.MaxHistory = defaultMaxHistory
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Simulation.DefaultTurns > cfg.Simulation.MaxTurns {
		return Config{}, fmt.Errorf("simulation.default_turns must not exceed simulation.max_turns")
	}
	return cfg, nil
}
