// Package config loads agent settings from a YAML file and TOOLLOOP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/toolloop/agentloop"
	"github.com/martinemde/toolloop/capability"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel           = "claude-sonnet-4-5"
	DefaultToolCallingMode = "native"
	DefaultMaxSteps        = 10
	EnvPrefix              = "TOOLLOOP"
)

// Config is the resolved configuration.
type Config struct {
	Model               string        `mapstructure:"model"`
	Provider            string        `mapstructure:"provider"`
	Instructions        string        `mapstructure:"instructions"`
	ToolCallingMode     string        `mapstructure:"tool_calling_mode"`
	MaxSteps            int           `mapstructure:"max_steps"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxTotalTokens      int           `mapstructure:"max_total_tokens"`
	MaxToolOutputChars  int           `mapstructure:"max_tool_output_chars"`
	MaxToolOutputLines  int           `mapstructure:"max_tool_output_lines"`
	TruncationMode      string        `mapstructure:"truncation_mode"`
	LoopDetectionWindow int           `mapstructure:"loop_detection_window"`
	CapabilitiesFile    string        `mapstructure:"capabilities_file"`
	Workspace           string        `mapstructure:"workspace"`
	AllowWrites         bool          `mapstructure:"allow_writes"`

	// Capabilities holds models declared inline under the capabilities key.
	Capabilities capability.Catalog `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("provider", "")
	v.SetDefault("instructions", "")
	v.SetDefault("tool_calling_mode", DefaultToolCallingMode)
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("max_total_tokens", 0)
	v.SetDefault("max_tool_output_chars", 0)
	v.SetDefault("max_tool_output_lines", 0)
	v.SetDefault("truncation_mode", string(agentloop.TruncateHeadTail))
	v.SetDefault("loop_detection_window", 0)
	v.SetDefault("capabilities_file", "")
	v.SetDefault("workspace", ".")
	v.SetDefault("allow_writes", false)
}

// Load reads configuration from path, or from toolloop.yaml in the working
// directory when path is empty. A missing toolloop.yaml is not an error;
// a missing explicit path is. Environment variables such as
// TOOLLOOP_MAX_STEPS override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolloop")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if raw := v.Get("capabilities"); raw != nil {
		catalog, err := inlineCatalog(raw)
		if err != nil {
			return nil, err
		}
		cfg.Capabilities = catalog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// inlineCatalog reuses the catalog file format for the capabilities map.
func inlineCatalog(raw any) (capability.Catalog, error) {
	data, err := yaml.Marshal(map[string]any{"models": raw})
	if err != nil {
		return nil, fmt.Errorf("encode inline capabilities: %w", err)
	}
	catalog, err := capability.ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("inline capabilities: %w", err)
	}
	return catalog, nil
}

// Validate reports settings the agent cannot run with.
func (c *Config) Validate() error {
	switch agentloop.ToolCallingMode(c.ToolCallingMode) {
	case agentloop.ToolCallingNative, agentloop.ToolCallingText, agentloop.ToolCallingOff:
	default:
		return fmt.Errorf("tool_calling_mode must be native, text, or off, got %q", c.ToolCallingMode)
	}
	switch agentloop.TruncationMode(c.TruncationMode) {
	case "", agentloop.TruncateHeadTail, agentloop.TruncateTail:
	default:
		return fmt.Errorf("truncation_mode must be head_tail or tail, got %q", c.TruncationMode)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// ModelContext returns the model every step targets.
func (c *Config) ModelContext() unifiedllm.ModelContext {
	return unifiedllm.ModelContext{ModelID: c.Model, Provider: c.Provider}
}

// StopConditions builds a single AnyOf from the configured limits. Step
// count and a tool-free step always stop the run.
func (c *Config) StopConditions() []agentloop.StopCondition {
	conds := []agentloop.StopCondition{
		agentloop.StepCountIs(c.MaxSteps),
		agentloop.NoToolCalls(),
	}
	if c.Timeout > 0 {
		conds = append(conds, agentloop.ElapsedExceeds(c.Timeout))
	}
	if c.MaxTotalTokens > 0 {
		conds = append(conds, agentloop.TokenUsageExceeds(c.MaxTotalTokens))
	}
	if c.LoopDetectionWindow > 0 {
		conds = append(conds, agentloop.RepeatedToolCalls(c.LoopDetectionWindow))
	}
	return []agentloop.StopCondition{agentloop.AnyOf(conds...)}
}

// CapabilitySource layers inline capabilities over the capabilities file
// over the built-in catalog.
func (c *Config) CapabilitySource() (capability.Source, error) {
	var file capability.Source
	if c.CapabilitiesFile != "" {
		catalog, err := capability.LoadCatalog(c.CapabilitiesFile)
		if err != nil {
			return nil, err
		}
		file = catalog
	}
	var inline capability.Source
	if len(c.Capabilities) > 0 {
		inline = c.Capabilities
	}
	return capability.Chain(inline, file, capability.BuiltinCatalog()), nil
}

// AgentOptions translates the configuration into agent options.
func (c *Config) AgentOptions() ([]agentloop.Option, error) {
	caps, err := c.CapabilitySource()
	if err != nil {
		return nil, err
	}
	return []agentloop.Option{
		agentloop.WithModel(c.ModelContext()),
		agentloop.WithInstructions(c.Instructions),
		agentloop.WithToolCallingMode(agentloop.ToolCallingMode(c.ToolCallingMode)),
		agentloop.WithStopWhen(c.StopConditions()...),
		agentloop.WithMaxToolOutputChars(c.MaxToolOutputChars),
		agentloop.WithMaxToolOutputLines(c.MaxToolOutputLines),
		agentloop.WithTruncationMode(agentloop.TruncationMode(c.TruncationMode)),
		agentloop.WithCapabilities(caps),
	}, nil
}
