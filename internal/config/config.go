// Package config loads and validates aura configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all aura configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace root; state lives under <workspace>/.aura/
	Workspace string `yaml:"workspace"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
	Skills    SkillsConfig    `yaml:"skills"`
	Safety    SafetyConfig    `yaml:"safety"`
	Governor  GovernorConfig  `yaml:"governor"`
	Nexus     NexusConfig     `yaml:"nexus"`
	Mission   MissionConfig   `yaml:"mission"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai, ollama, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
	// Optional secondary models made available to the router.
	Fallbacks []string `yaml:"fallbacks"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai, none
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// MemoryConfig configures the hierarchical memory stores.
type MemoryConfig struct {
	DatabasePath      string `yaml:"database_path"`
	LessonsPath       string `yaml:"lessons_path"`
	WorkingMemorySize int    `yaml:"working_memory_size"` // chronological trace length
	RetentionDays     int    `yaml:"retention_days"`      // episode decay window
	ConsolidateEvery  int    `yaml:"consolidate_every"`   // episodes per dream trigger
	TopK              int    `yaml:"top_k"`               // episodic recall depth
}

// SkillsConfig configures the skill registry.
type SkillsConfig struct {
	DynamicDir      string `yaml:"dynamic_dir"` // .aura/skills.d
	WatchDynamicDir bool   `yaml:"watch_dynamic_dir"`
	ExecTimeoutMin  string `yaml:"exec_timeout_min"` // clamp floor, default 30s
	ExecTimeoutMax  string `yaml:"exec_timeout_max"` // clamp ceiling, default 120s
}

// SafetyConfig configures capability gating and sanitization.
type SafetyConfig struct {
	WorkspaceRoots       []string `yaml:"workspace_roots"` // path sandbox allow list
	BlockedRoots         []string `yaml:"blocked_roots"`
	SecurityScanRequests bool     `yaml:"security_scan_requests"`
	ShadowMode           bool     `yaml:"shadow_mode"`
}

// GovernorConfig configures the ethical governor.
type GovernorConfig struct {
	ShutdownToken  string `yaml:"shutdown_token"`
	ReawakenPhrase string `yaml:"reawaken_phrase"`
	SemanticVeto   bool   `yaml:"semantic_veto"`
	StatePath      string `yaml:"state_path"`
}

// NexusConfig configures the inbound multiplexer.
type NexusConfig struct {
	QueueBound    int `yaml:"queue_bound"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// MissionConfig configures mission control.
type MissionConfig struct {
	Enabled       bool    `yaml:"enabled"`
	StatePath     string  `yaml:"state_path"`
	LoadThreshold float64 `yaml:"load_threshold"` // skip steps above this normalized load
	IdleSleep     string  `yaml:"idle_sleep"`
}

// EvolutionConfig configures the self-modification engine.
type EvolutionConfig struct {
	StatePath        string `yaml:"state_path"`
	AutoApplyCount   int    `yaml:"auto_apply_count"` // successes before auto-apply
	AllowSynthesis   bool   `yaml:"allow_synthesis"`
	SynthesisDir     string `yaml:"synthesis_dir"` // where accepted skills land
	CrystallizeEvery string `yaml:"crystallize_every"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// Default returns a configuration with sensible defaults rooted at the given
// workspace directory.
func Default(workspace string) *Config {
	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	state := filepath.Join(workspace, ".aura")
	return &Config{
		Name:      "aura",
		Version:   "0.1.0",
		Workspace: workspace,
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "qwen2.5:7b",
			BaseURL:   "http://localhost:11434",
			Timeout:   "90s",
			MaxTokens: 4096,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Memory: MemoryConfig{
			DatabasePath:      filepath.Join(state, "memory.db"),
			LessonsPath:       filepath.Join(state, "lessons.json"),
			WorkingMemorySize: 15,
			RetentionDays:     30,
			ConsolidateEvery:  20,
			TopK:              5,
		},
		Skills: SkillsConfig{
			DynamicDir:      filepath.Join(state, "skills.d"),
			WatchDynamicDir: true,
			ExecTimeoutMin:  "30s",
			ExecTimeoutMax:  "120s",
		},
		Safety: SafetyConfig{
			WorkspaceRoots: []string{workspace, state},
			BlockedRoots:   []string{"/etc", "/boot", "/usr", "/bin", "/sbin", "C:\\Windows", "C:\\Program Files"},
		},
		Governor: GovernorConfig{
			ShutdownToken:  "970317",
			ReawakenPhrase: "awaken the aurora",
			SemanticVeto:   true,
			StatePath:      filepath.Join(state, "governor.json"),
		},
		Nexus: NexusConfig{
			QueueBound:    64,
			MaxConcurrent: 4,
		},
		Mission: MissionConfig{
			Enabled:       false,
			StatePath:     filepath.Join(state, "missions.json"),
			LoadThreshold: 0.8,
			IdleSleep:     "15s",
		},
		Evolution: EvolutionConfig{
			StatePath:      filepath.Join(state, "evolution.json"),
			AutoApplyCount: 3,
			AllowSynthesis: true,
			SynthesisDir:   filepath.Join(state, "skills.d"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and applies env overrides. A missing file is
// not an error: defaults are returned.
func Load(path string, workspace string) (*Config, error) {
	cfg := Default(workspace)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values for secrets and
// provider selection.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AURA_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AURA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AURA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AURA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AURA_SHUTDOWN_TOKEN"); v != "" {
		cfg.Governor.ShutdownToken = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Embedding.GenAIAPIKey == "" {
		cfg.Embedding.GenAIAPIKey = v
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace must be set")
	}
	if c.Memory.WorkingMemorySize < 1 {
		return fmt.Errorf("memory.working_memory_size must be >= 1")
	}
	if c.Nexus.QueueBound < 1 {
		return fmt.Errorf("nexus.queue_bound must be >= 1")
	}
	if c.Nexus.MaxConcurrent < 1 {
		return fmt.Errorf("nexus.max_concurrent must be >= 1")
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	return nil
}

// LLMTimeout parses the LLM call timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 90 * time.Second, nil
	}
	return time.ParseDuration(c.LLM.Timeout)
}

// SkillTimeoutBounds parses the skill execution clamp window.
func (c *Config) SkillTimeoutBounds() (min, max time.Duration) {
	min, max = 30*time.Second, 120*time.Second
	if d, err := time.ParseDuration(c.Skills.ExecTimeoutMin); err == nil && d > 0 {
		min = d
	}
	if d, err := time.ParseDuration(c.Skills.ExecTimeoutMax); err == nil && d > 0 {
		max = d
	}
	if max < min {
		max = min
	}
	return min, max
}

// StateDir returns the .aura state directory for this workspace.
func (c *Config) StateDir() string {
	return filepath.Join(c.Workspace, ".aura")
}

// EnsureStateDir creates the state directory tree.
func (c *Config) EnsureStateDir() error {
	for _, dir := range []string{c.StateDir(), c.Skills.DynamicDir, filepath.Join(c.StateDir(), "backups")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}
	return nil
}
