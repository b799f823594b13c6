package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Model   ModelConfig   `yaml:"model"`
	Context ContextConfig `yaml:"context"`
	History HistoryConfig `yaml:"history"`
	Loop    LoopConfig    `yaml:"loop"`
	Tools   ToolsConfig   `yaml:"tools"`
	Comfy   ComfyConfig   `yaml:"comfy"`
	Paths   PathsConfig   `yaml:"paths"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds provider credentials and endpoints.
type APIConfig struct {
	Provider          string `yaml:"provider"`            // "gemini" or "ollama"
	APIKey            string `yaml:"api_key,omitempty"`   // Gemini API key
	OllamaBaseURL     string `yaml:"ollama_base_url"`     // Ollama server
	OllamaAPIKey      string `yaml:"ollama_api_key"`      // Optional bearer token for remote Ollama
	RequestsPerMinute int    `yaml:"requests_per_minute"` // Provider request limiter, 0 disables
	Burst             int    `yaml:"burst"`
}

// ModelConfig holds model generation settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// ContextConfig holds the character budgets for system prompt assembly.
type ContextConfig struct {
	SystemMaxChars      int `yaml:"system_max_chars"`      // Core instructions + skill docs
	UserMaxChars        int `yaml:"user_max_chars"`        // Rules + persona + goals block
	NarrativeMaxChars   int `yaml:"narrative_max_chars"`   // Persona + goals combined
	EnvironmentMaxChars int `yaml:"environment_max_chars"` // Installed nodes/models summary
	MaxRules            int `yaml:"max_rules"`
	ToolOutputMaxChars  int `yaml:"tool_output_max_chars"` // Per string field of a stored tool output
}

// HistoryConfig bounds how much conversation is replayed per request.
type HistoryConfig struct {
	MaxMessages    int `yaml:"max_messages"`     // Non-system messages per request
	KeepToolRounds int `yaml:"keep_tool_rounds"` // Rounds whose tool outputs stay verbatim
}

// LoopConfig controls the agentic loop.
type LoopConfig struct {
	RoundCap     int           `yaml:"round_cap"`
	ModelTimeout time.Duration `yaml:"model_timeout"`
}

// ToolsConfig controls tool dispatch.
type ToolsConfig struct {
	LocalTimeout  time.Duration `yaml:"local_timeout"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	MaxParallel   int           `yaml:"max_parallel"`
	SearchURL     string        `yaml:"search_url"` // Web search endpoint (SearXNG-compatible JSON)
}

// ComfyConfig points at the ComfyUI backend.
type ComfyConfig struct {
	BaseURL      string        `yaml:"base_url"`
	InventoryTTL time.Duration `yaml:"inventory_ttl"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// PathsConfig locates on-disk context sources.
type PathsConfig struct {
	InstructionsDir string `yaml:"instructions_dir"` // instructions.md + skills/**/*.md
	ModelSkillsDir  string `yaml:"model_skills_dir"`
	TemplatesDir    string `yaml:"templates_dir"`
	DataDir         string `yaml:"data_dir"` // SQLite store and logs
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:          DefaultProvider,
			OllamaBaseURL:     DefaultOllamaBaseURL,
			RequestsPerMinute: DefaultRequestsPerMinute,
			Burst:             DefaultBurst,
		},
		Model: ModelConfig{
			Name:            DefaultGeminiModel,
			Temperature:     DefaultTemperature,
			MaxOutputTokens: DefaultMaxOutput,
		},
		Context: ContextConfig{
			SystemMaxChars:      DefaultSystemContextMaxChars,
			UserMaxChars:        DefaultUserContextMaxChars,
			NarrativeMaxChars:   DefaultNarrativeMaxChars,
			EnvironmentMaxChars: DefaultEnvironmentMaxChars,
			MaxRules:            DefaultMaxRules,
			ToolOutputMaxChars:  DefaultToolOutputMaxChars,
		},
		History: HistoryConfig{
			MaxMessages:    DefaultMaxHistoryMessages,
			KeepToolRounds: DefaultKeepToolRounds,
		},
		Loop: LoopConfig{
			RoundCap:     DefaultRoundCap,
			ModelTimeout: DefaultModelTimeout,
		},
		Tools: ToolsConfig{
			LocalTimeout:  DefaultLocalToolTimeout,
			RemoteTimeout: DefaultRemoteToolTimeout,
			MaxParallel:   DefaultMaxParallelTools,
		},
		Comfy: ComfyConfig{
			BaseURL:      DefaultComfyBaseURL,
			InventoryTTL: DefaultInventoryTTL,
			HTTPTimeout:  DefaultComfyHTTPTimeout,
		},
		Paths: PathsConfig{
			InstructionsDir: "system_context",
			ModelSkillsDir:  "model_skills",
			TemplatesDir:    "templates",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
