package config

import "time"

// Default configuration values.
const (
	// Context budgets (characters)
	DefaultSystemContextMaxChars = 12000
	DefaultUserContextMaxChars   = 2500
	DefaultNarrativeMaxChars     = 1200
	DefaultEnvironmentMaxChars   = 2000
	DefaultMaxRules              = 12
	DefaultToolOutputMaxChars    = 8000

	// History
	DefaultMaxHistoryMessages = 24
	DefaultKeepToolRounds     = 2

	// Agentic loop
	DefaultRoundCap     = 3
	DefaultModelTimeout = 120 * time.Second

	// Tools
	DefaultLocalToolTimeout  = 5 * time.Second
	DefaultRemoteToolTimeout = 30 * time.Second
	DefaultMaxParallelTools  = 4

	// Providers
	DefaultProvider      = "gemini"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultOllamaModel   = "qwen2.5:7b"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultTemperature   = 0.4
	DefaultMaxOutput     = 8192

	// Rate limiting
	DefaultRequestsPerMinute = 30
	DefaultBurst             = 3

	// ComfyUI backend
	DefaultComfyBaseURL     = "http://127.0.0.1:8188"
	DefaultInventoryTTL     = 5 * time.Minute
	DefaultComfyHTTPTimeout = 20 * time.Second

	// Skill library
	DefaultWatchDebounce = 300 * time.Millisecond
)
