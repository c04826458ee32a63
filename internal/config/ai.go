package config

import "os"

// GeminiModels defines which Gemini models to use for different tasks.
type GeminiModels struct {
	// Topics is for topic candidate generation (needs to be fast).
	Topics string `json:"topics"`

	// Score is for per-argument transcript scoring.
	Score string `json:"score"`

	// Review is for the qualitative strengths/improvements pass.
	Review string `json:"review"`
}

// AIConfig holds all AI-related configuration.
type AIConfig struct {
	APIKey    string       `json:"-"` // Never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    GeminiModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`
}

// DefaultAIConfig returns the default AI configuration.
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		Models: GeminiModels{
			Topics: getEnv("GEMINI_MODEL_TOPICS", "gemini-2.0-flash"),
			Score:  getEnv("GEMINI_MODEL_SCORE", "gemini-2.0-flash"),
			Review: getEnv("GEMINI_MODEL_REVIEW", "gemini-2.0-flash"),
		},
		TimeoutMS: getEnvInt("GEMINI_TIMEOUT_MS", 10000),
	}
}

// IsEnabled returns true if the AI API is configured.
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model.
func (c *AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}
