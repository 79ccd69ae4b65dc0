package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM providers
	OpenAIAPIKey   string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string
	LLMTimeout     time.Duration
	LLMMaxRetries  int
	LLMRetryBase   time.Duration
	LLMRetryMax    time.Duration
	LLMTemperature float64
	LLMMaxTokens   int

	// WhatsApp transport
	WhatsAppAPIBaseURL    string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string

	// Message batching
	DebounceWindow time.Duration

	// Outgoing pacing
	MaxChunkLength     int
	TypingDelayPerRune time.Duration
	TypingDelayMin     time.Duration
	TypingDelayMax     time.Duration
	InterMessageMin    time.Duration
	InterMessageMax    time.Duration

	// Funnel behavior
	UpsellEnabled            bool
	DownsellEnabled          bool
	DefaultStage             string
	AllowBackwardTransitions bool

	// Memory cache
	MemoryCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		LLMMaxRetries:  getEnvAsInt("LLM_MAX_RETRIES", 3),
		LLMRetryBase:   getEnvAsDuration("LLM_RETRY_BASE_DELAY", time.Second),
		LLMRetryMax:    getEnvAsDuration("LLM_RETRY_MAX_DELAY", 15*time.Second),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 1024),

		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),

		DebounceWindow: getEnvAsDuration("MESSAGE_DEBOUNCE_WINDOW", 15*time.Second),

		MaxChunkLength:     getEnvAsInt("MAX_CHUNK_LENGTH", 600),
		TypingDelayPerRune: getEnvAsDuration("TYPING_DELAY_PER_RUNE", 35*time.Millisecond),
		TypingDelayMin:     getEnvAsDuration("TYPING_DELAY_MIN", 2*time.Second),
		TypingDelayMax:     getEnvAsDuration("TYPING_DELAY_MAX", 8*time.Second),
		InterMessageMin:    getEnvAsDuration("INTER_MESSAGE_DELAY_MIN", 1*time.Second),
		InterMessageMax:    getEnvAsDuration("INTER_MESSAGE_DELAY_MAX", 3*time.Second),

		UpsellEnabled:            getEnvAsBool("UPSELL_ENABLED", true),
		DownsellEnabled:          getEnvAsBool("DOWNSELL_ENABLED", true),
		DefaultStage:             getEnv("DEFAULT_FUNNEL_STAGE", "greeting"),
		AllowBackwardTransitions: getEnvAsBool("ALLOW_BACKWARD_TRANSITIONS", true),

		MemoryCacheTTL: getEnvAsDuration("MEMORY_CACHE_TTL", 24*time.Hour),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
