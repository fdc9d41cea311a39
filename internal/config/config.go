package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ai-conversation-assist-service/internal/schema"
)

// Supported speech source providers.
const (
	SourceMock     = "mock"
	SourceGoogle   = "google"
	SourceDeepgram = "deepgram"
	SourceSoniox   = "soniox"
	SourceRelay    = "relay"
	SourcePush     = "push"
)

type Config struct {
	Service       ServiceConfig
	Session       SessionConfig
	Suggest       SuggestConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string `validate:"required"`
	Environment string
	HTTPPort    string `validate:"required,numeric"`
	GRPCPort    string `validate:"required,numeric"`
}

type SessionConfig struct {
	// Sources lists the speech providers started for each session.
	Sources        []string `validate:"min=1,dive,oneof=mock google deepgram soniox relay push"`
	PushSourceKind string   `validate:"oneof=local relay diarizing"`
	WindowSize     int      `validate:"gte=1"`
	HistorySize    int      `validate:"gte=0"`
	SoloMode       bool
	MinSilence     time.Duration `validate:"gte=0"`
	Debounce       time.Duration `validate:"gte=0"`
	Context        string
	MaxAudioBytes  int64         `validate:"gte=0"`
	MaxDuration    time.Duration `validate:"gte=0"`
	MaxSessions    int           `validate:"gte=1"`
}

type SuggestConfig struct {
	// Model is the default model selector for new sessions.
	Model         string
	OpenAIAPIKey  string
	OpenAIBaseURL string `validate:"url"`
	OpenAIModel   string `validate:"required"`
	GroqAPIKey    string
	GroqBaseURL   string `validate:"url"`
	GroqModel     string
	GeminiAPIKey  string
	GeminiModel   string

	MaxAttempts   int           `validate:"gte=1,lte=10"`
	RateLimitStep time.Duration `validate:"gte=0"`
	TransientStep time.Duration `validate:"gte=0"`
	Timeout       time.Duration `validate:"gt=0"`
	RatePerSecond float64       `validate:"gte=0"`
	SystemPrompt  string
	MaxTokens     int     `validate:"gt=0"`
	Temperature   float64 `validate:"gte=0,lte=2"`
}

type STTConfig struct {
	LanguageCode   string `validate:"required"`
	SampleRateHz   int    `validate:"gt=0"`
	InterimResults bool
	AudioEncoding  string `validate:"required"`

	DeepgramAPIKey      string
	DeepgramURL         string
	DeepgramEndpointing time.Duration

	SonioxAPIKey string
	SonioxURL    string
	SonioxModel  string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicPartial    string `validate:"required"`
	TopicFinal      string `validate:"required"`
	TopicSuggestion string `validate:"required"`
	Principal       string
}

type ObservabilityConfig struct {
	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFormat    string `validate:"oneof=json console"`
	MetricsPort  string `validate:"required,numeric"`
	OTLPEndpoint string
	SampleRatio  float64 `validate:"gte=0,lte=1"`
}

// Load reads the optional .env file (or ENV_FILE) and then the environment.
// Variables already set in the environment win over the file.
func Load() *Config {
	loadDotEnv(envOrDefault("ENV_FILE", ".env"))

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-conversation-assist")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			Environment: envOrDefault("ENVIRONMENT", "dev"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
		},
		Session: SessionConfig{
			Sources:        envList("SESSION_SOURCES", []string{SourceMock}),
			PushSourceKind: envOrDefault("SESSION_PUSH_SOURCE_KIND", "local"),
			WindowSize:     envOrDefaultInt("SESSION_WINDOW", 200),
			HistorySize:    envOrDefaultInt("SESSION_HISTORY", 10),
			SoloMode:       envOrDefaultBool("TURN_SOLO_MODE", false),
			MinSilence:     envOrDefaultDuration("TURN_MIN_SILENCE", 0),
			Debounce:       envOrDefaultDuration("DISPATCH_DEBOUNCE", 500*time.Millisecond),
			Context:        envOrDefault("SESSION_CONTEXT", ""),
			MaxAudioBytes:  int64(envOrDefaultInt("SESSION_MAX_AUDIO_BYTES", 0)),
			MaxDuration:    envOrDefaultDuration("SESSION_MAX_DURATION", 2*time.Hour),
			MaxSessions:    envOrDefaultInt("SESSION_MAX_CONCURRENT", 100),
		},
		Suggest: SuggestConfig{
			Model:         envOrDefault("SUGGEST_MODEL", "gpt-4o"),
			OpenAIAPIKey:  envOrDefault("OPENAI_API_KEY", ""),
			OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   envOrDefault("OPENAI_MODEL", "gpt-4o"),
			GroqAPIKey:    envOrDefault("GROQ_API_KEY", ""),
			GroqBaseURL:   envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GroqModel:     envOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile"),
			GeminiAPIKey:  envOrDefault("GEMINI_API_KEY", ""),
			GeminiModel:   envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			MaxAttempts:   envOrDefaultInt("SUGGEST_MAX_ATTEMPTS", 3),
			RateLimitStep: envOrDefaultDuration("SUGGEST_RATE_LIMIT_STEP", 2*time.Second),
			TransientStep: envOrDefaultDuration("SUGGEST_TRANSIENT_STEP", time.Second),
			Timeout:       envOrDefaultDuration("SUGGEST_TIMEOUT", 20*time.Second),
			RatePerSecond: envOrDefaultFloat("SUGGEST_RATE_PER_SECOND", 2),
			SystemPrompt:  envOrDefault("SUGGEST_SYSTEM_PROMPT", ""),
			MaxTokens:     envOrDefaultInt("SUGGEST_MAX_TOKENS", 200),
			Temperature:   envOrDefaultFloat("SUGGEST_TEMPERATURE", 0.7),
		},
		STT: STTConfig{
			LanguageCode:        envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:        envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults:      envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:       envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			DeepgramAPIKey:      envOrDefault("DEEPGRAM_API_KEY", ""),
			DeepgramURL:         envOrDefault("DEEPGRAM_URL", ""),
			DeepgramEndpointing: envOrDefaultDuration("DEEPGRAM_ENDPOINTING", 500*time.Millisecond),
			SonioxAPIKey:        envOrDefault("SONIOX_API_KEY", ""),
			SonioxURL:           envOrDefault("SONIOX_URL", ""),
			SonioxModel:         envOrDefault("SONIOX_MODEL", ""),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPartial:    envOrDefault("KAFKA_TOPIC_PARTIAL", "transcript.partial"),
			TopicFinal:      envOrDefault("KAFKA_TOPIC_FINAL", "transcript.final"),
			TopicSuggestion: envOrDefault("KAFKA_TOPIC_SUGGESTION", "assist.suggestion"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:     envOrDefault("LOG_LEVEL", "info"),
			LogFormat:    envOrDefault("LOG_FORMAT", "json"),
			MetricsPort:  envOrDefault("METRICS_PORT", "9090"),
			OTLPEndpoint: envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SampleRatio:  envOrDefaultFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

// Validate checks field ranges and that every selected source has the
// credentials it needs.
func (c *Config) Validate() error {
	var errs []error
	if err := schema.New().Validate(c); err != nil {
		errs = append(errs, err)
	}

	for _, src := range c.Session.Sources {
		switch src {
		case SourceDeepgram:
			if c.STT.DeepgramAPIKey == "" {
				errs = append(errs, errors.New("DEEPGRAM_API_KEY is required for the deepgram source"))
			}
		case SourceSoniox:
			if c.STT.SonioxAPIKey == "" {
				errs = append(errs, errors.New("SONIOX_API_KEY is required for the soniox source"))
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	return errors.Join(errs...)
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
