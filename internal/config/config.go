package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Recognition modes
const (
	RecognitionModeBrowser  = "browser"
	RecognitionModeDeepgram = "deepgram"
)

// Answer providers
const (
	AnswerProviderBackend = "backend"
	AnswerProviderOpenAI  = "openai"
)

// Config holds all configuration for the interview copilot gateway
type Config struct {
	// Server configuration
	Port        string `envconfig:"PORT" default:"8080"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"50051"` // gRPC health endpoint; empty disables it
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Backend REST API (interviews, question generation, historical matching)
	BackendURL     string `envconfig:"BACKEND_URL" default:"http://localhost:3000/api"`
	BackendToken   string `envconfig:"BACKEND_TOKEN" default:""`
	BackendTimeout int    `envconfig:"BACKEND_TIMEOUT" default:"15"` // seconds
	BeaconTimeout  int    `envconfig:"BEACON_TIMEOUT" default:"5"`   // seconds

	// Reference answers
	AnswerProvider        string `envconfig:"ANSWER_PROVIDER" default:"backend"` // backend, openai
	OpenAIAPIKey          string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel           string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL         string `envconfig:"OPENAI_BASE_URL" default:""`
	AnswerThrottleMs      int    `envconfig:"ANSWER_THROTTLE_MS" default:"5000"`
	AnswerTimeout         int    `envconfig:"ANSWER_TIMEOUT" default:"30"` // seconds; 0 waits indefinitely
	FallbackTemplatesPath string `envconfig:"FALLBACK_TEMPLATES_PATH" default:""`

	// Historical question matching
	MatchDebounceMs int `envconfig:"MATCH_DEBOUNCE_MS" default:"3000"`
	MatchLimit      int `envconfig:"MATCH_LIMIT" default:"3"`
	MatchTimeout    int `envconfig:"MATCH_TIMEOUT" default:"15"` // seconds; 0 waits indefinitely
	MatchErrorTTLMs int `envconfig:"MATCH_ERROR_TTL_MS" default:"5000"`

	// Transcript segmentation
	SegmentNewGapMs      int `envconfig:"SEGMENT_NEW_GAP_MS" default:"2000"`
	SegmentPauseGapMs    int `envconfig:"SEGMENT_PAUSE_GAP_MS" default:"3000"`
	SegmentFinalizeGapMs int `envconfig:"SEGMENT_FINALIZE_GAP_MS" default:"5000"`
	SegmentMaxChars      int `envconfig:"SEGMENT_MAX_CHARS" default:"200"`
	SegmentIdleFlushMs   int `envconfig:"SEGMENT_IDLE_FLUSH_MS" default:"1000"` // sweep interval; 0 disables

	QuestionDuplicateThreshold float64 `envconfig:"QUESTION_DUPLICATE_THRESHOLD" default:"0.92"`

	// Speech recognition
	RecognitionMode    string  `envconfig:"RECOGNITION_MODE" default:"browser"` // browser, deepgram
	DeepgramAPIKey     string  `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel      string  `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage   string  `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	AudioSampleRate    int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"`    // bytes held while the recognizer reconnects
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold
	NoSpeechTimeoutMs  int     `envconfig:"NO_SPEECH_TIMEOUT_MS" default:"8000"`

	// Recognition auto-restart
	RestartBackoffMs         int     `envconfig:"RESTART_BACKOFF_MS" default:"1000"`
	RestartBackoffMultiplier float64 `envconfig:"RESTART_BACKOFF_MULTIPLIER" default:"2.0"`
	RestartMaxAttempts       int     `envconfig:"RESTART_MAX_ATTEMPTS" default:"2"`

	// Lifecycle guard
	LifecycleBackgroundLimit int `envconfig:"LIFECYCLE_BACKGROUND_LIMIT" default:"600"` // seconds hidden before abandoning

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	ReadinessRetryAttempts     int `envconfig:"READINESS_RETRY_ATTEMPTS" default:"2"`

	// Event publishing
	KafkaEnabled       bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopicSegments string   `envconfig:"KAFKA_TOPIC_SEGMENTS" default:"copilot.transcript.segments"`
	KafkaTopicSessions string   `envconfig:"KAFKA_TOPIC_SESSIONS" default:"copilot.interview.sessions"`

	// Question read-aloud (Cartesia TTS)
	ReadAloudEnabled    bool   `envconfig:"READ_ALOUD_ENABLED" default:"false"`
	CartesiaAPIKey      string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID     string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID     string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`
	ReadAloudSampleRate int    `envconfig:"READ_ALOUD_SAMPLE_RATE" default:"24000"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Expose /metrics
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if one exists.
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks provider-dependent requirements and value ranges.
// All failures are joined into one error.
func (c *Config) Validate() error {
	var errs []error

	switch c.RecognitionMode {
	case RecognitionModeBrowser:
	case RecognitionModeDeepgram:
		if c.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY is required when RECOGNITION_MODE=deepgram"))
		}
	default:
		errs = append(errs, fmt.Errorf("RECOGNITION_MODE %q is not one of browser, deepgram", c.RecognitionMode))
	}

	switch c.AnswerProvider {
	case AnswerProviderBackend:
	case AnswerProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when ANSWER_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("ANSWER_PROVIDER %q is not one of backend, openai", c.AnswerProvider))
	}

	if c.ReadAloudEnabled && c.CartesiaAPIKey == "" {
		errs = append(errs, errors.New("CARTESIA_API_KEY is required when READ_ALOUD_ENABLED=true"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.SegmentNewGapMs <= 0 || c.SegmentPauseGapMs < c.SegmentNewGapMs || c.SegmentFinalizeGapMs < c.SegmentPauseGapMs {
		errs = append(errs, errors.New("segment gaps must satisfy 0 < NEW_GAP <= PAUSE_GAP <= FINALIZE_GAP"))
	}
	if c.SegmentMaxChars <= 0 {
		errs = append(errs, errors.New("SEGMENT_MAX_CHARS must be positive"))
	}
	if c.RestartMaxAttempts < 0 {
		errs = append(errs, errors.New("RESTART_MAX_ATTEMPTS must not be negative"))
	}
	if c.QuestionDuplicateThreshold <= 0 || c.QuestionDuplicateThreshold > 1 {
		errs = append(errs, errors.New("QUESTION_DUPLICATE_THRESHOLD must be in (0, 1]"))
	}

	return errors.Join(errs...)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Durations groups the second/millisecond fields as time.Duration values.
type Durations struct {
	BackendTimeout  time.Duration
	BeaconTimeout   time.Duration
	AnswerThrottle  time.Duration
	MatchDebounce   time.Duration
	BackgroundLimit time.Duration
	AnswerTimeout   time.Duration
	MatchTimeout    time.Duration
	MatchErrorTTL   time.Duration
	SegmentNewGap   time.Duration
	SegmentPauseGap time.Duration
	SegmentFinalize time.Duration
	IdleFlush       time.Duration
	NoSpeech        time.Duration
	RestartBackoff  time.Duration
	BreakerReset    time.Duration
}

// Durations converts the integer timing fields.
func (c *Config) Durations() Durations {
	return Durations{
		BackendTimeout:  seconds(c.BackendTimeout),
		BeaconTimeout:   seconds(c.BeaconTimeout),
		AnswerThrottle:  millis(c.AnswerThrottleMs),
		MatchDebounce:   millis(c.MatchDebounceMs),
		BackgroundLimit: seconds(c.LifecycleBackgroundLimit),
		AnswerTimeout:   seconds(c.AnswerTimeout),
		MatchTimeout:    seconds(c.MatchTimeout),
		MatchErrorTTL:   millis(c.MatchErrorTTLMs),
		SegmentNewGap:   millis(c.SegmentNewGapMs),
		SegmentPauseGap: millis(c.SegmentPauseGapMs),
		SegmentFinalize: millis(c.SegmentFinalizeGapMs),
		IdleFlush:       millis(c.SegmentIdleFlushMs),
		NoSpeech:        millis(c.NoSpeechTimeoutMs),
		RestartBackoff:  millis(c.RestartBackoffMs),
		BreakerReset:    seconds(c.CircuitBreakerResetTimeout),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
