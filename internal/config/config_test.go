package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.RecognitionMode != RecognitionModeBrowser {
		t.Errorf("Expected default RecognitionMode 'browser', got '%s'", cfg.RecognitionMode)
	}
	if cfg.AnswerProvider != AnswerProviderBackend {
		t.Errorf("Expected default AnswerProvider 'backend', got '%s'", cfg.AnswerProvider)
	}
	if cfg.AnswerThrottleMs != 5000 {
		t.Errorf("Expected default AnswerThrottleMs 5000, got %d", cfg.AnswerThrottleMs)
	}
	if cfg.MatchDebounceMs != 3000 {
		t.Errorf("Expected default MatchDebounceMs 3000, got %d", cfg.MatchDebounceMs)
	}
	if cfg.SegmentNewGapMs != 2000 || cfg.SegmentPauseGapMs != 3000 || cfg.SegmentFinalizeGapMs != 5000 {
		t.Errorf("Unexpected default segment gaps: %d/%d/%d",
			cfg.SegmentNewGapMs, cfg.SegmentPauseGapMs, cfg.SegmentFinalizeGapMs)
	}
	if cfg.SegmentMaxChars != 200 {
		t.Errorf("Expected default SegmentMaxChars 200, got %d", cfg.SegmentMaxChars)
	}
	if cfg.RestartBackoffMs != 1000 || cfg.RestartMaxAttempts != 2 {
		t.Errorf("Expected restart 1000ms x2 attempts, got %dms x%d", cfg.RestartBackoffMs, cfg.RestartMaxAttempts)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.CartesiaVoiceID != "sonic-english" {
		t.Errorf("Expected default CartesiaVoiceID 'sonic-english', got '%s'", cfg.CartesiaVoiceID)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("Expected default KafkaBrokers [localhost:9092], got %v", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to default to true")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_URL", "https://api.example.com")
	t.Setenv("ANSWER_THROTTLE_MS", "2500")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port '9090', got '%s'", cfg.Port)
	}
	if cfg.BackendURL != "https://api.example.com" {
		t.Errorf("Expected BackendURL 'https://api.example.com', got '%s'", cfg.BackendURL)
	}
	if got := cfg.Durations().AnswerThrottle; got != 2500*time.Millisecond {
		t.Errorf("Expected AnswerThrottle 2.5s, got %v", got)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("Expected two brokers, got %v", cfg.KafkaBrokers)
	}
	if !cfg.LogPretty {
		t.Error("Expected LogPretty to be true")
	}
}

func TestLoad_ProviderRequirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "deepgram mode without key",
			env:     map[string]string{"RECOGNITION_MODE": "deepgram"},
			wantErr: "DEEPGRAM_API_KEY",
		},
		{
			name:    "openai provider without key",
			env:     map[string]string{"ANSWER_PROVIDER": "openai"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "read aloud without cartesia key",
			env:     map[string]string{"READ_ALOUD_ENABLED": "true"},
			wantErr: "CARTESIA_API_KEY",
		},
		{
			name:    "unknown recognition mode",
			env:     map[string]string{"RECOGNITION_MODE": "whisper"},
			wantErr: "RECOGNITION_MODE",
		},
		{
			name:    "pause gap below new segment gap",
			env:     map[string]string{"SEGMENT_PAUSE_GAP_MS": "1000"},
			wantErr: "segment gaps",
		},
		{
			name: "deepgram mode with key",
			env:  map[string]string{"RECOGNITION_MODE": "deepgram", "DEEPGRAM_API_KEY": "dg-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error to mention %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := &Config{
		BackendTimeout:           15,
		BeaconTimeout:            5,
		MatchDebounceMs:          3000,
		SegmentFinalizeGapMs:     5000,
		RestartBackoffMs:         1000,
		LifecycleBackgroundLimit: 600,
	}
	d := cfg.Durations()

	if d.BackendTimeout != 15*time.Second {
		t.Errorf("Expected BackendTimeout 15s, got %v", d.BackendTimeout)
	}
	if d.BeaconTimeout != 5*time.Second {
		t.Errorf("Expected BeaconTimeout 5s, got %v", d.BeaconTimeout)
	}
	if d.MatchDebounce != 3*time.Second {
		t.Errorf("Expected MatchDebounce 3s, got %v", d.MatchDebounce)
	}
	if d.SegmentFinalize != 5*time.Second {
		t.Errorf("Expected SegmentFinalize 5s, got %v", d.SegmentFinalize)
	}
	if d.RestartBackoff != time.Second {
		t.Errorf("Expected RestartBackoff 1s, got %v", d.RestartBackoff)
	}
	if d.BackgroundLimit != 10*time.Minute {
		t.Errorf("Expected BackgroundLimit 10m, got %v", d.BackgroundLimit)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("COPILOT_TEST_VAR", "test-value")

	if got := GetEnv("COPILOT_TEST_VAR", "default"); got != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", got)
	}
	if got := GetEnv("COPILOT_MISSING_VAR", "default"); got != "default" {
		t.Errorf("Expected 'default', got '%s'", got)
	}
}
