// Package readaloud synthesizes interview questions to PCM16 audio through
// Cartesia's TTS API so the client can play them back.
package readaloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/audio"
	"github.com/lexiqai/interview-copilot/internal/observability"
)

const (
	defaultAPIURL      = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion    = "2024-06-10"
	cartesiaRate       = 24000
	maxErrorBody       = 4 << 10
	defaultHTTPTimeout = 30 * time.Second
)

// ErrBusy is returned when a synthesis is already running.
var ErrBusy = errors.New("readaloud: synthesis already in progress")

// Synthesizer converts question text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config for the Cartesia client.
type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	SampleRate int // rate delivered to the client
}

// Cartesia implements Synthesizer using Cartesia's TTS API.
type Cartesia struct {
	cfg        Config
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	active bool
}

// Option customises a Cartesia client.
type Option func(*Cartesia)

// WithAPIURL points the client at another endpoint.
func WithAPIURL(url string) Option {
	return func(c *Cartesia) { c.apiURL = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cartesia) { c.httpClient = hc }
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type ttsRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
}

// NewCartesia creates a Cartesia client.
func NewCartesia(cfg Config, logger zerolog.Logger, opts ...Option) *Cartesia {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = cartesiaRate
	}
	c := &Cartesia{
		cfg:        cfg,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     observability.WithComponent(logger, "readaloud"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize returns little-endian PCM16 mono audio at the configured rate.
// Only one synthesis runs at a time.
func (c *Cartesia) Synthesize(ctx context.Context, text string) ([]byte, error) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.active = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(ttsRequest{
		ModelID:    c.cfg.ModelID,
		Transcript: text,
		Voice:      voiceSpec{Mode: "id", ID: c.cfg.VoiceID},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("cartesia returned empty audio")
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	out, err := audio.ResamplePCM(pcm, cartesiaRate, c.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to convert audio: %w", err)
	}

	c.logger.Debug().
		Int("input_bytes", len(pcm)).
		Int("output_bytes", len(out)).
		Int("sample_rate", c.cfg.SampleRate).
		Msg("Synthesized question audio")
	return out, nil
}

// Active reports whether a synthesis is running.
func (c *Cartesia) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
