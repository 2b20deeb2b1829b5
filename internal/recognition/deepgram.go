package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/audio"
	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/resilience"
)

var errConnect = errors.New("deepgram connection failed")

// DeepgramConfig configures server-side recognition.
type DeepgramConfig struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	// BufferSize is the number of audio bytes held while the stream is not open.
	BufferSize int
	VAD        audio.VADConfig
}

// callbackHandler embeds the SDK's default handler and overrides the
// callbacks that produce recognition events.
type callbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	d *Deepgram
}

func (h *callbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	h.d.handleMessage(msg)
	return nil
}

func (h *callbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	h.d.handleError(er)
	return nil
}

func (h *callbackHandler) Close(*msginterfaces.CloseResponse) error {
	h.d.handleClose()
	return nil
}

// Deepgram recognizes PCM16 audio streamed from the client through
// Deepgram's live transcription API.
type Deepgram struct {
	cfg     DeepgramConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	handler    func(Event)
	client     *listenClient.WSCallback
	active     bool
	connecting bool
	cancel     context.CancelFunc
	pending    *audio.RingBuffer
	vad        *audio.VADDetector
}

// NewDeepgram returns a stopped recognizer.
func NewDeepgram(cfg DeepgramConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Deepgram {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64 * 1024
	}
	return &Deepgram{
		cfg:     cfg,
		breaker: breaker,
		logger:  observability.WithComponent(logger, "deepgram"),
		now:     time.Now,
		pending: audio.NewRingBuffer(cfg.BufferSize),
		vad:     audio.NewVADDetector(cfg.VAD, time.Now()),
	}
}

// SetHandler registers the receiver of recognition events, usually
// Controller.HandleEvent.
func (d *Deepgram) SetHandler(h func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Start opens a live transcription stream. Audio received while the stream
// is connecting is buffered and sent once it opens.
func (d *Deepgram) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.active || d.connecting {
		d.mu.Unlock()
		return nil
	}
	d.connecting = true
	d.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	options := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.SampleRate,
	}
	callback := &callbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		d:                      d,
	}

	var client *listenClient.WSCallback
	err := d.breaker.Call(func() error {
		c, err := listenClient.NewWSUsingCallback(streamCtx, d.cfg.APIKey, nil, options, callback)
		if err != nil {
			return err
		}
		if !c.Connect() {
			return errConnect
		}
		client = c
		return nil
	})
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))

	d.mu.Lock()
	d.connecting = false
	if err != nil {
		d.mu.Unlock()
		cancel()
		observability.IncrementCircuitBreakerFailures("deepgram")
		return fmt.Errorf("open deepgram stream: %w", err)
	}
	d.client = client
	d.cancel = cancel
	d.active = true
	d.vad.Reset(d.now())
	buffered := d.pending.Drain()
	d.mu.Unlock()

	if len(buffered) > 0 {
		if _, err := client.Write(buffered); err != nil {
			d.logger.Warn().Err(err).Int("bytes", len(buffered)).Msg("Failed to flush buffered audio")
		}
	}
	d.logger.Info().Str("model", d.cfg.Model).Str("language", d.cfg.Language).Msg("Deepgram stream opened")
	d.emit(Started())
	return nil
}

// SendAudio forwards a PCM16 frame, or buffers it while the stream is closed.
func (d *Deepgram) SendAudio(pcm []byte) error {
	d.mu.Lock()
	if !d.active {
		if evicted := d.pending.Write(pcm); evicted > 0 {
			d.logger.Debug().Int("evicted", evicted).Msg("Audio buffer full, dropping oldest audio")
		}
		d.mu.Unlock()
		return nil
	}
	client := d.client
	var activity audio.Activity
	if samples, err := audio.BytesToSamples(pcm); err == nil {
		activity = d.vad.Process(samples, d.now())
	}
	d.mu.Unlock()

	if activity.NoSpeech {
		d.emit(Failed(ErrorNoSpeech))
	}

	err := d.breaker.Call(func() error {
		_, err := client.Write(pcm)
		return err
	})
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return fmt.Errorf("send audio to deepgram: %w", err)
	}
	return nil
}

// Stop closes the stream. No Ended event is emitted for a requested stop.
func (d *Deepgram) Stop() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	client := d.client
	cancel := d.cancel
	d.active = false
	d.client = nil
	d.cancel = nil
	d.mu.Unlock()

	client.Finish()
	cancel()
	d.logger.Info().Msg("Deepgram stream closed")
	return nil
}

func (d *Deepgram) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]
	ev, ok := transcriptEvent(msg.Type, msg.IsFinal, alt.Transcript, alt.Confidence)
	if !ok {
		return
	}
	d.emit(ev)
}

// transcriptEvent maps a Deepgram transcript message to a recognition event.
func transcriptEvent(msgType string, isFinal bool, transcript string, confidence float64) (Event, bool) {
	if msgType != "Results" && msgType != "Message" {
		return Event{}, false
	}
	text := strings.TrimSpace(transcript)
	if text == "" {
		return Event{}, false
	}
	if isFinal {
		return Final(text, confidence), true
	}
	return Partial(text), true
}

func (d *Deepgram) handleError(er *msginterfaces.ErrorResponse) {
	d.breaker.RecordResult(false)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	observability.IncrementCircuitBreakerFailures("deepgram")

	if er != nil {
		d.logger.Error().Str("type", er.Type).Str("description", er.Description).Msg("Deepgram error")
	}
	if d.markClosed() {
		d.emit(Failed(ErrorNetwork))
	}
}

func (d *Deepgram) handleClose() {
	if d.markClosed() {
		d.logger.Info().Msg("Deepgram stream ended by server")
		d.emit(Ended())
	}
}

// markClosed reports whether the stream was open and is now marked closed.
func (d *Deepgram) markClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return false
	}
	d.active = false
	d.client = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return true
}

func (d *Deepgram) emit(ev Event) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
