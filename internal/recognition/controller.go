package recognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/resilience"
)

// State of the listening session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Recognizer is a speech recognizer the controller can start and stop.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Listener receives what the controller forwards. Calls are made with the
// controller's lock held, so a Listener must not call back into the controller.
type Listener interface {
	OnInterim(text string)
	OnFinal(text string, confidence float64)
	OnListening(listening bool)
	OnFatal(err *FatalError)
}

const noSpeechWindow = time.Minute

// Controller keeps one recognizer listening across natural ends and
// transient errors.
type Controller struct {
	recognizer Recognizer
	listener   Listener
	policy     resilience.RestartPolicy
	logger     zerolog.Logger
	now        func() time.Time

	mu              sync.Mutex
	state           State
	autoRestart     bool
	manuallyStopped bool
	attempt         int
	gen             uint64
	timer           *time.Timer
	ctx             context.Context
	noSpeech        []time.Time
	fatal           *FatalError
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithClock replaces time.Now for the rolling error window.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController returns an idle controller.
func NewController(rec Recognizer, listener Listener, policy resilience.RestartPolicy, logger zerolog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		recognizer: rec,
		listener:   listener,
		policy:     policy,
		logger:     observability.WithComponent(logger, "recognition_controller"),
		now:        time.Now,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins listening and enables auto-restart. Starting while already
// starting or listening is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStarting || c.state == StateListening {
		c.mu.Unlock()
		return nil
	}
	c.autoRestart = true
	c.manuallyStopped = false
	c.fatal = nil
	c.attempt = 0
	c.cancelRestartLocked()
	c.state = StateStarting
	c.ctx = ctx
	gen := c.gen
	c.mu.Unlock()

	if err := c.recognizer.Start(ctx); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateIdle
			c.autoRestart = false
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("Failed to start recognizer")
		return fmt.Errorf("start recognizer: %w", err)
	}
	c.logger.Info().Msg("Recognition started")
	return nil
}

// Stop ends listening and disables auto-restart. Once Stop returns no
// further events are forwarded until the next Start.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.autoRestart = false
	c.manuallyStopped = true
	c.cancelRestartLocked()
	wasActive := c.state != StateIdle
	wasListening := c.state == StateListening
	c.state = StateIdle
	if wasListening {
		c.listener.OnListening(false)
	}
	c.mu.Unlock()

	if !wasActive {
		return nil
	}
	c.logger.Info().Msg("Recognition stopped")
	if err := c.recognizer.Stop(); err != nil {
		return fmt.Errorf("stop recognizer: %w", err)
	}
	return nil
}

// HandleEvent applies one recognizer event.
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		c.logger.Debug().Str("event", ev.Type.String()).Msg("Dropping event while idle")
		return
	}

	switch ev.Type {
	case EventStarted:
		c.state = StateListening
		c.attempt = 0
		c.listener.OnListening(true)
		c.mu.Unlock()

	case EventPartial:
		if ev.Text != "" {
			c.listener.OnInterim(ev.Text)
		}
		c.mu.Unlock()

	case EventFinal:
		c.listener.OnFinal(ev.Text, ev.Confidence)
		c.mu.Unlock()

	case EventError:
		observability.RecordRecognitionError(string(ev.Error))
		if ev.Error.Transient() {
			count := c.recordNoSpeechLocked()
			c.mu.Unlock()
			c.logger.Debug().Str("kind", string(ev.Error)).Int("recent", count).Msg("Transient recognition error")
			return
		}
		fe := &FatalError{Kind: ev.Error}
		c.fatal = fe
		c.autoRestart = false
		c.cancelRestartLocked()
		wasListening := c.state == StateListening
		c.state = StateIdle
		if wasListening {
			c.listener.OnListening(false)
		}
		c.listener.OnFatal(fe)
		c.mu.Unlock()

		c.logger.Error().Str("kind", string(ev.Error)).Msg("Fatal recognition error")
		if err := c.recognizer.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop recognizer after fatal error")
		}

	case EventEnded:
		if c.state == StateListening {
			c.listener.OnListening(false)
		}
		if c.autoRestart && !c.manuallyStopped {
			c.scheduleLocked(c.attempt + 1)
		} else {
			c.state = StateIdle
		}
		c.mu.Unlock()

	default:
		c.mu.Unlock()
	}
}

// OnVisible makes a single immediate restart attempt when auto-restart is
// enabled but the recognizer is not listening.
func (c *Controller) OnVisible() {
	c.mu.Lock()
	if !c.autoRestart || c.manuallyStopped || c.state == StateListening || c.state == StateStarting {
		c.mu.Unlock()
		return
	}
	c.cancelRestartLocked()
	c.state = StateStarting
	gen := c.gen
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Info().Msg("Page visible again, restarting recognition")
	if err := c.recognizer.Start(ctx); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateIdle
		}
		c.mu.Unlock()
		observability.RecordRecognitionRestart("failed")
		c.logger.Warn().Err(err).Msg("Restart on visibility failed")
		return
	}
	observability.RecordRecognitionRestart("success")
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether the recognizer has confirmed it is listening.
func (c *Controller) Listening() bool {
	return c.State() == StateListening
}

// AutoRestartEnabled reports whether natural ends are restarted.
func (c *Controller) AutoRestartEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoRestart
}

// RecentNoSpeech returns the number of transient errors in the last minute.
func (c *Controller) RecentNoSpeech() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneNoSpeechLocked(c.now())
	return len(c.noSpeech)
}

// LastFatal returns the error that stopped listening, if any.
func (c *Controller) LastFatal() *FatalError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Controller) scheduleLocked(attempt int) {
	if !c.policy.Allows(attempt) {
		c.state = StateIdle
		c.attempt = 0
		observability.RecordRecognitionRestart("exhausted")
		c.logger.Warn().Int("attempts", attempt-1).Msg("Giving up on recognition restart")
		return
	}

	c.cancelRestartLocked()
	c.state = StateRestarting
	c.attempt = attempt
	gen := c.gen
	delay := c.policy.Delay(attempt)
	c.timer = time.AfterFunc(delay, func() { c.restart(gen, attempt) })
	c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Recognition restart scheduled")
}

func (c *Controller) restart(gen uint64, attempt int) {
	c.mu.Lock()
	if gen != c.gen || !c.autoRestart || c.manuallyStopped || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateStarting
	ctx := c.ctx
	c.mu.Unlock()

	err := c.recognizer.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if err == nil {
		observability.RecordRecognitionRestart("success")
		return
	}
	observability.RecordRecognitionRestart("failed")
	c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Recognition restart failed")
	c.scheduleLocked(attempt + 1)
}

// cancelRestartLocked invalidates any scheduled restart.
func (c *Controller) cancelRestartLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) recordNoSpeechLocked() int {
	now := c.now()
	c.noSpeech = append(c.noSpeech, now)
	c.pruneNoSpeechLocked(now)
	return len(c.noSpeech)
}

func (c *Controller) pruneNoSpeechLocked(now time.Time) {
	cut := 0
	for cut < len(c.noSpeech) && now.Sub(c.noSpeech[cut]) > noSpeechWindow {
		cut++
	}
	c.noSpeech = c.noSpeech[cut:]
}
