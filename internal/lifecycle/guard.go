// Package lifecycle watches page visibility and unload signals from the
// client and abandons the interview when the candidate has left.
package lifecycle

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/observability"
)

// Abandoner abandons the interview. It must not block on the network.
type Abandoner interface {
	Abandon(reason string) (interview.Session, error)
}

// VisibilityObserver is told when the page becomes visible again.
type VisibilityObserver interface {
	OnVisible()
}

// Guard abandons the interview when the page stays hidden longer than the
// background limit or is unloaded.
type Guard struct {
	abandoner Abandoner
	observer  VisibilityObserver
	limit     time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	hidden  bool
	stopped bool
	timer   *time.Timer
	gen     uint64
}

// NewGuard returns a guard for a visible page. observer may be nil.
func NewGuard(abandoner Abandoner, observer VisibilityObserver, limit time.Duration, logger zerolog.Logger) *Guard {
	return &Guard{
		abandoner: abandoner,
		observer:  observer,
		limit:     limit,
		logger:    observability.WithComponent(logger, "lifecycle_guard"),
	}
}

// VisibilityChanged records a page visibility change.
func (g *Guard) VisibilityChanged(visible bool) {
	g.mu.Lock()
	if g.stopped || g.hidden == !visible {
		g.mu.Unlock()
		return
	}
	g.hidden = !visible
	g.disarmLocked()
	if !visible && g.limit > 0 {
		gen := g.gen
		g.timer = time.AfterFunc(g.limit, func() { g.expire(gen) })
	}
	g.mu.Unlock()

	if visible {
		g.logger.Debug().Msg("Page visible")
		if g.observer != nil {
			g.observer.OnVisible()
		}
		return
	}
	g.logger.Debug().Dur("limit", g.limit).Msg("Page hidden, background timer armed")
}

// Unload abandons the interview because the page is going away.
func (g *Guard) Unload() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.disarmLocked()
	g.mu.Unlock()

	g.abandon(interview.ReasonBrowserClosed)
}

// Stop disarms the guard without abandoning.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	g.disarmLocked()
}

// Hidden reports whether the page is currently hidden.
func (g *Guard) Hidden() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hidden
}

func (g *Guard) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.timer = nil
	g.mu.Unlock()

	g.logger.Info().Dur("limit", g.limit).Msg("Page hidden too long")
	g.abandon(interview.ReasonBackgroundTimeout)
}

func (g *Guard) abandon(reason string) {
	s, err := g.abandoner.Abandon(reason)
	switch {
	case err == nil:
		g.logger.Info().Str("session_id", s.ID).Str("reason", reason).Msg("Interview abandoned by lifecycle guard")
	case errors.Is(err, interview.ErrInvalidTransition), errors.Is(err, interview.ErrNoSession):
		g.logger.Debug().Err(err).Str("reason", reason).Msg("Nothing to abandon")
	default:
		g.logger.Warn().Err(err).Str("reason", reason).Msg("Abandon failed")
	}
}

func (g *Guard) disarmLocked() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
