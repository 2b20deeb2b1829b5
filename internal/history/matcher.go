// Package history looks up previously answered questions that resemble
// the one currently being asked.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
)

// ErrMatch wraps failures of the historical lookup.
var ErrMatch = errors.New("historical match failed")

// Match is a prior question and the candidate's earlier answer to it.
type Match struct {
	QuestionText    string     `json:"questionText"`
	SimilarityScore float64    `json:"similarityScore"`
	ExpectedAnswer  string     `json:"expectedAnswer"`
	UserAnswer      string     `json:"userAnswer,omitempty"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
}

// Client performs the similarity lookup.
type Client interface {
	MatchQuestion(ctx context.Context, speechText string, limit int) ([]Match, error)
}

// Sink receives the current match. A nil match clears the display.
type Sink interface {
	MatchUpdated(match *Match)
	MatchFailed(err error)
}

// Config controls debounce and request limits.
type Config struct {
	Debounce time.Duration
	Limit    int
	Timeout  time.Duration // zero waits indefinitely
	ErrorTTL time.Duration // how long LastError reports a failure
}

// DefaultConfig returns a 3s debounce, 3 results, 15s timeout and 5s error display.
func DefaultConfig() Config {
	return Config{Debounce: 3 * time.Second, Limit: 3, Timeout: 15 * time.Second, ErrorTTL: 5 * time.Second}
}

// Outcome describes what a Match call did.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeEmpty      Outcome = "empty"
	OutcomeError      Outcome = "error"
	OutcomeDebounced  Outcome = "debounced"
	OutcomeSuperseded Outcome = "superseded"
)

// Matcher keeps the single best historical match for a session.
type Matcher struct {
	client Client
	sink   Sink
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastCall  time.Time
	seq       uint64
	current   *Match
	lastErr   error
	lastErrAt time.Time
}

// Option customises a Matcher.
type Option func(*Matcher)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// NewMatcher returns a matcher publishing to sink.
func NewMatcher(client Client, sink Sink, cfg Config, logger zerolog.Logger, opts ...Option) *Matcher {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	m := &Matcher{
		client: client,
		sink:   sink,
		cfg:    cfg,
		logger: observability.WithComponent(logger, "history_matcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match looks up questionText unless the previous accepted call was less
// than the debounce window ago, in which case nothing happens.
func (m *Matcher) Match(ctx context.Context, questionText string) Outcome {
	run, outcome := m.Admit(questionText)
	if run == nil {
		return outcome
	}
	return run(ctx)
}

// Admit applies the debounce to questionText and, when the call is
// accepted, records it as the latest call. The returned run performs the
// lookup. run is nil for a debounced call, with outcome OutcomeDebounced;
// otherwise outcome is empty.
func (m *Matcher) Admit(questionText string) (run func(context.Context) Outcome, outcome Outcome) {
	m.mu.Lock()
	now := m.now()
	if !m.lastCall.IsZero() && now.Sub(m.lastCall) < m.cfg.Debounce {
		m.mu.Unlock()
		observability.RecordMatchRequest(string(OutcomeDebounced))
		return nil, OutcomeDebounced
	}
	m.lastCall = now
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	return func(ctx context.Context) Outcome {
		outcome := m.lookup(ctx, questionText, seq)
		observability.RecordMatchRequest(string(outcome))
		return outcome
	}, ""
}

func (m *Matcher) lookup(ctx context.Context, questionText string, seq uint64) Outcome {
	callCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	results, err := m.client.MatchQuestion(callCtx, questionText, m.cfg.Limit)

	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		return OutcomeSuperseded
	}
	if err != nil {
		matchErr := fmt.Errorf("%w: %w", ErrMatch, err)
		m.current = nil
		m.lastErr = matchErr
		m.lastErrAt = m.now()
		m.mu.Unlock()

		m.logger.Warn().Err(err).Msg("Historical question lookup failed")
		m.sink.MatchUpdated(nil)
		m.sink.MatchFailed(matchErr)
		return OutcomeError
	}

	best := Best(results)
	m.current = best
	m.lastErr = nil
	m.mu.Unlock()

	m.sink.MatchUpdated(best)
	if best == nil {
		return OutcomeEmpty
	}
	m.logger.Debug().Float64("score", best.SimilarityScore).Msg("Historical question matched")
	return OutcomeMatched
}

// Current returns the match on display, or nil.
func (m *Matcher) Current() *Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastError returns the last lookup failure while it is still fresh.
func (m *Matcher) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil || m.now().Sub(m.lastErrAt) > m.cfg.ErrorTTL {
		return nil
	}
	return m.lastErr
}

// Best returns a copy of the highest scoring match, or nil for no results.
func Best(results []Match) *Match {
	if len(results) == 0 {
		return nil
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.SimilarityScore > best.SimilarityScore {
			best = r
		}
	}
	return &best
}
