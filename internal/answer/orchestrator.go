// Package answer generates reference answers for detected questions,
// with per-question deduplication, a per-session throttle and keyword
// fallbacks when generation fails.
package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
)

var errEmptyAnswer = errors.New("empty response")

// Config controls throttling and timeouts.
type Config struct {
	// Throttle is the minimum interval between two generations in a session.
	Throttle time.Duration
	// Timeout bounds one generation call. Zero waits indefinitely.
	Timeout time.Duration
}

// DefaultConfig returns a 5s throttle and a 30s timeout.
func DefaultConfig() Config {
	return Config{Throttle: 5 * time.Second, Timeout: 30 * time.Second}
}

// Orchestrator owns the answer cache and in-flight set for one session.
type Orchestrator struct {
	sessionID string
	generator Generator
	fallbacks *Fallbacks
	sink      Sink
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	mu             sync.Mutex
	cache          map[string]*ReferenceAnswer
	inFlight       map[string]uint64
	seq            uint64
	lastGeneration time.Time
	latest         *Request
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithFallbacks replaces the built-in fallback templates.
func WithFallbacks(fb *Fallbacks) Option {
	return func(o *Orchestrator) {
		if fb != nil {
			o.fallbacks = fb
		}
	}
}

// NewOrchestrator returns an orchestrator for sessionID.
func NewOrchestrator(sessionID string, gen Generator, sink Sink, cfg Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessionID: sessionID,
		generator: gen,
		fallbacks: DefaultFallbacks(),
		sink:      sink,
		cfg:       cfg,
		logger:    observability.WithComponent(logger, "answer_orchestrator"),
		now:       time.Now,
		cache:     make(map[string]*ReferenceAnswer),
		inFlight:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestAnswer generates a reference answer for the question unless it is
// cached, already being generated, or the session throttle is active.
// It blocks until the generation (or its fallback) has been applied.
func (o *Orchestrator) RequestAnswer(ctx context.Context, questionID, questionText string) Outcome {
	run, outcome := o.Admit(questionID, questionText)
	if run == nil {
		return outcome
	}
	return run(ctx)
}

// Admit runs the cache, in-flight and throttle checks for a question and,
// when they pass, marks it in flight and stamps the throttle. The returned
// run performs the generation. run is nil when the question was not
// admitted and outcome says why. Questions admitted one after another are
// throttled in that order, whenever their runs happen to execute.
func (o *Orchestrator) Admit(questionID, questionText string) (run func(context.Context) Outcome, outcome Outcome) {
	o.mu.Lock()
	req := Request{SessionID: o.sessionID, QuestionID: questionID, QuestionText: questionText}
	p, outcome, ok := o.admitLocked(req, false)
	o.mu.Unlock()
	if !ok {
		if outcome == OutcomeThrottled {
			o.logger.Debug().Str("question_id", questionID).Msg("Answer generation throttled")
		}
		observability.RecordAnswerRequest(outcome.String())
		return nil, outcome
	}
	return o.runner(p), outcome
}

// Regenerate clears the throttle and the cached answer for the most recent
// question and generates it again, even if a request for it is still running.
func (o *Orchestrator) Regenerate(ctx context.Context) Outcome {
	o.mu.Lock()
	if o.latest == nil {
		o.mu.Unlock()
		observability.RecordAnswerRequest(OutcomeNoQuestion.String())
		return OutcomeNoQuestion
	}
	req := *o.latest
	o.lastGeneration = time.Time{}
	delete(o.cache, req.QuestionID)
	p, _, _ := o.admitLocked(req, true)
	o.mu.Unlock()

	o.logger.Info().Str("question_id", req.QuestionID).Msg("Regenerating reference answer")
	return o.runner(p)(ctx)
}

// SetSessionID sets the interview session sent with later requests.
func (o *Orchestrator) SetSessionID(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessionID = sessionID
}

// Answer returns the cached answer for questionID.
func (o *Orchestrator) Answer(questionID string) (*ReferenceAnswer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.cache[questionID]
	return a, ok
}

// Generating reports whether a request for questionID is in flight.
func (o *Orchestrator) Generating(questionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[questionID]
	return ok
}

// pending is an admitted request waiting for its generation call.
type pending struct {
	req      Request
	seq      uint64
	previous time.Time
	stamp    time.Time
}

// admitLocked must be called with o.mu held.
func (o *Orchestrator) admitLocked(req Request, force bool) (pending, Outcome, bool) {
	o.latest = &req
	if !force {
		if _, ok := o.cache[req.QuestionID]; ok {
			return pending{}, OutcomeCached, false
		}
		if _, ok := o.inFlight[req.QuestionID]; ok {
			return pending{}, OutcomeInFlight, false
		}
		if !o.lastGeneration.IsZero() && o.now().Sub(o.lastGeneration) < o.cfg.Throttle {
			return pending{}, OutcomeThrottled, false
		}
	}
	o.seq++
	p := pending{req: req, seq: o.seq, previous: o.lastGeneration, stamp: o.now()}
	o.inFlight[req.QuestionID] = p.seq
	o.lastGeneration = p.stamp
	return p, OutcomeGenerated, true
}

func (o *Orchestrator) runner(p pending) func(context.Context) Outcome {
	return func(ctx context.Context) Outcome {
		outcome := o.generate(ctx, p)
		observability.RecordAnswerRequest(outcome.String())
		return outcome
	}
}

func (o *Orchestrator) generate(ctx context.Context, p pending) Outcome {
	req := p.req
	o.sink.AnswerGenerating(req.QuestionID)

	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := o.generator.GenerateAnswer(callCtx, req)
	observability.ObserveAnswerLatency(time.Since(start))
	if err == nil && answer == nil {
		err = errEmptyAnswer
	}

	o.mu.Lock()
	if o.inFlight[req.QuestionID] != p.seq {
		o.mu.Unlock()
		o.logger.Debug().Str("question_id", req.QuestionID).Msg("Discarding superseded answer")
		return OutcomeSuperseded
	}
	delete(o.inFlight, req.QuestionID)

	if err != nil {
		fallback := o.fallbacks.For(req, o.now())
		o.cache[req.QuestionID] = fallback
		if o.lastGeneration.Equal(p.stamp) {
			o.lastGeneration = p.previous
		}
		o.mu.Unlock()

		genErr := fmt.Errorf("%w: %w", ErrGeneration, err)
		o.logger.Warn().Err(err).Str("question_id", req.QuestionID).Msg("Reference answer generation failed, using fallback")
		o.sink.AnswerFailed(req.QuestionID, genErr)
		o.sink.AnswerReady(fallback)
		return OutcomeFallback
	}

	answer.QuestionID = req.QuestionID
	if answer.QuestionText == "" {
		answer.QuestionText = req.QuestionText
	}
	answer.GeneratedBy = SourceAI
	if answer.GeneratedAt.IsZero() {
		answer.GeneratedAt = o.now()
	}
	o.cache[req.QuestionID] = answer
	o.lastGeneration = o.now()
	o.mu.Unlock()

	o.sink.AnswerReady(answer)
	return OutcomeGenerated
}
