package answer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []Request
	err     error
	release chan struct{} // when set, calls block until closed
	started chan struct{} // receives one value per call
}

func (g *fakeGenerator) GenerateAnswer(ctx context.Context, req Request) (*ReferenceAnswer, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	err, release, started := g.err, g.release, g.started
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &ReferenceAnswer{SampleAnswer: "answer to " + req.QuestionText, KeyPoints: []string{"k"}}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingSink struct {
	mu         sync.Mutex
	generating []string
	ready      []*ReferenceAnswer
	failed     []error
}

func (s *recordingSink) AnswerGenerating(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = append(s.generating, id)
}

func (s *recordingSink) AnswerReady(a *ReferenceAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, a)
}

func (s *recordingSink) AnswerFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func newTestOrchestrator(gen Generator, sink Sink, clock *fakeClock) *Orchestrator {
	return NewOrchestrator("sess-1", gen, sink, DefaultConfig(), zerolog.Nop(), WithClock(clock.Now))
}

func TestOrchestrator_GeneratesAndCaches(t *testing.T) {
	gen := &fakeGenerator{}
	sink := &recordingSink{}
	clock := newFakeClock()
	o := newTestOrchestrator(gen, sink, clock)

	if got := o.RequestAnswer(context.Background(), "q1", "What is your greatest strength?"); got != OutcomeGenerated {
		t.Fatalf("expected generated, got %s", got)
	}
	a, ok := o.Answer("q1")
	if !ok || a.GeneratedBy != SourceAI || a.QuestionID != "q1" {
		t.Fatalf("expected cached AI answer, got %+v", a)
	}

	clock.Advance(10 * time.Second)
	if got := o.RequestAnswer(context.Background(), "q1", "What is your greatest strength?"); got != OutcomeCached {
		t.Errorf("expected cached, got %s", got)
	}
	if gen.callCount() != 1 {
		t.Errorf("expected 1 generator call, got %d", gen.callCount())
	}
	if len(sink.generating) != 1 || len(sink.ready) != 1 {
		t.Errorf("expected one generating and one ready event, got %d/%d", len(sink.generating), len(sink.ready))
	}
}

func TestOrchestrator_AtMostOneInFlight(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{}), started: make(chan struct{}, 1)}
	o := newTestOrchestrator(gen, &recordingSink{}, newFakeClock())

	done := make(chan Outcome, 1)
	go func() { done <- o.RequestAnswer(context.Background(), "q1", "Why this company?") }()
	<-gen.started

	if !o.Generating("q1") {
		t.Error("expected q1 to be in flight")
	}
	if got := o.RequestAnswer(context.Background(), "q1", "Why this company?"); got != OutcomeInFlight {
		t.Errorf("expected in_flight, got %s", got)
	}

	close(gen.release)
	if got := <-done; got != OutcomeGenerated {
		t.Errorf("expected first request to generate, got %s", got)
	}
	if gen.callCount() != 1 {
		t.Errorf("expected exactly 1 network call, got %d", gen.callCount())
	}
}

func TestOrchestrator_ThrottleAcrossQuestions(t *testing.T) {
	gen := &fakeGenerator{}
	clock := newFakeClock()
	o := newTestOrchestrator(gen, &recordingSink{}, clock)

	o.RequestAnswer(context.Background(), "q1", "Tell me about yourself.")
	clock.Advance(4 * time.Second)
	if got := o.RequestAnswer(context.Background(), "q2", "Why do you want this job?"); got != OutcomeThrottled {
		t.Errorf("expected throttled inside 5s, got %s", got)
	}
	if _, ok := o.Answer("q2"); ok {
		t.Error("expected throttled question to have no answer")
	}

	clock.Advance(1 * time.Second)
	if got := o.RequestAnswer(context.Background(), "q2", "Why do you want this job?"); got != OutcomeGenerated {
		t.Errorf("expected generation once 5s elapsed, got %s", got)
	}
	if gen.callCount() != 2 {
		t.Errorf("expected 2 generator calls, got %d", gen.callCount())
	}
}

func TestOrchestrator_ThrottleAppliesWhileFirstInFlight(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{}), started: make(chan struct{}, 2)}
	o := newTestOrchestrator(gen, &recordingSink{}, newFakeClock())

	done := make(chan Outcome, 1)
	go func() { done <- o.RequestAnswer(context.Background(), "q1", "How do you handle stress?") }()
	<-gen.started

	if got := o.RequestAnswer(context.Background(), "q2", "What motivates you?"); got != OutcomeThrottled {
		t.Errorf("expected second question throttled, got %s", got)
	}
	close(gen.release)
	<-done
}

func TestOrchestrator_FailureCachesSingleFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("502 bad gateway")}
	sink := &recordingSink{}
	clock := newFakeClock()
	o := newTestOrchestrator(gen, sink, clock)

	if got := o.RequestAnswer(context.Background(), "q1", "What is your biggest weakness?"); got != OutcomeFallback {
		t.Fatalf("expected fallback, got %s", got)
	}
	clock.Advance(10 * time.Second)
	if got := o.RequestAnswer(context.Background(), "q1", "What is your biggest weakness?"); got != OutcomeCached {
		t.Errorf("expected cached fallback on second attempt, got %s", got)
	}

	if gen.callCount() != 1 {
		t.Errorf("expected a single failed network call, got %d", gen.callCount())
	}
	if len(sink.failed) != 1 || !errors.Is(sink.failed[0], ErrGeneration) {
		t.Errorf("expected one ErrGeneration, got %v", sink.failed)
	}
	a, _ := o.Answer("q1")
	if a == nil || a.GeneratedBy != SourceFallback {
		t.Fatalf("expected fallback answer, got %+v", a)
	}
	if a.StructureTips != DefaultFallbacks().Select("weakness").StructureTips {
		t.Errorf("expected the weakness template, got %q", a.StructureTips)
	}
}

func TestOrchestrator_FailureDoesNotHoldThrottle(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	clock := newFakeClock()
	o := newTestOrchestrator(gen, &recordingSink{}, clock)

	o.RequestAnswer(context.Background(), "q1", "Describe your last project.")
	gen.mu.Lock()
	gen.err = nil
	gen.mu.Unlock()

	clock.Advance(time.Second)
	if got := o.RequestAnswer(context.Background(), "q2", "What did you learn from it?"); got != OutcomeGenerated {
		t.Errorf("expected failure not to start the throttle window, got %s", got)
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	cfg := Config{Throttle: 5 * time.Second, Timeout: 20 * time.Millisecond}
	o := NewOrchestrator("sess-1", gen, &recordingSink{}, cfg, zerolog.Nop())

	if got := o.RequestAnswer(context.Background(), "q1", "Where do you see yourself in five years?"); got != OutcomeFallback {
		t.Fatalf("expected timeout to resolve to fallback, got %s", got)
	}
	a, _ := o.Answer("q1")
	if a.GeneratedBy != SourceFallback {
		t.Errorf("expected fallback source, got %s", a.GeneratedBy)
	}
}

func TestOrchestrator_Regenerate(t *testing.T) {
	gen := &fakeGenerator{}
	clock := newFakeClock()
	o := newTestOrchestrator(gen, &recordingSink{}, clock)

	if got := o.Regenerate(context.Background()); got != OutcomeNoQuestion {
		t.Errorf("expected no_question before any request, got %s", got)
	}

	o.RequestAnswer(context.Background(), "q1", "Tell me about a conflict.")
	clock.Advance(time.Second)
	o.RequestAnswer(context.Background(), "q2", "How did you resolve it?") // throttled, still the latest question

	if got := o.Regenerate(context.Background()); got != OutcomeGenerated {
		t.Fatalf("expected regenerate to bypass throttle, got %s", got)
	}
	if gen.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.callCount())
	}
	gen.mu.Lock()
	last := gen.calls[1]
	gen.mu.Unlock()
	if last.QuestionID != "q2" {
		t.Errorf("expected regenerate to target the most recent question, got %s", last.QuestionID)
	}
}

func TestOrchestrator_RegenerateSupersedesInFlight(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{}), started: make(chan struct{}, 2)}
	sink := &recordingSink{}
	o := newTestOrchestrator(gen, sink, newFakeClock())

	first := make(chan Outcome, 1)
	go func() { first <- o.RequestAnswer(context.Background(), "q1", "Why should we hire you?") }()
	<-gen.started

	second := make(chan Outcome, 1)
	go func() { second <- o.Regenerate(context.Background()) }()
	<-gen.started

	close(gen.release)
	outcomes := map[Outcome]int{<-first: 1}
	outcomes[<-second]++

	if outcomes[OutcomeSuperseded] != 1 || outcomes[OutcomeGenerated] != 1 {
		t.Errorf("expected one superseded and one generated, got %v", outcomes)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ready) != 1 {
		t.Errorf("expected only the latest result to be applied, got %d", len(sink.ready))
	}
}

func TestOrchestrator_AdmitOrderDecidesThrottle(t *testing.T) {
	gen := &fakeGenerator{}
	sink := &recordingSink{}
	o := newTestOrchestrator(gen, sink, newFakeClock())

	first, _ := o.Admit("q1", "What do you do for fun?")
	second, outcome := o.Admit("q2", "Tell me about your last project.")
	if first == nil {
		t.Fatal("expected the first question to be admitted")
	}
	if second != nil || outcome != OutcomeThrottled {
		t.Fatalf("expected the second question throttled, got %s", outcome)
	}
	if !o.Generating("q1") {
		t.Error("expected q1 to be marked in flight at admission")
	}
	if gen.callCount() != 0 {
		t.Error("expected no generation before run")
	}

	if got := first(context.Background()); got != OutcomeGenerated {
		t.Fatalf("expected generated, got %s", got)
	}
	if _, ok := o.Answer("q2"); ok {
		t.Error("expected no answer for the throttled question")
	}
}
