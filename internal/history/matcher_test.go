package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   int
	limits  []int
	results []Match
	err     error
}

func (c *fakeClient) MatchQuestion(ctx context.Context, text string, limit int) ([]Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.limits = append(c.limits, limit)
	return c.results, c.err
}

type recordingSink struct {
	updates []*Match
	errs    []error
}

func (s *recordingSink) MatchUpdated(m *Match) { s.updates = append(s.updates, m) }
func (s *recordingSink) MatchFailed(err error)  { s.errs = append(s.errs, err) }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMatcher(client Client, sink Sink) (*Matcher, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewMatcher(client, sink, DefaultConfig(), zerolog.Nop(), WithClock(c.Now)), c
}

func TestMatcher_KeepsBestMatch(t *testing.T) {
	client := &fakeClient{results: []Match{
		{QuestionText: "Tell me about yourself", SimilarityScore: 0.71},
		{QuestionText: "Introduce yourself", SimilarityScore: 0.93, ExpectedAnswer: "I am..."},
		{QuestionText: "Your background?", SimilarityScore: 0.65},
	}}
	sink := &recordingSink{}
	m, _ := newTestMatcher(client, sink)

	if got := m.Match(context.Background(), "Can you introduce yourself?"); got != OutcomeMatched {
		t.Fatalf("expected matched, got %s", got)
	}
	cur := m.Current()
	if cur == nil || cur.QuestionText != "Introduce yourself" {
		t.Fatalf("expected best match, got %+v", cur)
	}
	if client.limits[0] != 3 {
		t.Errorf("expected limit 3, got %d", client.limits[0])
	}
	if len(sink.updates) != 1 || sink.updates[0] != cur {
		t.Errorf("expected sink to receive the current match")
	}
}

func TestMatcher_Debounce(t *testing.T) {
	client := &fakeClient{results: []Match{{QuestionText: "a", SimilarityScore: 0.9}}}
	m, c := newTestMatcher(client, &recordingSink{})

	m.Match(context.Background(), "first question?")
	c.Advance(2999 * time.Millisecond)
	if got := m.Match(context.Background(), "second question?"); got != OutcomeDebounced {
		t.Errorf("expected debounced, got %s", got)
	}
	if client.calls != 1 {
		t.Errorf("expected exactly 1 network call, got %d", client.calls)
	}

	c.Advance(time.Millisecond)
	if got := m.Match(context.Background(), "third question?"); got != OutcomeMatched {
		t.Errorf("expected a call once the window elapsed, got %s", got)
	}
	if client.calls != 2 {
		t.Errorf("expected 2 network calls, got %d", client.calls)
	}
}

func TestMatcher_DroppedCallDoesNotExtendWindow(t *testing.T) {
	client := &fakeClient{}
	m, c := newTestMatcher(client, &recordingSink{})

	m.Match(context.Background(), "one?")
	c.Advance(2 * time.Second)
	m.Match(context.Background(), "two?") // dropped
	c.Advance(1 * time.Second)

	if got := m.Match(context.Background(), "three?"); got == OutcomeDebounced {
		t.Error("expected window measured from the last accepted call")
	}
}

func TestMatcher_EmptyResultsClearMatch(t *testing.T) {
	client := &fakeClient{results: []Match{{QuestionText: "a", SimilarityScore: 0.8}}}
	sink := &recordingSink{}
	m, c := newTestMatcher(client, sink)

	m.Match(context.Background(), "first?")
	client.results = nil
	c.Advance(5 * time.Second)

	if got := m.Match(context.Background(), "second?"); got != OutcomeEmpty {
		t.Fatalf("expected empty, got %s", got)
	}
	if m.Current() != nil {
		t.Error("expected match to be cleared")
	}
	if len(sink.errs) != 0 || m.LastError() != nil {
		t.Error("expected no error for zero results")
	}
}

func TestMatcher_FailureClearsMatchWithTransientError(t *testing.T) {
	client := &fakeClient{results: []Match{{QuestionText: "a", SimilarityScore: 0.8}}}
	sink := &recordingSink{}
	m, c := newTestMatcher(client, sink)

	m.Match(context.Background(), "first?")
	client.results, client.err = nil, errors.New("503 service unavailable")
	c.Advance(5 * time.Second)

	if got := m.Match(context.Background(), "second?"); got != OutcomeError {
		t.Fatalf("expected error outcome, got %s", got)
	}
	if m.Current() != nil {
		t.Error("expected match to be cleared on failure")
	}
	if err := m.LastError(); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch, got %v", err)
	}
	if len(sink.errs) != 1 {
		t.Errorf("expected one failure notification, got %d", len(sink.errs))
	}

	c.Advance(6 * time.Second)
	if m.LastError() != nil {
		t.Error("expected error to expire after the TTL")
	}
}

func TestBest(t *testing.T) {
	if Best(nil) != nil {
		t.Error("expected nil for no results")
	}
	results := []Match{{QuestionText: "x", SimilarityScore: 0.5}}
	b := Best(results)
	b.QuestionText = "changed"
	if results[0].QuestionText != "x" {
		t.Error("expected Best to return a copy")
	}
}

func TestMatcher_AdmitOrderDecidesDebounce(t *testing.T) {
	client := &fakeClient{results: []Match{{QuestionText: "Hobbies", SimilarityScore: 0.8}}}
	sink := &recordingSink{}
	m, _ := newTestMatcher(client, sink)

	first, _ := m.Admit("What do you do for fun?")
	second, outcome := m.Admit("Tell me about your last project.")
	if first == nil {
		t.Fatal("expected the first lookup to be admitted")
	}
	if second != nil || outcome != OutcomeDebounced {
		t.Fatalf("expected the second lookup debounced, got %q", outcome)
	}
	if got := first(context.Background()); got != OutcomeMatched {
		t.Fatalf("expected matched, got %s", got)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 network call, got %d", client.calls)
	}
}
