package question

import (
	"testing"
	"time"
)

func TestRegistry_SameTextSameKey(t *testing.T) {
	r := NewRegistry("sess-1", DefaultDuplicateThreshold)

	a := r.Key("What is your greatest strength?")
	b := r.Key("what is your greatest strength")
	if a != b {
		t.Errorf("expected punctuation and case to be ignored, got %s and %s", a, b)
	}
}

func TestRegistry_NearDuplicateReusesKey(t *testing.T) {
	r := NewRegistry("sess-1", DefaultDuplicateThreshold)

	a := r.Key("What is your greatest strength?")
	b := r.Key("What is your greatest strengths?")
	if a != b {
		t.Errorf("expected near-duplicate to reuse key, got %s and %s", a, b)
	}

	c := r.Key("Tell me about a conflict with a coworker.")
	if c == a {
		t.Error("expected an unrelated question to get a new key")
	}
}

func TestRegistry_KeysAreScopedToSession(t *testing.T) {
	text := "Why do you want this job?"
	a := NewRegistry("sess-1", DefaultDuplicateThreshold).Key(text)
	b := NewRegistry("sess-2", DefaultDuplicateThreshold).Key(text)
	again := NewRegistry("sess-1", DefaultDuplicateThreshold).Key(text)

	if a == b {
		t.Error("expected different sessions to produce different keys")
	}
	if a != again {
		t.Error("expected keys to be deterministic for a session")
	}
}

func TestRegistry_Detect(t *testing.T) {
	r := NewRegistry("sess-1", 0)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	q, ok := r.Detect("sess-1-seg-4", "  How do you prioritise work?  ", now)
	if !ok {
		t.Fatal("expected a question")
	}
	if q.Text != "How do you prioritise work?" || q.SegmentID != "sess-1-seg-4" || !q.DetectedAt.Equal(now) {
		t.Errorf("unexpected question %+v", q)
	}
	if q.ID != r.Key("how do you prioritise work") {
		t.Error("expected detected question to carry the registry key")
	}

	if _, ok := r.Detect("sess-1-seg-5", "I see", now); ok {
		t.Error("expected short statement not to be a question")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  What's   your NAME? ": "whats your name",
		"one,two":                "onetwo",
		"":                       "",
		"tabs\tand\nnewlines":    "tabs and newlines",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q): expected %q, got %q", in, want, got)
		}
	}
}
