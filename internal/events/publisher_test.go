package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/question"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newEnabledPublisher() (*Publisher, *fakeWriter, *fakeWriter) {
	segs, sess := &fakeWriter{}, &fakeWriter{}
	return &Publisher{
		segments:      segs,
		sessions:      sess,
		topicSegments: "segments",
		topicSessions: "sessions",
		enabled:       true,
		logger:        zerolog.Nop(),
	}, segs, sess
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, zerolog.Nop())
			if p.enabled || p.segments != nil || p.sessions != nil {
				t.Error("expected log-only publisher")
			}
			if err := p.PublishSegment(context.Background(), "s1", segment.Segment{ID: "s1-seg-1"}); err != nil {
				t.Errorf("expected no error when disabled, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("expected clean close, got %v", err)
			}
		})
	}
}

func TestPublisher_RoutesByTopic(t *testing.T) {
	p, segs, sess := newEnabledPublisher()
	ctx := context.Background()

	p.PublishSegment(ctx, "s1", segment.Segment{ID: "s1-seg-1", Text: "Why Go?", Kind: segment.KindSentence})
	p.PublishQuestion(ctx, "s1", question.Question{ID: "k1", Text: "Why Go?", SegmentID: "s1-seg-1", DetectedAt: time.Now()})
	p.PublishTransition(ctx, interview.OpStart, interview.Session{ID: "iv-1", Status: interview.StatusInProgress})

	if len(segs.msgs) != 2 || len(sess.msgs) != 1 {
		t.Fatalf("expected 2 segment-topic and 1 session-topic messages, got %d/%d", len(segs.msgs), len(sess.msgs))
	}
	if string(segs.msgs[0].Key) != "s1" || string(sess.msgs[0].Key) != "iv-1" {
		t.Errorf("unexpected keys %q %q", segs.msgs[0].Key, sess.msgs[0].Key)
	}

	var ev TransitionEvent
	if err := json.Unmarshal(sess.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeTransition || ev.Op != interview.OpStart || ev.Session.Status != interview.StatusInProgress {
		t.Errorf("unexpected event %+v", ev)
	}

	var qev map[string]any
	json.Unmarshal(segs.msgs[1].Value, &qev)
	if qev["type"] != TypeQuestion {
		t.Errorf("expected question event, got %v", qev["type"])
	}
}

func TestPublisher_WriteError(t *testing.T) {
	p, segs, _ := newEnabledPublisher()
	segs.err = errors.New("broker unavailable")

	if err := p.PublishSegment(context.Background(), "s1", segment.Segment{}); err == nil {
		t.Error("expected write error")
	}
}

func TestPublisher_Close(t *testing.T) {
	p, segs, sess := newEnabledPublisher()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !segs.closed || !sess.closed {
		t.Error("expected both writers closed")
	}
}
