// Package events publishes transcript and interview events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/question"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

// Event types
const (
	TypeSegment    = "copilot.segment.finalized"
	TypeQuestion   = "copilot.question.detected"
	TypeTransition = "copilot.interview.transition"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicSegments string
	TopicSessions string
	Enabled       bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to the segments and sessions topics. When Kafka
// is disabled events are only logged.
type Publisher struct {
	segments      messageWriter
	sessions      messageWriter
	topicSegments string
	topicSessions string
	enabled       bool
	logger        zerolog.Logger
}

// SegmentEvent is published for every finalized transcript segment.
type SegmentEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Segment   segment.Segment `json:"segment"`
	Timestamp time.Time       `json:"timestamp"`
}

// QuestionEvent is published when a segment is detected as a question.
type QuestionEvent struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Question  question.Question `json:"question"`
	Timestamp time.Time         `json:"timestamp"`
}

// TransitionEvent is published for every applied interview transition.
type TransitionEvent struct {
	Type      string            `json:"type"`
	Op        interview.Op      `json:"op"`
	Session   interview.Session `json:"session"`
	Timestamp time.Time         `json:"timestamp"`
}

// New creates a publisher. A nil or disabled config, or one without
// brokers, yields a log-only publisher.
func New(cfg *Config, logger zerolog.Logger) *Publisher {
	logger = observability.WithComponent(logger, "events")

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		p := &Publisher{logger: logger}
		if cfg != nil {
			p.topicSegments = cfg.TopicSegments
			p.topicSessions = cfg.TopicSessions
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic_segments", cfg.TopicSegments).
		Str("topic_sessions", cfg.TopicSessions).
		Msg("Kafka publisher initialized")

	return &Publisher{
		segments:      newWriter(cfg.TopicSegments),
		sessions:      newWriter(cfg.TopicSessions),
		topicSegments: cfg.TopicSegments,
		topicSessions: cfg.TopicSessions,
		enabled:       true,
		logger:        logger,
	}
}

// PublishSegment publishes a finalized segment keyed by session.
func (p *Publisher) PublishSegment(ctx context.Context, sessionID string, seg segment.Segment) error {
	ev := SegmentEvent{Type: TypeSegment, SessionID: sessionID, Segment: seg, Timestamp: time.Now().UTC()}
	return p.publish(ctx, p.segments, p.topicSegments, sessionID, ev)
}

// PublishQuestion publishes a detected question keyed by session.
func (p *Publisher) PublishQuestion(ctx context.Context, sessionID string, q question.Question) error {
	ev := QuestionEvent{Type: TypeQuestion, SessionID: sessionID, Question: q, Timestamp: time.Now().UTC()}
	return p.publish(ctx, p.segments, p.topicSegments, sessionID, ev)
}

// PublishTransition publishes an interview transition keyed by interview ID.
func (p *Publisher) PublishTransition(ctx context.Context, op interview.Op, s interview.Session) error {
	ev := TransitionEvent{Type: TypeTransition, Op: op, Session: s, Timestamp: time.Now().UTC()}
	return p.publish(ctx, p.sessions, p.topicSessions, s.ID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("interview-copilot")},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Failed to write to Kafka")
		observability.RecordEventPublish(topic, false)
		return err
	}
	observability.RecordEventPublish(topic, true)
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, w := range []messageWriter{p.segments, p.sessions} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
