package answer

import (
	"context"
	"errors"
	"time"
)

// ErrGeneration wraps every failure of the reference answer generator.
var ErrGeneration = errors.New("answer generation failed")

// Source tells the UI where a reference answer came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Request identifies the question to generate a reference answer for.
type Request struct {
	SessionID    string
	QuestionID   string
	QuestionText string
}

// ReferenceAnswer is the suggested answer shown next to a detected question.
type ReferenceAnswer struct {
	QuestionID    string    `json:"questionId"`
	QuestionText  string    `json:"questionText"`
	SampleAnswer  string    `json:"sampleAnswer"`
	KeyPoints     []string  `json:"keyPoints"`
	StructureTips string    `json:"structureTips"`
	GeneratedBy   Source    `json:"generatedBy"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// Generator produces a reference answer, usually by calling a remote model.
type Generator interface {
	GenerateAnswer(ctx context.Context, req Request) (*ReferenceAnswer, error)
}

// Sink receives answer state changes for display.
type Sink interface {
	AnswerGenerating(questionID string)
	AnswerReady(answer *ReferenceAnswer)
	AnswerFailed(questionID string, err error)
}

// Outcome describes what a request did.
type Outcome int

const (
	OutcomeGenerated Outcome = iota
	OutcomeFallback
	OutcomeCached
	OutcomeInFlight
	OutcomeThrottled
	OutcomeSuperseded
	OutcomeNoQuestion
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeFallback:
		return "fallback"
	case OutcomeCached:
		return "cached"
	case OutcomeInFlight:
		return "in_flight"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeNoQuestion:
		return "no_question"
	default:
		return "unknown"
	}
}
