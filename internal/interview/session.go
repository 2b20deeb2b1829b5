// Package interview tracks one interview attempt: question progression,
// answer submission, completion and abandonment, kept in step with the backend.
package interview

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors for rejected transitions.
var (
	ErrInvalidTransition = errors.New("invalid interview transition")
	ErrNoSession         = errors.New("no interview session")
	ErrNoQuestion        = errors.New("no current question")
	ErrTransitionFailed  = errors.New("interview transition failed")
)

// Abandon reasons
const (
	ReasonUserExit          = "user_exit"
	ReasonBrowserClosed     = "browser_closed"
	ReasonBackgroundTimeout = "background_timeout"
)

// Session is the local copy of the backend's interview session.
type Session struct {
	ID                   string     `json:"id"`
	ResumeID             string     `json:"resumeId,omitempty"`
	InterviewType        string     `json:"interviewType,omitempty"`
	Status               Status     `json:"status"`
	TotalQuestions       int        `json:"totalQuestions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	AbandonReason        string     `json:"abandonReason,omitempty"`
}

// Question is an interview question served by the backend.
type Question struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// CreateRequest describes a new interview.
type CreateRequest struct {
	ResumeID       string `json:"resumeId"`
	InterviewType  string `json:"interviewType"`
	TotalQuestions int    `json:"totalQuestions"`
}

// AnswerSubmission is the candidate's answer to one question.
type AnswerSubmission struct {
	QuestionID          string  `json:"questionId"`
	AnswerText          string  `json:"answerText"`
	ResponseTimeSeconds float64 `json:"responseTimeSeconds"`
}

// Snapshot is the backend's view after a transition.
type Snapshot struct {
	Session  *Session
	Question *Question
}

// AnswerResult is the backend's reply to an answer submission.
type AnswerResult struct {
	Session      *Session
	NextQuestion *Question
	Completed    bool
}

// Turn is one entry of the conversation history.
type Turn struct {
	QuestionID          string    `json:"questionId"`
	QuestionText        string    `json:"questionText"`
	AnswerText          string    `json:"answerText"`
	ResponseTimeSeconds float64   `json:"responseTimeSeconds"`
	SubmittedAt         time.Time `json:"submittedAt"`
	Synced              bool      `json:"synced"`
}

// Backend is the authoritative store for interview sessions.
type Backend interface {
	CreateSession(ctx context.Context, req CreateRequest) (*Snapshot, error)
	StartSession(ctx context.Context, sessionID string) (*Snapshot, error)
	SubmitAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) (*AnswerResult, error)
	CompleteSession(ctx context.Context, sessionID string) (*Snapshot, error)
	PauseSession(ctx context.Context, sessionID string) (*Snapshot, error)
	ResumeSession(ctx context.Context, sessionID string) (*Snapshot, error)
	CancelSession(ctx context.Context, sessionID string) (*Snapshot, error)
}

// Beacon delivers an abandon notice without waiting for, or observing, the result.
type Beacon interface {
	SendAbandon(sessionID, reason string)
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// TransitionError reports a transition the backend did not confirm.
type TransitionError struct {
	Op  Op
	Err error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("interview %s: %v", e.Op, e.Err)
}

func (e *TransitionError) Unwrap() []error {
	return []error{ErrTransitionFailed, e.Err}
}
