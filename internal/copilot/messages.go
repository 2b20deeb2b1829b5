package copilot

import (
	"github.com/lexiqai/interview-copilot/internal/answer"
	"github.com/lexiqai/interview-copilot/internal/history"
	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/question"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

// Client message types
const (
	TypeListen           = "listen"
	TypeRecognition      = "recognition"
	TypeVisibility       = "visibility"
	TypeUnload           = "unload"
	TypeInterviewCreate  = "interview.create"
	TypeInterviewStart   = "interview.start"
	TypeInterviewPause   = "interview.pause"
	TypeInterviewResume  = "interview.resume"
	TypeInterviewEnd     = "interview.end"
	TypeInterviewCancel  = "interview.cancel"
	TypeInterviewAbandon = "interview.abandon"
	TypeInterviewAnswer  = "interview.answer"
	TypeAnswerRegenerate = "answer.regenerate"
)

// Server message types
const (
	TypeRecognizer       = "recognizer"
	TypeListening        = "listening"
	TypeInterim          = "interim"
	TypeSegment          = "segment"
	TypeQuestion         = "question"
	TypeAnswerGenerating = "answer.generating"
	TypeAnswer           = "answer"
	TypeMatch            = "match"
	TypeSession          = "session"
	TypeWarning          = "warning"
	TypeError            = "error"
)

// Error codes sent with TypeError
const (
	CodeBadMessage       = "bad_message"
	CodeRecognition      = "recognition"
	CodeGeneration       = "generation_failed"
	CodeMatch            = "match_failed"
	CodeTransition       = "transition_failed"
	CodeInvalidOperation = "invalid_operation"
)

// ClientMessage is a JSON frame from the client. Only the fields of its
// type are set.
type ClientMessage struct {
	Type string `json:"type"`

	// listen
	Action string `json:"action,omitempty"`

	// recognition
	Event      string  `json:"event,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`

	// visibility
	Visible *bool `json:"visible,omitempty"`

	// interview.create
	ResumeID       string `json:"resumeId,omitempty"`
	InterviewType  string `json:"interviewType,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`

	// interview.abandon
	Reason string `json:"reason,omitempty"`

	// interview.answer
	AnswerText string `json:"answerText,omitempty"`
}

type recognizerMessage struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

type listeningMessage struct {
	Type      string `json:"type"`
	Listening bool   `json:"listening"`
}

type interimMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type segmentMessage struct {
	Type    string          `json:"type"`
	Segment segment.Segment `json:"segment"`
}

type questionMessage struct {
	Type     string            `json:"type"`
	Question question.Question `json:"question"`
}

type generatingMessage struct {
	Type       string `json:"type"`
	QuestionID string `json:"questionId"`
}

type answerMessage struct {
	Type   string                  `json:"type"`
	Answer *answer.ReferenceAnswer `json:"answer"`
}

// A nil match clears the display.
type matchMessage struct {
	Type  string         `json:"type"`
	Match *history.Match `json:"match"`
}

type sessionMessage struct {
	Type     string              `json:"type"`
	Op       interview.Op        `json:"op,omitempty"`
	Session  interview.Session   `json:"session"`
	Question *interview.Question `json:"question,omitempty"`
	History  []interview.Turn    `json:"history,omitempty"`
}

type warningMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}
