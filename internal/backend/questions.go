package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexiqai/interview-copilot/internal/answer"
	"github.com/lexiqai/interview-copilot/internal/history"
)

var (
	_ answer.Generator = (*Client)(nil)
	_ history.Client   = (*Client)(nil)
)

var errNoSampleAnswer = errors.New("backend generate: response has no sample answer")

type generateRequest struct {
	SessionID    string `json:"sessionId"`
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
}

type generateResponse struct {
	SampleAnswer  string   `json:"sampleAnswer"`
	KeyPoints     []string `json:"keyPoints"`
	StructureTips string   `json:"structureTips"`
}

type matchRequest struct {
	SpeechText string `json:"speechText"`
	Limit      int    `json:"limit"`
}

type matchResponse struct {
	Matches []history.Match `json:"matches"`
}

// GenerateAnswer asks the backend for a reference answer.
func (c *Client) GenerateAnswer(ctx context.Context, req answer.Request) (*answer.ReferenceAnswer, error) {
	var out generateResponse
	in := generateRequest{SessionID: req.SessionID, QuestionID: req.QuestionID, QuestionText: req.QuestionText}
	if err := c.call(ctx, "generate", http.MethodPost, "/questions/generate", in, &out); err != nil {
		return nil, err
	}
	if out.SampleAnswer == "" {
		return nil, errNoSampleAnswer
	}
	return &answer.ReferenceAnswer{
		QuestionID:    req.QuestionID,
		QuestionText:  req.QuestionText,
		SampleAnswer:  out.SampleAnswer,
		KeyPoints:     out.KeyPoints,
		StructureTips: out.StructureTips,
	}, nil
}

// MatchQuestion looks up previously answered questions similar to speechText.
func (c *Client) MatchQuestion(ctx context.Context, speechText string, limit int) ([]history.Match, error) {
	var out matchResponse
	if err := c.call(ctx, "match", http.MethodPost, "/interviews/match-question", matchRequest{SpeechText: speechText, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}
