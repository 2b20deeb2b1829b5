package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/lexiqai/interview-copilot/internal/interview"
)

var (
	_ interview.Backend = (*Client)(nil)
	_ interview.Beacon  = (*Client)(nil)
)

type sessionJSON struct {
	ID                   string     `json:"id"`
	ResumeID             string     `json:"resumeId"`
	InterviewType        string     `json:"interviewType"`
	Status               string     `json:"status"`
	TotalQuestions       int        `json:"totalQuestions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	StartedAt            *time.Time `json:"startedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
}

type snapshotJSON struct {
	SessionID string              `json:"sessionId"`
	Session   *sessionJSON        `json:"session"`
	Question  *interview.Question `json:"question"`
}

type answerResultJSON struct {
	Session      *sessionJSON        `json:"session"`
	NextQuestion *interview.Question `json:"nextQuestion"`
	IsComplete   bool                `json:"isComplete"`
}

type abandonJSON struct {
	Reason string `json:"reason"`
}

// toSession converts the wire session. A missing or unrecognised status
// becomes StatusUnknown so it does not override local state.
func (s *sessionJSON) toSession() *interview.Session {
	if s == nil {
		return nil
	}
	status := interview.StatusUnknown
	if s.Status != "" {
		if parsed, err := interview.ParseStatus(s.Status); err == nil {
			status = parsed
		}
	}
	return &interview.Session{
		ID:                   s.ID,
		ResumeID:             s.ResumeID,
		InterviewType:        s.InterviewType,
		Status:               status,
		TotalQuestions:       s.TotalQuestions,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
	}
}

func (s *snapshotJSON) toSnapshot() *interview.Snapshot {
	snap := &interview.Snapshot{Session: s.Session.toSession(), Question: s.Question}
	if snap.Session == nil && s.SessionID != "" {
		snap.Session = &interview.Session{ID: s.SessionID, Status: interview.StatusUnknown}
	}
	if snap.Session != nil && snap.Session.ID == "" {
		snap.Session.ID = s.SessionID
	}
	return snap
}

func sessionPath(sessionID, action string) string {
	return "/interviews/" + url.PathEscape(sessionID) + "/" + action
}

// CreateSession registers a new interview.
func (c *Client) CreateSession(ctx context.Context, req interview.CreateRequest) (*interview.Snapshot, error) {
	var out snapshotJSON
	if err := c.call(ctx, "create", http.MethodPost, "/interviews", req, &out); err != nil {
		return nil, err
	}
	return out.toSnapshot(), nil
}

// StartSession starts an interview. The backend answers 400 when it is already running.
func (c *Client) StartSession(ctx context.Context, sessionID string) (*interview.Snapshot, error) {
	return c.transition(ctx, "start", sessionID)
}

// SubmitAnswer records an answer and returns the next question or completion.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, sub interview.AnswerSubmission) (*interview.AnswerResult, error) {
	var out answerResultJSON
	if err := c.call(ctx, "answer", http.MethodPost, sessionPath(sessionID, "answer"), sub, &out); err != nil {
		return nil, err
	}
	return &interview.AnswerResult{
		Session:      out.Session.toSession(),
		NextQuestion: out.NextQuestion,
		Completed:    out.IsComplete,
	}, nil
}

// CompleteSession ends a running interview.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (*interview.Snapshot, error) {
	return c.transition(ctx, "complete", sessionID)
}

// PauseSession pauses a running interview.
func (c *Client) PauseSession(ctx context.Context, sessionID string) (*interview.Snapshot, error) {
	return c.transition(ctx, "pause", sessionID)
}

// ResumeSession resumes a paused interview.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) (*interview.Snapshot, error) {
	return c.transition(ctx, "resume", sessionID)
}

// CancelSession cancels an interview that has not started.
func (c *Client) CancelSession(ctx context.Context, sessionID string) (*interview.Snapshot, error) {
	return c.transition(ctx, "cancel", sessionID)
}

func (c *Client) transition(ctx context.Context, action, sessionID string) (*interview.Snapshot, error) {
	var out snapshotJSON
	if err := c.call(ctx, action, http.MethodPost, sessionPath(sessionID, action), nil, &out); err != nil {
		return nil, err
	}
	return out.toSnapshot(), nil
}

// SendAbandon notifies the backend that the interview was abandoned. It
// returns immediately; the request runs detached from any caller context
// under the beacon timeout and bypasses the circuit breaker.
func (c *Client) SendAbandon(sessionID, reason string) {
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()

		err := c.do(ctx, "abandon", http.MethodPut, sessionPath(sessionID, "abandon"), abandonJSON{Reason: reason}, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Str("reason", reason).Msg("Abandon beacon failed")
			return
		}
		c.logger.Debug().Str("session_id", sessionID).Str("reason", reason).Msg("Abandon beacon delivered")
	}()
}
