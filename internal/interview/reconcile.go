package interview

import (
	"errors"
	"net/http"
)

// Op names a session transition.
type Op string

const (
	OpCreate   Op = "create"
	OpStart    Op = "start"
	OpSubmit   Op = "submit"
	OpComplete Op = "complete"
	OpPause    Op = "pause"
	OpResume   Op = "resume"
	OpCancel   Op = "cancel"
	OpAbandon  Op = "abandon"
)

// Outcome is what the backend said about a transition: the session it
// returned, or the error the call failed with.
type Outcome struct {
	Op     Op
	Server *Session
	Err    error
}

// Reconcile merges a backend outcome into local state. before is the state
// prior to the transition and optimistic the state applied while the call
// was in flight.
//
// A confirmed transition takes the server's fields over the optimistic ones.
// A conflict on start means the session is already running and counts as
// confirmation. A failed answer submission keeps the optimistic advance and
// reports the failure. Any other failure restores before.
func Reconcile(before, optimistic Session, out Outcome) (Session, error) {
	if out.Err == nil {
		return merge(optimistic, out.Server), nil
	}
	if out.Op == OpStart && IsConflict(out.Err) {
		return merge(optimistic, out.Server), nil
	}

	terr := &TransitionError{Op: out.Op, Err: out.Err}
	if out.Op == OpSubmit {
		return clampIndex(optimistic), terr
	}
	return before, terr
}

// IsConflict reports whether err is a 400 or 409 from the backend.
func IsConflict(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	code := sc.StatusCode()
	return code == http.StatusBadRequest || code == http.StatusConflict
}

func merge(local Session, server *Session) Session {
	if server == nil {
		return clampIndex(local)
	}
	merged := local
	if server.ID != "" {
		merged.ID = server.ID
	}
	if server.ResumeID != "" {
		merged.ResumeID = server.ResumeID
	}
	if server.InterviewType != "" {
		merged.InterviewType = server.InterviewType
	}
	if server.Status != StatusUnknown {
		merged.Status = server.Status
	}
	if server.TotalQuestions > 0 {
		merged.TotalQuestions = server.TotalQuestions
	}
	// the question pointer only moves forward
	if server.CurrentQuestionIndex > merged.CurrentQuestionIndex {
		merged.CurrentQuestionIndex = server.CurrentQuestionIndex
	}
	if server.StartedAt != nil {
		merged.StartedAt = server.StartedAt
	}
	if server.CompletedAt != nil {
		merged.CompletedAt = server.CompletedAt
	}
	return clampIndex(merged)
}

func clampIndex(s Session) Session {
	if s.TotalQuestions > 0 && s.CurrentQuestionIndex > s.TotalQuestions {
		s.CurrentQuestionIndex = s.TotalQuestions
	}
	if s.CurrentQuestionIndex < 0 {
		s.CurrentQuestionIndex = 0
	}
	return s
}
