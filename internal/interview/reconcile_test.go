package interview

import (
	"errors"
	"fmt"
	"testing"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestReconcile(t *testing.T) {
	before := Session{ID: "s1", Status: StatusCreated, TotalQuestions: 5}
	started := before
	started.Status = StatusInProgress

	submitted := Session{ID: "s1", Status: StatusInProgress, TotalQuestions: 5, CurrentQuestionIndex: 2}

	tests := []struct {
		name       string
		before     Session
		optimistic Session
		out        Outcome
		wantStatus Status
		wantIndex  int
		wantErr    bool
	}{
		{
			name:       "confirmed without body keeps optimistic",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart},
			wantStatus: StatusInProgress,
		},
		{
			name:       "server fields win",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart, Server: &Session{Status: StatusInProgress, CurrentQuestionIndex: 1}},
			wantStatus: StatusInProgress,
			wantIndex:  1,
		},
		{
			name:       "duplicate start is confirmation",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart, Err: statusErr(400)},
			wantStatus: StatusInProgress,
		},
		{
			name:       "start conflict 409",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart, Err: fmt.Errorf("wrapped: %w", statusErr(409))},
			wantStatus: StatusInProgress,
		},
		{
			name:       "start server error reverts",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart, Err: statusErr(500)},
			wantStatus: StatusCreated,
			wantErr:    true,
		},
		{
			name:       "failed submit keeps advance",
			before:     Session{ID: "s1", Status: StatusInProgress, TotalQuestions: 5, CurrentQuestionIndex: 1},
			optimistic: submitted,
			out:        Outcome{Op: OpSubmit, Err: errors.New("connection reset")},
			wantStatus: StatusInProgress,
			wantIndex:  2,
			wantErr:    true,
		},
		{
			name:       "pause failure reverts",
			before:     submitted,
			optimistic: Session{ID: "s1", Status: StatusPaused, TotalQuestions: 5, CurrentQuestionIndex: 2},
			out:        Outcome{Op: OpPause, Err: statusErr(400)},
			wantStatus: StatusInProgress,
			wantIndex:  2,
			wantErr:    true,
		},
		{
			name:       "unknown server status ignored",
			before:     before,
			optimistic: started,
			out:        Outcome{Op: OpStart, Server: &Session{Status: StatusUnknown}},
			wantStatus: StatusInProgress,
		},
		{
			name:       "index never moves backwards",
			before:     submitted,
			optimistic: submitted,
			out:        Outcome{Op: OpResume, Server: &Session{Status: StatusInProgress, CurrentQuestionIndex: 1}},
			wantStatus: StatusInProgress,
			wantIndex:  2,
		},
		{
			name:       "index clamped to total",
			before:     submitted,
			optimistic: submitted,
			out:        Outcome{Op: OpSubmit, Server: &Session{Status: StatusInProgress, CurrentQuestionIndex: 9}},
			wantStatus: StatusInProgress,
			wantIndex:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.before, tt.optimistic, tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrTransitionFailed) {
				t.Errorf("expected ErrTransitionFailed, got %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, got.Status)
			}
			if got.CurrentQuestionIndex != tt.wantIndex {
				t.Errorf("expected index %d, got %d", tt.wantIndex, got.CurrentQuestionIndex)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(statusErr(400)) || !IsConflict(statusErr(409)) {
		t.Error("expected 400 and 409 to be conflicts")
	}
	if IsConflict(statusErr(404)) || IsConflict(errors.New("plain")) {
		t.Error("expected 404 and untyped errors not to be conflicts")
	}
}

func TestStatus_Parse(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"created", StatusCreated},
		{"IN_PROGRESS", StatusInProgress},
		{"in_progress", StatusInProgress},
		{"ABANDONED", StatusAbandoned},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, %v", tt.in, got, err)
		}
	}
	if _, err := ParseStatus("finished"); err == nil {
		t.Error("expected error for unknown status")
	}

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusAbandoned} {
		if !s.IsTerminal() || s.IsActive() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	if StatusPaused.IsTerminal() {
		t.Error("expected paused not to be terminal")
	}
}
