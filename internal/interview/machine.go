package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
)

// Observer is told about every applied transition.
type Observer func(op Op, session Session, question *Question)

// SubmitResult is the local outcome of an answer submission.
type SubmitResult struct {
	Session      Session
	NextQuestion *Question
	Completed    bool
	// Warning is set when the backend did not confirm the submission or the
	// completion that followed it. Local state has advanced regardless.
	Warning error
}

// Machine applies interview transitions optimistically and reconciles them
// with the backend.
//
//	Created|Ready --start--> InProgress --pause--> Paused --resume--> InProgress
//	InProgress --submit--> InProgress (auto-completes on the last answer)
//	InProgress --end--> Completed
//	Created|Ready --cancel--> Cancelled
//	Created|Ready|InProgress|Paused --abandon--> Abandoned
type Machine struct {
	backend  Backend
	beacon   Beacon
	logger   zerolog.Logger
	now      func() time.Time
	observer Observer

	// opMu serialises backend-confirmed transitions. Abandon does not take it.
	opMu sync.Mutex

	mu       sync.Mutex
	session  *Session
	question *Question
	shownAt  time.Time
	pausedAt time.Time
	turns    []Turn

	// terminalPending is set while a transition to a terminal status waits
	// for the backend; an abandon arriving then is held in deferredAbandon.
	terminalPending bool
	deferredAbandon *string
}

// MachineOption customises a Machine.
type MachineOption func(*Machine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) { m.observer = o }
}

// NewMachine returns a machine with no session yet.
func NewMachine(backend Backend, beacon Beacon, logger zerolog.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		backend: backend,
		beacon:  beacon,
		logger:  observability.WithComponent(logger, "interview_machine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach adopts an interview created elsewhere. Its status is confirmed by the next transition.
func (m *Machine) Attach(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &Session{ID: sessionID, Status: StatusCreated}
}

// Session returns a copy of the local session.
func (m *Machine) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// CurrentQuestion returns the question being answered, if known.
func (m *Machine) CurrentQuestion() *Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyQuestion(m.question)
}

// History returns the conversation so far.
func (m *Machine) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Create registers a new interview with the backend.
func (m *Machine) Create(ctx context.Context, req CreateRequest) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.session != nil && m.session.Status.IsActive() {
		id := m.session.ID
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: session %s is still active", ErrInvalidTransition, id)
	}
	m.mu.Unlock()

	snap, err := m.backend.CreateSession(ctx, req)
	if err != nil {
		observability.RecordInterviewTransition(string(OpCreate), "failed")
		return Session{}, &TransitionError{Op: OpCreate, Err: err}
	}
	if snap == nil || snap.Session == nil || snap.Session.ID == "" {
		observability.RecordInterviewTransition(string(OpCreate), "failed")
		return Session{}, &TransitionError{Op: OpCreate, Err: errors.New("backend returned no session")}
	}

	local := Session{
		Status:         StatusCreated,
		ResumeID:       req.ResumeID,
		InterviewType:  req.InterviewType,
		TotalQuestions: req.TotalQuestions,
	}
	created := merge(local, snap.Session)

	m.mu.Lock()
	m.session = &created
	m.turns = nil
	m.question = copyQuestion(snap.Question)
	m.shownAt = time.Time{}
	question := copyQuestion(m.question)
	m.mu.Unlock()

	m.logger.Info().Str("session_id", created.ID).Int("total_questions", created.TotalQuestions).Msg("Interview created")
	m.applied(OpCreate, created, question, nil)
	return created, nil
}

// Start moves the interview to InProgress. Starting a running interview is a no-op.
func (m *Machine) Start(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}
	if m.session.Status == StatusInProgress {
		s := *m.session
		m.mu.Unlock()
		observability.RecordInterviewTransition(string(OpStart), "noop")
		return s, nil
	}
	if m.session.Status != StatusCreated && m.session.Status != StatusReady {
		err := m.invalid(OpStart)
		m.mu.Unlock()
		return Session{}, err
	}
	before := *m.session
	optimistic := before
	optimistic.Status = StatusInProgress
	if optimistic.StartedAt == nil {
		now := m.now()
		optimistic.StartedAt = &now
	}
	m.session = &optimistic
	m.mu.Unlock()

	snap, err := m.backend.StartSession(ctx, before.ID)
	return m.settle(OpStart, before, optimistic, snap, err)
}

// SubmitAnswer records the answer to the current question and advances.
// Backend failures do not undo the advance; they are returned as a warning.
func (m *Machine) SubmitAnswer(ctx context.Context, answerText string) (SubmitResult, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return SubmitResult{}, ErrNoSession
	}
	if m.session.Status != StatusInProgress {
		err := m.invalid(OpSubmit)
		m.mu.Unlock()
		return SubmitResult{}, err
	}
	if m.question == nil {
		m.mu.Unlock()
		return SubmitResult{}, ErrNoQuestion
	}

	now := m.now()
	q := *m.question
	sub := AnswerSubmission{QuestionID: q.ID, AnswerText: answerText}
	if !m.shownAt.IsZero() {
		sub.ResponseTimeSeconds = now.Sub(m.shownAt).Seconds()
	}

	before := *m.session
	optimistic := before
	optimistic.CurrentQuestionIndex++
	optimistic = clampIndex(optimistic)

	m.turns = append(m.turns, Turn{
		QuestionID:          q.ID,
		QuestionText:        q.Text,
		AnswerText:          answerText,
		ResponseTimeSeconds: sub.ResponseTimeSeconds,
		SubmittedAt:         now,
	})
	turn := len(m.turns) - 1
	m.session = &optimistic
	m.question = nil
	m.mu.Unlock()

	res, err := m.backend.SubmitAnswer(ctx, before.ID, sub)

	var server *Session
	if res != nil {
		server = res.Session
	}
	merged, rerr := Reconcile(before, optimistic, Outcome{Op: OpSubmit, Server: server, Err: err})

	m.mu.Lock()
	if m.session.Status == StatusAbandoned {
		s := *m.session
		m.mu.Unlock()
		return SubmitResult{Session: s, Warning: rerr}, nil
	}
	m.turns[turn].Synced = err == nil
	if res != nil && res.NextQuestion != nil {
		m.question = copyQuestion(res.NextQuestion)
		m.shownAt = m.now()
	}
	m.session = &merged
	next := copyQuestion(m.question)
	m.mu.Unlock()

	completed := (res != nil && res.Completed) ||
		(merged.TotalQuestions > 0 && merged.CurrentQuestionIndex >= merged.TotalQuestions)
	result := SubmitResult{Session: merged, NextQuestion: next, Completed: completed, Warning: rerr}
	m.applied(OpSubmit, merged, next, rerr)

	if completed && merged.Status == StatusInProgress {
		final, cerr := m.complete(ctx)
		if cerr != nil {
			result.Warning = errors.Join(result.Warning, cerr)
		} else {
			result.Session = final
		}
	}
	return result, nil
}

// End completes a running interview.
func (m *Machine) End(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.complete(ctx)
}

func (m *Machine) complete(ctx context.Context) (Session, error) {
	return m.transition(ctx, OpComplete, StatusCompleted, m.backend.CompleteSession, StatusInProgress)
}

// Pause suspends a running interview.
func (m *Machine) Pause(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	s, err := m.transition(ctx, OpPause, StatusPaused, m.backend.PauseSession, StatusInProgress)
	if err == nil {
		m.mu.Lock()
		m.pausedAt = m.now()
		m.mu.Unlock()
	}
	return s, err
}

// Resume continues a paused interview. Time spent paused does not count
// towards the current answer's response time.
func (m *Machine) Resume(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	s, err := m.transition(ctx, OpResume, StatusInProgress, m.backend.ResumeSession, StatusPaused)
	if err == nil {
		m.mu.Lock()
		if !m.pausedAt.IsZero() && !m.shownAt.IsZero() {
			m.shownAt = m.shownAt.Add(m.now().Sub(m.pausedAt))
		}
		m.pausedAt = time.Time{}
		m.mu.Unlock()
	}
	return s, err
}

// Cancel withdraws an interview that has not started.
func (m *Machine) Cancel(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.transition(ctx, OpCancel, StatusCancelled, m.backend.CancelSession, StatusCreated, StatusReady)
}

// Abandon marks the interview abandoned locally and notifies the backend
// through the beacon. It never blocks on the network. Terminal sessions
// are left unchanged and ErrInvalidTransition is returned.
//
// While an end or cancel is still waiting for the backend the abandon is
// held: it is applied if that transition fails and dropped if it succeeds.
func (m *Machine) Abandon(reason string) (Session, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}
	if m.terminalPending {
		if m.deferredAbandon == nil {
			m.deferredAbandon = &reason
		}
		s := *m.session
		m.mu.Unlock()
		m.logger.Info().Str("session_id", s.ID).Str("reason", reason).Msg("Abandon held until pending transition settles")
		return s, nil
	}
	if m.session.Status.IsTerminal() {
		err := m.invalid(OpAbandon)
		s := *m.session
		m.mu.Unlock()
		return s, err
	}
	m.session.Status = StatusAbandoned
	m.session.AbandonReason = reason
	s := *m.session
	m.mu.Unlock()

	m.beacon.SendAbandon(s.ID, reason)
	m.logger.Info().Str("session_id", s.ID).Str("reason", reason).Msg("Interview abandoned")
	m.applied(OpAbandon, s, nil, nil)
	return s, nil
}

type backendCall func(ctx context.Context, sessionID string) (*Snapshot, error)

func (m *Machine) transition(ctx context.Context, op Op, to Status, call backendCall, from ...Status) (Session, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}
	allowed := false
	for _, s := range from {
		if m.session.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		err := m.invalid(op)
		m.mu.Unlock()
		return Session{}, err
	}
	before := *m.session
	optimistic := before
	optimistic.Status = to
	if to == StatusCompleted {
		now := m.now()
		optimistic.CompletedAt = &now
	}
	m.session = &optimistic
	m.terminalPending = to.IsTerminal()
	m.mu.Unlock()

	snap, err := call(ctx, before.ID)
	return m.settle(op, before, optimistic, snap, err)
}

// settle reconciles a backend reply and stores the result, unless the
// session was abandoned while the call was in flight.
func (m *Machine) settle(op Op, before, optimistic Session, snap *Snapshot, err error) (Session, error) {
	var server *Session
	if snap != nil {
		server = snap.Session
	}
	merged, rerr := Reconcile(before, optimistic, Outcome{Op: op, Server: server, Err: err})

	m.mu.Lock()
	m.terminalPending = false
	deferred := m.deferredAbandon
	m.deferredAbandon = nil
	if m.session.Status == StatusAbandoned {
		s := *m.session
		m.mu.Unlock()
		return s, rerr
	}
	m.session = &merged
	if snap != nil && snap.Question != nil {
		m.question = copyQuestion(snap.Question)
		m.shownAt = m.now()
	} else if op == OpStart && rerr == nil && m.question != nil && m.shownAt.IsZero() {
		m.shownAt = m.now()
	}
	question := copyQuestion(m.question)
	m.mu.Unlock()

	if rerr != nil {
		m.logger.Warn().Err(err).Str("op", string(op)).Str("session_id", before.ID).
			Str("status", merged.Status.String()).Msg("Interview transition not confirmed")
	}
	m.applied(op, merged, question, rerr)

	if deferred != nil {
		if merged.Status.IsTerminal() {
			m.logger.Info().Str("session_id", before.ID).Str("reason", *deferred).
				Msg("Held abandon dropped, interview already ended")
		} else if abandoned, aerr := m.Abandon(*deferred); aerr == nil {
			return abandoned, rerr
		}
	}
	return merged, rerr
}

func (m *Machine) applied(op Op, s Session, q *Question, err error) {
	result := "confirmed"
	if err != nil {
		result = "failed"
	}
	observability.RecordInterviewTransition(string(op), result)
	if m.observer != nil {
		m.observer(op, s, q)
	}
}

// invalid must be called with mu held.
func (m *Machine) invalid(op Op) error {
	observability.RecordInterviewTransition(string(op), "rejected")
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, m.session.Status)
}

func copyQuestion(q *Question) *Question {
	if q == nil {
		return nil
	}
	c := *q
	return &c
}
