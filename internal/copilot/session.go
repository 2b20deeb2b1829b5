// Package copilot runs one live copilot session per client WebSocket:
// recognition control, the segmentation pipeline, answer and history
// lookups, and the interview state machine with its lifecycle guard.
package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/interview-copilot/internal/answer"
	"github.com/lexiqai/interview-copilot/internal/history"
	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/lifecycle"
	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/question"
	"github.com/lexiqai/interview-copilot/internal/readaloud"
	"github.com/lexiqai/interview-copilot/internal/recognition"
	"github.com/lexiqai/interview-copilot/internal/resilience"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	audioChunkSize = 32 << 10
	opsQueueSize   = 16
)

var errSessionClosed = errors.New("session closed")

// AudioRecognizer is a server-side recognizer fed with client audio.
type AudioRecognizer interface {
	recognition.Recognizer
	SetHandler(h func(recognition.Event))
	SendAudio(pcm []byte) error
}

var _ AudioRecognizer = (*recognition.Deepgram)(nil)

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Backend   interview.Backend
	Beacon    interview.Beacon
	Generator answer.Generator
	Fallbacks *answer.Fallbacks
	Matches   history.Client
	Publisher Publisher
	// Synthesizer reads new questions aloud. Nil disables read-aloud.
	Synthesizer readaloud.Synthesizer
	// NewRecognizer builds a server-side recognizer for audio frames.
	// Nil leaves recognition to the client.
	NewRecognizer func() AudioRecognizer
}

// Settings are the per-session tunables.
type Settings struct {
	Answer          answer.Config
	Match           history.Config
	Pipeline        PipelineConfig
	Restart         resilience.RestartPolicy
	BackgroundLimit time.Duration
}

// DefaultSettings mirrors the package defaults of each component.
func DefaultSettings() Settings {
	return Settings{
		Answer: answer.DefaultConfig(),
		Match:  history.DefaultConfig(),
		Pipeline: PipelineConfig{
			Thresholds:         segment.DefaultThresholds(),
			DuplicateThreshold: question.DefaultDuplicateThreshold,
			IdleFlush:          time.Second,
		},
		Restart:         resilience.DefaultRestartPolicy(),
		BackgroundLimit: 10 * time.Minute,
	}
}

// Session is one client connection.
type Session struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	deps    Dependencies
	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	machine    *interview.Machine
	controller *recognition.Controller
	recognizer AudioRecognizer
	guard      *lifecycle.Guard
	answers    *answer.Orchestrator
	matcher    *history.Matcher
	pipeline   *Pipeline

	ctx  context.Context
	ops  chan func(context.Context)
	jobs sync.WaitGroup

	writeMu sync.Mutex

	mu          sync.Mutex
	interviewID string
	shutdown    bool
}

func newSession(conn *websocket.Conn, hub *Hub, deps Dependencies, settings Settings) *Session {
	id := fmt.Sprintf("conn-%s", uuid.New().String())
	correlationID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(correlationID).
		With().
		Str("connection_id", id).
		Logger()

	s := &Session{
		id:      id,
		conn:    conn,
		hub:     hub,
		deps:    deps,
		logger:  logger,
		metrics: observability.NewSessionMetrics(id),
		ctx:     context.Background(),
		ops:     make(chan func(context.Context), opsQueueSize),
	}

	s.machine = interview.NewMachine(deps.Backend, deps.Beacon, logger, interview.WithObserver(s.onTransition))

	var rec recognition.Recognizer
	if deps.NewRecognizer != nil {
		s.recognizer = deps.NewRecognizer()
		rec = s.recognizer
	} else {
		rec = recognition.NewRemote(s.sendRecognizerCommand)
	}
	s.controller = recognition.NewController(rec, s, settings.Restart, logger)
	if s.recognizer != nil {
		s.recognizer.SetHandler(s.controller.HandleEvent)
	}

	s.guard = lifecycle.NewGuard(s.machine, s.controller, settings.BackgroundLimit, logger)
	s.answers = answer.NewOrchestrator(id, deps.Generator, s, settings.Answer, logger, answer.WithFallbacks(deps.Fallbacks))
	s.matcher = history.NewMatcher(deps.Matches, s, settings.Match, logger)
	s.pipeline = NewPipeline(id, s.answers, s.matcher, deps.Publisher, s, settings.Pipeline, logger)
	return s
}

// ID returns the connection ID.
func (s *Session) ID() string { return s.id }

// InterviewID returns the interview bound to this connection, if any.
func (s *Session) InterviewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interviewID
}

// run serves the connection until it closes.
func (s *Session) run(ctx context.Context, interviewID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx

	s.metrics.RecordSessionStart()
	defer s.metrics.RecordSessionEnd()
	s.logger.Info().Str("recognition", s.recognitionMode()).Msg("Copilot session started")

	if interviewID != "" {
		s.machine.Attach(interviewID)
		s.bind(interviewID)
	}

	var g errgroup.Group
	g.Go(func() error { return s.pipeline.Run(ctx) })
	g.Go(func() error { return s.opLoop(ctx) })
	g.Go(func() error { return s.keepalive(ctx) })

	err := s.readLoop(ctx)
	cancel()
	s.teardown()
	_ = g.Wait()
	s.jobs.Wait()

	s.logger.Info().Err(err).Msg("Copilot session ended")
}

func (s *Session) recognitionMode() string {
	if s.recognizer != nil {
		return "server"
	}
	return "client"
}

func (s *Session) teardown() {
	// the socket is gone, so a client recognizer cannot be told to stop
	if err := s.controller.Stop(); err != nil && !errors.Is(err, errSessionClosed) {
		s.logger.Warn().Err(err).Msg("Failed to stop recognition")
	}

	s.mu.Lock()
	shutdown := s.shutdown
	interviewID := s.interviewID
	s.mu.Unlock()

	switch {
	case shutdown:
		s.guard.Stop()
	case interviewID != "" && !s.hub.owns(interviewID, s):
		// the interview continues on a newer connection
		s.guard.Stop()
	default:
		// socket dropped without a clean end
		s.guard.Unload()
	}
	if interviewID != "" {
		s.hub.unregister(interviewID, s)
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return err
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to parse client message")
				s.sendError(CodeBadMessage, "message is not valid JSON", false)
				continue
			}
			s.handleMessage(ctx, msg)
		}
	}
}

func (s *Session) keepalive(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// opLoop runs interview operations one at a time, in the order the client sent them.
func (s *Session) opLoop(ctx context.Context) error {
	for {
		select {
		case op := <-s.ops:
			op(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) enqueue(op func(context.Context)) {
	select {
	case s.ops <- op:
	default:
		s.sendWarning("Too many pending interview operations, try again")
	}
}

// background runs fn on its own goroutine, awaited at teardown.
func (s *Session) background(fn func()) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		fn()
	}()
}

func (s *Session) handleAudio(pcm []byte) {
	if s.recognizer == nil {
		s.logger.Debug().Int("bytes", len(pcm)).Msg("Ignoring audio in client recognition mode")
		return
	}
	s.metrics.RecordAudioBytes("in", int64(len(pcm)))
	if err := s.recognizer.SendAudio(pcm); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to forward audio")
	}
}

func (s *Session) handleMessage(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeListen:
		s.handleListen(ctx, msg.Action)

	case TypeRecognition:
		ev, err := recognitionEvent(msg)
		if err != nil {
			s.sendError(CodeBadMessage, err.Error(), false)
			return
		}
		s.controller.HandleEvent(ev)

	case TypeVisibility:
		if msg.Visible == nil {
			s.sendError(CodeBadMessage, "visibility requires visible", false)
			return
		}
		s.guard.VisibilityChanged(*msg.Visible)

	case TypeUnload:
		s.guard.Unload()

	case TypeInterviewCreate:
		req := interview.CreateRequest{
			ResumeID:       msg.ResumeID,
			InterviewType:  msg.InterviewType,
			TotalQuestions: msg.TotalQuestions,
		}
		s.enqueue(func(ctx context.Context) {
			if _, err := s.machine.Create(ctx, req); err != nil {
				s.opFailed(interview.OpCreate, err)
			}
		})

	case TypeInterviewStart:
		s.enqueueTransition(interview.OpStart, s.machine.Start)
	case TypeInterviewPause:
		s.enqueueTransition(interview.OpPause, s.machine.Pause)
	case TypeInterviewResume:
		s.enqueueTransition(interview.OpResume, s.machine.Resume)
	case TypeInterviewEnd:
		s.enqueueTransition(interview.OpComplete, s.machine.End)
	case TypeInterviewCancel:
		s.enqueueTransition(interview.OpCancel, s.machine.Cancel)

	case TypeInterviewAbandon:
		reason := msg.Reason
		if reason == "" {
			reason = interview.ReasonUserExit
		}
		if _, err := s.machine.Abandon(reason); err != nil {
			s.opFailed(interview.OpAbandon, err)
		}

	case TypeInterviewAnswer:
		text := msg.AnswerText
		s.enqueue(func(ctx context.Context) {
			res, err := s.machine.SubmitAnswer(ctx, text)
			if err != nil {
				s.opFailed(interview.OpSubmit, err)
				return
			}
			if res.Warning != nil {
				s.sendWarning("Your answer was saved locally but the server did not confirm it: " + res.Warning.Error())
			}
		})

	case TypeAnswerRegenerate:
		s.background(func() {
			if outcome := s.answers.Regenerate(ctx); outcome == answer.OutcomeNoQuestion {
				s.sendWarning("No question to regenerate an answer for")
			}
		})

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Unknown client message")
		s.sendError(CodeBadMessage, fmt.Sprintf("unknown message type %q", msg.Type), false)
	}
}

func (s *Session) handleListen(ctx context.Context, action string) {
	switch action {
	case recognition.ActionStart:
		if err := s.controller.Start(ctx); err != nil {
			s.sendError(CodeRecognition, "Speech recognition could not be started. Try again.", true)
		}
	case recognition.ActionStop:
		if err := s.controller.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop recognition")
		}
		s.pipeline.Flush()
	default:
		s.sendError(CodeBadMessage, fmt.Sprintf("unknown listen action %q", action), false)
	}
}

func recognitionEvent(msg ClientMessage) (recognition.Event, error) {
	t, err := recognition.ParseEventType(msg.Event)
	if err != nil {
		return recognition.Event{}, err
	}
	switch t {
	case recognition.EventPartial:
		return recognition.Partial(msg.Text), nil
	case recognition.EventFinal:
		return recognition.Final(msg.Text, msg.Confidence), nil
	case recognition.EventError:
		return recognition.Failed(recognition.ParseErrorKind(msg.Error)), nil
	case recognition.EventEnded:
		return recognition.Ended(), nil
	default:
		return recognition.Started(), nil
	}
}

func (s *Session) enqueueTransition(op interview.Op, fn func(context.Context) (interview.Session, error)) {
	s.enqueue(func(ctx context.Context) {
		if _, err := fn(ctx); err != nil {
			s.opFailed(op, err)
		}
	})
}

func (s *Session) opFailed(op interview.Op, err error) {
	code := CodeTransition
	if errors.Is(err, interview.ErrInvalidTransition) || errors.Is(err, interview.ErrNoSession) || errors.Is(err, interview.ErrNoQuestion) {
		code = CodeInvalidOperation
	}
	s.logger.Warn().Err(err).Str("op", string(op)).Msg("Interview operation failed")
	s.sendError(code, err.Error(), false)
}

// onTransition is the interview machine observer.
func (s *Session) onTransition(op interview.Op, sess interview.Session, q *interview.Question) {
	if sess.ID != "" {
		s.bind(sess.ID)
	}

	msg := sessionMessage{Type: TypeSession, Op: op, Session: sess, Question: q}
	if op == interview.OpSubmit {
		msg.History = s.machine.History()
	}
	s.send(msg)

	if s.deps.Publisher != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), publishTimeout)
		if err := s.deps.Publisher.PublishTransition(pctx, op, sess); err != nil {
			s.logger.Warn().Err(err).Str("op", string(op)).Msg("Failed to publish transition")
		}
		cancel()
	}

	if q != nil && s.deps.Synthesizer != nil && !sess.Status.IsTerminal() {
		text := q.Text
		s.background(func() { s.readAloud(text) })
	}
}

// bind associates the connection with an interview for beacon routing.
func (s *Session) bind(interviewID string) {
	s.mu.Lock()
	previous := s.interviewID
	s.interviewID = interviewID
	s.mu.Unlock()
	if previous == interviewID {
		return
	}
	if previous != "" {
		s.hub.unregister(previous, s)
	}
	s.hub.register(interviewID, s)
	s.answers.SetSessionID(interviewID)
	s.logger.Debug().Str("interview_id", interviewID).Msg("Connection bound to interview")
}

// beaconAbandon handles an abandon beacon that arrived over HTTP.
func (s *Session) beaconAbandon(reason string) {
	if reason == "" || reason == interview.ReasonBrowserClosed {
		s.guard.Unload()
		return
	}
	if _, err := s.machine.Abandon(reason); err != nil {
		s.logger.Debug().Err(err).Str("reason", reason).Msg("Beacon abandon ignored")
	}
}

// close ends the connection without abandoning the interview.
func (s *Session) close() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
	s.conn.Close()
}

func (s *Session) readAloud(text string) {
	pcm, err := s.deps.Synthesizer.Synthesize(s.ctx, text)
	if err != nil {
		if errors.Is(err, readaloud.ErrBusy) || errors.Is(err, context.Canceled) {
			s.logger.Debug().Err(err).Msg("Question read-aloud skipped")
			return
		}
		s.logger.Warn().Err(err).Msg("Question read-aloud failed")
		return
	}
	for start := 0; start < len(pcm); start += audioChunkSize {
		end := min(start+audioChunkSize, len(pcm))
		if err := s.sendAudio(pcm[start:end]); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to send read-aloud audio")
			return
		}
	}
}

// recognition.Listener

func (s *Session) OnInterim(text string) {
	s.send(interimMessage{Type: TypeInterim, Text: text})
}

func (s *Session) OnFinal(text string, confidence float64) {
	if !s.pipeline.Submit(text, confidence) {
		s.logger.Debug().Msg("Dropping final after pipeline stopped")
	}
}

func (s *Session) OnListening(listening bool) {
	s.send(listeningMessage{Type: TypeListening, Listening: listening})
}

func (s *Session) OnFatal(err *recognition.FatalError) {
	s.sendError(CodeRecognition, err.Message(), true)
}

// answer.Sink

func (s *Session) AnswerGenerating(questionID string) {
	s.send(generatingMessage{Type: TypeAnswerGenerating, QuestionID: questionID})
}

func (s *Session) AnswerReady(a *answer.ReferenceAnswer) {
	s.send(answerMessage{Type: TypeAnswer, Answer: a})
}

func (s *Session) AnswerFailed(questionID string, err error) {
	s.logger.Debug().Err(err).Str("question_id", questionID).Msg("Sending fallback notice")
	s.sendError(CodeGeneration, "The AI answer could not be generated, showing a template instead.", false)
}

// history.Sink

func (s *Session) MatchUpdated(m *history.Match) {
	s.send(matchMessage{Type: TypeMatch, Match: m})
}

func (s *Session) MatchFailed(err error) {
	s.sendError(CodeMatch, "Could not look up similar questions from earlier interviews.", false)
}

// PipelineSink

func (s *Session) SegmentFinalized(seg segment.Segment) {
	s.send(segmentMessage{Type: TypeSegment, Segment: seg})
}

func (s *Session) QuestionDetected(q question.Question) {
	s.send(questionMessage{Type: TypeQuestion, Question: q})
}

func (s *Session) sendRecognizerCommand(action string) error {
	return s.write(recognizerMessage{Type: TypeRecognizer, Action: action})
}

func (s *Session) sendWarning(message string) {
	s.send(warningMessage{Type: TypeWarning, Message: message})
}

func (s *Session) sendError(code, message string, fatal bool) {
	s.send(errorMessage{Type: TypeError, Code: code, Message: message, Fatal: fatal})
}

func (s *Session) send(v any) {
	if err := s.write(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write message")
	}
}

func (s *Session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return errSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) sendAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return errSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return err
	}
	s.metrics.RecordAudioBytes("out", int64(len(pcm)))
	return nil
}
