package copilot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/interview-copilot/internal/answer"
	"github.com/lexiqai/interview-copilot/internal/history"
	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/question"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

const (
	finalsQueueSize = 256
	publishTimeout  = 5 * time.Second
)

// AnswerRequester admits a question for reference answer generation. A nil
// run means the question was not admitted.
type AnswerRequester interface {
	Admit(questionID, questionText string) (run func(context.Context) answer.Outcome, outcome answer.Outcome)
}

// HistoryMatcher admits a question for a lookup of earlier answers. A nil
// run means the lookup was debounced.
type HistoryMatcher interface {
	Admit(questionText string) (run func(context.Context) history.Outcome, outcome history.Outcome)
}

var (
	_ AnswerRequester = (*answer.Orchestrator)(nil)
	_ HistoryMatcher  = (*history.Matcher)(nil)
)

// Publisher forwards transcript and interview events downstream.
type Publisher interface {
	PublishSegment(ctx context.Context, sessionID string, seg segment.Segment) error
	PublishQuestion(ctx context.Context, sessionID string, q question.Question) error
	PublishTransition(ctx context.Context, op interview.Op, s interview.Session) error
}

// PipelineSink receives finalized segments and detected questions.
type PipelineSink interface {
	SegmentFinalized(seg segment.Segment)
	QuestionDetected(q question.Question)
}

// PipelineConfig holds the segmentation and detection settings.
type PipelineConfig struct {
	Thresholds         segment.Thresholds
	DuplicateThreshold float64
	// IdleFlush is how often pending text is checked for the finalize gap. Zero disables the sweep.
	IdleFlush time.Duration
}

type final struct {
	text       string
	confidence float64
	at         time.Time
}

// Pipeline owns the segmenter for one session. Finals are applied in
// arrival order on a single goroutine; each detected question fans out to
// answer generation and historical matching.
type Pipeline struct {
	sessionID string
	segmenter *segment.Segmenter
	registry  *question.Registry
	answers   AnswerRequester
	matcher   HistoryMatcher
	publisher Publisher
	sink      PipelineSink
	idleFlush time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	finals  chan final
	flushes chan struct{}
	done    chan struct{}
	fanout  sync.WaitGroup
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineClock replaces time.Now, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline returns a pipeline for sessionID. publisher may be nil.
func NewPipeline(sessionID string, answers AnswerRequester, matcher HistoryMatcher, publisher Publisher, sink PipelineSink, cfg PipelineConfig, logger zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		sessionID: sessionID,
		segmenter: segment.New(sessionID, cfg.Thresholds, nil),
		registry:  question.NewRegistry(sessionID, cfg.DuplicateThreshold),
		answers:   answers,
		matcher:   matcher,
		publisher: publisher,
		sink:      sink,
		idleFlush: cfg.IdleFlush,
		now:       time.Now,
		logger:    observability.WithComponent(logger, "pipeline"),
		finals:    make(chan final, finalsQueueSize),
		flushes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues a final recognition result. The arrival time is taken now.
// It returns false once the pipeline has stopped.
func (p *Pipeline) Submit(text string, confidence float64) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	f := final{text: text, confidence: confidence, at: p.now()}
	select {
	case p.finals <- f:
		return true
	case <-p.done:
		return false
	}
}

// Flush finalizes pending text, for example after listening is stopped.
func (p *Pipeline) Flush() {
	select {
	case p.flushes <- struct{}{}:
	default:
	}
}

// Run processes finals until ctx is done. Pending text is flushed and
// in-flight lookups are awaited before it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	var tick <-chan time.Time
	if p.idleFlush > 0 {
		ticker := time.NewTicker(p.idleFlush)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case f := <-p.finals:
			p.emit(ctx, p.segmenter.AddFinal(f.text, f.confidence, f.at))

		case <-p.flushes:
			p.emit(ctx, p.segmenter.Flush(p.now()))

		case <-tick:
			p.emit(ctx, p.segmenter.FlushIdle(p.now()))

		case <-ctx.Done():
			p.drain(ctx)
			p.fanout.Wait()
			p.logger.Debug().Int("segments", len(p.segmenter.History())).Msg("Pipeline stopped")
			return nil
		}
	}
}

// drain applies queued finals and flushes what is pending.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case f := <-p.finals:
			p.emit(ctx, p.segmenter.AddFinal(f.text, f.confidence, f.at))
		default:
			p.emit(ctx, p.segmenter.Flush(p.now()))
			return
		}
	}
}

func (p *Pipeline) emit(ctx context.Context, segs []segment.Segment) {
	for _, seg := range segs {
		observability.RecordSegment(seg.Kind.String())
		p.sink.SegmentFinalized(seg)
		p.publish(ctx, func(pctx context.Context) error {
			return p.publisher.PublishSegment(pctx, p.sessionID, seg)
		})

		if seg.IsPause() {
			continue
		}
		q, ok := p.registry.Detect(seg.ID, seg.Text, seg.CreatedAt)
		if !ok {
			continue
		}
		observability.RecordQuestionDetected()
		p.logger.Info().Str("question_id", q.ID).Str("segment_id", seg.ID).Msg("Question detected")
		p.sink.QuestionDetected(q)
		p.publish(ctx, func(pctx context.Context) error {
			return p.publisher.PublishQuestion(pctx, p.sessionID, q)
		})

		if ctx.Err() == nil {
			p.dispatch(ctx, q)
		}
	}
}

// dispatch admits q on the pipeline goroutine, so throttle and debounce
// follow detection order, then runs the admitted calls concurrently.
func (p *Pipeline) dispatch(ctx context.Context, q question.Question) {
	generate, answerO := p.answers.Admit(q.ID, q.Text)
	lookup, matchO := p.matcher.Admit(q.Text)
	if generate == nil && lookup == nil {
		p.logger.Debug().
			Str("question_id", q.ID).
			Str("answer", answerO.String()).
			Str("match", string(matchO)).
			Msg("Question skipped")
		return
	}

	p.fanout.Add(1)
	go func() {
		defer p.fanout.Done()

		var g errgroup.Group
		if generate != nil {
			g.Go(func() error {
				answerO = generate(ctx)
				return nil
			})
		}
		if lookup != nil {
			g.Go(func() error {
				matchO = lookup(ctx)
				return nil
			})
		}
		_ = g.Wait()

		p.logger.Debug().
			Str("question_id", q.ID).
			Str("answer", answerO.String()).
			Str("match", string(matchO)).
			Msg("Question handled")
	}()
}

func (p *Pipeline) publish(ctx context.Context, fn func(context.Context) error) {
	if p.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := fn(pctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish event")
	}
}
