package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_copilot_active_sessions",
		Help: "Number of connected copilot sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_copilot_sessions_total",
		Help: "Total number of copilot sessions served",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_copilot_session_duration_seconds",
		Help:    "Duration of copilot sessions in seconds",
		Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
	})

	// Recognition metrics
	recognitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_recognition_errors_total",
		Help: "Recognition errors by kind",
	}, []string{"kind"})

	recognitionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_recognition_restarts_total",
		Help: "Recognition auto-restart attempts by result",
	}, []string{"result"}) // scheduled, succeeded, failed, gave_up, visibility

	// Pipeline metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_segments_total",
		Help: "Finalized transcript segments by kind",
	}, []string{"kind"})

	questionsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_copilot_questions_detected_total",
		Help: "Segments classified as questions",
	})

	answerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_answer_requests_total",
		Help: "Reference answer requests by outcome",
	}, []string{"outcome"})

	answerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_copilot_answer_latency_seconds",
		Help:    "Reference answer generation latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	matchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_match_requests_total",
		Help: "Historical question match requests by outcome",
	}, []string{"outcome"})

	// Interview metrics
	interviewTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_interview_transitions_total",
		Help: "Interview session transitions by operation and result",
	}, []string{"op", "result"})

	// Backend metrics
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_backend_requests_total",
		Help: "Backend API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_copilot_backend_latency_seconds",
		Help:    "Backend API latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"endpoint"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "interview_copilot_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Event publishing
	eventPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_event_publishes_total",
		Help: "Published events by topic and status",
	}, []string{"topic", "status"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_copilot_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // "in" recognition audio, "out" read-aloud audio
)

// SessionMetrics tracks metrics for a single copilot session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Repeated calls are ignored.
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAudioBytes records audio bytes processed
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordRecognitionError counts a recognizer error by kind.
func RecordRecognitionError(kind string) {
	recognitionErrors.WithLabelValues(kind).Inc()
}

// RecordRecognitionRestart counts an auto-restart step.
func RecordRecognitionRestart(result string) {
	recognitionRestarts.WithLabelValues(result).Inc()
}

// RecordSegment counts a finalized segment.
func RecordSegment(kind string) {
	segmentsTotal.WithLabelValues(kind).Inc()
}

// RecordQuestionDetected counts a question-like segment.
func RecordQuestionDetected() {
	questionsDetected.Inc()
}

// RecordAnswerRequest counts an answer request outcome.
func RecordAnswerRequest(outcome string) {
	answerRequests.WithLabelValues(outcome).Inc()
}

// ObserveAnswerLatency records how long a generation call took.
func ObserveAnswerLatency(d time.Duration) {
	answerLatency.Observe(d.Seconds())
}

// RecordMatchRequest counts a historical match outcome.
func RecordMatchRequest(outcome string) {
	matchRequests.WithLabelValues(outcome).Inc()
}

// RecordInterviewTransition counts an interview state transition.
func RecordInterviewTransition(op, result string) {
	interviewTransitions.WithLabelValues(op, result).Inc()
}

// RecordBackendRequest records a backend call.
func RecordBackendRequest(endpoint, status string, d time.Duration) {
	backendRequests.WithLabelValues(endpoint, status).Inc()
	backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordEventPublish counts a publish attempt.
func RecordEventPublish(topic string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	eventPublishes.WithLabelValues(topic, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
