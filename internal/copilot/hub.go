package copilot

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
)

// Hub accepts copilot connections and tracks them by interview so the
// abandon beacon can reach a live session.
type Hub struct {
	deps     Dependencies
	settings Settings
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu          sync.Mutex
	byInterview map[string]*Session
	sessions    map[*Session]struct{}
	closed      bool
	wg          sync.WaitGroup
}

// NewHub returns a hub that builds sessions from deps and settings.
func NewHub(deps Dependencies, settings Settings, logger zerolog.Logger) *Hub {
	return &Hub{
		deps:     deps,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the app origin; the gateway sits behind the same proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      observability.WithComponent(logger, "copilot_hub"),
		byInterview: make(map[string]*Session),
		sessions:    make(map[*Session]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the session until the socket
// closes. The optional interviewId query parameter attaches an existing interview.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	s := newSession(conn, h, h.deps, h.settings)
	if !h.add(s) {
		s.close()
		return
	}
	defer h.remove(s)

	s.run(context.WithoutCancel(r.Context()), r.URL.Query().Get("interviewId"))
}

// Abandon routes an abandon beacon to the live session for interviewID.
// It reports false when no session is bound to it.
func (h *Hub) Abandon(interviewID, reason string) bool {
	h.mu.Lock()
	s, ok := h.byInterview[interviewID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.beaconAbandon(reason)
	return true
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every connection without abandoning their interviews
// and waits for the sessions to finish or ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	h.logger.Info().Int("sessions", len(open)).Msg("Closing copilot sessions")
	for _, s := range open {
		s.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Hub) register(interviewID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.byInterview[interviewID]; ok && prev != s {
		h.logger.Info().Str("interview_id", interviewID).Str("previous", prev.ID()).Str("connection_id", s.ID()).Msg("Interview moved to a new connection")
	}
	h.byInterview[interviewID] = s
}

func (h *Hub) unregister(interviewID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byInterview[interviewID] == s {
		delete(h.byInterview, interviewID)
	}
}

func (h *Hub) owns(interviewID string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byInterview[interviewID] == s
}
