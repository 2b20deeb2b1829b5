// Package httpapi exposes the gateway's HTTP surface: the copilot
// WebSocket, the abandon beacon, health and metrics.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/interview"
	"github.com/lexiqai/interview-copilot/internal/observability"
)

const maxBeaconBody = 1 << 10

// Sessions serves copilot WebSockets and reaches live sessions by interview.
type Sessions interface {
	http.Handler
	Abandon(interviewID, reason string) bool
}

// Options configures the router.
type Options struct {
	Version        string
	MetricsEnabled bool
	// ReadinessChecks are run by /ready.
	ReadinessChecks map[string]observability.HealthCheckFunc
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

// NewRouter constructs the HTTP router for the gateway. Beacons for
// interviews without a live session go straight to beacon.
func NewRouter(sessions Sessions, beacon interview.Beacon, opts Options, logger zerolog.Logger) http.Handler {
	logger = observability.WithComponent(logger, "http")
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", observability.HealthCheckHandler(opts.Version))
	r.Get("/ready", observability.ReadinessHandler(opts.Version, opts.ReadinessChecks))
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/copilot/ws", sessions.ServeHTTP)

		abandon := abandonHandler(sessions, beacon, logger)
		r.Put("/interviews/{id}/abandon", abandon)
		// navigator.sendBeacon can only POST
		r.Post("/interviews/{id}/abandon", abandon)
	})

	return r
}

// abandonHandler always answers 202: the caller is a page that is going away.
func abandonHandler(sessions Sessions, beacon interview.Beacon, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		reason := interview.ReasonBrowserClosed

		var req abandonRequest
		if body, _ := io.ReadAll(io.LimitReader(r.Body, maxBeaconBody)); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				logger.Debug().Err(err).Str("interview_id", id).Msg("Ignoring malformed beacon body")
			}
		}
		if given := strings.TrimSpace(req.Reason); given != "" {
			reason = given
		}

		if sessions.Abandon(id, reason) {
			logger.Info().Str("interview_id", id).Str("reason", reason).Msg("Beacon routed to live session")
		} else {
			beacon.SendAbandon(id, reason)
			logger.Info().Str("interview_id", id).Str("reason", reason).Msg("Beacon forwarded to backend")
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
