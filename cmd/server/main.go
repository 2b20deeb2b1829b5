package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/lexiqai/interview-copilot/internal/answer"
	"github.com/lexiqai/interview-copilot/internal/audio"
	"github.com/lexiqai/interview-copilot/internal/backend"
	"github.com/lexiqai/interview-copilot/internal/config"
	"github.com/lexiqai/interview-copilot/internal/copilot"
	"github.com/lexiqai/interview-copilot/internal/events"
	"github.com/lexiqai/interview-copilot/internal/history"
	"github.com/lexiqai/interview-copilot/internal/httpapi"
	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/readaloud"
	"github.com/lexiqai/interview-copilot/internal/recognition"
	"github.com/lexiqai/interview-copilot/internal/resilience"
	"github.com/lexiqai/interview-copilot/internal/segment"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()
	version := config.GetEnv("VERSION", "dev")

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("backend_url", cfg.BackendURL).
		Str("recognition_mode", cfg.RecognitionMode).
		Str("answer_provider", cfg.AnswerProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("kafka_enabled", cfg.KafkaEnabled).
		Bool("read_aloud_enabled", cfg.ReadAloudEnabled).
		Str("version", version).
		Msg("Interview Copilot gateway starting")

	if err := run(cfg, version, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server exited gracefully")
}

func run(cfg *config.Config, version string, logger zerolog.Logger) error {
	d := cfg.Durations()

	backendBreaker := resilience.NewCircuitBreaker("backend", cfg.CircuitBreakerMaxFailures, d.BreakerReset,
		resilience.WithFailureClassifier(backend.IsServerFailure),
		resilience.WithStateChange(logBreakerChange(logger)),
	)
	backendClient := backend.NewClient(backend.Config{
		BaseURL:       cfg.BackendURL,
		Token:         cfg.BackendToken,
		Timeout:       d.BackendTimeout,
		BeaconTimeout: d.BeaconTimeout,
	}, backendBreaker, logger)

	generator, err := newGenerator(cfg, d, backendClient)
	if err != nil {
		return err
	}
	fallbacks, err := answer.LoadFallbacks(cfg.FallbackTemplatesPath)
	if err != nil {
		return fmt.Errorf("load fallback templates: %w", err)
	}

	publisher := events.New(&events.Config{
		Brokers:       cfg.KafkaBrokers,
		TopicSegments: cfg.KafkaTopicSegments,
		TopicSessions: cfg.KafkaTopicSessions,
		Enabled:       cfg.KafkaEnabled,
	}, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()

	deps := copilot.Dependencies{
		Backend:   backendClient,
		Beacon:    backendClient,
		Generator: generator,
		Fallbacks: fallbacks,
		Matches:   backendClient,
		Publisher: publisher,
	}
	if cfg.ReadAloudEnabled {
		deps.Synthesizer = readaloud.NewCartesia(readaloud.Config{
			APIKey:     cfg.CartesiaAPIKey,
			VoiceID:    cfg.CartesiaVoiceID,
			ModelID:    cfg.CartesiaModelID,
			SampleRate: cfg.ReadAloudSampleRate,
		}, logger)
	}
	if cfg.RecognitionMode == config.RecognitionModeDeepgram {
		deepgramBreaker := resilience.NewCircuitBreaker("deepgram", cfg.CircuitBreakerMaxFailures, d.BreakerReset,
			resilience.WithStateChange(logBreakerChange(logger)),
		)
		dgCfg := recognition.DeepgramConfig{
			APIKey:     cfg.DeepgramAPIKey,
			Model:      cfg.DeepgramModel,
			Language:   cfg.DeepgramLanguage,
			SampleRate: cfg.AudioSampleRate,
			BufferSize: cfg.AudioBufferSize,
			VAD: audio.VADConfig{
				EnergyThreshold: cfg.VADEnergyThreshold,
				NoSpeechTimeout: d.NoSpeech,
			},
		}
		deps.NewRecognizer = func() copilot.AudioRecognizer {
			return recognition.NewDeepgram(dgCfg, deepgramBreaker, logger)
		}
	}

	hub := copilot.NewHub(deps, sessionSettings(cfg, d), logger)

	readiness := map[string]observability.HealthCheckFunc{
		"backend": func(ctx context.Context) (bool, error) {
			retryCfg := resilience.DefaultRetryConfig()
			retryCfg.MaxAttempts = cfg.ReadinessRetryAttempts
			err := resilience.Retry(ctx, backendClient.Ping, retryCfg, resilience.IsRetryableNetworkError)
			return err == nil, err
		},
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: httpapi.NewRouter(hub, backendClient, httpapi.Options{
			Version:         version,
			MetricsEnabled:  cfg.MetricsEnabled,
			ReadinessChecks: readiness,
		}, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/v1/copilot/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if grpcLis != nil {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		g.Go(func() error {
			logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC health server listening")
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if healthServer != nil {
			healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		}
		if err := hub.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Sessions did not close in time")
		}
		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := backendClient.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Abandon beacons still in flight")
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newGenerator(cfg *config.Config, d config.Durations, backendClient *backend.Client) (answer.Generator, error) {
	if cfg.AnswerProvider != config.AnswerProviderOpenAI {
		return backendClient, nil
	}
	opts := []answer.OpenAIOption{answer.WithHTTPTimeout(d.AnswerTimeout)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, answer.WithBaseURL(cfg.OpenAIBaseURL))
	}
	gen, err := answer.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai generator: %w", err)
	}
	return gen, nil
}

func sessionSettings(cfg *config.Config, d config.Durations) copilot.Settings {
	return copilot.Settings{
		Answer: answer.Config{Throttle: d.AnswerThrottle, Timeout: d.AnswerTimeout},
		Match: history.Config{
			Debounce: d.MatchDebounce,
			Limit:    cfg.MatchLimit,
			Timeout:  d.MatchTimeout,
			ErrorTTL: d.MatchErrorTTL,
		},
		Pipeline: copilot.PipelineConfig{
			Thresholds: segment.Thresholds{
				NewSegmentGap: d.SegmentNewGap,
				PauseGap:      d.SegmentPauseGap,
				FinalizeGap:   d.SegmentFinalize,
				MaxChars:      cfg.SegmentMaxChars,
			},
			DuplicateThreshold: cfg.QuestionDuplicateThreshold,
			IdleFlush:          d.IdleFlush,
		},
		Restart: resilience.RestartPolicy{
			InitialBackoff: d.RestartBackoff,
			Multiplier:     cfg.RestartBackoffMultiplier,
			MaxBackoff:     30 * time.Second,
			MaxAttempts:    cfg.RestartMaxAttempts,
		},
		BackgroundLimit: d.BackgroundLimit,
	}
}

func logBreakerChange(logger zerolog.Logger) func(string, resilience.CircuitState) {
	return func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("breaker", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	}
}
