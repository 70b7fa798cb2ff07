// Command voxhire is the main entry point for the VoxHire interview service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxhire/voxhire/internal/app"
	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/health"
	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/resilience"
	"github.com/voxhire/voxhire/internal/server"
	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/internal/transcript/phonetic"
	"github.com/voxhire/voxhire/pkg/audio/pipe"
	"github.com/voxhire/voxhire/pkg/backend"
	"github.com/voxhire/voxhire/pkg/realtime"
	"github.com/voxhire/voxhire/pkg/realtime/webrtc"
	"github.com/voxhire/voxhire/pkg/realtime/wsaudio"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// .env is loaded before the config so env overrides pick it up.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxhire: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxhire: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxhire: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxhire starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"transport", string(cfg.Realtime.Transport),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObs, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxhire",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		obsCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(obsCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Script store ──────────────────────────────────────────────────────────
	var (
		scriptStore store.ScriptStore
		checkers    []health.Checker
	)
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to PostgreSQL", "err", err)
			return 1
		}
		defer pg.Close()
		scriptStore = pg
		checkers = append(checkers, health.Checker{Name: "store", Check: pg.Ping})
		slog.Info("script store ready", "backend", "postgres")
	} else {
		scriptStore = store.NewMemoryStore()
		slog.Warn("no postgres_dsn configured — scripts are held in memory only")
	}

	// ── Backend client ────────────────────────────────────────────────────────
	be := backend.New(cfg.Backend.BaseURL, backend.WithAPIKey(cfg.Backend.APIKey))
	creds := resilience.NewGuardedIssuer(be, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "backend-credentials",
	}))

	// ── Realtime transport ────────────────────────────────────────────────────
	mic := pipe.NewOpener(cfg.Realtime.AudioSource)
	connect, err := buildConnector(cfg, creds, mic)
	if err != nil {
		slog.Error("failed to build realtime transport", "err", err)
		return 1
	}

	// ── Transcript corrector ──────────────────────────────────────────────────
	var corrector transcript.Corrector
	if vocab := cfg.Interviews.Vocabulary; len(vocab) > 0 {
		corrector = transcript.NewVocabularyCorrector(phonetic.New(), vocab)
		slog.Info("transcript correction enabled", "terms", len(vocab))
	}

	// ── Session manager ───────────────────────────────────────────────────────
	manager, err := app.NewManager(app.ManagerConfig{
		Config:    cfg,
		Store:     scriptStore,
		Connect:   connect,
		Metrics:   metrics,
		Corrector: corrector,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Server:  cfg.Server,
		Manager: manager,
		Store:   scriptStore,
		Backend: be,
		Health:  health.New(checkers...),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	manager.Shutdown()
	slog.Info("goodbye")
	return 0
}

// ── Transport wiring ──────────────────────────────────────────────────────────

// buildConnector wraps the configured transport into the uniform
// [app.ChannelFactory] shape.
func buildConnector(cfg *config.Config, creds resilience.CredentialIssuer, mic *pipe.Opener) (app.ChannelFactory, error) {
	switch cfg.Realtime.Transport {
	case config.TransportWebRTC:
		var opts []webrtc.Option
		if cfg.Realtime.ProviderURL != "" {
			opts = append(opts, webrtc.WithProviderURL(cfg.Realtime.ProviderURL))
		}
		if cfg.Realtime.Model != "" {
			opts = append(opts, webrtc.WithModel(cfg.Realtime.Model))
		}
		client := webrtc.NewSignalingClient(creds, mic, opts...)
		return func(ctx context.Context, profile config.InterviewProfile, interviewContext map[string]string) (realtime.Channel, error) {
			handle, err := client.Negotiate(ctx, webrtc.NegotiateConfig{
				Voice:            profile.Voice,
				InterviewContext: interviewContext,
			})
			if err != nil {
				return nil, err
			}
			return webrtc.NewChannel(handle), nil
		}, nil

	case config.TransportWebSocket:
		var opts []wsaudio.Option
		if cfg.Realtime.ProviderURL != "" {
			opts = append(opts, wsaudio.WithBaseURL(cfg.Realtime.ProviderURL))
		}
		if cfg.Realtime.Model != "" {
			opts = append(opts, wsaudio.WithModel(cfg.Realtime.Model))
		}
		dialer := wsaudio.NewDialer(creds, mic, opts...)
		return func(ctx context.Context, profile config.InterviewProfile, interviewContext map[string]string) (realtime.Channel, error) {
			return dialer.Dial(ctx, wsaudio.DialConfig{
				Voice:            profile.Voice,
				InterviewContext: interviewContext,
			})
		}, nil

	default:
		return nil, fmt.Errorf("unknown realtime transport %q", cfg.Realtime.Transport)
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
