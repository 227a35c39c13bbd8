package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/events"
	"github.com/lexiqai/tts-gateway/internal/expiry"
	"github.com/lexiqai/tts-gateway/internal/gateway"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/tts"
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

	logger.Info().
		Str("port", cfg.Port).
		Str("audio_dir", cfg.AudioDir).
		Dur("audio_ttl", cfg.AudioTTL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("TTS Gateway starting")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("TTS Gateway stopped with error")
	}
	logger.Info().Msg("Server exited gracefully")
}

func run(cfg *config.Config) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audio store, with expiry rescheduled for files left by a previous run
	store := audio.NewStore(cfg.AudioDir)
	if err := store.Init(); err != nil {
		return err
	}
	leftover, err := store.Scan()
	if err != nil {
		return err
	}

	// Event fan-out: websocket subscribers plus NATS when configured
	hub := events.NewHub()
	publishers := events.Multi{hub}
	checks := map[string]observability.HealthCheckFunc{
		"audio_store": store.HealthCheck,
	}

	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publishers = append(publishers, natsPublisher)
		checks["nats"] = natsPublisher.HealthCheck
	}

	scheduler := expiry.NewScheduler(cfg.AudioTTL, store, publishers)
	if n := scheduler.Recover(leftover); n > 0 {
		logger.Info().Int("artifacts", n).Msg("Rescheduled expiry for existing artifacts")
	}

	watcher, err := audio.NewWatcher(store, func(name string) {
		// Expiry removes entries before deleting, so a pending name was removed externally
		if !scheduler.IsPending(name) {
			return
		}
		observability.RecordArtifactEvent("removed")
		logger.Warn().Str("artifact", name).Msg("Artifact removed before expiry")
		_ = publishers.Publish(ctx, events.Event{
			Type:     events.ArtifactRemoved,
			Artifact: name,
			Time:     time.Now(),
		})
	})
	if err != nil {
		return err
	}

	elevenLabs := tts.NewElevenLabsClient(cfg)
	checks["elevenlabs"] = elevenLabs.HealthCheck

	handler := gateway.NewHandler(cfg, elevenLabs, store, scheduler, publishers)
	router := gateway.NewRouter(gateway.RouterOptions{
		Synthesize:      handler.Synthesize,
		Audio:           store.Handler(),
		Events:          hub.ServeWS,
		ReadinessChecks: checks,
		AllowedOrigins:  cfg.AllowedOrigins(),
		MetricsEnabled:  cfg.MetricsEnabled,
	})

	// No WriteTimeout: a synthesis may legitimately outlast any fixed bound
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/synthesize", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error { return scheduler.Run(gctx, cfg.ExpirySweepInterval) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })

	if cfg.GRPCHealthPort != "" {
		grpcHealth := observability.NewGRPCHealthServer(checks, 10*time.Second)
		g.Go(func() error { return grpcHealth.Serve(gctx, ":"+cfg.GRPCHealthPort) })
	}

	return g.Wait()
}
