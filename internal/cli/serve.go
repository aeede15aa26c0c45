package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/waveform-labs/melodex/internal/api/handlers"
	"github.com/waveform-labs/melodex/internal/config"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/jobs"
	"github.com/waveform-labs/melodex/internal/ml"
	"github.com/waveform-labs/melodex/internal/search"
	"github.com/waveform-labs/melodex/internal/server"
	"github.com/waveform-labs/melodex/internal/session"
	"github.com/waveform-labs/melodex/internal/spotify"
	"github.com/waveform-labs/melodex/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the search server",
		Long:  "Start the melodex search server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	var textSearcher search.TextSearcher
	if cfg.HasSpotify() {
		textSearcher = spotify.New(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		log.Println("spotify catalog client ready")
	} else {
		textSearcher = &NoOpTextSearcher{}
		log.Println("spotify credentials not set, text search disabled")
	}

	var imageSearcher search.ImageSearcher
	var audioSearcher search.AudioSearcher
	if cfg.HasML() {
		mlClient := ml.NewClient(cfg.MLServiceURL, cfg.MLAPIKey)
		imageSearcher = mlClient
		audioSearcher = mlClient
		log.Printf("ml service client ready (%s)", cfg.MLServiceURL)
	} else {
		imageSearcher = &NoOpImageSearcher{}
		audioSearcher = &NoOpAudioSearcher{}
		log.Println("ml service url not set, image and audio search disabled")
	}

	index := history.NewIndex(cfg.HistoryCapacity)
	pipeline := search.NewPipeline(textSearcher, imageSearcher, audioSearcher, index)

	store := session.NewStore()
	sessionCfg := session.DefaultConfig()
	sessionCfg.SweepInterval = cfg.SweepInterval
	sessionCfg.IdleTimeout = cfg.IdleTimeout
	sessionCfg.DebounceWindow = cfg.DebounceWindow
	manager := session.NewManagerWithConfig(store, pipeline, index, sessionCfg, session.RealClock())

	sweepWorker := jobs.NewWorker(manager, sessionCfg.SweepInterval)
	go sweepWorker.Start(ctx)
	log.Println("session sweep worker started")

	routerCfg := server.RouterConfig{
		SearchHandler: handlers.NewSearchHandler(pipeline, manager, index),
		WSHandler:     handlers.NewWSHandler(manager),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	sweepWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type NoOpTextSearcher struct{}

func (s *NoOpTextSearcher) Search(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error) {
	return nil, fmt.Errorf("text search not configured: MELODEX_SPOTIFY_CLIENT_ID required")
}

type NoOpImageSearcher struct{}

func (s *NoOpImageSearcher) SearchByImage(ctx context.Context, imageRef string) ([]*domain.CandidateTrack, error) {
	return nil, fmt.Errorf("image search not configured: MELODEX_ML_SERVICE_URL required")
}

type NoOpAudioSearcher struct{}

func (s *NoOpAudioSearcher) SearchByAudio(ctx context.Context, audioRef string) ([]*domain.CandidateTrack, error) {
	return nil, fmt.Errorf("audio search not configured: MELODEX_ML_SERVICE_URL required")
}
