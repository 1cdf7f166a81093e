package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/coaching"
	"github.com/windfall/phonoecho/internal/config"
	"github.com/windfall/phonoecho/internal/handler/http"
	"github.com/windfall/phonoecho/internal/handler/ws"
	"github.com/windfall/phonoecho/internal/haptics"
	"github.com/windfall/phonoecho/internal/logger"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/repository"
	"github.com/windfall/phonoecho/internal/server"
	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting phonoecho")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Manager
	if cfg.MetricsEnabled {
		m = metrics.NewManager(metrics.WithRuntimeCollectors())
	}

	healthHandler := http.NewHealthHandler()
	healthHandler.SetReady(false)

	// Initialize Redis client
	var redisClient *client.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = client.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis client")
		} else {
			healthHandler.AddCheck("redis", redisClient)
			log.Info().Msg("Redis client initialized")
		}
	}

	// Initialize Postgres client
	var postgresClient *client.PostgresClient
	if cfg.DatabaseURL != "" {
		postgresClient, err = client.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			if cfg.StoreBackend == config.StorePostgres {
				log.Fatal().Err(err).Msg("Failed to initialize Postgres client")
			}
			log.Error().Err(err).Msg("Failed to initialize Postgres client")
		} else {
			healthHandler.AddCheck("postgres", postgresClient)
			log.Info().Msg("Postgres client initialized")
		}
	}

	// Google Cloud credentials shared by Gemini, GCS and Pub/Sub
	var saJSON []byte
	if cfg.GeminiSABase64 != "" {
		saJSON, err = client.DecodeServiceAccount(cfg.GeminiSABase64)
		if err != nil {
			log.Error().Err(err).Msg("Failed to decode GEMINI_SA_BASE64")
		}
	}

	// Initialize repositories
	lessonRepo := repository.NewFileLessonRepository(cfg.DatasetDir, cfg.LessonTTL)
	scoreRepo := newScoreRepository(cfg, redisClient, postgresClient, log)

	var artifactStore service.ArtifactStore = service.NewMemoryArtifactStore(1024, cfg.ArtifactTTL)
	if redisClient != nil {
		artifactStore = service.NewRedisArtifactStore(redisClient, cfg.ArtifactTTL)
	}

	// Initialize assessment client
	if cfg.AzureAISpeechKey == "" || cfg.AzureServiceRegion == "" {
		log.Warn().Msg("Azure Speech credentials missing, every attempt will fail assessment")
	}
	assessor := client.NewAzureSpeechClient(cfg.AzureAISpeechKey, cfg.AzureServiceRegion, cfg.AssessmentLanguage, log)

	// Initialize services
	sessions := session.NewManager(cfg.MaxSessions, cfg.SessionTTL)
	sessionService := service.NewSessionService(sessions, cfg.JWTSecret, cfg.SessionTTL, log).WithMetrics(m)

	practiceService := service.NewPracticeService(
		lessonRepo,
		scoreRepo,
		assessor,
		artifactStore,
		service.PracticeConfig{AssessmentTimeout: cfg.AssessmentTimeout},
		log,
	).
		WithArchive(repository.NewFileResultArchive(cfg.DataDir)).
		WithMetrics(m)

	var closers []func()

	// Recording archive: Cloudflare R2 first, then Google Cloud Storage
	if cfg.R2Enabled() {
		r2, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloudflare client")
		} else {
			practiceService.WithRecordingStore(r2)
			healthHandler.AddCheck("r2", r2)
			log.Info().Msg("Cloudflare R2 recording archive initialized")
		}
	} else if cfg.GCSBucket != "" {
		opts, _, err := client.GoogleClientOptions(ctx, saJSON)
		if err == nil {
			var gcs *client.StorageClient
			gcs, err = client.NewStorageClient(ctx, cfg.GCSBucket, opts...)
			if err == nil {
				practiceService.WithRecordingStore(gcs)
				healthHandler.AddCheck("gcs", gcs)
				closers = append(closers, gcs.Close)
				log.Info().Str("bucket", cfg.GCSBucket).Msg("GCS recording archive initialized")
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize GCS client")
		}
	}

	// Attempt events
	if cfg.PubSubTopic != "" {
		opts, project, err := client.GoogleClientOptions(ctx, saJSON)
		if cfg.PubSubProject != "" {
			project = cfg.PubSubProject
		}
		if err == nil {
			var ps *client.PubSubClient
			ps, err = client.NewPubSubClient(ctx, project, cfg.PubSubTopic, opts...)
			if err == nil {
				practiceService.WithPublisher(ps)
				closers = append(closers, ps.Close)
				log.Info().Str("topic", cfg.PubSubTopic).Msg("Pub/Sub publisher initialized")
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Pub/Sub client")
		}
	}

	locale, err := coaching.ParseLocale(cfg.CoachingLocale)
	if err != nil {
		log.Warn().Err(err).Msg("Unknown coaching locale, falling back to default")
		locale = coaching.LocaleJA
	}
	coachCfg := coaching.DefaultConfig()
	coachCfg.Locale = locale
	coachCfg.Timeout = cfg.CoachingTimeout
	coach := coaching.NewCoach(newCoachingProvider(ctx, cfg, saJSON, log), coachCfg, log)
	feedbackService := service.NewFeedbackService(coach, m, log)

	var scheduler *haptics.Scheduler
	if cfg.HapticsEnabled {
		scheduler = haptics.NewScheduler(haptics.NewLogDriver(log), log)
	}
	hapticsService := service.NewHapticsService(lessonRepo, lessonRepo, scheduler, m, log)

	// Initialize handlers
	sessionHandler := http.NewSessionHandler(log, sessionService)
	lessonHandler := http.NewLessonHandler(log, practiceService, hapticsService)
	feedbackHandler := http.NewFeedbackHandler(log, feedbackService)

	hub := server.NewWebSocketHub(ws.NewHandler(feedbackService, log), cfg.CORSAllowedOrigins, log)
	go hub.Run(ctx)

	// Initialize servers
	httpServer := server.NewHTTPServer(cfg, log, m, healthHandler, sessionHandler, lessonHandler, feedbackHandler, sessionService, hub)
	grpcServer := server.NewGRPCServer(cfg, log)

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
			cancel()
		}
	}()

	healthHandler.SetReady(true)
	grpcServer.SetServing(true)

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Str("grpc_addr", cfg.GRPCAddress()).
		Str("store", cfg.StoreBackend).
		Str("coaching", cfg.CoachingProvider).
		Msg("Servers started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down servers...")
	healthHandler.SetReady(false)
	grpcServer.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	grpcServer.GracefulStop()

	// Stop the websocket hub and any playback
	cancel()
	sessions.Close()

	// Close clients
	for _, closeFn := range closers {
		closeFn()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if postgresClient != nil {
		postgresClient.Close()
	}

	log.Info().Msg("Server stopped")
}

// newScoreRepository picks the score store. The file store is guarded by a
// Redis lock when Redis is available so several replicas can share one
// data root.
func newScoreRepository(cfg *config.Config, redisClient *client.RedisClient, postgresClient *client.PostgresClient, log zerolog.Logger) repository.ScoreRepository {
	if cfg.StoreBackend == config.StorePostgres {
		log.Info().Msg("Using Postgres score store")
		return repository.NewPostgresScoreRepository(postgresClient, log)
	}

	var locker repository.Locker = repository.NewLocalLocker()
	if redisClient != nil {
		locker = repository.NewRedisLocker(redisClient, func(err error) bool {
			return errors.Is(err, client.ErrLockHeld)
		}, log)
	}
	log.Info().Str("root", cfg.DataDir).Msg("Using file score store")
	return repository.NewFileScoreRepository(cfg.DataDir, locker, log)
}

// newCoachingProvider builds the configured chat backend. Missing
// credentials leave the coach without a provider, so feedback requests
// fail with a coaching service error while scoring keeps working.
func newCoachingProvider(ctx context.Context, cfg *config.Config, saJSON []byte, log zerolog.Logger) coaching.Provider {
	var provider coaching.Provider

	switch cfg.CoachingProvider {
	case config.ProviderAzure:
		if cfg.AzureOpenAIEndpoint == "" || cfg.AzureOpenAIKey == "" {
			log.Warn().Msg("Azure OpenAI credentials missing, coaching disabled")
			return nil
		}
		provider = client.NewAzureOpenAIClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIKey, cfg.AzureOpenAIDeployment, cfg.AzureOpenAIAPIVersion)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, coaching disabled")
			return nil
		}
		c := client.NewOpenAIClient(cfg.OpenAIAPIKey)
		if cfg.CoachingModel != "" {
			c.WithModel(cfg.CoachingModel)
		}
		provider = c

	case config.ProviderGemini:
		var (
			c   *client.GeminiClient
			err error
		)
		if len(saJSON) > 0 {
			log.Info().Msg("Initializing Gemini with Base64 Service Account")
			c, err = client.NewGeminiClientWithServiceAccount(ctx, cfg.GCPProject, cfg.GCPLocation, saJSON)
		} else {
			c, err = client.NewGeminiClient(ctx, cfg.GCPProject, cfg.GCPLocation)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Gemini client, coaching disabled")
			return nil
		}
		if cfg.CoachingModel != "" {
			c.WithModel(cfg.CoachingModel)
		}
		provider = c

	case config.ProviderMock:
		mock := coaching.NewMockProvider()
		mock.Fallback = coaching.MockResponse{Chunks: []string{"Keep practicing the highlighted words."}}
		log.Warn().Msg("Using mock coaching provider")
		return mock

	default:
		return nil
	}

	log.Info().Str("provider", cfg.CoachingProvider).Msg("Coaching provider initialized")
	return coaching.WithRetry(provider, coaching.DefaultRetryConfig())
}
