// leadflow - legal lead capture conversation server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/ashureev/leadflow/internal/api"
	"github.com/ashureev/leadflow/internal/archive"
	"github.com/ashureev/leadflow/internal/config"
	"github.com/ashureev/leadflow/internal/conversation"
	"github.com/ashureev/leadflow/internal/generator"
	"github.com/ashureev/leadflow/internal/middleware"
	"github.com/ashureev/leadflow/internal/notifier"
	"github.com/ashureev/leadflow/internal/policy"
	"github.com/ashureev/leadflow/internal/probe"
	"github.com/ashureev/leadflow/internal/store"
	"github.com/ashureev/leadflow/internal/transcript"
	"github.com/ashureev/leadflow/internal/worker"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"store", cfg.Store.Backend, "generator", cfg.Generator.Backend)

	// Storage.
	repo, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Session store connected", "backend", cfg.Store.Backend)

	// Generators.
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Warn("Unknown timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}
	script := generator.NewTemplate(loc)
	gen, genPinger, err := buildGenerator(ctx, cfg.Generator, script)
	if err != nil {
		return fmt.Errorf("initialize generator: %w", err)
	}

	// Lead policy.
	engine, err := policy.Load(ctx, cfg.Policy.Path, cfg.Policy.NotifyThreshold)
	if err != nil {
		return fmt.Errorf("load lead policy: %w", err)
	}

	// Notification sinks.
	feed := notifier.NewFeed(cfg.FrontendURL, cfg.OperatorFeedToken, cfg.IsDevelopment())
	defer feed.Close()

	sinks := notifier.NewMulti().Add("recorder", notifier.NewRecorder(repo))
	if feed.Enabled() {
		sinks.Add("operators", feed)
	} else {
		slog.Info("Operator feed disabled (OPERATOR_FEED_TOKEN not set)")
	}

	var waPinger api.Pinger
	if cfg.WhatsApp.BotURL != "" {
		wa := notifier.NewWhatsApp(cfg.WhatsApp.BotURL, cfg.Timeout.Notifier, cfg.WhatsApp.LawyerNumbers)
		sinks.Add("whatsapp", wa)
		waPinger = wa
		slog.Info("WhatsApp notifications enabled", "lawyers", len(cfg.WhatsApp.LawyerNumbers))
	} else {
		slog.Info("WhatsApp notifications disabled (WHATSAPP_BOT_URL not set)")
	}

	s3cfg := archive.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	}
	if s3cfg.Complete() {
		arch, err := archive.NewS3Archive(s3cfg)
		if err != nil {
			return fmt.Errorf("initialize lead archive: %w", err)
		}
		sinks.Add("archive", arch)
		slog.Info("Lead archive enabled", "bucket", s3cfg.Bucket)
	}

	// Transcript.
	var tlog transcript.Logger = transcript.NopLogger{}
	if cfg.ConversationLog.Enabled {
		cl, err := transcript.NewConversationLogger(transcript.Config{
			Enabled:       cfg.ConversationLog.Enabled,
			Dir:           cfg.ConversationLog.Dir,
			GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
			GlobalPath:    cfg.ConversationLog.GlobalPath,
			QueueSize:     cfg.ConversationLog.QueueSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize conversation logger: %w", err)
		}
		tlog = cl
	}
	defer func() {
		if err := tlog.Close(); err != nil {
			slog.Error("Failed to close conversation logger", "error", err)
		}
	}()

	svc := conversation.NewService(repo, gen, sinks, conversation.Options{
		GeneratorTimeout: cfg.Timeout.Generator,
		NotifierTimeout:  cfg.Timeout.Notifier,
		NotifyThreshold:  cfg.Policy.NotifyThreshold,
		Qualifier:        engine,
		Transcript:       tlog,
		Logger:           logger,
	})

	// Handlers.
	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	convHandler := api.NewConversationHandler(svc, script, limiter.Middleware)
	healthHandler := api.NewHealthHandler(repo, genPinger, waPinger, cfg.Timeout.HealthCheck)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Live)
	r.Get("/conversation/service-status", healthHandler.ServiceStatus)
	convHandler.RegisterRoutes(r)
	r.Get("/operators/feed", feed.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // operator feed websockets are long lived
		IdleTimeout:  120 * time.Second,
	}

	// Background workers.
	worker.StartTTLWorker(ctx, repo, cfg.SessionTTL, cfg.SessionSweep, func(removed int64) {
		slog.Info("Expired sessions removed", "count", removed)
	})
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL, "interval", cfg.SessionSweep)

	errCh := make(chan error, 2)

	var health *probe.Server
	if port := strings.TrimSpace(cfg.GRPCHealthPort); port != "" && port != "0" {
		lis, err := net.Listen("tcp", ":"+port)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
		health = probe.NewServer(repo.Ping, 10*time.Second, cfg.Timeout.HealthCheck)
		go func() {
			if err := health.Serve(ctx, lis); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return err
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if health != nil {
		health.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Repository, error) {
	var origin store.Repository
	switch cfg.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StorePostgres:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		origin = pg
	default:
		lite, err := store.NewSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		origin = lite
	}
	if cfg.CacheSize <= 0 {
		return origin, nil
	}
	return store.NewCached(origin, cfg.CacheSize)
}

// buildGenerator returns the generator chain and, for model backends, a
// pinger for the service status endpoint.
func buildGenerator(ctx context.Context, cfg config.GeneratorConfig, script *generator.Template) (conversation.Generator, api.Pinger, error) {
	switch cfg.Backend {
	case config.GeneratorGemini:
		g, err := generator.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, script)
		if err != nil {
			return nil, nil, err
		}
		chain := generator.NewFailback(g, script)
		return chain, chain, nil
	case config.GeneratorOpenAI:
		g, err := generator.NewOpenAI(ctx, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, script)
		if err != nil {
			return nil, nil, err
		}
		chain := generator.NewFailback(g, script)
		return chain, chain, nil
	default:
		return script, nil, nil
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
