// Package main is the entrypoint for the apply-portal API server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/cache"
	"github.com/ezcommon/apply-portal/internal/config"
	"github.com/ezcommon/apply-portal/internal/docparse"
	"github.com/ezcommon/apply-portal/internal/events"
	"github.com/ezcommon/apply-portal/internal/export"
	"github.com/ezcommon/apply-portal/internal/formfill"
	"github.com/ezcommon/apply-portal/internal/handler"
	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/middleware"
	"github.com/ezcommon/apply-portal/internal/notify"
	"github.com/ezcommon/apply-portal/internal/repository"
	"github.com/ezcommon/apply-portal/internal/search"
	"github.com/ezcommon/apply-portal/internal/server"
	"github.com/ezcommon/apply-portal/internal/service"
	"github.com/ezcommon/apply-portal/internal/storage"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Postgres via pgx for the main repositories.
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// The webhook subsystem uses database/sql, so it opens its own
	// connection pool against the same database.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to open webhook database pool",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer db.Close()

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	store, err := storage.New(ctx, storage.Options{
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		PresignTTL: cfg.PresignTTL,
	})
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	logger.Info("object storage ready", "bucket", cfg.S3Bucket)

	index := search.New(search.Options{
		BaseURL:  cfg.OpenSearchURL,
		Index:    cfg.OpenSearchIndex,
		Username: cfg.OpenSearchUsername,
		Password: cfg.OpenSearchPassword,
	})
	if err := index.EnsureIndex(ctx); err != nil {
		logger.Error("failed to ensure chunk index", "error", err)
		os.Exit(1)
	}
	logger.Info("chunk index ready", "index", cfg.OpenSearchIndex)

	provider, err := llm.NewProvider(llm.Config{
		Provider:      cfg.LLMProvider,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
	})
	if err != nil {
		logger.Error("failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}

	var ocr *docparse.OCREngine
	if cfg.OCREnabled {
		ocr = docparse.NewOCREngine(cfg.OCRLanguageList())
	}
	extractor := docparse.NewExtractor(ocr)
	pipeline := docparse.NewPipeline(store, index, provider, extractor, logger, cfg.ParseBatchParallelism)

	metricsRecorder := metrics.NewInMemory()

	// Event and webhook plumbing.
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	activityRepo := repository.NewActivityRepository(repo)
	activityPub := events.NewPublisher(cacheClient.Client(), logger, metricsRecorder)
	notifyRepo := notify.NewRepository(db)
	notifier := notify.NewPublisher(notifyRepo, logger)

	// Services.
	authService := service.NewAuthService(repo, cacheClient, issuer)
	orgService := service.NewOrgService(repo)
	invitationService := service.NewInvitationService(repo, notifier, activityPub, logger)
	uploadService := service.NewUploadService(store, index, notifier, activityPub, metricsRecorder, logger)
	parseService := service.NewParseService(repo, cacheClient, pipeline, store, notifier, activityPub, metricsRecorder, logger)
	formFillService := service.NewFormFillService(formfill.NewService(index, provider, logger), repo, activityPub, metricsRecorder, logger)
	exportService := export.NewService(index)
	chatService := service.NewChatService(provider, logger)

	// Handlers.
	healthHandler := handler.NewHealthHandler(repo, cacheClient, index)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)
	authHandler := handler.NewAuthHandler(authService, logger)
	orgHandler := handler.NewOrgHandler(orgService, invitationService, logger)
	uploadHandler := handler.NewUploadHandler(uploadService, logger)
	parseHandler := handler.NewParseHandler(parseService, cacheClient, logger)
	formFillHandler := handler.NewFormFillHandler(formFillService, logger)
	exportHandler := handler.NewExportHandler(exportService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	activityHandler := handler.NewActivityHandler(activityRepo, logger)
	webhookHandler := handler.NewWebhookHandler(notifyRepo, logger)

	r := setupRouter(routerDeps{
		health:   healthHandler,
		metrics:  metricsHandler,
		auth:     authHandler,
		org:      orgHandler,
		upload:   uploadHandler,
		parse:    parseHandler,
		formFill: formFillHandler,
		export:   exportHandler,
		chat:     chatHandler,
		activity: activityHandler,
		webhook:  webhookHandler,
		issuer:   issuer,
		cache:    cacheClient,
		cfg:      cfg,
		logger:   logger,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background workers. Registered before anything else so they are
	// the last components to stop, after in-flight requests drain.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	activityWorker := events.NewWorker(cacheClient.Client(), activityRepo, logger, events.NewConsumerID(), metricsRecorder)
	go func() {
		if err := activityWorker.Run(workerCtx); err != nil {
			logger.Error("activity worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("activity worker", activityWorker.Shutdown)

	webhookWorker := notify.NewWorker(notifyRepo, logger, metricsRecorder)
	go func() {
		if err := webhookWorker.Run(workerCtx); err != nil {
			logger.Error("webhook worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("webhook worker", func(ctx context.Context) error {
		stopWorkers()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps collects everything setupRouter wires together.
type routerDeps struct {
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	auth     *handler.AuthHandler
	org      *handler.OrgHandler
	upload   *handler.UploadHandler
	parse    *handler.ParseHandler
	formFill *handler.FormFillHandler
	export   *handler.ExportHandler
	chat     *handler.ChatHandler
	activity *handler.ActivityHandler
	webhook  *handler.WebhookHandler
	issuer   *auth.TokenIssuer
	cache    *cache.Cache
	cfg      *config.Config
	logger   *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      d.cfg.IsDevelopment(),
		AllowedOrigins:     d.cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: d.cfg.MaxRequestBodySize,
	}))

	// Operational endpoints (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)

	authCfg := middleware.AuthConfig{
		Logger: d.logger,
		Issuer: d.issuer,
		Cache:  d.cache,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:     d.logger,
		Cache:      d.cache,
		APIEnabled: d.cfg.RateLimitAPIEnabled,
		ParseRPS:   d.cfg.RateLimitParseRPS,
		ParseBurst: d.cfg.RateLimitParseBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Session endpoints
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.auth.Register)
			r.Post("/login", d.auth.Login)
			r.Post("/refresh", d.auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(authCfg))
				r.Post("/logout", d.auth.Logout)
				r.Get("/me", d.auth.Me)
			})
		})

		// Everything else requires authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			// Organization management
			r.Route("/org", func(r chi.Router) {
				r.Use(middleware.RequireOrgAdmin())
				r.Get("/", d.org.GetMyOrg)
				r.Patch("/", d.org.RenameMyOrg)
				r.Post("/invitations", d.org.InviteStudent)
				r.Get("/invitations", d.org.ListOrgInvitations)
				r.Delete("/invitations/{studentID}", d.org.RevokeInvitation)
				r.Get("/students", d.org.SearchStudents)

				r.Route("/webhooks", func(r chi.Router) {
					r.Post("/", d.webhook.Create)
					r.Get("/", d.webhook.List)
					r.Get("/{id}", d.webhook.Get)
					r.Patch("/{id}", d.webhook.Update)
					r.Delete("/{id}", d.webhook.Delete)
					r.Post("/{id}/rotate-secret", d.webhook.RotateSecret)
					r.Get("/{id}/deliveries", d.webhook.ListDeliveries)
					r.Post("/{id}/deliveries/{deliveryId}/retry", d.webhook.RetryDelivery)
				})
			})

			// Student invitation inbox
			r.Route("/invitations", func(r chi.Router) {
				r.Use(middleware.RequireStudent())
				r.Get("/", d.org.MyInvitations)
				r.Post("/{orgID}/accept", d.org.AcceptInvitation)
				r.Post("/{orgID}/reject", d.org.RejectInvitation)
			})

			// Platform administration
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/users", d.org.ListUsers)
			})

			// File uploads
			r.Route("/uploads", func(r chi.Router) {
				r.Post("/{section}", d.upload.Upload)
				r.Get("/", d.upload.List)
				r.Get("/sections", d.upload.Sections)
				r.Get("/metadata", d.upload.Metadata)
				r.Delete("/", d.upload.Delete)
			})

			// Document parsing. Parse runs burn LLM tokens, so the
			// mutating endpoints carry their own rate limit.
			r.Route("/parse", func(r chi.Router) {
				r.Get("/files", d.parse.ListParseable)
				r.Get("/jobs", d.parse.ListJobs)
				r.Get("/jobs/{id}", d.parse.GetJob)
				r.Get("/jobs/{id}/stream", d.parse.Stream)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimitParse(rateLimitCfg))
					r.Post("/", d.parse.Start)
					r.Post("/batch", d.parse.Batch)
					r.Post("/direct", d.parse.Direct)
				})
			})

			// Field extraction and school forms
			r.Route("/formfill", func(r chi.Router) {
				r.Post("/fields", d.formFill.FillFields)
				r.Post("/school", d.formFill.FillSchoolForm)
				r.Post("/general", d.formFill.FillGeneral)
				r.Get("/questions", d.formFill.Questions)
				r.Get("/outputs", d.formFill.ListOutputs)
				r.Get("/outputs/load", d.formFill.GetOutput)
				r.Delete("/outputs", d.formFill.DeleteOutput)
			})

			// CSV export and statistics
			r.Route("/export", func(r chi.Router) {
				r.Get("/csv", d.export.SummaryCSV)
				r.Get("/csv/categorized", d.export.CategorizedCSV)
				r.Get("/stats", d.export.Stats)
			})

			// Assistant chat
			r.Post("/chat", d.chat.Chat)

			// Activity trail
			r.Get("/activity", d.activity.Recent)
			r.Get("/activity/stats", d.activity.Stats)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
