// Package main is the entry point for the devlens API server: it wires
// configuration, the database/cache/vector-store clients, the retrieval and
// job-pipeline services, the HTTP edge, and the background stage workers
// into one running process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/database"
	"github.com/jmylchreest/devlens/internal/githubclient"
	"github.com/jmylchreest/devlens/internal/http/handlers"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/llm"
	"github.com/jmylchreest/devlens/internal/logging"
	"github.com/jmylchreest/devlens/internal/observability"
	"github.com/jmylchreest/devlens/internal/pipeline"
	"github.com/jmylchreest/devlens/internal/ratelimit"
	"github.com/jmylchreest/devlens/internal/repository"
	"github.com/jmylchreest/devlens/internal/retrieval"
	"github.com/jmylchreest/devlens/internal/service"
	"github.com/jmylchreest/devlens/internal/vectorstore"
	"github.com/jmylchreest/devlens/internal/version"
	"github.com/jmylchreest/devlens/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting devlens", "version", v.Version, "commit", v.Commit, "built", v.Date, "go_version", v.GoVersion)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if schemaVersion, err := database.GetLatestSchemaVersion(db); err == nil && schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	ctx, cancel := context.WithCancel(context.Background())

	qdrantCfg, err := parseQdrantURL(cfg.QdrantURL, cfg.QdrantCollection, uint64(cfg.EmbedVectorSize))
	if err != nil {
		logger.Error("failed to parse qdrant url", "error", err)
		os.Exit(1)
	}
	vectors, err := vectorstore.New(ctx, qdrantCfg)
	if err != nil {
		logger.Error("failed to connect to vector store", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)
	gh := githubclient.New(ctx, "")
	embedder := retrieval.NewHashEmbedder(cfg.EmbedVectorSize)

	dense := retrieval.NewDenseSearcher(embedder, vectors)
	lex := retrieval.NewLexicalSearcher(repos.Chunks)
	hybrid := retrieval.NewHybridSearcher(dense, lex, repos.Chunks)
	validator := retrieval.NewValidator(repos.Chunks)

	orchestrator := llm.NewOrchestrator(
		buildProvider(cfg.LLMPrimaryProvider, cfg),
		buildProvider(cfg.LLMFallbackProvider, cfg),
		cfg.LLMSummaryTimeout,
		logger,
	)

	limiter := ratelimit.New(redisClient, cfg.RateLimitWindow, false)

	jobService := service.NewJobService(cfg, repos, gh, logger)
	authService, err := service.NewAuthService(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}
	apiKeyService := service.NewAPIKeyService(repos, logger)
	chatService := service.NewChatService(repos, hybrid, validator, orchestrator, logger)
	shareService := service.NewShareService(cfg, repos, logger)

	jobWorker := worker.New(cfg, worker.Deps{
		Jobs:  repos.Jobs,
		Repos: repos.Repos,
		Dead:  repos.DeadLetters,
		Parse: pipeline.ParseDeps{
			Cfg:    cfg,
			Jobs:   repos.Jobs,
			Chunks: repos.Chunks,
			Logger: logger,
		},
		Embed: pipeline.EmbedDeps{
			Cfg:      cfg,
			Jobs:     repos.Jobs,
			Chunks:   repos.Chunks,
			Vectors:  vectors,
			Embedder: embedder,
			Logger:   logger,
		},
		Analyze: pipeline.AnalyzeDeps{
			Jobs:         repos.Jobs,
			Chunks:       repos.Chunks,
			Results:      repos.Results,
			Repos:        repos.Repos,
			GitHub:       gh,
			Orchestrator: orchestrator,
			Logger:       logger,
		},
	}, logger)
	jobWorker.Start(ctx)

	healthHandlers := &handlers.HealthHandlers{DB: db}
	repoHandlers := &handlers.RepoHandlers{Jobs: jobService, Hybrid: hybrid, Lex: lex, Chunks: repos.Chunks}
	chatHandlers := &handlers.ChatHandlers{Chat: chatService}
	authHandlers := &handlers.AuthHandlers{Cfg: cfg, Auth: authService}
	apiKeyHandlers := &handlers.APIKeyHandlers{Keys: apiKeyService}
	shareHandlers := &handlers.ShareHandlers{Share: shareService}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          15 * time.Second,
		Extended:         cfg.LLMSummaryTimeout + 10*time.Second,
		ExtendedPatterns: []string{"/analyze", "/chat"},
		SkipPatterns:     []string{"/status", "/message"},
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestSize(1 * 1024 * 1024))
	router.Use(mw.Authenticate(authService, apiKeyService))

	humaConfig := huma.DefaultConfig("DevLens API", version.Get().Version)
	humaConfig.Info.Description = "Repository analysis, retrieval, and chat over public source-hosting URLs."
	humaConfig.Servers = []*huma.Server{{URL: cfg.BaseURL, Description: "API server"}}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {Type: "http", Scheme: "bearer", Description: "Bearer access token or dlk_ API key."},
	}

	hiddenConfig := huma.DefaultConfig("DevLens API", version.Get().Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""

	api := humachi.New(router, humaConfig)
	api.UseMiddleware(mw.HumaAuth(api))

	hiddenAPI := humachi.New(router, hiddenConfig)

	// Kubernetes probes.
	mw.PublicGet(hiddenAPI, "/healthz", healthHandlers.Livez)
	mw.PublicGet(hiddenAPI, "/readyz", healthHandlers.Readyz)

	// Repository dashboard + search, public per the external interface table.
	mw.PublicGet(api, "/repos/{id}/dashboard", repoHandlers.Dashboard, mw.WithTags("repos"))
	mw.PublicGet(api, "/repos/{id}/search/lexical", repoHandlers.Lexical, mw.WithTags("retrieval"))
	mw.PublicGet(api, "/repos/{id}/search/hybrid", repoHandlers.Hybrid, mw.WithTags("retrieval"))
	router.Get("/repos/{id}/status", repoHandlers.Status)

	// Chat session creation is bearer-protected; message send is a raw SSE
	// handler that checks auth itself (see ChatHandlers.Message).
	mw.ProtectedPost(api, "/chat/sessions", chatHandlers.CreateSession, mw.WithTags("chat"))

	// Share-link mint (bearer) and public resolution.
	mw.ProtectedPost(api, "/export/{repo_id}/share", shareHandlers.Create, mw.WithTags("share"))
	mw.PublicGet(api, "/share/{token}", shareHandlers.Resolve, mw.WithTags("share"))

	// Auth: OAuth round trip, refresh rotation, logout, profile — all raw
	// chi handlers because they touch cookies directly.
	router.Get("/auth/github", authHandlers.GithubLogin)
	router.Get("/auth/callback", authHandlers.GithubCallback)
	router.Post("/auth/refresh", authHandlers.Refresh)
	router.Delete("/auth/logout", authHandlers.Logout)
	router.Get("/auth/me", authHandlers.Me)

	// API keys are bearer-protected.
	mw.ProtectedPost(api, "/auth/api-keys", apiKeyHandlers.Create, mw.WithTags("auth"))
	mw.ProtectedGet(api, "/auth/api-keys", apiKeyHandlers.List, mw.WithTags("auth"))
	mw.ProtectedDelete(api, "/auth/api-keys/{id}", apiKeyHandlers.Revoke, mw.WithTags("auth"))

	// Rate-limited routes: POST /analyze (no auth required) and any POST
	// under /chat, keyed by identity class per the rate limiter contract.
	router.Group(func(r chi.Router) {
		r.Use(mw.RateLimit(limiter, "analyze", cfg.RateLimitAuthPerWindow, cfg.RateLimitGuestPerWindow))
		rlAPI := humachi.New(r, hiddenConfig)
		huma.Register(rlAPI, huma.Operation{Method: http.MethodPost, Path: "/repos/analyze", Tags: []string{"repos"}}, repoHandlers.Analyze)
	})
	router.Group(func(r chi.Router) {
		r.Use(mw.RateLimit(limiter, "chat", cfg.RateLimitAuthPerWindow, cfg.RateLimitGuestPerWindow))
		r.Post("/chat/sessions/{id}/message", chatHandlers.Message)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler: observability.Handler(),
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")
		cancel()
		jobWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// parseQdrantURL splits a "scheme://host:port" dial string into the
// discrete Host/Port/UseTLS fields vectorstore.Config needs, defaulting the
// gRPC port to 6334 when the URL omits one.
func parseQdrantURL(raw, collection string, vectorSize uint64) (vectorstore.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return vectorstore.Config{}, fmt.Errorf("parse qdrant url: %w", err)
	}
	port := 6334
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	return vectorstore.Config{
		Host:       u.Hostname(),
		Port:       port,
		UseTLS:     u.Scheme == "https",
		Collection: collection,
		VectorSize: vectorSize,
	}, nil
}

// buildProvider resolves a configured provider name to a SummaryProvider,
// or nil when unconfigured so the orchestrator falls through to the
// deterministic template.
func buildProvider(name string, cfg *config.Config) llm.SummaryProvider {
	switch name {
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return nil
		}
		return llm.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.LLMSummaryModel)
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil
		}
		model := cfg.LLMSummaryModel
		if cfg.LLMFallbackModel != "" && name == cfg.LLMFallbackProvider {
			model = cfg.LLMFallbackModel
		}
		return llm.NewGroqProvider(cfg.GroqBaseURL, cfg.GroqAPIKey, model)
	default:
		return nil
	}
}
