package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"retail-insights/internal/analytics"
	"retail-insights/internal/config"
	"retail-insights/internal/ingest"
	"retail-insights/internal/middleware"
	"retail-insights/internal/observability"
	"retail-insights/internal/server"
	"retail-insights/internal/services"
	"retail-insights/internal/ui/templates"
)

const (
	renderTimeout     = 10 * time.Second
	csvLoadTimeout    = 2 * time.Minute
	rateLimiterSweep  = time.Minute
	dashboardCacheAge = "no-cache"
)

func dashboardHandler(a *services.Analytics, uploadLimit int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		page := templates.Page{UploadLimit: uploadLimit}
		for _, d := range a.List() {
			page.Datasets = append(page.Datasets, templates.DatasetLink{ID: d.ID, Name: d.Name, Records: d.Records})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", dashboardCacheAge)
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func engineOptions(cfg config.AnalyticsConfig) analytics.Options {
	return analytics.Options{
		Clusters:            cfg.Clusters,
		Seed:                cfg.Seed,
		ChurnThresholdDays:  cfg.ChurnThresholdDays,
		HistogramBins:       cfg.HistogramBins,
		TopN:                cfg.TopN,
		ForecastConfidence:  cfg.ForecastConfidence,
		BasketMinSupport:    cfg.BasketMinSupport,
		BasketMinConfidence: cfg.BasketMinConfidence,
		BasketMaxItems:      cfg.BasketMaxItems,
		ReferenceDate:       cfg.ReferenceDate,
	}
}

func newAnalytics(cfg *config.Config, logger *slog.Logger) *services.Analytics {
	var cache *ingest.Cache
	if cfg.Cache.Enabled {
		cache = ingest.NewCache(cfg.Cache.Dir)
	}
	engine := analytics.NewEngine(engineOptions(cfg.Analytics), logger)
	return services.NewAnalytics(engine, ingest.NewLoader(cache, logger), cfg.Session.MaxSessions, logger)
}

func newHandler(cfg *config.Config, a *services.Analytics, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(a, cfg.Upload.MaxBytes),
	}
	srv := server.NewServer(a, logger, cfg.Upload.MaxBytes, templateHandlers)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(limiter, logger),
		middleware.BodyLimit(cfg.Upload.MaxBytes),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"max_sessions", cfg.Session.MaxSessions,
		"cache_enabled", cfg.Cache.Enabled,
	)

	a := newAnalytics(cfg, logger)

	if cfg.Data.CSVFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
		start := time.Now()
		info, err := a.LoadFile(ctx, cfg.Data.CSVFile)
		cancel()
		if err != nil {
			logger.Error("failed to load CSV data", "file", cfg.Data.CSVFile, "error", err)
			os.Exit(1)
		}
		logger.Info("CSV data loaded successfully",
			"dataset", info.ID,
			"records", info.Records,
			"views", len(info.Views),
			"duration", time.Since(start),
		)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, a, rateLimiter, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.Go(func(ctx context.Context) {
		rateLimiter.Cleanup(ctx, rateLimiterSweep)
	})

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down analytics service", "stats", a.Stats())
		return nil
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
