package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "animestream/catalog/internal/api/http"
	"animestream/catalog/internal/app"
	"animestream/catalog/internal/metrics"
	"animestream/catalog/internal/providers/catalogapi"
	"animestream/catalog/internal/providers/jikan"
	"animestream/catalog/internal/search"
	"animestream/catalog/internal/telemetry"
)

const serviceName = "anime-catalog"

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("catalogAPIURL", cfg.CatalogAPIURL),
		slog.String("jikanURL", cfg.JikanURL),
		slog.Float64("jikanRPS", cfg.JikanRPS),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("genreCacheTTL", cfg.GenreCacheTTL),
		slog.Duration("searchDebounce", cfg.SearchDebounce),
		slog.Duration("listingDebounce", cfg.ListingDebounce),
	)

	jikanProvider := jikan.NewProvider(jikan.Config{
		BaseURL:           cfg.JikanURL,
		UserAgent:         cfg.UserAgent,
		Client:            newHTTPClient(cfg.RequestTimeout),
		RequestsPerSecond: cfg.JikanRPS,
	})

	var primary search.PrimarySearcher
	if cfg.CatalogAPIURL != "" {
		primary = catalogapi.NewProvider(catalogapi.Config{
			BaseURL:   cfg.CatalogAPIURL,
			UserAgent: cfg.UserAgent,
			Client:    newHTTPClient(cfg.RequestTimeout),
		})
	} else {
		logger.Warn("catalog api url not configured, searches use the fallback catalog only")
	}
	orchestrator := search.NewOrchestrator(primary, jikanProvider, search.WithLogger(logger))

	abbreviations := search.NewAbbreviationTable()
	if path := strings.TrimSpace(cfg.AbbreviationsFile); path != "" {
		added, err := abbreviations.LoadAbbreviationsFile(path)
		if err != nil {
			logger.Warn("abbreviations file not loaded", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			logger.Info("abbreviations loaded", slog.String("path", path), slog.Int("added", added))
		}
	}

	genres := search.NewGenreCatalog(jikanProvider, buildGenreOptions(cfg, logger)...)

	apiServer := apihttp.NewServer(orchestrator,
		apihttp.WithLogger(logger),
		apihttp.WithGenres(genres),
		apihttp.WithAbbreviations(abbreviations),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		apihttp.WithSessionDelays(cfg.SearchDebounce, cfg.ListingDebounce),
		apihttp.WithUserAgent(cfg.UserAgent),
		apihttp.WithImageHosts(cfg.ImageProxyHosts),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket sessions are long-lived; writes are bounded per message.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		loaded, err := genres.Load(rootCtx)
		if err != nil {
			logger.Warn("genre list unavailable, genre search path disabled", slog.String("error", err.Error()))
			return
		}
		logger.Info("genre list loaded", slog.Int("count", len(loaded)))
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("anime catalog service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	apiServer.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("anime catalog service stopped")
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// buildGenreOptions shares the genre list through redis when it is reachable.
func buildGenreOptions(cfg app.Config, logger *slog.Logger) []search.GenreCatalogOption {
	opts := []search.GenreCatalogOption{search.WithGenreLogger(logger)}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return opts
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, genre list is not shared", slog.String("error", err.Error()))
		return opts
	}
	store := search.NewRedisGenreStore(redis.NewClient(redisOpts))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis not reachable, genre list is not shared", slog.String("error", err.Error()))
		return opts
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return append(opts, search.WithGenreStore(store, cfg.GenreCacheTTL))
}
