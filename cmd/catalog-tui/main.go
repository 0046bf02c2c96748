package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"animestream/catalog/internal/app"
	"animestream/catalog/internal/providers/catalogapi"
	"animestream/catalog/internal/providers/jikan"
	"animestream/catalog/internal/search"
	"animestream/catalog/internal/session"
	"animestream/catalog/internal/tui"
)

func main() {
	cfg := app.LoadConfig()

	// The terminal owns stdout; logs go to a file when one is configured.
	logger := slog.New(slog.DiscardHandler)
	if path := strings.TrimSpace(os.Getenv("TUI_LOG_FILE")); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		logger = app.NewLogger(file, cfg.LogLevel, cfg.LogFormat)
	}
	slog.SetDefault(logger)

	client := &http.Client{Timeout: cfg.RequestTimeout}
	jikanProvider := jikan.NewProvider(jikan.Config{
		BaseURL:           cfg.JikanURL,
		UserAgent:         cfg.UserAgent,
		Client:            client,
		RequestsPerSecond: cfg.JikanRPS,
	})
	var primary search.PrimarySearcher
	if cfg.CatalogAPIURL != "" {
		primary = catalogapi.NewProvider(catalogapi.Config{
			BaseURL:   cfg.CatalogAPIURL,
			UserAgent: cfg.UserAgent,
			Client:    client,
		})
	}
	orchestrator := search.NewOrchestrator(primary, jikanProvider, search.WithLogger(logger))

	abbreviations := search.NewAbbreviationTable()
	if path := strings.TrimSpace(cfg.AbbreviationsFile); path != "" {
		if _, err := abbreviations.LoadAbbreviationsFile(path); err != nil {
			logger.Warn("abbreviations file not loaded", slog.String("error", err.Error()))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	genres := search.NewGenreCatalog(jikanProvider, search.WithGenreLogger(logger))
	go func() {
		loadCtx, done := context.WithTimeout(ctx, time.Minute)
		defer done()
		if _, err := genres.Load(loadCtx); err != nil {
			logger.Warn("genre list unavailable", slog.String("error", err.Error()))
		}
	}()

	var program *tea.Program
	sess := session.New(orchestrator,
		func() search.SearchContext {
			return search.SearchContext{Genres: genres.Snapshot(), Abbreviations: abbreviations}
		},
		func(event session.Event) {
			if program != nil {
				program.Send(tui.EventMsg(event))
			}
		},
		session.WithDelays(cfg.SearchDebounce, cfg.ListingDebounce),
		session.WithLogger(logger),
		session.WithParent(ctx),
	)
	defer sess.Close()

	program = tea.NewProgram(tui.NewApp(sess), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog tui: %v\n", err)
		os.Exit(1)
	}
}
