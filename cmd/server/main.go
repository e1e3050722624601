package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pauljones0/happymapper/internal/ai"
	"github.com/pauljones0/happymapper/internal/api"
	"github.com/pauljones0/happymapper/internal/config"
	"github.com/pauljones0/happymapper/internal/geocode"
	"github.com/pauljones0/happymapper/internal/imagefetch"
	"github.com/pauljones0/happymapper/internal/notifier"
	"github.com/pauljones0/happymapper/internal/proximity"
	"github.com/pauljones0/happymapper/internal/schedule"
	"github.com/pauljones0/happymapper/internal/service"
	"github.com/pauljones0/happymapper/internal/source"
	"github.com/pauljones0/happymapper/internal/storage"
	"github.com/pauljones0/happymapper/internal/validator"
)

// geocodeStore is the cache the proximity engine reads and the geocoding worker fills.
type geocodeStore interface {
	proximity.GeocodeCache
	geocode.CacheWriter
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	slog.Info("Starting HappyMapper server...", "venue_source", cfg.VenueSource, "timezone", cfg.Location.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.New(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	venues, err := source.New(source.Kind(cfg.VenueSource), store)
	if err != nil {
		slog.Error("Critical error selecting venue source", "error", err)
		os.Exit(1)
	}

	var cache geocodeStore = proximity.NewMemoryCache()
	if cfg.GeocodeCachePath != "" {
		sqliteCache, err := proximity.OpenSQLiteCache(cfg.GeocodeCachePath)
		if err != nil {
			slog.Error("Critical error opening geocode cache", "path", cfg.GeocodeCachePath, "error", err)
			os.Exit(1)
		}
		defer sqliteCache.Close()
		cache = sqliteCache
	}
	engine := proximity.NewEngine(cache)

	parser, err := newMenuParser(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing menu parser", "error", err)
		os.Exit(1)
	}

	svc := service.New(service.Deps{
		Venues:        venues,
		Store:         store,
		Parser:        parser,
		Images:        imagefetch.New(cfg.MaxImageBytes, cfg.AITimeout),
		Notifier:      notifier.New(cfg.DiscordWebhookURL),
		Locator:       engine,
		Validator:     validator.New(),
		Evaluator:     schedule.Evaluator{AllowOvernight: cfg.AllowOvernightWindows},
		Location:      cfg.Location,
		DefaultRadius: cfg.DefaultRadiusMiles,
	})

	if cfg.GoogleMapsAPIKey != "" {
		worker := geocode.NewWorker(geocode.NewClient(cfg.GoogleMapsAPIKey), cache, svc, engine, cfg.GeocodeInterval)
		go worker.Run(ctx)
	}

	handler := api.New(svc, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		DocsDir:        cfg.APIDocsDir,
	}).Handler()
	if cfg.EnableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
		slog.Info("Cleartext HTTP/2 enabled")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		<-ctx.Done()
		slog.Info("Received signal, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	svc.Wait()
	slog.Info("Server stopped.")
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// newMenuParser prefers Gemini, then the external parse-menu endpoint. It
// returns a nil interface when neither is configured.
func newMenuParser(ctx context.Context, cfg *config.Config) (ai.MenuParser, error) {
	if cfg.GeminiAPIKey != "" {
		p, err := ai.NewGeminiParser(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Gemini for menu extraction", "model", cfg.GeminiModel)
		return p, nil
	}
	if cfg.AIAPIURL != "" {
		slog.Info("Using external service for menu extraction", "url", cfg.AIAPIURL)
		return ai.NewHTTPParser(cfg.AIAPIURL, cfg.AITimeout), nil
	}
	return nil, nil
}
