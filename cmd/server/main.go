package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/handsomefox/movie-catalog/internal/catalog"
	"github.com/handsomefox/movie-catalog/internal/env"
	"github.com/handsomefox/movie-catalog/internal/handlers"
	"github.com/handsomefox/movie-catalog/internal/logger"
	"github.com/handsomefox/movie-catalog/internal/store"
	"github.com/handsomefox/movie-catalog/internal/tmdb"
	"github.com/handsomefox/movie-catalog/internal/web"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultPort      = "8080"
	defaultDBPath    = "/app/data/movie-catalog.db"
	defaultImageBase = "https://image.tmdb.org/t/p/w500"
	apiPrefix        = "/api"
)

type config struct {
	APIKey       string
	ReadToken    string
	ImageBase    string
	DBPath       string
	Port         string
	Password     string
	CORSOrigins  []string
	FetchTimeout time.Duration
	LogLevel     slog.Level
}

func loadConfig(getenv func(string) string) (config, error) {
	or := func(key, fallback string) string {
		if val := strings.TrimSpace(getenv(key)); val != "" {
			return val
		}
		return fallback
	}

	cfg := config{
		APIKey:       strings.TrimSpace(getenv("TMDB_API_KEY")),
		ReadToken:    strings.TrimSpace(getenv("TMDB_API_READ_TOKEN")),
		ImageBase:    or("TMDB_IMAGE_BASE", defaultImageBase),
		DBPath:       or("DB_PATH", defaultDBPath),
		Port:         or("PORT", defaultPort),
		Password:     getenv("APP_PASSWORD"),
		FetchTimeout: catalog.DefaultFetchTimeout,
	}
	if cfg.APIKey == "" && cfg.ReadToken == "" {
		return config{}, errors.New("TMDB_API_KEY is required")
	}
	for _, origin := range strings.Split(getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	if raw := strings.TrimSpace(getenv("FETCH_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return config{}, fmt.Errorf("invalid FETCH_TIMEOUT %q", raw)
		}
		cfg.FetchTimeout = d
	}
	lvl, err := logger.ParseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = lvl
	return cfg, nil
}

func main() {
	env.Load()
	if err := run(); err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close DB", logger.Error(err))
		}
	}()

	client := tmdb.New(cfg.APIKey, cfg.ReadToken)
	cat, err := catalog.New(ctx, client, st,
		catalog.WithLogger(log),
		catalog.WithFetchTimeout(cfg.FetchTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to init catalog: %w", err)
	}

	app, err := handlers.New(&handlers.Config{
		Catalog:   cat,
		TMDB:      client,
		Health:    st,
		Password:  cfg.Password,
		ImageBase: cfg.ImageBase,
	})
	if err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	dist, err := web.Dist()
	if err != nil {
		return fmt.Errorf("failed to load web assets: %w", err)
	}
	spa, err := handlers.SPA(dist, apiPrefix)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(log, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaECS.Concise(env.Current == env.Local),
		RecoverPanics: true,
	}))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Route(apiPrefix, app.RegisterRoutes)
	r.Handle("/*", spa)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.FetchTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", addr), slog.String("env", string(env.Current)))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
