package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rollbar/rollbar-go"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cache"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
	"gitlab.com/sympolymathesy/ogimage/config"
	"gitlab.com/sympolymathesy/ogimage/http"
	"gitlab.com/sympolymathesy/ogimage/render"
	"gitlab.com/sympolymathesy/ogimage/store"
)

func main() {
	// Setup signal handlers.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Optionally load environment variables from a .env file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Instantiate a new type to represent our application.
	// This type lets us shared setup code with our end-to-end tests.
	m := NewMain(cfg, config.NewLogger(cfg.Log, os.Stderr))

	// Execute program.
	if err := m.Run(ctx); err != nil {
		m.Close()
		m.Logger.Error("startup failed", slog.Any("error", err))
		ogimage.ReportError(ctx, err)
		os.Exit(1)
	}

	// Wait for CTRL-C.
	<-ctx.Done()

	// Clean up program.
	if err := m.Close(); err != nil {
		m.Logger.Error("shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	Config *config.Config
	Logger *slog.Logger

	// HTTP server for handling HTTP communication.
	// The image service is attached to it before running.
	HTTPServer *http.Server

	store io.Closer
}

// NewMain returns a new instance of Main.
func NewMain(cfg *config.Config, logger *slog.Logger) *Main {
	return &Main{
		Config:     cfg,
		Logger:     logger,
		HTTPServer: http.NewServer(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.HTTPServer != nil {
		if err := m.HTTPServer.Close(); err != nil {
			return err
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return err
		}
	}
	if m.Config.RollbarToken != "" {
		rollbar.Wait()
	}
	return nil
}

// Run executes the program. The configuration should already be set up before
// calling this function.
func (m *Main) Run(ctx context.Context) (err error) {
	cfg := m.Config

	// Package-level logging in the http package goes through the default.
	slog.SetDefault(m.Logger)

	// Initialize error tracking.
	if cfg.RollbarToken != "" {
		rollbar.SetToken(cfg.RollbarToken)
		rollbar.SetEnvironment(cfg.Environment)
		rollbar.SetCodeVersion(ogimage.BuildID())
		rollbar.SetServerRoot("gitlab.com/sympolymathesy/ogimage")
		ogimage.ReportError = func(ctx context.Context, err error, args ...interface{}) {
			rollbar.Error(append([]interface{}{err}, args...)...)
		}
		ogimage.ReportPanic = func(err interface{}) {
			rollbar.LogPanic(err, true)
		}
		m.Logger.Info("rollbar error tracking enabled")
	}

	objectStore, closer, err := store.Open(ctx, cfg, m.Logger)
	if err != nil {
		return err
	}
	m.store = closer

	buildID := ogimage.BuildID()
	imageService := cache.NewImageService(
		objectStore,
		render.NewRenderer(cfg.SiteTitle, cfg.Author),
		cachekey.NewDeriver(buildID),
		m.Logger,
	)

	// Copy configuration settings to the HTTP server.
	m.HTTPServer.Addr = cfg.HTTPAddr
	m.HTTPServer.Domain = cfg.Domain
	m.HTTPServer.AllowedOrigins = cfg.CORSOrigins
	m.HTTPServer.Logger = m.Logger
	m.HTTPServer.ImageService = imageService

	// Start the HTTP server.
	if err := m.HTTPServer.Open(); err != nil {
		return err
	}

	// If TLS enabled, redirect non-TLS connections to TLS.
	if m.HTTPServer.UseTLS() {
		go func() {
			if err := http.ListenAndServeTLSRedirect(cfg.Domain); err != nil {
				m.Logger.Error("tls redirect server stopped", slog.Any("error", err))
			}
		}()
	}

	// Enable internal debug endpoints.
	if cfg.DebugAddr != "" {
		go func() {
			if err := http.ListenAndServeDebug(cfg.DebugAddr); err != nil {
				m.Logger.Error("debug server stopped", slog.Any("error", err))
			}
		}()
	}

	m.Logger.Info("running",
		slog.String("url", m.HTTPServer.URL()),
		slog.String("debug", cfg.DebugAddr),
		slog.String("build", buildID),
		slog.String("store", cfg.StoreBackend))

	return nil
}
