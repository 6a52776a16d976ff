// Command server serves scheme stores over HTTP.
//
// Configuration is read from environment variables, optionally overridden by
// a YAML file given with -config or CONFIG_FILE. SIGHUP re-reads the log
// level; SIGINT and SIGTERM shut the server down gracefully.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/api"
	"github.com/axenox/Sketch/internal/auth"
	"github.com/axenox/Sketch/internal/config"
	"github.com/axenox/Sketch/internal/events"
	"github.com/axenox/Sketch/internal/journal"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "YAML override file (default $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Sketch server starting...",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("data_dir", cfg.DataDir),
		zap.String("api_route", cfg.APIRoute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Journal
	var j journal.Journal = journal.Nop{}
	var journalRoute journal.Journal
	if cfg.DatabaseURL != "" {
		logging.Info("connecting to PostgreSQL...")
		pg, err := journal.Open(cfg.DatabaseURL)
		if err != nil {
			logging.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
		j = pg
		journalRoute = pg
		logging.Info("operation journal enabled")
	}

	// Auth
	var authHandler *auth.Auth
	if cfg.JWTSecret != "" || cfg.OIDCIssuerURL != "" {
		authHandler = auth.New(cfg.JWTSecret)
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL: cfg.OIDCIssuerURL,
			ClientID:  cfg.OIDCClientID,
		})
		if err != nil {
			logging.Fatal("OIDC provider init failed", zap.Error(err))
		}
		if oidcProvider != nil {
			authHandler.SetOIDCProvider(oidcProvider)
		}
		logging.Info("authentication enabled",
			zap.Bool("jwt", cfg.JWTSecret != ""),
			zap.Bool("oidc", oidcProvider != nil))
	} else {
		logging.Warn("authentication disabled: set JWT_SECRET or OIDC_ISSUER_URL to protect the API")
	}

	broadcaster := events.NewBroadcaster()
	registry := api.NewRegistry(cfg.DataDir, cfg.CreateDirs, broadcaster, j)

	srv := api.NewServer(registry, broadcaster, api.Options{
		APIRoute:    cfg.APIRoute,
		MaxBodySize: cfg.MaxBodySize,
		Version:     version,
		Auth:        authHandler,
		Journal:     journalRoute,
		WebDAV:      cfg.WebDAVEnabled,
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// Requests derive from ctx so that cancel ends open event streams.
	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				reloaded, err := config.Load(*configPath)
				if err != nil {
					logging.Error("config reload failed", zap.Error(err))
					continue
				}
				logging.SetLevel(reloaded.LogLevel)
				logging.Info("log level reloaded", zap.String("level", reloaded.LogLevel))
			}
		}
	}()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("graceful shutdown failed", zap.Error(err))
			httpServer.Close()
		}
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	<-stopped
	logging.Info("server stopped")
}
