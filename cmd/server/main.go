package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unicodeveloper/supplement-research/internal/archive"
	"github.com/unicodeveloper/supplement-research/internal/auth"
	"github.com/unicodeveloper/supplement-research/internal/config"
	"github.com/unicodeveloper/supplement-research/internal/handlers"
	"github.com/unicodeveloper/supplement-research/internal/logger"
	"github.com/unicodeveloper/supplement-research/internal/research"
	"github.com/unicodeveloper/supplement-research/internal/router"
	"github.com/unicodeveloper/supplement-research/internal/service"
	"github.com/unicodeveloper/supplement-research/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	log := logger.NewLogger()

	if cfg.Mode.Hosted && !cfg.OAuthConfigured() {
		log.Warn("hosted mode without complete oauth configuration; sign-in will be unavailable")
	}

	durable, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("failed to open durable store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer durable.Close()

	// PKCE verifiers and CSRF state live in memory only; a restart must
	// invalidate them.
	session := storage.NewMemory()

	tokens := auth.NewTokenStore(durable)

	bearer := func() string {
		if cfg.Mode.Hosted {
			return tokens.Token()
		}
		return cfg.Upstream.APIKey
	}

	client := research.NewClient(cfg.Upstream.BaseURL, bearer, cfg.Upstream.Timeout, log)

	archiver := archive.NewBuilder(cfg.Storage.ArchiveDir, bearer)

	s := service.NewService(client, tokens, archiver, cfg.Mode.Hosted, cfg.Poll.Interval, log)
	defer s.Shutdown()

	initiator := auth.NewInitiator(
		cfg.OAuth.ClientID,
		cfg.OAuth.AuthURL,
		cfg.OAuth.RedirectURI,
		session, durable, tokens, log,
	)

	h := handlers.NewHandler(s, initiator, tokens, cfg.Mode.Hosted, log)

	r := router.NewRouter(h, cfg.Storage.ArchiveDir)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("start server",
		slog.String("host", cfg.Server.Host),
		slog.String("port", cfg.Server.Port),
		slog.Bool("hosted", cfg.Mode.Hosted))

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))

			os.Exit(1)
		}
	}()

	sig := <-sigint
	log.Info("received signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Info("failed to stop server", slog.String("error", err.Error()))
	}
}
