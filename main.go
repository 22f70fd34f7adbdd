package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridlink/relay/internal/config"
	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/room"
	"gridlink/relay/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: logging setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	durable, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("durable store setup failed", logging.Error(err))
	}

	opts := []room.ManagerOption{
		room.WithIdleTimeout(cfg.IdleTimeout),
		room.WithSendBuffer(cfg.SendBuffer),
	}
	if cfg.JournalDir != "" {
		opts = append(opts, room.WithJournalRoot(cfg.JournalDir))
	}
	manager := room.NewManager(durable, logger, opts...)

	server := newServer(cfg, logger, manager)
	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: server.Routes(),
	}

	go func() {
		logger.Info("relay listening",
			logging.String("url", listenerURL(cfg.Address)),
			logging.Bool("controller_auth", cfg.ControllerAuthEnabled()),
			logging.Bool("origins_restricted", cfg.OriginsRestricted()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", logging.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", logging.Error(err))
	}
	manager.Shutdown(shutdownCtx)
	if err := durable.Close(); err != nil {
		logger.Error("store close failed", logging.Error(err))
	}
}

// openStore selects the durable backend: Postgres when a database URL is
// configured, the compressed file store otherwise.
func openStore(cfg *config.Config, logger *logging.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres room store")
		return s, nil
	}
	s, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("using file room store", logging.String("dir", cfg.DataDir))
	return s, nil
}
