package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal/config"
	"github.com/scythe504/werewolf-backend/internal/database"
	"github.com/scythe504/werewolf-backend/internal/game"
	"github.com/scythe504/werewolf-backend/internal/logging"
	"github.com/scythe504/werewolf-backend/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "werewolf: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := game.NewRegistry(db,
		game.WithLogger(log),
		game.WithIdleTimeout(cfg.Session.IdleTimeout),
		game.WithRecoveryTimeout(cfg.Session.RecoveryTimeout),
	)

	restored, err := registry.Recover(ctx)
	if err != nil {
		return err
	}
	log.WithField("sessions", restored).Info("[main] sessions recovered")

	// Streams never go idle on their own, so they are ended through the base
	// context before the server is shut down.
	streams, endStreams := context.WithCancel(context.Background())
	defer endStreams()

	srv := server.NewServer(cfg, registry, db, log)
	srv.BaseContext = func(net.Listener) context.Context { return streams }

	done := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("[main] server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- err
		}
		close(done)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("[main] shutting down gracefully, press Ctrl+C again to force")
	stop()
	endStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("[main] server forced to shutdown")
	}
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelPersist()
	if err := registry.Shutdown(persistCtx); err != nil {
		log.WithError(err).Error("[main] failed to persist sessions")
	}

	log.WithFields(logrus.Fields{"sessions": len(registry.List())}).Info("[main] server exiting")
	return nil
}
