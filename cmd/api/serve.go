package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/openfinance/internal/api/handlers"
	"github.com/dvloznov/openfinance/internal/api/middleware"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open primary store")
		return err
	}
	defer st.Close()

	orch := newOrchestrator(st, cfg, log)

	// Archive workers outlive the signal so that Stop can drain them.
	workerCtx := logger.WithContext(context.WithoutCancel(ctx), log)
	arch, err := startArchive(workerCtx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start payload archive")
		return err
	}

	rt := handlers.Router{
		Diagnostics: handlers.NewDiagnosticsHandler(orch, cfg.StoreBackend, cfg.IsDevelopment()),
	}
	if arch != nil {
		rt.Transactions = handlers.NewTransactionsHandler(orch, arch.archiver, cfg.IsDevelopment())
		rt.Jobs = handlers.NewJobsHandler(arch.store)
	} else {
		rt.Transactions = handlers.NewTransactionsHandler(orch, nil, cfg.IsDevelopment())
	}

	handler := middleware.Chain(handlers.NewRouter(rt),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.RequestID(log),
		middleware.CORS,
		middleware.MaxBody(middleware.DefaultMaxBodyBytes),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("environment", cfg.Environment).
			Str("backend", cfg.StoreBackend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("Failed to start server")
			arch.stop(context.Background(), log)
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the archive after the server so late requests can still enqueue.
	arch.stop(shutdownCtx, log)

	log.Info().Msg("Server exited")
	return nil
}
