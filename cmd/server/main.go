package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"reconciler/internal/config"
	"reconciler/internal/db"
	"reconciler/internal/handlers"
	"reconciler/internal/logging"
	"reconciler/internal/notify"
	"reconciler/internal/observability"
	"reconciler/internal/services"
	"reconciler/internal/store"
	"reconciler/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Logging)

	database, err := db.Connect(cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	notifier, err := notify.New(cfg.Telegram, logger)
	if err != nil {
		logger.Error("failed to start telegram notifier", "error", err)
		os.Exit(1)
	}

	operators := store.NewOperatorStore(database)
	audit := store.NewAuditStore(database)
	stores := services.Stores{
		P2P:       store.NewP2PStore(database),
		Gate:      store.NewGateStore(database),
		Matches:   store.NewMatchStore(database),
		Operators: operators,
		Audit:     audit,
	}
	metrics := observability.NewMetrics()
	hub := websocket.NewHub()
	service := services.NewReconciliationService(db.NewTxRunner(database), stores, hub, metrics, notifier, cfg.Matching, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := services.NewScheduler(service, cfg.Scheduler.Interval, cfg.Scheduler.Lookback, logger)
	go scheduler.Run(ctx)

	handler := handlers.New(cfg, service, operators, audit, hub, metrics, logger)
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("reconciler API listening", "addr", server.Addr, "env", cfg.AppEnv,
			"match_mode", cfg.Matching.Mode, "spread_mode", cfg.Matching.SpreadMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("reconciler API stopped")
}
