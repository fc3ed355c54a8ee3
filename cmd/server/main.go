/*
main.go - Application entry point

PURPOSE:
  Loads configuration, opens the SQLite fact store, wires the engine
  service and HTTP router, and runs the server with graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (config.yaml + MURABAHA_* env)
  2. Build zap logger
  3. Open SQLite store
  4. Build engine service and router
  5. Serve; on SIGINT/SIGTERM drain for up to 30s, close the store, exit
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/murabaha-engine/api"
	"github.com/warp/murabaha-engine/config"
	"github.com/warp/murabaha-engine/engine"
	"github.com/warp/murabaha-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatal("open store", zap.Error(err), zap.String("path", cfg.Store.Path))
	}
	defer store.Close()

	order := engine.ProfitFirst
	if cfg.Engine.WaterfallOrder == "principal_first" {
		order = engine.PrincipalFirst
	}
	svc := engine.NewService(store,
		engine.WithOrder(order),
		engine.WithHistoryPageSize(cfg.Engine.HistoryPageSize),
	)

	handler := api.NewHandler(svc, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Store.Path),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
