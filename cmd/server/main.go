/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load configuration (env vars, optional .env file)
  2. Build the structured logger
  3. Open the SQLite store (movements, checkpoints, counters)
  4. Wire the ledger components and the router
  5. Serve with graceful shutdown on SIGINT/SIGTERM

The store path defaults to ./ledger.db; set DB_PATH=":memory:" for an
ephemeral instance.
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdant/stock-ledger/api"
	"github.com/verdant/stock-ledger/config"
	"github.com/verdant/stock-ledger/ledger"
	"github.com/verdant/stock-ledger/logger"
	"github.com/verdant/stock-ledger/numbering"
	"github.com/verdant/stock-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to open store")
	}
	defer store.Close()

	recorder := ledger.NewRecorder(store)
	calc := ledger.NewCheckpointedCalculator(store, store)
	reverser := ledger.NewReverser(store, recorder)
	tracer := ledger.NewTracer(store)
	numbers := numbering.NewGenerator(store)

	handler := api.NewHandler(recorder, calc, reverser, tracer, numbers, log)
	router := api.NewRouter(handler, cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("db", cfg.DB.Path).Msg("stock ledger listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
