package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/classbench/internal/app"
	"github.com/Brownie44l1/classbench/internal/config"
	"github.com/Brownie44l1/classbench/internal/handlers"
	applog "github.com/Brownie44l1/classbench/internal/log"
	"github.com/rs/zerolog/log"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	applog.Init(cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	// Warm up the default model so the first request does not pay for it.
	d, _ := a.Catalog.Lookup(cfg.DefaultModel)
	if err := a.Coordinator.EnsureLoaded(context.Background(), d); err != nil {
		log.Error().Err(err).Str("model", d.ID).Msg("failed to preload default model")
	}

	handler := handlers.NewHandler(handlers.Options{
		Coordinator:  a.Coordinator,
		Runner:       a.Runner,
		Normalizer:   a.Normalizer,
		Catalog:      a.Catalog,
		Labels:       a.Labels,
		Samples:      a.Samples,
		DefaultModel: cfg.DefaultModel,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/models", enableCORS(handler.Models))
	mux.HandleFunc("/predict/image", enableCORS(handler.PredictFromImage))
	mux.HandleFunc("/benchmark", enableCORS(handler.Benchmark))
	mux.HandleFunc("/benchmark/custom", enableCORS(handler.BenchmarkCustom))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		log.Info().Str("port", cfg.Port).Int("samples", len(a.Samples)).Str("model", a.Coordinator.Current()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("server stopped")
}
