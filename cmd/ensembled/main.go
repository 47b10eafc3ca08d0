package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ensemble-engine/internal/cfg"
	"ensemble-engine/internal/engine"
	"ensemble-engine/internal/feed"
	"ensemble-engine/internal/metrics"
	"ensemble-engine/internal/model"
	"ensemble-engine/internal/storage"
	"ensemble-engine/internal/strategy"
	"ensemble-engine/internal/tracker"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	eng := buildEngine(c, store, mw)

	startMetricsServer(ctx, c)

	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
		log.Info().Str("session", sessionID).Msg("generated session id")
	}

	var wg sync.WaitGroup
	if c.FeedURL != "" {
		startFeedLoop(ctx, &wg, c, eng, mw, sessionID)
	} else {
		log.Warn().Msg("no feed configured, engine is idle until outcomes arrive elsewhere")
	}

	waitForShutdown(ctx, cancel, &wg)
}

func buildEngine(c cfg.Settings, store *storage.Store, mw *metrics.Wrapper) *engine.Engine {
	engCfg := engine.Config{
		WindowSize:      c.WindowSize,
		MinHistory:      c.MinHistory,
		TieEpsilon:      c.TieEpsilon,
		StrategyTimeout: c.StrategyTimeout,
		Tracker: tracker.Config{
			DefaultWeight: c.DefaultWeight,
			MinWeight:     c.MinWeight,
			MaxWeight:     c.MaxWeight,
			Alpha:         c.WeightAlpha,
		},
	}

	var hs engine.HistoryStore
	if store != nil {
		hs = store
	}
	eng := engine.New(engCfg, hs, mw)

	for _, s := range []strategy.Strategy{
		strategy.NewStreak(c.StreakMinRun, c.StreakFade),
		strategy.NewFrequency(),
		strategy.NewPattern(c.PatternLength),
	} {
		if err := eng.RegisterStrategy(s); err != nil {
			log.Fatal().Err(err).Msg("strategy registration failed")
		}
	}

	if c.ModelURL != "" {
		client := model.New(model.Config{
			BaseURL: c.ModelURL,
			Name:    c.ModelName,
			Timeout: c.ModelTimeout,
		}, mw)
		if err := eng.SetModel(client); err != nil {
			log.Fatal().Err(err).Msg("model registration failed")
		}
	}
	return eng
}

func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startFeedLoop consumes the outcome feed: each event resolves the
// previous cycle's predictions, then immediately runs the next
// prediction cycle over the updated history.
func startFeedLoop(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings, eng *engine.Engine, mw *metrics.Wrapper, sessionID string) {
	events := make(chan feed.Event, 16)
	f := feed.New(c.FeedURL, mw)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.Stream(ctx, events, c.FeedPing); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("outcome feed ended")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				session := ev.SessionID
				if session == "" {
					session = sessionID
				}
				if _, err := eng.ResolveOutcome(ctx, ev.Outcome, session); err != nil {
					log.Error().Err(err).Str("outcome", string(ev.Outcome)).Msg("outcome resolution failed")
					continue
				}
				consensus, err := eng.Predict(ctx, engine.PredictOptions{Persist: true})
				if err != nil {
					log.Warn().Err(err).Msg("prediction cycle skipped")
					continue
				}
				log.Info().
					Str("label", string(consensus.Label)).
					Float64("confidence", consensus.Confidence).
					Msg("next outcome predicted")
			}
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
