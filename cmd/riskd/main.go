package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/api"
	"risk-engine/internal/artifact"
	"risk-engine/internal/cfg"
	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
	"risk-engine/internal/metrics"
	"risk-engine/internal/storage"
)

// ageRefresh is how often the model age and drift gauges are updated and
// idle velocity history is pruned.
const ageRefresh = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if level, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	// a nil interface means "no store"; a typed nil would not be.
	var versions api.VersionStore
	if store != nil {
		versions = store
	}

	reg := ensemble.NewRegistry(mw, ensemble.WithDriftConfig(c.Drift))
	loadModels(ctx, reg, versions, c.ArtifactDir, true)

	velocity := features.NewVelocityTracker(c.VelocityWindow, c.VelocitySize)
	fraud := ensemble.NewFraudScorer(reg, mw, ensemble.WithVelocity(velocity), ensemble.WithTopFactors(c.TopFactors))
	credit := ensemble.NewCreditScorer(reg, mw, ensemble.WithCreditFactors(c.TopFactors))
	server := api.New(reg, fraud, credit, versions, mw, api.Options{
		Port:           c.ListenPort,
		RequestTimeout: c.RequestTimeout,
		StreamPing:     c.StreamPing,
	})

	startMetricsServer(ctx, c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("scoring API failed")
			cancel()
		}
	}()
	startReloader(ctx, &wg, reg, versions, velocity, c)

	waitForShutdown(ctx, cancel, server, &wg)
}

// initializeStorage opens the artifact store if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, serving artifacts from ARTIFACT_DIR only")
			return nil
		}
		return store
	}
	return nil
}

// loadModels installs every family from the store's active version. On
// the initial load a family the store cannot serve falls back to its
// artifact file in dir; later reloads keep the current engine instead so a
// store outage never swaps in a stale file. Without a store the files are
// the only source and are always read. A family that loads from nothing
// answers MODEL_UNAVAILABLE until a reload succeeds.
func loadModels(ctx context.Context, reg *ensemble.Registry, src ensemble.Source, dir string, initial bool) {
	for _, family := range reg.Families() {
		if src != nil {
			if _, err := reg.Reload(ctx, src, family); err == nil || !initial {
				continue
			}
		}
		path := filepath.Join(dir, artifact.FileName(family))
		e, err := reg.LoadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("family", family).Str("path", path).Msg("No model loaded, scoring unavailable")
			continue
		}
		log.Info().Str("family", family).Str("version", e.Version()).Str("path", path).Msg("Model loaded from file")
	}
	reg.RefreshAges(time.Now())
}

// startMetricsServer starts the Prometheus metrics HTTP server
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

// startReloader reloads models on SIGHUP and every RELOAD_INTERVAL, keeps
// the model age and score drift gauges current and drops idle users from
// the velocity history.
func startReloader(ctx context.Context, wg *sync.WaitGroup, reg *ensemble.Registry, src ensemble.Source, velocity *features.VelocityTracker, c cfg.Settings) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer signal.Stop(hup)
		ages := time.NewTicker(ageRefresh)
		defer ages.Stop()

		var reloadC <-chan time.Time
		if c.ReloadInterval > 0 {
			ticker := time.NewTicker(c.ReloadInterval)
			defer ticker.Stop()
			reloadC = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info().Msg("SIGHUP received, reloading models")
				loadModels(ctx, reg, src, c.ArtifactDir, false)
			case <-reloadC:
				loadModels(ctx, reg, src, c.ArtifactDir, false)
			case now := <-ages.C:
				reg.RefreshAges(now)
				reg.CheckDrift(now)
				if n := velocity.Prune(now); n > 0 {
					log.Debug().Int("users", n).Msg("Pruned idle velocity history")
				}
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *api.Server, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown scoring API")
	}
	cancel()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		log.Info().Msg("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timed out")
	}
}
