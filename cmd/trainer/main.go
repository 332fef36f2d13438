package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/artifact"
	"risk-engine/internal/cfg"
	"risk-engine/internal/common"
	"risk-engine/internal/dataset"
	"risk-engine/internal/metrics"
	"risk-engine/internal/storage"
	"risk-engine/internal/training"
)

// dataFromStore selects the sample buckets of the bolt store as input.
const dataFromStore = "bolt"

type options struct {
	family      string
	data        string
	synthetic   int
	rate        float64
	out         string
	cvFolds     int
	refit       bool
	activate    bool
	keepSamples bool
	metricsFile string
}

func main() {
	var (
		opts     options
		logLevel string
	)
	flag.StringVar(&opts.family, "family", common.FamilyFraud, "Model family: fraud or credit")
	flag.StringVar(&opts.data, "data", "", "Labeled CSV or JSON file, or \"bolt\" for the stored samples")
	flag.IntVar(&opts.synthetic, "synthetic", 0, "Train on N generated records instead of -data")
	flag.Float64Var(&opts.rate, "rate", 0.05, "Positive rate of generated records")
	flag.StringVar(&opts.out, "out", "", "Output directory for the artifact and reports (default ARTIFACT_DIR)")
	flag.IntVar(&opts.cvFolds, "cv", -1, "Cross-validation folds, 0 disables (default from config)")
	flag.BoolVar(&opts.refit, "refit", false, "Refit the final members on train+validation (default from config)")
	flag.BoolVar(&opts.activate, "activate", false, "Activate the new version in the store")
	flag.BoolVar(&opts.keepSamples, "keep-samples", false, "Append the input records to the store's samples")
	flag.StringVar(&opts.metricsFile, "metrics-file", "", "Write training metrics in Prometheus text format to this file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if opts.out == "" {
		opts.out = settings.ArtifactDir
	}
	if opts.cvFolds >= 0 {
		settings.Training.CVFolds = opts.cvFolds
	}
	if opts.refit {
		settings.Training.RefitTrainVal = true
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Family: %s\n", opts.family)
	if opts.synthetic > 0 {
		fmt.Printf("Data: %d synthetic records (positive rate %.2f)\n", opts.synthetic, opts.rate)
	} else {
		fmt.Printf("Data: %s\n", opts.data)
	}
	fmt.Printf("Output Directory: %s\n", opts.out)
	fmt.Printf("Store: %s\n", settings.DataPath)
	fmt.Printf("CV Folds: %d\n", settings.Training.CVFolds)
	fmt.Printf("Final Fit: %s\n", finalFit(settings.Training.RefitTrainVal))
	fmt.Printf("Seed: %d\n", settings.Training.Seed)
	fmt.Println("==============================")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, settings, opts); err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
}

func finalFit(refit bool) string {
	if refit {
		return "train+validation"
	}
	return "train"
}

func run(ctx context.Context, settings cfg.Settings, opts options) error {
	tc, err := settings.TrainingConfig(opts.family)
	if err != nil {
		return err
	}
	trainer, err := training.New(tc)
	if err != nil {
		return err
	}

	var store *storage.Store
	if settings.DataPath != "" {
		if store, err = storage.New(settings.DataPath); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
	}

	registry := prometheus.NewRegistry()
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))

	start := time.Now()
	result, err := train(ctx, trainer, store, opts)
	mw.TrainingObserve(opts.family, time.Since(start), err)
	if opts.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(opts.metricsFile, registry); werr != nil {
			log.Warn().Err(werr).Str("file", opts.metricsFile).Msg("Failed to write metrics file")
		}
	}
	if err != nil {
		return err
	}

	path := filepath.Join(opts.out, artifact.FileName(opts.family))
	if err := artifact.Save(path, result.Artifact); err != nil {
		return err
	}
	log.Info().Str("path", path).Str("version", result.Artifact.Version).Msg("Artifact saved")

	reporter := training.NewReporter(result, opts.out)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate report")
	}
	reporter.PrintSummary()

	if store == nil {
		if opts.activate {
			log.Warn().Msg("No DATA_PATH configured, -activate ignored")
		}
		return nil
	}
	v, err := store.SaveArtifact(result.Artifact)
	if err != nil {
		return err
	}
	if opts.activate {
		if err := store.Activate(v.Family, v.Version); err != nil {
			return err
		}
		log.Info().Str("family", v.Family).Str("version", v.Version).Msg("Version activated; send SIGHUP to riskd or POST /v1/models/{family}/reload")
	}
	return nil
}

// train loads the input records of the trainer's family and fits them.
func train(ctx context.Context, trainer *training.Trainer, store *storage.Store, opts options) (*training.Result, error) {
	loader := dataset.NewLoader()
	seed := trainer.Config().Seed

	switch opts.family {
	case common.FamilyFraud:
		var recs []dataset.FraudRecord
		var err error
		switch {
		case opts.synthetic > 0:
			recs = dataset.GenerateFraud(opts.synthetic, opts.rate, seed)
		case opts.data == dataFromStore:
			if store == nil {
				return nil, fmt.Errorf("-data %s needs DATA_PATH", dataFromStore)
			}
			recs, err = loader.FraudFromStore(ctx, store)
		case opts.data != "":
			recs, err = loader.LoadFraud(opts.data)
		default:
			return nil, fmt.Errorf("either -data or -synthetic is required")
		}
		if err != nil {
			return nil, err
		}
		logInput(len(recs), loader.Skipped(), dataset.PositiveRate(recs))
		if opts.keepSamples && store != nil && opts.data != dataFromStore {
			if err := store.AddFraudSamples(recs); err != nil {
				return nil, err
			}
		}
		return trainer.TrainFraud(ctx, recs)

	case common.FamilyCredit:
		var recs []dataset.CreditRecord
		var err error
		switch {
		case opts.synthetic > 0:
			recs = dataset.GenerateCredit(opts.synthetic, opts.rate, seed)
		case opts.data == dataFromStore:
			if store == nil {
				return nil, fmt.Errorf("-data %s needs DATA_PATH", dataFromStore)
			}
			recs, err = loader.CreditFromStore(ctx, store)
		case opts.data != "":
			recs, err = loader.LoadCredit(opts.data)
		default:
			return nil, fmt.Errorf("either -data or -synthetic is required")
		}
		if err != nil {
			return nil, err
		}
		logInput(len(recs), loader.Skipped(), dataset.PositiveRate(recs))
		if opts.keepSamples && store != nil && opts.data != dataFromStore {
			if err := store.AddCreditSamples(recs); err != nil {
				return nil, err
			}
		}
		return trainer.TrainCredit(ctx, recs)
	}
	return nil, fmt.Errorf("unknown family %q", opts.family)
}

func logInput(n, skipped int, rate float64) {
	log.Info().Int("records", n).Int("skipped", skipped).Float64("positive_rate", rate).Msg("Input loaded")
}
