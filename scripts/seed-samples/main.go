package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/common"
	"risk-engine/internal/dataset"
	"risk-engine/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "data", "Data directory path")
		family   = flag.String("family", common.FamilyFraud, "Sample family: fraud or credit")
		n        = flag.Int("n", 5000, "Number of records to generate")
		rate     = flag.Float64("rate", 0.05, "Positive rate")
		seed     = flag.Uint64("seed", common.DefaultRandomSeed, "Random seed")
		csvPath  = flag.String("csv", "", "Also write the records to this CSV file")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Generating %d %s samples...\n", *n, *family)
	fmt.Printf("  Positive Rate: %.2f\n", *rate)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Data Path: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage")
	}
	defer store.Close()

	switch *family {
	case common.FamilyFraud:
		recs := dataset.GenerateFraud(*n, *rate, *seed)
		err = store.AddFraudSamples(recs)
		if err == nil && *csvPath != "" {
			err = writeCSV(*csvPath, func(f *os.File) error { return dataset.WriteFraudCSV(f, recs) })
		}
	case common.FamilyCredit:
		recs := dataset.GenerateCredit(*n, *rate, *seed)
		err = store.AddCreditSamples(recs)
		if err == nil && *csvPath != "" {
			err = writeCSV(*csvPath, func(f *os.File) error { return dataset.WriteCreditCSV(f, recs) })
		}
	default:
		err = fmt.Errorf("unknown family %q", *family)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate samples")
	}

	count, err := store.SampleCount(*family)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count samples")
	}
	fmt.Printf("✓ Stored %d %s samples (%d total)\n", *n, *family, count)
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
