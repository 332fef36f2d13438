package main

import (
	"context"
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
		dataPath = flag.String("data", "./data", "Data directory path")
		family   = flag.String("family", common.FamilyFraud, "Sample family: fraud or credit")
		output   = flag.String("output", "", "Output CSV file (default <family>_samples.csv)")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *output == "" {
		*output = *family + "_samples.csv"
	}

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	ctx := context.Background()
	loader := dataset.NewLoader()
	var n int
	switch *family {
	case common.FamilyFraud:
		recs, lerr := loader.FraudFromStore(ctx, store)
		if err = lerr; err == nil {
			n, err = len(recs), dataset.WriteFraudCSV(f, recs)
		}
	case common.FamilyCredit:
		recs, lerr := loader.CreditFromStore(ctx, store)
		if err = lerr; err == nil {
			n, err = len(recs), dataset.WriteCreditCSV(f, recs)
		}
	default:
		err = fmt.Errorf("unknown family %q", *family)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("✓ Exported %d %s samples to %s\n", n, *family, *output)
}
