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
	var dataPath = flag.String("data", "./data", "Data directory path")
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Inspecting store in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	ctx := context.Background()
	loader := dataset.NewLoader()

	fmt.Println("\nSamples:")
	fraud, err := loader.FraudFromStore(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read fraud samples")
	}
	fmt.Printf("  fraud: %d records, positive rate %.4f\n", len(fraud), dataset.PositiveRate(fraud))
	credit, err := loader.CreditFromStore(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read credit samples")
	}
	fmt.Printf("  credit: %d records, positive rate %.4f\n", len(credit), dataset.PositiveRate(credit))

	for _, family := range []string{common.FamilyFraud, common.FamilyCredit} {
		fmt.Printf("\n%s versions:\n", family)
		versions, err := store.Versions(family)
		if err != nil {
			log.Fatal().Err(err).Str("family", family).Msg("Failed to list versions")
		}
		if len(versions) == 0 {
			fmt.Println("  (none)")
		}
		for _, v := range versions {
			marker := " "
			if v.Active {
				marker = "*"
			}
			fmt.Printf("  %s %s trained %s, test roc_auc %.4f\n",
				marker, v.Version, v.TrainedAt.Format("2006-01-02 15:04:05"), v.Metrics["roc_auc"])
		}
	}
}
