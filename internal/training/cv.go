package training

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/preprocess"
)

// CV metric names.
const (
	CVMetricF1  = "f1_score"
	CVMetricAUC = "roc_auc"
)

// crossValidate runs stratified k-fold CV on raw rows. Every fold fits
// its own pipeline and members on its training rows only. Fraud reports
// F1 with the MLP at reduced epochs; credit reports ROC-AUC.
func crossValidate(ctx context.Context, cfg Config, X [][]float64, y []int) (*artifact.CVSummary, error) {
	folds := StratifiedKFold(y, cfg.CVFolds, cfg.Seed)
	foldCfg := cfg
	foldCfg.Fraud.MLP.Epochs = cfg.CVEpochs
	metric := CVMetricAUC
	weights := cfg.Credit.Weights
	if cfg.Family == common.FamilyFraud {
		metric = CVMetricF1
		weights = cfg.Fraud.Weights
	}

	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(cfg.Workers, len(folds))))
	for f, fold := range folds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			Xtr, ytr := gatherRows(X, fold.Train), gatherLabels(y, fold.Train)
			pl, err := preprocess.Fit(Xtr)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			Xtr, err = pl.TransformAll(Xtr)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			Xte, err := pl.TransformAll(gatherRows(X, fold.Test))
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			if positiveRate(ytr) < cfg.SMOTEThreshold {
				Xtr, ytr = SMOTE(Xtr, ytr, cfg.SMOTEK, cfg.Seed+uint64(f))
			}

			b, err := fitBank(foldCfg, Xtr, ytr, nil, nil)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			comb, err := b.combiner(weights, cfg.DecisionCut)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			p := make([]float64, len(Xte))
			for i, row := range Xte {
				p[i] = comb.Combine(row).Probability
			}

			m := Evaluate(gatherLabels(y, fold.Test), p, cfg.DecisionCut)
			scores[f] = m.ROCAUC
			if metric == CVMetricF1 {
				scores[f] = m.F1
			}
			log.Debug().Int("fold", f+1).Str("metric", metric).Float64("score", scores[f]).Msg("CV fold complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cross-validation: %w", err)
	}

	mean, std := meanStd(scores)
	log.Info().
		Str("family", cfg.Family).
		Int("folds", len(folds)).
		Str("metric", metric).
		Float64("mean", mean).
		Float64("std", std).
		Msg("Cross-validation complete")
	return &artifact.CVSummary{Folds: len(folds), Metric: metric, Mean: mean, Std: std, Scores: scores}, nil
}
