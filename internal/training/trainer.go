// Package training turns labeled records into a validated model artifact:
// encoding, stratified splitting, preprocessing, class rebalancing, member
// fitting, ensemble evaluation and cross-validation.
package training

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/dataset"
	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
	"risk-engine/internal/ml"
	"risk-engine/internal/preprocess"
)

// minPerClass keeps at least one row of each class in every partition.
const minPerClass = 5

// topFeatureCount is the number of features reported in the metadata.
const topFeatureCount = 5

// Result is the outcome of one training run.
type Result struct {
	Artifact   *artifact.Artifact
	Validation Metrics
	Test       Metrics
	Baseline   Metrics
	Members    map[string]Metrics
	CV         *artifact.CVSummary
	History    []ml.EpochStats
	Warnings   []*FeatureExtractionWarning

	// test-set predictions for the report
	TestIDs    []string
	TestLabels []int
	TestScores []float64
}

// Trainer runs training for one family.
type Trainer struct {
	cfg Config
	now func() time.Time
}

// New validates cfg and returns a trainer.
func New(cfg Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg.seeded(), now: time.Now}, nil
}

// Config returns the effective run configuration.
func (t *Trainer) Config() Config { return t.cfg }

// TrainFraud encodes recs and trains the fraud ensemble.
func (t *Trainer) TrainFraud(ctx context.Context, recs []dataset.FraudRecord) (*Result, error) {
	if t.cfg.Family != common.FamilyFraud {
		return nil, fmt.Errorf("training: trainer is configured for %s", t.cfg.Family)
	}
	rows := make([]encoded, 0, len(recs))
	var warnings []*FeatureExtractionWarning
	for i, r := range recs {
		x, err := encodeFraud(r)
		if err != nil {
			warnings = append(warnings, &FeatureExtractionWarning{Row: i, Err: err})
			continue
		}
		rows = append(rows, encoded{id: r.TransactionID, x: x, y: r.Label})
	}
	return t.train(ctx, rows, warnings)
}

// TrainCredit encodes recs and trains the credit ensemble.
func (t *Trainer) TrainCredit(ctx context.Context, recs []dataset.CreditRecord) (*Result, error) {
	if t.cfg.Family != common.FamilyCredit {
		return nil, fmt.Errorf("training: trainer is configured for %s", t.cfg.Family)
	}
	rows := make([]encoded, 0, len(recs))
	var warnings []*FeatureExtractionWarning
	for i, r := range recs {
		x, err := encodeCredit(r)
		if err != nil {
			warnings = append(warnings, &FeatureExtractionWarning{Row: i, Err: err})
			continue
		}
		rows = append(rows, encoded{id: r.UserID, x: x, y: r.Label})
	}
	return t.train(ctx, rows, warnings)
}

type encoded struct {
	id string
	x  []float64
	y  int
}

var errLabel = errors.New("label must be 0 or 1")

func encodeFraud(r dataset.FraudRecord) ([]float64, error) {
	if r.Label != 0 && r.Label != 1 {
		return nil, errLabel
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return features.EncodeTransaction(r.Transaction)
}

// encodeCredit checks only the history fields; the requested loan amount
// plays no part in the features.
func encodeCredit(r dataset.CreditRecord) ([]float64, error) {
	if r.Label != 0 && r.Label != 1 {
		return nil, errLabel
	}
	return features.EncodeCredit(r.CreditRequest)
}

func (t *Trainer) train(ctx context.Context, rows []encoded, warnings []*FeatureExtractionWarning) (*Result, error) {
	cfg := t.cfg
	start := t.now()
	for _, w := range warnings {
		log.Warn().Err(w.Err).Int("row", w.Row).Msg("Skipping row: feature extraction failed")
	}
	if len(warnings) > 0 {
		log.Warn().Int("skipped", len(warnings)).Msg("Rows skipped during feature extraction")
	}

	if len(rows) < cfg.MinSamples {
		return nil, &InsufficientDataError{Partition: "training", Have: len(rows), Need: cfg.MinSamples}
	}
	X := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		X[i], y[i] = r.x, r.y
	}
	if counts := byClass(y); len(counts[1]) < minPerClass {
		return nil, &InsufficientDataError{Partition: "positive class", Have: len(counts[1]), Need: minPerClass}
	} else if len(counts[0]) < minPerClass {
		return nil, &InsufficientDataError{Partition: "negative class", Have: len(counts[0]), Need: minPerClass}
	}

	split := StratifiedSplit(y, cfg.TestSize, cfg.ValSize, cfg.Seed)
	rawTrain, yTrain := gatherRows(X, split.Train), gatherLabels(y, split.Train)
	rawVal, yVal := gatherRows(X, split.Val), gatherLabels(y, split.Val)
	rawTest, yTest := gatherRows(X, split.Test), gatherLabels(y, split.Test)
	trainRate := positiveRate(yTrain)
	log.Info().
		Str("family", cfg.Family).
		Int("train", len(split.Train)).
		Int("val", len(split.Val)).
		Int("test", len(split.Test)).
		Float64("train_positive_rate", trainRate).
		Msg("Data split complete")

	f, err := t.fit(ctx, rawTrain, yTrain, rawVal, yVal)
	if err != nil {
		return nil, err
	}
	log.Info().Str("family", cfg.Family).Dur("elapsed", t.now().Sub(start)).Msg("Members fitted")

	a, eng, err := t.assemble(f)
	if err != nil {
		return nil, err
	}
	valResults, err := t.predict(ctx, eng, rawVal)
	if err != nil {
		return nil, err
	}

	var cv *artifact.CVSummary
	if cfg.CVFolds > 0 {
		if cv, err = crossValidate(ctx, cfg, rawTrain, yTrain); err != nil {
			return nil, err
		}
	}

	if cfg.RefitTrainVal {
		rawAll := append(slices.Clone(rawTrain), rawVal...)
		yAll := append(slices.Clone(yTrain), yVal...)
		if f, err = t.fit(ctx, rawAll, yAll, rawVal, yVal); err != nil {
			return nil, fmt.Errorf("refit on train+validation: %w", err)
		}
		if a, eng, err = t.assemble(f); err != nil {
			return nil, err
		}
		log.Info().Str("family", cfg.Family).Int("rows", len(rawAll)).Msg("Final members refitted on train+validation")
	}
	pl, b := f.pl, f.bank

	testResults, err := t.predict(ctx, eng, rawTest)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Artifact:   a,
		Validation: Evaluate(yVal, probabilities(valResults), cfg.DecisionCut),
		Test:       Evaluate(yTest, probabilities(testResults), cfg.DecisionCut),
		Baseline:   Baseline(yTest, trainRate, cfg.DecisionCut),
		Members:    make(map[string]Metrics),
		CV:         cv,
		Warnings:   warnings,
		TestLabels: yTest,
		TestScores: probabilities(testResults),
	}
	for _, i := range split.Test {
		res.TestIDs = append(res.TestIDs, rows[i].id)
	}
	for _, name := range artifact.Members(cfg.Family) {
		scores := make([]float64, len(testResults))
		for i, r := range testResults {
			scores[i] = r.Scores[name]
		}
		res.Members[name] = Evaluate(yTest, scores, cfg.DecisionCut)
	}
	if b.mlp != nil {
		res.History = b.mlp.History()
	}

	credit := cfg.Family == common.FamilyCredit
	md := artifact.Metadata{
		TrainedAt:         t.now().UTC(),
		NFeatures:         pl.Dim(),
		NTrain:            len(split.Train),
		NVal:              len(split.Val),
		NTest:             len(split.Test),
		SkippedRows:       len(warnings),
		TrainPositiveRate: trainRate,
		TestPositiveRate:  positiveRate(yTest),
		SMOTEApplied:      f.smote,
		RefitTrainVal:     cfg.RefitTrainVal,
		Validation:        res.Validation.Map(credit),
		Test:              res.Test.Map(credit),
		Baseline:          res.Baseline.Map(credit),
		Members:           make(map[string]map[string]float64, len(res.Members)),
		TopFeatures:       ml.TopFeatures(a.FeatureNames, b.importance(pl.Dim(), a.Weights), topFeatureCount),
		CV:                res.CV,
		ScoreHistogram:    ml.Histogram(res.TestScores, ml.DriftBins),
	}
	for name, m := range res.Members {
		md.Members[name] = m.Map(credit)
	}
	if b.gmm != nil {
		th := b.gmm.Threshold()
		md.AnomalyThreshold = &th
		md.MLPBestEpoch = b.mlp.BestEpoch()
	}
	a.Metadata = md

	log.Info().
		Str("family", cfg.Family).
		Str("version", a.Version).
		Float64("test_roc_auc", res.Test.ROCAUC).
		Float64("test_f1", res.Test.F1).
		Float64("baseline_accuracy", res.Baseline.Accuracy).
		Dur("elapsed", t.now().Sub(start)).
		Msg("Training complete")
	return res, nil
}

// fitted is one preprocessing, rebalancing and member fit.
type fitted struct {
	pl    *preprocess.Pipeline
	bank  *bank
	smote bool
}

// fit learns the pipeline on rawFit, oversamples it when its positive
// rate is below the SMOTE threshold and fits every member. The validation
// rows only drive the MLP's plateau and early-stopping checks.
func (t *Trainer) fit(ctx context.Context, rawFit [][]float64, yFit []int, rawVal [][]float64, yVal []int) (*fitted, error) {
	cfg := t.cfg
	pl, err := preprocess.Fit(rawFit)
	if err != nil {
		return nil, fmt.Errorf("fit preprocessing: %w", err)
	}
	X, err := pl.TransformAll(rawFit)
	if err != nil {
		return nil, err
	}
	Xval, err := pl.TransformAll(rawVal)
	if err != nil {
		return nil, err
	}

	smote := false
	y := yFit
	if positiveRate(yFit) < cfg.SMOTEThreshold {
		before := len(X)
		X, y = SMOTE(X, y, cfg.SMOTEK, cfg.Seed)
		smote = len(X) > before
		if smote {
			log.Info().Int("before", before).Int("after", len(X)).Msg("SMOTE applied to training partition")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := fitBank(cfg, X, y, Xval, yVal)
	if err != nil {
		return nil, fmt.Errorf("fit members: %w", err)
	}
	return &fitted{pl: pl, bank: b, smote: smote}, nil
}

// assemble collects f into a trained artifact and builds its engine.
func (t *Trainer) assemble(f *fitted) (*artifact.Artifact, *ensemble.Engine, error) {
	a := artifact.New(t.cfg.Family)
	a.Trained = true
	a.Preprocess = f.pl.Params()
	a.DecisionCut = t.cfg.DecisionCut
	a.Weights = t.weights()
	if err := f.bank.store(a); err != nil {
		return nil, nil, fmt.Errorf("collect member parameters: %w", err)
	}
	eng, err := ensemble.NewEngine(a)
	if err != nil {
		return nil, nil, fmt.Errorf("trained artifact is invalid: %w", err)
	}
	return a, eng, nil
}

func (t *Trainer) weights() map[string]float64 {
	src := t.cfg.Credit.Weights
	if t.cfg.Family == common.FamilyFraud {
		src = t.cfg.Fraud.Weights
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// predict scores raw rows through the engine in parallel chunks.
func (t *Trainer) predict(ctx context.Context, eng *ensemble.Engine, X [][]float64) ([]ensemble.Result, error) {
	out := make([]ensemble.Result, len(X))
	chunk := max(1, (len(X)+t.cfg.Workers-1)/t.cfg.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(X); lo += chunk {
		hi := min(lo+chunk, len(X))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				r, _, err := eng.Predict(features.FeatureVector(X[i]))
				if err != nil {
					return fmt.Errorf("evaluate row %d: %w", i, err)
				}
				out[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func probabilities(rs []ensemble.Result) []float64 {
	p := make([]float64, len(rs))
	for i, r := range rs {
		p[i] = r.Probability
	}
	return p
}
