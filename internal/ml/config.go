package ml

import (
	"fmt"
	"math"
)

// ConfigVersion is bumped whenever a hyperparameter struct changes shape.
const ConfigVersion = 1

// LogisticConfig configures L2-regularised logistic regression.
type LogisticConfig struct {
	Version     int     `yaml:"version" json:"version"`
	C           float64 `yaml:"c" json:"c"`                      // inverse regularisation strength
	ClassWeight string  `yaml:"classWeight" json:"class_weight"` // none or balanced
	MaxIter     int     `yaml:"maxIter" json:"max_iter"`
	Tol         float64 `yaml:"tol" json:"tol"`
}

func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{Version: ConfigVersion, C: 1.0, ClassWeight: ClassWeightBalanced, MaxIter: 100, Tol: 1e-6}
}

// DefaultCreditLogisticConfig regularises the credit model more strongly.
func DefaultCreditLogisticConfig() LogisticConfig {
	c := DefaultLogisticConfig()
	c.C = 0.5
	return c
}

func (c LogisticConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("logistic: unsupported config version %d", c.Version)
	}
	if c.C <= 0 || math.IsInf(c.C, 0) {
		return fmt.Errorf("logistic: C must be positive, got %v", c.C)
	}
	if c.MaxIter < 1 || c.MaxIter > 10000 {
		return fmt.Errorf("logistic: max iterations must be between 1 and 10000, got %d", c.MaxIter)
	}
	if c.Tol <= 0 {
		return fmt.Errorf("logistic: tolerance must be positive, got %v", c.Tol)
	}
	return validClassWeight(c.ClassWeight, false)
}

// MLPConfig configures the feed-forward fraud network.
type MLPConfig struct {
	Version           int       `yaml:"version" json:"version"`
	Hidden            []int     `yaml:"hidden" json:"hidden"`
	Dropout           []float64 `yaml:"dropout" json:"dropout"` // one rate per hidden layer
	LearningRate      float64   `yaml:"learningRate" json:"learning_rate"`
	Epochs            int       `yaml:"epochs" json:"epochs"`
	BatchSize         int       `yaml:"batchSize" json:"batch_size"`
	ClipNorm          float64   `yaml:"clipNorm" json:"clip_norm"`
	PlateauFactor     float64   `yaml:"plateauFactor" json:"plateau_factor"`
	PlateauPatience   int       `yaml:"plateauPatience" json:"plateau_patience"`
	EarlyStopPatience int       `yaml:"earlyStopPatience" json:"early_stop_patience"`
	ValidationSplit   float64   `yaml:"validationSplit" json:"validation_split"` // used by Fit without an explicit validation set
	Seed              uint64    `yaml:"seed" json:"seed"`
}

func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		Version:           ConfigVersion,
		Hidden:            []int{64, 32, 16},
		Dropout:           []float64{0.3, 0.2, 0},
		LearningRate:      0.001,
		Epochs:            50,
		BatchSize:         32,
		ClipNorm:          1.0,
		PlateauFactor:     0.5,
		PlateauPatience:   5,
		EarlyStopPatience: 10,
		ValidationSplit:   0.1,
		Seed:              42,
	}
}

func (c MLPConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("mlp: unsupported config version %d", c.Version)
	}
	if len(c.Hidden) == 0 || len(c.Hidden) > 5 {
		return fmt.Errorf("mlp: between 1 and 5 hidden layers required, got %d", len(c.Hidden))
	}
	if len(c.Dropout) != len(c.Hidden) {
		return fmt.Errorf("mlp: %d dropout rates for %d hidden layers", len(c.Dropout), len(c.Hidden))
	}
	for i, h := range c.Hidden {
		if h < 1 || h > 4096 {
			return fmt.Errorf("mlp: hidden layer %d size must be between 1 and 4096, got %d", i, h)
		}
		if c.Dropout[i] < 0 || c.Dropout[i] >= 1 {
			return fmt.Errorf("mlp: dropout %d must be in [0,1), got %v", i, c.Dropout[i])
		}
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("mlp: learning rate must be in (0,1], got %v", c.LearningRate)
	}
	if c.Epochs < 1 || c.BatchSize < 1 {
		return fmt.Errorf("mlp: epochs and batch size must be positive, got %d/%d", c.Epochs, c.BatchSize)
	}
	if c.ClipNorm <= 0 {
		return fmt.Errorf("mlp: clip norm must be positive, got %v", c.ClipNorm)
	}
	if c.PlateauFactor <= 0 || c.PlateauFactor >= 1 {
		return fmt.Errorf("mlp: plateau factor must be in (0,1), got %v", c.PlateauFactor)
	}
	if c.PlateauPatience < 0 || c.EarlyStopPatience < 1 {
		return fmt.Errorf("mlp: invalid patience %d/%d", c.PlateauPatience, c.EarlyStopPatience)
	}
	if c.ValidationSplit <= 0 || c.ValidationSplit >= 0.5 {
		return fmt.Errorf("mlp: validation split must be in (0,0.5), got %v", c.ValidationSplit)
	}
	return nil
}

// TreeConfig configures a single CART classification tree.
type TreeConfig struct {
	Version         int    `yaml:"version" json:"version"`
	MaxDepth        int    `yaml:"maxDepth" json:"max_depth"`
	MinSamplesSplit int    `yaml:"minSamplesSplit" json:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"minSamplesLeaf" json:"min_samples_leaf"`
	MaxFeatures     string `yaml:"maxFeatures" json:"max_features"` // all, sqrt, log2
	ClassWeight     string `yaml:"classWeight" json:"class_weight"`
	Seed            uint64 `yaml:"seed" json:"seed"`
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		Version:         ConfigVersion,
		MaxDepth:        5,
		MinSamplesSplit: 50,
		MinSamplesLeaf:  20,
		MaxFeatures:     "all",
		ClassWeight:     ClassWeightBalanced,
		Seed:            42,
	}
}

func (c TreeConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("tree: unsupported config version %d", c.Version)
	}
	if err := validGrowth(c.MaxDepth, c.MinSamplesSplit, c.MinSamplesLeaf); err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	if _, err := featureCount(c.MaxFeatures, 1); err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	return validClassWeight(c.ClassWeight, false)
}

// ForestConfig configures a bagged random forest.
type ForestConfig struct {
	Version         int    `yaml:"version" json:"version"`
	Trees           int    `yaml:"trees" json:"trees"`
	MaxDepth        int    `yaml:"maxDepth" json:"max_depth"`
	MinSamplesSplit int    `yaml:"minSamplesSplit" json:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"minSamplesLeaf" json:"min_samples_leaf"`
	MaxFeatures     string `yaml:"maxFeatures" json:"max_features"`
	ClassWeight     string `yaml:"classWeight" json:"class_weight"`
	Workers         int    `yaml:"workers" json:"workers"`
	Seed            uint64 `yaml:"seed" json:"seed"`
}

// DefaultFraudForestConfig matches the fraud ensemble forest.
func DefaultFraudForestConfig() ForestConfig {
	return ForestConfig{
		Version:         ConfigVersion,
		Trees:           100,
		MaxDepth:        10,
		MinSamplesSplit: 20,
		MinSamplesLeaf:  10,
		MaxFeatures:     "sqrt",
		ClassWeight:     ClassWeightBalancedSubsample,
		Workers:         4,
		Seed:            42,
	}
}

// DefaultCreditForestConfig matches the credit ensemble forest.
func DefaultCreditForestConfig() ForestConfig {
	return ForestConfig{
		Version:         ConfigVersion,
		Trees:           200,
		MaxDepth:        10,
		MinSamplesSplit: 30,
		MinSamplesLeaf:  15,
		MaxFeatures:     "sqrt",
		ClassWeight:     ClassWeightBalanced,
		Workers:         4,
		Seed:            42,
	}
}

func (c ForestConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("forest: unsupported config version %d", c.Version)
	}
	if c.Trees < 1 || c.Trees > 5000 {
		return fmt.Errorf("forest: trees must be between 1 and 5000, got %d", c.Trees)
	}
	if c.Workers < 1 || c.Workers > 256 {
		return fmt.Errorf("forest: workers must be between 1 and 256, got %d", c.Workers)
	}
	if err := validGrowth(c.MaxDepth, c.MinSamplesSplit, c.MinSamplesLeaf); err != nil {
		return fmt.Errorf("forest: %w", err)
	}
	if _, err := featureCount(c.MaxFeatures, 1); err != nil {
		return fmt.Errorf("forest: %w", err)
	}
	return validClassWeight(c.ClassWeight, true)
}

// BoostingConfig configures gradient-boosted trees on the log-loss.
type BoostingConfig struct {
	Version         int     `yaml:"version" json:"version"`
	Trees           int     `yaml:"trees" json:"trees"`
	LearningRate    float64 `yaml:"learningRate" json:"learning_rate"`
	MaxDepth        int     `yaml:"maxDepth" json:"max_depth"`
	MinSamplesSplit int     `yaml:"minSamplesSplit" json:"min_samples_split"`
	MinSamplesLeaf  int     `yaml:"minSamplesLeaf" json:"min_samples_leaf"`
	Subsample       float64 `yaml:"subsample" json:"subsample"`
	Seed            uint64  `yaml:"seed" json:"seed"`
}

func DefaultBoostingConfig() BoostingConfig {
	return BoostingConfig{
		Version:         ConfigVersion,
		Trees:           100,
		LearningRate:    0.1,
		MaxDepth:        3,
		MinSamplesSplit: 30,
		MinSamplesLeaf:  15,
		Subsample:       0.8,
		Seed:            42,
	}
}

func (c BoostingConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("boosting: unsupported config version %d", c.Version)
	}
	if c.Trees < 1 || c.Trees > 5000 {
		return fmt.Errorf("boosting: trees must be between 1 and 5000, got %d", c.Trees)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("boosting: learning rate must be in (0,1], got %v", c.LearningRate)
	}
	if c.Subsample <= 0 || c.Subsample > 1 {
		return fmt.Errorf("boosting: subsample must be in (0,1], got %v", c.Subsample)
	}
	if err := validGrowth(c.MaxDepth, c.MinSamplesSplit, c.MinSamplesLeaf); err != nil {
		return fmt.Errorf("boosting: %w", err)
	}
	return nil
}

// GMMConfig configures the Gaussian mixture anomaly detector.
type GMMConfig struct {
	Version    int     `yaml:"version" json:"version"`
	Components int     `yaml:"components" json:"components"`
	MaxIter    int     `yaml:"maxIter" json:"max_iter"`
	Tol        float64 `yaml:"tol" json:"tol"`
	RegCovar   float64 `yaml:"regCovar" json:"reg_covar"`
	// ThresholdQuantile picks the anomaly cut-off from the training
	// log-likelihoods. It is ignored when FixedThreshold is set.
	ThresholdQuantile float64  `yaml:"thresholdQuantile" json:"threshold_quantile"`
	FixedThreshold    *float64 `yaml:"fixedThreshold,omitempty" json:"fixed_threshold,omitempty"`
	Seed              uint64   `yaml:"seed" json:"seed"`
}

func DefaultGMMConfig() GMMConfig {
	return GMMConfig{
		Version:           ConfigVersion,
		Components:        5,
		MaxIter:           100,
		Tol:               1e-3,
		RegCovar:          1e-6,
		ThresholdQuantile: 0.01,
		Seed:              42,
	}
}

func (c GMMConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("gmm: unsupported config version %d", c.Version)
	}
	if c.Components < 1 || c.Components > 64 {
		return fmt.Errorf("gmm: components must be between 1 and 64, got %d", c.Components)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("gmm: max iterations must be positive, got %d", c.MaxIter)
	}
	if c.Tol <= 0 || c.RegCovar < 0 {
		return fmt.Errorf("gmm: invalid tol/reg %v/%v", c.Tol, c.RegCovar)
	}
	if c.FixedThreshold == nil && (c.ThresholdQuantile <= 0 || c.ThresholdQuantile >= 0.5) {
		return fmt.Errorf("gmm: threshold quantile must be in (0,0.5), got %v", c.ThresholdQuantile)
	}
	return nil
}

func validGrowth(depth, split, leaf int) error {
	if depth < 1 || depth > 64 {
		return fmt.Errorf("max depth must be between 1 and 64, got %d", depth)
	}
	if split < 2 {
		return fmt.Errorf("min samples split must be at least 2, got %d", split)
	}
	if leaf < 1 {
		return fmt.Errorf("min samples leaf must be at least 1, got %d", leaf)
	}
	return nil
}

func validClassWeight(mode string, subsample bool) error {
	switch mode {
	case ClassWeightNone, ClassWeightBalanced:
		return nil
	case ClassWeightBalancedSubsample:
		if subsample {
			return nil
		}
	}
	return fmt.Errorf("unsupported class weight %q", mode)
}

// featureCount resolves a max-features mode for d input columns.
func featureCount(mode string, d int) (int, error) {
	switch mode {
	case "", "all":
		return d, nil
	case "sqrt":
		return max(1, int(math.Sqrt(float64(d)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(d)))), nil
	}
	return 0, fmt.Errorf("unsupported max features %q", mode)
}
