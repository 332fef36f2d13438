package training

import (
	"fmt"
	"math"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/ml"
)

// FraudConfig holds the fraud member hyperparameters and ensemble weights.
type FraudConfig struct {
	Logistic ml.LogisticConfig  `yaml:"logistic" json:"logistic"`
	MLP      ml.MLPConfig       `yaml:"mlp" json:"mlp"`
	Forest   ml.ForestConfig    `yaml:"forest" json:"forest"`
	GMM      ml.GMMConfig       `yaml:"gmm" json:"gmm"`
	Weights  map[string]float64 `yaml:"weights" json:"weights"`
}

// CreditConfig holds the credit member hyperparameters and ensemble weights.
type CreditConfig struct {
	Logistic ml.LogisticConfig  `yaml:"logistic" json:"logistic"`
	Tree     ml.TreeConfig      `yaml:"tree" json:"tree"`
	Forest   ml.ForestConfig    `yaml:"forest" json:"forest"`
	Boosting ml.BoostingConfig  `yaml:"boosting" json:"boosting"`
	Weights  map[string]float64 `yaml:"weights" json:"weights"`
}

// Config controls one training run.
type Config struct {
	Family         string  `yaml:"family" json:"family"`
	TestSize       float64 `yaml:"testSize" json:"test_size"`
	ValSize        float64 `yaml:"valSize" json:"val_size"` // share of the non-test rows
	MinSamples     int     `yaml:"minSamples" json:"min_samples"`
	SMOTEThreshold float64 `yaml:"smoteThreshold" json:"smote_threshold"`
	SMOTEK         int     `yaml:"smoteK" json:"smote_k"`
	CVFolds        int     `yaml:"cvFolds" json:"cv_folds"` // 0 disables cross-validation
	CVEpochs       int     `yaml:"cvEpochs" json:"cv_epochs"`
	// RefitTrainVal fits the served members on train+validation once the
	// validation metrics are taken. Test metrics then describe the refit.
	RefitTrainVal bool `yaml:"refitTrainVal" json:"refit_train_val"`
	Seed           uint64  `yaml:"seed" json:"seed"`
	DecisionCut    float64 `yaml:"decisionCut" json:"decision_cut"`
	Workers        int     `yaml:"workers" json:"workers"`

	Fraud  FraudConfig  `yaml:"fraud" json:"fraud"`
	Credit CreditConfig `yaml:"credit" json:"credit"`
}

// DefaultConfig returns the standard 60/20/20 run for family.
func DefaultConfig(family string) Config {
	return Config{
		Family:         family,
		TestSize:       0.2,
		ValSize:        0.25,
		MinSamples:     common.DefaultMinTrainingSamples,
		SMOTEThreshold: common.DefaultSMOTEThreshold,
		SMOTEK:         5,
		CVFolds:        common.DefaultCVFolds,
		CVEpochs:       10,
		Seed:           common.DefaultRandomSeed,
		DecisionCut:    common.DefaultDecisionCut,
		Workers:        4,
		Fraud: FraudConfig{
			Logistic: ml.DefaultLogisticConfig(),
			MLP:      ml.DefaultMLPConfig(),
			Forest:   ml.DefaultFraudForestConfig(),
			GMM:      ml.DefaultGMMConfig(),
			Weights:  artifact.DefaultWeights(common.FamilyFraud),
		},
		Credit: CreditConfig{
			Logistic: ml.DefaultCreditLogisticConfig(),
			Tree:     ml.DefaultTreeConfig(),
			Forest:   ml.DefaultCreditForestConfig(),
			Boosting: ml.DefaultBoostingConfig(),
			Weights:  artifact.DefaultWeights(common.FamilyCredit),
		},
	}
}

// Validate checks the run settings and the member configs of c.Family.
func (c Config) Validate() error {
	if c.Family != common.FamilyFraud && c.Family != common.FamilyCredit {
		return fmt.Errorf("training: unknown family %q", c.Family)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("training: test size must be in (0,1), got %v", c.TestSize)
	}
	if c.ValSize <= 0 || c.ValSize >= 1 {
		return fmt.Errorf("training: validation size must be in (0,1), got %v", c.ValSize)
	}
	if c.MinSamples < common.MinTrainingSamples {
		return fmt.Errorf("training: min samples must be at least %d, got %d", common.MinTrainingSamples, c.MinSamples)
	}
	if c.SMOTEThreshold < 0 || c.SMOTEThreshold >= 0.5 {
		return fmt.Errorf("training: SMOTE threshold must be in [0,0.5), got %v", c.SMOTEThreshold)
	}
	if c.SMOTEK < 1 {
		return fmt.Errorf("training: SMOTE k must be positive, got %d", c.SMOTEK)
	}
	if c.CVFolds != 0 && (c.CVFolds < common.MinCVFolds || c.CVFolds > common.MaxCVFolds) {
		return fmt.Errorf("training: CV folds must be 0 or between %d and %d, got %d", common.MinCVFolds, common.MaxCVFolds, c.CVFolds)
	}
	if c.CVEpochs < 1 {
		return fmt.Errorf("training: CV epochs must be positive, got %d", c.CVEpochs)
	}
	if c.DecisionCut <= 0 || c.DecisionCut >= 1 || math.IsNaN(c.DecisionCut) {
		return fmt.Errorf("training: decision cut must be in (0,1), got %v", c.DecisionCut)
	}
	if c.Workers < 1 {
		return fmt.Errorf("training: workers must be positive, got %d", c.Workers)
	}

	if c.Family == common.FamilyFraud {
		f := c.Fraud
		for _, err := range []error{f.Logistic.Validate(), f.MLP.Validate(), f.Forest.Validate(), f.GMM.Validate()} {
			if err != nil {
				return fmt.Errorf("training: %w", err)
			}
		}
		return artifact.ValidateWeights(c.Family, f.Weights)
	}
	cr := c.Credit
	for _, err := range []error{cr.Logistic.Validate(), cr.Tree.Validate(), cr.Forest.Validate(), cr.Boosting.Validate()} {
		if err != nil {
			return fmt.Errorf("training: %w", err)
		}
	}
	return artifact.ValidateWeights(c.Family, cr.Weights)
}

// seeded returns the member configs with the run seed applied, so one
// Seed reproduces the whole run.
func (c Config) seeded() Config {
	c.Fraud.MLP.Seed = c.Seed
	c.Fraud.Forest.Seed = c.Seed
	c.Fraud.GMM.Seed = c.Seed
	c.Credit.Tree.Seed = c.Seed
	c.Credit.Forest.Seed = c.Seed
	c.Credit.Boosting.Seed = c.Seed
	return c
}
