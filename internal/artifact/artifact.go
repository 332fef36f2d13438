// Package artifact defines the persisted model unit: preprocessing
// parameters, every member's learned parameters, ensemble weights and tier
// tables. Artifacts are written once per training run and validated in
// full on load.
package artifact

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"risk-engine/internal/common"
	"risk-engine/internal/features"
	"risk-engine/internal/ml"
	"risk-engine/internal/policy"
	"risk-engine/internal/preprocess"
)

// SchemaVersion is bumped whenever the JSON layout changes.
const SchemaVersion = 1

// Models holds one sub-section per member. Only the members of the
// artifact's family are set.
type Models struct {
	Logistic         *ml.LogisticParams `json:"logistic_regression,omitempty"`
	NeuralNetwork    *ml.MLPParams      `json:"neural_network,omitempty"`
	RandomForest     *ml.ForestParams   `json:"random_forest,omitempty"`
	DecisionTree     *ml.TreeParams     `json:"decision_tree,omitempty"`
	GradientBoosting *ml.BoostingParams `json:"gradient_boosting,omitempty"`
}

// CVSummary reports k-fold cross-validation of one metric.
type CVSummary struct {
	Folds  int       `json:"folds"`
	Metric string    `json:"metric"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Scores []float64 `json:"scores"`
}

// Metadata describes the training run that produced an artifact.
type Metadata struct {
	TrainedAt         time.Time                     `json:"training_date"`
	NFeatures         int                           `json:"n_features"`
	NTrain            int                           `json:"n_train"`
	NVal              int                           `json:"n_val"`
	NTest             int                           `json:"n_test"`
	SkippedRows       int                           `json:"skipped_rows"`
	TrainPositiveRate float64                       `json:"train_positive_rate"`
	TestPositiveRate  float64                       `json:"test_positive_rate"`
	SMOTEApplied      bool                          `json:"smote_applied"`
	RefitTrainVal     bool                          `json:"refit_train_val,omitempty"`
	Validation        map[string]float64            `json:"validation_metrics,omitempty"`
	Test              map[string]float64            `json:"test_metrics,omitempty"`
	Baseline          map[string]float64            `json:"baseline_metrics,omitempty"`
	Members           map[string]map[string]float64 `json:"member_metrics,omitempty"`
	TopFeatures       []ml.FeatureScore             `json:"top_features,omitempty"`
	CV                *CVSummary                    `json:"cross_validation,omitempty"`
	AnomalyThreshold  *float64                      `json:"anomaly_threshold,omitempty"`
	MLPBestEpoch      int                           `json:"mlp_best_epoch,omitempty"`
	ScoreHistogram    []float64                     `json:"score_histogram,omitempty"`
}

// Artifact is the complete persisted model of one family.
type Artifact struct {
	SchemaVersion int                `json:"schema_version"`
	Family        string             `json:"family"`
	Version       string             `json:"version"`
	Trained       bool               `json:"trained"`
	FeatureNames  []string           `json:"feature_names"`
	Preprocess    preprocess.Params  `json:"preprocessing"`
	Models        Models             `json:"models"`
	Anomaly       *ml.GMMParams      `json:"anomaly_detector,omitempty"`
	Weights       map[string]float64 `json:"weights"`
	FraudBands    policy.FraudBands  `json:"fraud_bands,omitempty"`
	CreditBands   policy.CreditBands `json:"credit_bands,omitempty"`
	DecisionCut   float64            `json:"decision_cut"`
	Metadata      Metadata           `json:"metadata"`
}

// New returns an untrained artifact for family with a fresh version id and
// the default weights, tier table and feature names.
func New(family string) *Artifact {
	a := &Artifact{
		SchemaVersion: SchemaVersion,
		Family:        family,
		Version:       uuid.NewString(),
		Weights:       DefaultWeights(family),
		DecisionCut:   common.DefaultDecisionCut,
	}
	switch family {
	case common.FamilyFraud:
		a.FeatureNames = append([]string(nil), features.FraudFeatureNames...)
		a.FraudBands = policy.DefaultFraudBands()
	case common.FamilyCredit:
		a.FeatureNames = append([]string(nil), features.CreditFeatureNames...)
		a.CreditBands = policy.DefaultCreditBands()
	}
	return a
}

// Members lists the ensemble members of a family in evaluation order.
func Members(family string) []string {
	switch family {
	case common.FamilyFraud:
		return []string{ml.NameLogistic, ml.NameNeuralNetwork, ml.NameRandomForest, ml.NameGMM}
	case common.FamilyCredit:
		return []string{ml.NameLogistic, ml.NameDecisionTree, ml.NameRandomForest, ml.NameGradientBoosting}
	}
	return nil
}

// DefaultWeights returns the static ensemble weights of a family.
func DefaultWeights(family string) map[string]float64 {
	switch family {
	case common.FamilyFraud:
		return map[string]float64{
			ml.NameLogistic:      0.25,
			ml.NameNeuralNetwork: 0.35,
			ml.NameRandomForest:  0.30,
			ml.NameGMM:           0.10,
		}
	case common.FamilyCredit:
		return map[string]float64{
			ml.NameLogistic:         0.25,
			ml.NameDecisionTree:     0.10,
			ml.NameRandomForest:     0.30,
			ml.NameGradientBoosting: 0.35,
		}
	}
	return nil
}

// ExpectedFeatures is the encoder length of a family.
func ExpectedFeatures(family string) int {
	switch family {
	case common.FamilyFraud:
		return features.FraudFeatureCount
	case common.FamilyCredit:
		return features.CreditFeatureCount
	}
	return 0
}

// FileName is the artifact file inside an artifact directory.
func FileName(family string) string {
	if family == common.FamilyCredit {
		return common.CreditArtifactFile
	}
	return common.FraudArtifactFile
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
