package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/common"
	"risk-engine/internal/ml"
)

func TestRoundTrip(t *testing.T) {
	for _, family := range []string{common.FamilyFraud, common.FamilyCredit} {
		t.Run(family, func(t *testing.T) {
			a := Constant(family, 0.1)
			th := -3.5
			a.Metadata.AnomalyThreshold = &th
			a.Metadata.Test = map[string]float64{"roc_auc": 0.91}
			a.Metadata.CV = &CVSummary{Folds: 5, Metric: "f1", Mean: 0.8, Std: 0.02, Scores: []float64{0.78, 0.8, 0.82, 0.79, 0.81}}
			require.NoError(t, a.Validate())

			data, err := Encode(a)
			require.NoError(t, err)
			back, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, a, back)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", FileName(common.FamilyCredit))
	a := Constant(common.FamilyCredit, 0.3)

	require.NoError(t, Save(path, a))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.Version, back.Version)
	assert.Equal(t, a.Models.GradientBoosting, back.Models.GradientBoosting)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSave_RejectsInvalid(t *testing.T) {
	a := Constant(common.FamilyFraud, 0.1)
	a.Weights[ml.NameGMM] = 0.2
	path := filepath.Join(t.TempDir(), "a.json")
	err := Save(path, a)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(*Artifact)
	}{
		{"untrained", "trained", func(a *Artifact) { a.Trained = false }},
		{"schema", "schema_version", func(a *Artifact) { a.SchemaVersion = 7 }},
		{"family", "family", func(a *Artifact) { a.Family = "mortgage" }},
		{"feature names", "feature_names", func(a *Artifact) { a.FeatureNames = a.FeatureNames[:10] }},
		{"weights sum", "weights", func(a *Artifact) { a.Weights[ml.NameLogistic] = 0.3 }},
		{"unknown member", "weights", func(a *Artifact) {
			delete(a.Weights, ml.NameGMM)
			a.Weights[ml.NameDecisionTree] = 0.1
		}},
		{"negative weight", "weights", func(a *Artifact) {
			a.Weights[ml.NameLogistic] = -0.05
			a.Weights[ml.NameNeuralNetwork] = 0.65
		}},
		{"missing member", "models.neural_network", func(a *Artifact) { a.Models.NeuralNetwork = nil }},
		{"missing anomaly", "models.gmm", func(a *Artifact) { a.Anomaly = nil }},
		{"preprocess dims", "preprocessing", func(a *Artifact) {
			a.Preprocess.Means = a.Preprocess.Means[:3]
		}},
		{"bands", "fraud_bands", func(a *Artifact) { a.FraudBands[2].Lower = 0.1 }},
		{"cut", "decision_cut", func(a *Artifact) { a.DecisionCut = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Constant(common.FamilyFraud, 0.2)
			tt.mutate(a)
			err := a.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want *ValidationError, got %T", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_TreeWidth(t *testing.T) {
	wide := ml.TreeParams{NFeatures: 100, Nodes: []ml.Node{
		{Feature: 50, Threshold: 0.5, Left: 1, Right: 2},
		{Feature: -1, Left: -1, Right: -1, Value: 0.1, Samples: 1},
		{Feature: -1, Left: -1, Right: -1, Value: 0.9, Samples: 1},
	}}
	tests := []struct {
		name   string
		family string
		field  string
		mutate func(*Artifact)
	}{
		{"forest", common.FamilyFraud, "models.random_forest", func(a *Artifact) { a.Models.RandomForest.Trees[0] = wide }},
		{"decision tree", common.FamilyCredit, "models.decision_tree", func(a *Artifact) { a.Models.DecisionTree = &wide }},
		{"boosting", common.FamilyCredit, "models.gradient_boosting", func(a *Artifact) {
			a.Models.GradientBoosting.Trees = append(a.Models.GradientBoosting.Trees, wide)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Constant(tt.family, 0.2)
			tt.mutate(a)
			var ve *ValidationError
			require.ErrorAs(t, a.Validate(), &ve)
			assert.Equal(t, tt.field, ve.Field)

			data, err := Encode(a)
			require.NoError(t, err)
			_, err = Decode(data)
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidateWeights_Tolerance(t *testing.T) {
	w := DefaultWeights(common.FamilyCredit)
	w[ml.NameLogistic] += 5e-7
	assert.NoError(t, ValidateWeights(common.FamilyCredit, w))
	w[ml.NameLogistic] += 1e-5
	assert.Error(t, ValidateWeights(common.FamilyCredit, w))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "document", ve.Field)
}

func TestNew_Defaults(t *testing.T) {
	a := New(common.FamilyFraud)
	assert.False(t, a.Trained)
	assert.Len(t, a.FeatureNames, 29)
	assert.NotEmpty(t, a.Version)
	assert.NotEqual(t, a.Version, New(common.FamilyFraud).Version)
	assert.NoError(t, ValidateWeights(common.FamilyFraud, a.Weights))
	assert.Equal(t, common.CreditArtifactFile, FileName(common.FamilyCredit))
	assert.Len(t, New(common.FamilyCredit).FeatureNames, 28)
}
