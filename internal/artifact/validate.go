package artifact

import (
	"fmt"
	"math"
	"slices"

	"risk-engine/internal/common"
	"risk-engine/internal/ml"
	"risk-engine/internal/preprocess"
)

// ValidationError reports a corrupt or schema-mismatched artifact. It is
// always fatal to a load.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact validation failed: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("artifact validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks structure only; member parameters are checked again when
// an engine is built from them.
func (a *Artifact) Validate() error {
	if a.SchemaVersion != SchemaVersion {
		return invalid("schema_version", "got %d, want %d", a.SchemaVersion, SchemaVersion)
	}
	if a.Family != common.FamilyFraud && a.Family != common.FamilyCredit {
		return invalid("family", "unknown family %q", a.Family)
	}
	if !a.Trained {
		return invalid("trained", "artifact is not trained")
	}
	if a.Version == "" {
		return invalid("version", "missing version id")
	}

	want := ExpectedFeatures(a.Family)
	if len(a.FeatureNames) != want {
		return invalid("feature_names", "has %d names, encoder produces %d", len(a.FeatureNames), want)
	}
	if _, err := preprocess.FromParams(a.Preprocess); err != nil {
		return &ValidationError{Field: "preprocessing", Reason: "invalid parameters", Err: err}
	}
	if got := len(a.Preprocess.Means); got != want {
		return invalid("preprocessing", "fit on %d columns, want %d", got, want)
	}

	if err := ValidateWeights(a.Family, a.Weights); err != nil {
		return err
	}
	if err := a.checkMembers(); err != nil {
		return err
	}

	if math.IsNaN(a.DecisionCut) || a.DecisionCut <= 0 || a.DecisionCut >= 1 {
		return invalid("decision_cut", "%v outside (0,1)", a.DecisionCut)
	}
	switch a.Family {
	case common.FamilyFraud:
		if err := a.FraudBands.Validate(); err != nil {
			return &ValidationError{Field: "fraud_bands", Reason: "invalid tier table", Err: err}
		}
	case common.FamilyCredit:
		if err := a.CreditBands.Validate(); err != nil {
			return &ValidationError{Field: "credit_bands", Reason: "invalid tier table", Err: err}
		}
	}
	return nil
}

// ValidateWeights requires exactly the family's members, non-negative
// weights, and a total of one within common.WeightTolerance.
func ValidateWeights(family string, w map[string]float64) error {
	members := Members(family)
	if len(w) != len(members) {
		return invalid("weights", "has %d entries, want %v", len(w), members)
	}
	var sum float64
	for _, name := range sortedKeys(w) {
		v := w[name]
		if !slices.Contains(members, name) {
			return invalid("weights", "unknown member %q", name)
		}
		if math.IsNaN(v) || v < 0 {
			return invalid("weights", "%s has invalid weight %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > common.WeightTolerance {
		return invalid("weights", "sum to %v, want 1", sum)
	}
	return nil
}

func (a *Artifact) checkMembers() error {
	m := a.Models
	present := map[string]bool{
		ml.NameLogistic:         m.Logistic != nil,
		ml.NameNeuralNetwork:    m.NeuralNetwork != nil,
		ml.NameRandomForest:     m.RandomForest != nil,
		ml.NameDecisionTree:     m.DecisionTree != nil,
		ml.NameGradientBoosting: m.GradientBoosting != nil,
		ml.NameGMM:              a.Anomaly != nil,
	}
	for _, name := range Members(a.Family) {
		if !present[name] {
			return invalid("models."+name, "missing parameters")
		}
	}
	if m.Logistic != nil && len(m.Logistic.Coef) != len(a.FeatureNames) {
		return invalid("models."+ml.NameLogistic, "has %d coefficients for %d features", len(m.Logistic.Coef), len(a.FeatureNames))
	}
	if a.Anomaly != nil && a.Anomaly.Dim != len(a.FeatureNames) {
		return invalid("anomaly_detector", "dimension %d for %d features", a.Anomaly.Dim, len(a.FeatureNames))
	}
	if m.NeuralNetwork != nil && m.NeuralNetwork.InputDim != len(a.FeatureNames) {
		return invalid("models."+ml.NameNeuralNetwork, "input dimension %d for %d features", m.NeuralNetwork.InputDim, len(a.FeatureNames))
	}
	if m.DecisionTree != nil {
		if err := a.checkTrees(ml.NameDecisionTree, []ml.TreeParams{*m.DecisionTree}); err != nil {
			return err
		}
	}
	if m.RandomForest != nil {
		if err := a.checkTrees(ml.NameRandomForest, m.RandomForest.Trees); err != nil {
			return err
		}
	}
	if m.GradientBoosting != nil {
		if err := a.checkTrees(ml.NameGradientBoosting, m.GradientBoosting.Trees); err != nil {
			return err
		}
	}
	return nil
}

// checkTrees rejects trees fitted on a different feature width; their
// split indices would run past the encoded vector.
func (a *Artifact) checkTrees(name string, trees []ml.TreeParams) error {
	for i, t := range trees {
		if t.NFeatures != len(a.FeatureNames) {
			return invalid("models."+name, "tree %d has %d features for %d", i, t.NFeatures, len(a.FeatureNames))
		}
	}
	return nil
}
