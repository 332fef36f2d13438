package ensemble

import (
	"fmt"
	"time"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/features"
	"risk-engine/internal/ml"
	"risk-engine/internal/preprocess"
)

// Engine is a loaded artifact ready for inference. It is immutable and
// safe to share between goroutines without locking.
type Engine struct {
	art      *artifact.Artifact
	pipeline *preprocess.Pipeline
	combiner *Combiner
	linear   *ml.Logistic
	tree     *ml.DecisionTree
	loadedAt time.Time
}

// NewEngine validates a and rebuilds every member from its parameters.
// Any failure is reported as an *artifact.ValidationError.
func NewEngine(a *artifact.Artifact) (*Engine, error) {
	if a == nil {
		return nil, &artifact.ValidationError{Field: "document", Reason: "nil artifact"}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	pl, err := preprocess.FromParams(a.Preprocess)
	if err != nil {
		return nil, &artifact.ValidationError{Field: "preprocessing", Reason: "invalid parameters", Err: err}
	}

	e := &Engine{art: a, pipeline: pl, loadedAt: time.Now()}
	built := make(map[string]Member, 4)

	e.linear, err = ml.LogisticFromParams(*a.Models.Logistic)
	if err != nil {
		return nil, memberError(ml.NameLogistic, err)
	}
	built[ml.NameLogistic] = ClassifierMember(e.linear)

	forest, err := ml.RandomForestFromParams(*a.Models.RandomForest)
	if err != nil {
		return nil, memberError(ml.NameRandomForest, err)
	}
	built[ml.NameRandomForest] = ClassifierMember(forest)

	switch a.Family {
	case common.FamilyFraud:
		mlp, err := ml.MLPFromParams(*a.Models.NeuralNetwork)
		if err != nil {
			return nil, memberError(ml.NameNeuralNetwork, err)
		}
		built[ml.NameNeuralNetwork] = ClassifierMember(mlp)

		gmm, err := ml.GMMFromParams(*a.Anomaly)
		if err != nil {
			return nil, memberError(ml.NameGMM, err)
		}
		built[ml.NameGMM] = AnomalyMember(gmm)

	case common.FamilyCredit:
		e.tree, err = ml.DecisionTreeFromParams(*a.Models.DecisionTree)
		if err != nil {
			return nil, memberError(ml.NameDecisionTree, err)
		}
		built[ml.NameDecisionTree] = ClassifierMember(e.tree)

		gb, err := ml.GradientBoostingFromParams(*a.Models.GradientBoosting)
		if err != nil {
			return nil, memberError(ml.NameGradientBoosting, err)
		}
		built[ml.NameGradientBoosting] = ClassifierMember(gb)
	}

	members := make([]Weighted, 0, len(built))
	for _, name := range artifact.Members(a.Family) {
		members = append(members, Weighted{Member: built[name], Weight: a.Weights[name]})
	}
	e.combiner, err = NewCombiner(members, a.DecisionCut)
	if err != nil {
		return nil, &artifact.ValidationError{Field: "weights", Reason: "cannot build combiner", Err: err}
	}
	return e, nil
}

func memberError(name string, err error) error {
	return &artifact.ValidationError{Field: "models." + name, Reason: "invalid parameters", Err: err}
}

// Predict scales a raw feature vector and blends the members. It returns
// the scaled vector for explanation.
func (e *Engine) Predict(raw features.FeatureVector) (Result, []float64, error) {
	scaled, err := e.pipeline.Transform(raw)
	if err != nil {
		return Result{}, nil, err
	}
	return e.combiner.Combine(scaled), scaled, nil
}

// Explain attributes the linear model's score to the top n features.
func (e *Engine) Explain(scaled []float64, n int) []Contribution {
	return Explain(e.linear.Coefficients(), scaled, e.art.FeatureNames, n)
}

// Rules renders the credit decision tree with thresholds on the original
// feature scale. Fraud engines have no tree.
func (e *Engine) Rules(maxDepth int) (string, error) {
	if e.tree == nil {
		return "", fmt.Errorf("%s engine has no decision tree", e.art.Family)
	}
	return e.tree.Rules(e.art.FeatureNames, maxDepth, e.pipeline.Inverse), nil
}

func (e *Engine) Family() string      { return e.art.Family }
func (e *Engine) Version() string     { return e.art.Version }
func (e *Engine) LoadedAt() time.Time { return e.loadedAt }

// Metadata returns the training metadata of the loaded artifact.
func (e *Engine) Metadata() artifact.Metadata { return e.art.Metadata }

// Artifact exposes the loaded artifact. Callers must not modify it.
func (e *Engine) Artifact() *artifact.Artifact { return e.art }

// Members lists member names and weights in evaluation order.
func (e *Engine) Members() map[string]float64 {
	out := make(map[string]float64, len(e.art.Weights))
	for k, v := range e.art.Weights {
		out[k] = v
	}
	return out
}

// ModelAge is the time since the artifact was trained.
func (e *Engine) ModelAge(now time.Time) time.Duration {
	if e.art.Metadata.TrainedAt.IsZero() {
		return now.Sub(e.loadedAt)
	}
	return now.Sub(e.art.Metadata.TrainedAt)
}
