package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Classifier is the uniform contract of every model bank member.
type Classifier interface {
	Name() string
	Fit(X [][]float64, y []int) error
	PredictProba(x []float64) float64
}

// ValidationFitter is implemented by members that monitor a held-out
// partition while training. The validation rows never update weights.
type ValidationFitter interface {
	FitValidated(X [][]float64, y []int, Xval [][]float64, yval []int) error
}

// ImportanceReporter exposes per-feature importance after fitting.
type ImportanceReporter interface {
	FeatureImportance() []float64
}

// Member names as they appear in weight maps and score breakdowns.
const (
	NameLogistic         = "logistic_regression"
	NameNeuralNetwork    = "neural_network"
	NameRandomForest     = "random_forest"
	NameDecisionTree     = "decision_tree"
	NameGradientBoosting = "gradient_boosting"
	NameGMM              = "gmm"
)

// Class weighting modes.
const (
	ClassWeightNone              = "none"
	ClassWeightBalanced          = "balanced"
	ClassWeightBalancedSubsample = "balanced_subsample"
)

var (
	ErrNotFitted   = errors.New("ml: model is not fitted")
	ErrSingleClass = errors.New("ml: training labels contain a single class")
)

func checkXY(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("ml: empty training set")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("ml: %d rows but %d labels", len(X), len(y))
	}
	d := len(X[0])
	if d == 0 {
		return 0, errors.New("ml: rows have no features")
	}
	for i, row := range X {
		if len(row) != d {
			return 0, fmt.Errorf("ml: row %d has %d features, want %d", i, len(row), d)
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, fmt.Errorf("ml: label %d at row %d is not binary", y[i], i)
		}
	}
	return d, nil
}

// classCounts returns the number of negatives and positives among idx
// (all rows when idx is nil).
func classCounts(y []int, idx []int) (n0, n1 int) {
	if idx == nil {
		for _, v := range y {
			if v == 1 {
				n1++
			} else {
				n0++
			}
		}
		return
	}
	for _, i := range idx {
		if y[i] == 1 {
			n1++
		} else {
			n0++
		}
	}
	return
}

// balancedWeights computes n / (2 * n_class) for each class.
func balancedWeights(n0, n1 int) (w0, w1 float64) {
	n := float64(n0 + n1)
	if n0 > 0 {
		w0 = n / (2 * float64(n0))
	}
	if n1 > 0 {
		w1 = n / (2 * float64(n1))
	}
	return
}

// sampleWeights expands per-class weights onto the rows in idx.
func sampleWeights(y []int, idx []int, mode string) []float64 {
	w := make([]float64, len(y))
	if mode == ClassWeightNone || mode == "" {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	w0, w1 := balancedWeights(classCounts(y, idx))
	for i, v := range y {
		if v == 1 {
			w[i] = w1
		} else {
			w[i] = w0
		}
	}
	return w
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0.5
	}
	return math.Max(0, math.Min(1, p))
}

func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}
