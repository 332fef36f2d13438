package artifact

import (
	"math"
	"time"

	"risk-engine/internal/common"
	"risk-engine/internal/ml"
	"risk-engine/internal/preprocess"
)

// Constant builds a trained artifact whose supervised members all return p
// and whose anomaly detector never fires. The preprocessing stage is the
// identity. It backs tests and smoke checks of the serving path.
func Constant(family string, p float64) *Artifact {
	a := New(family)
	d := ExpectedFeatures(family)
	logit := math.Log(p / (1 - p))

	a.Trained = true
	a.Preprocess = preprocess.Params{
		Medians: make([]float64, d),
		Means:   make([]float64, d),
		Stds:    ones(d),
	}
	leaf := ml.TreeParams{NFeatures: d, Nodes: []ml.Node{{Feature: -1, Left: -1, Right: -1, Value: p, Samples: 1}}}
	a.Models.Logistic = &ml.LogisticParams{Coef: make([]float64, d), Intercept: logit}
	a.Models.RandomForest = &ml.ForestParams{Trees: []ml.TreeParams{leaf}}

	switch family {
	case common.FamilyFraud:
		a.Models.NeuralNetwork = &ml.MLPParams{
			InputDim: d,
			Layers: []ml.DenseParams{
				{W: [][]float64{make([]float64, d)}, B: []float64{0}},
				{W: [][]float64{{0}}, B: []float64{logit}},
			},
			Dropout: []float64{0},
		}
		cov := make([][]float64, d)
		for i := range cov {
			cov[i] = make([]float64, d)
			cov[i][i] = 1
		}
		a.Anomaly = &ml.GMMParams{
			Dim:         d,
			Weights:     []float64{1},
			Means:       [][]float64{make([]float64, d)},
			Covariances: [][][]float64{cov},
			Threshold:   -1e12,
		}
	case common.FamilyCredit:
		a.Models.DecisionTree = &ml.TreeParams{NFeatures: d, Nodes: []ml.Node{{Feature: -1, Left: -1, Right: -1, Value: p, Samples: 1}}}
		zero := leaf
		zero.Nodes = []ml.Node{{Feature: -1, Left: -1, Right: -1, Samples: 1}}
		a.Models.GradientBoosting = &ml.BoostingParams{Init: logit, LearningRate: 0.1, Trees: []ml.TreeParams{zero}}
	}
	a.Metadata = Metadata{TrainedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), NFeatures: d}
	return a
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
