package ml

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs draws n rows per class; positives are shifted by shift on every
// dimension.
func blobs(n, d int, shift float64, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, 1))
	var X [][]float64
	var y []int
	for i := 0; i < 2*n; i++ {
		label := i % 2
		row := make([]float64, d)
		for j := range row {
			row[j] = rng.NormFloat64() + float64(label)*shift
		}
		X = append(X, row)
		y = append(y, label)
	}
	return X, y
}

func accuracy(c Classifier, X [][]float64, y []int) float64 {
	correct := 0
	for i, x := range X {
		pred := 0
		if c.PredictProba(x) > 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}

func TestLogistic_FitAndRoundTrip(t *testing.T) {
	X, y := blobs(200, 4, 2, 1)
	Xt, yt := blobs(100, 4, 2, 2)

	m, err := NewLogistic(DefaultLogisticConfig())
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))
	assert.Greater(t, accuracy(m, Xt, yt), 0.9)

	for _, c := range m.Coefficients() {
		assert.Greater(t, c, 0.0, "every shifted feature should push towards the positive class")
	}

	p, err := m.Params()
	require.NoError(t, err)
	back, err := LogisticFromParams(p)
	require.NoError(t, err)
	for _, x := range Xt[:20] {
		assert.InDelta(t, m.PredictProba(x), back.PredictProba(x), 1e-12)
	}

	imp := m.FeatureImportance()
	var sum float64
	for _, v := range imp {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestLogistic_Errors(t *testing.T) {
	cfg := DefaultLogisticConfig()
	cfg.C = 0
	_, err := NewLogistic(cfg)
	assert.Error(t, err)

	cfg = DefaultLogisticConfig()
	cfg.Version = 99
	_, err = NewLogistic(cfg)
	assert.Error(t, err)

	m, _ := NewLogistic(DefaultLogisticConfig())
	err = m.Fit([][]float64{{1}, {2}}, []int{0, 0})
	assert.True(t, errors.Is(err, ErrSingleClass))

	_, err = m.Params()
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.Equal(t, 0.5, m.PredictProba([]float64{1}))

	assert.Error(t, m.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}))
	assert.Error(t, m.Fit([][]float64{{1}, {2}}, []int{0, 2}))
	assert.Error(t, m.Fit(nil, nil))
}

func TestDecisionTree_FitAndRules(t *testing.T) {
	X, y := blobs(200, 3, 2.5, 3)
	Xt, yt := blobs(100, 3, 2.5, 4)

	tree, err := NewDecisionTree(DefaultTreeConfig())
	require.NoError(t, err)
	assert.Equal(t, "Decision tree not trained", tree.Rules(nil, 3, nil))

	require.NoError(t, tree.Fit(X, y))
	assert.Greater(t, accuracy(tree, Xt, yt), 0.85)
	assert.LessOrEqual(t, tree.Depth(), DefaultTreeConfig().MaxDepth)

	rules := tree.Rules([]string{"a", "b", "c"}, 3, nil)
	assert.Contains(t, rules, "|--- ")
	assert.Contains(t, rules, "<=")
	assert.Contains(t, rules, "class:")

	shifted := tree.Rules([]string{"a", "b", "c"}, 1, func(f int, v float64) float64 { return 1000 })
	assert.Contains(t, shifted, "1000.00")

	p, err := tree.Params()
	require.NoError(t, err)
	back, err := DecisionTreeFromParams(p)
	require.NoError(t, err)
	for _, x := range Xt[:20] {
		assert.Equal(t, tree.PredictProba(x), back.PredictProba(x))
	}
}

func TestDecisionTree_RespectsMinLeaf(t *testing.T) {
	X, y := blobs(200, 2, 1, 5)
	cfg := DefaultTreeConfig()
	cfg.MinSamplesLeaf = 30
	tree, err := NewDecisionTree(cfg)
	require.NoError(t, err)
	require.NoError(t, tree.Fit(X, y))

	p, _ := tree.Params()
	for _, n := range p.Nodes {
		if n.Left == -1 {
			assert.GreaterOrEqual(t, n.Samples, 30)
		}
	}
}

func TestTreeParams_ValidateRejectsCycles(t *testing.T) {
	p := TreeParams{NFeatures: 1, Nodes: []Node{{Feature: 0, Left: 0, Right: 1}, {Left: -1, Right: -1}}}
	_, err := DecisionTreeFromParams(p)
	assert.Error(t, err)

	_, err = DecisionTreeFromParams(TreeParams{})
	assert.Error(t, err)
}

func TestRandomForest_DeterministicWithSeed(t *testing.T) {
	X, y := blobs(150, 4, 2, 6)
	Xt, yt := blobs(80, 4, 2, 7)

	cfg := DefaultFraudForestConfig()
	cfg.Trees = 15
	a, err := NewRandomForest(cfg)
	require.NoError(t, err)
	b, _ := NewRandomForest(cfg)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	assert.Greater(t, accuracy(a, Xt, yt), 0.9)
	for _, x := range Xt[:20] {
		assert.Equal(t, a.PredictProba(x), b.PredictProba(x))
	}

	p, err := a.Params()
	require.NoError(t, err)
	assert.Len(t, p.Trees, 15)
	back, err := RandomForestFromParams(p)
	require.NoError(t, err)
	assert.Equal(t, a.PredictProba(Xt[0]), back.PredictProba(Xt[0]))
}

func TestRandomForest_CreditDefaults(t *testing.T) {
	X, y := blobs(150, 4, 2, 8)
	cfg := DefaultCreditForestConfig()
	cfg.Trees = 10
	f, err := NewRandomForest(cfg)
	require.NoError(t, err)
	require.NoError(t, f.Fit(X, y))
	assert.Len(t, f.FeatureImportance(), 4)
}

func TestGradientBoosting_Fit(t *testing.T) {
	X, y := blobs(200, 4, 2, 9)
	Xt, yt := blobs(100, 4, 2, 10)

	cfg := DefaultBoostingConfig()
	cfg.Trees = 40
	gb, err := NewGradientBoosting(cfg)
	require.NoError(t, err)
	require.NoError(t, gb.Fit(X, y))
	assert.Greater(t, accuracy(gb, Xt, yt), 0.9)

	p, err := gb.Params()
	require.NoError(t, err)
	assert.Len(t, p.Trees, 40)
	back, err := GradientBoostingFromParams(p)
	require.NoError(t, err)
	for _, x := range Xt[:10] {
		assert.InDelta(t, gb.PredictProba(x), back.PredictProba(x), 1e-12)
	}
}

func TestMLP_FitValidatedAndRestore(t *testing.T) {
	X, y := blobs(200, 4, 2, 11)
	Xv, yv := blobs(50, 4, 2, 12)
	Xt, yt := blobs(100, 4, 2, 13)

	cfg := DefaultMLPConfig()
	cfg.Hidden = []int{8, 4}
	cfg.Dropout = []float64{0.1, 0}
	cfg.LearningRate = 0.01
	cfg.Epochs = 30

	m, err := NewMLP(cfg)
	require.NoError(t, err)
	require.NoError(t, m.FitValidated(X, y, Xv, yv))
	assert.Greater(t, accuracy(m, Xt, yt), 0.9)

	hist := m.History()
	require.NotEmpty(t, hist)
	assert.LessOrEqual(t, len(hist), cfg.Epochs)
	assert.GreaterOrEqual(t, m.BestEpoch(), 1)
	best := math.Inf(1)
	for _, h := range hist {
		best = math.Min(best, h.ValLoss)
	}
	assert.Equal(t, best, hist[m.BestEpoch()-1].ValLoss)

	p, err := m.Params()
	require.NoError(t, err)
	require.Len(t, p.Layers, 3)
	assert.Len(t, p.Layers[0].W, 8)
	assert.Len(t, p.Layers[2].W, 1)

	back, err := MLPFromParams(p)
	require.NoError(t, err)
	for _, x := range Xt[:10] {
		assert.InDelta(t, m.PredictProba(x), back.PredictProba(x), 1e-12)
	}
}

func TestMLP_FitHoldsOutValidation(t *testing.T) {
	X, y := blobs(100, 3, 3, 14)
	cfg := DefaultMLPConfig()
	cfg.Hidden = []int{4}
	cfg.Dropout = []float64{0}
	cfg.Epochs = 3
	m, err := NewMLP(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))
	assert.Len(t, m.History(), 3)
}

func TestMLPConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MLPConfig)
	}{
		{"dropout mismatch", func(c *MLPConfig) { c.Dropout = []float64{0.1} }},
		{"dropout one", func(c *MLPConfig) { c.Dropout = []float64{1, 0, 0} }},
		{"zero epochs", func(c *MLPConfig) { c.Epochs = 0 }},
		{"bad factor", func(c *MLPConfig) { c.PlateauFactor = 1 }},
		{"no hidden", func(c *MLPConfig) { c.Hidden = nil; c.Dropout = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMLPConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
	if err := DefaultMLPConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func gaussianClusters(n int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, 2))
	var X [][]float64
	for i := 0; i < n; i++ {
		c := float64(i%2) * 6
		X = append(X, []float64{c + rng.NormFloat64(), c + rng.NormFloat64()})
	}
	return X
}

func TestGMM_FitAndAnomaly(t *testing.T) {
	X := gaussianClusters(600, 15)
	cfg := DefaultGMMConfig()
	cfg.Components = 2
	g, err := NewGMM(cfg)
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))

	assert.True(t, g.IsAnomaly([]float64{20, -20}))
	assert.False(t, g.IsAnomaly([]float64{0, 0}))
	assert.False(t, g.IsAnomaly([]float64{6, 6}))
	assert.Equal(t, 1.0, g.Score([]float64{20, -20}))
	assert.Equal(t, 0.0, g.Score([]float64{6, 6}))

	below := 0
	for _, x := range X {
		if g.IsAnomaly(x) {
			below++
		}
	}
	assert.LessOrEqual(t, float64(below)/float64(len(X)), 0.02)

	p, err := g.Params()
	require.NoError(t, err)
	assert.Len(t, p.Weights, 2)
	back, err := GMMFromParams(p)
	require.NoError(t, err)
	for _, x := range X[:10] {
		assert.InDelta(t, g.LogLikelihood(x), back.LogLikelihood(x), 1e-9)
	}
	assert.Equal(t, g.Threshold(), back.Threshold())
}

func TestGMM_FixedThreshold(t *testing.T) {
	X := gaussianClusters(200, 16)
	fixed := -10.0
	cfg := DefaultGMMConfig()
	cfg.Components = 2
	cfg.FixedThreshold = &fixed
	g, err := NewGMM(cfg)
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))
	assert.Equal(t, -10.0, g.Threshold())
}

func TestGMM_DegenerateInputStillFits(t *testing.T) {
	// every row identical: covariances collapse to the regulariser
	X := make([][]float64, 50)
	for i := range X {
		X[i] = []float64{1, 1, 1}
	}
	g, err := NewGMM(DefaultGMMConfig())
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))
	assert.False(t, math.IsNaN(g.LogLikelihood([]float64{1, 1, 1})))
	assert.True(t, g.IsAnomaly([]float64{50, 50, 50}))
}

func TestGMM_TooFewRows(t *testing.T) {
	g, _ := NewGMM(DefaultGMMConfig())
	assert.Error(t, g.Fit([][]float64{{1}, {2}}))
	assert.Error(t, g.Fit(nil))
}

func TestQuantile(t *testing.T) {
	v := []float64{4, 1, 3, 2, 5}
	assert.Equal(t, 1.0, Quantile(v, 0))
	assert.InDelta(t, 2.5, Quantile(v, 0.5), 1e-12)
	assert.InDelta(t, 1.5, Quantile(v, 0.3), 1e-12)
	assert.Equal(t, 5.0, Quantile(v, 1))
	assert.Equal(t, 1.0, Quantile(v, 0.01))
	assert.Equal(t, 5.0, Quantile(v, 1.5), "q is clamped")
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
	assert.Equal(t, []float64{4, 1, 3, 2, 5}, v, "input must not be reordered")
}

func TestTopFeatures(t *testing.T) {
	got := TopFeatures([]string{"a", "b", "c"}, []float64{0.2, 0.5, 0.3, 0.9}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "feature_3", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "c", got[2].Name)

	assert.Equal(t, []float64{0, 0}, normalize([]float64{0, 0}))
	assert.Equal(t, []float64{0.25, 0.75}, normalize([]float64{1, 3}))
	assert.True(t, strings.HasPrefix(TopFeatures(nil, []float64{1}, 1)[0].Name, "feature_"))
}
