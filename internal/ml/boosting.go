package ml

import (
	"fmt"
	"math"
	"slices"
)

// BoostingParams is the persisted form of a fitted boosted ensemble.
type BoostingParams struct {
	Init         float64      `json:"init"` // prior log-odds
	LearningRate float64      `json:"learning_rate"`
	Trees        []TreeParams `json:"trees"`
	Importance   []float64    `json:"importance,omitempty"`
}

// GradientBoosting fits shallow regression trees to the log-loss gradient in
// sequence, with one Newton step per leaf.
type GradientBoosting struct {
	cfg    BoostingConfig
	params *BoostingParams
}

func NewGradientBoosting(cfg BoostingConfig) (*GradientBoosting, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GradientBoosting{cfg: cfg}, nil
}

// GradientBoostingFromParams rebuilds a fitted model.
func GradientBoostingFromParams(p BoostingParams) (*GradientBoosting, error) {
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("gradient boosting: no trees")
	}
	if p.LearningRate <= 0 || math.IsNaN(p.Init) {
		return nil, fmt.Errorf("gradient boosting: invalid learning rate %v or init %v", p.LearningRate, p.Init)
	}
	cp := p
	cp.Trees = make([]TreeParams, len(p.Trees))
	for i, t := range p.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("gradient boosting: tree %d: %w", i, err)
		}
		cp.Trees[i] = cloneTree(t)
	}
	cp.Importance = slices.Clone(p.Importance)
	return &GradientBoosting{cfg: DefaultBoostingConfig(), params: &cp}, nil
}

func (b *GradientBoosting) Name() string { return NameGradientBoosting }

func (b *GradientBoosting) Fit(X [][]float64, y []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	n0, n1 := classCounts(y, nil)
	if n0 == 0 || n1 == 0 {
		return ErrSingleClass
	}

	n := len(X)
	prior := float64(n1) / float64(n)
	init := math.Log(prior / (1 - prior))

	F := make([]float64, n)
	for i := range F {
		F[i] = init
	}
	residual := make([]float64, n)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	g := growth{maxDepth: b.cfg.MaxDepth, minSplit: b.cfg.MinSamplesSplit, minLeaf: b.cfg.MinSamplesLeaf, maxFeatures: d}
	rng := newRand(b.cfg.Seed, 7)
	size := max(1, int(math.Round(b.cfg.Subsample*float64(n))))
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	trees := make([]TreeParams, 0, b.cfg.Trees)
	imp := make([]float64, d)
	for m := 0; m < b.cfg.Trees; m++ {
		for i := range residual {
			residual[i] = float64(y[i]) - sigmoid(F[i])
		}
		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		idx := slices.Clone(perm[:size])

		tree := newBuilder(X, residual, ones, g, rng).build(idx)

		// Newton step per leaf over the in-bag rows
		num := make([]float64, len(tree.Nodes))
		den := make([]float64, len(tree.Nodes))
		for _, i := range idx {
			leaf := tree.leaf(X[i])
			p := sigmoid(F[i])
			num[leaf] += residual[i]
			den[leaf] += p * (1 - p)
		}
		for j := range tree.Nodes {
			if tree.Nodes[j].Left != -1 {
				continue
			}
			if den[j] < 1e-12 {
				tree.Nodes[j].Value = 0
			} else {
				tree.Nodes[j].Value = num[j] / den[j]
			}
		}

		for i := range F {
			F[i] += b.cfg.LearningRate * tree.predict(X[i])
		}
		for j, v := range tree.Importance {
			imp[j] += v
		}
		trees = append(trees, tree)
	}

	b.params = &BoostingParams{
		Init:         init,
		LearningRate: b.cfg.LearningRate,
		Trees:        trees,
		Importance:   normalize(imp),
	}
	return nil
}

func (b *GradientBoosting) PredictProba(x []float64) float64 {
	if b.params == nil {
		return 0.5
	}
	f := b.params.Init
	for i := range b.params.Trees {
		f += b.params.LearningRate * b.params.Trees[i].predict(x)
	}
	return sigmoid(f)
}

func (b *GradientBoosting) FeatureImportance() []float64 {
	if b.params == nil {
		return nil
	}
	return slices.Clone(b.params.Importance)
}

func (b *GradientBoosting) Params() (BoostingParams, error) {
	if b.params == nil {
		return BoostingParams{}, ErrNotFitted
	}
	cp := *b.params
	cp.Trees = make([]TreeParams, len(b.params.Trees))
	for i, t := range b.params.Trees {
		cp.Trees[i] = cloneTree(t)
	}
	cp.Importance = slices.Clone(b.params.Importance)
	return cp, nil
}
