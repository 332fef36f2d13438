package ml

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ForestParams is the persisted form of a fitted forest.
type ForestParams struct {
	Trees      []TreeParams `json:"trees"`
	Importance []float64    `json:"importance,omitempty"`
}

// RandomForest averages bootstrap-trained CART trees with random feature
// subsets at each split.
type RandomForest struct {
	cfg    ForestConfig
	params *ForestParams
}

func NewRandomForest(cfg ForestConfig) (*RandomForest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RandomForest{cfg: cfg}, nil
}

// RandomForestFromParams rebuilds a fitted forest.
func RandomForestFromParams(p ForestParams) (*RandomForest, error) {
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("random forest: no trees")
	}
	cp := ForestParams{Trees: make([]TreeParams, len(p.Trees)), Importance: slices.Clone(p.Importance)}
	for i, t := range p.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("random forest: tree %d: %w", i, err)
		}
		cp.Trees[i] = cloneTree(t)
	}
	return &RandomForest{cfg: DefaultFraudForestConfig(), params: &cp}, nil
}

func (f *RandomForest) Name() string { return NameRandomForest }

func (f *RandomForest) Fit(X [][]float64, y []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if n0, n1 := classCounts(y, nil); n0 == 0 || n1 == 0 {
		return ErrSingleClass
	}
	k, _ := featureCount(f.cfg.MaxFeatures, d)
	g := growth{maxDepth: f.cfg.MaxDepth, minSplit: f.cfg.MinSamplesSplit, minLeaf: f.cfg.MinSamplesLeaf, maxFeatures: k}
	target := labels(y)

	var global []float64
	if f.cfg.ClassWeight != ClassWeightBalancedSubsample {
		global = sampleWeights(y, nil, f.cfg.ClassWeight)
	}

	trees := make([]TreeParams, f.cfg.Trees)
	var eg errgroup.Group
	eg.SetLimit(f.cfg.Workers)
	for t := range trees {
		eg.Go(func() error {
			rng := newRand(f.cfg.Seed, uint64(t)+1)
			idx := make([]int, len(X))
			for i := range idx {
				idx[i] = rng.IntN(len(X))
			}
			w := global
			if w == nil {
				w = sampleWeights(y, idx, ClassWeightBalanced)
			}
			trees[t] = newBuilder(X, target, w, g, rng).build(idx)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	imp := make([]float64, d)
	for _, t := range trees {
		for j, v := range t.Importance {
			imp[j] += v
		}
	}
	f.params = &ForestParams{Trees: trees, Importance: normalize(imp)}
	return nil
}

func (f *RandomForest) PredictProba(x []float64) float64 {
	if f.params == nil {
		return 0.5
	}
	var s float64
	for i := range f.params.Trees {
		s += f.params.Trees[i].predict(x)
	}
	return clamp01(s / float64(len(f.params.Trees)))
}

func (f *RandomForest) FeatureImportance() []float64 {
	if f.params == nil {
		return nil
	}
	return slices.Clone(f.params.Importance)
}

func (f *RandomForest) Params() (ForestParams, error) {
	if f.params == nil {
		return ForestParams{}, ErrNotFitted
	}
	cp := ForestParams{Trees: make([]TreeParams, len(f.params.Trees)), Importance: slices.Clone(f.params.Importance)}
	for i, t := range f.params.Trees {
		cp.Trees[i] = cloneTree(t)
	}
	return cp, nil
}
