package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// Node is one entry of a flattened binary tree. Left == -1 marks a leaf.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"` // class-1 probability, or raw output for boosting
	Samples   int     `json:"n"`
}

// TreeParams is the persisted form of a fitted tree.
type TreeParams struct {
	Nodes      []Node    `json:"nodes"`
	NFeatures  int       `json:"n_features"`
	Importance []float64 `json:"importance,omitempty"`
}

func (p TreeParams) validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range p.Nodes {
		if n.Left == -1 {
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(p.Nodes) || n.Right >= len(p.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
		if n.Feature < 0 || n.Feature >= p.NFeatures {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
	}
	return nil
}

// leaf returns the index of the leaf x falls into.
func (p *TreeParams) leaf(x []float64) int {
	i := 0
	for {
		n := &p.Nodes[i]
		if n.Left == -1 {
			return i
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (p *TreeParams) predict(x []float64) float64 {
	return p.Nodes[p.leaf(x)].Value
}

func cloneTree(p TreeParams) TreeParams {
	return TreeParams{
		Nodes:      slices.Clone(p.Nodes),
		NFeatures:  p.NFeatures,
		Importance: slices.Clone(p.Importance),
	}
}

// growth bounds a tree build.
type growth struct {
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int
}

// builder grows a CART tree minimising weighted squared error of target.
// For 0/1 targets this is equivalent to the Gini criterion.
type builder struct {
	X      [][]float64
	target []float64
	w      []float64
	g      growth
	rng    *rand.Rand

	nodes      []Node
	importance []float64
	order      []int
	features   []int
}

func newBuilder(X [][]float64, target, w []float64, g growth, rng *rand.Rand) *builder {
	d := len(X[0])
	b := &builder{
		X:          X,
		target:     target,
		w:          w,
		g:          g,
		rng:        rng,
		importance: make([]float64, d),
		features:   make([]int, d),
	}
	for i := range b.features {
		b.features[i] = i
	}
	return b
}

func (b *builder) build(idx []int) TreeParams {
	b.order = make([]int, len(idx))
	b.grow(idx, 0)
	return TreeParams{
		Nodes:      b.nodes,
		NFeatures:  len(b.X[0]),
		Importance: normalize(b.importance),
	}
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int // rows order[:pos] go left
}

func (b *builder) grow(idx []int, depth int) int {
	var sw, s, q float64
	for _, i := range idx {
		wi := b.w[i]
		sw += wi
		s += wi * b.target[i]
		q += wi * b.target[i] * b.target[i]
	}

	id := len(b.nodes)
	node := Node{Feature: -1, Left: -1, Right: -1, Samples: len(idx)}
	if sw > 0 {
		node.Value = s / sw
	}
	b.nodes = append(b.nodes, node)

	sse := q - s*s/math.Max(sw, 1e-300)
	if depth >= b.g.maxDepth || len(idx) < b.g.minSplit || len(idx) < 2*b.g.minLeaf || sw <= 0 || sse <= 1e-12 {
		return id
	}

	best, ok := b.bestSplit(idx, sse)
	if !ok {
		return id
	}

	// stable partition by the chosen threshold
	left := make([]int, 0, best.pos)
	right := make([]int, 0, len(idx)-best.pos)
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[best.feature] += best.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *builder) bestSplit(idx []int, parentSSE float64) (split, bool) {
	n := len(idx)
	order := b.order[:n]

	// partial Fisher-Yates picks the candidate features
	k := b.g.maxFeatures
	if k <= 0 || k > len(b.features) {
		k = len(b.features)
	}
	for i := 0; i < k && k < len(b.features); i++ {
		j := i + b.rng.IntN(len(b.features)-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}

	best := split{gain: 1e-12}
	found := false
	for _, f := range b.features[:k] {
		copy(order, idx)
		slices.SortFunc(order, func(a, c int) int {
			va, vc := b.X[a][f], b.X[c][f]
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})

		var totW, totS, totQ float64
		for _, i := range order {
			totW += b.w[i]
			totS += b.w[i] * b.target[i]
			totQ += b.w[i] * b.target[i] * b.target[i]
		}

		var lw, ls, lq float64
		for p := 0; p < n-1; p++ {
			i := order[p]
			lw += b.w[i]
			ls += b.w[i] * b.target[i]
			lq += b.w[i] * b.target[i] * b.target[i]

			cur, next := b.X[i][f], b.X[order[p+1]][f]
			if cur == next {
				continue
			}
			nl := p + 1
			if nl < b.g.minLeaf || n-nl < b.g.minLeaf {
				continue
			}
			rw := totW - lw
			if lw <= 0 || rw <= 0 {
				continue
			}
			rs := totS - ls
			rq := totQ - lq
			gain := parentSSE - (lq - ls*ls/lw) - (rq - rs*rs/rw)
			if gain > best.gain {
				thr := cur + (next-cur)/2
				if thr == next {
					thr = cur
				}
				best = split{feature: f, threshold: thr, gain: gain, pos: nl}
				found = true
			}
		}
	}
	return best, found
}

// DecisionTree is a single bounded-depth CART classifier. It is the rule
// source for the credit ensemble.
type DecisionTree struct {
	cfg    TreeConfig
	params *TreeParams
}

func NewDecisionTree(cfg TreeConfig) (*DecisionTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DecisionTree{cfg: cfg}, nil
}

// DecisionTreeFromParams rebuilds a fitted tree.
func DecisionTreeFromParams(p TreeParams) (*DecisionTree, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("decision tree: %w", err)
	}
	cp := cloneTree(p)
	return &DecisionTree{cfg: DefaultTreeConfig(), params: &cp}, nil
}

func (t *DecisionTree) Name() string { return NameDecisionTree }

func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if n0, n1 := classCounts(y, nil); n0 == 0 || n1 == 0 {
		return ErrSingleClass
	}
	k, _ := featureCount(t.cfg.MaxFeatures, d)
	g := growth{maxDepth: t.cfg.MaxDepth, minSplit: t.cfg.MinSamplesSplit, minLeaf: t.cfg.MinSamplesLeaf, maxFeatures: k}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	p := newBuilder(X, labels(y), sampleWeights(y, nil, t.cfg.ClassWeight), g, newRand(t.cfg.Seed, 1)).build(idx)
	t.params = &p
	return nil
}

func (t *DecisionTree) PredictProba(x []float64) float64 {
	if t.params == nil {
		return 0.5
	}
	return clamp01(t.params.predict(x))
}

func (t *DecisionTree) FeatureImportance() []float64 {
	if t.params == nil {
		return nil
	}
	return slices.Clone(t.params.Importance)
}

func (t *DecisionTree) Params() (TreeParams, error) {
	if t.params == nil {
		return TreeParams{}, ErrNotFitted
	}
	return cloneTree(*t.params), nil
}

// Depth returns the length of the longest root-to-leaf path.
func (t *DecisionTree) Depth() int {
	if t.params == nil {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.params.Nodes[i]
		if n.Left == -1 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// Rules renders the tree as indented text rules. inverse, when non-nil,
// maps a threshold on feature f back to its unscaled value.
func (t *DecisionTree) Rules(names []string, maxDepth int, inverse func(f int, v float64) float64) string {
	if t.params == nil {
		return "Decision tree not trained"
	}
	if maxDepth <= 0 {
		maxDepth = t.cfg.MaxDepth
	}
	var sb strings.Builder
	var walk func(i, depth int)
	walk = func(i, depth int) {
		n := t.params.Nodes[i]
		indent := strings.Repeat("|   ", depth)
		if n.Left == -1 {
			class := 0
			if n.Value > 0.5 {
				class = 1
			}
			fmt.Fprintf(&sb, "%s|--- class: %d (p=%.2f, samples=%d)\n", indent, class, n.Value, n.Samples)
			return
		}
		if depth >= maxDepth {
			fmt.Fprintf(&sb, "%s|--- truncated branch of depth %d\n", indent, subtreeDepth(t.params.Nodes, i))
			return
		}
		name := fmt.Sprintf("feature_%d", n.Feature)
		if n.Feature < len(names) {
			name = names[n.Feature]
		}
		thr := n.Threshold
		if inverse != nil {
			thr = inverse(n.Feature, thr)
		}
		fmt.Fprintf(&sb, "%s|--- %s <= %.2f\n", indent, name, thr)
		walk(n.Left, depth+1)
		fmt.Fprintf(&sb, "%s|--- %s >  %.2f\n", indent, name, thr)
		walk(n.Right, depth+1)
	}
	walk(0, 0)
	return sb.String()
}

func subtreeDepth(nodes []Node, i int) int {
	n := nodes[i]
	if n.Left == -1 {
		return 0
	}
	return 1 + max(subtreeDepth(nodes, n.Left), subtreeDepth(nodes, n.Right))
}

func labels(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}
