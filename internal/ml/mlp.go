package ml

import (
	"fmt"
	"math"
	"slices"
)

// DenseParams holds one fully connected layer, W indexed [out][in].
type DenseParams struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

// MLPParams is the persisted form of a fitted network. The last layer is the
// single-unit output layer; every earlier layer uses ReLU.
type MLPParams struct {
	InputDim int           `json:"input_dim"`
	Layers   []DenseParams `json:"layers"`
	Dropout  []float64     `json:"dropout"`
}

// EpochStats records one training epoch.
type EpochStats struct {
	Epoch        int     `json:"epoch"`
	TrainLoss    float64 `json:"train_loss"`
	ValLoss      float64 `json:"val_loss"`
	LearningRate float64 `json:"learning_rate"`
}

const (
	adamBeta1       = 0.9
	adamBeta2       = 0.999
	adamEps         = 1e-8
	plateauRelDelta = 1e-4
	probEps         = 1e-7
)

type layerShape struct {
	in, out    int
	wOff, bOff int
}

// network stores all weights in one flat slice so that clipping and the
// optimizer can treat them uniformly.
type network struct {
	shapes []layerShape
	theta  []float64
}

func newNetwork(sizes []int) *network {
	n := &network{}
	off := 0
	for l := 0; l+1 < len(sizes); l++ {
		s := layerShape{in: sizes[l], out: sizes[l+1], wOff: off}
		off += s.in * s.out
		s.bOff = off
		off += s.out
		n.shapes = append(n.shapes, s)
	}
	n.theta = make([]float64, off)
	return n
}

// predict runs inference without dropout. It allocates its own buffers and
// is safe for concurrent use.
func (n *network) predict(x []float64) float64 {
	a := x
	for l, s := range n.shapes {
		z := make([]float64, s.out)
		for j := 0; j < s.out; j++ {
			row := n.theta[s.wOff+j*s.in : s.wOff+(j+1)*s.in]
			z[j] = dot(row, a) + n.theta[s.bOff+j]
		}
		if l < len(n.shapes)-1 {
			for j := range z {
				z[j] = math.Max(0, z[j])
			}
		}
		a = z
	}
	return sigmoid(a[0])
}

// MLP is the feed-forward fraud scorer trained with Adam on binary
// cross-entropy, gradient-norm clipping, a plateau learning-rate schedule
// and early stopping that restores the best validation weights.
type MLP struct {
	cfg       MLPConfig
	net       *network
	dropout   []float64
	history   []EpochStats
	bestEpoch int
}

func NewMLP(cfg MLPConfig) (*MLP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MLP{cfg: cfg}, nil
}

// MLPFromParams rebuilds a fitted network.
func MLPFromParams(p MLPParams) (*MLP, error) {
	if p.InputDim < 1 || len(p.Layers) < 2 {
		return nil, fmt.Errorf("mlp: need an input dimension and at least two layers")
	}
	sizes := []int{p.InputDim}
	for i, l := range p.Layers {
		if len(l.W) == 0 || len(l.B) != len(l.W) {
			return nil, fmt.Errorf("mlp: layer %d has %d rows and %d biases", i, len(l.W), len(l.B))
		}
		sizes = append(sizes, len(l.W))
	}
	if sizes[len(sizes)-1] != 1 {
		return nil, fmt.Errorf("mlp: output layer must have one unit, got %d", sizes[len(sizes)-1])
	}
	net := newNetwork(sizes)
	for l, s := range net.shapes {
		for j := 0; j < s.out; j++ {
			if len(p.Layers[l].W[j]) != s.in {
				return nil, fmt.Errorf("mlp: layer %d row %d has %d inputs, want %d", l, j, len(p.Layers[l].W[j]), s.in)
			}
			copy(net.theta[s.wOff+j*s.in:], p.Layers[l].W[j])
			net.theta[s.bOff+j] = p.Layers[l].B[j]
		}
	}
	for i, v := range net.theta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("mlp: weight %d is not finite", i)
		}
	}
	cfg := DefaultMLPConfig()
	return &MLP{cfg: cfg, net: net, dropout: slices.Clone(p.Dropout)}, nil
}

func (m *MLP) Name() string { return NameNeuralNetwork }

// Fit holds out ValidationSplit of the rows for the schedule and early
// stopping, then delegates to FitValidated.
func (m *MLP) Fit(X [][]float64, y []int) error {
	if _, err := checkXY(X, y); err != nil {
		return err
	}
	rng := newRand(m.cfg.Seed, 99)
	perm := rng.Perm(len(X))
	nVal := max(1, int(float64(len(X))*m.cfg.ValidationSplit))
	if nVal >= len(X) {
		return fmt.Errorf("mlp: %d rows are too few to hold out a validation set", len(X))
	}
	var Xtr, Xval [][]float64
	var ytr, yval []int
	for k, i := range perm {
		if k < nVal {
			Xval = append(Xval, X[i])
			yval = append(yval, y[i])
		} else {
			Xtr = append(Xtr, X[i])
			ytr = append(ytr, y[i])
		}
	}
	return m.FitValidated(Xtr, ytr, Xval, yval)
}

func (m *MLP) FitValidated(X [][]float64, y []int, Xval [][]float64, yval []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if len(Xval) == 0 {
		return fmt.Errorf("mlp: empty validation set")
	}
	if _, err := checkXY(Xval, yval); err != nil {
		return fmt.Errorf("mlp: validation set: %w", err)
	}
	if len(Xval[0]) != d {
		return fmt.Errorf("mlp: validation rows have %d features, want %d", len(Xval[0]), d)
	}

	sizes := append([]int{d}, m.cfg.Hidden...)
	sizes = append(sizes, 1)
	net := newNetwork(sizes)
	rng := newRand(m.cfg.Seed, 3)
	for _, s := range net.shapes {
		bound := 1 / math.Sqrt(float64(s.in))
		for k := s.wOff; k < s.bOff+s.out; k++ {
			net.theta[k] = (rng.Float64()*2 - 1) * bound
		}
	}

	t := newTrainer(net, m.cfg.Dropout)
	lr := m.cfg.LearningRate
	bestVal := math.Inf(1)
	schedBest := math.Inf(1)
	best := slices.Clone(net.theta)
	bad, wait := 0, 0
	m.history = m.history[:0]
	m.bestEpoch = 0

	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= m.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var trainLoss float64
		for start := 0; start < len(order); start += m.cfg.BatchSize {
			end := min(start+m.cfg.BatchSize, len(order))
			trainLoss += t.batch(X, y, order[start:end], rng)
			t.clip(m.cfg.ClipNorm)
			t.adam(lr)
		}
		trainLoss /= float64(len(order))

		valLoss := bceLoss(net, Xval, yval)
		m.history = append(m.history, EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, LearningRate: lr})

		if valLoss < schedBest*(1-plateauRelDelta) {
			schedBest = valLoss
			bad = 0
		} else {
			bad++
			if bad > m.cfg.PlateauPatience {
				lr *= m.cfg.PlateauFactor
				bad = 0
			}
		}

		if valLoss < bestVal {
			bestVal = valLoss
			copy(best, net.theta)
			m.bestEpoch = epoch
			wait = 0
		} else {
			wait++
			if wait >= m.cfg.EarlyStopPatience {
				break
			}
		}
	}

	copy(net.theta, best)
	m.net = net
	m.dropout = slices.Clone(m.cfg.Dropout)
	return nil
}

func (m *MLP) PredictProba(x []float64) float64 {
	if m.net == nil {
		return 0.5
	}
	return clamp01(m.net.predict(x))
}

// History returns per-epoch losses of the last fit.
func (m *MLP) History() []EpochStats {
	return slices.Clone(m.history)
}

// BestEpoch is the epoch whose weights were restored.
func (m *MLP) BestEpoch() int { return m.bestEpoch }

func (m *MLP) Params() (MLPParams, error) {
	if m.net == nil {
		return MLPParams{}, ErrNotFitted
	}
	p := MLPParams{InputDim: m.net.shapes[0].in, Dropout: slices.Clone(m.dropout)}
	for _, s := range m.net.shapes {
		layer := DenseParams{W: make([][]float64, s.out), B: make([]float64, s.out)}
		for j := 0; j < s.out; j++ {
			layer.W[j] = slices.Clone(m.net.theta[s.wOff+j*s.in : s.wOff+(j+1)*s.in])
			layer.B[j] = m.net.theta[s.bOff+j]
		}
		p.Layers = append(p.Layers, layer)
	}
	return p, nil
}

// trainer holds the per-batch workspace and optimizer state.
type trainer struct {
	net     *network
	dropout []float64
	grad    []float64
	m, v    []float64
	step    int
	acts    [][]float64 // acts[l] is the input to layer l
	zs      [][]float64
	masks   [][]float64
	deltas  [][]float64
}

func newTrainer(net *network, dropout []float64) *trainer {
	t := &trainer{
		net:     net,
		dropout: dropout,
		grad:    make([]float64, len(net.theta)),
		m:       make([]float64, len(net.theta)),
		v:       make([]float64, len(net.theta)),
	}
	for _, s := range net.shapes {
		t.acts = append(t.acts, make([]float64, s.in))
		t.zs = append(t.zs, make([]float64, s.out))
		t.masks = append(t.masks, make([]float64, s.out))
		t.deltas = append(t.deltas, make([]float64, s.out))
	}
	return t
}

type uniform interface{ Float64() float64 }

// batch accumulates the mean gradient over rows and returns the summed loss.
func (t *trainer) batch(X [][]float64, y []int, rows []int, rng uniform) float64 {
	clear(t.grad)
	scale := 1 / float64(len(rows))
	last := len(t.net.shapes) - 1
	var loss float64

	for _, i := range rows {
		copy(t.acts[0], X[i])
		for l, s := range t.net.shapes {
			in := t.acts[l]
			z := t.zs[l]
			for j := 0; j < s.out; j++ {
				z[j] = dot(t.net.theta[s.wOff+j*s.in:s.wOff+(j+1)*s.in], in) + t.net.theta[s.bOff+j]
			}
			if l == last {
				break
			}
			out := t.acts[l+1]
			p := t.dropout[l]
			for j := 0; j < s.out; j++ {
				mask := 1.0
				if p > 0 {
					if rng.Float64() < p {
						mask = 0
					} else {
						mask = 1 / (1 - p)
					}
				}
				if z[j] <= 0 {
					mask = 0
				}
				t.masks[l][j] = mask
				out[j] = z[j] * mask
			}
		}

		prob := sigmoid(t.zs[last][0])
		target := float64(y[i])
		pc := math.Min(math.Max(prob, probEps), 1-probEps)
		loss += -(target*math.Log(pc) + (1-target)*math.Log(1-pc))

		t.deltas[last][0] = (prob - target) * scale
		for l := last; l >= 0; l-- {
			s := t.net.shapes[l]
			delta := t.deltas[l]
			in := t.acts[l]
			for j := 0; j < s.out; j++ {
				if delta[j] == 0 {
					continue
				}
				g := t.grad[s.wOff+j*s.in : s.wOff+(j+1)*s.in]
				for k, a := range in {
					g[k] += delta[j] * a
				}
				t.grad[s.bOff+j] += delta[j]
			}
			if l == 0 {
				break
			}
			prev := t.deltas[l-1]
			clear(prev)
			for j := 0; j < s.out; j++ {
				if delta[j] == 0 {
					continue
				}
				w := t.net.theta[s.wOff+j*s.in : s.wOff+(j+1)*s.in]
				for k := range prev {
					prev[k] += w[k] * delta[j]
				}
			}
			for k := range prev {
				prev[k] *= t.masks[l-1][k]
			}
		}
	}
	return loss
}

// clip rescales the gradient to a global L2 norm of at most maxNorm.
func (t *trainer) clip(maxNorm float64) {
	var ss float64
	for _, g := range t.grad {
		ss += g * g
	}
	norm := math.Sqrt(ss)
	if norm > maxNorm {
		f := maxNorm / (norm + 1e-6)
		for i := range t.grad {
			t.grad[i] *= f
		}
	}
}

func (t *trainer) adam(lr float64) {
	t.step++
	c1 := 1 - math.Pow(adamBeta1, float64(t.step))
	c2 := 1 - math.Pow(adamBeta2, float64(t.step))
	for i, g := range t.grad {
		t.m[i] = adamBeta1*t.m[i] + (1-adamBeta1)*g
		t.v[i] = adamBeta2*t.v[i] + (1-adamBeta2)*g*g
		mhat := t.m[i] / c1
		vhat := t.v[i] / c2
		t.net.theta[i] -= lr * mhat / (math.Sqrt(vhat) + adamEps)
	}
}

func bceLoss(net *network, X [][]float64, y []int) float64 {
	var loss float64
	for i, x := range X {
		p := math.Min(math.Max(net.predict(x), probEps), 1-probEps)
		t := float64(y[i])
		loss += -(t*math.Log(p) + (1-t)*math.Log(1-p))
	}
	return loss / float64(len(X))
}
