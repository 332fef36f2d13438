// Package ensemble blends the model bank into one probability, explains it,
// and serves scoring requests from atomically swappable engines.
package ensemble

import (
	"fmt"
	"math"

	"risk-engine/internal/common"
	"risk-engine/internal/ml"
)

// Member is one weighted voter of an ensemble.
type Member interface {
	Name() string
	Score(x []float64) float64
}

// Weighted pairs a member with its static weight.
type Weighted struct {
	Member
	Weight float64
}

// Result is the blended output for one scaled vector.
type Result struct {
	Probability float64            `json:"probability"`
	IsPositive  bool               `json:"is_positive"`
	Scores      map[string]float64 `json:"scores"`
	Confidence  float64            `json:"confidence"`
}

// Combiner computes Σ weight·score over its members. It holds no mutable
// state after construction.
type Combiner struct {
	members []Weighted
	cut     float64
}

// NewCombiner validates that weights are non-negative, names unique, the
// total is one within common.WeightTolerance and the cut lies in (0,1).
func NewCombiner(members []Weighted, cut float64) (*Combiner, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("combiner: no members")
	}
	if math.IsNaN(cut) || cut <= 0 || cut >= 1 {
		return nil, fmt.Errorf("combiner: decision cut %v outside (0,1)", cut)
	}
	seen := make(map[string]bool, len(members))
	var sum float64
	for _, m := range members {
		if m.Member == nil {
			return nil, fmt.Errorf("combiner: nil member")
		}
		if seen[m.Name()] {
			return nil, fmt.Errorf("combiner: duplicate member %q", m.Name())
		}
		seen[m.Name()] = true
		if math.IsNaN(m.Weight) || m.Weight < 0 {
			return nil, fmt.Errorf("combiner: member %q has invalid weight %v", m.Name(), m.Weight)
		}
		sum += m.Weight
	}
	if math.Abs(sum-1) > common.WeightTolerance {
		return nil, fmt.Errorf("combiner: weights sum to %v, want 1", sum)
	}
	return &Combiner{members: append([]Weighted(nil), members...), cut: cut}, nil
}

// Combine evaluates every member in order and blends their scores.
func (c *Combiner) Combine(x []float64) Result {
	scores := make(map[string]float64, len(c.members))
	var p float64
	for _, m := range c.members {
		s := m.Score(x)
		if math.IsNaN(s) {
			s = 0.5
		}
		s = math.Max(0, math.Min(1, s))
		scores[m.Name()] = s
		p += m.Weight * s
	}
	p = math.Max(0, math.Min(1, p))
	return Result{
		Probability: p,
		IsPositive:  p > c.cut,
		Scores:      scores,
		Confidence:  math.Max(p, 1-p),
	}
}

// Names returns the member names in evaluation order.
func (c *Combiner) Names() []string {
	out := make([]string, len(c.members))
	for i, m := range c.members {
		out[i] = m.Name()
	}
	return out
}

// Cut is the probability above which a result is positive.
func (c *Combiner) Cut() float64 { return c.cut }

// classifierMember scores with a fitted classifier's probability.
type classifierMember struct{ ml.Classifier }

func (m classifierMember) Score(x []float64) float64 { return m.PredictProba(x) }

// anomalyMember contributes the detector's hard 0/1 flag.
type anomalyMember struct{ g *ml.GMM }

func (m anomalyMember) Name() string              { return ml.NameGMM }
func (m anomalyMember) Score(x []float64) float64 { return m.g.Score(x) }

// ClassifierMember adapts a fitted classifier.
func ClassifierMember(c ml.Classifier) Member { return classifierMember{c} }

// AnomalyMember adapts a fitted mixture into a 0/1 voter.
func AnomalyMember(g *ml.GMM) Member { return anomalyMember{g} }
