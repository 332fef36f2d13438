package ensemble

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"risk-engine/internal/policy"
)

// Direction labels of a contribution.
const (
	IncreasesRisk = "increases risk"
	DecreasesRisk = "decreases risk"
)

// DefaultTopFactors is the number of contributions reported per request.
const DefaultTopFactors = 5

// Contribution is one feature's signed share of the linear model's score.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

// Explain ranks coef[i]·scaled[i] by magnitude and keeps the top n.
func Explain(coef, scaled []float64, names []string, n int) []Contribution {
	k := min(len(coef), len(scaled))
	out := make([]Contribution, 0, k)
	for i := 0; i < k; i++ {
		name := fmt.Sprintf("feature_%d", i)
		if i < len(names) {
			name = names[i]
		}
		c := coef[i] * scaled[i]
		dir := DecreasesRisk
		if c > 0 {
			dir = IncreasesRisk
		}
		out = append(out, Contribution{Feature: name, Value: scaled[i], Contribution: c, Direction: dir})
	}
	slices.SortStableFunc(out, func(a, b Contribution) int {
		return cmp.Compare(math.Abs(b.Contribution), math.Abs(a.Contribution))
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Consensus counts members whose score exceeds one half.
func Consensus(scores map[string]float64) (votes, total int) {
	for _, s := range scores {
		if s > 0.5 {
			votes++
		}
	}
	return votes, len(scores)
}

// FraudExplanation renders the tier sentence, member consensus and the
// leading factors as one line of text.
func FraudExplanation(band policy.FraudBand, scores map[string]float64, factors []Contribution) string {
	votes, total := Consensus(scores)
	parts := []string{band.Explanation, fmt.Sprintf("%d/%d models detected fraud.", votes, total)}
	if len(factors) > 0 {
		names := make([]string, len(factors))
		for i, f := range factors {
			names[i] = fmt.Sprintf("%s (%s)", f.Feature, f.Direction)
		}
		parts = append(parts, "Top factors: "+strings.Join(names, ", ")+".")
	}
	return strings.Join(parts, " ")
}
