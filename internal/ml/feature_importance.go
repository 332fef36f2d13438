package ml

import (
	"cmp"
	"slices"
	"strconv"
)

// FeatureScore pairs a feature name with its importance.
type FeatureScore struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// TopFeatures returns the n most important features in descending order.
// Ties keep input order. Missing names are reported as feature_<index>.
func TopFeatures(names []string, importance []float64, n int) []FeatureScore {
	scores := make([]FeatureScore, len(importance))
	for i, v := range importance {
		name := "feature_" + strconv.Itoa(i)
		if i < len(names) {
			name = names[i]
		}
		scores[i] = FeatureScore{Name: name, Importance: v}
	}
	slices.SortStableFunc(scores, func(a, b FeatureScore) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	if n >= 0 && n < len(scores) {
		scores = scores[:n]
	}
	return scores
}

// CombineImportance averages the importance vectors of several members,
// weighting each by w. Vectors of the wrong length are skipped.
func CombineImportance(d int, vectors [][]float64, w []float64) []float64 {
	out := make([]float64, d)
	for k, v := range vectors {
		if len(v) != d {
			continue
		}
		wk := 1.0
		if k < len(w) {
			wk = w[k]
		}
		for j, x := range v {
			out[j] += wk * x
		}
	}
	return normalize(out)
}

// normalize scales v to sum to one. An all-zero vector stays zero.
func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var s float64
	for _, x := range v {
		s += x
	}
	if s <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / s
	}
	return out
}
