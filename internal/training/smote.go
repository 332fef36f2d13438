package training

import (
	"math"
	"math/rand/v2"
	"slices"
)

// SMOTE oversamples the positive class with synthetic rows interpolated
// between each minority row and one of its k nearest minority neighbours
// until both classes have the same count. It returns the input unchanged
// when fewer than two positives are present. Inputs are never mutated.
func SMOTE(X [][]float64, y []int, k int, seed uint64) ([][]float64, []int) {
	var pos []int
	for i, v := range y {
		if v == 1 {
			pos = append(pos, i)
		}
	}
	need := len(y) - 2*len(pos)
	if len(pos) < 2 || need <= 0 {
		return X, y
	}
	k = min(k, len(pos)-1)

	neighbours := make([][]int, len(pos))
	dist := make([]float64, len(pos))
	order := make([]int, len(pos))
	for a, i := range pos {
		for b, j := range pos {
			order[b] = b
			if a == b {
				dist[b] = math.Inf(1)
				continue
			}
			dist[b] = squaredDistance(X[i], X[j])
		}
		slices.SortStableFunc(order, func(p, q int) int {
			switch {
			case dist[p] < dist[q]:
				return -1
			case dist[p] > dist[q]:
				return 1
			}
			return 0
		})
		neighbours[a] = slices.Clone(order[:k])
	}

	rng := rand.New(rand.NewPCG(seed, 31))
	outX := make([][]float64, len(X), len(X)+need)
	copy(outX, X)
	outY := make([]int, len(y), len(y)+need)
	copy(outY, y)
	for s := 0; s < need; s++ {
		a := rng.IntN(len(pos))
		base := X[pos[a]]
		nb := X[pos[neighbours[a][rng.IntN(k)]]]
		gap := rng.Float64()
		row := make([]float64, len(base))
		for j := range row {
			row[j] = base[j] + gap*(nb[j]-base[j])
		}
		outX = append(outX, row)
		outY = append(outY, 1)
	}
	return outX, outY
}

func squaredDistance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
