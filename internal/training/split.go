package training

import (
	"math"
	"math/rand/v2"
	"slices"
)

// Split holds disjoint row indices of the three partitions.
type Split struct {
	Train []int
	Val   []int
	Test  []int
}

// StratifiedSplit partitions the rows of y into test (testSize of all rows),
// validation (valSize of the rest) and train, preserving the class ratio in
// every partition.
func StratifiedSplit(y []int, testSize, valSize float64, seed uint64) Split {
	rng := rand.New(rand.NewPCG(seed, 21))
	var s Split
	for _, idx := range byClass(y) {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testSize * float64(len(idx))))
		rest := idx[nTest:]
		nVal := int(math.Round(valSize * float64(len(rest))))
		s.Test = append(s.Test, idx[:nTest]...)
		s.Val = append(s.Val, rest[:nVal]...)
		s.Train = append(s.Train, rest[nVal:]...)
	}
	slices.Sort(s.Train)
	slices.Sort(s.Val)
	slices.Sort(s.Test)
	return s
}

// Fold is one train/held-out pair of a k-fold split.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold deals each class round-robin into k folds after a seeded
// shuffle, so every fold keeps the class ratio.
func StratifiedKFold(y []int, k int, seed uint64) []Fold {
	rng := rand.New(rand.NewPCG(seed, 23))
	buckets := make([][]int, k)
	for _, idx := range byClass(y) {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for n, i := range idx {
			buckets[n%k] = append(buckets[n%k], i)
		}
	}
	folds := make([]Fold, k)
	for f := range folds {
		for g, b := range buckets {
			if g == f {
				folds[f].Test = append(folds[f].Test, b...)
			} else {
				folds[f].Train = append(folds[f].Train, b...)
			}
		}
		slices.Sort(folds[f].Train)
		slices.Sort(folds[f].Test)
	}
	return folds
}

func byClass(y []int) [2][]int {
	var out [2][]int
	for i, v := range y {
		out[v] = append(out[v], i)
	}
	return out
}

func gatherRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for k, i := range idx {
		out[k] = X[i]
	}
	return out
}

func gatherLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for k, i := range idx {
		out[k] = y[i]
	}
	return out
}

func positiveRate(y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	var n int
	for _, v := range y {
		n += v
	}
	return float64(n) / float64(len(y))
}
