// Package preprocess implements the imputation and scaling stage that sits
// between feature encoding and the model bank. Parameters are fit once on a
// training partition and then reused unchanged at inference time.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrEmpty is returned when fitting on no rows.
var ErrEmpty = errors.New("preprocess: cannot fit on an empty matrix")

// Params are the learned per-column statistics.
type Params struct {
	Medians []float64 `json:"medians"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

// Pipeline replaces missing values with the column median and then
// standardises each column. A fitted Pipeline is immutable.
type Pipeline struct {
	p Params
}

// Fit learns medians, means and population standard deviations from X.
// NaN and infinite cells are treated as missing and excluded from the
// median.
func Fit(X [][]float64) (*Pipeline, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, ErrEmpty
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("preprocess: row %d has %d columns, want %d", i, len(row), d)
		}
	}

	p := Params{
		Medians: make([]float64, d),
		Means:   make([]float64, d),
		Stds:    make([]float64, d),
	}
	col := make([]float64, 0, len(X))
	imputed := make([]float64, len(X))
	for j := 0; j < d; j++ {
		col = col[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) && !math.IsInf(row[j], 0) {
				col = append(col, row[j])
			}
		}
		p.Medians[j] = median(col)

		for i, row := range X {
			imputed[i] = impute(row[j], p.Medians[j])
		}
		mean, std := stat.PopMeanStdDev(imputed, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.Means[j] = mean
		p.Stds[j] = std
	}
	return &Pipeline{p: p}, nil
}

// FromParams rebuilds a pipeline from persisted parameters.
func FromParams(p Params) (*Pipeline, error) {
	d := len(p.Means)
	if d == 0 || len(p.Medians) != d || len(p.Stds) != d {
		return nil, fmt.Errorf("preprocess: inconsistent parameter lengths %d/%d/%d", len(p.Medians), d, len(p.Stds))
	}
	for j, s := range p.Stds {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("preprocess: column %d has invalid std %v", j, s)
		}
	}
	return &Pipeline{p: clone(p)}, nil
}

// Params returns a copy of the fitted parameters.
func (pl *Pipeline) Params() Params {
	return clone(pl.p)
}

// Dim is the number of columns the pipeline was fit on.
func (pl *Pipeline) Dim() int {
	return len(pl.p.Means)
}

// Transform imputes and standardises a single row. The input is not modified.
func (pl *Pipeline) Transform(x []float64) ([]float64, error) {
	if len(x) != len(pl.p.Means) {
		return nil, fmt.Errorf("preprocess: got %d values, want %d", len(x), len(pl.p.Means))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (impute(v, pl.p.Medians[j]) - pl.p.Means[j]) / pl.p.Stds[j]
	}
	return out, nil
}

// TransformAll applies Transform to every row of X.
func (pl *Pipeline) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		r, err := pl.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// Inverse maps a standardised value in column j back to its original scale.
func (pl *Pipeline) Inverse(j int, v float64) float64 {
	if j < 0 || j >= len(pl.p.Means) {
		return v
	}
	return v*pl.p.Stds[j] + pl.p.Means[j]
}

func impute(v, med float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return med
	}
	return v
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func clone(p Params) Params {
	return Params{
		Medians: append([]float64(nil), p.Medians...),
		Means:   append([]float64(nil), p.Means...),
		Stds:    append([]float64(nil), p.Stds...),
	}
}
