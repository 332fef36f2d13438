package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticParams are the learned coefficients of a logistic model.
type LogisticParams struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Iter      int       `json:"iterations"`
}

// Logistic is an L2-regularised logistic regression fit with Newton steps
// (iteratively reweighted least squares). The intercept is not penalised.
type Logistic struct {
	cfg    LogisticConfig
	params *LogisticParams
}

func NewLogistic(cfg LogisticConfig) (*Logistic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Logistic{cfg: cfg}, nil
}

// LogisticFromParams rebuilds a fitted model from persisted parameters.
func LogisticFromParams(p LogisticParams) (*Logistic, error) {
	if len(p.Coef) == 0 {
		return nil, fmt.Errorf("logistic: no coefficients")
	}
	for i, c := range p.Coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("logistic: coefficient %d is not finite", i)
		}
	}
	cp := p
	cp.Coef = append([]float64(nil), p.Coef...)
	return &Logistic{cfg: DefaultLogisticConfig(), params: &cp}, nil
}

func (m *Logistic) Name() string { return NameLogistic }

func (m *Logistic) Fit(X [][]float64, y []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	n0, n1 := classCounts(y, nil)
	if n0 == 0 || n1 == 0 {
		return ErrSingleClass
	}
	w := sampleWeights(y, nil, m.cfg.ClassWeight)

	// beta[d] is the intercept
	k := d + 1
	beta := make([]float64, k)
	grad := make([]float64, k)
	hess := make([]float64, k*k)
	xi := make([]float64, k)
	penalty := 1 / m.cfg.C

	iter := 0
	for ; iter < m.cfg.MaxIter; iter++ {
		clear(grad)
		clear(hess)
		for i, row := range X {
			copy(xi, row)
			xi[d] = 1
			p := sigmoid(dot(beta, xi))
			g := w[i] * (p - float64(y[i]))
			s := w[i] * p * (1 - p)
			for a := 0; a < k; a++ {
				grad[a] += g * xi[a]
				sa := s * xi[a]
				for b := a; b < k; b++ {
					hess[a*k+b] += sa * xi[b]
				}
			}
		}
		for a := 0; a < d; a++ {
			grad[a] += penalty * beta[a]
			hess[a*k+a] += penalty
		}
		// keeps the system positive definite on separable data
		hess[d*k+d] += 1e-10

		var chol mat.Cholesky
		if ok := chol.Factorize(mat.NewSymDense(k, hess)); !ok {
			return fmt.Errorf("logistic: hessian is not positive definite at iteration %d", iter)
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, mat.NewVecDense(k, grad)); err != nil {
			return fmt.Errorf("logistic: newton step: %w", err)
		}

		var maxStep float64
		for a := 0; a < k; a++ {
			delta := step.AtVec(a)
			beta[a] -= delta
			maxStep = math.Max(maxStep, math.Abs(delta))
		}
		if maxStep < m.cfg.Tol {
			iter++
			break
		}
	}

	m.params = &LogisticParams{
		Coef:      append([]float64(nil), beta[:d]...),
		Intercept: beta[d],
		Iter:      iter,
	}
	return nil
}

func (m *Logistic) PredictProba(x []float64) float64 {
	if m.params == nil {
		return 0.5
	}
	return sigmoid(m.Decision(x))
}

// Decision returns the linear score before the sigmoid.
func (m *Logistic) Decision(x []float64) float64 {
	return dot(m.params.Coef, x) + m.params.Intercept
}

// Coefficients returns a copy of the feature coefficients.
func (m *Logistic) Coefficients() []float64 {
	if m.params == nil {
		return nil
	}
	return append([]float64(nil), m.params.Coef...)
}

func (m *Logistic) FeatureImportance() []float64 {
	if m.params == nil {
		return nil
	}
	imp := make([]float64, len(m.params.Coef))
	for i, c := range m.params.Coef {
		imp[i] = math.Abs(c)
	}
	return normalize(imp)
}

func (m *Logistic) Params() (LogisticParams, error) {
	if m.params == nil {
		return LogisticParams{}, ErrNotFitted
	}
	p := *m.params
	p.Coef = append([]float64(nil), p.Coef...)
	return p, nil
}

// dot ranges over a; b must be at least as long.
func dot(a, b []float64) float64 {
	var s float64
	for i, v := range a {
		s += v * b[i]
	}
	return s
}
