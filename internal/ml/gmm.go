package ml

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GMMParams is the persisted form of a fitted mixture.
type GMMParams struct {
	Dim         int           `json:"dim"`
	Weights     []float64     `json:"weights"`
	Means       [][]float64   `json:"means"`
	Covariances [][][]float64 `json:"covariances"`
	Threshold   float64       `json:"threshold"`
}

// ErrDegenerateCovariance is returned when a component covariance stays
// singular after repeated regularisation.
var ErrDegenerateCovariance = errors.New("gmm: covariance is not positive definite")

type component struct {
	logWeight float64
	mean      []float64
	cov       [][]float64
	chol      [][]float64 // lower Cholesky factor
	logDet    float64
}

// GMM is a full-covariance Gaussian mixture fit by EM on legitimate rows
// only. Rows whose log-likelihood falls below the threshold are anomalous.
type GMM struct {
	cfg        GMMConfig
	dim        int
	components []component
	threshold  float64
	fitted     bool
	iterations int
	converged  bool
}

func NewGMM(cfg GMMConfig) (*GMM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GMM{cfg: cfg}, nil
}

// GMMFromParams rebuilds a fitted mixture and refactorises its covariances.
func GMMFromParams(p GMMParams) (*GMM, error) {
	k := len(p.Weights)
	if k == 0 || len(p.Means) != k || len(p.Covariances) != k {
		return nil, fmt.Errorf("gmm: %d weights, %d means, %d covariances", k, len(p.Means), len(p.Covariances))
	}
	if p.Dim < 1 || math.IsNaN(p.Threshold) {
		return nil, fmt.Errorf("gmm: invalid dimension %d or threshold %v", p.Dim, p.Threshold)
	}
	g := &GMM{cfg: DefaultGMMConfig(), dim: p.Dim, threshold: p.Threshold, fitted: true}
	for i := 0; i < k; i++ {
		if p.Weights[i] <= 0 || len(p.Means[i]) != p.Dim || len(p.Covariances[i]) != p.Dim {
			return nil, fmt.Errorf("gmm: component %d has invalid shape", i)
		}
		c := component{logWeight: math.Log(p.Weights[i]), mean: slices.Clone(p.Means[i]), cov: make([][]float64, p.Dim)}
		for r, row := range p.Covariances[i] {
			if len(row) != p.Dim {
				return nil, fmt.Errorf("gmm: component %d covariance row %d has %d columns", i, r, len(row))
			}
			c.cov[r] = slices.Clone(row)
		}
		if err := c.factorize(0); err != nil {
			return nil, fmt.Errorf("gmm: component %d: %w", i, err)
		}
		g.components = append(g.components, c)
	}
	return g, nil
}

// Fit runs k-means++ seeded EM on X, which should contain legitimate rows.
func (g *GMM) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("gmm: empty training set")
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("gmm: row %d has %d features, want %d", i, len(row), d)
		}
	}
	k := g.cfg.Components
	if len(X) < k {
		return fmt.Errorf("gmm: %d rows are too few for %d components", len(X), k)
	}
	g.dim = d

	resp := g.initResponsibilities(X, k)
	if err := g.mStep(X, resp); err != nil {
		return err
	}

	prev := math.Inf(-1)
	g.converged = false
	g.iterations = 0
	for it := 1; it <= g.cfg.MaxIter; it++ {
		g.iterations = it
		ll := g.eStep(X, resp)
		if math.Abs(ll-prev) < g.cfg.Tol {
			g.converged = true
			break
		}
		prev = ll
		if err := g.mStep(X, resp); err != nil {
			return err
		}
	}
	g.fitted = true

	if g.cfg.FixedThreshold != nil {
		g.threshold = *g.cfg.FixedThreshold
		return nil
	}
	lls := make([]float64, len(X))
	for i, x := range X {
		lls[i] = g.LogLikelihood(x)
	}
	g.threshold = Quantile(lls, g.cfg.ThresholdQuantile)
	return nil
}

// initResponsibilities assigns every row to its nearest k-means centre.
func (g *GMM) initResponsibilities(X [][]float64, k int) [][]float64 {
	rng := newRand(g.cfg.Seed, 11)
	n := len(X)
	centres := [][]float64{slices.Clone(X[rng.IntN(n)])}
	dist := make([]float64, n)
	for len(centres) < k {
		var total float64
		for i, x := range X {
			dist[i] = math.Inf(1)
			for _, c := range centres {
				dist[i] = math.Min(dist[i], sqDist(x, c))
			}
			total += dist[i]
		}
		next := rng.IntN(n)
		if total > 0 {
			r := rng.Float64() * total
			for i, v := range dist {
				r -= v
				if r <= 0 {
					next = i
					break
				}
			}
		}
		centres = append(centres, slices.Clone(X[next]))
	}

	assign := make([]int, n)
	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, x := range X {
			best, bestD := 0, math.Inf(1)
			for c := range centres {
				if dd := sqDist(x, centres[c]); dd < bestD {
					best, bestD = c, dd
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(X[0]))
		}
		for i, x := range X {
			counts[assign[i]]++
			for j, v := range x {
				sums[assign[i]][j] += v
			}
		}
		for c := range centres {
			if counts[c] == 0 {
				continue
			}
			for j := range centres[c] {
				centres[c][j] = sums[c][j] / float64(counts[c])
			}
		}
		if !changed && iter > 0 {
			break
		}
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
		resp[i][assign[i]] = 1
	}
	return resp
}

// eStep fills resp with posterior responsibilities and returns the mean
// log-likelihood.
func (g *GMM) eStep(X [][]float64, resp [][]float64) float64 {
	var total float64
	buf := make([]float64, g.dim)
	for i, x := range X {
		r := resp[i]
		for c := range g.components {
			r[c] = g.components[c].logWeight + g.components[c].logPDF(x, buf)
		}
		lse := logSumExp(r)
		for c := range r {
			r[c] = math.Exp(r[c] - lse)
		}
		total += lse
	}
	return total / float64(len(X))
}

func (g *GMM) mStep(X [][]float64, resp [][]float64) error {
	k := len(resp[0])
	d := g.dim
	n := float64(len(X))
	comps := make([]component, k)
	for c := 0; c < k; c++ {
		nk := 10 * 2.220446049250313e-16
		mean := make([]float64, d)
		for i, x := range X {
			r := resp[i][c]
			nk += r
			for j, v := range x {
				mean[j] += r * v
			}
		}
		for j := range mean {
			mean[j] /= nk
		}
		cov := make([][]float64, d)
		for a := range cov {
			cov[a] = make([]float64, d)
		}
		diff := make([]float64, d)
		for i, x := range X {
			r := resp[i][c]
			if r == 0 {
				continue
			}
			for j := range diff {
				diff[j] = x[j] - mean[j]
			}
			for a := 0; a < d; a++ {
				ra := r * diff[a]
				for b := a; b < d; b++ {
					cov[a][b] += ra * diff[b]
				}
			}
		}
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				cov[a][b] /= nk
				cov[b][a] = cov[a][b]
			}
			cov[a][a] += g.cfg.RegCovar
		}
		comps[c] = component{logWeight: math.Log(nk / n), mean: mean, cov: cov}
		if err := comps[c].factorize(g.cfg.RegCovar); err != nil {
			return fmt.Errorf("gmm: component %d: %w", c, err)
		}
	}
	g.components = comps
	return nil
}

// factorize computes the Cholesky factor, adding growing diagonal jitter
// when the covariance is numerically singular.
func (c *component) factorize(reg float64) error {
	d := len(c.mean)
	jitter := math.Max(reg, 1e-6)
	for attempt := 0; attempt < 8; attempt++ {
		data := make([]float64, d*d)
		for a := 0; a < d; a++ {
			copy(data[a*d:(a+1)*d], c.cov[a])
		}
		var chol mat.Cholesky
		if chol.Factorize(mat.NewSymDense(d, data)) {
			var L mat.TriDense
			chol.LTo(&L)
			c.chol = make([][]float64, d)
			for a := 0; a < d; a++ {
				c.chol[a] = make([]float64, a+1)
				for b := 0; b <= a; b++ {
					c.chol[a][b] = L.At(a, b)
				}
			}
			c.logDet = chol.LogDet()
			return nil
		}
		for a := 0; a < d; a++ {
			c.cov[a][a] += jitter
		}
		jitter *= 10
	}
	return ErrDegenerateCovariance
}

// logPDF evaluates the log density with a forward solve against the
// Cholesky factor. buf must have length d.
func (c *component) logPDF(x, buf []float64) float64 {
	d := len(c.mean)
	var maha float64
	for a := 0; a < d; a++ {
		s := x[a] - c.mean[a]
		row := c.chol[a]
		for b := 0; b < a; b++ {
			s -= row[b] * buf[b]
		}
		buf[a] = s / row[a]
		maha += buf[a] * buf[a]
	}
	return -0.5 * (float64(d)*math.Log(2*math.Pi) + c.logDet + maha)
}

// LogLikelihood returns the log density of x under the mixture.
func (g *GMM) LogLikelihood(x []float64) float64 {
	if !g.fitted || len(x) != g.dim {
		return math.Inf(-1)
	}
	buf := make([]float64, g.dim)
	terms := make([]float64, len(g.components))
	for c := range g.components {
		terms[c] = g.components[c].logWeight + g.components[c].logPDF(x, buf)
	}
	return logSumExp(terms)
}

// IsAnomaly reports whether x is less likely than the fitted threshold.
func (g *GMM) IsAnomaly(x []float64) bool {
	return g.LogLikelihood(x) < g.threshold
}

// Score is the hard 0/1 anomaly signal used as an ensemble member.
func (g *GMM) Score(x []float64) float64 {
	if g.IsAnomaly(x) {
		return 1
	}
	return 0
}

func (g *GMM) Threshold() float64 { return g.threshold }

// Converged reports whether the last fit met the tolerance before MaxIter.
func (g *GMM) Converged() (bool, int) { return g.converged, g.iterations }

func (g *GMM) Params() (GMMParams, error) {
	if !g.fitted {
		return GMMParams{}, ErrNotFitted
	}
	p := GMMParams{Dim: g.dim, Threshold: g.threshold}
	for _, c := range g.components {
		p.Weights = append(p.Weights, math.Exp(c.logWeight))
		p.Means = append(p.Means, slices.Clone(c.mean))
		cov := make([][]float64, len(c.cov))
		for a, row := range c.cov {
			cov[a] = slices.Clone(row)
		}
		p.Covariances = append(p.Covariances, cov)
	}
	return p, nil
}

// Quantile returns the q-quantile of v, interpolating linearly between
// order statistics. q is clamped to [0, 1]; v is not reordered.
func Quantile(v []float64, q float64) float64 {
	if len(v) == 0 || math.IsNaN(q) {
		return math.NaN()
	}
	s := slices.Clone(v)
	slices.Sort(s)
	return stat.Quantile(min(max(q, 0), 1), stat.LinInterp, s, nil)
}

func logSumExp(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	if math.IsInf(m, -1) {
		return m
	}
	var s float64
	for _, x := range v {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return s
}
