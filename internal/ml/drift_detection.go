package ml

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DriftBins is the number of equal-width probability bins used for score
// histograms.
const DriftBins = 10

// psiFloor keeps empty bins from producing infinite PSI terms.
const psiFloor = 1e-4

// Drift severities, by PSI band.
const (
	DriftNone        = "none"
	DriftModerate    = "moderate"
	DriftSignificant = "significant"
	DriftNoBaseline  = "no_baseline"
)

// DriftConfig configures a DriftDetector.
type DriftConfig struct {
	WindowSize    int           `yaml:"windowSize" json:"window_size"`
	MinSamples    int           `yaml:"minSamples" json:"min_samples"`
	PSIThreshold  float64       `yaml:"psiThreshold" json:"psi_threshold"`
	AlertCooldown time.Duration `yaml:"alertCooldown" json:"alert_cooldown"`
}

func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		WindowSize:    5000,
		MinSamples:    200,
		PSIThreshold:  0.2,
		AlertCooldown: 15 * time.Minute,
	}
}

func (c DriftConfig) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("drift window size must be positive, got %d", c.WindowSize)
	}
	if c.MinSamples < 1 || c.MinSamples > c.WindowSize {
		return fmt.Errorf("drift min samples must be in [1, %d], got %d", c.WindowSize, c.MinSamples)
	}
	if c.PSIThreshold <= 0 {
		return fmt.Errorf("drift PSI threshold must be positive, got %g", c.PSIThreshold)
	}
	return nil
}

// DriftReport compares the recent score distribution with the baseline
// recorded at training time.
type DriftReport struct {
	Family    string    `json:"family"`
	Version   string    `json:"version,omitempty"`
	Samples   int       `json:"samples"`
	PSI       float64   `json:"psi"`
	KS        float64   `json:"ks_statistic"`
	Severity  string    `json:"severity"`
	Drifted   bool      `json:"drifted"`
	Baseline  []float64 `json:"baseline,omitempty"`
	Current   []float64 `json:"current,omitempty"`
	Evaluated time.Time `json:"evaluated_at"`
}

// DriftDetector tracks a sliding window of served probabilities for one
// family. It is safe for concurrent use.
type DriftDetector struct {
	mu        sync.Mutex
	family    string
	cfg       DriftConfig
	version   string
	baseline  []float64
	window    []float64
	next      int
	full      bool
	lastAlert time.Time
}

func NewDriftDetector(family string, cfg DriftConfig) *DriftDetector {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	return &DriftDetector{
		family: family,
		cfg:    cfg,
		window: make([]float64, cfg.WindowSize),
	}
}

// SetBaseline installs the training-time histogram of version. The window
// is cleared when the version changes.
func (d *DriftDetector) SetBaseline(version string, hist []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if version == d.version {
		return
	}
	d.version = version
	d.baseline = nil
	if len(hist) == DriftBins {
		d.baseline = append([]float64(nil), hist...)
	}
	d.next, d.full = 0, false
}

// Observe records one served probability.
func (d *DriftDetector) Observe(p float64) {
	if math.IsNaN(p) {
		return
	}
	d.mu.Lock()
	d.window[d.next] = p
	d.next++
	if d.next == len(d.window) {
		d.next, d.full = 0, true
	}
	d.mu.Unlock()
}

func (d *DriftDetector) samples() []float64 {
	if d.full {
		return d.window
	}
	return d.window[:d.next]
}

// Report evaluates the current window. A warning is logged when drift is
// found, at most once per AlertCooldown.
func (d *DriftDetector) Report(now time.Time) DriftReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.samples()
	r := DriftReport{Family: d.family, Version: d.version, Samples: len(s), Evaluated: now}
	if d.baseline == nil {
		r.Severity = DriftNoBaseline
		return r
	}
	r.Baseline = append([]float64(nil), d.baseline...)
	r.Severity = DriftNone
	if len(s) == 0 {
		return r
	}
	r.Current = Histogram(s, DriftBins)
	r.PSI = PSI(d.baseline, r.Current)
	r.KS = HistogramKS(d.baseline, r.Current)
	r.Severity = Severity(r.PSI)
	r.Drifted = len(s) >= d.cfg.MinSamples && r.PSI >= d.cfg.PSIThreshold

	if r.Drifted && now.Sub(d.lastAlert) >= d.cfg.AlertCooldown {
		d.lastAlert = now
		log.Warn().
			Str("family", d.family).
			Str("version", d.version).
			Int("samples", r.Samples).
			Float64("psi", r.PSI).
			Float64("ks", r.KS).
			Msg("Score distribution drift detected, consider retraining")
	}
	return r
}

// Histogram returns the share of scores in each of bins equal-width bins
// over [0, 1].
func Histogram(scores []float64, bins int) []float64 {
	h := make([]float64, bins)
	if len(scores) == 0 {
		return h
	}
	for _, p := range scores {
		i := int(p * float64(bins))
		h[min(max(i, 0), bins-1)]++
	}
	for i := range h {
		h[i] /= float64(len(scores))
	}
	return h
}

// PSI is the population stability index of actual against expected.
func PSI(expected, actual []float64) float64 {
	var psi float64
	for i := range expected {
		e := math.Max(expected[i], psiFloor)
		a := math.Max(actual[i], psiFloor)
		psi += (a - e) * math.Log(a/e)
	}
	return psi
}

// HistogramKS is the largest gap between the two cumulative distributions.
func HistogramKS(expected, actual []float64) float64 {
	var ce, ca, ks float64
	for i := range expected {
		ce += expected[i]
		ca += actual[i]
		ks = math.Max(ks, math.Abs(ce-ca))
	}
	return ks
}

// Severity maps a PSI value to the conventional stability bands.
func Severity(psi float64) string {
	switch {
	case psi >= 0.2:
		return DriftSignificant
	case psi >= 0.1:
		return DriftModerate
	}
	return DriftNone
}
