package ensemble

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/ml"
)

// ModelNotTrainedError is returned when a family has no loaded engine.
type ModelNotTrainedError struct {
	Family string
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("%s model is not trained or not loaded", e.Family)
}

// Source yields the artifact that should be served for a family.
type Source interface {
	Active(ctx context.Context, family string) (*artifact.Artifact, error)
}

// Registry holds one engine per family behind an atomic pointer. Readers
// always observe either the previous or the next fully built engine.
type Registry struct {
	engines map[string]*atomic.Pointer[Engine]
	drift   map[string]*ml.DriftDetector
	metrics MetricsInterface
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	drift ml.DriftConfig
}

// WithDriftConfig sets the score drift window of every family.
func WithDriftConfig(cfg ml.DriftConfig) RegistryOption {
	return func(o *registryOptions) { o.drift = cfg }
}

func NewRegistry(metrics MetricsInterface, opts ...RegistryOption) *Registry {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	o := registryOptions{drift: ml.DefaultDriftConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		engines: make(map[string]*atomic.Pointer[Engine]),
		drift:   make(map[string]*ml.DriftDetector),
		metrics: metrics,
	}
	for _, f := range r.Families() {
		r.engines[f] = new(atomic.Pointer[Engine])
		r.drift[f] = ml.NewDriftDetector(f, o.drift)
	}
	return r
}

// Get returns the current engine of family.
func (r *Registry) Get(family string) (*Engine, error) {
	p, ok := r.engines[family]
	if !ok {
		return nil, fmt.Errorf("unknown model family %q", family)
	}
	e := p.Load()
	if e == nil {
		return nil, &ModelNotTrainedError{Family: family}
	}
	return e, nil
}

// Swap installs e and returns the engine it replaced.
func (r *Registry) Swap(e *Engine) (*Engine, error) {
	p, ok := r.engines[e.Family()]
	if !ok {
		return nil, fmt.Errorf("unknown model family %q", e.Family())
	}
	prev := p.Swap(e)
	r.drift[e.Family()].SetBaseline(e.Version(), e.Metadata().ScoreHistogram)
	r.metrics.ModelAgeSet(e.Family(), e.ModelAge(time.Now()).Seconds())
	return prev, nil
}

// Install builds an engine from a and swaps it in.
func (r *Registry) Install(a *artifact.Artifact) (*Engine, error) {
	e, err := NewEngine(a)
	if err != nil {
		return nil, err
	}
	if _, err := r.Swap(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadFile loads the artifact at path and swaps it in.
func (r *Registry) LoadFile(path string) (*Engine, error) {
	a, err := artifact.Load(path)
	if err != nil {
		return nil, err
	}
	return r.Install(a)
}

// Reload fetches the active artifact of family from src. The current
// engine stays in place when loading fails.
func (r *Registry) Reload(ctx context.Context, src Source, family string) (*Engine, error) {
	a, err := src.Active(ctx, family)
	if err == nil && a.Family != family {
		err = fmt.Errorf("source returned a %s artifact for %s", a.Family, family)
	}
	if err == nil {
		var e *Engine
		if e, err = r.Install(a); err == nil {
			r.metrics.ReloadsInc(family, true)
			log.Info().Str("family", family).Str("version", e.Version()).Msg("Model engine loaded")
			return e, nil
		}
	}
	r.metrics.ReloadsInc(family, false)
	log.Error().Err(err).Str("family", family).Msg("Model reload failed, keeping current engine")
	return nil, err
}

// ModelStatus summarises one family for health and listing endpoints.
type ModelStatus struct {
	Family    string             `json:"family"`
	Loaded    bool               `json:"loaded"`
	Version   string             `json:"version,omitempty"`
	TrainedAt *time.Time         `json:"trained_at,omitempty"`
	LoadedAt  *time.Time         `json:"loaded_at,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	Metrics   map[string]float64 `json:"test_metrics,omitempty"`
}

// Status lists every family, loaded or not, sorted by name.
func (r *Registry) Status() []ModelStatus {
	families := make([]string, 0, len(r.engines))
	for f := range r.engines {
		families = append(families, f)
	}
	sort.Strings(families)

	out := make([]ModelStatus, 0, len(families))
	for _, f := range families {
		st := ModelStatus{Family: f}
		if e := r.engines[f].Load(); e != nil {
			md := e.Metadata()
			loaded := e.LoadedAt()
			st.Loaded = true
			st.Version = e.Version()
			st.LoadedAt = &loaded
			if !md.TrainedAt.IsZero() {
				st.TrainedAt = &md.TrainedAt
			}
			st.Weights = e.Members()
			st.Metrics = md.Test
		}
		out = append(out, st)
	}
	return out
}

// Families returns the families the registry serves.
func (r *Registry) Families() []string {
	return []string{common.FamilyFraud, common.FamilyCredit}
}

// RefreshAges updates the model age gauge of every loaded engine.
func (r *Registry) RefreshAges(now time.Time) {
	for f, p := range r.engines {
		if e := p.Load(); e != nil {
			r.metrics.ModelAgeSet(f, e.ModelAge(now).Seconds())
		}
	}
}

// observe feeds a served probability to the family's drift window.
func (r *Registry) observe(family string, p float64) {
	if d, ok := r.drift[family]; ok {
		d.Observe(p)
	}
}

// Drift compares the recent scores of family with its training baseline.
func (r *Registry) Drift(family string, now time.Time) (ml.DriftReport, error) {
	d, ok := r.drift[family]
	if !ok {
		return ml.DriftReport{}, fmt.Errorf("unknown model family %q", family)
	}
	return d.Report(now), nil
}

// CheckDrift evaluates every family and publishes the PSI gauge.
func (r *Registry) CheckDrift(now time.Time) {
	for f, d := range r.drift {
		rep := d.Report(now)
		if rep.Baseline != nil {
			r.metrics.DriftSet(f, rep.PSI)
		}
	}
}
