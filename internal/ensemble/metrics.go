package ensemble

// MetricsInterface is the serving-side metrics sink. The metrics package
// provides the Prometheus implementation.
type MetricsInterface interface {
	PredictionsInc(family string)
	FailuresInc(family, kind string)
	LatencyObserve(family string, seconds float64)
	ScoreObserve(family string, probability float64)
	TierInc(family, tier string)
	ModelAgeSet(family string, seconds float64)
	ReloadsInc(family string, ok bool)
	DriftSet(family string, psi float64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) PredictionsInc(string) {}
func (NoopMetrics) FailuresInc(string, string) {}
func (NoopMetrics) LatencyObserve(string, float64) {}
func (NoopMetrics) ScoreObserve(string, float64) {}
func (NoopMetrics) TierInc(string, string) {}
func (NoopMetrics) ModelAgeSet(string, float64) {}
func (NoopMetrics) ReloadsInc(string, bool) {}
func (NoopMetrics) DriftSet(string, float64) {}
