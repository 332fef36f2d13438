package metrics

import (
	"strconv"
	"time"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// MetricsWrapper adapts Metrics to the narrow interfaces the scorers, the
// registry, the trainer and the API depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(family string) {
	w.m.Predictions.WithLabelValues(family).Inc()
}

func (w *MetricsWrapper) FailuresInc(family, kind string) {
	w.m.Failures.WithLabelValues(family, kind).Inc()
}

func (w *MetricsWrapper) LatencyObserve(family string, seconds float64) {
	w.m.Latency.WithLabelValues(family).Observe(seconds)
}

func (w *MetricsWrapper) ScoreObserve(family string, probability float64) {
	w.m.Probabilities.WithLabelValues(family).Observe(probability)
}

func (w *MetricsWrapper) TierInc(family, tier string) {
	w.m.Tiers.WithLabelValues(family, tier).Inc()
}

func (w *MetricsWrapper) ModelAgeSet(family string, seconds float64) {
	w.m.ModelAge.WithLabelValues(family).Set(seconds)
}

func (w *MetricsWrapper) ReloadsInc(family string, ok bool) {
	w.m.Reloads.WithLabelValues(family, result(ok)).Inc()
}

func (w *MetricsWrapper) DriftSet(family string, psi float64) {
	w.m.ScoreDrift.WithLabelValues(family).Set(psi)
}

// TrainingObserve records one finished training run.
func (w *MetricsWrapper) TrainingObserve(family string, d time.Duration, err error) {
	w.m.TrainingRuns.WithLabelValues(family, result(err == nil)).Inc()
	if err == nil {
		w.m.TrainingDuration.WithLabelValues(family).Observe(d.Seconds())
	}
}

// RequestInc counts one API response.
func (w *MetricsWrapper) RequestInc(route string, code int) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// StreamClientsAdd moves the connected streaming client gauge by delta.
func (w *MetricsWrapper) StreamClientsAdd(delta float64) {
	w.m.StreamClients.Add(delta)
}

func result(ok bool) string {
	if ok {
		return resultOK
	}
	return resultError
}
