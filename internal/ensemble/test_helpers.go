package ensemble

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	Predictions map[string]int
	Failures    map[string]int
	Latencies   int
	Scores      []float64
	Tiers       map[string]int
	ModelAge    map[string]float64
	Reloads     int
	ReloadFails int
	Drift       map[string]float64
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Predictions: map[string]int{},
		Failures:    map[string]int{},
		Tiers:       map[string]int{},
		ModelAge:    map[string]float64{},
		Drift:       map[string]float64{},
	}
}

func (m *MockMetrics) PredictionsInc(family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Predictions[family]++
}

func (m *MockMetrics) FailuresInc(family, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[family+"/"+kind]++
}

func (m *MockMetrics) LatencyObserve(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies++
}

func (m *MockMetrics) ScoreObserve(_ string, p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scores = append(m.Scores, p)
}

func (m *MockMetrics) TierInc(family, tier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tiers[family+"/"+tier]++
}

func (m *MockMetrics) ModelAgeSet(family string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelAge[family] = v
}

func (m *MockMetrics) DriftSet(family string, psi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Drift[family] = psi
}

func (m *MockMetrics) ReloadsInc(_ string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.Reloads++
	} else {
		m.ReloadFails++
	}
}

// Failure returns the failure count for family and kind.
func (m *MockMetrics) Failure(family, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Failures[family+"/"+kind]
}

// Prediction returns the prediction count for family.
func (m *MockMetrics) Prediction(family string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Predictions[family]
}
