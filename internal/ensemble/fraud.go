package ensemble

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"risk-engine/internal/common"
	"risk-engine/internal/features"
	"risk-engine/internal/policy"
)

// FraudAssessment is the fraud scoring response.
type FraudAssessment struct {
	TransactionID     string             `json:"transaction_id"`
	FraudProbability  float64            `json:"fraud_probability"`
	IsFraud           bool               `json:"is_fraud"`
	RiskLevel         policy.FraudTier   `json:"risk_level"`
	Explanation       string             `json:"explanation"`
	ModelScores       map[string]float64 `json:"model_scores"`
	RecommendedAction policy.Action      `json:"recommended_action"`
	Confidence        float64            `json:"confidence"`
	TopFactors        []Contribution     `json:"top_factors,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
}

// FraudScorer scores transactions against the registry's fraud engine.
type FraudScorer struct {
	reg      *Registry
	velocity *features.VelocityTracker
	metrics  MetricsInterface
	topN     int
}

// FraudOption configures a FraudScorer.
type FraudOption func(*FraudScorer)

// ErrVelocityDisabled is returned by Record when no tracker is configured.
var ErrVelocityDisabled = errors.New("velocity tracking is not enabled")

// WithVelocity fills missing velocity fields from tracked user history.
// Scoring only reads the history; transactions enter it through Record.
func WithVelocity(v *features.VelocityTracker) FraudOption {
	return func(s *FraudScorer) { s.velocity = v }
}

// WithTopFactors sets how many contributions are reported.
func WithTopFactors(n int) FraudOption {
	return func(s *FraudScorer) {
		if n > 0 {
			s.topN = n
		}
	}
}

func NewFraudScorer(reg *Registry, metrics MetricsInterface, opts ...FraudOption) *FraudScorer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	s := &FraudScorer{reg: reg, metrics: metrics, topN: DefaultTopFactors}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score validates, encodes and scores t. Invalid input and a missing
// engine are reported through the result's Outcome, never as a default
// score.
func (s *FraudScorer) Score(t features.Transaction) ScoringResult {
	start := time.Now()
	defer func() {
		s.metrics.LatencyObserve(common.FamilyFraud, time.Since(start).Seconds())
	}()

	e, err := s.reg.Get(common.FamilyFraud)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyFraud, OutcomeModelUnavailable.String())
		res := unavailable(err)
		res.Fraud = &FraudAssessment{
			TransactionID:     t.TransactionID,
			RiskLevel:         policy.TierUnknown,
			RecommendedAction: policy.ActionReview,
			Explanation:       "Fraud model unavailable. Manual review required.",
		}
		return res
	}

	raw, err := s.encode(t)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyFraud, OutcomeInvalidInput.String())
		log.Debug().Err(err).Str("transaction_id", t.TransactionID).Msg("Rejected transaction")
		res := invalidInput(err)
		res.Fraud = &FraudAssessment{
			TransactionID:     t.TransactionID,
			RiskLevel:         policy.TierError,
			RecommendedAction: policy.ActionReview,
			Explanation:       "Invalid transaction: " + err.Error(),
		}
		return res
	}

	r, scaled, err := e.Predict(raw)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyFraud, OutcomeInvalidInput.String())
		return invalidInput(err)
	}

	band := e.Artifact().FraudBands.Classify(r.Probability)
	factors := e.Explain(scaled, s.topN)
	s.metrics.PredictionsInc(common.FamilyFraud)
	s.metrics.ScoreObserve(common.FamilyFraud, r.Probability)
	s.reg.observe(common.FamilyFraud, r.Probability)
	s.metrics.TierInc(common.FamilyFraud, string(band.Tier))

	return ScoringResult{Outcome: OutcomeOK, Fraud: &FraudAssessment{
		TransactionID:     t.TransactionID,
		FraudProbability:  r.Probability,
		IsFraud:           r.IsPositive,
		RiskLevel:         band.Tier,
		Explanation:       FraudExplanation(band, r.Scores, factors),
		ModelScores:       r.Scores,
		RecommendedAction: band.Action,
		Confidence:        r.Confidence,
		TopFactors:        factors,
		ModelVersion:      e.Version(),
	}}
}

// Explain returns the top n linear contributions for t.
func (s *FraudScorer) Explain(t features.Transaction, n int) ([]Contribution, error) {
	e, err := s.reg.Get(common.FamilyFraud)
	if err != nil {
		return nil, err
	}
	raw, err := s.encode(t)
	if err != nil {
		return nil, err
	}
	_, scaled, err := e.Predict(raw)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = s.topN
	}
	return e.Explain(scaled, n), nil
}

// Record adds a completed transaction to the velocity history. It reports
// false when the transaction id was already recorded.
func (s *FraudScorer) Record(t features.Transaction) (bool, error) {
	if s.velocity == nil {
		return false, ErrVelocityDisabled
	}
	if err := t.Validate(); err != nil {
		return false, err
	}
	if _, err := features.EncodeTransaction(t); err != nil {
		return false, err
	}
	if t.UserID == "" {
		return false, &features.InvalidRecordError{Field: "user_id", Reason: "required to track velocity"}
	}
	return s.velocity.Record(t), nil
}

// encode validates t and fills its empty velocity fields from history.
func (s *FraudScorer) encode(t features.Transaction) (features.FeatureVector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if s.velocity != nil {
		t = s.velocity.Enrich(t)
	}
	return features.EncodeTransaction(t)
}
