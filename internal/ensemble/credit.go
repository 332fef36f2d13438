package ensemble

import (
	"time"

	"risk-engine/internal/common"
	"risk-engine/internal/features"
	"risk-engine/internal/policy"
)

// CreditAssessment is the credit scoring response.
type CreditAssessment struct {
	UserID             string             `json:"user_id"`
	CreditScore        int                `json:"credit_score"`
	DefaultProbability float64            `json:"default_probability"`
	Tier               policy.CreditTier  `json:"tier"`
	MaxLoanAmount      float64            `json:"max_loan_amount"`
	InterestRate       float64            `json:"interest_rate"`
	IsEligible         bool               `json:"is_eligible"`
	RiskFactors        []string           `json:"risk_factors"`
	Recommendation     string             `json:"recommendation"`
	TierSummary        string             `json:"tier_summary"`
	Confidence         float64            `json:"confidence"`
	ModelScores        map[string]float64 `json:"model_scores"`
	TopFactors         []Contribution     `json:"top_factors,omitempty"`
	ModelVersion       string             `json:"model_version,omitempty"`
}

// CreditScorer assesses loan requests against the credit engine.
type CreditScorer struct {
	reg     *Registry
	metrics MetricsInterface
	topN    int
}

// CreditOption configures a CreditScorer.
type CreditOption func(*CreditScorer)

// WithCreditFactors sets how many contributions an assessment reports.
func WithCreditFactors(n int) CreditOption {
	return func(s *CreditScorer) {
		if n > 0 {
			s.topN = n
		}
	}
}

func NewCreditScorer(reg *Registry, metrics MetricsInterface, opts ...CreditOption) *CreditScorer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	s := &CreditScorer{reg: reg, metrics: metrics, topN: DefaultTopFactors}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess scores r and derives tier, loan terms, eligibility and risk
// factors.
func (s *CreditScorer) Assess(r features.CreditRequest) ScoringResult {
	start := time.Now()
	defer func() {
		s.metrics.LatencyObserve(common.FamilyCredit, time.Since(start).Seconds())
	}()

	e, err := s.reg.Get(common.FamilyCredit)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyCredit, OutcomeModelUnavailable.String())
		return unavailable(err)
	}
	raw, err := encodeCredit(r)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyCredit, OutcomeInvalidInput.String())
		return invalidInput(err)
	}
	res, scaled, err := e.Predict(raw)
	if err != nil {
		s.metrics.FailuresInc(common.FamilyCredit, OutcomeInvalidInput.String())
		return invalidInput(err)
	}

	score := policy.CreditScore(res.Probability)
	band := e.Artifact().CreditBands.Classify(score)
	eligible := band.Eligible(r.LoanAmountRequested)
	factors := policy.RiskFactors(r)
	if factors == nil {
		factors = []string{}
	}

	s.metrics.PredictionsInc(common.FamilyCredit)
	s.metrics.ScoreObserve(common.FamilyCredit, res.Probability)
	s.reg.observe(common.FamilyCredit, res.Probability)
	s.metrics.TierInc(common.FamilyCredit, string(band.Tier))

	return ScoringResult{Outcome: OutcomeOK, Credit: &CreditAssessment{
		UserID:             r.UserID,
		CreditScore:        score,
		DefaultProbability: res.Probability,
		Tier:               band.Tier,
		MaxLoanAmount:      band.MaxLoan,
		InterestRate:       band.InterestRate,
		IsEligible:         eligible,
		RiskFactors:        factors,
		Recommendation:     policy.LoanDecision(band, eligible),
		TierSummary:        band.Recommendation,
		Confidence:         res.Confidence,
		ModelScores:        res.Scores,
		TopFactors:         e.Explain(scaled, s.topN),
		ModelVersion:       e.Version(),
	}}
}

// Rules returns the credit decision tree as text rules.
func (s *CreditScorer) Rules(maxDepth int) (string, error) {
	e, err := s.reg.Get(common.FamilyCredit)
	if err != nil {
		return "", err
	}
	return e.Rules(maxDepth)
}

// Explain returns the top n linear contributions to r's default
// probability. n <= 0 uses the scorer's default.
func (s *CreditScorer) Explain(r features.CreditRequest, n int) ([]Contribution, error) {
	e, err := s.reg.Get(common.FamilyCredit)
	if err != nil {
		return nil, err
	}
	raw, err := encodeCredit(r)
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

func encodeCredit(r features.CreditRequest) (features.FeatureVector, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return features.EncodeCredit(r)
}
