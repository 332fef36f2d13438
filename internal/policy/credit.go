package policy

import (
	"fmt"
	"math"

	"risk-engine/internal/features"
)

// Credit score scale.
const (
	MinCreditScore = 300
	MaxCreditScore = 850
	creditSpan     = MaxCreditScore - MinCreditScore
)

// CreditTier is a credit band.
type CreditTier string

const (
	TierExcellent CreditTier = "EXCELLENT"
	TierGood      CreditTier = "GOOD"
	TierFair      CreditTier = "FAIR"
	TierPoor      CreditTier = "POOR"
	TierDeclined  CreditTier = "DECLINED"
)

// CreditBand binds a tier to its inclusive minimum score and loan terms.
type CreditBand struct {
	Tier           CreditTier `json:"tier" yaml:"tier"`
	MinScore       int        `json:"min_score" yaml:"minScore"`
	MaxLoan        float64    `json:"max_loan" yaml:"maxLoan"`
	InterestRate   float64    `json:"interest_rate" yaml:"interestRate"`
	Recommendation string     `json:"recommendation" yaml:"recommendation"`
}

// CreditBands is ordered by ascending MinScore.
type CreditBands []CreditBand

func DefaultCreditBands() CreditBands {
	return CreditBands{
		{TierDeclined, MinCreditScore, 0, 0, "Not approved at this time. Build transaction history and reapply."},
		{TierPoor, 550, 500, 20, "Approved for minimum loan only"},
		{TierFair, 600, 2000, 16, "Approved for starter loan"},
		{TierGood, 650, 5000, 12, "Approved with standard terms"},
		{TierExcellent, 700, 10000, 8, "Approved for maximum loan amount with best rates"},
	}
}

func (b CreditBands) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("credit bands: empty table")
	}
	if b[0].MinScore > MinCreditScore {
		return fmt.Errorf("credit bands: first band must cover %d, starts at %d", MinCreditScore, b[0].MinScore)
	}
	seen := make(map[CreditTier]bool, len(b))
	for i, band := range b {
		if band.Tier == "" {
			return fmt.Errorf("credit bands: band %d has no tier", i)
		}
		if seen[band.Tier] {
			return fmt.Errorf("credit bands: tier %s appears twice", band.Tier)
		}
		seen[band.Tier] = true
		if band.MinScore > MaxCreditScore {
			return fmt.Errorf("credit bands: %s minimum %d above %d", band.Tier, band.MinScore, MaxCreditScore)
		}
		if i > 0 && band.MinScore <= b[i-1].MinScore {
			return fmt.Errorf("credit bands: %s minimum %d does not exceed %d", band.Tier, band.MinScore, b[i-1].MinScore)
		}
		if band.MaxLoan < 0 || math.IsNaN(band.MaxLoan) {
			return fmt.Errorf("credit bands: %s max loan %v is negative", band.Tier, band.MaxLoan)
		}
		if band.InterestRate < 0 || band.InterestRate > 100 || math.IsNaN(band.InterestRate) {
			return fmt.Errorf("credit bands: %s interest rate %v outside [0,100]", band.Tier, band.InterestRate)
		}
	}
	return nil
}

// Classify returns the highest band whose minimum score is reached.
func (b CreditBands) Classify(score int) CreditBand {
	for i := len(b) - 1; i > 0; i-- {
		if score >= b[i].MinScore {
			return b[i]
		}
	}
	return b[0]
}

// CreditScore converts a default probability to the 300-850 scale. The
// result is truncated towards zero and clamped.
func CreditScore(p float64) int {
	if math.IsNaN(p) {
		p = 1
	}
	p = math.Max(0, math.Min(1, p))
	// the epsilon absorbs representation error such as 550*(1-0.42)
	s := int(math.Floor(MinCreditScore + creditSpan*(1-p) + 1e-9))
	return max(MinCreditScore, min(MaxCreditScore, s))
}

// Eligible reports whether the requested amount fits the band.
func (c CreditBand) Eligible(requested float64) bool {
	return requested > 0 && requested <= c.MaxLoan
}

// LoanDecision renders the lending recommendation for a band and request.
func LoanDecision(band CreditBand, eligible bool) string {
	switch {
	case eligible && (band.Tier == TierExcellent || band.Tier == TierGood):
		return fmt.Sprintf("APPROVE: User qualifies for NAD %.2f at %.1f%% APR", band.MaxLoan, band.InterestRate)
	case eligible && band.Tier == TierFair:
		return "CONDITIONAL_APPROVE: Consider approval with additional verification"
	}
	return fmt.Sprintf("DECLINE: Credit tier %s does not meet requirements for requested amount", band.Tier)
}

// Thresholds behind the credit risk factors.
const (
	failureRateLimit    = 0.1
	youngAccountDays    = 90
	lowBalanceThreshold = 1000
)

// RiskFactors lists the account-history concerns behind a credit decision,
// most severe first.
func RiskFactors(r features.CreditRequest) []string {
	var out []string
	if float64(r.FailedTransactions) > failureRateLimit*float64(r.SuccessfulTransactions) {
		out = append(out, "High transaction failure rate")
	}
	if r.FraudIncidents > 0 {
		out = append(out, fmt.Sprintf("%d fraud incidents detected", r.FraudIncidents))
	}
	if r.Chargebacks > 0 {
		out = append(out, fmt.Sprintf("%d chargebacks on record", r.Chargebacks))
	}
	if r.DisputedTransactions > 0 {
		out = append(out, fmt.Sprintf("%d disputed transactions", r.DisputedTransactions))
	}
	if r.AccountAgeDays < youngAccountDays {
		out = append(out, "Account age less than 90 days")
	}
	if r.AvgDailyBalance < lowBalanceThreshold {
		out = append(out, "Low average daily balance")
	}
	return out
}
