package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/features"
)

func TestFraudBands_Classify(t *testing.T) {
	bands := DefaultFraudBands()
	require.NoError(t, bands.Validate())

	tests := []struct {
		p      float64
		tier   FraudTier
		action Action
	}{
		{0, TierLow, ActionApprove},
		{0.1, TierLow, ActionApprove},
		{0.3999, TierLow, ActionApprove},
		{0.4, TierMedium, ActionVerify},
		{0.5999, TierMedium, ActionVerify},
		{0.6, TierHigh, ActionReview},
		{0.7999, TierHigh, ActionReview},
		{0.8, TierCritical, ActionBlock},
		{1, TierCritical, ActionBlock},
	}
	for _, tt := range tests {
		got := bands.Classify(tt.p)
		if got.Tier != tt.tier || got.Action != tt.action {
			t.Errorf("Classify(%v) = %s/%s, want %s/%s", tt.p, got.Tier, got.Action, tt.tier, tt.action)
		}
	}
	assert.Equal(t, "Extremely high fraud probability. Transaction blocked for security.", bands.Classify(0.9).Explanation)
	assert.Less(t, TierHigh.Rank(), TierCritical.Rank())
	assert.Equal(t, 0, TierUnknown.Rank())
}

func TestFraudBands_Validate(t *testing.T) {
	tests := []struct {
		name  string
		bands FraudBands
	}{
		{"empty", FraudBands{}},
		{"not starting at zero", FraudBands{{TierLow, 0.1, ActionApprove, ""}}},
		{"overlapping", FraudBands{{TierLow, 0, ActionApprove, ""}, {TierHigh, 0, ActionReview, ""}}},
		{"descending", FraudBands{{TierLow, 0, ActionApprove, ""}, {TierHigh, 0.6, ActionReview, ""}, {TierMedium, 0.4, ActionVerify, ""}}},
		{"above one", FraudBands{{TierLow, 0, ActionApprove, ""}, {TierHigh, 1.5, ActionReview, ""}}},
		{"duplicate tier", FraudBands{{TierLow, 0, ActionApprove, ""}, {TierLow, 0.5, ActionReview, ""}}},
		{"missing action", FraudBands{{TierLow, 0, "", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.bands.Validate())
		})
	}
}

func TestCreditScore(t *testing.T) {
	assert.Equal(t, 850, CreditScore(0))
	assert.Equal(t, 300, CreditScore(1))
	assert.Equal(t, 619, CreditScore(0.42))
	assert.Equal(t, 850, CreditScore(-0.5))
	assert.Equal(t, 300, CreditScore(2))
	assert.Equal(t, 575, CreditScore(0.5))
}

func TestCreditBands_Classify(t *testing.T) {
	bands := DefaultCreditBands()
	require.NoError(t, bands.Validate())

	tests := []struct {
		score int
		tier  CreditTier
		loan  float64
		rate  float64
	}{
		{300, TierDeclined, 0, 0},
		{549, TierDeclined, 0, 0},
		{550, TierPoor, 500, 20},
		{600, TierFair, 2000, 16},
		{619, TierFair, 2000, 16},
		{650, TierGood, 5000, 12},
		{699, TierGood, 5000, 12},
		{700, TierExcellent, 10000, 8},
		{850, TierExcellent, 10000, 8},
	}
	for _, tt := range tests {
		got := bands.Classify(tt.score)
		assert.Equal(t, tt.tier, got.Tier, "score %d", tt.score)
		assert.Equal(t, tt.loan, got.MaxLoan, "score %d", tt.score)
		assert.Equal(t, tt.rate, got.InterestRate, "score %d", tt.score)
	}
}

func TestCreditBands_Validate(t *testing.T) {
	bad := DefaultCreditBands()
	bad[2].MinScore = 540
	assert.Error(t, bad.Validate())

	bad = DefaultCreditBands()
	bad[1].InterestRate = 120
	assert.Error(t, bad.Validate())

	bad = DefaultCreditBands()
	bad[0].MinScore = 400
	assert.Error(t, bad.Validate())

	assert.Error(t, CreditBands{}.Validate())
}

func TestLoanDecision(t *testing.T) {
	bands := DefaultCreditBands()
	excellent := bands.Classify(720)
	fair := bands.Classify(610)
	poor := bands.Classify(560)

	assert.True(t, excellent.Eligible(10000))
	assert.False(t, excellent.Eligible(10000.01))
	assert.False(t, bands.Classify(400).Eligible(1))

	assert.Equal(t, "APPROVE: User qualifies for NAD 10000.00 at 8.0% APR", LoanDecision(excellent, true))
	assert.Equal(t, "CONDITIONAL_APPROVE: Consider approval with additional verification", LoanDecision(fair, true))
	assert.Equal(t, "DECLINE: Credit tier POOR does not meet requirements for requested amount", LoanDecision(poor, true))
	assert.Equal(t, "DECLINE: Credit tier EXCELLENT does not meet requirements for requested amount", LoanDecision(excellent, false))
}

func TestRiskFactors(t *testing.T) {
	clean := features.CreditRequest{
		SuccessfulTransactions: 100,
		FailedTransactions:     2,
		AccountAgeDays:         400,
		AvgDailyBalance:        5000,
	}
	assert.Empty(t, RiskFactors(clean))

	risky := features.CreditRequest{
		SuccessfulTransactions: 10,
		FailedTransactions:     5,
		FraudIncidents:         2,
		Chargebacks:            1,
		DisputedTransactions:   3,
		AccountAgeDays:         30,
		AvgDailyBalance:        200,
	}
	assert.Equal(t, []string{
		"High transaction failure rate",
		"2 fraud incidents detected",
		"1 chargebacks on record",
		"3 disputed transactions",
		"Account age less than 90 days",
		"Low average daily balance",
	}, RiskFactors(risky))
}
