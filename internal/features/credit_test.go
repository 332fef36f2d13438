package features

import (
	"errors"
	"math"
	"testing"
)

func baseCreditRequest() CreditRequest {
	return CreditRequest{
		UserID:                 "merchant-7",
		LoanAmountRequested:    1500,
		TotalTransactionVolume: 90000,
		AvgTransactionAmount:   300,
		TransactionCount:       300,
		AccountAgeDays:         400,
		SuccessfulTransactions: 290,
		FailedTransactions:     10,
		AvgDailyBalance:        2500,
	}
}

func TestEncodeCredit(t *testing.T) {
	v, err := EncodeCredit(baseCreditRequest())
	if err != nil {
		t.Fatalf("EncodeCredit failed: %v", err)
	}
	if len(v) != CreditFeatureCount || len(CreditFeatureNames) != CreditFeatureCount {
		t.Fatalf("expected %d slots, got %d (names %d)", CreditFeatureCount, len(v), len(CreditFeatureNames))
	}

	want := map[string]float64{
		"monthly_avg_revenue":           30000,
		"monthly_transaction_count":     100,
		"revenue_volatility":            6000,
		"weekend_weekday_ratio":         DefaultWeekendRatio,
		"business_age_months":           400.0 / 30.0,
		"avg_transaction_amount":        300,
		"unique_customer_count_monthly": DefaultUniqueCustomers,
		"transaction_decline_rate":      10.0 / 300.0,
		"previous_loan_repayment_rate":  1,
		"default_history_flag":          0,
		"merchant_tenure_score":         400.0 / 30.0 / 24.0,
		"payment_consistency_score":     290.0 / 300.0,
	}
	for i, name := range CreditFeatureNames {
		if expected, ok := want[name]; ok && !approx(v[i], expected) {
			t.Errorf("%s: expected %v, got %v", name, expected, v[i])
		}
	}
}

func TestEncodeCredit_ProfileAndDefaults(t *testing.T) {
	req := baseCreditRequest()
	req.TransactionCount = 0
	req.AccountAgeDays = 1200
	req.Chargebacks = 2
	req.Profile = &MerchantProfile{PreviousLoans: 1, RepaymentRate: f64(0.6), RegistrationVerified: true}

	v, err := EncodeCredit(req)
	if err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		slot int
		want float64
	}{
		{11, DefaultDeclineRate},
		{27, DefaultPaymentConsistency},
		{26, 1},
		{21, 1},
		{18, 1},
		{19, 0.6},
		{13, 1},
	}
	for _, c := range checks {
		if !approx(v[c.slot], c.want) {
			t.Errorf("%s: expected %v, got %v", CreditFeatureNames[c.slot], c.want, v[c.slot])
		}
	}
}

func TestEncodeCredit_Invalid(t *testing.T) {
	req := baseCreditRequest()
	req.FailedTransactions = -1
	_, err := EncodeCredit(req)
	var ire *InvalidRecordError
	if !errors.As(err, &ire) || ire.Field != "failed_transactions" {
		t.Fatalf("expected InvalidRecordError on failed_transactions, got %v", err)
	}
}

func TestCreditRequest_Validate(t *testing.T) {
	req := baseCreditRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1), math.Inf(-1)} {
		req.LoanAmountRequested = amount
		var ire *InvalidRecordError
		if err := req.Validate(); !errors.As(err, &ire) || ire.Field != "loan_amount_requested" {
			t.Errorf("expected loan amount %v to be rejected, got %v", amount, err)
		}
	}
}

func TestEncodeCredit_PartialMonths(t *testing.T) {
	req := baseCreditRequest()
	req.AccountAgeDays = 59
	v, err := EncodeCredit(req)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(v[6], 59.0/30.0) {
		t.Errorf("expected business age %v months, got %v", 59.0/30.0, v[6])
	}
}
