package features

import "math"

// CreditFeatureCount is the length of an encoded credit request.
const CreditFeatureCount = 28

// CreditFeatureNames lists the merchant credit slots in encoding order.
var CreditFeatureNames = []string{
	"monthly_avg_revenue",
	"monthly_transaction_count",
	"revenue_volatility",
	"revenue_trend_3month",
	"weekend_weekday_ratio",
	"peak_transaction_consistency",
	"business_age_months",
	"merchant_category_risk",
	"avg_transaction_amount",
	"unique_customer_count_monthly",
	"customer_retention_rate",
	"transaction_decline_rate",
	"has_social_media_presence",
	"business_registration_verified",
	"location_stability_score",
	"operating_hours_consistency",
	"seasonal_pattern_strength",
	"cross_border_ratio",
	"has_previous_loans",
	"previous_loan_repayment_rate",
	"max_loan_handled",
	"default_history_flag",
	"debt_to_revenue_ratio",
	"current_outstanding_loans",
	"revenue_growth_rate",
	"transaction_growth_rate",
	"merchant_tenure_score",
	"payment_consistency_score",
}

// Neutral values for merchant attributes the request does not carry.
const (
	DefaultWeekendRatio        = 0.3
	DefaultPeakConsistency     = 0.5
	DefaultCategoryRisk        = 0.5
	DefaultUniqueCustomers     = 10.0
	DefaultRetentionRate       = 0.5
	DefaultDeclineRate         = 0.05
	DefaultLocationStability   = 0.8
	DefaultHoursConsistency    = 0.7
	DefaultSeasonality         = 0.3
	DefaultRepaymentRate       = 1.0
	DefaultPaymentConsistency  = 0.8
	historyMonths              = 3.0 // request volumes cover roughly 90 days
	revenueVolatilityFraction  = 0.2
	tenureSaturationMonths     = 24.0
	daysPerMonth               = 30
)

// CreditRequest is the account history of a merchant asking for a loan.
// Counts and amounts must be non-negative.
type CreditRequest struct {
	UserID                 string           `json:"user_id"`
	MerchantID             string           `json:"merchant_id,omitempty"`
	LoanAmountRequested    float64          `json:"loan_amount_requested"`
	TotalTransactionVolume float64          `json:"total_transaction_volume"`
	AvgTransactionAmount   float64          `json:"avg_transaction_amount"`
	TransactionCount       int              `json:"transaction_count"`
	AccountAgeDays         int              `json:"account_age_days"`
	SuccessfulTransactions int              `json:"successful_transactions"`
	FailedTransactions     int              `json:"failed_transactions"`
	AvgDailyBalance        float64          `json:"avg_daily_balance"`
	FraudIncidents         int              `json:"fraud_incidents"`
	DisputedTransactions   int              `json:"disputed_transactions"`
	Chargebacks            int              `json:"chargebacks"`
	Profile                *MerchantProfile `json:"profile,omitempty"`
}

// MerchantProfile holds optional business attributes gathered outside the
// payment history. Nil fields fall back to neutral defaults.
type MerchantProfile struct {
	RevenueTrend         *float64 `json:"revenue_trend,omitempty"`
	WeekendRatio         *float64 `json:"weekend_ratio,omitempty"`
	ConsistencyScore     *float64 `json:"consistency_score,omitempty"`
	CategoryRisk         *float64 `json:"category_risk,omitempty"`
	UniqueCustomers      *float64 `json:"unique_customers,omitempty"`
	RetentionRate        *float64 `json:"retention_rate,omitempty"`
	HasSocialMedia       bool     `json:"has_social_media,omitempty"`
	RegistrationVerified bool     `json:"registration_verified,omitempty"`
	LocationStability    *float64 `json:"location_stability,omitempty"`
	HoursConsistency     *float64 `json:"hours_consistency,omitempty"`
	Seasonality          *float64 `json:"seasonality,omitempty"`
	CrossBorderRatio     *float64 `json:"cross_border_ratio,omitempty"`
	PreviousLoans        int      `json:"previous_loans,omitempty"`
	RepaymentRate        *float64 `json:"repayment_rate,omitempty"`
	MaxLoanHandled       *float64 `json:"max_loan,omitempty"`
	HasDefaulted         bool     `json:"has_defaulted,omitempty"`
	DebtToRevenue        *float64 `json:"debt_to_revenue,omitempty"`
	OutstandingLoans     *float64 `json:"outstanding_loans,omitempty"`
	RevenueGrowth        *float64 `json:"revenue_growth,omitempty"`
	TransactionGrowth    *float64 `json:"transaction_growth,omitempty"`
}

// Validate checks the loan request itself on top of the history fields.
func (r CreditRequest) Validate() error {
	if math.IsNaN(r.LoanAmountRequested) || math.IsInf(r.LoanAmountRequested, 0) {
		return invalid("loan_amount_requested", "is not a finite number")
	}
	if r.LoanAmountRequested <= 0 {
		return invalid("loan_amount_requested", "must be positive")
	}
	return checkHistory(r)
}

func checkHistory(r CreditRequest) error {
	amounts := []struct {
		name string
		v    float64
	}{
		{"total_transaction_volume", r.TotalTransactionVolume},
		{"avg_transaction_amount", r.AvgTransactionAmount},
		{"avg_daily_balance", r.AvgDailyBalance},
	}
	for _, a := range amounts {
		if math.IsNaN(a.v) || math.IsInf(a.v, 0) {
			return invalid(a.name, "is not a finite number")
		}
		if a.v < 0 {
			return invalid(a.name, "must be >= 0")
		}
	}

	counts := []struct {
		name string
		v    int
	}{
		{"transaction_count", r.TransactionCount},
		{"account_age_days", r.AccountAgeDays},
		{"successful_transactions", r.SuccessfulTransactions},
		{"failed_transactions", r.FailedTransactions},
		{"fraud_incidents", r.FraudIncidents},
		{"disputed_transactions", r.DisputedTransactions},
		{"chargebacks", r.Chargebacks},
	}
	for _, c := range counts {
		if c.v < 0 {
			return invalid(c.name, "must be >= 0")
		}
	}
	return nil
}

// EncodeCredit turns a credit request into its 28-slot credit vector.
func EncodeCredit(r CreditRequest) (FeatureVector, error) {
	if err := checkHistory(r); err != nil {
		return nil, err
	}
	p := r.Profile
	if p == nil {
		p = &MerchantProfile{}
	}

	monthlyRevenue := r.TotalTransactionVolume / historyMonths
	monthlyCount := float64(r.TransactionCount) / historyMonths
	ageMonths := float64(r.AccountAgeDays) / daysPerMonth

	declineRate := DefaultDeclineRate
	paymentConsistency := DefaultPaymentConsistency
	if r.TransactionCount > 0 {
		declineRate = float64(r.FailedTransactions) / float64(r.TransactionCount)
		paymentConsistency = math.Min(1, float64(r.SuccessfulTransactions)/float64(r.TransactionCount))
	}

	v := make(FeatureVector, CreditFeatureCount)
	v[0] = monthlyRevenue
	v[1] = monthlyCount
	v[2] = monthlyRevenue * revenueVolatilityFraction
	v[3] = floatOr(p.RevenueTrend, 0)
	v[4] = floatOr(p.WeekendRatio, DefaultWeekendRatio)
	v[5] = floatOr(p.ConsistencyScore, DefaultPeakConsistency)
	v[6] = ageMonths
	v[7] = floatOr(p.CategoryRisk, DefaultCategoryRisk)
	v[8] = r.AvgTransactionAmount
	v[9] = floatOr(p.UniqueCustomers, DefaultUniqueCustomers)
	v[10] = floatOr(p.RetentionRate, DefaultRetentionRate)
	v[11] = declineRate
	v[12] = boolf(p.HasSocialMedia)
	v[13] = boolf(p.RegistrationVerified)
	v[14] = floatOr(p.LocationStability, DefaultLocationStability)
	v[15] = floatOr(p.HoursConsistency, DefaultHoursConsistency)
	v[16] = floatOr(p.Seasonality, DefaultSeasonality)
	v[17] = floatOr(p.CrossBorderRatio, 0)
	v[18] = boolf(p.PreviousLoans > 0)
	v[19] = floatOr(p.RepaymentRate, DefaultRepaymentRate)
	v[20] = floatOr(p.MaxLoanHandled, 0)
	v[21] = boolf(p.HasDefaulted || r.Chargebacks > 0)
	v[22] = floatOr(p.DebtToRevenue, 0)
	v[23] = floatOr(p.OutstandingLoans, 0)
	v[24] = floatOr(p.RevenueGrowth, 0)
	v[25] = floatOr(p.TransactionGrowth, 0)
	v[26] = math.Min(ageMonths/tenureSaturationMonths, 1)
	v[27] = paymentConsistency
	return v, nil
}
