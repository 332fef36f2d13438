package dataset

import (
	"fmt"
	"strconv"

	"risk-engine/internal/features"
)

// column maps one CSV column onto a record field. set is only called with
// non-empty cells; get returns "" for absent optional values.
type column[T any] struct {
	name string
	get  func(*T) string
	set  func(*T, string) error
}

const (
	fraudLabelColumn  = "is_fraud"
	creditLabelColumn = "defaulted"
)

var fraudColumns = []column[FraudRecord]{
	{"transaction_id", func(r *FraudRecord) string { return r.TransactionID }, func(r *FraudRecord, s string) error { r.TransactionID = s; return nil }},
	{"user_id", func(r *FraudRecord) string { return r.UserID }, func(r *FraudRecord, s string) error { r.UserID = s; return nil }},
	{"amount", func(r *FraudRecord) string { return fmtOptFloat(r.Amount) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.Amount) }},
	{"timestamp", func(r *FraudRecord) string { return r.Timestamp }, func(r *FraudRecord, s string) error { r.Timestamp = s; return nil }},
	{"merchant_name", func(r *FraudRecord) string { return r.MerchantName }, func(r *FraudRecord, s string) error { r.MerchantName = s; return nil }},
	{"merchant_mcc", func(r *FraudRecord) string { return fmtInt(r.MerchantMCC) }, func(r *FraudRecord, s string) error { return parseInt(s, &r.MerchantMCC) }},
	{"user_lat", func(r *FraudRecord) string { return fmtLat(r.UserLocation) }, func(r *FraudRecord, s string) error { return parseFloat(s, &geo(&r.UserLocation).Lat) }},
	{"user_lon", func(r *FraudRecord) string { return fmtLon(r.UserLocation) }, func(r *FraudRecord, s string) error { return parseFloat(s, &geo(&r.UserLocation).Lon) }},
	{"merchant_lat", func(r *FraudRecord) string { return fmtLat(r.MerchantLocation) }, func(r *FraudRecord, s string) error { return parseFloat(s, &geo(&r.MerchantLocation).Lat) }},
	{"merchant_lon", func(r *FraudRecord) string { return fmtLon(r.MerchantLocation) }, func(r *FraudRecord, s string) error { return parseFloat(s, &geo(&r.MerchantLocation).Lon) }},
	{"device_fingerprint", func(r *FraudRecord) string { return r.DeviceFingerprint }, func(r *FraudRecord, s string) error { r.DeviceFingerprint = s; return nil }},
	{"known_device_fingerprint", func(r *FraudRecord) string { return r.KnownDeviceFingerprint }, func(r *FraudRecord, s string) error { r.KnownDeviceFingerprint = s; return nil }},
	{"beneficiary_account_age_days", func(r *FraudRecord) string { return fmtOptFloat(r.BeneficiaryAgeDays) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.BeneficiaryAgeDays) }},
	{"user_avg_amount", func(r *FraudRecord) string { return fmtOptFloat(r.UserAvgAmount) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.UserAvgAmount) }},
	{"merchant_fraud_rate", func(r *FraudRecord) string { return fmtOptFloat(r.MerchantFraudRate) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.MerchantFraudRate) }},
	{"is_foreign", func(r *FraudRecord) string { return fmtOptBool(r.IsForeign) }, func(r *FraudRecord, s string) error { return parseOptBool(s, &r.IsForeign) }},
	{"card_present", func(r *FraudRecord) string { return fmtOptBool(r.CardPresent) }, func(r *FraudRecord, s string) error { return parseOptBool(s, &r.CardPresent) }},
	{"device_match", func(r *FraudRecord) string { return fmtOptBool(r.DeviceMatch) }, func(r *FraudRecord, s string) error { return parseOptBool(s, &r.DeviceMatch) }},
	{"transactions_last_hour", func(r *FraudRecord) string { return fmtOptFloat(r.TransactionsLastHour) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.TransactionsLastHour) }},
	{"transactions_last_day", func(r *FraudRecord) string { return fmtOptFloat(r.TransactionsLastDay) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.TransactionsLastDay) }},
	{"velocity_score", func(r *FraudRecord) string { return fmtOptFloat(r.VelocityScore) }, func(r *FraudRecord, s string) error { return parseOptFloat(s, &r.VelocityScore) }},
	{"kyc_level", func(r *FraudRecord) string { return fmtOptInt(r.KYCLevel) }, func(r *FraudRecord, s string) error { return parseOptInt(s, &r.KYCLevel) }},
	{"agent_type", func(r *FraudRecord) string { return agentField(r, func(a *features.AgentContext) string { return a.Type }) }, func(r *FraudRecord, s string) error { agent(r).Type = s; return nil }},
	{"agent_status", func(r *FraudRecord) string { return agentField(r, func(a *features.AgentContext) string { return a.Status }) }, func(r *FraudRecord, s string) error { agent(r).Status = s; return nil }},
	{"agent_liquidity", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return fmtFloat(a.LiquidityNormalized) })
	}, func(r *FraudRecord, s string) error { return parseFloat(s, &agent(r).LiquidityNormalized) }},
	{"agent_cash_on_hand", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return fmtFloat(a.CashOnHandNormalized) })
	}, func(r *FraudRecord, s string) error { return parseFloat(s, &agent(r).CashOnHandNormalized) }},
	{"agent_has_liquidity", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return strconv.FormatBool(a.HasSufficientLiquidity) })
	}, func(r *FraudRecord, s string) error { return parseBool(s, &agent(r).HasSufficientLiquidity) }},
	{"agent_transaction_type", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return a.TransactionType })
	}, func(r *FraudRecord, s string) error { agent(r).TransactionType = s; return nil }},
	{"agent_commission_rate", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return fmtFloat(a.CommissionRate) })
	}, func(r *FraudRecord, s string) error { return parseFloat(s, &agent(r).CommissionRate) }},
	{"agent_risk_score", func(r *FraudRecord) string {
		return agentField(r, func(a *features.AgentContext) string { return fmtOptFloat(a.RiskScore) })
	}, func(r *FraudRecord, s string) error { return parseOptFloat(s, &agent(r).RiskScore) }},
	{fraudLabelColumn, func(r *FraudRecord) string { return fmtInt(r.Label) }, func(r *FraudRecord, s string) error { return parseLabel(s, &r.Label) }},
}

var creditColumns = []column[CreditRecord]{
	{"user_id", func(r *CreditRecord) string { return r.UserID }, func(r *CreditRecord, s string) error { r.UserID = s; return nil }},
	{"merchant_id", func(r *CreditRecord) string { return r.MerchantID }, func(r *CreditRecord, s string) error { r.MerchantID = s; return nil }},
	{"loan_amount_requested", func(r *CreditRecord) string { return fmtFloat(r.LoanAmountRequested) }, func(r *CreditRecord, s string) error { return parseFloat(s, &r.LoanAmountRequested) }},
	{"total_transaction_volume", func(r *CreditRecord) string { return fmtFloat(r.TotalTransactionVolume) }, func(r *CreditRecord, s string) error { return parseFloat(s, &r.TotalTransactionVolume) }},
	{"avg_transaction_amount", func(r *CreditRecord) string { return fmtFloat(r.AvgTransactionAmount) }, func(r *CreditRecord, s string) error { return parseFloat(s, &r.AvgTransactionAmount) }},
	{"transaction_count", func(r *CreditRecord) string { return fmtInt(r.TransactionCount) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.TransactionCount) }},
	{"account_age_days", func(r *CreditRecord) string { return fmtInt(r.AccountAgeDays) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.AccountAgeDays) }},
	{"successful_transactions", func(r *CreditRecord) string { return fmtInt(r.SuccessfulTransactions) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.SuccessfulTransactions) }},
	{"failed_transactions", func(r *CreditRecord) string { return fmtInt(r.FailedTransactions) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.FailedTransactions) }},
	{"avg_daily_balance", func(r *CreditRecord) string { return fmtFloat(r.AvgDailyBalance) }, func(r *CreditRecord, s string) error { return parseFloat(s, &r.AvgDailyBalance) }},
	{"fraud_incidents", func(r *CreditRecord) string { return fmtInt(r.FraudIncidents) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.FraudIncidents) }},
	{"disputed_transactions", func(r *CreditRecord) string { return fmtInt(r.DisputedTransactions) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.DisputedTransactions) }},
	{"chargebacks", func(r *CreditRecord) string { return fmtInt(r.Chargebacks) }, func(r *CreditRecord, s string) error { return parseInt(s, &r.Chargebacks) }},
	profileFloat("revenue_trend", func(p *features.MerchantProfile) **float64 { return &p.RevenueTrend }),
	profileFloat("weekend_ratio", func(p *features.MerchantProfile) **float64 { return &p.WeekendRatio }),
	profileFloat("consistency_score", func(p *features.MerchantProfile) **float64 { return &p.ConsistencyScore }),
	profileFloat("category_risk", func(p *features.MerchantProfile) **float64 { return &p.CategoryRisk }),
	profileFloat("unique_customers", func(p *features.MerchantProfile) **float64 { return &p.UniqueCustomers }),
	profileFloat("retention_rate", func(p *features.MerchantProfile) **float64 { return &p.RetentionRate }),
	profileBool("has_social_media", func(p *features.MerchantProfile) *bool { return &p.HasSocialMedia }),
	profileBool("registration_verified", func(p *features.MerchantProfile) *bool { return &p.RegistrationVerified }),
	profileFloat("location_stability", func(p *features.MerchantProfile) **float64 { return &p.LocationStability }),
	profileFloat("hours_consistency", func(p *features.MerchantProfile) **float64 { return &p.HoursConsistency }),
	profileFloat("seasonality", func(p *features.MerchantProfile) **float64 { return &p.Seasonality }),
	profileFloat("cross_border_ratio", func(p *features.MerchantProfile) **float64 { return &p.CrossBorderRatio }),
	{"previous_loans", func(r *CreditRecord) string {
		if r.Profile == nil {
			return ""
		}
		return fmtInt(r.Profile.PreviousLoans)
	}, func(r *CreditRecord, s string) error { return parseInt(s, &profile(r).PreviousLoans) }},
	profileFloat("repayment_rate", func(p *features.MerchantProfile) **float64 { return &p.RepaymentRate }),
	profileFloat("max_loan", func(p *features.MerchantProfile) **float64 { return &p.MaxLoanHandled }),
	profileBool("has_defaulted", func(p *features.MerchantProfile) *bool { return &p.HasDefaulted }),
	profileFloat("debt_to_revenue", func(p *features.MerchantProfile) **float64 { return &p.DebtToRevenue }),
	profileFloat("outstanding_loans", func(p *features.MerchantProfile) **float64 { return &p.OutstandingLoans }),
	profileFloat("revenue_growth", func(p *features.MerchantProfile) **float64 { return &p.RevenueGrowth }),
	profileFloat("transaction_growth", func(p *features.MerchantProfile) **float64 { return &p.TransactionGrowth }),
	{creditLabelColumn, func(r *CreditRecord) string { return fmtInt(r.Label) }, func(r *CreditRecord, s string) error { return parseLabel(s, &r.Label) }},
}

func profileFloat(name string, field func(*features.MerchantProfile) **float64) column[CreditRecord] {
	return column[CreditRecord]{
		name: name,
		get: func(r *CreditRecord) string {
			if r.Profile == nil {
				return ""
			}
			return fmtOptFloat(*field(r.Profile))
		},
		set: func(r *CreditRecord, s string) error { return parseOptFloat(s, field(profile(r))) },
	}
}

func profileBool(name string, field func(*features.MerchantProfile) *bool) column[CreditRecord] {
	return column[CreditRecord]{
		name: name,
		get: func(r *CreditRecord) string {
			if r.Profile == nil {
				return ""
			}
			return strconv.FormatBool(*field(r.Profile))
		},
		set: func(r *CreditRecord, s string) error { return parseBool(s, field(profile(r))) },
	}
}

func profile(r *CreditRecord) *features.MerchantProfile {
	if r.Profile == nil {
		r.Profile = &features.MerchantProfile{}
	}
	return r.Profile
}

func agent(r *FraudRecord) *features.AgentContext {
	if r.Agent == nil {
		r.Agent = &features.AgentContext{}
	}
	return r.Agent
}

func agentField(r *FraudRecord, get func(*features.AgentContext) string) string {
	if r.Agent == nil {
		return ""
	}
	return get(r.Agent)
}

func geo(p **features.GeoPoint) *features.GeoPoint {
	if *p == nil {
		*p = &features.GeoPoint{}
	}
	return *p
}

func fmtLat(p *features.GeoPoint) string {
	if p == nil {
		return ""
	}
	return fmtFloat(p.Lat)
}

func fmtLon(p *features.GeoPoint) string {
	if p == nil {
		return ""
	}
	return fmtFloat(p.Lon)
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fmtInt(v int) string { return strconv.Itoa(v) }

func fmtOptFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return fmtFloat(*p)
}

func fmtOptInt(p *int) string {
	if p == nil {
		return ""
	}
	return fmtInt(*p)
}

func fmtOptBool(p *bool) string {
	if p == nil {
		return ""
	}
	return strconv.FormatBool(*p)
}

func parseFloat(s string, dst *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseOptFloat(s string, dst **float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

func parseInt(s string, dst *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseOptInt(s string, dst **int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

func parseBool(s string, dst *bool) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseOptBool(s string, dst **bool) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

func parseLabel(s string, dst *int) error {
	switch s {
	case "0", "false":
		*dst = 0
	case "1", "true":
		*dst = 1
	default:
		return fmt.Errorf("label %q is not binary", s)
	}
	return nil
}
