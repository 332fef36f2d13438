package features

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"
)

// FeatureVector is an ordered, fixed-length numeric encoding of a raw record.
// Slot order is defined by FraudFeatureNames or CreditFeatureNames.
type FeatureVector []float64

// FraudFeatureCount is the length of an encoded transaction.
const FraudFeatureCount = 29

// FraudFeatureNames lists the transaction slots in encoding order.
var FraudFeatureNames = []string{
	"amount_normalized",
	"amount_log",
	"amount_deviation_from_avg",
	"hour_sin",
	"hour_cos",
	"day_of_week",
	"is_weekend",
	"is_unusual_hour",
	"merchant_category_encoded",
	"merchant_fraud_rate",
	"distance_from_home_km",
	"is_foreign_transaction",
	"transactions_last_hour",
	"transactions_last_day",
	"velocity_score",
	"device_fingerprint_match",
	"card_not_present",
	"round_number_flag",
	"beneficiary_account_age_days",
	"user_kyc_level",
	"is_agent_transaction",
	"agent_type_encoded",
	"agent_status_encoded",
	"agent_liquidity_normalized",
	"agent_cash_on_hand_normalized",
	"agent_has_sufficient_liquidity",
	"agent_transaction_type_encoded",
	"agent_commission_rate",
	"agent_risk_score",
}

// Neutral values used when optional transaction fields are absent.
const (
	DefaultMerchantFraudRate  = 0.01
	DefaultTransactionsPerDay = 1.0
	DefaultBeneficiaryAgeDays = 365.0
	DefaultAgentRiskScore     = 0.5
	merchantCategoryBuckets   = 100
	amountScale               = 10000.0
)

// Transaction is a raw payment record as received from the API layer or a
// training dataset. Optional fields are pointers so that absence can be told
// apart from an explicit zero.
type Transaction struct {
	TransactionID          string    `json:"transaction_id"`
	UserID                 string    `json:"user_id,omitempty"`
	Amount                 *float64  `json:"amount"`
	Timestamp              string    `json:"timestamp"`
	MerchantName           string    `json:"merchant_name,omitempty"`
	MerchantMCC            int       `json:"merchant_mcc,omitempty"`
	UserLocation           *GeoPoint `json:"user_location,omitempty"`
	MerchantLocation       *GeoPoint `json:"merchant_location,omitempty"`
	DeviceFingerprint      string    `json:"device_fingerprint,omitempty"`
	KnownDeviceFingerprint string    `json:"known_device_fingerprint,omitempty"`
	BeneficiaryAgeDays     *float64  `json:"beneficiary_account_age_days,omitempty"`

	UserAvgAmount        *float64      `json:"user_avg_amount,omitempty"`
	MerchantFraudRate    *float64      `json:"merchant_fraud_rate,omitempty"`
	IsForeign            *bool         `json:"is_foreign,omitempty"`
	CardPresent          *bool         `json:"card_present,omitempty"`
	DeviceMatch          *bool         `json:"device_match,omitempty"`
	TransactionsLastHour *float64      `json:"transactions_last_hour,omitempty"`
	TransactionsLastDay  *float64      `json:"transactions_last_day,omitempty"`
	VelocityScore        *float64      `json:"velocity_score,omitempty"`
	KYCLevel             *int          `json:"kyc_level,omitempty"`
	Agent                *AgentContext `json:"agent,omitempty"`
}

// AgentContext carries the agent-network attributes of a cash-in/cash-out
// transaction handled by a field agent.
type AgentContext struct {
	Type                   string   `json:"type,omitempty"`   // small, medium, large
	Status                 string   `json:"status,omitempty"` // active, inactive, suspended
	LiquidityNormalized    float64  `json:"liquidity_normalized,omitempty"`
	CashOnHandNormalized   float64  `json:"cash_on_hand_normalized,omitempty"`
	HasSufficientLiquidity bool     `json:"has_sufficient_liquidity,omitempty"`
	TransactionType        string   `json:"transaction_type,omitempty"` // cash_out, cash_in, commission
	CommissionRate         float64  `json:"commission_rate,omitempty"`
	RiskScore              *float64 `json:"risk_score,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp accepts RFC 3339 and the common ISO-8601 forms without a zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Validate checks the request-level constraints of a scoring request that the
// encoder itself tolerates: coordinate ranges and a non-negative beneficiary age.
func (t Transaction) Validate() error {
	if t.UserLocation != nil && !t.UserLocation.Valid() {
		return invalid("user_location", "out of range")
	}
	if t.MerchantLocation != nil && !t.MerchantLocation.Valid() {
		return invalid("merchant_location", "out of range")
	}
	if t.BeneficiaryAgeDays != nil && *t.BeneficiaryAgeDays < 0 {
		return invalid("beneficiary_account_age_days", "must be >= 0")
	}
	return nil
}

// EncodeTransaction turns a transaction into its 29-slot fraud vector.
// It fails only when amount or timestamp is absent or malformed.
func EncodeTransaction(t Transaction) (FeatureVector, error) {
	if t.Amount == nil {
		return nil, invalid("amount", "is required")
	}
	amount := *t.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, invalid("amount", "is not a finite number")
	}
	if amount <= 0 {
		return nil, invalid("amount", "must be positive")
	}
	if t.Timestamp == "" {
		return nil, invalid("timestamp", "is required")
	}
	ts, err := ParseTimestamp(t.Timestamp)
	if err != nil {
		return nil, invalid("timestamp", err.Error())
	}

	hour := ts.Hour()
	// time.Weekday starts on Sunday; slots use Monday = 0.
	dow := (int(ts.Weekday()) + 6) % 7

	avg := floatOr(t.UserAvgAmount, amount)

	v := make(FeatureVector, FraudFeatureCount)
	v[0] = amount / amountScale
	v[1] = math.Log1p(amount)
	v[2] = (amount - avg) / math.Max(avg, 1)
	v[3] = math.Sin(2 * math.Pi * float64(hour) / 24)
	v[4] = math.Cos(2 * math.Pi * float64(hour) / 24)
	v[5] = float64(dow)
	v[6] = boolf(dow >= 5)
	v[7] = boolf(hour >= 23 || hour <= 6)
	v[8] = MerchantCategory(t.MerchantMCC, t.MerchantName)
	v[9] = floatOr(t.MerchantFraudRate, DefaultMerchantFraudRate)
	if t.UserLocation != nil && t.MerchantLocation != nil {
		v[10] = Haversine(*t.UserLocation, *t.MerchantLocation)
	}
	v[11] = boolf(t.IsForeign != nil && *t.IsForeign)
	v[12] = floatOr(t.TransactionsLastHour, 0)
	v[13] = floatOr(t.TransactionsLastDay, DefaultTransactionsPerDay)
	v[14] = floatOr(t.VelocityScore, 0)
	v[15] = deviceMatch(t)
	v[16] = boolf(t.CardPresent == nil || !*t.CardPresent)
	v[17] = boolf(math.Mod(amount, 100) == 0)
	v[18] = floatOr(t.BeneficiaryAgeDays, DefaultBeneficiaryAgeDays)
	if t.KYCLevel != nil {
		v[19] = float64(*t.KYCLevel)
	}
	encodeAgent(v[20:], t.Agent)
	return v, nil
}

// MerchantCategory buckets a merchant into [0, 100). The category code wins
// over the merchant name when present.
func MerchantCategory(mcc int, name string) float64 {
	key := strings.ToLower(strings.TrimSpace(name))
	if mcc > 0 {
		key = strconv.Itoa(mcc)
	}
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return float64(h.Sum32() % merchantCategoryBuckets)
}

func deviceMatch(t Transaction) float64 {
	if t.DeviceMatch != nil {
		return boolf(*t.DeviceMatch)
	}
	if t.DeviceFingerprint != "" && t.KnownDeviceFingerprint != "" {
		return boolf(t.DeviceFingerprint == t.KnownDeviceFingerprint)
	}
	return 1
}

func encodeAgent(dst []float64, a *AgentContext) {
	if a == nil {
		dst[0] = 0
		dst[1] = -1
		dst[2] = -1
		dst[8] = DefaultAgentRiskScore
		return
	}
	dst[0] = 1
	dst[1] = agentTypeCode(a.Type)
	dst[2] = agentStatusCode(a.Status)
	dst[3] = a.LiquidityNormalized
	dst[4] = a.CashOnHandNormalized
	dst[5] = boolf(a.HasSufficientLiquidity)
	dst[6] = agentTxnTypeCode(a.TransactionType)
	dst[7] = a.CommissionRate
	dst[8] = floatOr(a.RiskScore, DefaultAgentRiskScore)
}

func agentTypeCode(s string) float64 {
	switch strings.ToLower(s) {
	case "small":
		return 0
	case "medium":
		return 1
	case "large":
		return 2
	default:
		return -1
	}
}

func agentStatusCode(s string) float64 {
	switch strings.ToLower(s) {
	case "active":
		return 1
	case "inactive":
		return 0
	default:
		return -1
	}
}

func agentTxnTypeCode(s string) float64 {
	switch strings.ToLower(s) {
	case "cash_out":
		return 1
	case "cash_in":
		return 2
	case "commission":
		return 3
	default:
		return 0
	}
}

func floatOr(p *float64, def float64) float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return def
	}
	return *p
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
