package features

import (
	"errors"
	"math"
	"testing"
)

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool      { return &v }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEncodeTransaction_Defaults(t *testing.T) {
	tx := Transaction{
		TransactionID: "tx-1",
		Amount:        f64(50),
		Timestamp:     "2024-03-13T14:00:00Z", // Wednesday
		MerchantName:  "Corner Shop",
	}

	v, err := EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("EncodeTransaction failed: %v", err)
	}
	if len(v) != FraudFeatureCount || len(FraudFeatureNames) != FraudFeatureCount {
		t.Fatalf("expected %d slots, got %d (names %d)", FraudFeatureCount, len(v), len(FraudFeatureNames))
	}

	want := map[string]float64{
		"amount_normalized":              0.005,
		"amount_log":                     math.Log1p(50),
		"amount_deviation_from_avg":      0,
		"hour_sin":                       math.Sin(2 * math.Pi * 14 / 24),
		"hour_cos":                       math.Cos(2 * math.Pi * 14 / 24),
		"day_of_week":                    2,
		"is_weekend":                     0,
		"is_unusual_hour":                0,
		"merchant_fraud_rate":            DefaultMerchantFraudRate,
		"distance_from_home_km":          0,
		"transactions_last_hour":         0,
		"transactions_last_day":          1,
		"device_fingerprint_match":       1,
		"card_not_present":               1,
		"round_number_flag":              0,
		"beneficiary_account_age_days":   365,
		"user_kyc_level":                 0,
		"is_agent_transaction":           0,
		"agent_type_encoded":             -1,
		"agent_status_encoded":           -1,
		"agent_has_sufficient_liquidity": 0,
		"agent_risk_score":               0.5,
	}
	for i, name := range FraudFeatureNames {
		if expected, ok := want[name]; ok && !approx(v[i], expected) {
			t.Errorf("%s: expected %v, got %v", name, expected, v[i])
		}
	}
}

func TestEncodeTransaction_Flags(t *testing.T) {
	tests := []struct {
		name  string
		tx    Transaction
		slot  int
		value float64
	}{
		{
			name:  "weekend",
			tx:    Transaction{Amount: f64(10), Timestamp: "2024-03-16T12:00:00"},
			slot:  6,
			value: 1,
		},
		{
			name:  "unusual hour late",
			tx:    Transaction{Amount: f64(10), Timestamp: "2024-03-13T23:30:00Z"},
			slot:  7,
			value: 1,
		},
		{
			name:  "unusual hour early",
			tx:    Transaction{Amount: f64(10), Timestamp: "2024-03-13 06:59:00"},
			slot:  7,
			value: 1,
		},
		{
			name:  "round amount",
			tx:    Transaction{Amount: f64(200), Timestamp: "2024-03-13T12:00:00Z"},
			slot:  17,
			value: 1,
		},
		{
			name:  "card present",
			tx:    Transaction{Amount: f64(10), Timestamp: "2024-03-13T12:00:00Z", CardPresent: bptr(true)},
			slot:  16,
			value: 0,
		},
		{
			name: "device mismatch",
			tx: Transaction{Amount: f64(10), Timestamp: "2024-03-13T12:00:00Z",
				DeviceFingerprint: "abc", KnownDeviceFingerprint: "xyz"},
			slot:  15,
			value: 0,
		},
		{
			name:  "foreign",
			tx:    Transaction{Amount: f64(10), Timestamp: "2024-03-13T12:00:00Z", IsForeign: bptr(true)},
			slot:  11,
			value: 1,
		},
		{
			name: "agent cash out",
			tx: Transaction{Amount: f64(10), Timestamp: "2024-03-13T12:00:00Z",
				Agent: &AgentContext{Type: "large", Status: "active", TransactionType: "cash_out"}},
			slot:  26,
			value: 1,
		},
		{
			name: "agent type",
			tx: Transaction{Amount: f64(10), Timestamp: "2024-03-13T12:00:00Z",
				Agent: &AgentContext{Type: "large"}},
			slot:  21,
			value: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := EncodeTransaction(tt.tx)
			if err != nil {
				t.Fatalf("EncodeTransaction failed: %v", err)
			}
			if v[tt.slot] != tt.value {
				t.Errorf("%s: expected %v, got %v", FraudFeatureNames[tt.slot], tt.value, v[tt.slot])
			}
		})
	}
}

func TestEncodeTransaction_InvalidRecord(t *testing.T) {
	tests := []struct {
		name  string
		tx    Transaction
		field string
	}{
		{"missing amount", Transaction{Timestamp: "2024-03-13T12:00:00Z"}, "amount"},
		{"nan amount", Transaction{Amount: f64(math.NaN()), Timestamp: "2024-03-13T12:00:00Z"}, "amount"},
		{"negative amount", Transaction{Amount: f64(-5), Timestamp: "2024-03-13T12:00:00Z"}, "amount"},
		{"missing timestamp", Transaction{Amount: f64(5)}, "timestamp"},
		{"garbage timestamp", Transaction{Amount: f64(5), Timestamp: "yesterday"}, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeTransaction(tt.tx)
			var ire *InvalidRecordError
			if !errors.As(err, &ire) {
				t.Fatalf("expected InvalidRecordError, got %v", err)
			}
			if ire.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ire.Field)
			}
		})
	}
}

func TestEncodeTransaction_OptionalFieldsNeverFail(t *testing.T) {
	tx := Transaction{
		Amount:           f64(75),
		Timestamp:        "2024-03-13T12:00:00Z",
		UserLocation:     &GeoPoint{Lat: 999, Lon: 999},
		MerchantFraudRate: f64(math.Inf(1)),
	}
	v, err := EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("optional fields must not fail encoding: %v", err)
	}
	if v[9] != DefaultMerchantFraudRate {
		t.Errorf("non-finite merchant fraud rate should fall back to default, got %v", v[9])
	}
	if err := tx.Validate(); err == nil {
		t.Error("expected Validate to reject out-of-range coordinates")
	}
}

func TestEncodeTransaction_Deterministic(t *testing.T) {
	tx := Transaction{
		Amount:           f64(1234.5),
		Timestamp:        "2024-07-01T03:15:00+02:00",
		MerchantMCC:      5411,
		UserLocation:     &GeoPoint{Lat: -22.56, Lon: 17.08},
		MerchantLocation: &GeoPoint{Lat: -22.68, Lon: 14.53},
	}
	a, err := EncodeTransaction(tx)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := EncodeTransaction(tx)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs between runs: %v vs %v", i, a[i], b[i])
		}
	}
	if a[10] <= 0 {
		t.Errorf("expected positive distance, got %v", a[10])
	}
}

func TestMerchantCategory(t *testing.T) {
	for _, name := range []string{"a", "Shoprite", "Pick n Pay", "fuel"} {
		c := MerchantCategory(0, name)
		if c < 0 || c >= 100 {
			t.Errorf("category for %q out of range: %v", name, c)
		}
	}
	if MerchantCategory(0, "") != 0 {
		t.Error("empty merchant should encode as 0")
	}
	if MerchantCategory(5411, "x") != MerchantCategory(5411, "y") {
		t.Error("MCC should take precedence over merchant name")
	}
	if MerchantCategory(0, "Shop ") != MerchantCategory(0, "shop") {
		t.Error("merchant names should be normalised")
	}
}

func TestHaversine(t *testing.T) {
	d := Haversine(GeoPoint{0, 0}, GeoPoint{0, 1})
	if math.Abs(d-111.195) > 0.01 {
		t.Errorf("expected ~111.195km per degree at the equator, got %v", d)
	}
	if Haversine(GeoPoint{10, 10}, GeoPoint{10, 10}) != 0 {
		t.Error("distance to self should be 0")
	}
}
