// Package dataset holds labeled training records for both model families
// and the loaders that read them from CSV, JSON and the sample store.
package dataset

import (
	"risk-engine/internal/features"
)

// FraudRecord is a transaction with its ground-truth label (1 = fraud).
type FraudRecord struct {
	features.Transaction
	Label int `json:"is_fraud"`
}

// CreditRecord is a loan request with its observed outcome (1 = defaulted).
type CreditRecord struct {
	features.CreditRequest
	Label int `json:"defaulted"`
}

// Labeled is implemented by both record kinds.
type Labeled interface {
	FraudRecord | CreditRecord
}

func labelOf[T Labeled](r T) int {
	switch v := any(r).(type) {
	case FraudRecord:
		return v.Label
	case CreditRecord:
		return v.Label
	}
	return -1
}

// PositiveRate returns the share of records labeled 1.
func PositiveRate[T Labeled](recs []T) float64 {
	if len(recs) == 0 {
		return 0
	}
	var n int
	for _, r := range recs {
		if labelOf(r) == 1 {
			n++
		}
	}
	return float64(n) / float64(len(recs))
}
