// Package policy maps ensemble probabilities to tiers, actions and
// recommendations. Threshold tables are plain data so they can be persisted
// with a model artifact and validated on load.
package policy

import (
	"fmt"
	"math"
)

// FraudTier is a fraud risk band.
type FraudTier string

const (
	TierLow      FraudTier = "LOW"
	TierMedium   FraudTier = "MEDIUM"
	TierHigh     FraudTier = "HIGH"
	TierCritical FraudTier = "CRITICAL"
	// TierUnknown is reported when no model is loaded.
	TierUnknown FraudTier = "UNKNOWN"
	// TierError is reported for requests that failed validation.
	TierError FraudTier = "ERROR"
)

// Action is the recommended handling of a scored transaction.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionVerify  Action = "REQUEST_ADDITIONAL_VERIFICATION"
	ActionReview  Action = "MANUAL_REVIEW"
	ActionBlock   Action = "BLOCK_TRANSACTION"
)

// FraudBand binds a tier to its inclusive lower probability bound.
type FraudBand struct {
	Tier        FraudTier `json:"tier" yaml:"tier"`
	Lower       float64   `json:"lower" yaml:"lower"`
	Action      Action    `json:"action" yaml:"action"`
	Explanation string    `json:"explanation" yaml:"explanation"`
}

// FraudBands is ordered by ascending Lower.
type FraudBands []FraudBand

func DefaultFraudBands() FraudBands {
	return FraudBands{
		{TierLow, 0, ActionApprove, "Low fraud probability. Transaction appears legitimate."},
		{TierMedium, 0.4, ActionVerify, "Moderate fraud probability. Additional verification recommended."},
		{TierHigh, 0.6, ActionReview, "High fraud probability. Requires manual review before approval."},
		{TierCritical, 0.8, ActionBlock, "Extremely high fraud probability. Transaction blocked for security."},
	}
}

// Validate checks that the bands start at zero, stay inside [0,1] and are
// strictly increasing.
func (b FraudBands) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("fraud bands: empty table")
	}
	if b[0].Lower != 0 {
		return fmt.Errorf("fraud bands: first band must start at 0, got %v", b[0].Lower)
	}
	seen := make(map[FraudTier]bool, len(b))
	for i, band := range b {
		if band.Tier == "" || band.Action == "" {
			return fmt.Errorf("fraud bands: band %d has no tier or action", i)
		}
		if seen[band.Tier] {
			return fmt.Errorf("fraud bands: tier %s appears twice", band.Tier)
		}
		seen[band.Tier] = true
		if math.IsNaN(band.Lower) || band.Lower < 0 || band.Lower > 1 {
			return fmt.Errorf("fraud bands: %s lower bound %v outside [0,1]", band.Tier, band.Lower)
		}
		if i > 0 && band.Lower <= b[i-1].Lower {
			return fmt.Errorf("fraud bands: %s lower bound %v does not exceed %v", band.Tier, band.Lower, b[i-1].Lower)
		}
	}
	return nil
}

// Classify returns the highest band whose lower bound p reaches.
func (b FraudBands) Classify(p float64) FraudBand {
	for i := len(b) - 1; i > 0; i-- {
		if p >= b[i].Lower {
			return b[i]
		}
	}
	return b[0]
}

// Rank orders tiers for comparison. Non-scored tiers rank below LOW.
func (t FraudTier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 4
	}
	return 0
}
