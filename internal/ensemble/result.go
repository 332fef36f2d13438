package ensemble

import "fmt"

// Outcome discriminates a ScoringResult.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeModelUnavailable
	OutcomeInvalidInput
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeModelUnavailable:
		return "model_unavailable"
	case OutcomeInvalidInput:
		return "invalid_input"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ScoringResult is the tagged result of a scoring call. Exactly one of
// Fraud or Credit is set when Outcome is OutcomeOK; Reason and Err describe
// the other outcomes.
type ScoringResult struct {
	Outcome Outcome
	Reason  string
	Err     error
	Fraud   *FraudAssessment
	Credit  *CreditAssessment
}

// OK reports whether scoring succeeded.
func (r ScoringResult) OK() bool { return r.Outcome == OutcomeOK }

func unavailable(err error) ScoringResult {
	return ScoringResult{Outcome: OutcomeModelUnavailable, Reason: err.Error(), Err: err}
}

func invalidInput(err error) ScoringResult {
	return ScoringResult{Outcome: OutcomeInvalidInput, Reason: err.Error(), Err: err}
}
