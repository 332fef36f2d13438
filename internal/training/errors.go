package training

import "fmt"

// InsufficientDataError reports that a partition has too few usable rows
// or lacks one of the classes.
type InsufficientDataError struct {
	Partition string
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient %s data: have %d usable rows, need %d", e.Partition, e.Have, e.Need)
}

// FeatureExtractionWarning records a row that could not be encoded. The
// row is skipped and training continues.
type FeatureExtractionWarning struct {
	Row int
	Err error
}

func (w *FeatureExtractionWarning) Error() string {
	return fmt.Sprintf("row %d: feature extraction failed: %v", w.Row, w.Err)
}

func (w *FeatureExtractionWarning) Unwrap() error { return w.Err }
