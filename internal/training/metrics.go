package training

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Confusion holds the counts of a binary decision at a fixed cut.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Metrics summarises a set of probability predictions against labels.
type Metrics struct {
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1_score"`
	FPR       float64   `json:"false_positive_rate"`
	ROCAUC    float64   `json:"roc_auc"`
	Gini      float64   `json:"gini"`
	Brier     float64   `json:"brier_score"`
	Confusion Confusion `json:"confusion_matrix"`
}

// Evaluate scores probabilities p against labels y; a row is predicted
// positive when p > cut.
func Evaluate(y []int, p []float64, cut float64) Metrics {
	var m Metrics
	if len(y) == 0 {
		return m
	}
	var c Confusion
	var brier float64
	for i, label := range y {
		pred := p[i] > cut
		switch {
		case pred && label == 1:
			c.TP++
		case pred:
			c.FP++
		case label == 1:
			c.FN++
		default:
			c.TN++
		}
		d := p[i] - float64(label)
		brier += d * d
	}
	n := float64(len(y))
	m.Confusion = c
	m.Accuracy = float64(c.TP+c.TN) / n
	m.Precision = ratio(c.TP, c.TP+c.FP)
	m.Recall = ratio(c.TP, c.TP+c.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.FPR = ratio(c.FP, c.FP+c.TN)
	m.ROCAUC = ROCAUC(y, p)
	m.Gini = 2*m.ROCAUC - 1
	m.Brier = brier / n
	return m
}

// ratio returns a/b, or 0 when b is 0.
func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// ROCAUC is the trapezoidal area under the ROC curve, with tied scores
// sharing one cutoff. With a single class present the curve is undefined
// and 0.5 is returned.
func ROCAUC(y []int, p []float64) float64 {
	scores := slices.Clone(p)
	classes := make([]bool, len(y))
	var nPos int
	for i, label := range y {
		classes[i] = label == 1
		if classes[i] {
			nPos++
		}
	}
	if nPos == 0 || nPos == len(y) {
		return 0.5
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Map flattens m into the metadata form, with family-specific keys.
func (m Metrics) Map(credit bool) map[string]float64 {
	out := map[string]float64{
		"accuracy":            m.Accuracy,
		"precision":           m.Precision,
		"recall":              m.Recall,
		"f1_score":            m.F1,
		"false_positive_rate": m.FPR,
		"roc_auc":             m.ROCAUC,
		"true_positives":      float64(m.Confusion.TP),
		"false_positives":     float64(m.Confusion.FP),
		"true_negatives":      float64(m.Confusion.TN),
		"false_negatives":     float64(m.Confusion.FN),
	}
	if credit {
		out["gini"] = m.Gini
		out["brier_score"] = m.Brier
	}
	for k, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[k] = 0
		}
	}
	return out
}

// Baseline scores the majority-class predictor on y, using the training
// positive rate as its constant probability.
func Baseline(y []int, trainRate, cut float64) Metrics {
	p := make([]float64, len(y))
	for i := range p {
		p[i] = trainRate
	}
	return Evaluate(y, p, cut)
}

// meanStd is the population mean and standard deviation of v.
func meanStd(v []float64) (mean, std float64) {
	if len(v) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(v, nil)
}
