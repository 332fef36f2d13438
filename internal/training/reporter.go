package training

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"risk-engine/internal/common"
)

// Report file names inside the output directory.
const (
	SummaryFile     = "training_summary.txt"
	PredictionsFile = "test_predictions.csv"
	HistoryFile     = "mlp_history.csv"
)

// Reporter writes the human and machine readable reports of a run.
type Reporter struct {
	result     *Result
	outputPath string
}

func NewReporter(result *Result, outputPath string) *Reporter {
	return &Reporter{
		result:     result,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the metadata JSON, the test-set
// predictions and, for fraud, the MLP epoch history.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateMetadata(); err != nil {
		return err
	}
	if err := r.generatePredictions(); err != nil {
		return err
	}
	if len(r.result.History) > 0 {
		if err := r.generateHistory(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	a := r.result.Artifact
	md := a.Metadata
	fmt.Fprintf(file, "TRAINING SUMMARY: %s\n", a.Family)
	fmt.Fprintf(file, "==========================\n\n")
	fmt.Fprintf(file, "Version: %s\n", a.Version)
	fmt.Fprintf(file, "Trained At: %s\n", md.TrainedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Features: %d\n", md.NFeatures)
	fmt.Fprintf(file, "Rows: %d train / %d validation / %d test (%d skipped)\n", md.NTrain, md.NVal, md.NTest, md.SkippedRows)
	fmt.Fprintf(file, "Positive Rate: %.2f%% train, %.2f%% test\n", md.TrainPositiveRate*100, md.TestPositiveRate*100)
	fmt.Fprintf(file, "SMOTE Applied: %t\n\n", md.SMOTEApplied)

	credit := a.Family == common.FamilyCredit
	writeMetrics(file, "VALIDATION METRICS", r.result.Validation, credit)
	writeMetrics(file, "TEST METRICS", r.result.Test, credit)
	writeMetrics(file, "BASELINE (MAJORITY CLASS)", r.result.Baseline, credit)

	if len(r.result.Members) > 0 {
		fmt.Fprintf(file, "MEMBER TEST METRICS\n")
		fmt.Fprintf(file, "-------------------\n")
		names := make([]string, 0, len(r.result.Members))
		for name := range r.result.Members {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := r.result.Members[name]
			fmt.Fprintf(file, "%s (weight %.2f): accuracy %.4f, F1 %.4f, ROC-AUC %.4f\n",
				name, a.Weights[name], m.Accuracy, m.F1, m.ROCAUC)
		}
		fmt.Fprintln(file)
	}

	if cv := r.result.CV; cv != nil {
		fmt.Fprintf(file, "CROSS-VALIDATION\n")
		fmt.Fprintf(file, "----------------\n")
		fmt.Fprintf(file, "%d folds, %s: %.4f ± %.4f\n\n", cv.Folds, cv.Metric, cv.Mean, cv.Std)
	}

	if len(md.TopFeatures) > 0 {
		fmt.Fprintf(file, "TOP FEATURES\n")
		fmt.Fprintf(file, "------------\n")
		for i, f := range md.TopFeatures {
			fmt.Fprintf(file, "%d. %s: %.4f\n", i+1, f.Name, f.Importance)
		}
	}
	if md.AnomalyThreshold != nil {
		fmt.Fprintf(file, "\nAnomaly Threshold: %.4f (log-likelihood)\n", *md.AnomalyThreshold)
		fmt.Fprintf(file, "MLP Best Epoch: %d\n", md.MLPBestEpoch)
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func writeMetrics(file *os.File, title string, m Metrics, credit bool) {
	fmt.Fprintf(file, "%s\n", title)
	for range title {
		fmt.Fprint(file, "-")
	}
	fmt.Fprintln(file)
	fmt.Fprintf(file, "Accuracy: %.4f\n", m.Accuracy)
	fmt.Fprintf(file, "Precision: %.4f\n", m.Precision)
	fmt.Fprintf(file, "Recall: %.4f\n", m.Recall)
	fmt.Fprintf(file, "F1 Score: %.4f\n", m.F1)
	fmt.Fprintf(file, "False Positive Rate: %.4f\n", m.FPR)
	fmt.Fprintf(file, "ROC-AUC: %.4f\n", m.ROCAUC)
	if credit {
		fmt.Fprintf(file, "Gini: %.4f\n", m.Gini)
		fmt.Fprintf(file, "Brier Score: %.4f\n", m.Brier)
	}
	c := m.Confusion
	fmt.Fprintf(file, "Confusion: TP %d, FP %d, TN %d, FN %d\n\n", c.TP, c.FP, c.TN, c.FN)
}

func (r *Reporter) generateMetadata() error {
	path := filepath.Join(r.outputPath, common.MetadataFile)
	data, err := json.MarshalIndent(r.result.Artifact.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	log.Info().Str("file", path).Msg("Training metadata written")
	return nil
}

// generatePredictions writes one row per test record so ROC and
// calibration curves can be drawn outside the engine.
func (r *Reporter) generatePredictions() error {
	csvPath := filepath.Join(r.outputPath, PredictionsFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create predictions file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"id", "label", "probability", "predicted"}); err != nil {
		return err
	}
	cut := r.result.Artifact.DecisionCut
	for i, p := range r.result.TestScores {
		id := ""
		if i < len(r.result.TestIDs) {
			id = r.result.TestIDs[i]
		}
		predicted := 0
		if p > cut {
			predicted = 1
		}
		record := []string{
			id,
			fmt.Sprintf("%d", r.result.TestLabels[i]),
			fmt.Sprintf("%.6f", p),
			fmt.Sprintf("%d", predicted),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	log.Info().Str("file", csvPath).Int("rows", len(r.result.TestScores)).Msg("Test predictions written")
	return nil
}

func (r *Reporter) generateHistory() error {
	csvPath := filepath.Join(r.outputPath, HistoryFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"epoch", "train_loss", "val_loss", "learning_rate"}); err != nil {
		return err
	}
	for _, e := range r.result.History {
		record := []string{
			fmt.Sprintf("%d", e.Epoch),
			fmt.Sprintf("%.6f", e.TrainLoss),
			fmt.Sprintf("%.6f", e.ValLoss),
			fmt.Sprintf("%g", e.LearningRate),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// PrintSummary prints the headline numbers to stdout.
func (r *Reporter) PrintSummary() {
	a := r.result.Artifact
	fmt.Println("\n========== TRAINING RESULTS ==========")
	fmt.Printf("Family: %s\n", a.Family)
	fmt.Printf("Version: %s\n", a.Version)
	fmt.Printf("Rows: %d train / %d val / %d test\n", a.Metadata.NTrain, a.Metadata.NVal, a.Metadata.NTest)
	fmt.Printf("Test Accuracy: %.4f (baseline %.4f)\n", r.result.Test.Accuracy, r.result.Baseline.Accuracy)
	fmt.Printf("Test F1: %.4f\n", r.result.Test.F1)
	fmt.Printf("Test ROC-AUC: %.4f\n", r.result.Test.ROCAUC)
	if cv := r.result.CV; cv != nil {
		fmt.Printf("CV %s: %.4f ± %.4f\n", cv.Metric, cv.Mean, cv.Std)
	}
	fmt.Println("======================================")
}
