package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// SampleSource provides labeled records kept in the sample store.
type SampleSource interface {
	FraudSamples(ctx context.Context) ([]FraudRecord, error)
	CreditSamples(ctx context.Context) ([]CreditRecord, error)
}

// Loader reads labeled training records. Rows that cannot be parsed are
// skipped and counted; they never abort a load.
type Loader struct {
	skipped int
}

func NewLoader() *Loader {
	return &Loader{}
}

// Skipped returns the number of rows dropped by the last load.
func (l *Loader) Skipped() int {
	return l.skipped
}

// LoadFraud reads fraud records from a .csv or .json/.jsonl file.
func (l *Loader) LoadFraud(path string) ([]FraudRecord, error) {
	return load(l, path, fraudColumns, fraudLabelColumn)
}

// LoadCredit reads credit records from a .csv or .json/.jsonl file.
func (l *Loader) LoadCredit(path string) ([]CreditRecord, error) {
	return load(l, path, creditColumns, creditLabelColumn)
}

// FraudFromStore reads every fraud sample from src.
func (l *Loader) FraudFromStore(ctx context.Context, src SampleSource) ([]FraudRecord, error) {
	l.skipped = 0
	recs, err := src.FraudSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud samples: %w", err)
	}
	log.Info().Int("records", len(recs)).Msg("Fraud samples loaded from store")
	return recs, nil
}

// CreditFromStore reads every credit sample from src.
func (l *Loader) CreditFromStore(ctx context.Context, src SampleSource) ([]CreditRecord, error) {
	l.skipped = 0
	recs, err := src.CreditSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit samples: %w", err)
	}
	log.Info().Int("records", len(recs)).Msg("Credit samples loaded from store")
	return recs, nil
}

func load[T Labeled](l *Loader, path string, cols []column[T], label string) ([]T, error) {
	l.skipped = 0
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	var recs []T
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		recs, err = readCSV(l, file, cols, label)
	case ".json", ".jsonl", ".ndjson":
		recs, err = readJSON[T](l, file)
	default:
		return nil, fmt.Errorf("unsupported data file extension %q", ext)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Int("records", len(recs)).
		Int("skipped", l.skipped).
		Float64("positive_rate", PositiveRate(recs)).
		Msg("Training data loaded successfully")
	return recs, nil
}

func readCSV[T any](l *Loader, r io.Reader, cols []column[T], label string) ([]T, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}
	if _, ok := indices[label]; !ok {
		return nil, fmt.Errorf("CSV header has no %q column", label)
	}

	var recs []T
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			l.skipped++
			log.Warn().Err(err).Int("line", line).Msg("Skipping unreadable CSV row")
			continue
		}

		var rec T
		if err := decodeRow(&rec, row, indices, cols); err != nil {
			l.skipped++
			log.Warn().Err(err).Int("line", line).Msg("Skipping malformed CSV row")
			continue
		}
		if idx := indices[label]; idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
			l.skipped++
			log.Warn().Int("line", line).Msg("Skipping CSV row without label")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func decodeRow[T any](rec *T, row []string, indices map[string]int, cols []column[T]) error {
	for _, c := range cols {
		idx, ok := indices[c.name]
		if !ok || idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		if err := c.set(rec, cell); err != nil {
			return fmt.Errorf("column %s: %w", c.name, err)
		}
	}
	return nil
}

// readJSON accepts either a top-level array or a stream of objects.
func readJSON[T Labeled](l *Loader, r io.Reader) ([]T, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read JSON data: %w", err)
	}

	decoder := json.NewDecoder(br)
	var raw []json.RawMessage
	if first == '[' {
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode JSON array: %w", err)
		}
	} else {
		for decoder.More() {
			var msg json.RawMessage
			if err := decoder.Decode(&msg); err != nil {
				return nil, fmt.Errorf("failed to decode JSON record %d: %w", len(raw)+1, err)
			}
			raw = append(raw, msg)
		}
	}

	recs := make([]T, 0, len(raw))
	for i, msg := range raw {
		var rec T
		if err := json.Unmarshal(msg, &rec); err != nil {
			l.skipped++
			log.Warn().Err(err).Int("record", i+1).Msg("Skipping malformed JSON record")
			continue
		}
		if lbl := labelOf(rec); lbl != 0 && lbl != 1 {
			l.skipped++
			log.Warn().Int("record", i+1).Int("label", lbl).Msg("Skipping JSON record with non-binary label")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// WriteFraudCSV writes recs with a header row in the column order the
// loader reads.
func WriteFraudCSV(w io.Writer, recs []FraudRecord) error {
	return writeCSV(w, recs, fraudColumns)
}

// WriteCreditCSV writes recs with a header row.
func WriteCreditCSV(w io.Writer, recs []CreditRecord) error {
	return writeCSV(w, recs, creditColumns)
}

func writeCSV[T any](w io.Writer, recs []T, cols []column[T]) error {
	writer := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	row := make([]string, len(cols))
	for i := range recs {
		for j, c := range cols {
			row[j] = c.get(&recs[i])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
