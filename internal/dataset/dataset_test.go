package dataset

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/features"
)

func TestGenerateFraud(t *testing.T) {
	recs := GenerateFraud(2000, 0.05, 42)
	require.Len(t, recs, 2000)

	rate := PositiveRate(recs)
	assert.InDelta(t, 0.05, rate, 0.02)

	for i, r := range recs {
		_, err := features.EncodeTransaction(r.Transaction)
		require.NoError(t, err, "record %d", i)
		require.NoError(t, r.Validate(), "record %d", i)
	}

	again := GenerateFraud(2000, 0.05, 42)
	assert.Equal(t, recs, again, "same seed must give the same data")
}

func TestGenerateCredit(t *testing.T) {
	recs := GenerateCredit(1500, 0.1, 7)
	require.Len(t, recs, 1500)
	assert.InDelta(t, 0.1, PositiveRate(recs), 0.03)

	for i, r := range recs {
		require.NoError(t, r.Validate(), "record %d", i)
		_, err := features.EncodeCredit(r.CreditRequest)
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, r.TransactionCount, r.SuccessfulTransactions+r.FailedTransactions)
	}
}

func TestFraudCSV_RoundTrip(t *testing.T) {
	recs := GenerateFraud(200, 0.1, 3)
	path := filepath.Join(t.TempDir(), "fraud.csv")

	var buf bytes.Buffer
	require.NoError(t, WriteFraudCSV(&buf, recs))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	l := NewLoader()
	got, err := l.LoadFraud(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Skipped())
	assert.Equal(t, recs, got)
}

func TestCreditCSV_RoundTrip(t *testing.T) {
	recs := GenerateCredit(200, 0.1, 3)
	path := filepath.Join(t.TempDir(), "credit.csv")

	var buf bytes.Buffer
	require.NoError(t, WriteCreditCSV(&buf, recs))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	got, err := NewLoader().LoadCredit(path)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestLoadFraudCSV_SkipsBadRows(t *testing.T) {
	csv := "transaction_id,amount,timestamp,is_fraud\n" +
		"a,10.5,2024-01-01T10:00:00Z,0\n" +
		"b,abc,2024-01-01T10:00:00Z,0\n" +
		"c,20,2024-01-01T11:00:00Z,2\n" +
		"d,30,2024-01-01T12:00:00Z,\n" +
		"e,,2024-01-01T12:00:00Z,1\n"
	path := filepath.Join(t.TempDir(), "fraud.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	l := NewLoader()
	got, err := l.LoadFraud(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, l.Skipped())

	assert.Equal(t, "a", got[0].TransactionID)
	require.NotNil(t, got[0].Amount)
	assert.Equal(t, 10.5, *got[0].Amount)

	// an empty amount is kept and left for the encoder to reject
	assert.Equal(t, "e", got[1].TransactionID)
	assert.Nil(t, got[1].Amount)
	assert.Equal(t, 1, got[1].Label)
}

func TestLoadCSV_MissingLabelColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credit.csv")
	require.NoError(t, os.WriteFile(path, []byte("user_id,transaction_count\nu1,10\n"), 0o600))

	_, err := NewLoader().LoadCredit(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaulted")
}

func TestLoadJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		skipped int
	}{
		{
			name:    "array",
			content: `[{"user_id":"u1","transaction_count":10,"defaulted":1},{"user_id":"u2","defaulted":0}]`,
			want:    2,
		},
		{
			name:    "stream",
			content: "{\"user_id\":\"u1\",\"defaulted\":0}\n{\"user_id\":\"u2\",\"defaulted\":1}\n{\"user_id\":\"u3\",\"defaulted\":5}\n",
			want:    2,
			skipped: 1,
		},
		{
			name:    "wrong field type",
			content: `[{"user_id":"u1","transaction_count":"ten","defaulted":1},{"user_id":"u2","defaulted":0}]`,
			want:    1,
			skipped: 1,
		},
		{
			name:    "empty",
			content: "  \n",
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credit.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			l := NewLoader()
			got, err := l.LoadCredit(path)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			assert.Equal(t, tt.skipped, l.Skipped())
		})
	}
}

func TestLoadJSON_Syntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraud.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"transaction_id":"a"} {"transaction_id":`), 0o600))

	_, err := NewLoader().LoadFraud(path)
	assert.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraud.parquet")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := NewLoader().LoadFraud(path)
	assert.Error(t, err)
}

type fakeSource struct {
	fraud []FraudRecord
	err   error
}

func (f fakeSource) FraudSamples(context.Context) ([]FraudRecord, error) { return f.fraud, f.err }
func (f fakeSource) CreditSamples(context.Context) ([]CreditRecord, error) {
	return nil, f.err
}

func TestFromStore(t *testing.T) {
	l := NewLoader()
	recs, err := l.FraudFromStore(context.Background(), fakeSource{fraud: GenerateFraud(5, 0.5, 1)})
	require.NoError(t, err)
	assert.Len(t, recs, 5)

	boom := errors.New("boom")
	_, err = l.CreditFromStore(context.Background(), fakeSource{err: boom})
	assert.ErrorIs(t, err, boom)
}
