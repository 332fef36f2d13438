package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
	"risk-engine/internal/ml"
	"risk-engine/internal/policy"
	"risk-engine/internal/storage"
)

type recordingMetrics struct {
	requests map[string]int
	streams  float64
}

func (m *recordingMetrics) RequestInc(route string, code int) {
	m.requests[route]++
}

func (m *recordingMetrics) StreamClientsAdd(delta float64) { m.streams += delta }

type fixture struct {
	reg     *ensemble.Registry
	store   *storage.Store
	metrics *recordingMetrics
	handler http.Handler
}

func newFixture(t *testing.T, install bool) *fixture {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := ensemble.NewRegistry(nil)
	if install {
		_, err = reg.Install(artifact.Constant(common.FamilyFraud, 0.1))
		require.NoError(t, err)
		_, err = reg.Install(artifact.Constant(common.FamilyCredit, 0.42))
		require.NoError(t, err)
	}
	m := &recordingMetrics{requests: map[string]int{}}
	srv := New(reg,
		ensemble.NewFraudScorer(reg, nil),
		ensemble.NewCreditScorer(reg, nil),
		store, m, Options{RequestTimeout: time.Second, StreamPing: time.Second})
	return &fixture{reg: reg, store: store, metrics: m, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func transaction(amount float64) features.Transaction {
	return features.Transaction{
		TransactionID:          "tx-1",
		UserID:                 "user-1",
		Amount:                 &amount,
		Timestamp:              "2024-03-05T14:30:00Z",
		MerchantName:           "Corner Shop",
		DeviceFingerprint:      "dev-a",
		KnownDeviceFingerprint: "dev-a",
	}
}

func creditRequest() features.CreditRequest {
	return features.CreditRequest{
		UserID:                 "m-1",
		LoanAmountRequested:    1500,
		TotalTransactionVolume: 90000,
		AvgTransactionAmount:   150,
		TransactionCount:       600,
		AccountAgeDays:         400,
		SuccessfulTransactions: 590,
		FailedTransactions:     10,
		AvgDailyBalance:        4000,
	}
}

func TestFraudScore(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/fraud/score", transaction(50))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var got ensemble.FraudAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Equal(t, policy.TierLow, got.RiskLevel)
	assert.Equal(t, policy.ActionApprove, got.RecommendedAction)
	assert.Len(t, got.ModelScores, 4)
	assert.Equal(t, 1, f.metrics.requests["/v1/fraud/score"])
}

func TestFraudScore_Errors(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/fraud/score", transaction(-5))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var got ensemble.FraudAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, policy.TierError, got.RiskLevel)
	assert.Equal(t, policy.ActionReview, got.RecommendedAction)

	req := httptest.NewRequest(http.MethodPost, "/v1/fraud/score", strings.NewReader("{not json"))
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, "req-42", e.RequestID)
	assert.Equal(t, "invalid_input", e.Outcome)

	rec = f.do(t, http.MethodGet, "/v1/fraud/score", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFraudScore_ModelUnavailable(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/v1/fraud/score", transaction(50))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got ensemble.FraudAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, policy.TierUnknown, got.RiskLevel)
	assert.Equal(t, policy.ActionReview, got.RecommendedAction)
}

func TestModelDrift(t *testing.T) {
	f := newFixture(t, true)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/fraud/score", transaction(50)).Code)

	rec := f.do(t, http.MethodGet, "/v1/models/fraud/drift", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got ml.DriftReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, common.FamilyFraud, got.Family)
	assert.Equal(t, 1, got.Samples)
	assert.Equal(t, ml.DriftNoBaseline, got.Severity)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/models/weather/drift", nil).Code)
}

func TestFraudExplain(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/fraud/explain?n=3", transaction(50))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Len(t, got.TopFactors, 3)

	rec = f.do(t, http.MethodPost, "/v1/fraud/explain?n=zero", transaction(50))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := newFixture(t, false)
	rec = empty.do(t, http.MethodPost, "/v1/fraud/explain", transaction(50))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreditAssess(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/credit/assess", creditRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got ensemble.CreditAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 619, got.CreditScore)
	assert.Equal(t, policy.TierFair, got.Tier)
	assert.True(t, got.IsEligible)
	assert.NotNil(t, got.RiskFactors)

	bad := creditRequest()
	bad.LoanAmountRequested = 0
	rec = f.do(t, http.MethodPost, "/v1/credit/assess", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := newFixture(t, false)
	rec = empty.do(t, http.MethodPost, "/v1/credit/assess", creditRequest())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreditExplain(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/credit/explain?n=4", creditRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got CreditExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m-1", got.UserID)
	assert.Len(t, got.TopFactors, 4)

	bad := creditRequest()
	bad.LoanAmountRequested = 0
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/credit/explain", bad).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/credit/explain?n=-2", creditRequest()).Code)

	empty := newFixture(t, false)
	rec = empty.do(t, http.MethodPost, "/v1/credit/explain", creditRequest())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFraudRecord(t *testing.T) {
	reg := ensemble.NewRegistry(nil)
	_, err := reg.Install(artifact.Constant(common.FamilyFraud, 0.1))
	require.NoError(t, err)
	fraud := ensemble.NewFraudScorer(reg, nil, ensemble.WithVelocity(features.NewVelocityTracker(time.Hour, 8)))
	f := &fixture{handler: New(reg, fraud, ensemble.NewCreditScorer(reg, nil), nil, nil, Options{}).Handler()}

	rec := f.do(t, http.MethodPost, "/v1/fraud/record", transaction(50))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got RecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Recorded)

	rec = f.do(t, http.MethodPost, "/v1/fraud/record", transaction(50))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Recorded)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/fraud/record", transaction(-1)).Code)

	plain := newFixture(t, true)
	assert.Equal(t, http.StatusNotImplemented, plain.do(t, http.MethodPost, "/v1/fraud/record", transaction(50)).Code)
}

func TestCreditRules(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/v1/credit/rules?depth=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got RulesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.MaxDepth)
	assert.Contains(t, got.Rules, "class: 0")

	rec = f.do(t, http.MethodGet, "/v1/credit/rules?depth=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		install []string
		status  int
		want    string
	}{
		{"nothing loaded", nil, http.StatusServiceUnavailable, "unavailable"},
		{"fraud only", []string{common.FamilyFraud}, http.StatusOK, "degraded"},
		{"all loaded", []string{common.FamilyFraud, common.FamilyCredit}, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			for _, family := range tt.install {
				_, err := f.reg.Install(artifact.Constant(family, 0.3))
				require.NoError(t, err)
			}
			rec := f.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.status, rec.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.Models, 2)
		})
	}
}

func TestModelLifecycle(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/v1/models/fraud/reload", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "no active version yet")

	first := artifact.Constant(common.FamilyFraud, 0.1)
	second := artifact.Constant(common.FamilyFraud, 0.7)
	for _, a := range []*artifact.Artifact{first, second} {
		_, err := f.store.SaveArtifact(a)
		require.NoError(t, err)
	}

	rec = f.do(t, http.MethodPost, "/v1/models/fraud/activate/"+second.Version, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st ensemble.ModelStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Loaded)
	assert.Equal(t, second.Version, st.Version)

	rec = f.do(t, http.MethodGet, "/v1/models/fraud/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var vs VersionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vs))
	require.Len(t, vs.Versions, 2)
	assert.True(t, vs.Versions[0].Active)

	rec = f.do(t, http.MethodPost, "/v1/models/fraud/rollback", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e, err := f.reg.Get(common.FamilyFraud)
	require.NoError(t, err)
	assert.Equal(t, first.Version, e.Version())

	rec = f.do(t, http.MethodPost, "/v1/models/fraud/rollback", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/models/fraud/activate/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/models/weather/reload", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var models []ensemble.ModelStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Len(t, models, 2)
	assert.Equal(t, 2, f.metrics.requests["/v1/models/{family}/rollback"])
}

// unreadableStore fails to serve the artifacts listed in broken.
type unreadableStore struct {
	*storage.Store
	broken map[string]bool
}

func (s *unreadableStore) Active(ctx context.Context, family string) (*artifact.Artifact, error) {
	a, err := s.Store.Active(ctx, family)
	if err == nil && s.broken[a.Version] {
		return nil, errors.New("artifact unreadable")
	}
	return a, err
}

func activeOf(t *testing.T, store VersionStore, family string) string {
	t.Helper()
	versions, err := store.Versions(family)
	require.NoError(t, err)
	for _, v := range versions {
		if v.Active {
			return v.Version
		}
	}
	return ""
}

func TestModelLifecycle_FailedReloadRestoresActive(t *testing.T) {
	base, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })
	store := &unreadableStore{Store: base, broken: map[string]bool{}}

	reg := ensemble.NewRegistry(nil)
	f := &fixture{reg: reg, handler: New(reg, ensemble.NewFraudScorer(reg, nil), ensemble.NewCreditScorer(reg, nil), store, nil, Options{RequestTimeout: time.Second}).Handler()}

	first := artifact.Constant(common.FamilyFraud, 0.1)
	second := artifact.Constant(common.FamilyFraud, 0.7)
	for _, a := range []*artifact.Artifact{first, second} {
		_, err := base.SaveArtifact(a)
		require.NoError(t, err)
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/models/fraud/activate/"+first.Version, nil).Code)

	store.broken[second.Version] = true
	rec := f.do(t, http.MethodPost, "/v1/models/fraud/activate/"+second.Version, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, first.Version, activeOf(t, store, common.FamilyFraud))
	e, err := reg.Get(common.FamilyFraud)
	require.NoError(t, err)
	assert.Equal(t, first.Version, e.Version())

	delete(store.broken, second.Version)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/models/fraud/activate/"+second.Version, nil).Code)

	store.broken[first.Version] = true
	rec = f.do(t, http.MethodPost, "/v1/models/fraud/rollback", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, second.Version, activeOf(t, store, common.FamilyFraud))
	e, err = reg.Get(common.FamilyFraud)
	require.NoError(t, err)
	assert.Equal(t, second.Version, e.Version())
}

func TestModelRoutesWithoutStore(t *testing.T) {
	reg := ensemble.NewRegistry(nil)
	srv := New(reg, ensemble.NewFraudScorer(reg, nil), ensemble.NewCreditScorer(reg, nil), nil, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/models/credit/reload", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestFraudStream(t *testing.T) {
	f := newFixture(t, true)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/fraud/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(transaction(50)))
	var reply StreamMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ok", reply.Outcome)
	require.NotNil(t, reply.Assessment)
	assert.Equal(t, policy.TierLow, reply.Assessment.RiskLevel)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	reply = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid_input", reply.Outcome)
	assert.Contains(t, reply.Error, "invalid transaction JSON")

	require.NoError(t, conn.WriteJSON(transaction(-1)))
	reply = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid_input", reply.Outcome)
	require.NotNil(t, reply.Assessment)
	assert.Equal(t, policy.TierError, reply.Assessment.RiskLevel)
}
