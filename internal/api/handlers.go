package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
	"risk-engine/internal/storage"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Outcome   string `json:"outcome,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ExplainResponse lists the strongest linear contributions of a transaction.
type ExplainResponse struct {
	TransactionID string                  `json:"transaction_id"`
	TopFactors    []ensemble.Contribution `json:"top_factors"`
}

// CreditExplainResponse lists the strongest linear contributions of a
// loan request.
type CreditExplainResponse struct {
	UserID     string                  `json:"user_id"`
	TopFactors []ensemble.Contribution `json:"top_factors"`
}

// RecordResponse reports whether a transaction entered the velocity history.
type RecordResponse struct {
	TransactionID string `json:"transaction_id"`
	Recorded      bool   `json:"recorded"`
}

// RulesResponse carries the exported credit decision rules.
type RulesResponse struct {
	MaxDepth int    `json:"max_depth"`
	Rules    string `json:"rules"`
}

// HealthResponse reports overall readiness.
type HealthResponse struct {
	Status string                 `json:"status"`
	Models []ensemble.ModelStatus `json:"models"`
}

// VersionsResponse lists stored versions of one family.
type VersionsResponse struct {
	Family   string            `json:"family"`
	Versions []storage.Version `json:"versions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, outcome string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Outcome: outcome, RequestID: requestIDFrom(r.Context())})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps a scoring outcome to its HTTP status.
func statusFor(o ensemble.Outcome) int {
	switch o {
	case ensemble.OutcomeOK:
		return http.StatusOK
	case ensemble.OutcomeModelUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func (s *Server) handleFraudScore(w http.ResponseWriter, r *http.Request) {
	var t features.Transaction
	if err := decodeBody(w, r, &t); err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	res := s.fraud.Score(t)
	if res.Fraud == nil {
		writeError(w, r, statusFor(res.Outcome), res.Outcome.String(), res.Err)
		return
	}
	writeJSON(w, statusFor(res.Outcome), res.Fraud)
}

// topN parses the optional n query parameter; zero means the default.
func topN(r *http.Request) (int, error) {
	v := r.URL.Query().Get("n")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("n must be a positive integer, got %q", v)
	}
	return n, nil
}

// writeExplainError separates a missing engine from a rejected request.
func writeExplainError(w http.ResponseWriter, r *http.Request, err error) {
	var notTrained *ensemble.ModelNotTrainedError
	if errors.As(err, &notTrained) {
		writeError(w, r, http.StatusServiceUnavailable, ensemble.OutcomeModelUnavailable.String(), err)
		return
	}
	writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
}

func (s *Server) handleFraudExplain(w http.ResponseWriter, r *http.Request) {
	n, err := topN(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	var t features.Transaction
	if err := decodeBody(w, r, &t); err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	factors, err := s.fraud.Explain(t, n)
	if err != nil {
		writeExplainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{TransactionID: t.TransactionID, TopFactors: factors})
}

// handleFraudRecord adds a completed transaction to the velocity history
// read by later scoring calls.
func (s *Server) handleFraudRecord(w http.ResponseWriter, r *http.Request) {
	var t features.Transaction
	if err := decodeBody(w, r, &t); err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	recorded, err := s.fraud.Record(t)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ensemble.ErrVelocityDisabled) {
			status = http.StatusNotImplemented
		}
		writeError(w, r, status, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{TransactionID: t.TransactionID, Recorded: recorded})
}

func (s *Server) handleCreditAssess(w http.ResponseWriter, r *http.Request) {
	var req features.CreditRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	res := s.credit.Assess(req)
	if !res.OK() {
		writeError(w, r, statusFor(res.Outcome), res.Outcome.String(), res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Credit)
}

func (s *Server) handleCreditExplain(w http.ResponseWriter, r *http.Request) {
	n, err := topN(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	var req features.CreditRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ensemble.OutcomeInvalidInput.String(), err)
		return
	}
	factors, err := s.credit.Explain(req, n)
	if err != nil {
		writeExplainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditExplainResponse{UserID: req.UserID, TopFactors: factors})
}

func (s *Server) handleCreditRules(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "", fmt.Errorf("depth must be a non-negative integer, got %q", v))
			return
		}
		depth = parsed
	}
	rules, err := s.credit.Rules(depth)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, ensemble.OutcomeModelUnavailable.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, RulesResponse{MaxDepth: depth, Rules: rules})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	models := s.reg.Status()
	loaded := 0
	for _, m := range models {
		if m.Loaded {
			loaded++
		}
	}
	resp := HealthResponse{Status: "ok", Models: models}
	status := http.StatusOK
	switch {
	case loaded == 0:
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case loaded < len(models):
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Status())
}

// handleDrift needs no store, only the registry's score windows.
func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.reg.Drift(mux.Vars(r)["family"], time.Now())
	if err != nil {
		writeError(w, r, http.StatusNotFound, "", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// family validates the {family} path variable.
func (s *Server) family(w http.ResponseWriter, r *http.Request) (string, bool) {
	family := mux.Vars(r)["family"]
	if !slices.Contains(s.reg.Families(), family) {
		writeError(w, r, http.StatusNotFound, "", fmt.Errorf("unknown model family %q", family))
		return "", false
	}
	if s.store == nil {
		writeError(w, r, http.StatusNotImplemented, "", errors.New("no artifact store configured"))
		return "", false
	}
	return family, true
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	family, ok := s.family(w, r)
	if !ok {
		return
	}
	versions, err := s.store.Versions(family)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	if versions == nil {
		versions = []storage.Version{}
	}
	writeJSON(w, http.StatusOK, VersionsResponse{Family: family, Versions: versions})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	family, ok := s.family(w, r)
	if !ok {
		return
	}
	s.reload(w, r, family, "")
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	family, ok := s.family(w, r)
	if !ok {
		return
	}
	prev, err := s.activeVersion(family)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	version := mux.Vars(r)["version"]
	if err := s.store.Activate(family, version); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrVersionNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, r, status, "", err)
		return
	}
	s.reload(w, r, family, prev)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	family, ok := s.family(w, r)
	if !ok {
		return
	}
	prev, err := s.activeVersion(family)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	if _, err := s.store.Rollback(family); err != nil {
		writeError(w, r, http.StatusConflict, "", err)
		return
	}
	s.reload(w, r, family, prev)
}

// activeVersion returns the store's active version of family, or "" when
// none is set.
func (s *Server) activeVersion(family string) (string, error) {
	versions, err := s.store.Versions(family)
	if err != nil {
		return "", err
	}
	for _, v := range versions {
		if v.Active {
			return v.Version, nil
		}
	}
	return "", nil
}

// reload installs the store's active artifact and answers with the new
// registry status. When loading fails and prev is set, prev is made
// active again so the store keeps pointing at the served engine.
func (s *Server) reload(w http.ResponseWriter, r *http.Request, family, prev string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	if _, err := s.reg.Reload(ctx, s.store, family); err != nil {
		if prev != "" {
			if rerr := s.store.Activate(family, prev); rerr != nil {
				log.Error().Err(rerr).Str("family", family).Str("version", prev).Msg("Failed to restore active version")
			} else {
				log.Warn().Str("family", family).Str("version", prev).Msg("Restored active version after failed reload")
			}
		}
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNoActiveVersion) {
			status = http.StatusConflict
		}
		writeError(w, r, status, "", err)
		return
	}
	for _, st := range s.reg.Status() {
		if st.Family == family {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
}
