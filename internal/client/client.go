// Package client is a typed Go client for the scoring API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"risk-engine/internal/api"
	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
	"risk-engine/internal/ml"
	"risk-engine/internal/storage"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Message   string
	Outcome   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Outcome != "" {
		return fmt.Sprintf("risk api: %d %s: %s", e.Status, e.Outcome, e.Message)
	}
	return fmt.Sprintf("risk api: %d: %s", e.Status, e.Message)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: base, rest: r}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx).SetError(&api.ErrorResponse{})
}

func apiError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode(), Message: resp.String()}
	if body, ok := resp.Error().(*api.ErrorResponse); ok && body.Error != "" {
		e.Message = body.Error
		e.Outcome = body.Outcome
		e.RequestID = body.RequestID
	}
	return e
}

// ScoreFraud scores one transaction. For model-unavailable and invalid
// input answers it returns both the UNKNOWN/ERROR assessment the server
// sent and an *APIError.
func (c *Client) ScoreFraud(ctx context.Context, t features.Transaction) (*ensemble.FraudAssessment, error) {
	var out ensemble.FraudAssessment
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(t).
		SetResult(&out).
		Post(c.base + "/v1/fraud/score")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsSuccess() {
		return &out, nil
	}

	e := &APIError{Status: resp.StatusCode(), Message: resp.String()}
	var body ensemble.FraudAssessment
	if json.Unmarshal(resp.Body(), &body) == nil && body.RiskLevel != "" {
		e.Message = body.Explanation
		return &body, e
	}
	var er api.ErrorResponse
	if json.Unmarshal(resp.Body(), &er) == nil && er.Error != "" {
		e.Message, e.Outcome, e.RequestID = er.Error, er.Outcome, er.RequestID
	}
	return nil, e
}

// ExplainFraud returns the top n contributions; n <= 0 uses the server default.
func (c *Client) ExplainFraud(ctx context.Context, t features.Transaction, n int) (*api.ExplainResponse, error) {
	var out api.ExplainResponse
	req := c.request(ctx).SetBody(t).SetResult(&out)
	if n > 0 {
		req.SetQueryParam("n", strconv.Itoa(n))
	}
	resp, err := req.Post(c.base + "/v1/fraud/explain")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// RecordTransaction adds a completed transaction to the server's velocity
// history. Recorded is false when the transaction id was already known.
func (c *Client) RecordTransaction(ctx context.Context, t features.Transaction) (*api.RecordResponse, error) {
	var out api.RecordResponse
	resp, err := c.request(ctx).SetBody(t).SetResult(&out).Post(c.base + "/v1/fraud/record")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// ExplainCredit returns the top n contributions to a loan request's default
// probability; n <= 0 uses the server default.
func (c *Client) ExplainCredit(ctx context.Context, r features.CreditRequest, n int) (*api.CreditExplainResponse, error) {
	var out api.CreditExplainResponse
	req := c.request(ctx).SetBody(r).SetResult(&out)
	if n > 0 {
		req.SetQueryParam("n", strconv.Itoa(n))
	}
	resp, err := req.Post(c.base + "/v1/credit/explain")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// AssessCredit scores a loan request.
func (c *Client) AssessCredit(ctx context.Context, r features.CreditRequest) (*ensemble.CreditAssessment, error) {
	var out ensemble.CreditAssessment
	resp, err := c.request(ctx).SetBody(r).SetResult(&out).Post(c.base + "/v1/credit/assess")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// CreditRules fetches the decision rules down to depth (0 for the full tree).
func (c *Client) CreditRules(ctx context.Context, depth int) (string, error) {
	var out api.RulesResponse
	resp, err := c.request(ctx).
		SetQueryParam("depth", strconv.Itoa(depth)).
		SetResult(&out).
		Get(c.base + "/v1/credit/rules")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return "", apiError(resp)
	}
	return out.Rules, nil
}

// Health returns the readiness report. A 503 still carries a report, so
// it is returned without an error.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	resp, err := c.rest.R().SetContext(ctx).Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return nil, &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	var out api.HealthResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode health report: %w", err)
	}
	return &out, nil
}

// Models lists the registry status of every family.
func (c *Client) Models(ctx context.Context) ([]ensemble.ModelStatus, error) {
	var out []ensemble.ModelStatus
	resp, err := c.request(ctx).SetResult(&out).Get(c.base + "/v1/models")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return out, nil
}

// Versions lists the stored versions of family, newest first.
func (c *Client) Versions(ctx context.Context, family string) ([]storage.Version, error) {
	var out api.VersionsResponse
	resp, err := c.request(ctx).SetResult(&out).Get(c.base + "/v1/models/" + url.PathEscape(family) + "/versions")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return out.Versions, nil
}

// Drift reports recent score drift of family against its training baseline.
func (c *Client) Drift(ctx context.Context, family string) (*ml.DriftReport, error) {
	var out ml.DriftReport
	resp, err := c.request(ctx).SetResult(&out).Get(c.base + "/v1/models/" + url.PathEscape(family) + "/drift")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// Reload makes the server load the active artifact of family.
func (c *Client) Reload(ctx context.Context, family string) (*ensemble.ModelStatus, error) {
	return c.manage(ctx, "/v1/models/"+url.PathEscape(family)+"/reload")
}

// Activate switches family to version and reloads it.
func (c *Client) Activate(ctx context.Context, family, version string) (*ensemble.ModelStatus, error) {
	return c.manage(ctx, "/v1/models/"+url.PathEscape(family)+"/activate/"+url.PathEscape(version))
}

// Rollback re-activates the previous version of family.
func (c *Client) Rollback(ctx context.Context, family string) (*ensemble.ModelStatus, error) {
	return c.manage(ctx, "/v1/models/"+url.PathEscape(family)+"/rollback")
}

func (c *Client) manage(ctx context.Context, path string) (*ensemble.ModelStatus, error) {
	var out ensemble.ModelStatus
	resp, err := c.request(ctx).SetResult(&out).Post(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}
