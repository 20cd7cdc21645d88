package shim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clasper-run/clasper/internal/model"
)

// client is the shim's HTTP connection to the control plane. Decision,
// polling and ingest calls are retried on network error or 5xx with capped
// exponential backoff (spec §5: 500 ms -> 4 s, max_retries default 2);
// registration is a single attempt. Decision and polling calls are
// otherwise fail-closed on the caller's side.
type client struct {
	http       *http.Client
	baseURL    string
	token      string
	maxRetries int
}

func newClient(cfg Config) *client {
	return &client{
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.ClasperURL,
		maxRetries: cfg.MaxRetries,
	}
}

// setToken installs the adapter token minted by register, used on every
// subsequent authenticated call.
func (c *client) setToken(token string) { c.token = token }

// backoffDelay returns the capped exponential backoff delay for the given
// zero-based retry attempt: 500ms, 1s, 2s, 4s, 4s, ...
func backoffDelay(attempt int) time.Duration {
	const base = 500 * time.Millisecond
	const cap_ = 4 * time.Second
	d := base << attempt
	if d > cap_ || d <= 0 {
		return cap_
	}
	return d
}

// doWithRetry issues req, retrying idempotent-safe failures (network error,
// 5xx) up to c.maxRetries times with capped exponential backoff. The
// request body, if any, must be re-readable across attempts.
func (c *client) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("X-Adapter-Token", c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("control plane returned %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("control plane unreachable after %d attempts: %w", c.maxRetries+1, lastErr)
}

// register calls POST /adapters/register with the bootstrap secret and
// installs the returned token.
func (c *client) register(ctx context.Context, reg model.AdapterRegistration, bootstrapSecret string) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/adapters/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Adapter-Token", c.token)
	} else {
		req.Header.Set("X-Bootstrap-Secret", bootstrapSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("register adapter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register adapter: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode registration response: %w", err)
	}
	c.token = out.Token
	return nil
}

// requestDecision POSTs the execution request and decodes the resulting
// decision. Any network error, timeout, non-2xx status, or JSON-parse
// error is returned as-is: the caller fails closed (spec §4.6).
func (c *client) requestDecision(ctx context.Context, req model.ExecutionRequest) (model.Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.Decision{}, fmt.Errorf("encode execution request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, "/api/execution/request", body)
	if err != nil {
		return model.Decision{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Decision{}, fmt.Errorf("execution request: status %d", resp.StatusCode)
	}

	var d model.Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return model.Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

// pollResult is the decoded response of GET /api/execution/:execution_id.
type pollResult struct {
	ExecutionID  string       `json:"execution_id"`
	Effect       model.Effect `json:"effect"`
	DecisionID   string       `json:"decision_id"`
	ApprovalType *string      `json:"approval_type"`
}

// pollExecution fetches the current ruling for an execution. Any polling
// HTTP error is fail-closed: the caller aborts and raises (spec §4.6).
func (c *client) pollExecution(ctx context.Context, executionID string) (pollResult, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, "/api/execution/"+executionID, nil)
	if err != nil {
		return pollResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pollResult{}, fmt.Errorf("poll execution: status %d", resp.StatusCode)
	}

	var r pollResult
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return pollResult{}, fmt.Errorf("decode poll result: %w", err)
	}
	return r, nil
}

// ingest posts a telemetry envelope of the given kind. Failures here are
// intentionally not propagated by callers: governance was already enforced
// at decision time (spec §4.6, §7).
func (c *client) ingest(ctx context.Context, kind string, envelope interface{}) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", kind, err)
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, "/api/ingest/"+kind, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest %s: status %d", kind, resp.StatusCode)
	}
	return nil
}
