// Package intentx is a Go client for the IntentX REST API.
package intentx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// It has to cover the simulated settlement delay of an execute call.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the IntentX API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// APIError represents a non-2xx answer from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("intentx api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("intentx api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Parse submits natural language and returns the parsed intent.
func (c *Client) Parse(ctx context.Context, req SubmitRequest) (*Intent, error) {
	var out Intent
	if err := c.post(ctx, "/api/intent/parse", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute settles a parsed intent. The call blocks for the settlement delay.
func (c *Client) Execute(ctx context.Context, intentID string) (*Intent, error) {
	var out Intent
	if err := c.post(ctx, "/api/intent/execute", map[string]string{"intentId": intentID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetIntent fetches an intent by id.
func (c *Client) GetIntent(ctx context.Context, id string) (*Intent, error) {
	var out Intent
	if err := c.get(ctx, "/api/intent/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs fetches the lifecycle log of an intent.
func (c *Client) Logs(ctx context.Context, id string) (*LogsView, error) {
	var out LogsView
	if err := c.get(ctx, "/api/intent/"+url.PathEscape(id)+"/logs", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIntents returns all intents, newest first.
func (c *Client) ListIntents(ctx context.Context) ([]Intent, error) {
	var out []Intent
	if err := c.get(ctx, "/api/intents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch runs several intents end to end.
func (c *Client) Batch(ctx context.Context, items []SubmitRequest, metadata map[string]any) (*BatchResult, error) {
	var out BatchResult
	body := map[string]any{"intents": items}
	if metadata != nil {
		body["metadata"] = metadata
	}
	if err := c.post(ctx, "/api/intent/batch", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteGasless runs an intent through the sponsored account-abstraction path.
func (c *Client) ExecuteGasless(ctx context.Context, req GaslessRequest) (*GaslessResult, error) {
	var out GaslessResult
	if err := c.post(ctx, "/api/intent/aa-gasless", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentTransactions returns the newest ledger records. limit <= 0 uses the
// server default.
func (c *Client) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []Transaction
	if err := c.get(ctx, "/api/transactions/recent", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary returns the dashboard aggregate of the ledger.
func (c *Client) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	var out AnalyticsSummary
	if err := c.get(ctx, "/api/analytics/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vaults lists the vault catalogue.
func (c *Client) Vaults(ctx context.Context) ([]Vault, error) {
	var out []Vault
	if err := c.get(ctx, "/api/vaults", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VaultAction stakes into or unstakes from a vault.
func (c *Client) VaultAction(ctx context.Context, req VaultActionRequest) (*Vault, error) {
	var out Vault
	if err := c.post(ctx, "/api/vaults/action", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
