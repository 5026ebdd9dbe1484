// Package report talks to the external reporting microservice over REST and
// builds claim/transaction summaries for it. Reporting failures never touch
// the evaluation batches; they are logged and surfaced to the caller only.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every call to the reporting peer.
const DefaultTimeout = 10 * time.Second

var (
	ErrNotFound     = errors.New("report: not found")
	ErrAccessDenied = errors.New("report: access denied")
	ErrUnavailable  = errors.New("report: service unavailable")
)

// Summary is one reporting-period rollup for a single account.
type Summary struct {
	ID                string    `json:"id,omitempty"`
	OwnerID           string    `json:"owner_id"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	ClaimsTotal       int       `json:"claims_total"`
	ClaimsApproved    int       `json:"claims_approved"`
	ClaimsRejected    int       `json:"claims_rejected"`
	AmountRequested   int64     `json:"amount_requested"`
	AmountPaid        int64     `json:"amount_paid"`
	TransactionsTotal int       `json:"transactions_total"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}

// Client is a thin REST client for the reporting service.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a Client for the given base URL, e.g.
// "http://reports:8081/api/v1".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create posts a new summary and returns it with the server-assigned id.
func (c *Client) Create(ctx context.Context, s Summary) (Summary, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Summary{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summaries", bytes.NewReader(body))
	if err != nil {
		return Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var created Summary
	if err := c.do(req, http.StatusCreated, &created); err != nil {
		return Summary{}, err
	}
	return created, nil
}

// Last returns the most recent summaries, newest first.
func (c *Client) Last(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	u := c.baseURL + "/summaries?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out []Summary
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one summary by id.
func (c *Client) Get(ctx context.Context, id string) (Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/summaries/"+url.PathEscape(id), nil)
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return Summary{}, err
	}
	return out, nil
}

// Delete removes one summary by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/summaries/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusNoContent, nil)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == want:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("report: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
