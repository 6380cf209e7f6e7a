// Package predict is the HTTP client for the external urgency model.
//
// The model service is expected to answer POST {endpoint}/predict with
// {"urgency": <0..100>}. Anything else is an error; the caller decides how
// to degrade.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

var ErrMalformedResponse = errors.New("predict: malformed response")

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client talks to an external model service for urgency estimates.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	now      func() time.Time
}

var _ urgency.Predictor = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, urgency.ErrNoPredictor
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

type features struct {
	Model      string `json:"model,omitempty"`
	ItemID     int64  `json:"item_id"`
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	Source     string `json:"source"`
	ExpiryDate string `json:"expiry_date"`
	AgeDays    int    `json:"age_days"`
}

type prediction struct {
	Urgency *float64 `json:"urgency"`
}

// Predict returns the model's urgency estimate for it.
func (c *Client) Predict(ctx context.Context, it expiry.Item) (float64, error) {
	payload := features{
		Model:      c.model,
		ItemID:     it.ID,
		Category:   it.Category,
		Priority:   string(it.Priority),
		Source:     it.Source,
		ExpiryDate: it.ExpiryDate,
	}
	if !it.CreatedAt.IsZero() {
		payload.AgeDays = int(c.now().Sub(it.CreatedAt).Hours() / 24)
	}

	var out prediction
	if err := c.post(ctx, "/predict", payload, &out); err != nil {
		return 0, err
	}
	if out.Urgency == nil {
		return 0, fmt.Errorf("%w: missing urgency", ErrMalformedResponse)
	}
	return *out.Urgency, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
