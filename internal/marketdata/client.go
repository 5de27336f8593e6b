// Package marketdata fetches historical bars over REST and streams last
// trade prices over a websocket. Bars are validated before they leave
// this package: one inconsistent bar rejects the whole batch.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"signal-enginev1/internal/model"
)

const (
	maxFetchAttempts = 3
	baseRetryDelay   = 500 * time.Millisecond
)

// ClientConfig configures the REST bar client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches bars from the market-data provider.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	session *Session
}

// NewClient builds a bar client sharing the session's HTTP transport.
func NewClient(cfg ClientConfig, session *Session) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		session: session,
	}
}

// barEnvelope is the provider's JSON response. Each row is
// [unixSeconds, open, high, low, close, volume].
type barEnvelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    [][]float64 `json:"data"`
}

// FetchBars returns up to count bars for symbol/timeframe, oldest
// first, validated and sorted. Transient failures are retried with
// exponential backoff; an empty result wraps ErrInsufficientData.
func (c *Client) FetchBars(ctx context.Context, symbol, timeframe string, count int) ([]model.Bar, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			log.Printf("[marketdata] retrying %s/%s fetch (attempt %d)", symbol, timeframe, attempt+1)
		}

		bars, retryable, err := c.fetchOnce(ctx, symbol, timeframe, count)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch bars %s/%s: %w", symbol, timeframe, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, symbol, timeframe string, count int) ([]model.Bar, bool, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, true, err
	}

	body, _ := json.Marshal(map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"count":     count,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/historical/bars", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.session.Invalidate()
		return nil, true, fmt.Errorf("auth rejected (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	var env barEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, true, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Status {
		return nil, false, fmt.Errorf("provider error: %s", env.Message)
	}

	bars, err := parseBars(env.Data)
	if err != nil {
		return nil, false, err
	}
	return bars, false, nil
}

// parseBars converts provider rows into validated, sorted bars. Any
// malformed row rejects the batch.
func parseBars(rows [][]float64) ([]model.Bar, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty bar response: %w", model.ErrInsufficientData)
	}

	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, &model.InvalidBarError{Index: i, Reason: fmt.Sprintf("row has %d fields, want 6", len(row))}
		}
		bars = append(bars, model.Bar{
			TS:     time.Unix(int64(row[0]), 0).UTC(),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}

	bars = model.SortBars(bars)
	if err := model.ValidateBars(bars); err != nil {
		return nil, err
	}
	return bars, nil
}
