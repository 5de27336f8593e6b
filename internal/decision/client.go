// Package decision calls the external trade-decision collaborator with
// a candidate market snapshot and returns its proposal, if any. The
// engine never trusts the answer: proposals are validated against the
// trade invariants before becoming signals, and that validation lives in
// model.TradeProposal, not here.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signal-enginev1/internal/model"
)

// Decider is the decision collaborator seen by the scanner.
type Decider interface {
	// Decide returns a proposal for a candidate state, or (nil, nil)
	// when the collaborator declines to trade.
	Decide(ctx context.Context, state *model.MarketState, candidateReason string, mode model.Mode) (*model.TradeProposal, error)
}

// ClientConfig configures the HTTP decision client.
type ClientConfig struct {
	URL     string // decide endpoint
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP Decider.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient builds an HTTP decision client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// request is the wire shape posted to the collaborator.
type request struct {
	State           *model.MarketState `json:"market_state"`
	CandidateReason string             `json:"candidate_reason"`
	Mode            model.Mode         `json:"mode"`
}

// response wraps the proposal. A declined trade comes back with
// decision "pass" and no proposal.
type response struct {
	Decision string               `json:"decision"` // "trade" or "pass"
	Proposal *model.TradeProposal `json:"proposal,omitempty"`
}

// Decide posts the snapshot and parses the answer.
func (c *Client) Decide(ctx context.Context, state *model.MarketState, candidateReason string, mode model.Mode) (*model.TradeProposal, error) {
	body, err := json.Marshal(request{
		State:           state,
		CandidateReason: candidateReason,
		Mode:            mode,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal decision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decision call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("decision status %d: %s", resp.StatusCode, raw)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode decision response: %w", err)
	}
	if out.Decision != "trade" || out.Proposal == nil {
		return nil, nil
	}
	return out.Proposal, nil
}
