package model

import (
	"fmt"
	"math"
	"time"
)

// TradeProposal is the decision collaborator's answer to a candidate
// market state. It mirrors a Signal's immutable fields plus a confidence
// in [0,1] and free-text rationale.
type TradeProposal struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Mode      Mode      `json:"mode"`
	Direction Direction `json:"direction"`

	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`

	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// ProposalError reports an internally inconsistent trade proposal.
// Invariant names the specific violated rule so rejection logs stay
// actionable. Rejected proposals are discarded, never persisted.
type ProposalError struct {
	Invariant string
	Detail    string
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("proposal validation failed [%s]: %s", e.Invariant, e.Detail)
}

// Validate checks the proposal's internal consistency before it may be
// accepted as a Signal.
//
// For longs: entry > stopLoss and every take-profit > entry, strictly
// ascending. Mirrored for shorts. Confidence must be in [0,1] and at
// least minConfidence.
func (p *TradeProposal) Validate(minConfidence float64) error {
	for _, v := range []struct {
		name  string
		value float64
	}{{"entry", p.Entry}, {"stop_loss", p.StopLoss}} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value <= 0 {
			return &ProposalError{Invariant: "price_sanity", Detail: fmt.Sprintf("%s = %v", v.name, v.value)}
		}
	}
	if p.Direction != Long && p.Direction != Short {
		return &ProposalError{Invariant: "direction", Detail: fmt.Sprintf("unknown direction %q", p.Direction)}
	}
	if p.Confidence < 0 || p.Confidence > 1 || math.IsNaN(p.Confidence) {
		return &ProposalError{Invariant: "confidence_range", Detail: fmt.Sprintf("confidence %v outside [0,1]", p.Confidence)}
	}
	if p.Confidence < minConfidence {
		return &ProposalError{Invariant: "confidence_floor", Detail: fmt.Sprintf("confidence %.2f below threshold %.2f", p.Confidence, minConfidence)}
	}
	if len(p.TakeProfits) < 1 || len(p.TakeProfits) > 3 {
		return &ProposalError{Invariant: "tp_count", Detail: fmt.Sprintf("%d take-profits, want 1-3", len(p.TakeProfits))}
	}

	switch p.Direction {
	case Long:
		if p.Entry <= p.StopLoss {
			return &ProposalError{Invariant: "long_stop_below_entry", Detail: fmt.Sprintf("entry %v <= stop %v", p.Entry, p.StopLoss)}
		}
		prev := p.Entry
		for i, tp := range p.TakeProfits {
			if tp <= prev {
				return &ProposalError{Invariant: "long_tp_ascending", Detail: fmt.Sprintf("tp%d %v <= %v", i+1, tp, prev)}
			}
			prev = tp
		}
	case Short:
		if p.Entry >= p.StopLoss {
			return &ProposalError{Invariant: "short_stop_above_entry", Detail: fmt.Sprintf("entry %v >= stop %v", p.Entry, p.StopLoss)}
		}
		prev := p.Entry
		for i, tp := range p.TakeProfits {
			if tp >= prev {
				return &ProposalError{Invariant: "short_tp_descending", Detail: fmt.Sprintf("tp%d %v >= %v", i+1, tp, prev)}
			}
			prev = tp
		}
	}
	return nil
}

// ToSignal converts an accepted proposal into a pending Signal.
// The id embeds symbol, timeframe, mode and creation time so re-insertion
// of the same proposal stays idempotent at the store.
func (p *TradeProposal) ToSignal(candidateReason string, createdAt time.Time) *Signal {
	tps := make([]float64, len(p.TakeProfits))
	copy(tps, p.TakeProfits)
	return &Signal{
		ID:              fmt.Sprintf("%s-%s-%s-%d", p.Symbol, p.Timeframe, p.Mode, createdAt.UnixNano()),
		Symbol:          p.Symbol,
		Timeframe:       p.Timeframe,
		Mode:            p.Mode,
		Direction:       p.Direction,
		Entry:           p.Entry,
		StopLoss:        p.StopLoss,
		TakeProfits:     tps,
		Confidence:      p.Confidence,
		Rationale:       p.Rationale,
		CandidateReason: candidateReason,
		Status:          StatusPending,
		CreatedAt:       createdAt.UTC(),
	}
}
