package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validLong() TradeProposal {
	return TradeProposal{
		Symbol:      "EURUSD",
		Timeframe:   "1h",
		Mode:        ModeStrict,
		Direction:   Long,
		Entry:       1.1000,
		StopLoss:    1.0950,
		TakeProfits: []float64{1.1100, 1.1200},
		Confidence:  0.8,
		Rationale:   "continuation",
	}
}

func validShort() TradeProposal {
	return TradeProposal{
		Symbol:      "EURUSD",
		Timeframe:   "1h",
		Mode:        ModeStrict,
		Direction:   Short,
		Entry:       200,
		StopLoss:    210,
		TakeProfits: []float64{190, 180},
		Confidence:  0.7,
	}
}

func TestValidate_AcceptsWellFormedProposals(t *testing.T) {
	long := validLong()
	if err := long.Validate(0.6); err != nil {
		t.Errorf("valid long rejected: %v", err)
	}
	short := validShort()
	if err := short.Validate(0.6); err != nil {
		t.Errorf("valid short rejected: %v", err)
	}
}

func TestValidate_RejectsByInvariant(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*TradeProposal)
		invariant string
	}{
		{"nan entry", func(p *TradeProposal) { p.Entry = math.NaN() }, "price_sanity"},
		{"zero stop", func(p *TradeProposal) { p.StopLoss = 0 }, "price_sanity"},
		{"unknown direction", func(p *TradeProposal) { p.Direction = "sideways" }, "direction"},
		{"confidence above one", func(p *TradeProposal) { p.Confidence = 1.2 }, "confidence_range"},
		{"confidence below floor", func(p *TradeProposal) { p.Confidence = 0.5 }, "confidence_floor"},
		{"no take profits", func(p *TradeProposal) { p.TakeProfits = nil }, "tp_count"},
		{"four take profits", func(p *TradeProposal) { p.TakeProfits = []float64{1.11, 1.12, 1.13, 1.14} }, "tp_count"},
		{"long stop above entry", func(p *TradeProposal) { p.StopLoss = 1.1050 }, "long_stop_below_entry"},
		{"long tp below entry", func(p *TradeProposal) { p.TakeProfits = []float64{1.0990} }, "long_tp_ascending"},
		{"long tps not ascending", func(p *TradeProposal) { p.TakeProfits = []float64{1.1200, 1.1100} }, "long_tp_ascending"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validLong()
			tc.mutate(&p)
			err := p.Validate(0.6)
			var pe *ProposalError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want ProposalError", err)
			}
			if pe.Invariant != tc.invariant {
				t.Errorf("invariant = %q, want %q", pe.Invariant, tc.invariant)
			}
		})
	}
}

func TestValidate_ShortSideMirrored(t *testing.T) {
	p := validShort()
	p.StopLoss = 195 // below entry, wrong side for a short
	err := p.Validate(0.6)
	var pe *ProposalError
	if !errors.As(err, &pe) || pe.Invariant != "short_stop_above_entry" {
		t.Errorf("err = %v, want short_stop_above_entry", err)
	}

	p = validShort()
	p.TakeProfits = []float64{190, 195} // moving back toward entry
	err = p.Validate(0.6)
	if !errors.As(err, &pe) || pe.Invariant != "short_tp_descending" {
		t.Errorf("err = %v, want short_tp_descending", err)
	}
}

func TestToSignal_BuildsPendingSignal(t *testing.T) {
	p := validLong()
	created := time.Unix(1700000000, 123).UTC()
	sig := p.ToSignal("bullish engulfing in uptrend", created)

	if sig.Status != StatusPending {
		t.Errorf("status = %s, want pending", sig.Status)
	}
	if sig.ID != "EURUSD-1h-strict-1700000000000000123" {
		t.Errorf("id = %q", sig.ID)
	}
	if sig.CandidateReason != "bullish engulfing in uptrend" {
		t.Errorf("candidate reason = %q", sig.CandidateReason)
	}
	if !sig.CreatedAt.Equal(created) {
		t.Errorf("created at = %v", sig.CreatedAt)
	}

	// The signal owns its own take-profit slice.
	sig.TakeProfits[0] = 99
	if p.TakeProfits[0] == 99 {
		t.Error("ToSignal must copy the take-profit slice")
	}
}
