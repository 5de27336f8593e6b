package model

import (
	"fmt"
	"time"
)

// Direction is the side of a proposed trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Mode selects the operating profile of the candidate filter.
// Relaxed additionally enables the momentum-extreme heuristic.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// Status is the lifecycle state of a signal. Transitions are owned
// exclusively by the lifecycle tracker:
//
//	pending → triggered → {win, loss, breakeven, timeout}
//	pending → expired
//
// Terminal states are immutable once set.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTriggered Status = "triggered"
	StatusWin       Status = "win"
	StatusLoss      Status = "loss"
	StatusBreakeven Status = "breakeven"
	StatusTimeout   Status = "timeout"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusWin, StatusLoss, StatusBreakeven, StatusTimeout, StatusExpired:
		return true
	}
	return false
}

// HitKind identifies which price boundary closed a triggered trade.
type HitKind string

const (
	HitStopLoss HitKind = "sl"
	HitTP1      HitKind = "tp1"
	HitTP2      HitKind = "tp2"
	HitTP3      HitKind = "tp3"
	HitTimeout  HitKind = "timeout"
)

// TPHit returns the HitKind for the take-profit at the given stored index.
func TPHit(index int) HitKind {
	return HitKind(fmt.Sprintf("tp%d", index+1))
}

// Outcome is the final classification of a closed trade.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
	OutcomeTimeout   Outcome = "timeout"
)

// OutcomeDetail records the numeric result of a closed trade.
// Written exactly once, at closure.
//
// RiskMultiple is price-derived only for take-profit hits. Stop-loss
// closes are fixed at exactly -1 and timeouts at exactly 0 regardless of
// the recorded hit price. That is a deliberate contract inherited from
// the historical results this engine must stay comparable with, not a
// rounding artifact.
type OutcomeDetail struct {
	Hit          HitKind   `json:"hit"`
	RiskMultiple float64   `json:"risk_multiple"` // rounded to 2 decimals
	HitPrice     float64   `json:"hit_price"`
	HitTime      time.Time `json:"hit_time"`
}

// Signal is a persisted trade record. Entry, StopLoss, TakeProfits and
// Direction never change after creation; only status, timestamps and
// outcome fields mutate, and only the lifecycle tracker writes them.
type Signal struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Mode      Mode      `json:"mode"`
	Direction Direction `json:"direction"`

	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"` // 1-3 prices, nearest to entry first

	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
	CandidateReason string  `json:"candidate_reason"`

	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	Outcome     Outcome        `json:"outcome,omitempty"`
	Detail      *OutcomeDetail `json:"outcome_detail,omitempty"`
}

// Open reports whether the signal still needs lifecycle evaluation.
func (s *Signal) Open() bool {
	return !s.Status.Terminal()
}
