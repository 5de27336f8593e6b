// Package lifecycle advances persisted signals through their state
// machine:
//
//	pending → triggered → {win, loss, breakeven, timeout}
//	pending → expired
//
// The tracker exclusively owns status transitions. It is handed a bar
// window per call and is synchronous; callers fetch bars and persist the
// mutated signal. A signal that neither closes nor times out is simply
// re-evaluated on the next cycle with a larger window.
package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"signal-enginev1/internal/model"
	"signal-enginev1/internal/outcome"
)

// InvariantViolation reports an attempted transition the state machine
// does not admit, such as advancing a terminal signal. It is a
// programming-error-class fault: callers log it loudly and move on, the
// signal is never mutated.
type InvariantViolation struct {
	SignalID string
	From     model.Status
	Detail   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("lifecycle invariant violation on %s (status %s): %s", e.SignalID, e.From, e.Detail)
}

// Config holds the bar-count thresholds for the two time-based exits.
type Config struct {
	// ExpiryBars closes a pending signal as expired once this many bars
	// strictly after creation have printed without touching the entry.
	ExpiryBars int

	// TimeoutBars closes a triggered signal as a timeout once this many
	// bars strictly after the trigger have printed without hitting the
	// stop or any take-profit.
	TimeoutBars int
}

// DefaultConfig returns the standard scan thresholds.
func DefaultConfig() Config {
	return Config{ExpiryBars: 12, TimeoutBars: 50}
}

// Tracker advances signals. Safe for concurrent use across distinct
// signals; a single signal's bars must be evaluated by one goroutine at
// a time.
type Tracker struct {
	cfg Config
	log *slog.Logger
}

// NewTracker builds a tracker. A nil logger falls back to slog.Default.
func NewTracker(cfg Config, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{cfg: cfg, log: log}
}

// Advance evaluates one signal against a bar window and applies at most
// one terminal transition. Bars may arrive out of order; they are
// re-sorted chronologically before evaluation. A pending signal that
// triggers mid-window continues into close evaluation within the same
// call. Returns whether the signal was mutated.
func (t *Tracker) Advance(sig *model.Signal, bars []model.Bar) (bool, error) {
	if sig.Status.Terminal() {
		return false, &InvariantViolation{
			SignalID: sig.ID,
			From:     sig.Status,
			Detail:   "advance on terminal signal",
		}
	}
	bars = model.SortBars(bars)

	changed := false
	if sig.Status == model.StatusPending {
		advanced, terminal := t.evalPending(sig, bars)
		if terminal {
			return true, nil
		}
		if !advanced {
			return false, nil
		}
		changed = true
	}
	if t.evalTriggered(sig, bars) {
		return true, nil
	}
	return changed, nil
}

// evalPending looks for the first bar at or after creation whose
// [low,high] interval contains the entry. No trigger and enough bars
// strictly after creation marks the signal expired; outcome fields stay
// unset. Returns (triggered, reached terminal state).
func (t *Tracker) evalPending(sig *model.Signal, bars []model.Bar) (bool, bool) {
	for _, b := range bars {
		if b.TS.Before(sig.CreatedAt) {
			continue
		}
		if b.Low <= sig.Entry && sig.Entry <= b.High {
			ts := b.TS
			sig.Status = model.StatusTriggered
			sig.TriggeredAt = &ts
			t.log.Info("signal triggered",
				"signal_id", sig.ID,
				"symbol", sig.Symbol,
				"entry", sig.Entry,
				"triggered_at", ts)
			return true, false
		}
	}

	afterCreation := 0
	for _, b := range bars {
		if b.TS.After(sig.CreatedAt) {
			afterCreation++
		}
	}
	if t.cfg.ExpiryBars > 0 && afterCreation >= t.cfg.ExpiryBars {
		sig.Status = model.StatusExpired
		t.log.Info("signal expired",
			"signal_id", sig.ID,
			"symbol", sig.Symbol,
			"bars_waited", afterCreation)
		return false, true
	}
	return false, false
}

// evalTriggered scans bars strictly after the trigger, oldest first,
// and closes on the first stop or take-profit touch. The stop-loss is
// checked before any take-profit on every bar: the intrabar path is
// unknown from OHLC alone, so the adverse move is assumed first.
// Take-profits are checked in stored order, nearest to entry first.
// Returns whether the signal closed.
func (t *Tracker) evalTriggered(sig *model.Signal, bars []model.Bar) bool {
	post := bars[:0:0]
	for _, b := range bars {
		if b.TS.After(*sig.TriggeredAt) {
			post = append(post, b)
		}
	}

	for _, b := range post {
		if stopHit(sig, b) {
			t.close(sig, model.HitStopLoss, sig.StopLoss, b.TS)
			return true
		}
		for i, tp := range sig.TakeProfits {
			if tpHit(sig, b, tp) {
				t.close(sig, model.TPHit(i), tp, b.TS)
				return true
			}
		}
	}

	if t.cfg.TimeoutBars > 0 && len(post) >= t.cfg.TimeoutBars {
		last := post[len(post)-1]
		t.close(sig, model.HitTimeout, last.Close, last.TS)
		return true
	}
	return false
}

func stopHit(sig *model.Signal, b model.Bar) bool {
	if sig.Direction == model.Long {
		return b.Low <= sig.StopLoss
	}
	return b.High >= sig.StopLoss
}

func tpHit(sig *model.Signal, b model.Bar, tp float64) bool {
	if sig.Direction == model.Long {
		return b.High >= tp
	}
	return b.Low <= tp
}

// close applies the terminal transition and writes the outcome fields
// exactly once.
func (t *Tracker) close(sig *model.Signal, hit model.HitKind, hitPrice float64, at time.Time) {
	res := outcome.Evaluate(sig.Direction, sig.Entry, sig.StopLoss, hit, hitPrice)
	ts := at
	sig.Status = statusFor(res.Category)
	sig.ClosedAt = &ts
	sig.Outcome = res.Category
	sig.Detail = &model.OutcomeDetail{
		Hit:          hit,
		RiskMultiple: res.RiskMultiple,
		HitPrice:     hitPrice,
		HitTime:      ts,
	}
	t.log.Info("signal closed",
		"signal_id", sig.ID,
		"symbol", sig.Symbol,
		"hit", string(hit),
		"outcome", string(res.Category),
		"risk_multiple", res.RiskMultiple)
}

func statusFor(cat model.Outcome) model.Status {
	switch cat {
	case model.OutcomeWin:
		return model.StatusWin
	case model.OutcomeLoss:
		return model.StatusLoss
	case model.OutcomeBreakeven:
		return model.StatusBreakeven
	default:
		return model.StatusTimeout
	}
}
