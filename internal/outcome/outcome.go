// Package outcome maps a closed trade's hit to its risk-multiple and
// final classification.
//
// Only take-profit hits use a price-derived multiple. Stop-loss closes
// are pinned to exactly -1 and timeouts to exactly 0 no matter what the
// recorded hit price says; the recorded hit price is informational for
// those two hit kinds.
package outcome

import (
	"math"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/model"
)

// Result is the computed outcome for one closed trade.
type Result struct {
	Category     model.Outcome
	RiskMultiple float64 // rounded to 2 decimals
}

// Evaluate computes the risk-multiple and category for a hit.
//
// riskUnit is |entry-stopLoss|. A zero risk unit is anomalous input and
// yields a 0 multiple instead of dividing by zero; callers should log
// it. A take-profit multiple below zero classifies as a loss, though
// validated TP ordering makes that unreachable in practice.
func Evaluate(dir model.Direction, entry, stopLoss float64, hit model.HitKind, hitPrice float64) Result {
	switch hit {
	case model.HitStopLoss:
		return Result{Category: model.OutcomeLoss, RiskMultiple: -1}
	case model.HitTimeout:
		return Result{Category: model.OutcomeTimeout, RiskMultiple: 0}
	}

	riskUnit := math.Abs(entry - stopLoss)
	if riskUnit == 0 {
		return Result{Category: model.OutcomeBreakeven, RiskMultiple: 0}
	}

	var rm float64
	if dir == model.Long {
		rm = (hitPrice - entry) / riskUnit
	} else {
		rm = (entry - hitPrice) / riskUnit
	}
	rm = round2(rm)

	switch {
	case rm > 0:
		return Result{Category: model.OutcomeWin, RiskMultiple: rm}
	case rm < 0:
		return Result{Category: model.OutcomeLoss, RiskMultiple: rm}
	default:
		return Result{Category: model.OutcomeBreakeven, RiskMultiple: 0}
	}
}

// round2 rounds half away from zero to 2 decimals.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
