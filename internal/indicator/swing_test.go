package indicator

import (
	"testing"
	"time"

	"signal-enginev1/internal/model"
)

// flatBar builds a bar whose high/low are offset around a mid price.
func swingBar(i int, high, low float64) model.Bar {
	mid := (high + low) / 2
	return model.Bar{
		TS:   time.Unix(int64(i)*60, 0),
		Open: mid, High: high, Low: low, Close: mid, Volume: 1,
	}
}

func TestSwingHighs_Basic(t *testing.T) {
	// Highs: 10, 11, 12, 15, 12, 11, 10 — index 3 is a 3/3 swing high.
	highs := []float64{10, 11, 12, 15, 12, 11, 10}
	bars := make([]model.Bar, len(highs))
	for i, h := range highs {
		bars[i] = swingBar(i, h, h-2)
	}

	points := SwingHighs(bars, 3, 3)
	if len(points) != 1 {
		t.Fatalf("expected 1 swing high, got %d", len(points))
	}
	if points[0].Index != 3 || points[0].Price != 15 {
		t.Errorf("swing high = index %d price %v, want index 3 price 15", points[0].Index, points[0].Price)
	}
}

func TestSwingHighs_FlatDoubleTopNeverConfirms(t *testing.T) {
	// Two equal tops at 15: strict inequality fails on the tie, so the
	// series must yield zero swing highs.
	highs := []float64{10, 11, 12, 15, 13, 14, 15, 12, 11, 10}
	bars := make([]model.Bar, len(highs))
	for i, h := range highs {
		bars[i] = swingBar(i, h, h-2)
	}

	if points := SwingHighs(bars, 3, 3); len(points) != 0 {
		t.Errorf("flat double-top yielded %d swing highs, want 0", len(points))
	}
}

func TestSwingLows_Basic(t *testing.T) {
	lows := []float64{20, 19, 18, 15, 18, 19, 20}
	bars := make([]model.Bar, len(lows))
	for i, l := range lows {
		bars[i] = swingBar(i, l+2, l)
	}

	points := SwingLows(bars, 3, 3)
	if len(points) != 1 {
		t.Fatalf("expected 1 swing low, got %d", len(points))
	}
	if points[0].Index != 3 || points[0].Price != 15 {
		t.Errorf("swing low = index %d price %v, want index 3 price 15", points[0].Index, points[0].Price)
	}
}

func TestSwings_RightCensored(t *testing.T) {
	// A rising spike in the final rightBars window cannot be confirmed.
	highs := []float64{10, 11, 10, 9, 11, 20}
	bars := make([]model.Bar, len(highs))
	for i, h := range highs {
		bars[i] = swingBar(i, h, h-2)
	}

	for _, p := range SwingHighs(bars, 2, 2) {
		if p.Index >= len(bars)-2 {
			t.Errorf("swing confirmed inside the right-censored window at index %d", p.Index)
		}
	}
}

func TestSwings_InsufficientBars(t *testing.T) {
	bars := []model.Bar{swingBar(0, 10, 8), swingBar(1, 12, 9), swingBar(2, 11, 9)}
	if points := SwingHighs(bars, 3, 3); points != nil {
		t.Errorf("expected nil for %d bars with 3/3 window", len(bars))
	}
}
