package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func goodBar(sec int64) Bar {
	return Bar{
		TS:     time.Unix(sec, 0).UTC(),
		Open:   1.10,
		High:   1.12,
		Low:    1.09,
		Close:  1.11,
		Volume: 100,
	}
}

func TestBarValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Bar)
		ok     bool
	}{
		{"well formed", func(b *Bar) {}, true},
		{"flat bar", func(b *Bar) { b.Open, b.High, b.Low, b.Close = 1.1, 1.1, 1.1, 1.1 }, true},
		{"nan close", func(b *Bar) { b.Close = math.NaN() }, false},
		{"negative low", func(b *Bar) { b.Low = -0.5 }, false},
		{"zero open", func(b *Bar) { b.Open = 0 }, false},
		{"high below close", func(b *Bar) { b.High = 1.105 }, false},
		{"low above open", func(b *Bar) { b.Low = 1.105 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := goodBar(0)
			tc.mutate(&b)
			err := b.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateBars_ReportsOffendingIndex(t *testing.T) {
	bars := []Bar{goodBar(0), goodBar(60), goodBar(120)}
	bars[1].High = 0.5 // below low

	err := ValidateBars(bars)
	var ib *InvalidBarError
	if !errors.As(err, &ib) {
		t.Fatalf("err = %v, want InvalidBarError", err)
	}
	if ib.Index != 1 {
		t.Errorf("index = %d, want 1", ib.Index)
	}
}

func TestSortBars_CopiesAndOrders(t *testing.T) {
	bars := []Bar{goodBar(120), goodBar(0), goodBar(60)}
	sorted := SortBars(bars)

	for i := 1; i < len(sorted); i++ {
		if sorted[i].TS.Before(sorted[i-1].TS) {
			t.Fatalf("not sorted: %v before %v", sorted[i].TS, sorted[i-1].TS)
		}
	}
	if !bars[0].TS.Equal(time.Unix(120, 0).UTC()) {
		t.Error("input slice must not be reordered")
	}
}
