package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signal-enginev1/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "signals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSignal() *model.Signal {
	return &model.Signal{
		ID:              "EURUSD-1h-strict-1700000000000000000",
		Symbol:          "EURUSD",
		Timeframe:       "1h",
		Mode:            model.ModeStrict,
		Direction:       model.Long,
		Entry:           1.1000,
		StopLoss:        1.0950,
		TakeProfits:     []float64{1.1100, 1.1200},
		Confidence:      0.8,
		Rationale:       "trend continuation",
		CandidateReason: "bullish engulfing in uptrend",
		Status:          model.StatusPending,
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestCreateSignal_IdempotentReinsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := sampleSignal()
	inserted, err := s.CreateSignal(ctx, sig)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	// Same (symbol, timeframe, mode, created_at) under a different id
	// must be silently ignored.
	dup := sampleSignal()
	dup.ID = "EURUSD-1h-strict-other"
	inserted, err = s.CreateSignal(ctx, dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate uniqueness key must not insert")
	}
}

func TestUpdateAndGetSignal_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := sampleSignal()
	if _, err := s.CreateSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}

	trig := sig.CreatedAt.Add(5 * time.Minute)
	closed := sig.CreatedAt.Add(2 * time.Hour)
	sig.Status = model.StatusWin
	sig.TriggeredAt = &trig
	sig.ClosedAt = &closed
	sig.Outcome = model.OutcomeWin
	sig.Detail = &model.OutcomeDetail{Hit: model.HitTP1, RiskMultiple: 2.00, HitPrice: 1.1100, HitTime: closed}
	if err := s.UpdateSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSignal(ctx, sig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("signal not found")
	}
	if got.Status != model.StatusWin || got.Outcome != model.OutcomeWin {
		t.Errorf("status = %s outcome = %s", got.Status, got.Outcome)
	}
	if got.TriggeredAt == nil || !got.TriggeredAt.Equal(trig) {
		t.Errorf("triggeredAt = %v", got.TriggeredAt)
	}
	if got.Detail == nil || got.Detail.Hit != model.HitTP1 || got.Detail.RiskMultiple != 2.00 {
		t.Errorf("detail = %+v", got.Detail)
	}
	if len(got.TakeProfits) != 2 || got.TakeProfits[0] != 1.1100 {
		t.Errorf("take profits = %v", got.TakeProfits)
	}
}

func TestOpenSignals_ExcludesTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	open := sampleSignal()
	if _, err := s.CreateSignal(ctx, open); err != nil {
		t.Fatal(err)
	}

	done := sampleSignal()
	done.ID = "GBPUSD-1h-strict-1700000000000000000"
	done.Symbol = "GBPUSD"
	done.Status = model.StatusExpired
	if _, err := s.CreateSignal(ctx, done); err != nil {
		t.Fatal(err)
	}

	sigs, err := s.OpenSignals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || sigs[0].ID != open.ID {
		t.Errorf("open signals = %v", sigs)
	}
}

func TestSaveAndReadBars(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := []model.Bar{
		{TS: time.Unix(1000, 0).UTC(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{TS: time.Unix(1060, 0).UTC(), Open: 1.5, High: 2.5, Low: 1.2, Close: 2.0, Volume: 12},
	}
	if err := s.SaveBars(ctx, "EURUSD", "1m", bars); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadBars(ctx, "EURUSD", "1m", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 2.0 {
		t.Errorf("bars after 1000 = %v", got)
	}
}
