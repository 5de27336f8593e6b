package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-enginev1/internal/model"
)

func TestSignalAlert_CreatedEvent(t *testing.T) {
	sig := &model.Signal{
		Symbol:          "EURUSD",
		Timeframe:       "1h",
		Direction:       model.Long,
		Mode:            model.ModeStrict,
		Entry:           1.1000,
		StopLoss:        1.0950,
		TakeProfits:     []float64{1.1100, 1.1200},
		Confidence:      0.82,
		CandidateReason: "bullish engulfing in uptrend",
	}

	a := SignalAlert("created", sig)
	if a.Level != AlertInfo {
		t.Errorf("level = %s", a.Level)
	}
	if a.Title != "EURUSD 1h long created" {
		t.Errorf("title = %q", a.Title)
	}
	for _, want := range []string{"1.1", "1.095", "bullish engulfing"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("message %q missing %q", a.Message, want)
		}
	}
}

func TestSignalAlert_LossEscalatesLevel(t *testing.T) {
	sig := &model.Signal{
		Symbol:      "EURUSD",
		Timeframe:   "1h",
		Direction:   model.Long,
		Entry:       1.1000,
		StopLoss:    1.0950,
		TakeProfits: []float64{1.1100},
		Outcome:     model.OutcomeLoss,
		Detail: &model.OutcomeDetail{
			Hit:          model.HitStopLoss,
			RiskMultiple: -1,
			HitPrice:     1.0950,
			HitTime:      time.Unix(1700000000, 0).UTC(),
		},
	}

	a := SignalAlert("closed", sig)
	if a.Level != AlertWarning {
		t.Errorf("level = %s, want WARNING for a loss", a.Level)
	}
	if !strings.Contains(a.Message, "R=-1.00") {
		t.Errorf("message %q missing risk multiple", a.Message)
	}
}

type stubNotifier struct {
	sent int
	err  error
}

func (s *stubNotifier) Send(ctx context.Context, alert Alert) error {
	s.sent++
	return s.err
}

func TestFanout_AttemptsAllBackends(t *testing.T) {
	failing := &stubNotifier{err: errors.New("down")}
	ok := &stubNotifier{}

	err := NewFanout(failing, ok).Send(context.Background(), Alert{Title: "t"})
	if err == nil {
		t.Error("expected first backend error to propagate")
	}
	if failing.sent != 1 || ok.sent != 1 {
		t.Errorf("sends = %d/%d, want both attempted", failing.sent, ok.sent)
	}
}
