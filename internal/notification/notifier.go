// Package notification delivers signal lifecycle alerts to external
// channels (Telegram, webhooks) or the log. Delivery is fire-and-forget
// from the engine's point of view: a failed send never rolls back the
// lifecycle transition it reports.
package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"signal-enginev1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert renders a lifecycle event and its read-only signal
// snapshot into an Alert.
func SignalAlert(event string, sig *model.Signal) Alert {
	title := fmt.Sprintf("%s %s %s %s", sig.Symbol, sig.Timeframe, sig.Direction, event)

	var b strings.Builder
	fmt.Fprintf(&b, "entry %.5g  sl %.5g  tp %s\n", sig.Entry, sig.StopLoss, formatTPs(sig.TakeProfits))
	fmt.Fprintf(&b, "mode %s  confidence %.2f\n", sig.Mode, sig.Confidence)
	if sig.CandidateReason != "" {
		fmt.Fprintf(&b, "setup: %s\n", sig.CandidateReason)
	}

	level := AlertInfo
	if sig.Detail != nil {
		fmt.Fprintf(&b, "result: %s (%s) R=%.2f at %.5g",
			sig.Outcome, sig.Detail.Hit, sig.Detail.RiskMultiple, sig.Detail.HitPrice)
		if sig.Outcome == model.OutcomeLoss {
			level = AlertWarning
		}
	}

	return Alert{Level: level, Title: title, Message: strings.TrimRight(b.String(), "\n")}
}

func formatTPs(tps []float64) string {
	parts := make([]string, len(tps))
	for i, tp := range tps {
		parts[i] = fmt.Sprintf("%.5g", tp)
	}
	return strings.Join(parts, " / ")
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Fanout sends each alert to every backend. Errors are logged per
// backend and the first one is returned, after all sends were attempted.
type Fanout struct {
	backends []Notifier
}

// NewFanout creates a fan-out notifier.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range f.backends {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T: %v", n, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
