// Package scanner runs the scan loop: fetch bars, compose a market
// snapshot, filter candidates, ask the decision collaborator, persist
// accepted signals and advance open ones.
//
// One cycle walks the configured units sequentially; the external rate
// budget is owned by the provider, so units are never evaluated
// concurrently. A cycle still running when the next tick fires is
// skipped whole. Failures are isolated per unit of work: one bad
// symbol, proposal or signal never aborts the rest of the cycle.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"signal-enginev1/internal/candidate"
	"signal-enginev1/internal/decision"
	"signal-enginev1/internal/lifecycle"
	"signal-enginev1/internal/market"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	redisstore "signal-enginev1/internal/store/redis"
)

// Unit is one symbol/timeframe pair in the scan universe.
type Unit struct {
	Symbol    string
	Timeframe string
}

// BarProvider fetches validated, ordered bars.
type BarProvider interface {
	FetchBars(ctx context.Context, symbol, timeframe string, count int) ([]model.Bar, error)
}

// SignalStore persists signals and lists the open ones.
type SignalStore interface {
	CreateSignal(ctx context.Context, sig *model.Signal) (bool, error)
	UpdateSignal(ctx context.Context, sig *model.Signal) error
	OpenSignals(ctx context.Context) ([]*model.Signal, error)
}

// EventSink receives lifecycle events and latest snapshots. Sink
// failures are logged and dropped; they never roll back a transition.
type EventSink interface {
	PublishEvent(ctx context.Context, event string, sig *model.Signal) error
	SetLatestState(ctx context.Context, state *model.MarketState) error
}

// Config holds the scan profile.
type Config struct {
	Units         []Unit
	Mode          model.Mode
	Interval      time.Duration
	FetchCount    int
	MinConfidence float64

	Market    market.Config
	Filter    candidate.Config
	Lifecycle lifecycle.Config
}

// DefaultConfig returns the standard scan profile without units.
func DefaultConfig() Config {
	return Config{
		Mode:          model.ModeStrict,
		Interval:      time.Minute,
		FetchCount:    200,
		MinConfidence: 0.6,
		Market:        market.DefaultConfig(),
		Filter:        candidate.DefaultConfig(),
		Lifecycle:     lifecycle.DefaultConfig(),
	}
}

// Service orchestrates scan cycles.
type Service struct {
	cfg      Config
	bars     BarProvider
	decider  decision.Decider
	store    SignalStore
	events   EventSink
	notifier notification.Notifier
	tracker  *lifecycle.Tracker
	met      *metrics.Metrics
	log      *slog.Logger

	running atomic.Bool
}

// New builds a scanner service. events, notifier and met may be nil.
func New(cfg Config, bars BarProvider, decider decision.Decider, store SignalStore,
	events EventSink, notifier notification.Notifier, met *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		bars:     bars,
		decider:  decider,
		store:    store,
		events:   events,
		notifier: notifier,
		tracker:  lifecycle.NewTracker(cfg.Lifecycle, log),
		met:      met,
		log:      log,
	}
}

// Run executes scan cycles on the configured interval until ctx is
// cancelled. An overdue cycle is skipped entirely, never overlapped.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				s.log.Warn("scan cycle still running, skipping tick")
				if s.met != nil {
					s.met.ScanSkipsTotal.Inc()
				}
				continue
			}
			go func() {
				defer s.running.Store(false)
				s.RunCycle(ctx)
			}()
		}
	}
}

// RunCycle evaluates every unit once and then advances open signals.
func (s *Service) RunCycle(ctx context.Context) {
	start := time.Now()
	for _, unit := range s.cfg.Units {
		if ctx.Err() != nil {
			return
		}
		s.evaluateUnit(ctx, unit)
	}
	s.advanceOpenSignals(ctx)

	if s.met != nil {
		s.met.ScanCyclesTotal.Inc()
		s.met.ScanCycleDur.Observe(time.Since(start).Seconds())
	}
	s.log.Info("scan cycle complete", "units", len(s.cfg.Units), "took", time.Since(start))
}

// evaluateUnit runs the fetch→compose→filter→decide→persist pipeline
// for one symbol/timeframe. Every failure is local to the unit.
func (s *Service) evaluateUnit(ctx context.Context, unit Unit) {
	log := s.log.With("symbol", unit.Symbol, "timeframe", unit.Timeframe)
	if s.met != nil {
		s.met.UnitsEvaluated.Inc()
	}

	bars, err := s.bars.FetchBars(ctx, unit.Symbol, unit.Timeframe, s.cfg.FetchCount)
	if err != nil {
		s.unitError(log, "fetch", err)
		return
	}

	state, err := market.Compose(unit.Symbol, unit.Timeframe, bars, s.cfg.Market)
	if err != nil {
		s.unitError(log, "compose", err)
		return
	}
	if s.met != nil {
		s.met.BarLag.Set(time.Since(state.AsOf).Seconds())
	}
	if s.events != nil {
		if err := s.events.SetLatestState(ctx, state); err != nil && !errors.Is(err, redisstore.ErrCircuitOpen) {
			log.Warn("latest state publish failed", "err", err)
		}
	}

	res := candidate.Evaluate(state, s.cfg.Mode, s.cfg.Filter)
	if !res.IsCandidate {
		if res.RejectReason != "" {
			log.Debug("unit not evaluable", "reject", res.RejectReason)
		}
		return
	}
	if s.met != nil {
		for _, hit := range res.Hits {
			s.met.CandidatesTotal.WithLabelValues(hit.ID).Inc()
		}
	}
	log.Info("candidate found", "reason", res.Reason)

	prop, err := s.decider.Decide(ctx, state, res.Reason, s.cfg.Mode)
	if err != nil {
		s.unitError(log, "decide", err)
		return
	}
	if prop == nil {
		log.Info("decision pass")
		return
	}

	if err := prop.Validate(s.cfg.MinConfidence); err != nil {
		var pe *model.ProposalError
		if errors.As(err, &pe) && s.met != nil {
			s.met.ProposalRejects.WithLabelValues(pe.Invariant).Inc()
		}
		log.Error("proposal rejected", "err", err)
		return
	}

	sig := prop.ToSignal(res.Reason, time.Now())
	inserted, err := s.store.CreateSignal(ctx, sig)
	if err != nil {
		s.unitError(log, "persist", err)
		return
	}
	if !inserted {
		log.Info("duplicate signal ignored", "signal_id", sig.ID)
		return
	}

	if s.met != nil {
		s.met.SignalsCreated.WithLabelValues(string(sig.Mode)).Inc()
	}
	log.Info("signal created",
		"signal_id", sig.ID,
		"direction", string(sig.Direction),
		"entry", sig.Entry,
		"confidence", sig.Confidence)
	s.emit(ctx, redisstore.EventCreated, sig)
}

// advanceOpenSignals walks every open signal through the lifecycle
// tracker with a fresh bar window.
func (s *Service) advanceOpenSignals(ctx context.Context) {
	sigs, err := s.store.OpenSignals(ctx)
	if err != nil {
		s.log.Error("list open signals", "err", err)
		return
	}
	if s.met != nil {
		s.met.OpenSignalsGauge.Set(float64(len(sigs)))
	}

	for _, sig := range sigs {
		if ctx.Err() != nil {
			return
		}
		s.advanceSignal(ctx, sig)
	}
}

func (s *Service) advanceSignal(ctx context.Context, sig *model.Signal) {
	log := s.log.With("signal_id", sig.ID, "symbol", sig.Symbol)

	bars, err := s.bars.FetchBars(ctx, sig.Symbol, sig.Timeframe, s.cfg.FetchCount)
	if err != nil {
		s.unitError(log, "fetch", err)
		return
	}

	wasTriggered := sig.Status == model.StatusTriggered
	changed, err := s.tracker.Advance(sig, bars)
	if err != nil {
		var iv *lifecycle.InvariantViolation
		if errors.As(err, &iv) {
			if s.met != nil {
				s.met.InvariantFaults.Inc()
			}
			log.Error("lifecycle invariant violation", "from", string(iv.From), "detail", iv.Detail)
			return
		}
		s.unitError(log, "lifecycle", err)
		return
	}
	if !changed {
		return
	}

	if err := s.store.UpdateSignal(ctx, sig); err != nil {
		s.unitError(log, "persist", err)
		return
	}

	switch {
	case sig.Status == model.StatusExpired:
		s.emit(ctx, redisstore.EventExpired, sig)
	case sig.Status.Terminal():
		s.emit(ctx, redisstore.EventClosed, sig)
	case !wasTriggered && sig.Status == model.StatusTriggered:
		s.emit(ctx, redisstore.EventTriggered, sig)
	}
}

// emit publishes a lifecycle event and notifies, best effort.
func (s *Service) emit(ctx context.Context, event string, sig *model.Signal) {
	if s.met != nil {
		s.met.LifecycleEvents.WithLabelValues(event).Inc()
	}
	if s.events != nil {
		if err := s.events.PublishEvent(ctx, event, sig); err != nil && !errors.Is(err, redisstore.ErrCircuitOpen) {
			s.log.Warn("event publish failed", "event", event, "signal_id", sig.ID, "err", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.SignalAlert(event, sig)); err != nil {
			s.log.Warn("notification failed", "event", event, "signal_id", sig.ID, "err", err)
		}
	}
}

func (s *Service) unitError(log *slog.Logger, stage string, err error) {
	if s.met != nil {
		s.met.UnitErrorsTotal.WithLabelValues(stage).Inc()
		if stage == "fetch" {
			s.met.FetchErrorsTotal.Inc()
		}
	}
	if errors.Is(err, model.ErrInsufficientData) {
		log.Warn("insufficient data", "stage", stage, "err", err)
		return
	}
	log.Error("unit evaluation failed", "stage", stage, "err", err)
}
