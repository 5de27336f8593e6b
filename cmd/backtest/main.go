// cmd/backtest replays archived bars from SQLite through the composer,
// the candidate filter and the lifecycle tracker to measure how the
// scan heuristics would have performed, without live market data or the
// decision service. Proposals are synthesized as simple ATR brackets.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=EURUSD --tf=1h --from=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"signal-enginev1/internal/candidate"
	"signal-enginev1/internal/lifecycle"
	"signal-enginev1/internal/market"
	"signal-enginev1/internal/model"
	sqlitestore "signal-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "", "Symbol to replay (required)")
	tf := flag.String("tf", "1h", "Timeframe to replay")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	dbPath := flag.String("db", "data/signals.db", "Path to SQLite database")
	modeStr := flag.String("mode", "strict", "Filter mode: strict or relaxed")
	window := flag.Int("window", 200, "Bars per composed snapshot")
	expiryBars := flag.Int("expiry", 12, "Bars before an untriggered signal expires")
	timeoutBars := flag.Int("timeout", 50, "Post-trigger bars before timeout")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}
	mode := model.Mode(*modeStr)
	if mode != model.ModeStrict && mode != model.ModeRelaxed {
		log.Fatalf("[backtest] unknown mode %q", *modeStr)
	}

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bars, err := store.ReadBars(ctx, *symbol, *tf, *fromTS)
	if err != nil {
		log.Fatalf("[backtest] read bars: %v", err)
	}
	if len(bars) < *window {
		log.Fatalf("[backtest] only %d bars archived for %s %s, need at least %d", len(bars), *symbol, *tf, *window)
	}
	log.Printf("[backtest] replaying %d bars of %s %s", len(bars), *symbol, *tf)

	mcfg := market.DefaultConfig()
	fcfg := candidate.DefaultConfig()
	tracker := lifecycle.NewTracker(lifecycle.Config{
		ExpiryBars:  *expiryBars,
		TimeoutBars: *timeoutBars,
	}, nil)

	var (
		candidates int
		byHit      = map[string]int{}
		byOutcome  = map[model.Outcome]int{}
		expired    int
		unresolved int
		totalR     float64
	)

	i := *window
	for i <= len(bars) {
		if ctx.Err() != nil {
			break
		}
		view := bars[i-*window : i]

		state, err := market.Compose(*symbol, *tf, view, mcfg)
		if err != nil {
			i++
			continue
		}
		res := candidate.Evaluate(state, mode, fcfg)
		if !res.IsCandidate {
			i++
			continue
		}
		candidates++
		for _, h := range res.Hits {
			byHit[h.ID]++
		}

		sig, err := bracketSignal(state, mode, res.Reason)
		if err != nil {
			i++
			continue
		}
		if _, err := tracker.Advance(sig, bars[i:]); err != nil {
			log.Printf("[backtest] advance failed at bar %d: %v", i, err)
			i++
			continue
		}

		switch {
		case sig.Status == model.StatusExpired:
			expired++
			i += *expiryBars
		case sig.Status.Terminal():
			byOutcome[sig.Outcome]++
			totalR += sig.Detail.RiskMultiple
			i = indexAfter(bars, sig.Detail.HitTime, i)
		default:
			// Ran out of archived bars before resolution.
			unresolved++
			i = len(bars) + 1
		}
	}

	printSummary(*symbol, *tf, len(bars), candidates, byHit, byOutcome, expired, unresolved, totalR)
}

// bracketSignal synthesizes a proposal around the snapshot price: stop
// one ATR away, targets at one and two ATR with the trend.
func bracketSignal(state *model.MarketState, mode model.Mode, reason string) (*model.Signal, error) {
	atr := *state.Volatility
	entry := state.CurrentPrice

	prop := model.TradeProposal{
		Symbol:     state.Symbol,
		Timeframe:  state.Timeframe,
		Mode:       mode,
		Confidence: 0.65,
		Rationale:  "atr bracket replay",
	}
	switch state.Trend.Direction {
	case model.TrendUp:
		prop.Direction = model.Long
		prop.Entry = entry
		prop.StopLoss = entry - atr
		prop.TakeProfits = []float64{entry + atr, entry + 2*atr}
	case model.TrendDown:
		prop.Direction = model.Short
		prop.Entry = entry
		prop.StopLoss = entry + atr
		prop.TakeProfits = []float64{entry - atr, entry - 2*atr}
	default:
		return nil, fmt.Errorf("no tradable trend")
	}
	if err := prop.Validate(0); err != nil {
		return nil, err
	}
	return prop.ToSignal(reason, state.AsOf), nil
}

// indexAfter returns the index of the first bar strictly after t,
// starting the search at from.
func indexAfter(bars []model.Bar, t time.Time, from int) int {
	n := sort.Search(len(bars)-from, func(k int) bool {
		return bars[from+k].TS.After(t)
	})
	return from + n + 1
}

func printSummary(symbol, tf string, barCount, candidates int, byHit map[string]int,
	byOutcome map[model.Outcome]int, expired, unresolved int, totalR float64) {

	closed := 0
	for _, n := range byOutcome {
		closed += n
	}
	avgR := 0.0
	if closed > 0 {
		avgR = totalR / float64(closed)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           BACKTEST COMPLETE              ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Unit:        %-8s %-18s ║\n", symbol, tf)
	fmt.Printf("║  Bars:        %-26d ║\n", barCount)
	fmt.Printf("║  Candidates:  %-26d ║\n", candidates)
	fmt.Printf("║  Wins:        %-26d ║\n", byOutcome[model.OutcomeWin])
	fmt.Printf("║  Losses:      %-26d ║\n", byOutcome[model.OutcomeLoss])
	fmt.Printf("║  Breakeven:   %-26d ║\n", byOutcome[model.OutcomeBreakeven])
	fmt.Printf("║  Timeouts:    %-26d ║\n", byOutcome[model.OutcomeTimeout])
	fmt.Printf("║  Expired:     %-26d ║\n", expired)
	fmt.Printf("║  Unresolved:  %-26d ║\n", unresolved)
	fmt.Printf("║  Total R:     %-26.2f ║\n", totalR)
	fmt.Printf("║  Avg R:       %-26.2f ║\n", avgR)
	fmt.Println("╚══════════════════════════════════════════╝")
	if len(byHit) > 0 {
		fmt.Println("Candidates by heuristic:")
		ids := make([]string, 0, len(byHit))
		for id := range byHit {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-20s %d\n", id, byHit[id])
		}
	}
}
