// cmd/scanengine runs the live market scanner: it fetches bars for the
// configured symbol/timeframe universe, composes market snapshots,
// filters candidates, consults the decision service and tracks every
// persisted signal to its final outcome.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signal-enginev1/config"
	"signal-enginev1/internal/decision"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/marketdata"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	"signal-enginev1/internal/scanner"
	redisstore "signal-enginev1/internal/store/redis"
	sqlitestore "signal-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scanengine] starting...")

	// Optional .env for local runs; the real deployment injects env vars.
	godotenv.Load()

	cfg := config.Load()
	applog := logger.Init("scanengine", slog.LevelInfo)

	units := cfg.ParseUnits()
	if len(units) == 0 {
		log.Fatal("[scanengine] no valid scan units configured")
	}
	log.Printf("[scanengine] scanning %d units every %s (mode=%s)", len(units), cfg.ScanInterval, cfg.Mode)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- SQLite signal store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[scanengine] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.CheckSQLite(ctx, store.DB())
	log.Println("[scanengine] sqlite store ready")

	// ---- Redis event publisher (optional) ----
	var publisher *redisstore.Publisher
	publisher, err = redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[scanengine] WARNING: redis init failed: %v (continuing without events)", err)
		publisher = nil
	} else {
		publisher.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.EventBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.EventBreakerTrips.Inc()
			}
		}
		log.Println("[scanengine] redis publisher ready")
	}

	// ---- Periodic liveness checks ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Broker session + bar provider ----
	session := marketdata.NewSession(marketdata.SessionConfig{
		BaseURL:    cfg.BrokerBaseURL,
		APIKey:     cfg.BrokerAPIKey,
		ClientCode: cfg.BrokerClientCode,
		Password:   cfg.BrokerPassword,
		TOTPSecret: cfg.BrokerTOTPSecret,
	}, nil)
	bars := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL: cfg.BrokerBaseURL,
		APIKey:  cfg.BrokerAPIKey,
	}, session)

	// ---- Last-price stream (optional) ----
	if cfg.BrokerStreamURL != "" {
		symbols := make([]string, 0, len(units))
		seen := map[string]bool{}
		for _, u := range units {
			if !seen[u.Symbol] {
				seen[u.Symbol] = true
				symbols = append(symbols, u.Symbol)
			}
		}
		stream := marketdata.NewStream(marketdata.StreamConfig{
			URL:     cfg.BrokerStreamURL,
			APIKey:  cfg.BrokerAPIKey,
			Symbols: symbols,
		}, session, marketdata.StreamHooks{
			OnConnect:    func() { health.SetStreamConnected(true) },
			OnDisconnect: func() { health.SetStreamConnected(false) },
			OnReconnect:  func() { prom.WSReconnects.Inc() },
		})
		go stream.Run(ctx)
		go watchPriceAge(ctx, stream, symbols, prom)
	}

	// ---- Decision collaborator ----
	decider := decision.NewClient(decision.ClientConfig{
		URL:    cfg.DecisionURL,
		APIKey: cfg.DecisionAPIKey,
	})

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Scanner ----
	scanCfg := scanner.DefaultConfig()
	scanCfg.Mode = model.Mode(cfg.Mode)
	scanCfg.Interval = cfg.ScanInterval
	scanCfg.FetchCount = cfg.FetchCount
	scanCfg.MinConfidence = cfg.MinConfidence
	scanCfg.Lifecycle.ExpiryBars = cfg.ExpiryBars
	scanCfg.Lifecycle.TimeoutBars = cfg.TimeoutBars
	for _, u := range units {
		scanCfg.Units = append(scanCfg.Units, scanner.Unit{Symbol: u.Symbol, Timeframe: u.Timeframe})
	}

	recorder := &recordingProvider{client: bars, store: store, health: health}
	var events scanner.EventSink
	if publisher != nil {
		events = publisher
	}
	svc := scanner.New(scanCfg, recorder, decider, store, events, notifier, prom, applog)

	log.Println("[scanengine] ╔══════════════════════════════════════════════════════╗")
	log.Println("[scanengine] ║  Signal Scan Engine                                  ║")
	log.Println("[scanengine] ║                                                      ║")
	log.Println("[scanengine] ║  [Bars] → [Compose] → [Filter] → [Decide] → [Track]  ║")
	log.Printf("[scanengine] ║  Units: %-3d  Interval: %-8s  Mode: %-8s     ║", len(units), cfg.ScanInterval, cfg.Mode)
	log.Println("[scanengine] ╚══════════════════════════════════════════════════════╝")

	go func() {
		ticker := time.NewTicker(cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetLastCycleAt(time.Now())
			}
		}
	}()

	svc.Run(ctx)

	// ---- Shutdown ----
	log.Println("[scanengine] shutdown signal received, cleaning up...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	if publisher != nil {
		publisher.Close()
	}
	log.Println("[scanengine] shutdown complete.")
}

// recordingProvider archives every fetched window so cmd/backtest can
// replay it later. Archive failures never fail the fetch.
type recordingProvider struct {
	client *marketdata.Client
	store  *sqlitestore.Store
	health *metrics.HealthStatus
}

func (r *recordingProvider) FetchBars(ctx context.Context, symbol, timeframe string, count int) ([]model.Bar, error) {
	bars, err := r.client.FetchBars(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		r.health.SetLastBarTime(bars[len(bars)-1].TS)
	}
	if err := r.store.SaveBars(ctx, symbol, timeframe, bars); err != nil {
		log.Printf("[scanengine] bar archive failed for %s %s: %v", symbol, timeframe, err)
	}
	return bars, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[scanengine] telegram notifications enabled")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[scanengine] webhook notifications enabled")
	}
	return notification.NewFanout(backends...)
}

// watchPriceAge exports the staleness of the freshest streamed price.
func watchPriceAge(ctx context.Context, stream *marketdata.Stream, symbols []string, prom *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var newest time.Time
			for _, sym := range symbols {
				if tick, ok := stream.LastPrice(sym); ok && tick.TS.After(newest) {
					newest = tick.TS
				}
			}
			if !newest.IsZero() {
				prom.LastPriceAge.Set(time.Since(newest).Seconds())
			}
		}
	}
}
