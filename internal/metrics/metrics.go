package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scan engine.
type Metrics struct {
	ScanCyclesTotal prometheus.Counter
	ScanSkipsTotal  prometheus.Counter
	ScanCycleDur    prometheus.Histogram

	UnitsEvaluated  prometheus.Counter
	UnitErrorsTotal *prometheus.CounterVec // labels: stage

	CandidatesTotal  *prometheus.CounterVec // labels: heuristic
	SignalsCreated   *prometheus.CounterVec // labels: mode
	ProposalRejects  *prometheus.CounterVec // labels: invariant
	LifecycleEvents  *prometheus.CounterVec // labels: event
	InvariantFaults  prometheus.Counter
	OpenSignalsGauge prometheus.Gauge

	FetchErrorsTotal prometheus.Counter
	FetchDur         prometheus.Histogram
	DecisionDur      prometheus.Histogram
	BarLag           prometheus.Gauge

	WSReconnects      prometheus.Counter
	LastPriceAge      prometheus.Gauge
	EventBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	EventBreakerTrips prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ScanCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_cycles_total",
			Help: "Completed scan cycles",
		}),
		ScanSkipsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_cycle_skips_total",
			Help: "Scan cycles skipped because the previous cycle was still running",
		}),
		ScanCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanengine_cycle_duration_seconds",
			Help:    "Wall-clock duration of one full scan cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		UnitsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_units_evaluated_total",
			Help: "Symbol/timeframe units evaluated across all cycles",
		}),
		UnitErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanengine_unit_errors_total",
			Help: "Per-unit evaluation errors by pipeline stage",
		}, []string{"stage"}),

		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanengine_candidates_total",
			Help: "Candidate verdicts by triggered heuristic",
		}, []string{"heuristic"}),
		SignalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanengine_signals_created_total",
			Help: "Signals persisted by operating mode",
		}, []string{"mode"}),
		ProposalRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanengine_proposal_rejects_total",
			Help: "Trade proposals rejected by violated invariant",
		}, []string{"invariant"}),
		LifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanengine_lifecycle_events_total",
			Help: "Signal lifecycle transitions by event",
		}, []string{"event"}),
		InvariantFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_lifecycle_invariant_faults_total",
			Help: "Attempted transitions rejected by the lifecycle state machine",
		}),
		OpenSignalsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanengine_open_signals",
			Help: "Signals currently pending or triggered",
		}),

		FetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_fetch_errors_total",
			Help: "Bar fetch failures after retries",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanengine_fetch_duration_seconds",
			Help:    "Bar fetch latency including retries",
			Buckets: prometheus.DefBuckets,
		}),
		DecisionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanengine_decision_duration_seconds",
			Help:    "Decision collaborator round-trip latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanengine_bar_lag_seconds",
			Help: "Age of the newest bar at evaluation time",
		}),

		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_ws_reconnects_total",
			Help: "Price stream reconnection attempts",
		}),
		LastPriceAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanengine_last_price_age_seconds",
			Help: "Age of the most recent streamed price",
		}),
		EventBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanengine_event_breaker_state",
			Help: "Event publisher circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		EventBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanengine_event_breaker_trips_total",
			Help: "Times the event publisher circuit breaker tripped open",
		}),
	}

	prometheus.MustRegister(
		m.ScanCyclesTotal,
		m.ScanSkipsTotal,
		m.ScanCycleDur,
		m.UnitsEvaluated,
		m.UnitErrorsTotal,
		m.CandidatesTotal,
		m.SignalsCreated,
		m.ProposalRejects,
		m.LifecycleEvents,
		m.InvariantFaults,
		m.OpenSignalsGauge,
		m.FetchErrorsTotal,
		m.FetchDur,
		m.DecisionDur,
		m.BarLag,
		m.WSReconnects,
		m.LastPriceAge,
		m.EventBreakerState,
		m.EventBreakerTrips,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastBarTime     time.Time `json:"last_bar_time"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	LastCycleAt     time.Time `json:"last_cycle_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleAt(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected || !h.StreamConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastCycle := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = time.Since(h.LastCycleAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		CycleAge        string  `json:"cycle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		CycleAge:        lastCycle,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
