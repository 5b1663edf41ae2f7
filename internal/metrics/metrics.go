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
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Ingestion
	TicksTotal     prometheus.Counter
	MalformedTicks prometheus.Counter
	StaleTicks     prometheus.Counter
	WSReconnects   prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	ShardDrops       prometheus.Counter

	// Evaluation
	EvalDur      prometheus.Histogram
	SignalsFired prometheus.Counter
	EvalErrors   prometheus.Counter

	// Alerting
	AlertsSent      prometheus.Counter
	AlertSendErrors prometheus.Counter
	AlertsDeduped   prometheus.Counter
	AlertsDropped   prometheus.Counter

	// Option chain sync
	ChainSyncs      prometheus.Counter
	ChainSyncErrors prometheus.Counter
	ChainSyncDur    prometheus.Histogram

	// Storage
	SQLiteCommitDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_ticks_total",
			Help: "Total ticks accepted from the market data WebSocket",
		}),
		MalformedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_malformed_ticks_total",
			Help: "Frames dropped at ingest for failing validation",
		}),
		StaleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_stale_ticks_total",
			Help: "Ticks dropped for arriving older than the window head",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_ws_reconnects_total",
			Help: "WebSocket reconnections after an established session dropped",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Ticks dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ShardDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_shard_drops_total",
			Help: "Ticks dropped because a pipeline shard queue was full",
		}),

		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_eval_duration_seconds",
			Help:    "Per-tick evaluation latency (window append through dispatch)",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		SignalsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signals_fired_total",
			Help: "Strategy signals that met the full firing condition",
		}),
		EvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_eval_errors_total",
			Help: "Evaluation cycles halted on invalid input",
		}),

		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_alerts_sent_total",
			Help: "Alerts delivered to the notification channel",
		}),
		AlertSendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_alert_send_errors_total",
			Help: "Alert deliveries that failed",
		}),
		AlertsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_alerts_deduped_total",
			Help: "Signals suppressed by the per-instrument dedup window",
		}),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_alerts_dropped_total",
			Help: "Signals evicted from the full alert queue (oldest first)",
		}),

		ChainSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_chain_syncs_total",
			Help: "Completed option chain sync cycles",
		}),
		ChainSyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_chain_sync_errors_total",
			Help: "Per-symbol chain fetch failures",
		}),
		ChainSyncDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_chain_sync_duration_seconds",
			Help:    "Full chain sync cycle latency",
			Buckets: prometheus.DefBuckets,
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.MalformedTicks,
		m.StaleTicks,
		m.WSReconnects,
		m.FanoutDropsTotal,
		m.ShardDrops,
		m.EvalDur,
		m.SignalsFired,
		m.EvalErrors,
		m.AlertsSent,
		m.AlertSendErrors,
		m.AlertsDeduped,
		m.AlertsDropped,
		m.ChainSyncs,
		m.ChainSyncErrors,
		m.ChainSyncDur,
		m.SQLiteCommitDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	LastChainSync  time.Time `json:"last_chain_sync"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
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

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastChainSync(t time.Time) {
	h.mu.Lock()
	h.LastChainSync = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
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

	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		LastChainSync   string  `json:"last_chain_sync"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		LastChainSync:   h.LastChainSync.Format(time.RFC3339),
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

// TriggerFunc forces an immediate option chain sync cycle.
type TriggerFunc func()

// Server runs an HTTP server exposing /metrics, /healthz, and the manual
// chain sync trigger.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. trigger may be nil, in
// which case POST /trigger returns 503.
func NewServer(addr string, health *HealthStatus, trigger TriggerFunc) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", health.ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/trigger", func(w http.ResponseWriter, req *http.Request) {
		if trigger == nil {
			http.Error(w, "chain sync unavailable", http.StatusServiceUnavailable)
			return
		}
		trigger()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "sync scheduled"})
	}).Methods(http.MethodPost)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: r,
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
