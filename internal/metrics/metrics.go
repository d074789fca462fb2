package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pasthortown/cripto/internal/model"
)

// Metrics holds all Prometheus metrics for the candle pipeline.
type Metrics struct {
	// Ingest
	CandlesUpserted prometheus.Counter
	SyncRuns        prometheus.Counter
	SyncErrors      prometheus.Counter
	SyncDur         prometheus.Histogram

	// Upstream REST client
	UpstreamRequests prometheus.Counter
	UpstreamRetries  prometheus.Counter

	// Predictor
	HoursPredicted prometheus.Counter
	Trainings      prometheus.Counter
	TrainingDur    prometheus.Histogram
	PredictorSkips *prometheus.CounterVec // labels: reason

	// WebSocket broker
	WSConnections   prometheus.Gauge
	WSSubscriptions prometheus.Gauge
	WSDroppedEvents prometheus.Counter

	// HTTP surface
	HTTPRequestDur *prometheus.HistogramVec // labels: path, code

	// Storage connectivity (1=up, 0=down)
	StorageUp prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candles_upserted_total",
			Help: "Total new minute candles written to storage",
		}),
		SyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total per-symbol sync passes",
		}),
		SyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Sync passes abandoned after exhausting retries",
		}),
		SyncDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Per-symbol sync pass latency (bootstrap passes can run minutes)",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		UpstreamRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total klines requests issued to the exchange",
		}),
		UpstreamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Klines requests retried after a transient failure",
		}),

		HoursPredicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hours_predicted_total",
			Help: "Hour blocks predicted and persisted (60 minutes each)",
		}),
		Trainings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainings_total",
			Help: "Model sets trained (12 horizons each)",
		}),
		TrainingDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Full model-set training latency per symbol",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		}),
		PredictorSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictor_skips_total",
			Help: "Predictor ticks skipped per symbol (by reason)",
		}, []string{"reason"}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Currently connected WebSocket clients",
		}),
		WSSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_subscriptions",
			Help: "Current (client, symbol) subscription pairs",
		}),
		WSDroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_dropped_events_total",
			Help: "Events dropped oldest-first on full client queues",
		}),

		HTTPRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "code"}),

		StorageUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storage_up",
			Help: "Document store reachability (1=up, 0=down)",
		}),
	}

	prometheus.MustRegister(
		m.CandlesUpserted,
		m.SyncRuns,
		m.SyncErrors,
		m.SyncDur,
		m.UpstreamRequests,
		m.UpstreamRetries,
		m.HoursPredicted,
		m.Trainings,
		m.TrainingDur,
		m.PredictorSkips,
		m.WSConnections,
		m.WSSubscriptions,
		m.WSDroppedEvents,
		m.HTTPRequestDur,
		m.StorageUp,
	)

	return m
}

// HealthStatus represents process health for the liveness endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	MongoConnected bool      `json:"mongo_connected"`
	MongoLatencyMs float64   `json:"mongo_latency_ms"`
	LastSyncAt     time.Time `json:"last_sync_at"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// OnProbe is called after every storage probe with its outcome.
	OnProbe func(ok bool)
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetMongoConnected(v bool) {
	h.mu.Lock()
	h.MongoConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSyncAt(t time.Time) {
	h.mu.Lock()
	h.LastSyncAt = t
	h.mu.Unlock()
}

// CheckMongo pings the document store and records latency + connectivity.
func (h *HealthStatus) CheckMongo(ctx context.Context, p model.Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.MongoConnected = err == nil
	h.MongoLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	hook := h.OnProbe
	h.mu.Unlock()

	if hook != nil {
		hook(err == nil)
	}
}

// StartLivenessChecker runs periodic storage probes until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, p model.Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckMongo(probeCtx, p)
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
	if !h.MongoConnected {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastSync := ""
	if !h.LastSyncAt.IsZero() {
		lastSync = h.LastSyncAt.Format(time.RFC3339)
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		MongoConnected bool    `json:"mongo_connected"`
		MongoLatencyMs float64 `json:"mongo_latency_ms"`
		LastSyncAt     string  `json:"last_sync_at,omitempty"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		MongoConnected: h.MongoConnected,
		MongoLatencyMs: h.MongoLatencyMs,
		LastSyncAt:     lastSync,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz for the
// binaries that have no API surface of their own.
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
