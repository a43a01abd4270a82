package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/platform/envutil"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter
	apiReqGood  *Counter

	draftOps      *CounterVec
	draftSaves    *CounterVec
	draftSaveTime *HistogramVec
	draftSessions *Gauge
	draftNodes    *HistogramVec

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	sloLatencyThreshold float64
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
}

// Init builds the process-wide registry. It returns nil when METRICS_ENABLED
// is off, and every method is a no-op on a nil *Metrics.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled", "slo_latency_threshold_seconds", instance.sloLatencyThreshold)
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latencyThreshold := 0.5
	if v := envutil.String("SLO_API_LATENCY_THRESHOLD_SECONDS", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			latencyThreshold = f
		}
	}
	return &Metrics{
		apiRequests: NewCounterVec("vantage_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"vantage_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("vantage_api_inflight_requests", "In-flight API requests."),
		apiReqTotal: NewCounter("vantage_api_requests_total_all", "Total API requests (all)."),
		apiReqError: NewCounter("vantage_api_requests_error_total", "Total API requests answered with a 5xx."),
		apiReqGood:  NewCounter("vantage_api_requests_good_total", "API requests within the latency SLO."),

		draftOps: NewCounterVec("vantage_draft_operations_total", "Draft tree operations by op/result.", []string{"op", "result"}),
		draftSaves: NewCounterVec("vantage_draft_saves_total", "Draft saves by trigger/status.", []string{"trigger", "status"}),
		draftSaveTime: NewHistogramVec(
			"vantage_draft_save_duration_seconds",
			"Draft save latency in seconds by trigger.",
			[]string{"trigger"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		),
		draftSessions: NewGauge("vantage_draft_open_sessions", "Draft sessions held in memory."),
		draftNodes: NewHistogramVec(
			"vantage_draft_submitted_nodes",
			"Indicators per submitted draft.",
			nil,
			[]float64{5, 10, 25, 50, 100, 250, 500, 1000},
		),

		dbStats:   NewGaugeVec("vantage_db_pool", "Database connection pool stats.", []string{"stat"}),
		redisUp:   NewGauge("vantage_redis_up", "Whether the last redis ping succeeded."),
		redisPing: NewGauge("vantage_redis_ping_seconds", "Latency of the last redis ping."),

		sloLatencyThreshold: latencyThreshold,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqTotal, m.apiReqError, m.apiReqGood,
		m.draftOps, m.draftSaves, m.draftSaveTime, m.draftSessions, m.draftNodes,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
	if m.sloLatencyThreshold > 0 && dur.Seconds() <= m.sloLatencyThreshold {
		m.apiReqGood.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// IncDraftOp counts one tree operation. result is "ok" or an error code.
func (m *Metrics) IncDraftOp(op, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.draftOps.Inc(op, result)
}

func (m *Metrics) ObserveDraftSave(trigger, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.draftSaves.Inc(trigger, status)
	m.draftSaveTime.Observe(dur.Seconds(), trigger)
}

func (m *Metrics) SetOpenDraftSessions(n int) {
	if m == nil {
		return
	}
	m.draftSessions.Set(float64(n))
}

func (m *Metrics) ObserveSubmittedNodes(n int) {
	if m == nil {
		return
	}
	m.draftNodes.Observe(float64(n))
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_seconds")
			}
		}
	}()
}

// StartRedisCollector pings rdb on every scrape interval. The caller owns rdb.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}
