package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics keeps the prometheus collectors of the pipeline plus a small health
// snapshot for the /health endpoint.
type Metrics struct {
	articles      *prometheus.CounterVec
	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram

	mu sync.RWMutex

	ArticlesStored        int64
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

// New registers the collectors on reg. A nil reg leaves them unregistered,
// which tests use to get a private set.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuedesk",
			Name:      "articles_total",
			Help:      "Candidates processed by ingestion, by outcome.",
		}, []string{"outcome"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuedesk",
			Name:      "oracle_calls_total",
			Help:      "Text oracle calls, by vendor and result.",
		}, []string{"vendor", "result"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "issuedesk",
			Name:      "oracle_call_seconds",
			Help:      "Text oracle call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"vendor"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuedesk",
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs, by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "issuedesk",
			Name:      "ingest_run_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		IsHealthy: true,
	}
	if reg != nil {
		reg.MustRegister(m.articles, m.oracleCalls, m.oracleLatency, m.runs, m.runDuration)
	}
	return m
}

func (m *Metrics) Article(outcome string) {
	m.articles.WithLabelValues(outcome).Inc()
	if outcome == "stored" {
		m.mu.Lock()
		m.ArticlesStored++
		m.mu.Unlock()
	}
}

// OracleCall has the shape of oracle.Observer.
func (m *Metrics) OracleCall(vendor string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.oracleCalls.WithLabelValues(vendor, result).Inc()
	m.oracleLatency.WithLabelValues(vendor).Observe(took.Seconds())
}

func (m *Metrics) RunFinished(status string, took time.Duration, runErr string) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(took.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = took
	m.TotalProcessingTime += took
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)

	m.LastRunTime = time.Now()
	if runErr != "" {
		m.LastError = runErr
		m.LastErrorTime = m.LastRunTime
		m.IsHealthy = false
		return
	}
	m.IsHealthy = true
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"articles_stored":            m.ArticlesStored,
		"runs":                       m.ProcessingCount,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
