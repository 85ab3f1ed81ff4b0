package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	gatherer   prometheus.Gatherer
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a metrics manager on the default registry.
func NewManager() *Manager {
	return newManager(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewManagerWithRegistry creates a metrics manager on its own registry.
func NewManagerWithRegistry(reg *prometheus.Registry) *Manager {
	return newManager(reg, reg)
}

func newManager(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(reg),
		gatherer:   gatherer,
		logger:     logrus.WithField("component", "metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance, or nil for a nil manager.
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	if m == nil {
		return nil
	}
	return m.prometheus
}

// Handler serves the registry this manager writes to.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
