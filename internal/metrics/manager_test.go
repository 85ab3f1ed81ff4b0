package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestManager(t *testing.T) {
	t.Run("nil manager has no recorders", func(t *testing.T) {
		var m *Manager
		assert.Nil(t, m.GetPrometheusMetrics())
	})

	t.Run("records on its own registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewManagerWithRegistry(reg)
		pm := m.GetPrometheusMetrics()
		require.NotNil(t, pm)

		pm.RecordBlockObserved(42)
		pm.RecordBlockObserved(43)
		pm.RecordBalanceRead("token_balance", false)
		pm.SubscriptionOpened()
		pm.SubscriptionOpened()
		pm.SubscriptionClosed()
		pm.RecordTransaction("stake", "ambiguous", time.Second)

		families := gather(t, reg)
		assert.Equal(t, 2.0, families["stakebet_blocks_observed_total"].GetMetric()[0].GetCounter().GetValue())
		assert.Equal(t, 43.0, families["stakebet_latest_observed_block"].GetMetric()[0].GetGauge().GetValue())
		assert.Equal(t, 1.0, families["stakebet_active_block_subscriptions"].GetMetric()[0].GetGauge().GetValue())

		reads := families["stakebet_balance_reads_total"].GetMetric()
		require.Len(t, reads, 1)
		labels := map[string]string{}
		for _, l := range reads[0].GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		assert.Equal(t, map[string]string{"field": "token_balance", "status": "error"}, labels)

		require.Contains(t, families, "stakebet_transactions_total")
	})

	t.Run("system metrics and handler", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewManagerWithRegistry(reg)
		m.UpdateSystemMetrics()

		families := gather(t, reg)
		assert.Greater(t, families["stakebet_goroutines"].GetMetric()[0].GetGauge().GetValue(), 0.0)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "stakebet_memory_usage_bytes")
	})
}
