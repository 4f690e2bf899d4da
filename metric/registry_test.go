package metric

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-service", "test_counter", counter)
	require.NoError(t, err)
	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
	assert.True(t, registry.IsRegistered("test-service", "test_counter"))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("svc", "dup_gauge", gauge))

	err := registry.RegisterGauge("svc", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector under a different key collides inside Prometheus
	err = registry.RegisterGauge("other", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Vectors(t *testing.T) {
	registry := NewMetricsRegistry()

	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "vec_total", Help: "v"}, []string{"node"})
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "vec_gauge", Help: "v"}, []string{"node"})
	histVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "vec_seconds", Help: "v"}, []string{"node"})

	require.NoError(t, registry.RegisterCounterVec("svc", "vec_total", counterVec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "vec_gauge", gaugeVec))
	require.NoError(t, registry.RegisterHistogramVec("svc", "vec_seconds", histVec))

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "plain_seconds", Help: "h"})
	require.NoError(t, registry.Register("svc", "plain_seconds", hist))
	assert.True(t, registry.IsRegistered("svc", "plain_seconds"))
	assert.True(t, errors.IsInvalid(registry.Register("svc", "plain_seconds", hist)))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total", Help: "gone"})
	require.NoError(t, registry.RegisterCounter("svc", "gone_total", counter))

	assert.True(t, registry.Unregister("svc", "gone_total"))
	assert.False(t, registry.Unregister("svc", "gone_total"))
	assert.False(t, registry.IsRegistered("svc", "gone_total"))

	// Re-registration is allowed after unregister
	require.NoError(t, registry.RegisterCounter("svc", "gone_total", counter))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_%d_total", i)
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "c"})
			errs <- registry.RegisterCounter("svc", name, c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "served_total", Help: "s"})
	require.NoError(t, registry.RegisterCounter("svc", "served_total", counter))
	counter.Add(3)

	var healthy atomic.Bool
	healthy.Store(true)
	server := NewServer(0, "", registry, func() (any, bool) {
		return map[string]bool{"healthy": healthy.Load()}, healthy.Load()
	})

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "served_total 3")

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "false"))
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(0, "/metrics", NewMetricsRegistry(), nil)

	require.NoError(t, server.Start())
	assert.NotEmpty(t, server.Address())
	require.Error(t, server.Start(), "second start must fail")

	require.NoError(t, server.Stop(time.Second))
	require.NoError(t, server.Stop(time.Second))
	assert.Empty(t, server.Address())
}
