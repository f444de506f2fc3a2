package monitoring_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/monitoring"
)

func TestCounterAccumulates(t *testing.T) {
	reg := &monitoring.Registry{}
	c := reg.Counter("t_counter", "help", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, float64(5), c.Get())
}

func TestGaugeSetOverwrites(t *testing.T) {
	reg := &monitoring.Registry{}
	g := reg.Gauge("t_gauge", "help", nil)
	g.Set(3)
	g.Set(7)
	assert.Equal(t, float64(7), g.Get())
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	reg := &monitoring.Registry{}
	a := reg.Counter("shared", "help", nil)
	b := reg.Counter("shared", "help", nil)
	a.Inc()
	assert.Equal(t, float64(1), b.Get())
}

func TestHealthCheckerReportsUnhealthy(t *testing.T) {
	hc := monitoring.NewHealthChecker()
	hc.AddCheck("db", func() error { return assertErr{} })

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	hc.ReadyzHandler()(rec, req)

	require.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestHealthCheckerReportsHealthyWithNoChecks(t *testing.T) {
	hc := monitoring.NewHealthChecker()
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	hc.ReadyzHandler()(rec, req)
	assert.Equal(t, 200, rec.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "unavailable" }
