package httpobs_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetcore/httpobs"
	"fleetcore/monitoring"
)

func TestHealthzReportsAlive(t *testing.T) {
	health := monitoring.NewHealthChecker()
	server := httpobs.New("127.0.0.1:0", health, monitoring.NewCustomSink(), []string{"*"})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestReadyzReflectsRegisteredChecks(t *testing.T) {
	health := monitoring.NewHealthChecker()
	health.AddCheck("pool", func() error { return assertErr{} })
	server := httpobs.New("127.0.0.1:0", health, monitoring.NewCustomSink(), []string{"*"})

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestMetricsServesCustomSinkExposition(t *testing.T) {
	reg := monitoring.GetRegistry()
	reg.Counter("httpobs_test_counter", "test counter", nil).Inc()

	health := monitoring.NewHealthChecker()
	server := httpobs.New("127.0.0.1:0", health, monitoring.NewCustomSink(), []string{"*"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "httpobs_test_counter")
}

type assertErr struct{}

func (assertErr) Error() string { return "down" }
