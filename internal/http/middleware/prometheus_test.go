package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrometheus(t *testing.T) (*PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)
	return m, reg
}

func TestPrometheusMiddleware(t *testing.T) {
	promMiddleware, _ := newTestPrometheus(t)

	app := fiber.New()
	app.Use(promMiddleware.Handler())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Delete("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
	})

	tests := []struct {
		method, path, status string
		wantStatus           int
	}{
		{"GET", "/test", "200", fiber.StatusOK},
		{"DELETE", "/test", "200", fiber.StatusOK},
		{"GET", "/error", "429", fiber.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			count := testutil.ToFloat64(promMiddleware.requestCount.WithLabelValues(tt.method, tt.path, tt.status))
			assert.Equal(t, float64(1), count)
		})
	}
}

func TestPrometheusMiddleware_ExcludeMetrics(t *testing.T) {
	promMiddleware, reg := newTestPrometheus(t)

	app := fiber.New()
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("GET", "/metrics", nil))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		switch mf.GetName() {
		case "http_requests_total", "http_request_duration_seconds":
			assert.Empty(t, mf.GetMetric(), mf.GetName())
		}
	}
}

func TestPrometheusMiddleware_PathPattern(t *testing.T) {
	promMiddleware, _ := newTestPrometheus(t)

	app := fiber.New()
	app.Use(promMiddleware.Handler())
	app.Get("/qrcodes/:qrId/view", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("GET", "/qrcodes/QR-abc/view", nil))
	app.Test(httptest.NewRequest("GET", "/qrcodes/QR-def/view", nil))

	count := testutil.ToFloat64(promMiddleware.requestCount.WithLabelValues("GET", "/qrcodes/:qrId/view", "200"))
	assert.Equal(t, float64(2), count)
	assert.Equal(t, 1, testutil.CollectAndCount(promMiddleware.requestDuration))
}

func TestNewPrometheusMiddleware_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMiddleware(reg)
	assert.Error(t, err)
}

func TestPrometheusMiddleware_RequestSizeAndInFlight(t *testing.T) {
	promMiddleware, _ := newTestPrometheus(t)

	app := fiber.New()
	app.Use(promMiddleware.Handler())
	app.Post("/documents", func(c *fiber.Ctx) error {
		assert.Equal(t, float64(1), testutil.ToFloat64(promMiddleware.inFlight))
		return c.SendStatus(fiber.StatusCreated)
	})

	req := httptest.NewRequest("POST", "/documents", strings.NewReader("0123456789"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	assert.Equal(t, float64(0), testutil.ToFloat64(promMiddleware.inFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(promMiddleware.requestBytes))
}
