package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclocker/internal/model"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString(GetRequestID(c))
	})

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "generates an id when absent"},
		{name: "preserves a well-formed id", header: "test-id-123", wantSame: true},
		{name: "replaces an id with control characters", header: "abc\tdef"},
		{name: "replaces an oversized id", header: strings.Repeat("x", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			rid := resp.Header.Get(RequestIDHeader)
			assert.NotEmpty(t, rid)
			if tt.wantSame {
				assert.Equal(t, tt.header, rid)
			} else {
				assert.NotEqual(t, tt.header, rid)
			}

			buf := new(bytes.Buffer)
			buf.ReadFrom(resp.Body)
			assert.Equal(t, rid, buf.String())
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	loc := time.UTC

	app.Use(RequestID())
	app.Use(LoggerWithWriter(&buf, loc))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(ActorLocalKey, model.Actor{ID: "usr-1", Role: model.RoleUser})
		return c.Next()
	})

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadGateway, "upstream")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var logData map[string]any
	err := json.Unmarshal(buf.Bytes(), &logData)
	require.NoError(t, err)

	assert.NotEmpty(t, logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.Equal(t, "usr-1", logData["actor_id"])
	assert.Equal(t, "info", logData["level"])
	assert.NotNil(t, logData["latency"])
	assert.NotEmpty(t, logData["ts"])

	buf.Reset()
	resp, _ = app.Test(httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	logData = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
	assert.Equal(t, float64(fiber.StatusBadGateway), logData["status"])
	assert.Equal(t, "error", logData["level"])
}
