package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclocker/internal/config"
	"doclocker/internal/model"
)

func TestAuthenticator(t *testing.T) {
	auth, err := NewAuthenticator(config.AuthConfig{JWTSecret: "s3cret", Issuer: "identity"})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(auth.Handler())
	app.Get("/me", func(c *fiber.Ctx) error {
		actor, _ := ActorFrom(c)
		return c.JSON(actor)
	})
	app.Get("/admin", RequireRole(model.RoleSupervisor), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	supervisor := model.Actor{ID: "sup-1", Role: model.RoleSupervisor, Department: "maintenance"}
	good, err := auth.Sign(supervisor, time.Hour)
	require.NoError(t, err)
	userToken, err := auth.Sign(model.Actor{ID: "usr-1", Role: model.RoleUser}, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Sign(supervisor, -time.Hour)
	require.NoError(t, err)

	other, _ := NewAuthenticator(config.AuthConfig{JWTSecret: "other", Issuer: "identity"})
	wrongKey, _ := other.Sign(supervisor, time.Hour)
	foreign, _ := NewAuthenticator(config.AuthConfig{JWTSecret: "s3cret", Issuer: "elsewhere"})
	wrongIssuer, _ := foreign.Sign(supervisor, time.Hour)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "root",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: "identity"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: "identity"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{name: "valid token", path: "/me", header: "Bearer " + good, wantStatus: fiber.StatusOK},
		{name: "missing header", path: "/me", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong scheme", path: "/me", header: "Basic " + good, wantStatus: fiber.StatusUnauthorized},
		{name: "expired", path: "/me", header: "Bearer " + expired, wantStatus: fiber.StatusUnauthorized},
		{name: "wrong key", path: "/me", header: "Bearer " + wrongKey, wantStatus: fiber.StatusUnauthorized},
		{name: "wrong issuer", path: "/me", header: "Bearer " + wrongIssuer, wantStatus: fiber.StatusUnauthorized},
		{name: "unknown role", path: "/me", header: "Bearer " + badRole, wantStatus: fiber.StatusUnauthorized},
		{name: "unexpected algorithm", path: "/me", header: "Bearer " + hs512, wantStatus: fiber.StatusUnauthorized},
		{name: "role gate passes", path: "/admin", header: "Bearer " + good, wantStatus: fiber.StatusNoContent},
		{name: "role gate rejects", path: "/admin", header: "Bearer " + userToken, wantStatus: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == fiber.StatusOK {
				var got model.Actor
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				assert.Equal(t, supervisor, got)
			}
		})
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(config.AuthConfig{})
	assert.Error(t, err)
}
