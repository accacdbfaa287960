package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"doclocker/internal/access"
	"doclocker/internal/config"
	"doclocker/internal/model"
)

// ActorLocalKey is the key used to store the authenticated model.Actor in locals.
const ActorLocalKey = "actor"

// Claims is the access token payload. The subject is the user id.
type Claims struct {
	Role       string `json:"role"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the identity service.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator returns an Authenticator for cfg. An empty secret is rejected.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}, nil
}

// Verify parses token and returns the actor it describes.
func (a *Authenticator) Verify(token string) (model.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return model.Actor{}, err
	}

	if claims.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{ID: claims.Subject, Role: role, Department: claims.Department}, nil
}

// Sign issues a token for actor valid for ttl. Used by the token command and tests.
func (a *Authenticator) Sign(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:       string(actor.Role),
		Department: actor.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Handler rejects requests without a valid bearer token and stores the
// actor in locals.
func (a *Authenticator) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		actor, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(ActorLocalKey, actor)
		return c.Next()
	}
}

// RequireRole rejects actors ranked below min. It must run after Handler.
func RequireRole(min model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		if !access.HasPermission(actor.Role, min) {
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("requires %s role or higher", min))
		}
		return c.Next()
	}
}

// ActorFrom returns the actor stored by Authenticator.Handler.
func ActorFrom(c *fiber.Ctx) (model.Actor, bool) {
	actor, ok := c.Locals(ActorLocalKey).(model.Actor)
	return actor, ok
}
