// Package middleware provides the HTTP middleware chain: identity, logging,
// rate limiting, tracing and metrics.
package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"forum/internal/config"
	"forum/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingSubject = errors.New("token is missing a subject")
	errBadSubject     = errors.New("token subject is not a user ID")
)

// Authenticator validates bearer tokens issued by the identity provider.
// The forum never authenticates users itself; it only trusts the subject.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an Authenticator from the JWT settings in cfg.
func NewAuthenticator(cfg *config.Config) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer}
}

// ParseToken validates a raw token and returns the user ID in its subject.
func (a *Authenticator) ParseToken(raw string) (uint, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, errMissingSubject
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, errBadSubject
	}
	return uint(id), nil
}

// IssueToken signs a token for userID. Used by development tooling and tests.
func (a *Authenticator) IssueToken(userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// user ID in c.Locals("userID").
func (a *Authenticator) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		userID, err := a.ParseToken(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		setUser(c, userID)
		return c.Next()
	}
}

// OptionalAuth sets c.Locals("userID") when a valid token is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw, ok := bearerToken(c); ok {
			if userID, err := a.ParseToken(raw); err == nil {
				setUser(c, userID)
			}
		}
		return c.Next()
	}
}

// setUser stores the user ID in locals and syncs it to the user context for
// logging and downstream services.
func setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
