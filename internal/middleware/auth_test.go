package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forum/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func TestAuthRequired(t *testing.T) {
	auth := NewAuthenticator(&config.Config{JWTSecret: testSecret})

	app := fiber.New()
	app.Get("/test", auth.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	valid, err := auth.IssueToken(123, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken(123, -time.Hour)
	require.NoError(t, err)

	other := NewAuthenticator(&config.Config{JWTSecret: "another-secret-another-secret-another"})
	foreign, err := other.IssueToken(123, time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "123"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	zeroSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "0",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID uint
	}{
		{"Happy Path", "Bearer " + valid, http.StatusOK, 123},
		{"Missing Header", "", http.StatusUnauthorized, 0},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, 0},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized, 0},
		{"Expired Token", "Bearer " + expired, http.StatusUnauthorized, 0},
		{"Wrong Secret", "Bearer " + foreign, http.StatusUnauthorized, 0},
		{"None Algorithm", "Bearer " + noneAlg, http.StatusUnauthorized, 0},
		{"Zero Subject", "Bearer " + zeroSubject, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(tt.expectedUserID), body["userID"])
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	auth := NewAuthenticator(&config.Config{JWTSecret: testSecret})

	app := fiber.New()
	app.Get("/test", auth.OptionalAuth(), func(c *fiber.Ctx) error {
		_, ok := c.Locals("userID").(uint)
		return c.JSON(fiber.Map{"authenticated": ok})
	})

	token, err := auth.IssueToken(7, time.Hour)
	require.NoError(t, err)

	for header, want := range map[string]bool{
		"":                     false,
		"Bearer " + token:      true,
		"Bearer not-a-token":   false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		assert.Equal(t, want, body["authenticated"], "header %q", header)
	}
}

func TestAuthenticator_Issuer(t *testing.T) {
	issuing := NewAuthenticator(&config.Config{JWTSecret: testSecret, JWTIssuer: "identity"})
	checking := NewAuthenticator(&config.Config{JWTSecret: testSecret, JWTIssuer: "someone-else"})

	token, err := issuing.IssueToken(5, time.Hour)
	require.NoError(t, err)

	id, err := issuing.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)

	_, err = checking.ParseToken(token)
	assert.Error(t, err)
}
