package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(issuer string) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "officer-7",
		Role:   "officer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	verifier := NewTokenVerifier("secret", "campus-idp")
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("campus-idp"))

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "officer-7", claims.UserID)
	assert.Equal(t, models.RoleOfficer, claims.Role)
}

func TestTokenVerifierFallsBackToSubject(t *testing.T) {
	verifier := NewTokenVerifier("secret", "")
	claims := validClaims("anyone")
	claims.UserID = ""
	claims.Subject = "reviewer-3"

	parsed, err := verifier.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), claims))
	require.NoError(t, err)
	assert.Equal(t, "reviewer-3", parsed.UserID)
}

func TestTokenVerifierRejectsBadTokens(t *testing.T) {
	verifier := NewTokenVerifier("secret", "campus-idp")

	expired := validClaims("campus-idp")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("campus-idp")
	noExpiry.ExpiresAt = nil

	anonymous := validClaims("campus-idp")
	anonymous.UserID = ""

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("campus-idp")),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("elsewhere")),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, []byte("secret"), validClaims("campus-idp")),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), expired),
		"no expiry":    signToken(t, jwt.SigningMethodHS256, []byte("secret"), noExpiry),
		"no subject":   signToken(t, jwt.SigningMethodHS256, []byte("secret"), anonymous),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
		})
	}
}
