package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/marketcore/config"
)

func setJWTConfig(t *testing.T) {
	t.Helper()
	config.Set(config.AppConfig{JWTSecret: "jwt-test-secret", RedisDisabled: true})
}

func TestTokenRoundTrip(t *testing.T) {
	setJWTConfig(t)

	tok, err := GenerateToken(42, "alice", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, TokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseTokenRejects(t *testing.T) {
	setJWTConfig(t)
	secret := []byte("jwt-test-secret")
	exp := jwt.NewNumericDate(time.Now().Add(time.Minute))

	sign := func(method jwt.SigningMethod, key interface{}, c Claims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}

	expired, err := GenerateToken(1, "bob", -time.Minute)
	require.NoError(t, err)

	cases := map[string]string{
		"expired":      expired,
		"garbage":      "not.a.token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer, ExpiresAt: exp}}),
		"wrong issuer": sign(jwt.SigningMethodHS256, secret, Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: "forum", ExpiresAt: exp}}),
		"no expiry":    sign(jwt.SigningMethodHS256, secret, Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer}}),
		"hs512":        sign(jwt.SigningMethodHS512, secret, Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer, ExpiresAt: exp}}),
		"no user":      sign(jwt.SigningMethodHS256, secret, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer, ExpiresAt: exp}}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
