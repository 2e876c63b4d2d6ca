package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	j := NewJWT("super-secret", time.Hour)

	tok, err := j.GenerateToken("user-123", "u@example.com")
	require.NoError(t, err)

	userID, err := j.ValidateToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestValidateRejectsExpiredAndForeignTokens(t *testing.T) {
	expired := NewJWT("secret", -time.Second)
	tok, err := expired.GenerateToken("u1", "")
	require.NoError(t, err)
	_, err = expired.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWT("other-secret", time.Hour)
	tok, err = other.GenerateToken("u1", "")
	require.NoError(t, err)
	_, err = NewJWT("secret", time.Hour).ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWT("secret", time.Hour).ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestValidateRejectsOtherSigningMethods(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWT("secret", time.Hour).ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}
