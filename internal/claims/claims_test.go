package claims_test

import (
	"encoding/base64"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoctl/internal/claims"
)

func sign(t *testing.T, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestDecode_ValidToken(t *testing.T) {
	exp := time.Unix(1900000000, 0)
	tok := sign(t, jwt.MapClaims{
		"uuid":       "6a7c1f5e-7c7a-4df4-9d1c-3f3f0f2b9d10",
		"email":      "ada@example.com",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"token_type": "access",
		"exp":        exp.Unix(),
	})

	c, err := claims.NewJWTDecoder().Decode(tok)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, "Ada Lovelace", c.FullName())
	assert.Equal(t, "access", c.TokenType)
	assert.Equal(t, "6a7c1f5e-7c7a-4df4-9d1c-3f3f0f2b9d10", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
}

func TestDecode_ExpiredTokenStillDecodes(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"email": "a@b.c", "exp": time.Now().Add(-time.Hour).Unix()})

	_, err := claims.NewJWTDecoder().Decode(tok)
	assert.NoError(t, err, "expiry is checked by the caller, not the decoder")
}

func TestDecode_IsDeterministic(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"email": "a@b.c", "exp": 1900000000})
	d := claims.NewJWTDecoder()

	first, err := d.Decode(tok)
	require.NoError(t, err)
	second, err := d.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecode_Malformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", header + ".e30"},
		{"four segments", header + ".e30.sig.extra"},
		{"payload not base64", header + ".!!!.sig"},
		{"payload not json", header + "." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".sig"},
		{"missing email", sign(t, jwt.MapClaims{"exp": 1900000000})},
		{"missing exp", sign(t, jwt.MapClaims{"email": "a@b.c"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := claims.NewJWTDecoder().Decode(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, claims.ErrDecode)
		})
	}
}
