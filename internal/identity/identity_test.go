package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, key string, method jwt.SigningMethod, c claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, c).SignedString([]byte(key))
	require.NoError(t, err)

	return token
}

func validClaims() claims {
	return claims{
		Email:   "alice@example.com",
		Name:    "Alice",
		Picture: "https://example.com/a.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "google-oauth2|42",
			Issuer:    "https://id.example.com/",
			Audience:  jwt.ClaimStrings{"flipledger"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTVerifier(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(secret, "https://id.example.com/", "flipledger")

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: sign(t, secret, jwt.SigningMethodHS256, validClaims())},
		{name: "wrong_secret", token: sign(t, "other", jwt.SigningMethodHS256, validClaims()), wantErr: true},
		{name: "wrong_alg", token: sign(t, secret, jwt.SigningMethodHS512, validClaims()), wantErr: true},
		{name: "expired", token: sign(t, secret, jwt.SigningMethodHS256, expired), wantErr: true},
		{name: "wrong_audience", token: sign(t, secret, jwt.SigningMethodHS256, wrongAud), wantErr: true},
		{name: "missing_subject", token: sign(t, secret, jwt.SigningMethodHS256, noSubject), wantErr: true},
		{name: "missing_expiry", token: sign(t, secret, jwt.SigningMethodHS256, noExpiry), wantErr: true},
		{name: "garbage", token: "not.a.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := v.Verify(t.Context(), tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "google-oauth2|42", id.Subject)
			assert.Equal(t, "alice@example.com", id.Email)
			assert.Equal(t, "Alice", id.DisplayName)
			assert.Equal(t, "https://example.com/a.png", id.AvatarURL)
		})
	}
}
