package auth

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func validClaims(userID uuid.UUID) supabaseClaims {
	now := time.Now()
	return supabaseClaims{
		Email: "student@studko.sk",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    "https://abc.supabase.co/auth/v1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestVerifyAcceptsSupabaseToken(t *testing.T) {
	userID := uuid.New()
	v := NewVerifier(testSecret, "https://abc.supabase.co/")

	id, err := v.Verify(signToken(t, testSecret, validClaims(userID)))
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "student@studko.sk", id.Email)
}

func TestVerifyRejects(t *testing.T) {
	userID := uuid.New()
	v := NewVerifier(testSecret, "https://abc.supabase.co")

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	anon := validClaims(userID)
	anon.Role = "anon"

	wrongIssuer := validClaims(userID)
	wrongIssuer.Issuer = "https://evil.example/auth/v1"

	badSubject := validClaims(userID)
	badSubject.Subject = "42"

	noExpiry := validClaims(userID)
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "another-secret-another-secret-another", validClaims(userID)),
		"expired":      signToken(t, testSecret, expired),
		"anon role":    signToken(t, testSecret, anon),
		"wrong issuer": signToken(t, testSecret, wrongIssuer),
		"bad subject":  signToken(t, testSecret, badSubject),
		"no expiry":    signToken(t, testSecret, noExpiry),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(raw)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyWithoutIssuerCheck(t *testing.T) {
	claims := validClaims(uuid.New())
	claims.Issuer = "anything"

	_, err := NewVerifier(testSecret, "").Verify(signToken(t, testSecret, claims))
	assert.NoError(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	_, ok = BearerToken("Basic xyz")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	id := Identity{UserID: uuid.New()}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
