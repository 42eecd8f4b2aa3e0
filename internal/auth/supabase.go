package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// Identity is the caller behind a verified Supabase access token.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type supabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens issued by Supabase Auth.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier validates tokens against the project JWT secret. When
// supabaseURL is set the issuer must be <supabaseURL>/auth/v1.
func NewVerifier(secret, supabaseURL string) *Verifier {
	issuer := ""
	if supabaseURL != "" {
		issuer = strings.TrimRight(supabaseURL, "/") + "/auth/v1"
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (v *Verifier) Verify(raw string) (Identity, error) {
	if len(v.secret) == 0 || strings.TrimSpace(raw) == "" {
		return Identity{}, ErrUnauthorized
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &supabaseClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || token == nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	if claims.Role != "authenticated" {
		return Identity{}, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return Identity{}, ErrUnauthorized
	}

	return Identity{UserID: userID, Email: claims.Email, Role: claims.Role}, nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
