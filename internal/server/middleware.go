package server

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studko/internal/auth"
	"studko/internal/models"
)

type profileKey struct{}

func withProfile(ctx context.Context, p *models.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// profileFrom returns the caller's profile. Only valid behind authenticate.
func profileFrom(ctx context.Context) *models.Profile {
	p, _ := ctx.Value(profileKey{}).(*models.Profile)
	return p
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrap the writer to capture status and size
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infow("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// authenticate verifies the Supabase bearer token and loads the caller's
// profile, creating it on first sight.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify the access token
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.deps.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		// Load or create the profile
		profile, err := s.deps.Profiles.EnsureProfile(r.Context(), identity.UserID, identity.Email)
		if err != nil {
			s.logger.Errorw("Failed to load profile", "error", err, "userID", identity.UserID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(withProfile(ctx, profile)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := profileFrom(r.Context())
		if profile == nil || !profile.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
