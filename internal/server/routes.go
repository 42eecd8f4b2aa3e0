package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	// Common middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The chat stream runs outside the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/ai/chat", s.handleChatStream)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		// Stripe webhooks authenticate by signature
		if s.deps.SubscriptionWebhook != nil {
			r.Handle("/webhooks/stripe", s.deps.SubscriptionWebhook)
		}
		if s.deps.PurchaseWebhook != nil {
			r.Handle("/webhooks/note-purchase", s.deps.PurchaseWebhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/me", s.handleMe)
			r.Post("/billing/subscription/checkout", s.handleSubscriptionCheckout)
			r.Post("/billing/connect/onboarding", s.handleConnectOnboarding)

			r.Route("/notes", func(r chi.Router) {
				r.Get("/", s.handleListNotes)
				r.Get("/{id}", s.handleGetNote)
				r.Post("/{id}/checkout", s.handleNoteCheckout)
				r.Get("/{id}/download", s.handleNoteDownload)
			})

			r.Route("/tutors", func(r chi.Router) {
				r.Post("/apply", s.handleTutorApply)
				r.Post("/me/availability", s.handleAddAvailability)
				r.Delete("/me/availability/{id}", s.handleRemoveAvailability)
				r.Get("/{id}/calendar", s.handleCalendar)
			})

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", s.handleRequestBooking)
				r.Get("/", s.handleMyBookings)
				r.Post("/{id}/cancel", s.handleCancelBooking)
				r.Post("/{id}/checkout", s.handleBookingCheckout)
			})

			r.Post("/claims", s.handleSubmitClaim)

			r.Get("/ai/conversations", s.handleConversations)
			r.Get("/ai/conversations/{id}/messages", s.handleMessages)
			r.Post("/ai/flashcards", s.handleFlashcards)
			r.Post("/ai/quiz", s.handleQuiz)
			r.Post("/quiz-results", s.handleQuizResult)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkRead)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/tutors/pending", s.handlePendingTutors)
				r.Post("/tutors/{id}/approve", s.handleApproveTutor)
				r.Post("/tutors/{id}/reject", s.handleRejectTutor)

				r.Get("/claims/pending", s.handlePendingClaims)
				r.Post("/claims/{id}/approve", s.handleApproveClaim)
				r.Post("/claims/{id}/reject", s.handleRejectClaim)

				r.Get("/bookings/pending", s.handlePendingBookings)
				r.Post("/bookings/{id}/{action}", s.handleBookingAction)
			})
		})
	})

	return r
}
