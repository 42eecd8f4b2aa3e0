package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"studko/internal/admin"
	"studko/internal/auth"
	"studko/internal/booking"
	"studko/internal/chat"
	"studko/internal/models"
	"studko/internal/notes"
	"studko/pkg/logger"
)

type Verifier interface {
	Verify(raw string) (auth.Identity, error)
}

type Profiles interface {
	EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*models.Profile, error)
}

type Billing interface {
	CreateSubscriptionCheckout(ctx context.Context, profile *models.Profile) (string, string, error)
}

type Notes interface {
	List(ctx context.Context, subject string) ([]models.Note, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Note, error)
	Checkout(ctx context.Context, buyerID, noteID uuid.UUID) (*notes.CheckoutResult, error)
	DownloadURL(ctx context.Context, userID, noteID uuid.UUID) (string, error)
	ConnectOnboarding(ctx context.Context, userID uuid.UUID) (string, error)
}

type Bookings interface {
	Calendar(ctx context.Context, tutorID uuid.UUID) ([]booking.Day, error)
	Location() *time.Location
	Request(ctx context.Context, studentID, availabilityID uuid.UUID, note string) (*models.Booking, error)
	Confirm(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Complete(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Cancel(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	MarkPaid(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Checkout(ctx context.Context, studentID, bookingID uuid.UUID) (string, error)
	MyBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	Pending(ctx context.Context) ([]models.Booking, error)
	AddAvailability(ctx context.Context, userID uuid.UUID, date, start, end string) (*models.AvailabilityDate, error)
	RemoveAvailability(ctx context.Context, userID, availabilityID uuid.UUID) error
}

type Reviews interface {
	SubmitTutorApplication(ctx context.Context, userID uuid.UUID, app admin.TutorApplication) (*models.Tutor, error)
	SubmitClaim(ctx context.Context, userID uuid.UUID, platform, postURL string) (*models.SocialClaim, error)
	PendingTutors(ctx context.Context) ([]models.Tutor, error)
	PendingClaims(ctx context.Context) ([]models.SocialClaim, error)
	ApproveTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error)
	RejectTutor(ctx context.Context, id uuid.UUID, reason string) (*models.Tutor, error)
	ApproveClaim(ctx context.Context, id uuid.UUID) (*models.SocialClaim, error)
	RejectClaim(ctx context.Context, id uuid.UUID, reason string) (*models.SocialClaim, error)
}

type Chat interface {
	Stream(ctx context.Context, userID, conversationID uuid.UUID, message string, sink chat.Sink) error
	Conversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	Messages(ctx context.Context, userID, conversationID uuid.UUID) ([]models.Message, error)
	Flashcards(ctx context.Context, userID uuid.UUID, subject, text string, count int) (*models.FlashcardSet, error)
	Quiz(ctx context.Context, userID uuid.UUID, subject, text string, count int) ([]models.QuizQuestion, error)
	SaveQuizResult(ctx context.Context, userID uuid.UUID, subject string, score, total int) (*models.QuizResult, error)
}

type Inbox interface {
	Inbox(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// QuotaReporter is optional. When set, /me includes the remaining free AI uses.
type QuotaReporter interface {
	Enabled() bool
	Remaining(ctx context.Context, userID uuid.UUID) (int, error)
}

// Dependencies are the services behind the HTTP API. The webhook handlers
// are mounted as they are.
type Dependencies struct {
	Verifier            Verifier
	Profiles            Profiles
	Billing             Billing
	Notes               Notes
	Bookings            Bookings
	Reviews             Reviews
	Chat                Chat
	Inbox               Inbox
	Quota               QuotaReporter
	SubscriptionWebhook http.Handler
	PurchaseWebhook     http.Handler
}

type Server struct {
	server *http.Server
	deps   Dependencies
	logger *logger.Logger
}

func NewServer(port string, deps Dependencies, logger *logger.Logger) *Server {
	s := &Server{deps: deps, logger: logger}

	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// AI answers are streamed, so the write budget covers a whole stream.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
