package admin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/pkg/logger"
)

var (
	ErrNotPending       = errors.New("item is no longer pending")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrInvalidInput     = errors.New("invalid input")
)

const maxPricePerHourCents = 20000

// claimHosts lists the domains a post URL must belong to per platform.
var claimHosts = map[string][]string{
	"tiktok":    {"tiktok.com"},
	"instagram": {"instagram.com"},
	"youtube":   {"youtube.com", "youtu.be"},
}

type Store interface {
	GetTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error)
	CreateTutorApplication(ctx context.Context, t *models.Tutor) error
	ListTutorsByStatus(ctx context.Context, status string) ([]models.Tutor, error)
	ReviewTutor(ctx context.Context, id uuid.UUID, status, reason string) (*models.Tutor, error)

	GetClaim(ctx context.Context, id uuid.UUID) (*models.SocialClaim, error)
	CreateClaim(ctx context.Context, c *models.SocialClaim) error
	ListClaimsByStatus(ctx context.Context, status string) ([]models.SocialClaim, error)
	ReviewClaim(ctx context.Context, id uuid.UUID, status, reason string) (*models.SocialClaim, error)
}

type Notifier interface {
	User(ctx context.Context, userID uuid.UUID, kind, title, body string, withEmail bool)
	Discord(ctx context.Context, content string)
	Operator(ctx context.Context, alert notify.OperatorAlert)
}

// Service runs the tutor application and social claim review flows.
// Review methods assume the caller is already authorized as operator.
type Service struct {
	store    Store
	notifier Notifier
	logger   *logger.Logger
}

func NewService(store Store, notifier Notifier, l *logger.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: l}
}

type TutorApplication struct {
	Bio               string   `json:"bio"`
	Subjects          []string `json:"subjects"`
	PricePerHourCents int64    `json:"price_per_hour_cents"`
}

func (s *Service) SubmitTutorApplication(ctx context.Context, userID uuid.UUID, app TutorApplication) (*models.Tutor, error) {
	// Validate application
	bio := strings.TrimSpace(app.Bio)
	if len([]rune(bio)) < 20 {
		return nil, fmt.Errorf("%w: bio must have at least 20 characters", ErrInvalidInput)
	}
	var subjects []string
	for _, subj := range app.Subjects {
		if subj = strings.TrimSpace(subj); subj != "" {
			subjects = append(subjects, subj)
		}
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%w: at least one subject is required", ErrInvalidInput)
	}
	if app.PricePerHourCents <= 0 || app.PricePerHourCents > maxPricePerHourCents {
		return nil, fmt.Errorf("%w: price per hour out of range", ErrInvalidInput)
	}

	// A rejected applicant may submit again
	t := &models.Tutor{UserID: userID, Bio: bio, Subjects: subjects, PricePerHourCents: app.PricePerHourCents}
	if err := s.store.CreateTutorApplication(ctx, t); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	// Announce on Discord and ask the operator to review
	s.logger.Infow("Tutor application submitted", "tutorID", t.ID, "userID", userID)
	summary := fmt.Sprintf("🎓 Nová prihláška tútora\nPredmety: %s\nCena: %.2f €/h\n%s",
		strings.Join(subjects, ", "), float64(t.PricePerHourCents)/100, bio)
	s.notifier.Discord(ctx, summary)
	s.notifier.Operator(ctx, notify.OperatorAlert{
		Text: summary,
		Actions: []notify.Action{
			{Label: "✅ Schváliť", Data: notify.CallbackData("tutor", "approve", t.ID)},
			{Label: "❌ Zamietnuť", Data: notify.CallbackData("tutor", "reject", t.ID)},
		},
	})
	return t, nil
}

func (s *Service) SubmitClaim(ctx context.Context, userID uuid.UUID, platform, postURL string) (*models.SocialClaim, error) {
	// Validate platform and post URL
	platform = strings.ToLower(strings.TrimSpace(platform))
	if !models.ClaimPlatforms[platform] {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidInput, platform)
	}
	postURL = strings.TrimSpace(postURL)
	if !validPostURL(platform, postURL) {
		return nil, fmt.Errorf("%w: post url does not belong to %s", ErrInvalidInput, platform)
	}

	c := &models.SocialClaim{UserID: userID, Platform: platform, PostURL: postURL}
	if err := s.store.CreateClaim(ctx, c); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	// Announce on Discord and ask the operator to review
	s.logger.Infow("Social claim submitted", "claimID", c.ID, "userID", userID, "platform", platform)
	summary := fmt.Sprintf("📱 Nová %s výzva\n%s", platform, postURL)
	s.notifier.Discord(ctx, summary)
	s.notifier.Operator(ctx, notify.OperatorAlert{
		Text: summary,
		Actions: []notify.Action{
			{Label: "✅ Schváliť", Data: notify.CallbackData("claim", "approve", c.ID)},
			{Label: "❌ Zamietnuť", Data: notify.CallbackData("claim", "reject", c.ID)},
		},
	})
	return c, nil
}

func (s *Service) PendingTutors(ctx context.Context) ([]models.Tutor, error) {
	return s.store.ListTutorsByStatus(ctx, models.ReviewPending)
}

func (s *Service) PendingClaims(ctx context.Context) ([]models.SocialClaim, error) {
	return s.store.ListClaimsByStatus(ctx, models.ReviewPending)
}

func (s *Service) ApproveTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error) {
	return s.reviewTutor(ctx, id, models.ReviewApproved, "")
}

func (s *Service) RejectTutor(ctx context.Context, id uuid.UUID, reason string) (*models.Tutor, error) {
	return s.reviewTutor(ctx, id, models.ReviewRejected, strings.TrimSpace(reason))
}

func (s *Service) ApproveClaim(ctx context.Context, id uuid.UUID) (*models.SocialClaim, error) {
	return s.reviewClaim(ctx, id, models.ReviewApproved, "")
}

func (s *Service) RejectClaim(ctx context.Context, id uuid.UUID, reason string) (*models.SocialClaim, error) {
	return s.reviewClaim(ctx, id, models.ReviewRejected, strings.TrimSpace(reason))
}

func (s *Service) reviewTutor(ctx context.Context, id uuid.UUID, status, reason string) (*models.Tutor, error) {
	// Conflict means the application is missing or already reviewed
	t, err := s.store.ReviewTutor(ctx, id, status, reason)
	if errors.Is(err, db.ErrConflict) {
		if _, getErr := s.store.GetTutor(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}

	// Tell the applicant
	s.logger.Infow("Tutor application reviewed", "tutorID", id, "status", status)
	title, body := "Prihláška tútora schválená", "Gratulujeme! Teraz môžeš pridávať voľné termíny doučovania."
	if status == models.ReviewRejected {
		title, body = "Prihláška tútora zamietnutá", rejectionBody("Tvoju prihlášku sme tentokrát neschválili.", reason)
	}
	s.notifier.User(ctx, t.UserID, models.NotificationTutorReviewed, title, body, true)
	return t, nil
}

func (s *Service) reviewClaim(ctx context.Context, id uuid.UUID, status, reason string) (*models.SocialClaim, error) {
	c, err := s.store.ReviewClaim(ctx, id, status, reason)
	if errors.Is(err, db.ErrConflict) {
		if _, getErr := s.store.GetClaim(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}

	// Tell the author
	s.logger.Infow("Social claim reviewed", "claimID", id, "status", status)
	title, body := "Výzva schválená", "Tvoj príspevok bol schválený. Odmena ti bude pripísaná."
	if status == models.ReviewRejected {
		title, body = "Výzva zamietnutá", rejectionBody("Tvoj príspevok nespĺňa podmienky výzvy.", reason)
	}
	s.notifier.User(ctx, c.UserID, models.NotificationClaimReviewed, title, body, true)
	return c, nil
}

func rejectionBody(base, reason string) string {
	if reason == "" {
		return base
	}
	return base + " Dôvod: " + reason
}

func validPostURL(platform, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range claimHosts[platform] {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
