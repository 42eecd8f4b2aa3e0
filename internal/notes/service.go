package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/storage"
	"studko/pkg/logger"
)

// DownloadTTL is how long a presigned note link stays valid.
const DownloadTTL = 15 * time.Minute

var (
	ErrOwnNote           = errors.New("you cannot buy your own note")
	ErrAlreadyPurchased  = errors.New("note already purchased")
	ErrNoAccess          = errors.New("note has not been purchased")
	ErrStorageDisabled   = errors.New("file storage is not configured")
	ErrFileMissing       = errors.New("note has no file")
	ErrPayoutsIncomplete = errors.New("payout onboarding failed")
)

type Store interface {
	ListNotes(ctx context.Context, subject string) ([]models.Note, error)
	GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error)
	FindPurchase(ctx context.Context, buyerID, noteID uuid.UUID) (*models.NotePurchase, error)
	InsertPurchase(ctx context.Context, p *models.NotePurchase) (bool, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error
}

type Payments interface {
	CreateNoteCheckout(ctx context.Context, note *models.Note, buyer *models.Profile) (string, string, error)
	ConnectOnboardingLink(ctx context.Context, profile *models.Profile) (string, string, error)
}

// CheckoutResult carries either a Stripe checkout URL or, for free notes,
// the purchase recorded on the spot.
type CheckoutResult struct {
	URL       string `json:"url,omitempty"`
	Purchased bool   `json:"purchased"`
}

type Service struct {
	store     Store
	payments  Payments
	presigner storage.Presigner
	logger    *logger.Logger
}

// NewService wires the marketplace. presigner may be nil when storage is off.
func NewService(store Store, payments Payments, presigner storage.Presigner, l *logger.Logger) *Service {
	return &Service{store: store, payments: payments, presigner: presigner, logger: l}
}

func (s *Service) List(ctx context.Context, subject string) ([]models.Note, error) {
	return s.store.ListNotes(ctx, subject)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	return s.store.GetNote(ctx, id)
}

func (s *Service) Checkout(ctx context.Context, buyerID, noteID uuid.UUID) (*CheckoutResult, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.AuthorID == buyerID {
		return nil, ErrOwnNote
	}

	// Each buyer owns a note at most once
	owned, err := s.hasPurchased(ctx, buyerID, noteID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}

	// Free notes are recorded without Stripe
	if note.IsFree() {
		inserted, err := s.store.InsertPurchase(ctx, &models.NotePurchase{BuyerID: buyerID, NoteID: noteID})
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, ErrAlreadyPurchased
		}
		s.logger.Infow("Free note claimed", "noteID", noteID, "buyerID", buyerID)
		return &CheckoutResult{Purchased: true}, nil
	}

	// Create Stripe checkout session
	buyer, err := s.store.GetProfile(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	_, url, err := s.payments.CreateNoteCheckout(ctx, note, buyer)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{URL: url}, nil
}

// DownloadURL is granted to the author, any purchaser, and everyone for free
// notes.
func (s *Service) DownloadURL(ctx context.Context, userID, noteID uuid.UUID) (string, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return "", err
	}

	if note.AuthorID != userID && !note.IsFree() {
		owned, err := s.hasPurchased(ctx, userID, noteID)
		if err != nil {
			return "", err
		}
		if !owned {
			return "", ErrNoAccess
		}
	}

	// Sign a short-lived link to the stored file
	if s.presigner == nil {
		return "", ErrStorageDisabled
	}
	if note.FileURL == "" {
		return "", ErrFileMissing
	}
	return s.presigner.PresignDownload(ctx, note.FileURL, DownloadTTL)
}

// ConnectOnboarding returns the seller payout onboarding link, remembering
// a freshly created Connect account on the profile.
func (s *Service) ConnectOnboarding(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}

	// Keep the account even when the link could not be created
	accountID, url, linkErr := s.payments.ConnectOnboardingLink(ctx, profile)
	if accountID != "" && accountID != profile.StripeConnectAccountID {
		if err := s.store.SetConnectAccount(ctx, userID, accountID); err != nil {
			return "", err
		}
		s.logger.Infow("Connect account created", "userID", userID, "accountID", accountID)
	}
	if linkErr != nil {
		s.logger.Errorw("Connect onboarding failed", "error", linkErr, "userID", userID)
		return "", errors.Join(ErrPayoutsIncomplete, linkErr)
	}
	return url, nil
}

func (s *Service) hasPurchased(ctx context.Context, buyerID, noteID uuid.UUID) (bool, error) {
	_, err := s.store.FindPurchase(ctx, buyerID, noteID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
