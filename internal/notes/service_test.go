package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studko/internal/db"
	"studko/internal/models"
	"studko/pkg/logger"
)

type memStore struct {
	notes     map[uuid.UUID]*models.Note
	purchases []models.NotePurchase
	profiles  map[uuid.UUID]*models.Profile
}

func (m *memStore) ListNotes(_ context.Context, subject string) ([]models.Note, error) {
	var out []models.Note
	for _, n := range m.notes {
		if subject == "" || n.Subject == subject {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memStore) GetNote(_ context.Context, id uuid.UUID) (*models.Note, error) {
	if n, ok := m.notes[id]; ok {
		return n, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) FindPurchase(_ context.Context, buyerID, noteID uuid.UUID) (*models.NotePurchase, error) {
	for i := range m.purchases {
		if m.purchases[i].BuyerID == buyerID && m.purchases[i].NoteID == noteID {
			return &m.purchases[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) InsertPurchase(ctx context.Context, p *models.NotePurchase) (bool, error) {
	if existing, _ := m.FindPurchase(ctx, p.BuyerID, p.NoteID); existing != nil {
		return false, nil
	}
	p.ID = uuid.New()
	m.purchases = append(m.purchases, *p)
	return true, nil
}

func (m *memStore) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) SetConnectAccount(_ context.Context, id uuid.UUID, accountID string) error {
	m.profiles[id].StripeConnectAccountID = accountID
	return nil
}

type fakePayments struct {
	checkouts int
	linkErr   error
}

func (f *fakePayments) CreateNoteCheckout(context.Context, *models.Note, *models.Profile) (string, string, error) {
	f.checkouts++
	return "cs_1", "https://checkout.stripe.com/c/cs_1", nil
}

func (f *fakePayments) ConnectOnboardingLink(_ context.Context, p *models.Profile) (string, string, error) {
	accountID := p.StripeConnectAccountID
	if accountID == "" {
		accountID = "acct_new"
	}
	if f.linkErr != nil {
		return accountID, "", f.linkErr
	}
	return accountID, "https://connect.stripe.com/setup/e/acct_new", nil
}

type fakePresigner struct {
	key string
	ttl time.Duration
}

func (f *fakePresigner) PresignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.key, f.ttl = key, ttl
	return "https://storage.example.com/notes/" + key + "?X-Amz-Signature=x", nil
}

type fixture struct {
	svc       *Service
	store     *memStore
	payments  *fakePayments
	presigner *fakePresigner
	author    uuid.UUID
	buyer     uuid.UUID
	paid      *models.Note
	free      *models.Note
}

func newFixture() *fixture {
	author, buyer := uuid.New(), uuid.New()
	paid := &models.Note{ID: uuid.New(), AuthorID: author, Title: "Integrály", Subject: "matematika", PriceCents: 300, FileURL: "notes/math/integraly.pdf"}
	free := &models.Note{ID: uuid.New(), AuthorID: author, Title: "Vzorce", Subject: "fyzika", FileURL: "phys/vzorce.pdf"}
	store := &memStore{
		notes: map[uuid.UUID]*models.Note{paid.ID: paid, free.ID: free},
		profiles: map[uuid.UUID]*models.Profile{
			author: {UserID: author},
			buyer:  {UserID: buyer, Email: "kupec@studko.sk"},
		},
	}
	payments, presigner := &fakePayments{}, &fakePresigner{}
	return &fixture{
		svc:   NewService(store, payments, presigner, logger.Nop()),
		store: store, payments: payments, presigner: presigner,
		author: author, buyer: buyer, paid: paid, free: free,
	}
}

func TestListFiltersBySubject(t *testing.T) {
	f := newFixture()
	list, err := f.svc.List(context.Background(), "fyzika")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.free.ID, list[0].ID)
}

func TestCheckoutPaidNote(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, f.buyer, f.paid.ID)
	require.NoError(t, err)
	assert.False(t, res.Purchased)
	assert.Contains(t, res.URL, "checkout.stripe.com")

	_, err = f.svc.Checkout(ctx, f.author, f.paid.ID)
	assert.ErrorIs(t, err, ErrOwnNote)

	f.store.purchases = append(f.store.purchases, models.NotePurchase{BuyerID: f.buyer, NoteID: f.paid.ID})
	_, err = f.svc.Checkout(ctx, f.buyer, f.paid.ID)
	assert.ErrorIs(t, err, ErrAlreadyPurchased)
	assert.Equal(t, 1, f.payments.checkouts)

	_, err = f.svc.Checkout(ctx, f.buyer, uuid.New())
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCheckoutFreeNoteSkipsStripe(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, f.buyer, f.free.ID)
	require.NoError(t, err)
	assert.True(t, res.Purchased)
	assert.Empty(t, res.URL)
	assert.Len(t, f.store.purchases, 1)
	assert.Zero(t, f.payments.checkouts)

	_, err = f.svc.Checkout(ctx, f.buyer, f.free.ID)
	assert.ErrorIs(t, err, ErrAlreadyPurchased)
}

func TestDownloadURLAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.DownloadURL(ctx, f.buyer, f.paid.ID)
	assert.ErrorIs(t, err, ErrNoAccess)

	url, err := f.svc.DownloadURL(ctx, f.author, f.paid.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Signature")
	assert.Equal(t, DownloadTTL, f.presigner.ttl)

	_, err = f.svc.DownloadURL(ctx, uuid.New(), f.free.ID)
	assert.NoError(t, err)

	f.store.purchases = append(f.store.purchases, models.NotePurchase{BuyerID: f.buyer, NoteID: f.paid.ID})
	_, err = f.svc.DownloadURL(ctx, f.buyer, f.paid.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes/math/integraly.pdf", f.presigner.key)
}

func TestDownloadURLWithoutStorage(t *testing.T) {
	f := newFixture()
	svc := NewService(f.store, f.payments, nil, logger.Nop())

	_, err := svc.DownloadURL(context.Background(), f.author, f.paid.ID)
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestConnectOnboardingStoresNewAccount(t *testing.T) {
	f := newFixture()

	url, err := f.svc.ConnectOnboarding(context.Background(), f.author)
	require.NoError(t, err)
	assert.Contains(t, url, "connect.stripe.com")
	assert.Equal(t, "acct_new", f.store.profiles[f.author].StripeConnectAccountID)

	f.payments.linkErr = errors.New("stripe down")
	_, err = f.svc.ConnectOnboarding(context.Background(), f.buyer)
	assert.ErrorIs(t, err, ErrPayoutsIncomplete)
	assert.Equal(t, "acct_new", f.store.profiles[f.buyer].StripeConnectAccountID, "account is kept for the retry")
}
