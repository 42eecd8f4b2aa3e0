package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/internal/payment"
	"studko/pkg/logger"
)

const testSecret = "whsec_test"

type memStore struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*models.Profile
	notes     map[uuid.UUID]*models.Note
	purchases []*models.NotePurchase
	bookings  map[uuid.UUID]*models.Booking
	transfers map[uuid.UUID]string
}

func newMemStore() *memStore {
	return &memStore{
		profiles:  map[uuid.UUID]*models.Profile{},
		notes:     map[uuid.UUID]*models.Note{},
		bookings:  map[uuid.UUID]*models.Booking{},
		transfers: map[uuid.UUID]string{},
	}
}

func (m *memStore) FindPurchase(_ context.Context, buyerID, noteID uuid.UUID) (*models.NotePurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.BuyerID == buyerID && p.NoteID == noteID {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) InsertPurchase(_ context.Context, p *models.NotePurchase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.purchases {
		if existing.BuyerID == p.BuyerID && existing.NoteID == p.NoteID {
			return false, nil
		}
	}
	p.ID = uuid.New()
	m.purchases = append(m.purchases, p)
	return true, nil
}

func (m *memStore) SetPurchaseTransfer(_ context.Context, id uuid.UUID, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[id] = transferID
	return nil
}

func (m *memStore) GetNote(_ context.Context, id uuid.UUID) (*models.Note, error) {
	if n, ok := m.notes[id]; ok {
		return n, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) ActivateSubscription(_ context.Context, userID uuid.UUID, customerID, status string) error {
	p, ok := m.profiles[userID]
	if !ok {
		return db.ErrNotFound
	}
	p.StripeCustomerID = customerID
	p.SubscriptionStatus = status
	p.IsPro = models.IsProStatus(status)
	return nil
}

func (m *memStore) UpdateSubscriptionByCustomer(_ context.Context, customerID, status string) (*models.Profile, error) {
	for _, p := range m.profiles {
		if p.StripeCustomerID == customerID {
			p.SubscriptionStatus = status
			p.IsPro = models.IsProStatus(status)
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetBooking(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	if b, ok := m.bookings[id]; ok {
		return b, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) SetBookingSession(_ context.Context, id uuid.UUID, sessionID string) error {
	b, ok := m.bookings[id]
	if !ok {
		return db.ErrNotFound
	}
	b.StripeSessionID = sessionID
	return nil
}

type fakePayouts struct {
	mu        sync.Mutex
	transfers []string
	err       error
}

func (f *fakePayouts) ChargeForPaymentIntent(context.Context, string) (string, error) {
	return "ch_1", nil
}

func (f *fakePayouts) Transfer(_ context.Context, amount int64, dest, _, key string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.transfers = append(f.transfers, fmt.Sprintf("%d:%s:%s", amount, dest, key))
	return "tr_1", nil
}

func (f *fakePayouts) FeePercent() int { return 20 }

type recorder struct {
	mu       sync.Mutex
	users    []string
	discord  []string
	operator []notify.OperatorAlert
}

func (r *recorder) User(_ context.Context, _ uuid.UUID, kind, _, _ string, _ bool) {
	r.mu.Lock()
	r.users = append(r.users, kind)
	r.mu.Unlock()
}

func (r *recorder) Discord(_ context.Context, content string) {
	r.mu.Lock()
	r.discord = append(r.discord, content)
	r.mu.Unlock()
}

func (r *recorder) Operator(_ context.Context, a notify.OperatorAlert) {
	r.mu.Lock()
	r.operator = append(r.operator, a)
	r.mu.Unlock()
}

func eventPayload(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_" + uuid.NewString()[:8],
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func serve(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func purchaseFixture() (*memStore, *models.Note, uuid.UUID) {
	store := newMemStore()
	seller := &models.Profile{UserID: uuid.New(), StripeConnectAccountID: "acct_seller"}
	buyer := uuid.New()
	note := &models.Note{ID: uuid.New(), AuthorID: seller.UserID, Title: "Derivácie", PriceCents: 500}
	store.profiles[seller.UserID] = seller
	store.profiles[buyer] = &models.Profile{UserID: buyer}
	store.notes[note.ID] = note
	return store, note, buyer
}

func noteSession(note *models.Note, buyer uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   note.PriceCents,
		"payment_intent": "pi_1",
		"metadata": map[string]string{
			payment.MetaKind:    payment.KindNotePurchase,
			payment.MetaNoteID:  note.ID.String(),
			payment.MetaBuyerID: buyer.String(),
		},
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	store, note, buyer := purchaseFixture()
	h := NewHandler(&payment.StripeClient{}, testSecret,
		NewPurchaseProcessor(store, &fakePayouts{}, &recorder{}, logger.Nop()), logger.Nop())

	payload := eventPayload(t, "checkout.session.completed", noteSession(note, buyer))

	rec, body := serve(h, signedRequest(t, payload, "whsec_other"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid signature", body["error"])

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(payload))
	rec, body = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing signature", body["error"])

	rec, _ = serve(h, httptest.NewRequest(http.MethodGet, "/webhooks", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Empty(t, store.purchases)
}

func TestPurchaseRecordedOnceAndPaidOnce(t *testing.T) {
	store, note, buyer := purchaseFixture()
	payouts := &fakePayouts{}
	notes := &recorder{}
	h := NewHandler(&payment.StripeClient{}, testSecret,
		NewPurchaseProcessor(store, payouts, notes, logger.Nop()), logger.Nop())

	payload := eventPayload(t, "checkout.session.completed", noteSession(note, buyer))

	rec, body := serve(h, signedRequest(t, payload, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, string(ResultProcessed), body["result"])

	rec, body = serve(h, signedRequest(t, payload, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(ResultDuplicate), body["result"])

	require.Len(t, store.purchases, 1)
	purchase := store.purchases[0]
	assert.Equal(t, "pi_1", purchase.StripePaymentIntentID)
	assert.Equal(t, "tr_1", store.transfers[purchase.ID])

	require.Len(t, payouts.transfers, 1)
	assert.Equal(t, "400:acct_seller:note-purchase-"+purchase.ID.String(), payouts.transfers[0])

	assert.ElementsMatch(t, []string{models.NotificationNoteSold, models.NotificationNotePurchased}, notes.users)
	assert.Len(t, notes.discord, 1)
}

func TestPurchaseSurvivesTransferFailure(t *testing.T) {
	store, note, buyer := purchaseFixture()
	payouts := &fakePayouts{err: errors.New("stripe down")}
	p := NewPurchaseProcessor(store, payouts, &recorder{}, logger.Nop())

	ev := stripe.Event{Type: "checkout.session.completed"}
	raw, _ := json.Marshal(noteSession(note, buyer))
	ev.Data = &stripe.EventData{Raw: raw}

	result, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	require.Len(t, store.purchases, 1)
	assert.Empty(t, store.transfers)
}

func TestPurchaseWithoutSellerAccountStaysPending(t *testing.T) {
	store, note, buyer := purchaseFixture()
	store.profiles[note.AuthorID].StripeConnectAccountID = ""
	payouts := &fakePayouts{}
	p := NewPurchaseProcessor(store, payouts, &recorder{}, logger.Nop())

	raw, _ := json.Marshal(noteSession(note, buyer))
	result, err := p.Process(context.Background(), stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}})
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Empty(t, payouts.transfers)
}

func TestPurchaseMissingMetadataIsBadRequest(t *testing.T) {
	store, note, buyer := purchaseFixture()
	h := NewHandler(&payment.StripeClient{}, testSecret,
		NewPurchaseProcessor(store, &fakePayouts{}, &recorder{}, logger.Nop()), logger.Nop())

	session := noteSession(note, buyer)
	session["metadata"] = map[string]string{payment.MetaKind: payment.KindNotePurchase}

	rec, body := serve(h, signedRequest(t, eventPayload(t, "checkout.session.completed", session), testSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "missing metadata")
}

func TestPurchaseIgnoresOtherEvents(t *testing.T) {
	store, _, _ := purchaseFixture()
	p := NewPurchaseProcessor(store, &fakePayouts{}, &recorder{}, logger.Nop())

	result, err := p.Process(context.Background(), stripe.Event{Type: "invoice.paid"})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
}

func TestSubscriptionStatusMapping(t *testing.T) {
	tests := []struct {
		eventType string
		status    string
		wantPro   bool
		want      string
	}{
		{"customer.subscription.updated", "active", true, "active"},
		{"customer.subscription.updated", "trialing", true, "trialing"},
		{"customer.subscription.updated", "past_due", false, "past_due"},
		{"customer.subscription.updated", "unpaid", false, "unpaid"},
		{"customer.subscription.updated", "canceled", false, "canceled"},
		{"customer.subscription.deleted", "active", false, "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.status, func(t *testing.T) {
			store := newMemStore()
			userID := uuid.New()
			store.profiles[userID] = &models.Profile{UserID: userID, StripeCustomerID: "cus_1", IsPro: true}
			h := NewHandler(&payment.StripeClient{}, testSecret,
				NewSubscriptionProcessor(store, &recorder{}, logger.Nop()), logger.Nop())

			payload := eventPayload(t, tt.eventType, map[string]interface{}{
				"id":       "sub_1",
				"object":   "subscription",
				"status":   tt.status,
				"customer": "cus_1",
			})

			rec, _ := serve(h, signedRequest(t, payload, testSecret))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantPro, store.profiles[userID].IsPro)
			assert.Equal(t, tt.want, store.profiles[userID].SubscriptionStatus)
		})
	}
}

func TestSubscriptionUnknownCustomerIsAcknowledged(t *testing.T) {
	h := NewHandler(&payment.StripeClient{}, testSecret,
		NewSubscriptionProcessor(newMemStore(), &recorder{}, logger.Nop()), logger.Nop())

	payload := eventPayload(t, "customer.subscription.updated", map[string]interface{}{
		"id": "sub_1", "object": "subscription", "status": "active", "customer": "cus_missing",
	})
	rec, body := serve(h, signedRequest(t, payload, testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(ResultIgnored), body["result"])
}

func TestSubscriptionCheckoutActivatesPro(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.profiles[userID] = &models.Profile{UserID: userID}
	notes := &recorder{}
	p := NewSubscriptionProcessor(store, notes, logger.Nop())

	raw, _ := json.Marshal(map[string]interface{}{
		"id":                  "cs_sub",
		"object":              "checkout.session",
		"mode":                "subscription",
		"client_reference_id": userID.String(),
		"customer":            "cus_new",
	})
	result, err := p.Process(context.Background(), stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}})
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	profile := store.profiles[userID]
	assert.True(t, profile.IsPro)
	assert.Equal(t, models.SubscriptionActive, profile.SubscriptionStatus)
	assert.Equal(t, "cus_new", profile.StripeCustomerID)
	assert.Equal(t, []string{models.NotificationSubscriptionSet}, notes.users)
}

func TestSubscriptionCheckoutRequiresClientReference(t *testing.T) {
	p := NewSubscriptionProcessor(newMemStore(), &recorder{}, logger.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"id": "cs_sub", "object": "checkout.session", "mode": "subscription"})
	_, err := p.Process(context.Background(), stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestBookingCheckoutNeverMarksPaid(t *testing.T) {
	store := newMemStore()
	booking := &models.Booking{ID: uuid.New(), Status: models.BookingConfirmed, StartTime: time.Now().Add(24 * time.Hour)}
	store.bookings[booking.ID] = booking
	notes := &recorder{}
	p := NewSubscriptionProcessor(store, notes, logger.Nop())

	raw, _ := json.Marshal(map[string]interface{}{
		"id":           "cs_booking",
		"object":       "checkout.session",
		"mode":         "payment",
		"amount_total": 2500,
		"metadata": map[string]string{
			payment.MetaKind:      payment.KindBooking,
			payment.MetaBookingID: booking.ID.String(),
		},
	})
	result, err := p.Process(context.Background(), stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}})
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	assert.False(t, booking.Paid)
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.Equal(t, "cs_booking", booking.StripeSessionID)

	require.Len(t, notes.operator, 1)
	require.Len(t, notes.operator[0].Actions, 1)
	assert.Equal(t, notify.CallbackData("booking", "mark-paid", booking.ID), notes.operator[0].Actions[0].Data)
}
