package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studko/internal/admin"
	"studko/internal/auth"
	"studko/internal/booking"
	"studko/internal/chat"
	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notes"
	"studko/pkg/logger"
)

var (
	studentID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	adminID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(raw string) (auth.Identity, error) {
	switch raw {
	case "student":
		return auth.Identity{UserID: studentID, Email: "ziak@example.sk", Role: "authenticated"}, nil
	case "admin":
		return auth.Identity{UserID: adminID, Email: "admin@example.sk", Role: "authenticated"}, nil
	}
	return auth.Identity{}, auth.ErrUnauthorized
}

type fakeProfiles struct{}

func (fakeProfiles) EnsureProfile(_ context.Context, userID uuid.UUID, email string) (*models.Profile, error) {
	return &models.Profile{UserID: userID, Email: email, IsAdmin: userID == adminID}, nil
}

type fakeQuota struct{ remaining int }

func (fakeQuota) Enabled() bool { return true }

func (q fakeQuota) Remaining(context.Context, uuid.UUID) (int, error) { return q.remaining, nil }

type fakeBilling struct{}

func (fakeBilling) CreateSubscriptionCheckout(_ context.Context, p *models.Profile) (string, string, error) {
	return "cs_1", "https://checkout.stripe.test/" + p.UserID.String(), nil
}

type fakeNotes struct{ err error }

func (f fakeNotes) List(context.Context, string) ([]models.Note, error) {
	return []models.Note{{Title: "Derivácie"}}, f.err
}

func (f fakeNotes) Get(_ context.Context, id uuid.UUID) (*models.Note, error) {
	return &models.Note{ID: id}, f.err
}

func (f fakeNotes) Checkout(context.Context, uuid.UUID, uuid.UUID) (*notes.CheckoutResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &notes.CheckoutResult{URL: "https://checkout.stripe.test/note"}, nil
}

func (f fakeNotes) DownloadURL(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return "https://files.test/note.pdf", f.err
}

func (f fakeNotes) ConnectOnboarding(context.Context, uuid.UUID) (string, error) {
	return "https://connect.stripe.test", f.err
}

type fakeBookings struct {
	actors  []booking.Actor
	actions []string
	err     error
}

func (f *fakeBookings) act(name string, actor booking.Actor, id uuid.UUID) (*models.Booking, error) {
	f.actors = append(f.actors, actor)
	f.actions = append(f.actions, name)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Booking{ID: id}, nil
}

func (f *fakeBookings) Calendar(context.Context, uuid.UUID) ([]booking.Day, error) {
	return []booking.Day{{Date: "2026-03-05", Weekday: "Št", Status: booking.DayAvailable}}, f.err
}

func (f *fakeBookings) Location() *time.Location {
	loc, _ := time.LoadLocation("Europe/Bratislava")
	return loc
}

func (f *fakeBookings) Request(_ context.Context, studentID, availabilityID uuid.UUID, _ string) (*models.Booking, error) {
	return &models.Booking{StudentID: studentID, AvailabilityID: availabilityID, Status: models.BookingPending}, f.err
}

func (f *fakeBookings) Confirm(_ context.Context, a booking.Actor, id uuid.UUID) (*models.Booking, error) {
	return f.act("confirm", a, id)
}

func (f *fakeBookings) Complete(_ context.Context, a booking.Actor, id uuid.UUID) (*models.Booking, error) {
	return f.act("complete", a, id)
}

func (f *fakeBookings) Cancel(_ context.Context, a booking.Actor, id uuid.UUID) (*models.Booking, error) {
	return f.act("cancel", a, id)
}

func (f *fakeBookings) MarkPaid(_ context.Context, a booking.Actor, id uuid.UUID) (*models.Booking, error) {
	return f.act("mark-paid", a, id)
}

func (f *fakeBookings) Checkout(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return "https://checkout.stripe.test/booking", f.err
}

func (f *fakeBookings) MyBookings(context.Context, uuid.UUID) ([]models.Booking, error) {
	return nil, f.err
}

func (f *fakeBookings) Pending(context.Context) ([]models.Booking, error) {
	return []models.Booking{{Status: models.BookingPending}}, f.err
}

func (f *fakeBookings) AddAvailability(_ context.Context, _ uuid.UUID, date, start, end string) (*models.AvailabilityDate, error) {
	return &models.AvailabilityDate{Date: date, StartTime: start, EndTime: end}, f.err
}

func (f *fakeBookings) RemoveAvailability(context.Context, uuid.UUID, uuid.UUID) error {
	return f.err
}

type fakeReviews struct {
	reason string
	err    error
}

func (f *fakeReviews) SubmitTutorApplication(_ context.Context, userID uuid.UUID, app admin.TutorApplication) (*models.Tutor, error) {
	return &models.Tutor{UserID: userID, Bio: app.Bio}, f.err
}

func (f *fakeReviews) SubmitClaim(_ context.Context, userID uuid.UUID, platform, postURL string) (*models.SocialClaim, error) {
	return &models.SocialClaim{UserID: userID, Platform: platform, PostURL: postURL}, f.err
}

func (f *fakeReviews) PendingTutors(context.Context) ([]models.Tutor, error) { return nil, f.err }

func (f *fakeReviews) PendingClaims(context.Context) ([]models.SocialClaim, error) { return nil, f.err }

func (f *fakeReviews) ApproveTutor(_ context.Context, id uuid.UUID) (*models.Tutor, error) {
	return &models.Tutor{ID: id, Status: models.ReviewApproved}, f.err
}

func (f *fakeReviews) RejectTutor(_ context.Context, id uuid.UUID, reason string) (*models.Tutor, error) {
	f.reason = reason
	return &models.Tutor{ID: id, Status: models.ReviewRejected}, f.err
}

func (f *fakeReviews) ApproveClaim(_ context.Context, id uuid.UUID) (*models.SocialClaim, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.SocialClaim{ID: id, Status: models.ReviewApproved}, nil
}

func (f *fakeReviews) RejectClaim(_ context.Context, id uuid.UUID, reason string) (*models.SocialClaim, error) {
	f.reason = reason
	return &models.SocialClaim{ID: id, Status: models.ReviewRejected}, f.err
}

type fakeChat struct {
	streamErr  error
	failStream bool
	studyErr   error
}

func (f *fakeChat) Stream(_ context.Context, _ uuid.UUID, conversationID uuid.UUID, message string, sink chat.Sink) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	if conversationID == uuid.Nil {
		conversationID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	}
	if err := sink.Start(conversationID); err != nil {
		return err
	}
	_ = sink.Delta("Odpoveď na: " + message)
	if f.failStream {
		_ = sink.Fail("upstream failed")
		return fmt.Errorf("upstream failed")
	}
	return sink.Done()
}

func (f *fakeChat) Conversations(context.Context, uuid.UUID) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeChat) Messages(context.Context, uuid.UUID, uuid.UUID) ([]models.Message, error) {
	return nil, chat.ErrForbidden
}

func (f *fakeChat) Flashcards(_ context.Context, userID uuid.UUID, subject, _ string, _ int) (*models.FlashcardSet, error) {
	if f.studyErr != nil {
		return nil, f.studyErr
	}
	return &models.FlashcardSet{UserID: userID, Subject: subject}, nil
}

func (f *fakeChat) Quiz(context.Context, uuid.UUID, string, string, int) ([]models.QuizQuestion, error) {
	return nil, f.studyErr
}

func (f *fakeChat) SaveQuizResult(_ context.Context, userID uuid.UUID, subject string, score, total int) (*models.QuizResult, error) {
	return &models.QuizResult{UserID: userID, Subject: subject, Score: score, Total: total}, nil
}

type fakeInbox struct{ read []uuid.UUID }

func (f *fakeInbox) Inbox(context.Context, uuid.UUID) ([]models.Notification, error) {
	return []models.Notification{{Title: "Rezervácia potvrdená"}}, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	f.read = append(f.read, id)
	return nil
}

type testAPI struct {
	handler  http.Handler
	bookings *fakeBookings
	reviews  *fakeReviews
	chat     *fakeChat
	inbox    *fakeInbox
}

func newTestAPI() *testAPI {
	api := &testAPI{
		bookings: &fakeBookings{},
		reviews:  &fakeReviews{},
		chat:     &fakeChat{},
		inbox:    &fakeInbox{},
	}
	deps := Dependencies{
		Verifier: fakeVerifier{},
		Profiles: fakeProfiles{},
		Billing:  fakeBilling{},
		Notes:    fakeNotes{},
		Bookings: api.bookings,
		Reviews:  api.reviews,
		Chat:     api.chat,
		Inbox:    api.inbox,
		Quota:    fakeQuota{remaining: 7},
		SubscriptionWebhook: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"hook": "stripe"})
		}),
	}
	api.handler = NewServer("0", deps, logger.Nop()).Handler()
	return api
}

func (a *testAPI) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthIsPublic(t *testing.T) {
	rr := newTestAPI().do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestAuthenticationRequired(t *testing.T) {
	api := newTestAPI()

	rr := api.do(http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "missing bearer token", decode(t, rr)["error"])

	rr = api.do(http.MethodGet, "/me", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodPost, "/ai/chat", "", `{"message":"ahoj"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeIncludesRemainingQuota(t *testing.T) {
	rr := newTestAPI().do(http.MethodGet, "/me", "student", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, studentID.String(), body["user_id"])
	assert.Equal(t, "ziak@example.sk", body["email"])
	assert.Equal(t, float64(7), body["ai_remaining"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI()
	id := uuid.New()

	rr := api.do(http.MethodPost, "/admin/bookings/"+id.String()+"/confirm", "student", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, api.bookings.actions)

	rr = api.do(http.MethodPost, "/admin/bookings/"+id.String()+"/mark-paid", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"mark-paid"}, api.bookings.actions)
	assert.Equal(t, booking.Actor{UserID: adminID, Operator: true}, api.bookings.actors[0])

	rr = api.do(http.MethodPost, "/admin/bookings/"+id.String()+"/refund", "admin", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserCancelIsNotOperator(t *testing.T) {
	api := newTestAPI()

	rr := api.do(http.MethodPost, "/bookings/"+uuid.NewString()+"/cancel", "student", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, booking.Actor{UserID: studentID}, api.bookings.actors[0])
}

func TestRejectPassesReason(t *testing.T) {
	api := newTestAPI()

	rr := api.do(http.MethodPost, "/admin/claims/"+uuid.NewString()+"/reject", "admin", `{"reason":"  Príspevok nie je verejný "}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Príspevok nie je verejný", api.reviews.reason)

	rr = api.do(http.MethodPost, "/admin/tutors/"+uuid.NewString()+"/reject", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "", api.reviews.reason)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", db.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load note: %w", db.ErrNotFound), http.StatusNotFound},
		{"own note", notes.ErrOwnNote, http.StatusForbidden},
		{"already purchased", notes.ErrAlreadyPurchased, http.StatusConflict},
		{"not pending", admin.ErrNotPending, http.StatusConflict},
		{"invalid transition", booking.ErrInvalidTransition, http.StatusConflict},
		{"invalid input", fmt.Errorf("%w: bio too short", admin.ErrInvalidInput), http.StatusBadRequest},
		{"quota", &chat.QuotaError{RetryAfter: time.Hour}, http.StatusTooManyRequests},
		{"storage off", notes.ErrStorageDisabled, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	api := newTestAPI()
	api.reviews.err = fmt.Errorf("connection reset by peer")

	rr := api.do(http.MethodGet, "/admin/tutors/pending", "admin", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decode(t, rr)["error"])
}

func TestQuotaExceededSetsRetryAfter(t *testing.T) {
	api := newTestAPI()
	api.chat.studyErr = &chat.QuotaError{RetryAfter: 90 * time.Minute}

	rr := api.do(http.MethodPost, "/ai/flashcards", "student", `{"subject":"biológia","text":"Bunka"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "5400", rr.Header().Get("Retry-After"))
}

func TestChatStreamWritesEvents(t *testing.T) {
	rr := newTestAPI().do(http.MethodPost, "/ai/chat", "student", `{"message":"Čo je mitóza?"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t,
		`data: {"conversation_id":"33333333-3333-3333-3333-333333333333"}`+"\n\n"+
			`data: {"content":"Odpoveď na: Čo je mitóza?"}`+"\n\n"+
			"data: [DONE]\n\n",
		rr.Body.String())
}

func TestChatStreamErrors(t *testing.T) {
	api := newTestAPI()
	api.chat.streamErr = &chat.QuotaError{RetryAfter: time.Minute}

	rr := api.do(http.MethodPost, "/ai/chat", "student", `{"message":"ahoj"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	api.chat.streamErr = nil
	api.chat.failStream = true
	rr = api.do(http.MethodPost, "/ai/chat", "student", `{"message":"ahoj"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `data: {"error":"upstream failed"}`)
	assert.NotContains(t, rr.Body.String(), "[DONE]")
}

func TestBadIDsAndBodies(t *testing.T) {
	api := newTestAPI()

	rr := api.do(http.MethodGet, "/notes/not-a-uuid", "student", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodPost, "/bookings", "student", `{"note":"bez slotu"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodPost, "/claims", "student", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalendarIncludesTimezone(t *testing.T) {
	tutorID := uuid.New()
	rr := newTestAPI().do(http.MethodGet, "/tutors/"+tutorID.String()+"/calendar", "student", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Europe/Bratislava", body["timezone"])
	assert.Equal(t, tutorID.String(), body["tutor_id"])
	assert.Len(t, body["days"], 1)
}

func TestNotificationsMarkRead(t *testing.T) {
	api := newTestAPI()
	id := uuid.New()

	rr := api.do(http.MethodPost, "/notifications/"+id.String()+"/read", "student", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []uuid.UUID{id}, api.inbox.read)
}

func TestWebhooksAreMountedWithoutAuth(t *testing.T) {
	api := newTestAPI()

	rr := api.do(http.MethodPost, "/webhooks/stripe", "", `{}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "stripe", decode(t, rr)["hook"])

	rr = api.do(http.MethodPost, "/webhooks/note-purchase", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	api := newTestAPI()

	tests := []struct {
		path  string
		token string
	}{
		{"/bookings/", "student"},
		{"/ai/conversations", "student"},
		{"/admin/tutors/pending", "admin"},
		{"/admin/claims/pending", "admin"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := api.do(http.MethodGet, tt.path, tt.token, "")
			require.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `[]`, rr.Body.String())
		})
	}
}
