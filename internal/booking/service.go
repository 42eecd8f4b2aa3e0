package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/pkg/logger"
)

var (
	ErrForbidden         = errors.New("not allowed")
	ErrInvalidTransition = errors.New("booking is not in a state that allows this action")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrTutorNotApproved  = errors.New("tutor is not approved")
	ErrInvalidInput      = errors.New("invalid input")
)

type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	GetTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error)
	GetTutorByUserID(ctx context.Context, userID uuid.UUID) (*models.Tutor, error)

	ListAvailability(ctx context.Context, tutorID uuid.UUID, from, to string) ([]models.AvailabilityDate, error)
	GetAvailability(ctx context.Context, id uuid.UUID) (*models.AvailabilityDate, error)
	AddAvailability(ctx context.Context, a *models.AvailabilityDate) error
	DeleteAvailability(ctx context.Context, id uuid.UUID) error

	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListTutorBookings(ctx context.Context, tutorID uuid.UUID, from, to time.Time) ([]models.Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	ListBookingsByStatus(ctx context.Context, status string) ([]models.Booking, error)
	CreateBookingForSlot(ctx context.Context, b *models.Booking) error
	TransitionBooking(ctx context.Context, id uuid.UUID, from, to string) (*models.Booking, error)
	MarkBookingPaid(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type Checkouts interface {
	CreateBookingCheckout(ctx context.Context, booking *models.Booking, student *models.Profile) (string, string, error)
}

type Notifier interface {
	User(ctx context.Context, userID uuid.UUID, kind, title, body string, withEmail bool)
	Operator(ctx context.Context, alert notify.OperatorAlert)
}

// Actor is who performs an action. Operator is set for admins, the operator
// Telegram chat and the CLI.
type Actor struct {
	UserID   uuid.UUID
	Operator bool
}

type Service struct {
	store     Store
	checkouts Checkouts
	notifier  Notifier
	loc       *time.Location
	logger    *logger.Logger

	now func() time.Time
}

func NewService(store Store, checkouts Checkouts, notifier Notifier, loc *time.Location, l *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:     store,
		checkouts: checkouts,
		notifier:  notifier,
		loc:       loc,
		logger:    l,
		now:       time.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Calendar returns the CalendarDays-day booking view of an approved tutor.
func (s *Service) Calendar(ctx context.Context, tutorID uuid.UUID) ([]Day, error) {
	tutor, err := s.store.GetTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if tutor.Status != models.ReviewApproved {
		return nil, ErrTutorNotApproved
	}

	// Load the window's availability and bookings
	now := s.now()
	first := WindowStart(now, s.loc)
	last := first.AddDate(0, 0, CalendarDays-1)

	availability, err := s.store.ListAvailability(ctx, tutorID, first.Format(dateLayout), last.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.ListTutorBookings(ctx, tutorID, first, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	return BuildCalendar(s.loc, now, availability, bookings), nil
}

// Request books a free future slot. The booking waits for the operator.
func (s *Service) Request(ctx context.Context, studentID, availabilityID uuid.UUID, note string) (*models.Booking, error) {
	slot, err := s.store.GetAvailability(ctx, availabilityID)
	if err != nil {
		return nil, err
	}
	tutor, err := s.store.GetTutor(ctx, slot.TutorID)
	if err != nil {
		return nil, err
	}
	if tutor.Status != models.ReviewApproved {
		return nil, ErrTutorNotApproved
	}
	if tutor.UserID == studentID {
		return nil, fmt.Errorf("%w: you cannot book your own slot", ErrForbidden)
	}

	// Only future, unbooked slots can be requested
	start, end, err := SlotRange(*slot, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse slot %s: %w", slot.ID, err)
	}
	if !start.After(s.now()) || slot.IsBooked {
		return nil, ErrSlotUnavailable
	}

	b := &models.Booking{
		TutorID:        tutor.ID,
		StudentID:      studentID,
		AvailabilityID: slot.ID,
		StartTime:      start,
		EndTime:        end,
		PriceEURCents:  SessionPrice(tutor.PricePerHourCents, end.Sub(start)),
		Note:           strings.TrimSpace(note),
	}
	// Insert the booking and take the slot atomically
	if err := s.store.CreateBookingForSlot(ctx, b); err != nil {
		if errors.Is(err, db.ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.logger.Infow("Booking requested", "bookingID", b.ID, "tutorID", tutor.ID, "studentID", studentID)

	// Alert the operator with confirm and cancel buttons
	when := s.formatTime(b.StartTime)
	s.notifier.Operator(ctx, notify.OperatorAlert{
		Text: fmt.Sprintf("📅 Nová rezervácia doučovania\nTermín: %s\nCena: %.2f €\nRezervácia: %s\nPoznámka: %s",
			when, float64(b.PriceEURCents)/100, b.ID, b.Note),
		Actions: []notify.Action{
			{Label: "✅ Potvrdiť", Data: notify.CallbackData("booking", "confirm", b.ID)},
			{Label: "❌ Zrušiť", Data: notify.CallbackData("booking", "cancel", b.ID)},
		},
	})
	s.notifier.User(ctx, tutor.UserID, models.NotificationBookingCreated,
		"Nová rezervácia", "Študent si rezervoval termín "+when+". Čaká sa na potvrdenie.", true)
	return b, nil
}

func (s *Service) Confirm(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	if !actor.Operator {
		return nil, ErrForbidden
	}
	b, err := s.transition(ctx, bookingID, models.BookingPending, models.BookingConfirmed)
	if err != nil {
		return nil, err
	}

	when := s.formatTime(b.StartTime)
	s.notifier.User(ctx, b.StudentID, models.NotificationBookingUpdated,
		"Rezervácia potvrdená", "Tvoje doučovanie "+when+" je potvrdené. Teraz ho môžeš zaplatiť.", true)
	s.notifyTutor(ctx, b, "Rezervácia potvrdená", "Doučovanie "+when+" je potvrdené.")
	return b, nil
}

func (s *Service) Complete(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	if !actor.Operator {
		return nil, ErrForbidden
	}
	b, err := s.transition(ctx, bookingID, models.BookingConfirmed, models.BookingCompleted)
	if err != nil {
		return nil, err
	}
	s.notifier.User(ctx, b.StudentID, models.NotificationBookingUpdated,
		"Doučovanie dokončené", "Ďakujeme, že si sa učil so Študkom!", false)
	return b, nil
}

// Cancel is open to the operator and both parties of the booking. The slot
// is released.
func (s *Service) Cancel(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	tutor, err := s.store.GetTutor(ctx, b.TutorID)
	if err != nil {
		return nil, err
	}
	if !actor.Operator && actor.UserID != b.StudentID && actor.UserID != tutor.UserID {
		return nil, ErrForbidden
	}
	if b.Status != models.BookingPending && b.Status != models.BookingConfirmed {
		return nil, ErrInvalidTransition
	}

	cancelled, err := s.transition(ctx, bookingID, b.Status, models.BookingCancelled)
	if err != nil {
		return nil, err
	}

	// Notify the parties who did not cancel
	body := "Doučovanie " + s.formatTime(cancelled.StartTime) + " bolo zrušené."
	if actor.UserID != cancelled.StudentID {
		s.notifier.User(ctx, cancelled.StudentID, models.NotificationBookingUpdated, "Rezervácia zrušená", body, true)
	}
	if actor.UserID != tutor.UserID {
		s.notifier.User(ctx, tutor.UserID, models.NotificationBookingUpdated, "Rezervácia zrušená", body, true)
	}
	if !actor.Operator {
		s.notifier.Operator(ctx, notify.OperatorAlert{Text: "🚫 Rezervácia zrušená používateľom\n" + cancelled.ID.String()})
	}
	return cancelled, nil
}

// MarkPaid is the only way a booking becomes paid.
func (s *Service) MarkPaid(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	if !actor.Operator {
		return nil, ErrForbidden
	}
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	// Marking twice is a no-op
	if b.Paid {
		return b, nil
	}

	paid, err := s.store.MarkBookingPaid(ctx, bookingID)
	if errors.Is(err, db.ErrConflict) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Booking marked paid", "bookingID", bookingID)
	s.notifier.User(ctx, paid.StudentID, models.NotificationBookingUpdated,
		"Platba prijatá", "Platba za doučovanie "+s.formatTime(paid.StartTime)+" bola overená.", true)
	return paid, nil
}

// Checkout opens a Stripe payment for a confirmed, unpaid booking.
func (s *Service) Checkout(ctx context.Context, studentID, bookingID uuid.UUID) (string, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.StudentID != studentID {
		return "", ErrForbidden
	}
	if b.Status != models.BookingConfirmed || b.Paid {
		return "", ErrInvalidTransition
	}

	// Create Stripe checkout session
	student, err := s.store.GetProfile(ctx, studentID)
	if err != nil {
		return "", err
	}
	_, url, err := s.checkouts.CreateBookingCheckout(ctx, b, student)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) MyBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.store.ListUserBookings(ctx, userID)
}

func (s *Service) Pending(ctx context.Context) ([]models.Booking, error) {
	return s.store.ListBookingsByStatus(ctx, models.BookingPending)
}

// AddAvailability publishes a window for the calling tutor. date is
// YYYY-MM-DD, start and end are HH:MM.
func (s *Service) AddAvailability(ctx context.Context, userID uuid.UUID, date, start, end string) (*models.AvailabilityDate, error) {
	tutor, err := s.approvedTutor(ctx, userID)
	if err != nil {
		return nil, err
	}

	a := models.AvailabilityDate{TutorID: tutor.ID, Date: date, StartTime: start, EndTime: end}
	from, to, err := SlotRange(a, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: expected date YYYY-MM-DD and times HH:MM", ErrInvalidInput)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: start must be before end", ErrInvalidInput)
	}
	if from.Before(WindowStart(s.now(), s.loc)) {
		return nil, fmt.Errorf("%w: date is in the past", ErrInvalidInput)
	}

	// Reject windows overlapping another window of the same day
	existing, err := s.store.ListAvailability(ctx, tutor.ID, date, date)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		oFrom, oTo, err := SlotRange(other, s.loc)
		if err != nil {
			continue
		}
		if from.Before(oTo) && oFrom.Before(to) {
			return nil, fmt.Errorf("%w: overlaps %s-%s", ErrSlotUnavailable, other.StartTime, other.EndTime)
		}
	}

	if err := s.store.AddAvailability(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) RemoveAvailability(ctx context.Context, userID, availabilityID uuid.UUID) error {
	tutor, err := s.store.GetTutorByUserID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return err
	}
	slot, err := s.store.GetAvailability(ctx, availabilityID)
	if err != nil {
		return err
	}
	if slot.TutorID != tutor.ID {
		return ErrForbidden
	}

	// Booked windows stay
	err = s.store.DeleteAvailability(ctx, availabilityID)
	if errors.Is(err, db.ErrConflict) {
		return ErrSlotUnavailable
	}
	return err
}

// SessionPrice prorates the hourly rate to the session length.
func SessionPrice(perHourCents int64, d time.Duration) int64 {
	if perHourCents <= 0 || d <= 0 {
		return 0
	}
	return perHourCents * int64(d/time.Minute) / 60
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to string) (*models.Booking, error) {
	b, err := s.store.TransitionBooking(ctx, id, from, to)
	if errors.Is(err, db.ErrConflict) {
		if _, getErr := s.store.GetBooking(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Booking status changed", "bookingID", id, "from", from, "to", to)
	return b, nil
}

func (s *Service) approvedTutor(ctx context.Context, userID uuid.UUID) (*models.Tutor, error) {
	tutor, err := s.store.GetTutorByUserID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: not a tutor", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if tutor.Status != models.ReviewApproved {
		return nil, ErrTutorNotApproved
	}
	return tutor, nil
}

func (s *Service) notifyTutor(ctx context.Context, b *models.Booking, title, body string) {
	tutor, err := s.store.GetTutor(ctx, b.TutorID)
	if err != nil {
		s.logger.Warnw("Failed to load tutor for notification", "error", err, "tutorID", b.TutorID)
		return
	}
	s.notifier.User(ctx, tutor.UserID, models.NotificationBookingUpdated, title, body, true)
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.loc).Format("02.01.2006 15:04")
}
