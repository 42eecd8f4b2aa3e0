package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"studko/internal/models"
)

// CalendarDays is the width of the client-facing booking window.
const CalendarDays = 14

const (
	SlotPast    = "past"
	SlotBooked  = "booked"
	SlotPending = "pending"
	SlotFree    = "free"

	DayUnavailable = "unavailable"
	DayAvailable   = "available"
	DayFull        = "full"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04"
)

var weekdays = [...]string{"Ne", "Po", "Ut", "St", "Št", "Pi", "So"}

type Slot struct {
	AvailabilityID uuid.UUID `json:"availability_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         string    `json:"status"`
}

type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Slots   []Slot `json:"slots"`
	Status  string `json:"status"`
}

// SlotRange resolves an availability row to absolute times in loc.
func SlotRange(a models.AvailabilityDate, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(timeLayout, a.Date+" "+a.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(timeLayout, a.Date+" "+a.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// WindowStart is local midnight of now's date in loc.
func WindowStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// BuildCalendar buckets availability into CalendarDays days starting at now's
// local date. Rows outside the window or with unparsable times are dropped.
func BuildCalendar(loc *time.Location, now time.Time, availability []models.AvailabilityDate, bookings []models.Booking) []Day {
	first := WindowStart(now, loc)

	days := make([]Day, CalendarDays)
	index := make(map[string]int, CalendarDays)
	for i := range days {
		d := first.AddDate(0, 0, i)
		days[i] = Day{Date: d.Format(dateLayout), Weekday: weekdays[d.Weekday()], Slots: []Slot{}}
		index[days[i].Date] = i
	}

	for _, a := range availability {
		i, ok := index[a.Date]
		if !ok {
			continue
		}
		start, end, err := SlotRange(a, loc)
		if err != nil || !start.Before(end) {
			continue
		}
		days[i].Slots = append(days[i].Slots, Slot{
			AvailabilityID: a.ID,
			Start:          start,
			End:            end,
			Status:         slotStatus(a, start, end, now, bookings),
		})
	}

	for i := range days {
		sort.Slice(days[i].Slots, func(a, b int) bool {
			return days[i].Slots[a].Start.Before(days[i].Slots[b].Start)
		})
		days[i].Status = dayStatus(days[i].Slots)
	}
	return days
}

func slotStatus(a models.AvailabilityDate, start, end, now time.Time, bookings []models.Booking) string {
	if !start.After(now) {
		return SlotPast
	}
	pending := false
	for _, b := range bookings {
		if !b.Holds() {
			continue
		}
		overlaps := b.AvailabilityID == a.ID || (b.StartTime.Before(end) && start.Before(b.EndTime))
		if !overlaps {
			continue
		}
		if b.Status == models.BookingPending {
			pending = true
			continue
		}
		return SlotBooked
	}
	switch {
	case pending:
		return SlotPending
	case a.IsBooked:
		return SlotBooked
	}
	return SlotFree
}

func dayStatus(slots []Slot) string {
	if len(slots) == 0 {
		return DayUnavailable
	}
	for _, s := range slots {
		if s.Status == SlotFree {
			return DayAvailable
		}
	}
	return DayFull
}
