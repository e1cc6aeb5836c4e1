package availability

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaxCalendarDays caps the window of a single calendar request.
const MaxCalendarDays = 366

var (
	ErrInvalidWindow  = errors.New("from must be before or equal to to")
	ErrWindowTooLarge = errors.New("calendar window exceeds maximum of 366 days")
)

// CalendarPolicy controls how existing stays are painted on the calendar.
type CalendarPolicy struct {
	// FreeCheckoutDay leaves each stay's checkout day selectable.
	FreeCheckoutDay bool
}

// DaySet builds the display set for ranges under the policy.
func (p CalendarPolicy) DaySet(existing []DateRange) BookedDaySet {
	if p.FreeCheckoutDay {
		return ComputeOccupiedNightSet(existing)
	}
	return ComputeBookedDaySet(existing)
}

// DayStatus is one calendar cell.
type DayStatus struct {
	Date   string `json:"date"`
	Booked bool   `json:"booked"`
}

// BuildCalendar lists each day of [from, to] with its booked flag.
func BuildCalendar(existing []DateRange, from, to time.Time, policy CalendarPolicy) ([]DayStatus, error) {
	from, to = Day(from), Day(to)
	if from.After(to) {
		return nil, ErrInvalidWindow
	}
	if Nights(from, to) >= MaxCalendarDays {
		return nil, ErrWindowTooLarge
	}

	booked := policy.DaySet(existing)
	days := make([]DayStatus, 0, Nights(from, to)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, DayStatus{Date: FormatDay(d), Booked: booked.Has(d)})
	}
	return days, nil
}

// Quote is the price summary of a candidate stay.
type Quote struct {
	CheckIn       string          `json:"check_in"`
	CheckOut      string          `json:"check_out"`
	Nights        int             `json:"nights"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Conflict      bool            `json:"conflict"`
	Conflicts     []DateRange     `json:"conflicts,omitempty"`
}

// QuoteStay prices a proposal against a room's existing ranges.
func QuoteStay(proposal DateRange, pricePerNight decimal.Decimal, existing []DateRange) Quote {
	nights := proposal.Nights()
	conflicts := ConflictingRanges(proposal, existing)
	return Quote{
		CheckIn:       FormatDay(proposal.CheckIn),
		CheckOut:      FormatDay(proposal.CheckOut),
		Nights:        nights,
		PricePerNight: pricePerNight,
		TotalPrice:    TotalPrice(nights, pricePerNight),
		Conflict:      len(conflicts) > 0,
		Conflicts:     conflicts,
	}
}
