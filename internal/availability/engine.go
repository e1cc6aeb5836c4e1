package availability

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("invalid price")

// BookedDaySet is the set of calendar days painted as unavailable.
// It drives display only; conflict decisions use HasConflict.
type BookedDaySet map[DayKey]struct{}

// Has reports whether the day of t is in the set.
func (s BookedDaySet) Has(t time.Time) bool {
	_, ok := s[KeyOf(Day(t))]
	return ok
}

// Keys returns the set members in no particular order.
func (s BookedDaySet) Keys() []DayKey {
	keys := make([]DayKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// ComputeBookedDaySet marks every day from CheckIn through CheckOut inclusive.
// The checkout day is included even though nobody sleeps there that night.
func ComputeBookedDaySet(existing []DateRange) BookedDaySet {
	return computeDaySet(existing, true)
}

// ComputeOccupiedNightSet marks only occupied nights, leaving each checkout day
// free for a same-day check-in.
func ComputeOccupiedNightSet(existing []DateRange) BookedDaySet {
	return computeDaySet(existing, false)
}

func computeDaySet(existing []DateRange, includeCheckOut bool) BookedDaySet {
	set := make(BookedDaySet)
	for _, r := range existing {
		if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
			continue
		}
		end := civil(r.CheckOut)
		for d := civil(r.CheckIn); d.Before(end) || (includeCheckOut && d.Equal(end)); d = d.AddDate(0, 0, 1) {
			set[KeyOf(d)] = struct{}{}
		}
	}
	return set
}

// HasConflict reports whether the proposal overlaps any existing range.
// The proposal is expected to satisfy CheckOut > CheckIn already.
func HasConflict(proposal DateRange, existing []DateRange) bool {
	for _, r := range existing {
		if proposal.Overlaps(r) {
			return true
		}
	}
	return false
}

// ConflictingRanges returns the existing ranges the proposal overlaps.
func ConflictingRanges(proposal DateRange, existing []DateRange) []DateRange {
	var out []DateRange
	for _, r := range existing {
		if proposal.Overlaps(r) {
			out = append(out, r)
		}
	}
	return out
}

// CheckOutFloor returns the earliest selectable checkout: the day after
// checkIn, or today when checkIn is not chosen yet.
func CheckOutFloor(checkIn, now time.Time) time.Time {
	if checkIn.IsZero() {
		return Day(now)
	}
	return Day(checkIn).AddDate(0, 0, 1)
}

// Nights counts whole nights between the two dates. It is 0 when either date
// is missing or checkOut is not after checkIn.
func Nights(checkIn, checkOut time.Time) int {
	if checkIn.IsZero() || checkOut.IsZero() {
		return 0
	}
	diff := civil(checkOut).Sub(civil(checkIn))
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// TotalPrice multiplies nights by the nightly price; zero nights cost nothing.
func TotalPrice(nights int, pricePerNight decimal.Decimal) decimal.Decimal {
	if nights <= 0 {
		return decimal.Zero
	}
	return pricePerNight.Mul(decimal.NewFromInt(int64(nights)))
}

// ParsePrice parses the API's numeric price string. An empty string is zero.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	p, err := decimal.NewFromString(s)
	if err != nil || p.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return p, nil
}
