// Package availability computes room availability from existing reservations:
// booked calendar days, half-open overlap checks, checkout floors and stay prices.
package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DayLayout is the wire format of calendar dates (YYYY-MM-DD).
const DayLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid date; expected YYYY-MM-DD")
	ErrInvertedDate = errors.New("check_out must be after check_in")
)

// DayKey identifies a calendar day without a time component.
type DayKey string

// KeyOf returns the day key of t in t's own location.
func KeyOf(t time.Time) DayKey {
	return DayKey(t.Format(DayLayout))
}

// DateRange is one reservation span occupying nights [CheckIn, CheckOut).
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewDateRange normalizes both ends to midnight. It does not validate order;
// ranges coming from the booking API are taken as they are.
func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
}

// Valid reports whether the range covers at least one night.
func (r DateRange) Valid() bool {
	return !r.CheckIn.IsZero() && !r.CheckOut.IsZero() && Day(r.CheckOut).After(Day(r.CheckIn))
}

// Nights returns the number of nights in the range.
func (r DateRange) Nights() int {
	return Nights(r.CheckIn, r.CheckOut)
}

// Overlaps reports whether two ranges intersect as half-open intervals.
// A stay ending on the day another begins does not overlap it.
func (r DateRange) Overlaps(other DateRange) bool {
	// [s, e) and [rs, re) overlap unless e <= rs or s >= re
	s, e := civil(r.CheckIn), civil(r.CheckOut)
	rs, re := civil(other.CheckIn), civil(other.CheckOut)
	return e.After(rs) && s.Before(re)
}

// String renders the range as "YYYY-MM-DD..YYYY-MM-DD".
func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", FormatDay(r.CheckIn), FormatDay(r.CheckOut))
}

type wireRange struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// MarshalJSON encodes the range with YYYY-MM-DD dates.
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRange{CheckIn: FormatDay(r.CheckIn), CheckOut: FormatDay(r.CheckOut)})
}

// UnmarshalJSON decodes YYYY-MM-DD (or longer ISO) dates as UTC midnights of
// the same calendar day. Order is not enforced here.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var w wireRange
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	in, err := ParseDay(w.CheckIn, time.UTC)
	if err != nil {
		return fmt.Errorf("check_in: %w", err)
	}
	out, err := ParseDay(w.CheckOut, time.UTC)
	if err != nil {
		return fmt.Errorf("check_out: %w", err)
	}
	r.CheckIn, r.CheckOut = in, out
	return nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDay renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string as midnight in loc. Longer ISO strings
// ("2025-01-10T00:00:00.000Z") are truncated to their date part.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if len(s) > len(DayLayout) {
		s = s[:len(DayLayout)]
	}
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ParseDateRange parses a proposal's dates and enforces check_out > check_in.
func ParseDateRange(checkIn, checkOut string, loc *time.Location) (DateRange, error) {
	in, err := ParseDay(checkIn, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("check_in: %w", err)
	}
	out, err := ParseDay(checkOut, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("check_out: %w", err)
	}
	r := DateRange{CheckIn: in, CheckOut: out}
	if !r.Valid() {
		return DateRange{}, ErrInvertedDate
	}
	return r, nil
}

// civil maps a date to UTC midnight of the same calendar day so that day
// arithmetic is immune to DST shifts and mixed locations.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
