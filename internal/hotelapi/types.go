package hotelapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"luxurystay/internal/availability"
)

// ConflictMessage is the booking API's marker for an overlapping booking.
const ConflictMessage = "Room is already booked for selected dates"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Booking statuses accepted by the booking API.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// RoomSummary is a room as listed on the storefront.
type RoomSummary struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status,omitempty"`
}

// UnmarshalJSON validates the listed price like availability.Room does.
func (r *RoomSummary) UnmarshalJSON(data []byte) error {
	type plain RoomSummary
	var wire struct {
		plain
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	price, err := availability.DecodePrice(wire.Price)
	if err != nil {
		return fmt.Errorf("room %d: %w", wire.ID, err)
	}
	*r = RoomSummary(wire.plain)
	r.Price = price
	return nil
}

// RoomRef is the room embedded in a booking record.
type RoomRef struct {
	Title string `json:"title"`
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
}

// UserRef is the guest embedded in a back-office booking record.
type UserRef struct {
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	Email     string `json:"email"`
}

// BookingRecord is a stored booking.
type BookingRecord struct {
	ID            int64           `json:"id"`
	RoomID        int64           `json:"room_id,omitempty"`
	CheckIn       string          `json:"check_in"`
	CheckOut      string          `json:"check_out"`
	Nights        int             `json:"nights"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        string          `json:"status"`
	Room          *RoomRef        `json:"room,omitempty"`
	User          *UserRef        `json:"user,omitempty"`
}

// APIError is a non-2xx answer from the booking API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("booking api: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("booking api: http %d", e.StatusCode)
}

// Is maps 404 answers to ErrNotFound and 401/403 answers to ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// ConflictError is returned by CreateBooking when the API refuses the stay
// because it overlaps existing bookings.
type ConflictError struct {
	Message   string
	Conflicts []availability.DateRange
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ConflictingRanges returns the stays the API reported as overlapping.
func (e *ConflictError) ConflictingRanges() []availability.DateRange {
	return e.Conflicts
}

type errorBody struct {
	Error     string                   `json:"error"`
	Message   string                   `json:"message"`
	Conflicts []availability.DateRange `json:"conflicts"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
