package availability

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Room is the booking API's room record as the engine sees it.
type Room struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	PricePerNight decimal.Decimal `json:"price"`
	Image         string          `json:"image,omitempty"`
	Description   string          `json:"description,omitempty"`
	Bookings      []DateRange     `json:"bookings"`
}

// UnmarshalJSON reads the price through ParsePrice, so a negative price is
// rejected and a missing one is zero.
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var wire struct {
		plain
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	price, err := DecodePrice(wire.Price)
	if err != nil {
		return fmt.Errorf("room %d: %w", wire.ID, err)
	}
	*r = Room(wire.plain)
	r.PricePerNight = price
	return nil
}

// DecodePrice parses a JSON price given as a number, a string or null.
func DecodePrice(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, ErrInvalidPrice
		}
	}
	return ParsePrice(s)
}

// Quote prices a stay in this room.
func (r *Room) Quote(proposal DateRange) Quote {
	return QuoteStay(proposal, r.PricePerNight, r.Bookings)
}
