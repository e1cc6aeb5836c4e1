package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"luxurystay/internal/availability"
)

// SubmitRequest is the payload sent to the booking API.
type SubmitRequest struct {
	RoomID   int64  `json:"room_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// Confirmation is a booking accepted by the booking API.
type Confirmation struct {
	BookingID  int64           `json:"booking_id"`
	RoomID     int64           `json:"room_id"`
	CheckIn    string          `json:"check_in"`
	CheckOut   string          `json:"check_out"`
	Nights     int             `json:"nights"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     string          `json:"status,omitempty"`
}

// Submitter creates bookings on the booking API. Errors implementing
// ConflictCarrier are treated as server conflicts, anything else as a
// network error.
type Submitter interface {
	CreateBooking(ctx context.Context, token string, req SubmitRequest) (*Confirmation, error)
}

// View is a read-only snapshot of a proposal.
type View struct {
	UserID        int64                    `json:"user_id"`
	RoomID        int64                    `json:"room_id"`
	State         State                    `json:"state"`
	CheckIn       string                   `json:"check_in,omitempty"`
	CheckOut      string                   `json:"check_out,omitempty"`
	CheckOutFloor string                   `json:"check_out_floor"`
	Nights        int                      `json:"nights"`
	PricePerNight decimal.Decimal          `json:"price_per_night"`
	TotalPrice    decimal.Decimal          `json:"total_price"`
	Existing      []availability.DateRange `json:"existing"`
	LastRejection *Reason                  `json:"last_rejection,omitempty"`
	BookingID     int64                    `json:"booking_id,omitempty"`
}

// Proposal is one user's in-progress booking of one room.
type Proposal struct {
	userID        int64
	roomID        int64
	pricePerNight decimal.Decimal

	checkIn  time.Time
	checkOut time.Time
	existing []availability.DateRange

	state         State
	lastRejection *Rejection
	confirmation  *Confirmation
	updatedAt     time.Time

	fsm   *FSM
	guard SubmitGuard
	now   func() time.Time
	mu    sync.Mutex
}

// NewProposal starts an empty proposal for the room. now may be nil.
func NewProposal(userID int64, room *availability.Room, now func() time.Time) *Proposal {
	if now == nil {
		now = time.Now
	}
	p := &Proposal{
		userID:        userID,
		roomID:        room.ID,
		pricePerNight: room.PricePerNight,
		existing:      append([]availability.DateRange(nil), room.Bookings...),
		state:         StateEmpty,
		fsm:           defaultFSM,
		now:           now,
	}
	p.updatedAt = now()
	return p
}

// State returns the current state.
func (p *Proposal) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetCheckIn selects (or with a zero time clears) the check-in day.
// Changing check-in always clears the checkout.
func (p *Proposal) SetCheckIn(checkIn time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.editable(); err != nil {
		return err
	}
	p.touch()

	if checkIn.IsZero() {
		p.checkIn, p.checkOut = time.Time{}, time.Time{}
		return p.moveTo(StateEmpty)
	}

	day := availability.Day(checkIn)
	if day.Before(availability.Day(p.now().In(day.Location()))) {
		return p.reject(validationError("check_in cannot be in the past"))
	}

	p.checkIn = day
	p.checkOut = time.Time{}
	return p.moveTo(StatePartialSelection)
}

// SetCheckOut selects (or with a zero time clears) the checkout day. A
// checkout that makes the stay overlap an existing range is cleared again and
// reported as a ConflictDetected rejection.
func (p *Proposal) SetCheckOut(checkOut time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.editable(); err != nil {
		return err
	}
	p.touch()

	if checkOut.IsZero() {
		p.checkOut = time.Time{}
		if p.checkIn.IsZero() {
			return p.moveTo(StateEmpty)
		}
		return p.moveTo(StatePartialSelection)
	}
	if p.checkIn.IsZero() {
		return p.reject(validationError("select check_in first"))
	}

	day := availability.Day(checkOut)
	if day.Before(availability.CheckOutFloor(p.checkIn, p.now())) {
		return p.reject(validationError("check_out must be after check_in"))
	}

	p.checkOut = day
	if err := p.revalidate(); err != nil {
		return err
	}
	return p.moveTo(StateRangeSelected)
}

// SetRange selects both days in one step.
func (p *Proposal) SetRange(checkIn, checkOut time.Time) error {
	if err := p.SetCheckIn(checkIn); err != nil {
		return err
	}
	if checkIn.IsZero() || checkOut.IsZero() {
		return nil
	}
	return p.SetCheckOut(checkOut)
}

// ReplaceExisting swaps in a freshly fetched list of existing ranges and
// re-runs the conflict check on a selected range.
func (p *Proposal) ReplaceExisting(existing []availability.DateRange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.existing = append([]availability.DateRange(nil), existing...)
	if p.state != StateRangeSelected {
		return nil
	}
	return p.revalidate()
}

// Submit sends the selected range to the booking API. Only one submission
// runs at a time; concurrent calls return ErrSubmitInFlight without a request.
func (p *Proposal) Submit(ctx context.Context, token string, sub Submitter) (*Confirmation, error) {
	release, ok := p.guard.Acquire()
	if !ok {
		return nil, ErrSubmitInFlight
	}
	defer release()

	p.mu.Lock()
	req, err := p.beginSubmit()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	conf, err := sub.CreateBooking(ctx, token, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finishSubmit(conf, err)
}

// View returns a snapshot of the proposal.
func (p *Proposal) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	nights := availability.Nights(p.checkIn, p.checkOut)
	v := View{
		UserID:        p.userID,
		RoomID:        p.roomID,
		State:         p.state,
		CheckIn:       availability.FormatDay(p.checkIn),
		CheckOut:      availability.FormatDay(p.checkOut),
		CheckOutFloor: availability.FormatDay(availability.CheckOutFloor(p.checkIn, p.now())),
		Nights:        nights,
		PricePerNight: p.pricePerNight,
		TotalPrice:    availability.TotalPrice(nights, p.pricePerNight),
		Existing:      append([]availability.DateRange(nil), p.existing...),
	}
	if p.lastRejection != nil {
		reason := p.lastRejection.Reason
		v.LastRejection = &reason
	}
	if p.confirmation != nil {
		v.BookingID = p.confirmation.BookingID
	}
	return v
}

// CheckIn returns the selected check-in day or the zero time.
func (p *Proposal) CheckIn() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkIn
}

// Range returns the selected stay; ok is false until both days are chosen.
func (p *Proposal) Range() (r availability.DateRange, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkIn.IsZero() || p.checkOut.IsZero() {
		return availability.DateRange{}, false
	}
	return availability.DateRange{CheckIn: p.checkIn, CheckOut: p.checkOut}, true
}

// IsExpired reports whether the proposal has been idle longer than timeout.
// A proposal with a submission in flight never expires.
func (p *Proposal) IsExpired(timeout time.Duration) bool {
	if p.guard.Busy() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.updatedAt) > timeout
}

func (p *Proposal) beginSubmit() (SubmitRequest, error) {
	switch p.state {
	case StateConfirmed:
		return SubmitRequest{}, ErrProposalClosed
	case StateRangeSelected:
	default:
		return SubmitRequest{}, p.reject(validationError("select check_in and check_out"))
	}
	if availability.Nights(p.checkIn, p.checkOut) <= 0 {
		return SubmitRequest{}, p.reject(validationError("stay must be at least one night"))
	}

	if err := p.moveTo(StateSubmitting); err != nil {
		return SubmitRequest{}, err
	}
	p.touch()
	return SubmitRequest{
		RoomID:   p.roomID,
		CheckIn:  availability.FormatDay(p.checkIn),
		CheckOut: availability.FormatDay(p.checkOut),
	}, nil
}

func (p *Proposal) finishSubmit(conf *Confirmation, err error) (*Confirmation, error) {
	p.touch()

	if err == nil && conf != nil {
		p.confirmation = conf
		if conf.Nights == 0 {
			conf.Nights = availability.Nights(p.checkIn, p.checkOut)
		}
		if conf.TotalPrice.IsZero() {
			conf.TotalPrice = availability.TotalPrice(conf.Nights, p.pricePerNight)
		}
		if moveErr := p.moveTo(StateConfirmed); moveErr != nil {
			return nil, moveErr
		}
		return conf, nil
	}
	if err == nil {
		err = errors.New("empty response from booking API")
	}

	if moveErr := p.moveTo(StateRejected); moveErr != nil {
		return nil, moveErr
	}

	var carrier ConflictCarrier
	if errors.As(err, &carrier) {
		conflicts := carrier.ConflictingRanges()
		p.existing = mergeRanges(p.existing, conflicts)
		p.checkOut = time.Time{}
		rej := &Rejection{
			Reason:    ReasonServerConflict,
			Message:   "room is already booked for selected dates",
			Conflicts: conflicts,
			Err:       err,
		}
		p.lastRejection = rej
		if moveErr := p.moveTo(StatePartialSelection); moveErr != nil {
			return nil, moveErr
		}
		return nil, rej
	}

	rej := &Rejection{Reason: ReasonNetwork, Message: "booking request failed", Err: err}
	p.lastRejection = rej
	if moveErr := p.moveTo(StateRangeSelected); moveErr != nil {
		return nil, moveErr
	}
	return nil, rej
}

// revalidate clears the checkout when the selected range overlaps an
// existing one. Callers hold p.mu.
func (p *Proposal) revalidate() error {
	if p.checkIn.IsZero() || p.checkOut.IsZero() {
		return nil
	}
	proposal := availability.DateRange{CheckIn: p.checkIn, CheckOut: p.checkOut}
	conflicts := availability.ConflictingRanges(proposal, p.existing)
	if len(conflicts) == 0 {
		return nil
	}

	p.checkOut = time.Time{}
	if err := p.moveTo(StatePartialSelection); err != nil {
		return err
	}
	return p.reject(&Rejection{
		Reason:    ReasonConflictDetected,
		Message:   "room is already booked in the selected dates",
		Conflicts: conflicts,
	})
}

func (p *Proposal) editable() error {
	switch p.state {
	case StateSubmitting:
		return ErrSubmitInFlight
	case StateConfirmed:
		return ErrProposalClosed
	}
	return nil
}

func (p *Proposal) moveTo(to State) error {
	next, err := p.fsm.Next(p.state, to)
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

func (p *Proposal) reject(rej *Rejection) error {
	p.lastRejection = rej
	return rej
}

// touch records activity and forgets the previous step's rejection.
func (p *Proposal) touch() {
	p.updatedAt = p.now()
	p.lastRejection = nil
}

// mergeRanges appends ranges not already present (compared by day).
func mergeRanges(existing, extra []availability.DateRange) []availability.DateRange {
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.String()] = struct{}{}
	}
	merged := append([]availability.DateRange(nil), existing...)
	for _, r := range extra {
		if _, ok := seen[r.String()]; ok {
			continue
		}
		seen[r.String()] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}
