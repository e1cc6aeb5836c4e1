package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"luxurystay/internal/availability"
	"luxurystay/internal/events"
	"luxurystay/internal/metrics"
	"luxurystay/internal/session"
)

// RoomSource loads a room with its existing bookings.
type RoomSource interface {
	GetRoom(ctx context.Context, roomID int64) (*availability.Room, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// OutcomeConfirmed labels a successful attempt; rejected attempts use their
// Reason as outcome.
const OutcomeConfirmed = "confirmed"

// AttemptEvent is the payload of every proposal and submission event.
type AttemptEvent struct {
	AttemptID  string                   `json:"attempt_id"`
	UserID     int64                    `json:"user_id"`
	RoomID     int64                    `json:"room_id"`
	CheckIn    string                   `json:"check_in"`
	CheckOut   string                   `json:"check_out"`
	Nights     int                      `json:"nights"`
	TotalPrice decimal.Decimal          `json:"total_price"`
	Outcome    string                   `json:"outcome"`
	BookingID  int64                    `json:"booking_id,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Conflicts  []availability.DateRange `json:"conflicts,omitempty"`
	At         time.Time                `json:"at"`
}

// Service drives proposals for the HTTP layer.
type Service struct {
	store     *Store
	rooms     RoomSource
	submitter Submitter
	bus       EventPublisher
	logger    *zerolog.Logger
}

// NewService wires a booking service. bus may be nil.
func NewService(store *Store, rooms RoomSource, submitter Submitter, bus EventPublisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking").Logger()
	return &Service{
		store:     store,
		rooms:     rooms,
		submitter: submitter,
		bus:       bus,
		logger:    &l,
	}
}

// Open returns the user's proposal for the room, creating it when needed and
// refreshing its existing ranges from the API.
func (s *Service) Open(ctx context.Context, userID, roomID int64) (View, error) {
	p, err := s.open(ctx, userID, roomID)
	if err != nil {
		return View{}, err
	}
	return p.View(), nil
}

// Select applies a date selection. A zero checkIn clears the proposal; a
// changed checkIn clears the checkout before checkOut is applied. The returned
// view is valid even when err is a ConflictDetected rejection.
func (s *Service) Select(ctx context.Context, userID, roomID int64, checkIn, checkOut time.Time) (View, error) {
	p, err := s.open(ctx, userID, roomID)
	if err != nil {
		return View{}, err
	}

	err = s.apply(p, checkIn, checkOut)
	view := p.View()

	if rej, ok := AsRejection(err); ok {
		switch rej.Reason {
		case ReasonConflictDetected:
			metrics.IncConflictDetected()
			s.publish(events.EventConflictDetected, s.attempt(userID, roomID, checkIn, checkOut, view, rej))
		case ReasonValidation:
			s.publish(events.EventValidationError, s.attempt(userID, roomID, checkIn, checkOut, view, rej))
		}
	}
	return view, err
}

func (s *Service) apply(p *Proposal, checkIn, checkOut time.Time) error {
	switch {
	case checkIn.IsZero() && checkOut.IsZero():
		return p.SetCheckIn(time.Time{})
	case checkIn.IsZero():
		return p.SetCheckOut(checkOut)
	}

	if cur := p.CheckIn(); cur.IsZero() || availability.KeyOf(cur) != availability.KeyOf(checkIn) {
		if err := p.SetCheckIn(checkIn); err != nil {
			return err
		}
	}
	return p.SetCheckOut(checkOut)
}

// View returns the user's proposal for the room.
func (s *Service) View(userID, roomID int64) (View, error) {
	p, ok := s.store.Get(Key{UserID: userID, RoomID: roomID})
	if !ok {
		return View{}, ErrNotFound
	}
	return p.View(), nil
}

// Discard drops the user's proposal for the room.
func (s *Service) Discard(userID, roomID int64) error {
	key := Key{UserID: userID, RoomID: roomID}
	p, ok := s.store.Get(key)
	if !ok {
		return ErrNotFound
	}
	if p.guard.Busy() {
		return ErrSubmitInFlight
	}
	s.store.Delete(key)
	return nil
}

// Refresh refetches the room and replaces the proposal's existing ranges.
func (s *Service) Refresh(ctx context.Context, userID, roomID int64) (View, error) {
	p, ok := s.store.Get(Key{UserID: userID, RoomID: roomID})
	if !ok {
		return View{}, ErrNotFound
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return View{}, fmt.Errorf("refresh room %d: %w", roomID, err)
	}
	err = p.ReplaceExisting(room.Bookings)
	return p.View(), err
}

// Submit sends the session user's proposal for the room to the booking API.
func (s *Service) Submit(ctx context.Context, sess session.Session, roomID int64) (*Confirmation, View, error) {
	key := Key{UserID: sess.UserID, RoomID: roomID}
	p, ok := s.store.Get(key)
	if !ok {
		return nil, View{}, ErrNotFound
	}

	stay, _ := p.Range()
	conf, err := p.Submit(ctx, sess.Token, s.submitter)
	view := p.View()

	log := s.logger.With().Int64("user_id", sess.UserID).Int64("room_id", roomID).Logger()

	switch {
	case err == nil:
		metrics.IncSubmission(OutcomeConfirmed)
		s.store.Delete(key)
		ev := s.attempt(sess.UserID, roomID, stay.CheckIn, stay.CheckOut, view, nil)
		ev.Outcome = OutcomeConfirmed
		ev.BookingID = conf.BookingID
		ev.Nights = conf.Nights
		ev.TotalPrice = conf.TotalPrice
		s.publish(events.EventBookingConfirmed, ev)
		log.Info().Int64("booking_id", conf.BookingID).Str("stay", stay.String()).Msg("booking confirmed")
		return conf, view, nil

	case errors.Is(err, ErrSubmitInFlight):
		metrics.IncSubmitNoop()
		log.Debug().Msg("submit ignored, already in flight")
		return nil, view, err
	}

	rej, ok := AsRejection(err)
	if !ok {
		log.Error().Err(err).Msg("submit failed")
		return nil, view, err
	}

	metrics.IncSubmission(string(rej.Reason))
	ev := s.attempt(sess.UserID, roomID, stay.CheckIn, stay.CheckOut, view, rej)
	switch rej.Reason {
	case ReasonServerConflict:
		s.publish(events.EventServerConflict, ev)
		log.Warn().Int("conflicts", len(rej.Conflicts)).Msg("booking rejected, room already booked")
	case ReasonNetwork:
		s.publish(events.EventNetworkError, ev)
		log.Error().Err(rej.Err).Msg("booking request failed")
	default:
		s.publish(events.EventValidationError, ev)
		log.Debug().Str("message", rej.Message).Msg("submit refused")
	}
	return nil, view, err
}

// Cleanup removes idle proposals.
func (s *Service) Cleanup() int {
	return s.store.Cleanup()
}

func (s *Service) open(ctx context.Context, userID, roomID int64) (*Proposal, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %d: %w", roomID, err)
	}

	p := s.store.GetOrCreate(Key{UserID: userID, RoomID: roomID}, room)
	if err := p.ReplaceExisting(room.Bookings); err != nil {
		// A refetch made the selected range conflict; the proposal already
		// fell back to a partial selection.
		if rej, ok := AsRejection(err); ok && rej.Reason == ReasonConflictDetected {
			metrics.IncConflictDetected()
			return p, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) attempt(userID, roomID int64, checkIn, checkOut time.Time, view View, rej *Rejection) AttemptEvent {
	ev := AttemptEvent{
		AttemptID:  uuid.NewString(),
		UserID:     userID,
		RoomID:     roomID,
		CheckIn:    availability.FormatDay(checkIn),
		CheckOut:   availability.FormatDay(checkOut),
		Nights:     availability.Nights(checkIn, checkOut),
		TotalPrice: availability.TotalPrice(availability.Nights(checkIn, checkOut), view.PricePerNight),
		At:         s.store.Now(),
	}
	if rej != nil {
		ev.Outcome = string(rej.Reason)
		ev.Message = rej.Message
		ev.Conflicts = rej.Conflicts
	}
	return ev
}

func (s *Service) publish(eventType string, ev AttemptEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish event")
	}
}
