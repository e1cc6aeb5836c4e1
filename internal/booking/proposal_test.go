package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxurystay/internal/availability"
)

// Helper function to create a date
func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func stay(in, out time.Time) availability.DateRange {
	return availability.DateRange{CheckIn: in, CheckOut: out}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testRoom() *availability.Room {
	return &availability.Room{
		ID:            7,
		Title:         "Deluxe Suite",
		PricePerNight: decimal.NewFromInt(1500),
		Bookings:      []availability.DateRange{stay(day(2025, 2, 1), day(2025, 2, 5))},
	}
}

func newTestProposal() *Proposal {
	return NewProposal(42, testRoom(), fixedClock(time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)))
}

type conflictErr struct {
	ranges []availability.DateRange
}

func (e *conflictErr) Error() string { return "room is already booked for selected dates" }

func (e *conflictErr) ConflictingRanges() []availability.DateRange { return e.ranges }

type fakeSubmitter struct {
	calls atomic.Int32
	conf  *Confirmation
	err   error
	// started and unblock let tests hold a submission in flight.
	started chan struct{}
	unblock chan struct{}
	lastReq SubmitRequest
	mu      sync.Mutex
}

func (f *fakeSubmitter) CreateBooking(ctx context.Context, token string, req SubmitRequest) (*Confirmation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.unblock != nil {
		<-f.unblock
	}
	return f.conf, f.err
}

func TestProposalSelection(t *testing.T) {
	p := newTestProposal()
	assert.Equal(t, StateEmpty, p.State())

	require.NoError(t, p.SetCheckIn(day(2025, 2, 10)))
	assert.Equal(t, StatePartialSelection, p.State())

	require.NoError(t, p.SetCheckOut(day(2025, 2, 13)))
	assert.Equal(t, StateRangeSelected, p.State())

	v := p.View()
	assert.Equal(t, "2025-02-10", v.CheckIn)
	assert.Equal(t, "2025-02-13", v.CheckOut)
	assert.Equal(t, "2025-02-11", v.CheckOutFloor)
	assert.Equal(t, 3, v.Nights)
	assert.True(t, decimal.NewFromInt(4500).Equal(v.TotalPrice))

	// Changing check-in clears checkout.
	require.NoError(t, p.SetCheckIn(day(2025, 2, 11)))
	assert.Equal(t, StatePartialSelection, p.State())
	assert.Empty(t, p.View().CheckOut)

	// Clearing check-in empties the proposal.
	require.NoError(t, p.SetCheckIn(time.Time{}))
	assert.Equal(t, StateEmpty, p.State())
	assert.Equal(t, 0, p.View().Nights)
}

func TestProposalValidation(t *testing.T) {
	tests := []struct {
		name string
		run  func(p *Proposal) error
	}{
		{"check-in in the past", func(p *Proposal) error { return p.SetCheckIn(day(2025, 1, 19)) }},
		{"checkout without check-in", func(p *Proposal) error { return p.SetCheckOut(day(2025, 2, 12)) }},
		{"checkout equal to check-in", func(p *Proposal) error { return p.SetRange(day(2025, 2, 10), day(2025, 2, 10)) }},
		{"checkout before check-in", func(p *Proposal) error { return p.SetRange(day(2025, 2, 10), day(2025, 2, 8)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProposal()
			err := tt.run(p)
			rej, ok := AsRejection(err)
			require.True(t, ok, "expected rejection, got %v", err)
			assert.Equal(t, ReasonValidation, rej.Reason)
			assert.NotEqual(t, StateRangeSelected, p.State())
		})
	}
}

func TestProposalTodayIsSelectable(t *testing.T) {
	p := newTestProposal()
	assert.NoError(t, p.SetCheckIn(day(2025, 1, 20)))
}

func TestProposalConflictClearsCheckout(t *testing.T) {
	p := newTestProposal()

	require.NoError(t, p.SetCheckIn(day(2025, 2, 3)))
	assert.Equal(t, "2025-02-04", p.View().CheckOutFloor)

	err := p.SetCheckOut(day(2025, 2, 4))
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonConflictDetected, rej.Reason)
	assert.Equal(t, []availability.DateRange{stay(day(2025, 2, 1), day(2025, 2, 5))}, rej.Conflicts)

	v := p.View()
	assert.Equal(t, StatePartialSelection, v.State)
	assert.Equal(t, "2025-02-03", v.CheckIn)
	assert.Empty(t, v.CheckOut)
	require.NotNil(t, v.LastRejection)
	assert.Equal(t, ReasonConflictDetected, *v.LastRejection)
}

func TestProposalAdjacentStayIsAccepted(t *testing.T) {
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 1, 28), day(2025, 2, 1)))
	assert.Equal(t, StateRangeSelected, p.State())

	p = newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 5), day(2025, 2, 7)))
	assert.Equal(t, StateRangeSelected, p.State())
}

func TestProposalReplaceExistingRevalidates(t *testing.T) {
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 12)))

	err := p.ReplaceExisting([]availability.DateRange{stay(day(2025, 2, 11), day(2025, 2, 14))})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonConflictDetected, rej.Reason)
	assert.Equal(t, StatePartialSelection, p.State())

	// Non-conflicting refetch leaves the selection alone.
	require.NoError(t, p.SetCheckOut(day(2025, 2, 11)))
	require.NoError(t, p.ReplaceExisting(nil))
	assert.Equal(t, StateRangeSelected, p.State())
}

func TestProposalSubmitRequiresRange(t *testing.T) {
	sub := &fakeSubmitter{}
	p := newTestProposal()
	require.NoError(t, p.SetCheckIn(day(2025, 2, 10)))

	_, err := p.Submit(context.Background(), "tok", sub)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonValidation, rej.Reason)
	assert.Equal(t, int32(0), sub.calls.Load(), "no network call")
	assert.Equal(t, StatePartialSelection, p.State())
}

func TestProposalSubmitConfirmed(t *testing.T) {
	sub := &fakeSubmitter{conf: &Confirmation{BookingID: 99}}
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 13)))

	conf, err := p.Submit(context.Background(), "tok", sub)
	require.NoError(t, err)
	assert.Equal(t, int64(99), conf.BookingID)
	assert.Equal(t, 3, conf.Nights)
	assert.True(t, decimal.NewFromInt(4500).Equal(conf.TotalPrice))
	assert.Equal(t, StateConfirmed, p.State())
	assert.Equal(t, SubmitRequest{RoomID: 7, CheckIn: "2025-02-10", CheckOut: "2025-02-13"}, sub.lastReq)

	// A confirmed proposal is closed.
	assert.ErrorIs(t, p.SetCheckIn(day(2025, 3, 1)), ErrProposalClosed)
	_, err = p.Submit(context.Background(), "tok", sub)
	assert.ErrorIs(t, err, ErrProposalClosed)
	assert.Equal(t, int32(1), sub.calls.Load())
}

func TestProposalSubmitServerConflict(t *testing.T) {
	taken := stay(day(2025, 2, 11), day(2025, 2, 12))
	sub := &fakeSubmitter{err: &conflictErr{ranges: []availability.DateRange{taken}}}
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 13)))

	_, err := p.Submit(context.Background(), "tok", sub)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonServerConflict, rej.Reason)
	assert.Equal(t, []availability.DateRange{taken}, rej.Conflicts)

	v := p.View()
	assert.Equal(t, StatePartialSelection, v.State)
	assert.Equal(t, "2025-02-10", v.CheckIn)
	assert.Empty(t, v.CheckOut)
	assert.Len(t, v.Existing, 2)

	// The merged range now blocks the same checkout locally.
	err = p.SetCheckOut(day(2025, 2, 13))
	rej, ok = AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonConflictDetected, rej.Reason)
}

func TestProposalSubmitNetworkErrorAllowsRetry(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("connection refused")}
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 13)))

	_, err := p.Submit(context.Background(), "tok", sub)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNetwork, rej.Reason)
	assert.Equal(t, StateRangeSelected, p.State())
	assert.Equal(t, "2025-02-13", p.View().CheckOut)

	sub.err = nil
	sub.conf = &Confirmation{BookingID: 1}
	_, err = p.Submit(context.Background(), "tok", sub)
	require.NoError(t, err)
	assert.Equal(t, int32(2), sub.calls.Load())
}

func TestProposalSubmitEmptyResponseIsNetworkError(t *testing.T) {
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 13)))

	_, err := p.Submit(context.Background(), "tok", &fakeSubmitter{})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNetwork, rej.Reason)
}

func TestProposalDoubleSubmitSendsOneRequest(t *testing.T) {
	sub := &fakeSubmitter{
		conf:    &Confirmation{BookingID: 5},
		started: make(chan struct{}),
		unblock: make(chan struct{}),
	}
	p := newTestProposal()
	require.NoError(t, p.SetRange(day(2025, 2, 10), day(2025, 2, 13)))

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "tok", sub)
		done <- err
	}()
	<-sub.started

	_, err := p.Submit(context.Background(), "tok", sub)
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, p.SetCheckIn(day(2025, 3, 1)), ErrSubmitInFlight)
	assert.Equal(t, StateSubmitting, p.State())
	assert.False(t, p.IsExpired(0), "in-flight proposal never expires")

	close(sub.unblock)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, StateConfirmed, p.State())
}

func TestMergeRangesDeduplicates(t *testing.T) {
	a := stay(day(2025, 2, 1), day(2025, 2, 5))
	b := stay(day(2025, 2, 7), day(2025, 2, 9))

	merged := mergeRanges([]availability.DateRange{a}, []availability.DateRange{a, b, b})
	assert.Equal(t, []availability.DateRange{a, b}, merged)
}
