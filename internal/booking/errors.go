package booking

import (
	"errors"
	"fmt"

	"luxurystay/internal/availability"
)

var (
	ErrSubmitInFlight    = errors.New("submission already in progress")
	ErrProposalClosed    = errors.New("proposal already confirmed")
	ErrInvalidTransition = errors.New("invalid proposal transition")
	ErrNotFound          = errors.New("proposal not found")
)

// Reason classifies why a proposal step or submission was refused.
type Reason string

const (
	ReasonValidation       Reason = "validation_error"
	ReasonConflictDetected Reason = "conflict_detected"
	ReasonServerConflict   Reason = "server_conflict"
	ReasonNetwork          Reason = "network_error"
)

// Rejection is returned for every refused selection or submission.
type Rejection struct {
	Reason    Reason
	Message   string
	Conflicts []availability.DateRange
	Err       error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Reason, r.Message, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// AsRejection extracts a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ConflictCarrier is implemented by submit errors that report the stays the
// booking API found overlapping.
type ConflictCarrier interface {
	error
	ConflictingRanges() []availability.DateRange
}

func validationError(msg string) *Rejection {
	return &Rejection{Reason: ReasonValidation, Message: msg}
}
