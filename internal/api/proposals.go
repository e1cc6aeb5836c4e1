package api

import (
	"errors"
	"net/http"
	"time"

	"luxurystay/internal/availability"
	"luxurystay/internal/booking"
	"luxurystay/internal/hotelapi"
	"luxurystay/internal/session"
)

// selectionRequest carries the calendar selection. An empty check_in clears
// the proposal; an empty check_out keeps only the check-in.
type selectionRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type proposalResponse struct {
	booking.View
	Notice    string                   `json:"notice,omitempty"`
	Conflicts []availability.DateRange `json:"conflicts,omitempty"`
}

type submitResponse struct {
	Booking  *booking.Confirmation `json:"booking"`
	Proposal booking.View          `json:"proposal"`
}

func (s *HTTPServer) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	sess, roomID, ok := s.proposalTarget(w, r)
	if !ok {
		return
	}
	view, err := s.deps.Bookings.Open(r.Context(), sess.UserID, roomID)
	if err != nil {
		s.proposalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse{View: view})
}

func (s *HTTPServer) handlePutProposal(w http.ResponseWriter, r *http.Request) {
	sess, roomID, ok := s.proposalTarget(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	checkIn, err := s.optionalDay(req.CheckIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "check_in: "+err.Error())
		return
	}
	checkOut, err := s.optionalDay(req.CheckOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "check_out: "+err.Error())
		return
	}

	view, err := s.deps.Bookings.Select(r.Context(), sess.UserID, roomID, checkIn, checkOut)
	if rej, ok := booking.AsRejection(err); ok && rej.Reason == booking.ReasonConflictDetected {
		writeJSON(w, http.StatusOK, proposalResponse{
			View:      view,
			Notice:    rej.Message,
			Conflicts: rej.Conflicts,
		})
		return
	}
	if err != nil {
		s.proposalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse{View: view})
}

func (s *HTTPServer) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	sess, roomID, ok := s.proposalTarget(w, r)
	if !ok {
		return
	}
	if err := s.deps.Bookings.Discard(sess.UserID, roomID); err != nil {
		s.proposalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRefreshProposal(w http.ResponseWriter, r *http.Request) {
	sess, roomID, ok := s.proposalTarget(w, r)
	if !ok {
		return
	}
	view, err := s.deps.Bookings.Refresh(r.Context(), sess.UserID, roomID)
	if rej, ok := booking.AsRejection(err); ok && rej.Reason == booking.ReasonConflictDetected {
		writeJSON(w, http.StatusOK, proposalResponse{
			View:      view,
			Notice:    rej.Message,
			Conflicts: rej.Conflicts,
		})
		return
	}
	if err != nil {
		s.proposalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse{View: view})
}

func (s *HTTPServer) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	sess, roomID, ok := s.proposalTarget(w, r)
	if !ok {
		return
	}
	if !s.limiter.Allow(sess.UserID) {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "too many booking attempts")
		return
	}

	conf, view, err := s.deps.Bookings.Submit(r.Context(), sess, roomID)
	if err != nil {
		if rej, ok := booking.AsRejection(err); ok && rej.Reason == booking.ReasonServerConflict {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     rej.Message,
				"reason":    rej.Reason,
				"conflicts": rej.Conflicts,
				"proposal":  view,
			})
			return
		}
		s.proposalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Booking: conf, Proposal: view})
}

func (s *HTTPServer) proposalTarget(w http.ResponseWriter, r *http.Request) (session.Session, int64, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return session.Session{}, 0, false
	}
	roomID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return session.Session{}, 0, false
	}
	return sess, roomID, true
}

func (s *HTTPServer) optionalDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return availability.ParseDay(v, s.loc)
}

func (s *HTTPServer) proposalError(w http.ResponseWriter, err error) {
	if rej, ok := booking.AsRejection(err); ok {
		switch rej.Reason {
		case booking.ReasonValidation:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  rej.Message,
				"reason": rej.Reason,
			})
		case booking.ReasonNetwork:
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":  rej.Message,
				"reason": rej.Reason,
			})
		default:
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     rej.Message,
				"reason":    rej.Reason,
				"conflicts": rej.Conflicts,
			})
		}
		return
	}

	switch {
	case errors.Is(err, booking.ErrSubmitInFlight), errors.Is(err, booking.ErrProposalClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, hotelapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Msg("proposal request failed")
		writeError(w, http.StatusBadGateway, "booking service unavailable")
	}
}
