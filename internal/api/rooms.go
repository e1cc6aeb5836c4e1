package api

import (
	"errors"
	"net/http"

	"luxurystay/internal/availability"
	"luxurystay/internal/hotelapi"
)

const defaultCalendarDays = 60

type roomResponse struct {
	*availability.Room
	CheckInMin string `json:"check_in_min"`
}

type calendarResponse struct {
	RoomID int64                    `json:"room_id"`
	From   string                   `json:"from"`
	To     string                   `json:"to"`
	Days   []availability.DayStatus `json:"days"`
}

type quoteRequest struct {
	CheckIn  string `json:"check_in" validate:"required"`
	CheckOut string `json:"check_out" validate:"required"`
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.deps.Backend.ListRooms(r.Context())
	if err != nil {
		s.backendError(w, "list rooms", err)
		return
	}
	if rooms == nil {
		rooms = []hotelapi.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

func (s *HTTPServer) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{
		Room:       room,
		CheckInMin: availability.FormatDay(s.today()),
	})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	from := s.today()
	to := from.AddDate(0, 0, defaultCalendarDays)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := availability.ParseDay(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from: "+err.Error())
			return
		}
		from = d
		if q.Get("to") == "" {
			to = from.AddDate(0, 0, defaultCalendarDays)
		}
	}
	if v := q.Get("to"); v != "" {
		d, err := availability.ParseDay(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
		to = d
	}

	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}

	days, err := availability.BuildCalendar(room.Bookings, from, to, s.deps.Policy.CalendarPolicy())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, calendarResponse{
		RoomID: room.ID,
		From:   availability.FormatDay(from),
		To:     availability.FormatDay(to),
		Days:   days,
	})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(r, "id"); !ok {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	stay, err := availability.ParseDateRange(req.CheckIn, req.CheckOut, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room.Quote(stay))
}

func (s *HTTPServer) loadRoom(w http.ResponseWriter, r *http.Request) (*availability.Room, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return nil, false
	}
	room, err := s.deps.Backend.GetRoom(r.Context(), id)
	if err != nil {
		s.backendError(w, "get room", err)
		return nil, false
	}
	return room, true
}

func (s *HTTPServer) backendError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, hotelapi.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error().Err(err).Str("op", op).Msg("booking API call failed")
	writeError(w, http.StatusBadGateway, "booking service unavailable")
}
