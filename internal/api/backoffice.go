package api

import (
	"fmt"
	"net/http"
	"time"

	"luxurystay/internal/availability"
	"luxurystay/internal/hotelapi"
	"luxurystay/internal/session"
)

const defaultExportDays = 30

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	records, err := s.deps.Backend.History(r.Context(), sess.Token)
	if err != nil {
		s.backendError(w, "history", err)
		return
	}
	if records == nil {
		records = []hotelapi.BookingRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": records})
}

func (s *HTTPServer) handleBackofficeBookings(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	records, err := s.deps.Backend.ListBookings(r.Context(), sess.Token)
	if err != nil {
		s.backendError(w, "list bookings", err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Status == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []hotelapi.BookingRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": records})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}

	sess, _ := session.FromContext(r.Context())
	if err := s.deps.Backend.UpdateBookingStatus(r.Context(), sess.Token, id, req.Status); err != nil {
		s.backendError(w, "update status", err)
		return
	}
	s.logger.Info().
		Int64("booking_id", id).
		Int64("staff_id", sess.UserID).
		Str("status", req.Status).
		Msg("booking status updated")
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status})
}

func (s *HTTPServer) handleExportAttempts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotFound, "attempt journal disabled")
		return
	}

	since := s.today().AddDate(0, 0, -defaultExportDays)
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := availability.ParseDay(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since: "+err.Error())
			return
		}
		since = d
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attempts_%s.xlsx"`, s.now().In(s.loc).Format("20060102")))
	n, err := s.deps.Exporter.ExportXLSX(r.Context(), since.In(time.UTC), w)
	if err != nil {
		s.logger.Error().Err(err).Msg("export attempts")
		if n == 0 {
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusInternalServerError, "export failed")
		}
		return
	}
	s.logger.Info().Int("rows", n).Str("since", availability.FormatDay(since)).Msg("attempts exported")
}
