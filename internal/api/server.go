// Package api serves the storefront's availability and booking endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"luxurystay/internal/availability"
	"luxurystay/internal/booking"
	"luxurystay/internal/hotelapi"
	"luxurystay/internal/metrics"
	"luxurystay/internal/session"
)

const maxBodyBytes = 1 << 20

// Backend is the booking API as the HTTP layer uses it.
type Backend interface {
	ListRooms(ctx context.Context) ([]hotelapi.RoomSummary, error)
	GetRoom(ctx context.Context, roomID int64) (*availability.Room, error)
	History(ctx context.Context, token string) ([]hotelapi.BookingRecord, error)
	ListBookings(ctx context.Context, token string) ([]hotelapi.BookingRecord, error)
	UpdateBookingStatus(ctx context.Context, token string, bookingID int64, status string) error
}

// Authenticator resolves the Authorization header into a session.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (session.Session, error)
}

// PolicySource supplies the current calendar policy.
type PolicySource interface {
	CalendarPolicy() availability.CalendarPolicy
}

// AttemptExporter writes the attempt journal as a workbook.
type AttemptExporter interface {
	ExportXLSX(ctx context.Context, since time.Time, out io.Writer) (int, error)
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Backend  Backend
	Bookings *booking.Service
	Auth     Authenticator
	Policy   PolicySource
	Exporter AttemptExporter
}

// Options tune request handling.
type Options struct {
	Location    *time.Location
	SubmitRate  float64
	SubmitBurst int
	Now         func() time.Time
}

// HTTPServer exposes the storefront API.
type HTTPServer struct {
	server   *http.Server
	deps     Deps
	limiter  *userLimiter
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(addr string, deps Deps, opts Options, logger *zerolog.Logger) *HTTPServer {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()

	s := &HTTPServer{
		deps:     deps,
		limiter:  newUserLimiter(opts.SubmitRate, opts.SubmitBurst),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		loc:      opts.Location,
		now:      opts.Now,
		logger:   &l,
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms", s.instrument("rooms", s.handleRooms))
	mux.HandleFunc("GET /api/rooms/{id}", s.instrument("room", s.handleRoom))
	mux.HandleFunc("GET /api/rooms/{id}/calendar", s.instrument("calendar", s.handleCalendar))
	mux.HandleFunc("POST /api/rooms/{id}/quote", s.instrument("quote", s.handleQuote))

	mux.HandleFunc("GET /api/rooms/{id}/proposal", s.instrument("proposal_get", s.withSession(s.handleGetProposal)))
	mux.HandleFunc("PUT /api/rooms/{id}/proposal", s.instrument("proposal_put", s.withSession(s.handlePutProposal)))
	mux.HandleFunc("DELETE /api/rooms/{id}/proposal", s.instrument("proposal_delete", s.withSession(s.handleDeleteProposal)))
	mux.HandleFunc("POST /api/rooms/{id}/proposal/refresh", s.instrument("proposal_refresh", s.withSession(s.handleRefreshProposal)))
	mux.HandleFunc("POST /api/rooms/{id}/proposal/submit", s.instrument("proposal_submit", s.withSession(s.handleSubmitProposal)))

	mux.HandleFunc("GET /api/bookings/history", s.instrument("history", s.withSession(s.handleHistory)))

	mux.HandleFunc("GET /api/backoffice/bookings", s.instrument("backoffice_bookings", s.withStaff(s.handleBackofficeBookings)))
	mux.HandleFunc("PUT /api/backoffice/bookings/{id}/status", s.instrument("backoffice_status", s.withStaff(s.handleUpdateStatus)))
	mux.HandleFunc("GET /api/backoffice/attempts/export", s.instrument("attempts_export", s.withStaff(s.handleExportAttempts)))
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		metrics.IncHTTP(route, strconv.Itoa(rec.status))
		s.logger.Debug().
			Str("route", route).
			Str("method", r.Method).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *HTTPServer) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrInvalidToken) ||
				errors.Is(err, hotelapi.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			s.logger.Error().Err(err).Msg("authenticate")
			writeError(w, http.StatusBadGateway, "failed to resolve user")
			return
		}
		next(w, r.WithContext(session.WithSession(r.Context(), sess)))
	}
}

func (s *HTTPServer) withStaff(next http.HandlerFunc) http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if !sess.CanManageBookings() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	})
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return "invalid " + fe.Field()
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) today() time.Time {
	return availability.Day(s.now().In(s.loc))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
