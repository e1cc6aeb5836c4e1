package hotelapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxurystay/internal/availability"
	"luxurystay/internal/booking"
)

const roomJSON = `{"room":{"id":7,"title":"Deluxe Suite","type":"suite","price":"1500",
"bookings":[{"check_in":"2025-02-01T00:00:00.000Z","check_out":"2025-02-05"}]}}`

type fakeAPI struct {
	roomHits   atomic.Int32
	createResp func(w http.ResponseWriter, r *http.Request)
	lastAuth   atomic.Value
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rooms/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rooms":[{"id":7,"title":"Deluxe Suite","type":"suite","price":1500}]}`))
	})
	mux.HandleFunc("GET /api/rooms/7", func(w http.ResponseWriter, r *http.Request) {
		f.roomHits.Add(1)
		_, _ = w.Write([]byte(roomJSON))
	})
	mux.HandleFunc("GET /api/rooms/8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"room":{"id":8,"title":"Broken","type":"single","price":"-1500","bookings":[]}}`))
	})
	mux.HandleFunc("GET /api/rooms/9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"room":{"id":9,"title":"Unpriced","type":"single","price":"","bookings":[]}}`))
	})
	mux.HandleFunc("GET /api/rooms/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"room not found"}`))
	})
	mux.HandleFunc("POST /api/booking/create", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		f.createResp(w, r)
	})
	mux.HandleFunc("GET /api/booking/history", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"bookings":[{"id":1,"check_in":"2025-02-10","check_out":"2025-02-12","nights":2,"total_price":3000,"status":"pending","room":{"title":"Deluxe Suite","type":"suite"}}]}`))
	})
	mux.HandleFunc("GET /api/booking/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bookings":[{"id":1,"status":"pending","user":{"fname":"Ann","lname":"Lee","email":"ann@example.com"}}]}`))
	})
	mux.HandleFunc("PUT /api/booking/update-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.PathValue("id") != "1" || body.Status != StatusConfirmed {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	mux.HandleFunc("GET /api/users/level", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"role":"admin","fname":"Ann"}`))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func setupClient(t *testing.T) (*Client, *fakeAPI, *miniredis.Miniredis) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewClient(srv.URL+"/", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	return c, api, mr
}

func TestGetRoomCaches(t *testing.T) {
	c, api, mr := setupClient(t)
	ctx := context.Background()

	room, err := c.GetRoom(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Deluxe Suite", room.Title)
	assert.True(t, decimal.NewFromInt(1500).Equal(room.PricePerNight))
	require.Len(t, room.Bookings, 1)
	assert.Equal(t, "2025-02-01..2025-02-05", room.Bookings[0].String())
	assert.True(t, mr.Exists("room:7"))

	again, err := c.GetRoom(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, room.Bookings[0].String(), again.Bookings[0].String())
	assert.Equal(t, int32(1), api.roomHits.Load(), "second read served from cache")

	c.InvalidateRoom(ctx, 7)
	assert.False(t, mr.Exists("room:7"))
	_, err = c.GetRoom(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.roomHits.Load())
}

func TestGetRoomNotFound(t *testing.T) {
	c, _, _ := setupClient(t)
	_, err := c.GetRoom(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "room not found", apiErr.Message)
}

func TestGetRoomPriceValidation(t *testing.T) {
	c, _, mr := setupClient(t)
	ctx := context.Background()

	_, err := c.GetRoom(ctx, 8)
	assert.ErrorIs(t, err, availability.ErrInvalidPrice)
	assert.False(t, mr.Exists("room:8"))

	room, err := c.GetRoom(ctx, 9)
	require.NoError(t, err)
	assert.True(t, room.PricePerNight.IsZero())
}

func TestGetRoomWithoutCache(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.GetRoom(context.Background(), 7)
	require.NoError(t, err)
	_, err = c.GetRoom(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.roomHits.Load())
	c.InvalidateRoom(context.Background(), 7)
}

func TestCreateBooking(t *testing.T) {
	req := booking.SubmitRequest{RoomID: 7, CheckIn: "2025-02-10", CheckOut: "2025-02-12"}

	t.Run("confirmed", func(t *testing.T) {
		c, api, mr := setupClient(t)
		api.createResp = func(w http.ResponseWriter, r *http.Request) {
			var got booking.SubmitRequest
			_ = json.NewDecoder(r.Body).Decode(&got)
			if got != req {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"booking":{"id":55,"nights":2,"total_price":3000,"status":"pending"}}`))
		}
		_, err := c.GetRoom(context.Background(), 7)
		require.NoError(t, err)

		conf, err := c.CreateBooking(context.Background(), "tok", req)
		require.NoError(t, err)
		assert.Equal(t, int64(55), conf.BookingID)
		assert.Equal(t, 2, conf.Nights)
		assert.True(t, decimal.NewFromInt(3000).Equal(conf.TotalPrice))
		assert.Equal(t, "Bearer tok", api.lastAuth.Load())
		assert.False(t, mr.Exists("room:7"), "booking invalidates room cache")
	})

	t.Run("conflict in 2xx body", func(t *testing.T) {
		c, api, mr := setupClient(t)
		api.createResp = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Room is already booked for selected dates","conflicts":[{"check_in":"2025-02-11","check_out":"2025-02-14"}]}`))
		}
		_, err := c.GetRoom(context.Background(), 7)
		require.NoError(t, err)

		_, err = c.CreateBooking(context.Background(), "tok", req)
		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		require.Len(t, conflict.ConflictingRanges(), 1)
		assert.Equal(t, "2025-02-11..2025-02-14", conflict.ConflictingRanges()[0].String())
		assert.False(t, mr.Exists("room:7"))

		var carrier booking.ConflictCarrier
		assert.True(t, errors.As(err, &carrier))
	})

	t.Run("conflict as 409", func(t *testing.T) {
		c, api, _ := setupClient(t)
		api.createResp = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"conflicts":[{"check_in":"2025-02-11","check_out":"2025-02-14"}]}`))
		}
		_, err := c.CreateBooking(context.Background(), "tok", req)
		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, ConflictMessage, conflict.Error())
	})

	t.Run("server error", func(t *testing.T) {
		c, api, _ := setupClient(t)
		api.createResp = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"db down"}`))
		}
		_, err := c.CreateBooking(context.Background(), "tok", req)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

		var carrier booking.ConflictCarrier
		assert.False(t, errors.As(err, &carrier))
	})

	t.Run("empty body", func(t *testing.T) {
		c, api, _ := setupClient(t)
		api.createResp = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}
		_, err := c.CreateBooking(context.Background(), "tok", req)
		assert.Error(t, err)
	})
}

func TestCreateBookingTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.CreateBooking(context.Background(), "tok", booking.SubmitRequest{RoomID: 7})
	assert.Error(t, err)

	var carrier booking.ConflictCarrier
	assert.False(t, errors.As(err, &carrier))
}

func TestBackOfficeCalls(t *testing.T) {
	c, api, _ := setupClient(t)
	ctx := context.Background()

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(7), rooms[0].ID)

	history, err := c.History(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Deluxe Suite", history[0].Room.Title)
	assert.Equal(t, "Bearer tok", api.lastAuth.Load())

	all, err := c.ListBookings(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Ann", all[0].User.FirstName)

	require.NoError(t, c.UpdateBookingStatus(ctx, "tok", 1, StatusConfirmed))
	assert.Error(t, c.UpdateBookingStatus(ctx, "tok", 1, "archived"))
	assert.Error(t, c.UpdateBookingStatus(ctx, "tok", 2, StatusConfirmed))

	role, err := c.UserRole(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	assert.NoError(t, c.HealthCheck(ctx))
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus("archived"))
	assert.False(t, ValidStatus(""))
}
