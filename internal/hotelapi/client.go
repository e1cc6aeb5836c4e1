// Package hotelapi is the client of the external booking API.
package hotelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"luxurystay/internal/availability"
	"luxurystay/internal/booking"
	"luxurystay/internal/metrics"
)

const maxErrorBody = 64 << 10

// Client calls the booking API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for baseURL. A non-positive timeout uses 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for room records.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListRooms returns the storefront's rooms.
func (c *Client) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	defer metrics.ObserveAPI("list_rooms", time.Now())

	var wrap struct {
		Rooms   []RoomSummary `json:"rooms"`
		Results []RoomSummary `json:"results"`
	}
	if err := c.doGet(ctx, "/api/rooms/list", "", &wrap); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if wrap.Rooms == nil {
		return wrap.Results, nil
	}
	return wrap.Rooms, nil
}

// GetRoom returns a room with its existing bookings.
func (c *Client) GetRoom(ctx context.Context, roomID int64) (*availability.Room, error) {
	cacheKey := roomCacheKey(roomID)
	var room availability.Room

	if c.readCache(ctx, cacheKey, &room) {
		metrics.IncRoomCache("hit")
		return &room, nil
	}
	metrics.IncRoomCache("miss")

	defer metrics.ObserveAPI("get_room", time.Now())

	var wrap struct {
		Room *availability.Room `json:"room"`
	}
	if err := c.doGet(ctx, fmt.Sprintf("/api/rooms/%d", roomID), "", &wrap); err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	if wrap.Room == nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, ErrNotFound)
	}
	c.writeCache(ctx, cacheKey, wrap.Room)
	return wrap.Room, nil
}

// InvalidateRoom drops the cached record of a room.
func (c *Client) InvalidateRoom(ctx context.Context, roomID int64) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, roomCacheKey(roomID)).Err()
}

// CreateBooking submits a stay. An overlap reported by the API, either as a
// 409 or as the conflict message in a 2xx body, is a *ConflictError. The room's
// cached record is dropped after a booking or a conflict.
func (c *Client) CreateBooking(ctx context.Context, token string, req booking.SubmitRequest) (*booking.Confirmation, error) {
	defer metrics.ObserveAPI("create_booking", time.Now())

	var resp struct {
		errorBody
		Booking *BookingRecord `json:"booking"`
	}
	err := c.doPost(ctx, "/api/booking/create", token, req, &resp)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			c.InvalidateRoom(ctx, req.RoomID)
		}
		return nil, err
	}

	if resp.Error == ConflictMessage {
		c.InvalidateRoom(ctx, req.RoomID)
		return nil, &ConflictError{Message: resp.Error, Conflicts: resp.Conflicts}
	}
	if resp.Booking == nil {
		return nil, fmt.Errorf("create booking: missing booking in response")
	}

	c.InvalidateRoom(ctx, req.RoomID)
	b := resp.Booking
	conf := &booking.Confirmation{
		BookingID:  b.ID,
		RoomID:     req.RoomID,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		Nights:     b.Nights,
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
	}
	return conf, nil
}

// History returns the token owner's bookings.
func (c *Client) History(ctx context.Context, token string) ([]BookingRecord, error) {
	defer metrics.ObserveAPI("history", time.Now())

	var wrap struct {
		Bookings []BookingRecord `json:"bookings"`
	}
	if err := c.doGet(ctx, "/api/booking/history", token, &wrap); err != nil {
		return nil, fmt.Errorf("booking history: %w", err)
	}
	return wrap.Bookings, nil
}

// ListBookings returns every booking for the back office.
func (c *Client) ListBookings(ctx context.Context, token string) ([]BookingRecord, error) {
	defer metrics.ObserveAPI("list_bookings", time.Now())

	var wrap struct {
		Bookings []BookingRecord `json:"bookings"`
	}
	if err := c.doGet(ctx, "/api/booking/list", token, &wrap); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return wrap.Bookings, nil
}

// UpdateBookingStatus sets a booking's status.
func (c *Client) UpdateBookingStatus(ctx context.Context, token string, bookingID int64, status string) error {
	defer metrics.ObserveAPI("update_status", time.Now())

	if !ValidStatus(status) {
		return fmt.Errorf("update booking %d: unknown status %q", bookingID, status)
	}
	body := map[string]string{"status": status}
	path := fmt.Sprintf("/api/booking/update-status/%d", bookingID)
	if err := c.doJSON(ctx, http.MethodPut, path, token, body, nil); err != nil {
		return fmt.Errorf("update booking %d: %w", bookingID, err)
	}
	return nil
}

// UserRole returns the role of the token owner.
func (c *Client) UserRole(ctx context.Context, token string) (string, error) {
	defer metrics.ObserveAPI("user_level", time.Now())

	var resp struct {
		Role string `json:"role"`
	}
	if err := c.doGet(ctx, "/api/users/level", token, &resp); err != nil {
		return "", fmt.Errorf("user level: %w", err)
	}
	return resp.Role, nil
}

// HealthCheck checks if the booking API is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func roomCacheKey(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	addAuth(req, token)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, path, token string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, token, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuth(req, token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &body)
		if resp.StatusCode == http.StatusConflict || body.Error == ConflictMessage {
			msg := body.text()
			if msg == "" {
				msg = ConflictMessage
			}
			return &ConflictError{Message: msg, Conflicts: body.Conflicts}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.text()}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func addAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
