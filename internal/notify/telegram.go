// Package notify tells hotel staff about confirmed and refused bookings.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"luxurystay/internal/booking"
	"luxurystay/internal/events"
)

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config controls staff notifications.
type Config struct {
	ChatIDs    []int64
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
	// Rate is the number of messages per second; Telegram allows about 30.
	Rate float64
}

// StaffNotifier queues event messages for staff chats and sends them from Run.
type StaffNotifier struct {
	sender  TelegramSender
	cfg     Config
	queue   chan tgbotapi.MessageConfig
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewStaffNotifier creates a notifier. Without chat ids nothing is queued.
func NewStaffNotifier(sender TelegramSender, cfg Config, logger *zerolog.Logger) *StaffNotifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify").Logger()
	return &StaffNotifier{
		sender:  sender,
		cfg:     cfg,
		queue:   make(chan tgbotapi.MessageConfig, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		logger:  &l,
	}
}

// Subscribe queues a message for every confirmed booking and server conflict.
func (n *StaffNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingConfirmed, n.handle)
	bus.Subscribe(events.EventServerConflict, n.handle)
}

func (n *StaffNotifier) handle(ev events.Event) error {
	var p booking.AttemptEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	text := FormatMessage(ev.Type, p)
	for _, chatID := range n.cfg.ChatIDs {
		select {
		case n.queue <- tgbotapi.NewMessage(chatID, text):
		default:
			n.logger.Warn().Int64("chat_id", chatID).Str("event", ev.Type).Msg("notification queue full, dropping message")
		}
	}
	return nil
}

// Run sends queued messages until ctx is done.
func (n *StaffNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.send(ctx, msg); err != nil {
				n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("staff notification failed")
			}
		}
	}
}

func (n *StaffNotifier) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var lastErr error
	for attempt := 0; attempt < n.cfg.MaxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := n.sender.Send(msg); err != nil {
			lastErr = err
			n.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("telegram send failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.cfg.RetryDelay * time.Duration(attempt+1)):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("send after %d attempts: %w", n.cfg.MaxRetries, lastErr)
}

// FormatMessage renders the staff message for an attempt event.
func FormatMessage(eventType string, p booking.AttemptEvent) string {
	var b strings.Builder
	switch eventType {
	case events.EventBookingConfirmed:
		fmt.Fprintf(&b, "New booking #%d\n", p.BookingID)
	case events.EventServerConflict:
		b.WriteString("Booking refused: room already booked\n")
	default:
		fmt.Fprintf(&b, "%s\n", eventType)
	}
	fmt.Fprintf(&b, "Room: %d\nGuest: %d\nStay: %s to %s (%d nights)\n", p.RoomID, p.UserID, p.CheckIn, p.CheckOut, p.Nights)
	if !p.TotalPrice.IsZero() {
		fmt.Fprintf(&b, "Total: %s\n", p.TotalPrice.StringFixed(2))
	}
	for _, c := range p.Conflicts {
		fmt.Fprintf(&b, "Conflicts with: %s\n", c.String())
	}
	return strings.TrimRight(b.String(), "\n")
}
