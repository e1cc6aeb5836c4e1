// Package journal records booking attempts in SQLite for the back office.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"luxurystay/internal/booking"
	"luxurystay/internal/events"
)

// Attempt is one recorded proposal or submission outcome.
type Attempt struct {
	ID         int64
	AttemptID  string
	EventType  string
	UserID     int64
	RoomID     int64
	CheckIn    string
	CheckOut   string
	Nights     int
	TotalPrice decimal.Decimal
	Outcome    string
	BookingID  int64
	Message    string
	Conflicts  string
	CreatedAt  time.Time
}

// Journal is the attempt store.
type Journal struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// Open opens (creating when needed) the journal database at path.
func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Journal initialized")
	return j, nil
}

func (j *Journal) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS booking_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			room_id INTEGER NOT NULL,
			check_in TEXT,
			check_out TEXT,
			nights INTEGER NOT NULL DEFAULT 0,
			total_price TEXT NOT NULL DEFAULT '0',
			outcome TEXT NOT NULL,
			booking_id INTEGER,
			message TEXT,
			conflicts TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_attempts_created ON booking_attempts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_attempts_room ON booking_attempts(room_id, created_at)`,
	}
	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Snapshot writes a consistent copy of the journal to dest, including pages
// still held in the WAL. dest must not exist.
func (j *Journal) Snapshot(ctx context.Context, dest string) error {
	if _, err := j.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot journal to %s: %w", dest, err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores an attempt. Recording the same attempt id twice is a no-op.
func (j *Journal) Record(ctx context.Context, a *Attempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO booking_attempts
			(attempt_id, event_type, user_id, room_id, check_in, check_out, nights,
			 total_price, outcome, booking_id, message, conflicts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AttemptID, a.EventType, a.UserID, a.RoomID, a.CheckIn, a.CheckOut, a.Nights,
		a.TotalPrice.String(), a.Outcome, nullInt(a.BookingID), a.Message, a.Conflicts,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", a.AttemptID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

// ListSince returns attempts created at or after since, oldest first.
func (j *Journal) ListSince(ctx context.Context, since time.Time) ([]Attempt, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, attempt_id, event_type, user_id, room_id, check_in, check_out, nights,
		       total_price, outcome, booking_id, message, conflicts, created_at
		FROM booking_attempts
		WHERE created_at >= ?
		ORDER BY created_at, id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a         Attempt
			price     string
			bookingID sql.NullInt64
			checkIn   sql.NullString
			checkOut  sql.NullString
			message   sql.NullString
			conflicts sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.EventType, &a.UserID, &a.RoomID, &checkIn, &checkOut,
			&a.Nights, &price, &a.Outcome, &bookingID, &message, &conflicts, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.TotalPrice, _ = decimal.NewFromString(price)
		a.BookingID = bookingID.Int64
		a.CheckIn, a.CheckOut = checkIn.String, checkOut.String
		a.Message, a.Conflicts = message.String, conflicts.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes attempts created before cutoff.
func (j *Journal) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM booking_attempts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return res.RowsAffected()
}

// Subscribe records every proposal and submission event published on bus.
func (j *Journal) Subscribe(bus *events.EventBus) {
	for _, et := range []string{
		events.EventConflictDetected,
		events.EventBookingConfirmed,
		events.EventServerConflict,
		events.EventNetworkError,
		events.EventValidationError,
	} {
		bus.Subscribe(et, j.handle)
	}
}

func (j *Journal) handle(ev events.Event) error {
	var p booking.AttemptEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	a := FromEvent(ev.Type, p)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Record(ctx, &a); err != nil {
		j.logger.Error().Err(err).Str("event", ev.Type).Msg("journal record failed")
		return err
	}
	return nil
}

// FromEvent converts a published attempt into a journal row.
func FromEvent(eventType string, p booking.AttemptEvent) Attempt {
	ranges := make([]string, 0, len(p.Conflicts))
	for _, r := range p.Conflicts {
		ranges = append(ranges, r.String())
	}
	return Attempt{
		AttemptID:  p.AttemptID,
		EventType:  eventType,
		UserID:     p.UserID,
		RoomID:     p.RoomID,
		CheckIn:    p.CheckIn,
		CheckOut:   p.CheckOut,
		Nights:     p.Nights,
		TotalPrice: p.TotalPrice,
		Outcome:    p.Outcome,
		BookingID:  p.BookingID,
		Message:    p.Message,
		Conflicts:  strings.Join(ranges, ";"),
		CreatedAt:  p.At,
	}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
