package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/flowgate/internal/token"
)

// DefaultMaxBookingBytes caps the merged booking_data object.
const DefaultMaxBookingBytes = 64 << 10

// TokenVerifier checks a correlation token before it is used as a lookup key.
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// Store persists conversation records in sqlite.
type Store struct {
	db              *sql.DB
	verifier        TokenVerifier
	maxBookingBytes int
	now             func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTokenCheck makes lookups and updates reject tokens that fail v.
func WithTokenCheck(v TokenVerifier) StoreOption {
	return func(s *Store) { s.verifier = v }
}

// WithStoreClock overrides the time source for created_at/updated_at.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store over db, which must already be bootstrapped.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:              db,
		maxBookingBytes: DefaultMaxBookingBytes,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifiesTokens reports whether lookups verify token signature and expiry.
func (s *Store) VerifiesTokens() bool { return s.verifier != nil }

func (s *Store) checkToken(tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: empty", token.ErrInvalidToken)
	}
	if s.verifier == nil {
		return nil
	}
	if _, err := s.verifier.Verify(tok); err != nil {
		return err
	}
	return nil
}

// Insert creates a record. ID, CreatedAt and UpdatedAt are filled in when zero.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Token == "" {
		return fmt.Errorf("record token is empty")
	}
	if rec.Status == "" {
		rec.Status = StatusReceived
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("invalid status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if len(rec.BookingData) == 0 {
		rec.BookingData = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations(token, id, phone_number, message_id, message, status, booking_data,
  trip_preference, preferred_date, preferred_time, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.Token, rec.ID, rec.PhoneNumber, rec.MessageID, nullJSON(rec.Message), string(rec.Status),
		string(rec.BookingData), nullString(rec.TripPreference), nullString(rec.PreferredDate),
		nullString(rec.PreferredTime), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// FindByToken returns the record for tok.
func (s *Store) FindByToken(ctx context.Context, tok string) (*Record, error) {
	if err := s.checkToken(tok); err != nil {
		return nil, err
	}
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE token = ?;`, tok))
}

// Update applies p to the record for tok and returns the updated record.
func (s *Store) Update(ctx context.Context, tok string, p Patch) (*Record, error) {
	if err := s.checkToken(tok); err != nil {
		return nil, err
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", *p.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+` WHERE token = ?;`, tok))
	if err != nil {
		return nil, err
	}

	if len(p.BookingData) > 0 {
		merged, err := s.mergeBooking(rec.BookingData, p.BookingData)
		if err != nil {
			return nil, err
		}
		rec.BookingData = merged
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.TripPreference != nil {
		rec.TripPreference = *p.TripPreference
	}
	if p.PreferredDate != nil {
		rec.PreferredDate = *p.PreferredDate
	}
	if p.PreferredTime != nil {
		rec.PreferredTime = *p.PreferredTime
	}
	rec.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
UPDATE conversations SET
  status = ?, booking_data = ?, trip_preference = ?, preferred_date = ?, preferred_time = ?, updated_at = ?
WHERE token = ?;`,
		string(rec.Status), string(rec.BookingData), nullString(rec.TripPreference),
		nullString(rec.PreferredDate), nullString(rec.PreferredTime), formatTime(rec.UpdatedAt), tok)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return rec, nil
}

func (s *Store) mergeBooking(current, updates json.RawMessage) (json.RawMessage, error) {
	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode booking update: %w", err)
	}
	cur, err := decodeObjectOrEmpty(current)
	if err != nil {
		return nil, fmt.Errorf("decode stored booking data: %w", err)
	}
	maps.Copy(cur, upd)

	merged, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal booking data: %w", err)
	}
	if len(merged) > s.maxBookingBytes {
		return nil, fmt.Errorf("booking data exceeds max size (%d bytes)", s.maxBookingBytes)
	}
	return merged, nil
}

// MarkSeen records messageID. It returns false if the id was already recorded.
func (s *Store) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message id is empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages(message_id, received_at) VALUES(?, ?);`,
		messageID, formatTime(s.now().UTC()))
	if err != nil {
		return false, fmt.Errorf("mark message seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark message seen: %w", err)
	}
	return n == 1, nil
}

// PruneSeen deletes seen-message entries older than retention and returns how many were removed.
func (s *Store) PruneSeen(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := formatTime(s.now().UTC().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_messages WHERE received_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune seen messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectRecord = `
SELECT token, id, phone_number, message_id, message, status, booking_data,
  trip_preference, preferred_date, preferred_time, created_at, updated_at
FROM conversations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                               Record
		message, tripPref, date, timeSlot sql.NullString
		status, booking, created, updated string
	)
	err := row.Scan(&rec.Token, &rec.ID, &rec.PhoneNumber, &rec.MessageID, &message, &status, &booking,
		&tripPref, &date, &timeSlot, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	rec.Status = Status(status)
	rec.BookingData = json.RawMessage(booking)
	if message.Valid {
		rec.Message = json.RawMessage(message.String)
	}
	rec.TripPreference = tripPref.String
	rec.PreferredDate = date.String
	rec.PreferredTime = timeSlot.String
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &rec, nil
}

func decodeObjectOrEmpty(b json.RawMessage) (map[string]json.RawMessage, error) {
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
