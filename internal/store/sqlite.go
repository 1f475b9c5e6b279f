package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/roady-devis/roady-devis-email/internal/model"
)

// ErrDuplicateMessageID reports an insert that collided with an existing
// record carrying the same Message-ID.
var ErrDuplicateMessageID = errors.New("message id already ingested")

const emailColumns = `id, from_address, to_addresses, subject, body, body_html,
	received_at, attachments, processed, processed_at, error,
	message_id, in_reply_to, references_list, created_at`

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite accepts one writer at a time. A single pooled connection
	// queues concurrent callers instead of failing them with
	// SQLITE_BUSY; the busy timeout covers external writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateEmail inserts a new email record. A missing ID gets a fresh UUID;
// a zero receipt time defaults to now. Receipt times are stored truncated
// to the second so the fallback dedup key compares exactly. Inserting a
// second record with a non-empty Message-ID already on file fails with
// ErrDuplicateMessageID; the unique index is what makes a concurrent
// admit-then-create race safe.
func (s *SQLiteStore) CreateEmail(ctx context.Context, email *model.Email) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now()
	}
	email.ReceivedAt = email.ReceivedAt.UTC().Truncate(time.Second)
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}

	toJSON, err := json.Marshal(email.To)
	if err != nil {
		return fmt.Errorf("marshaling recipients for email %s: %w", email.ID, err)
	}
	attJSON, err := json.Marshal(email.Attachments)
	if err != nil {
		return fmt.Errorf("marshaling attachments for email %s: %w", email.ID, err)
	}
	refJSON, err := json.Marshal(email.References)
	if err != nil {
		return fmt.Errorf("marshaling references for email %s: %w", email.ID, err)
	}

	var processedAt interface{}
	if email.ProcessedAt != nil {
		processedAt = email.ProcessedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, from_address, to_addresses, subject, body, body_html,
			received_at, attachments, processed, processed_at, error,
			message_id, in_reply_to, references_list, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email.ID, email.From, string(toJSON), email.Subject, email.Body, email.BodyHTML,
		email.ReceivedAt, string(attJSON), boolToInt(email.Processed), processedAt, email.Error,
		email.MessageID, email.InReplyTo, string(refJSON), email.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: emails.message_id") {
			return fmt.Errorf("email %s: %w", email.MessageID, ErrDuplicateMessageID)
		}
		return fmt.Errorf("inserting email %s: %w", email.ID, err)
	}

	return nil
}

// GetEmails retrieves email records matching the filter, newest first.
func (s *SQLiteStore) GetEmails(ctx context.Context, filter EmailFilter) ([]model.Email, error) {
	query := "SELECT " + emailColumns + " FROM emails"
	var args []interface{}

	if filter.Processed != nil {
		query += " WHERE processed = ?"
		args = append(args, boolToInt(*filter.Processed))
	}

	query += " ORDER BY received_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}

	return emails, rows.Err()
}

// GetEmailByID retrieves a single email record, or nil if absent.
func (s *SQLiteStore) GetEmailByID(ctx context.Context, id string) (*model.Email, error) {
	return s.findOne(ctx, "SELECT "+emailColumns+" FROM emails WHERE id = ?", id)
}

// FindByMessageID retrieves the record with the given protocol identity,
// or nil if none exists.
func (s *SQLiteStore) FindByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	return s.findOne(ctx,
		"SELECT "+emailColumns+" FROM emails WHERE message_id = ? LIMIT 1", messageID)
}

// FindByFallbackKey retrieves a record matching the composite dedup key,
// or nil if none exists.
func (s *SQLiteStore) FindByFallbackKey(ctx context.Context, subject string, receivedAt time.Time, from string) (*model.Email, error) {
	return s.findOne(ctx, `
		SELECT `+emailColumns+` FROM emails
		WHERE subject = ? AND received_at = ? AND from_address = ?
		LIMIT 1`,
		subject, receivedAt.UTC().Truncate(time.Second), from)
}

func (s *SQLiteStore) findOne(ctx context.Context, query string, args ...interface{}) (*model.Email, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying email: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying email: %w", err)
		}
		return nil, nil
	}

	email, err := scanEmail(rows)
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// MarkProcessed flags a record as processed, stamping the completion time
// and an optional error text.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string, errText string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE emails SET processed = 1, processed_at = ?, error = ? WHERE id = ?",
		time.Now().UTC(), errText, id,
	)
	if err != nil {
		return fmt.Errorf("marking email %s processed: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking email %s processed: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("email %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// DeleteEmail removes a record by ID.
func (s *SQLiteStore) DeleteEmail(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting email %s: %w", id, err)
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsDuplicate reports whether err means the insert lost to an existing
// record with the same Message-ID.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateMessageID)
}

// scanEmail scans an email row from a sqlx.Rows result set.
func scanEmail(rows *sqlx.Rows) (model.Email, error) {
	var (
		email       model.Email
		toJSON      string
		attJSON     string
		refJSON     string
		processed   int
		processedAt sql.NullTime
	)

	err := rows.Scan(
		&email.ID, &email.From, &toJSON, &email.Subject, &email.Body, &email.BodyHTML,
		&email.ReceivedAt, &attJSON, &processed, &processedAt, &email.Error,
		&email.MessageID, &email.InReplyTo, &refJSON, &email.CreatedAt,
	)
	if err != nil {
		return model.Email{}, fmt.Errorf("scanning email row: %w", err)
	}

	email.Processed = processed != 0
	if processedAt.Valid {
		t := processedAt.Time
		email.ProcessedAt = &t
	}

	if err := json.Unmarshal([]byte(toJSON), &email.To); err != nil {
		return model.Email{}, fmt.Errorf("unmarshaling recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(attJSON), &email.Attachments); err != nil {
		return model.Email{}, fmt.Errorf("unmarshaling attachments: %w", err)
	}
	if err := json.Unmarshal([]byte(refJSON), &email.References); err != nil {
		return model.Email{}, fmt.Errorf("unmarshaling references: %w", err)
	}

	return email, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
