package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no contact exists for the given id.
var ErrNotFound = errors.New("contact not found")

// Filter narrows a List call.
type Filter struct {
	// Read filters by read state when non-nil.
	Read *bool
	// Query matches name, email and subject with a substring search.
	Query  string
	Limit  int
	Offset int
}

// Counts summarizes the store for the admin dashboard.
type Counts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// Store persists contact submissions in SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the database at dbPath, enables WAL mode and
// applies pending schema migrations. ":memory:" is accepted for tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection; the pool must be
	// pinned to one connection or each would see an empty schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion,
			"SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
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

// Create inserts a new submission. Generates a UUID when ID is empty and
// stamps CreatedAt. The caller is expected to have validated the contact.
func (s *Store) Create(ctx context.Context, c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, phone, subject, message, created_at, read, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Subject, c.Message,
		c.CreatedAt, boolToInt(c.Read), c.Notes,
	)
	if err != nil {
		return fmt.Errorf("creating contact: %w", err)
	}
	return nil
}

// GetByID retrieves a single submission.
func (s *Store) GetByID(ctx context.Context, id string) (*Contact, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM contacts WHERE id = ?", id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting contact %s: %w", id, err)
	}
	return &c, nil
}

// List retrieves submissions matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Contact, error) {
	var conditions []string
	var args []interface{}

	if filter.Read != nil {
		conditions = append(conditions, "read = ?")
		args = append(args, boolToInt(*filter.Read))
	}
	if filter.Query != "" {
		conditions = append(conditions, "(name LIKE ? OR email LIKE ? OR subject LIKE ?)")
		q := "%" + filter.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM contacts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// MarkRead flags a submission as handled.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	return s.setRead(ctx, id, true)
}

// MarkUnread puts a submission back in the unread set.
func (s *Store) MarkUnread(ctx context.Context, id string) error {
	return s.setRead(ctx, id, false)
}

func (s *Store) setRead(ctx context.Context, id string, read bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET read = ? WHERE id = ?", boolToInt(read), id)
	if err != nil {
		return fmt.Errorf("updating read state of contact %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateNotes replaces the admin notes of a submission.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET notes = ? WHERE id = ?", notes, id)
	if err != nil {
		return fmt.Errorf("updating notes of contact %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCounts returns the total and unread submission counts.
func (s *Store) GetCounts(ctx context.Context) (Counts, error) {
	var counts Counts
	if err := s.db.GetContext(ctx, &counts.Total,
		"SELECT COUNT(*) FROM contacts"); err != nil {
		return Counts{}, fmt.Errorf("counting contacts: %w", err)
	}
	if err := s.db.GetContext(ctx, &counts.Unread,
		"SELECT COUNT(*) FROM contacts WHERE read = 0"); err != nil {
		return Counts{}, fmt.Errorf("counting unread contacts: %w", err)
	}
	return counts, nil
}

// scanContact scans one contacts row; read is stored as 0/1.
func scanContact(row interface{ Scan(dest ...interface{}) error }) (Contact, error) {
	var (
		c         Contact
		readInt   int
		createdAt time.Time
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Subject, &c.Message,
		&createdAt, &readInt, &c.Notes,
	)
	if err != nil {
		return Contact{}, err
	}
	c.CreatedAt = createdAt
	c.Read = readInt != 0
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
