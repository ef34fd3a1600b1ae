package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages the roomcraft persistence database: saved rooms and the
// capability library.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// CapabilityRecord is a saved, reusable snippet in the capability library.
type CapabilityRecord struct {
	ID          string
	Name        string
	Description string
	Trigger     string
	Code        string
	CreatedAt   time.Time
	UsageCount  int
}

// RoomRecord is a named scene snapshot.
type RoomRecord struct {
	Name      string
	Scene     []byte
	UpdatedAt time.Time
}

// NewStore creates or opens the persistence store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	-- Named scene snapshots
	CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		scene TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Capability library
	CREATE TABLE IF NOT EXISTS capabilities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		trigger TEXT NOT NULL,
		code TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_capabilities_name ON capabilities(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRoom upserts a named scene snapshot.
func (s *Store) SaveRoom(name string, scene []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO rooms (name, scene, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET scene = excluded.scene, updated_at = excluded.updated_at`,
		name, string(scene), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save room %q: %w", name, err)
	}
	return nil
}

// LoadRoom retrieves a named scene snapshot.
func (s *Store) LoadRoom(name string) (*RoomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec RoomRecord
	var scene string
	err := s.db.QueryRow(
		`SELECT name, scene, updated_at FROM rooms WHERE name = ?`, name,
	).Scan(&rec.Name, &scene, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %q: %w", name, err)
	}
	rec.Scene = []byte(scene)
	return &rec, nil
}

// ListRooms returns saved room names, most recently updated first.
func (s *Store) ListRooms() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT name FROM rooms ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteRoom removes a saved room. Deleting a missing room is not an error.
func (s *Store) DeleteRoom(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM rooms WHERE name = ?`, name)
	return err
}

// SaveCapability inserts a capability record, replacing any existing record
// with the same name. The usage count of a replaced record is preserved.
func (s *Store) SaveCapability(rec *CapabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO capabilities (id, name, description, trigger, code, created_at, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			trigger = excluded.trigger,
			code = excluded.code`,
		rec.ID, rec.Name, rec.Description, rec.Trigger, rec.Code, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save capability %q: %w", rec.Name, err)
	}
	return nil
}

// GetCapability retrieves a capability by name.
func (s *Store) GetCapability(name string) (*CapabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec CapabilityRecord
	err := s.db.QueryRow(`
		SELECT id, name, description, trigger, code, created_at, usage_count
		FROM capabilities WHERE name = ?`, name,
	).Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Trigger, &rec.Code, &rec.CreatedAt, &rec.UsageCount)
	if err == sql.ErrNoRows {
		return nil, ErrCapabilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load capability %q: %w", name, err)
	}
	return &rec, nil
}

// ListCapabilities returns the full capability library, most used first.
func (s *Store) ListCapabilities() ([]*CapabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, description, trigger, code, created_at, usage_count
		FROM capabilities ORDER BY usage_count DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer rows.Close()

	var recs []*CapabilityRecord
	for rows.Next() {
		var rec CapabilityRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Trigger, &rec.Code, &rec.CreatedAt, &rec.UsageCount); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// BumpUsage increments a capability's usage counter.
func (s *Store) BumpUsage(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE capabilities SET usage_count = usage_count + 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to bump usage for %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCapabilityNotFound
	}
	return nil
}

// DeleteCapability removes a capability from the library.
func (s *Store) DeleteCapability(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM capabilities WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCapabilityNotFound
	}
	return nil
}
