package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for profile blobs, friends,
// activities, health records, and chat interactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "qianban.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Profile Blobs ---
//
// The profile_blobs table is a durable key-value store for serialized
// per-profile state (the interest book snapshot lives here). Writers always
// store the full snapshot, never a delta.

func (s *Store) SaveProfileBlob(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO profile_blobs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) LoadProfileBlob(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM profile_blobs WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) DeleteProfileBlob(key string) error {
	_, err := s.db.Exec("DELETE FROM profile_blobs WHERE key = ?", key)
	return err
}

// --- Friends ---

func (s *Store) SaveFriend(f Friend) error {
	_, err := s.db.Exec(`
		INSERT INTO friends (id, name, phone, relation, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Phone, f.Relation, f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListFriends() ([]Friend, error) {
	rows, err := s.db.Query(`
		SELECT id, name, phone, relation, created_at
		FROM friends ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Friend
	for rows.Next() {
		var f Friend
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Name, &f.Phone, &f.Relation, &createdAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

func (s *Store) DeleteFriend(id string) error {
	res, err := s.db.Exec("DELETE FROM friends WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Activities ---

func (s *Store) SaveActivity(a Activity) error {
	_, err := s.db.Exec(`
		INSERT INTO activities (id, title, location, starts_at, capacity, joined, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Location, a.StartsAt.UTC().Format(time.RFC3339),
		a.Capacity, a.Joined, a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetActivity(id string) (Activity, error) {
	var a Activity
	var startsAt, createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, location, starts_at, capacity, joined, created_at
		FROM activities WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Location, &startsAt, &a.Capacity, &a.Joined, &createdAt)
	if err == sql.ErrNoRows {
		return Activity{}, ErrNotFound
	}
	if err != nil {
		return Activity{}, err
	}
	if a.StartsAt, err = time.Parse(time.RFC3339, startsAt); err != nil {
		return Activity{}, fmt.Errorf("parsing starts_at: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Activity{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return a, nil
}

func (s *Store) ListActivities() ([]Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, title, location, starts_at, capacity, joined, created_at
		FROM activities ORDER BY starts_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Activity
	for rows.Next() {
		var a Activity
		var startsAt, createdAt string
		if err := rows.Scan(&a.ID, &a.Title, &a.Location, &startsAt, &a.Capacity, &a.Joined, &createdAt); err != nil {
			return nil, err
		}
		if a.StartsAt, err = time.Parse(time.RFC3339, startsAt); err != nil {
			return nil, fmt.Errorf("parsing starts_at: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// ErrActivityFull is returned by JoinActivity when the activity has no free slots.
var ErrActivityFull = fmt.Errorf("activity full")

// JoinActivity increments the joined counter, refusing once capacity is reached.
// A capacity of 0 means unlimited.
func (s *Store) JoinActivity(id string) error {
	res, err := s.db.Exec(`
		UPDATE activities SET joined = joined + 1
		WHERE id = ? AND (capacity = 0 OR joined < capacity)`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from full.
		if _, getErr := s.GetActivity(id); getErr != nil {
			return getErr
		}
		return ErrActivityFull
	}
	return nil
}

func (s *Store) DeleteActivity(id string) error {
	res, err := s.db.Exec("DELETE FROM activities WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Health Records ---

func (s *Store) SaveHealthRecord(h HealthRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO health_records (id, recorded_at, systolic, diastolic, heart_rate, weight_kg, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.RecordedAt.UTC().Format(time.RFC3339), h.Systolic, h.Diastolic,
		h.HeartRate, h.WeightKg, h.Notes, h.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListHealthRecords(limit int) ([]HealthRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, recorded_at, systolic, diastolic, heart_rate, weight_kg, notes, created_at
		FROM health_records ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HealthRecord
	for rows.Next() {
		var h HealthRecord
		var recordedAt, createdAt string
		if err := rows.Scan(&h.ID, &recordedAt, &h.Systolic, &h.Diastolic, &h.HeartRate, &h.WeightKg, &h.Notes, &createdAt); err != nil {
			return nil, err
		}
		if h.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		if h.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func (s *Store) DeleteHealthRecord(id string) error {
	res, err := s.db.Exec("DELETE FROM health_records WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Interactions ---

func (s *Store) SaveInteraction(i Interaction) error {
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, created_at, profile_id, message, reply, provider)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.CreatedAt.UTC().Format(time.RFC3339), i.ProfileID, i.Message, i.Reply, i.Provider,
	)
	return err
}

func (s *Store) ListInteractions(profileID string, limit int) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, profile_id, message, reply, provider
		FROM interactions WHERE profile_id = ?
		ORDER BY created_at DESC LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &createdAt, &i.ProfileID, &i.Message, &i.Reply, &i.Provider); err != nil {
			return nil, err
		}
		if i.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}
