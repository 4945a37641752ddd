package storage

import (
	"database/sql"
	"embed"
	"errors"
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

// Store wraps a SQLite database holding the interaction log and the scratch
// directory registry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir to keep everything in memory for the life of the
// process; this is the default.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "clauveo.db")
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

		// Check if already applied.
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

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Interactions ---

const interactionColumns = `id, created_at, session_id, message, transcript, project_path,
	frames_received, frames_staged, status, response, error, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (Interaction, error) {
	var i Interaction
	var createdAt string
	if err := row.Scan(&i.ID, &createdAt, &i.SessionID, &i.Message, &i.Transcript, &i.ProjectPath,
		&i.FramesReceived, &i.FramesStaged, &i.Status, &i.Response, &i.Error, &i.DurationMS); err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func (s *Store) SaveInteraction(i Interaction) error {
	status := i.Status
	if status == "" {
		status = StatusCompleted
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.CreatedAt.UTC().Format(time.RFC3339), i.SessionID, i.Message, i.Transcript, i.ProjectPath,
		i.FramesReceived, i.FramesStaged, status, i.Response, i.Error, i.DurationMS,
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	i, err := scanInteraction(s.db.QueryRow(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	return i, err
}

// ListInteractions returns interactions newest first.
func (s *Store) ListInteractions(limit, offset int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT `+interactionColumns+`
		FROM interactions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Interaction{}
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

func (s *Store) DeleteInteraction(id string) error {
	res, err := s.db.Exec(`DELETE FROM interactions WHERE id = ?`, id)
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

// --- Scratch directories ---

// RegisterScratchDir records a scratch directory. Registering the same path
// twice keeps the first record.
func (s *Store) RegisterScratchDir(d ScratchDir) error {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO scratch_dirs (path, session_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO NOTHING`,
		d.Path, d.SessionID, created.UTC().Format(time.RFC3339),
	)
	return err
}

// ReleaseScratchDir forgets a directory that has been removed. Releasing an
// unknown path is not an error.
func (s *Store) ReleaseScratchDir(path string) error {
	_, err := s.db.Exec(`DELETE FROM scratch_dirs WHERE path = ?`, path)
	return err
}

// ListScratchDirs returns the registered directories owned by sessionID,
// oldest first.
func (s *Store) ListScratchDirs(sessionID string) ([]ScratchDir, error) {
	return s.queryScratchDirs(`
		SELECT path, session_id, created_at FROM scratch_dirs
		WHERE session_id = ? ORDER BY created_at ASC, path ASC`, sessionID)
}

// ListScratchDirsBefore returns registered directories created before t,
// oldest first.
func (s *Store) ListScratchDirsBefore(t time.Time) ([]ScratchDir, error) {
	return s.queryScratchDirs(`
		SELECT path, session_id, created_at FROM scratch_dirs
		WHERE created_at < ? ORDER BY created_at ASC, path ASC`, t.UTC().Format(time.RFC3339))
}

func (s *Store) queryScratchDirs(query string, args ...any) ([]ScratchDir, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScratchDir
	for rows.Next() {
		var d ScratchDir
		var createdAt string
		if err := rows.Scan(&d.Path, &d.SessionID, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		out = append(out, d)
	}
	return out, rows.Err()
}
