package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ehu-labs/debate-coach/internal/domain"
	"github.com/ehu-labs/debate-coach/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id INTEGER PRIMARY KEY,
		state TEXT NOT NULL,
		email TEXT,
		verification_code TEXT,
		topic TEXT,
		side TEXT,
		language TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Exists reports whether a session record exists for the user id.
func (s *SQLiteStore) Exists(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session existence: %w", err)
	}
	return true, nil
}

// Create inserts a new session record.
func (s *SQLiteStore) Create(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (user_id, state, email, verification_code, topic, side, language, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.UserID, string(session.State),
		nullable(session.Email), nullable(session.VerificationCode),
		nullable(session.Topic), nullable(string(session.Side)), nullable(session.Language),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		if shared.IsUniqueConstraintError(err) {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by user id. Returns (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	query := `
		SELECT user_id, state, email, verification_code, topic, side, language, created_at, updated_at
		FROM sessions WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var session domain.Session
	var state string
	var email, code, topic, side, language sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.UserID, &state, &email, &code, &topic, &side, &language,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.State = domain.State(state)
	session.Email = email.String
	session.VerificationCode = code.String
	session.Topic = topic.String
	session.Side = domain.Side(side.String)
	session.Language = language.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// Update applies a partial update in a single UPDATE statement.
func (s *SQLiteStore) Update(ctx context.Context, userID int64, patch Patch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Unix()}

	if patch.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(*patch.State))
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, nullable(*patch.Email))
	}
	if patch.VerificationCode != nil {
		sets = append(sets, "verification_code = ?")
		args = append(args, nullable(*patch.VerificationCode))
	}
	if patch.Topic != nil {
		sets = append(sets, "topic = ?")
		args = append(args, nullable(*patch.Topic))
	}
	if patch.Side != nil {
		sets = append(sets, "side = ?")
		args = append(args, nullable(string(*patch.Side)))
	}
	if patch.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, nullable(*patch.Language))
	}

	query := `UPDATE sessions SET ` + strings.Join(sets, ", ") + ` WHERE user_id = ?`
	args = append(args, userID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Delete removes the session record.
func (s *SQLiteStore) Delete(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// nullable maps an empty string to NULL so cleared fields do not persist
// as empty values.
func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
