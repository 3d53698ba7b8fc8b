package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Directory using SQLite for persistence
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed account directory
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role_id TEXT NOT NULL,
			storage_quota INTEGER NOT NULL,
			onboarding INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at DATETIME NOT NULL,
			deleted_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	// Usernames are unique among active accounts only
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_active_username
		ON users (username) WHERE deleted_at IS NULL
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create username index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// FindActiveByUsername returns the active account for username, or nil if none exists
func (s *SQLiteStore) FindActiveByUsername(username string) (*Account, error) {
	var acc Account
	var createdBy sql.NullString

	err := s.db.QueryRow(`
		SELECT id, username, email, password_hash, role_id, storage_quota, onboarding, created_by, created_at
		FROM users WHERE username = ? AND deleted_at IS NULL
	`, username).Scan(
		&acc.ID,
		&acc.Username,
		&acc.Email,
		&acc.PasswordHash,
		&acc.RoleID,
		&acc.StorageQuota,
		&acc.Onboarding,
		&createdBy,
		&acc.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active account: %w", err)
	}

	acc.CreatedBy = createdBy.String
	return &acc, nil
}

// CreateAccount hashes the password and inserts a new active account
func (s *SQLiteStore) CreateAccount(na NewAccount) (string, error) {
	hash, err := HashPassword(na.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New().String()
	var createdBy sql.NullString
	if na.CreatedBy != "" {
		createdBy = sql.NullString{String: na.CreatedBy, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, role_id, storage_quota, onboarding, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, na.Username, na.Email, hash, na.RoleID, na.StorageQuota, na.Onboarding, createdBy, time.Now().UTC())

	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateUsername
		}
		return "", fmt.Errorf("create account: %w", err)
	}
	return id, nil
}

// Close releases database resources
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation matches SQLite's constraint failure text; the driver's
// error codes are not exported in a stable form.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
