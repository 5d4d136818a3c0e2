// Package store persists users and Befunge programs in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	ErrProgramNotFound    = errors.New("program not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidName        = errors.New("invalid program name")
)

// Program is a saved program owned by a user.
type Program struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQLite connection
type Store struct {
	conn *sql.DB
}

// Open opens the database at path and makes sure the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{conn: db}
	if err := s.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.DatabaseInfo("Database opened at %s", path)
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateTables ensures all required tables exist.
func (s *Store) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (owner, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programs_owner ON programs(owner)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// CreateUser registers a user with a bcrypt-hashed password.
func (s *Store) CreateUser(username, password string) error {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return err
	}

	cost := configuration.GetInt("Authentication", "password_hash_cost", bcrypt.DefaultCost)
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var exists int
	err = s.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	_, err = s.conn.Exec("INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)",
		username, string(hash), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.DatabaseInfo("User %s created", username)
	return nil
}

func validateCredentials(username, password string) error {
	minUser := configuration.GetInt("Authentication", "min_username_length", 3)
	maxUser := configuration.GetInt("Authentication", "max_username_length", 20)
	minPass := configuration.GetInt("Authentication", "min_password_length", 6)
	maxPass := configuration.GetInt("Authentication", "max_password_length", 100)

	if len(username) < minUser || len(username) > maxUser {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidUsername, minUser, maxUser)
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return fmt.Errorf("%w: only letters, digits, '_' and '-' are allowed", ErrInvalidUsername)
		}
	}
	if strings.EqualFold(username, "guest") {
		return fmt.Errorf("%w: reserved name", ErrInvalidUsername)
	}
	if len(password) < minPass || len(password) > maxPass {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidPassword, minPass, maxPass)
	}
	return nil
}

// Authenticate checks a username/password pair.
func (s *Store) Authenticate(username, password string) error {
	var hash string
	err := s.conn.QueryRow("SELECT password FROM users WHERE username = ?", strings.TrimSpace(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// SaveProgram stores source under (owner, name). An existing program with the
// same name is overwritten and keeps its ID.
func (s *Store) SaveProgram(owner, name, source string) (Program, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return Program{}, ErrInvalidName
	}
	if _, err := befunge.ParseSource(source); err != nil {
		return Program{}, err
	}

	now := time.Now()
	id := uuid.New().String()
	_, err := s.conn.Exec(`INSERT INTO programs (id, owner, name, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`,
		id, owner, name, source, now.Unix(), now.Unix())
	if err != nil {
		return Program{}, fmt.Errorf("failed to save program: %w", err)
	}

	var p Program
	var created, updated int64
	err = s.conn.QueryRow(`SELECT id, owner, name, source, created_at, updated_at
		FROM programs WHERE owner = ? AND name = ?`, owner, name).
		Scan(&p.ID, &p.Owner, &p.Name, &p.Source, &created, &updated)
	if err != nil {
		return Program{}, fmt.Errorf("failed to read saved program: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)

	logger.DatabaseDebug("Program %s saved as %s for %s", p.ID, name, owner)
	return p, nil
}

// GetProgram returns a program by ID.
func (s *Store) GetProgram(id string) (Program, error) {
	var p Program
	var created, updated int64
	err := s.conn.QueryRow(`SELECT id, owner, name, source, created_at, updated_at
		FROM programs WHERE id = ?`, id).
		Scan(&p.ID, &p.Owner, &p.Name, &p.Source, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Program{}, ErrProgramNotFound
	}
	if err != nil {
		return Program{}, fmt.Errorf("failed to load program: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

// ListPrograms returns the programs of owner ordered by name, without sources.
func (s *Store) ListPrograms(owner string) ([]Program, error) {
	rows, err := s.conn.Query(`SELECT id, owner, name, created_at, updated_at
		FROM programs WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	programs := []Program{}
	for rows.Next() {
		var p Program
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Owner, &p.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// DeleteProgram removes a program owned by owner.
func (s *Store) DeleteProgram(owner, id string) error {
	res, err := s.conn.Exec("DELETE FROM programs WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	if n == 0 {
		return ErrProgramNotFound
	}
	logger.DatabaseDebug("Program %s deleted for %s", id, owner)
	return nil
}
