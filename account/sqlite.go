package account

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLite is a Directory stored in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS accounts (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Login implements Directory.
func (s *SQLite) Login(ctx context.Context, name string, proof Hash, clientToken, serverToken uint32) (LoginResult, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM accounts WHERE name = ?`, name).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return LoginUnknownAccount, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "query account")
	}

	stored, err := ParseHash(encoded)
	if err != nil {
		return 0, errors.Wrapf(err, "stored hash for %q", name)
	}
	return verify(stored, proof, clientToken, serverToken), nil
}

// Create implements Directory.
func (s *SQLite) Create(ctx context.Context, name string, passwordHash Hash) (CreateResult, error) {
	if r := ValidateName(name); r != CreateSuccess {
		return r, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (name, hash) VALUES (?, ?)`, name, passwordHash.String())
	if err != nil {
		return 0, errors.Wrap(err, "insert account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "insert account")
	}
	if n == 0 {
		return CreateAccountExists, nil
	}
	return CreateSuccess, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
