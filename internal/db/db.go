package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "ideaforge.db"

type Config struct {
	// Path to the SQLite file. Empty means .ideaforge/ideaforge.db under the working directory.
	Path string
}

// DefaultPath is the store location used when no path is configured.
func DefaultPath() string {
	return filepath.Join(".ideaforge", defaultDBName)
}

// EnsureDir creates the parent directory of the store file if missing.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Open opens the SQLite store in WAL mode with foreign keys on. Write
// transactions take the database lock at BEGIN so read-then-update sequences
// inside one transaction cannot interleave with another writer.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}
	if err := EnsureDir(path); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	dsn := fmt.Sprintf("file:%s?%s", path, q.Encode())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return conn, nil
}
