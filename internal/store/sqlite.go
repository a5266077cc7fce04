package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3_learnbot"

var registerOnce sync.Once

// patterns caches compiled REGEXP operands; filters reuse a small set of
// patterns across many rows.
var patterns sync.Map

func regexpMatch(pattern, value string) (bool, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(value), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	patterns.Store(pattern, re)
	return re.MatchString(value), nil
}

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", regexpMatch, true)
			},
		})
	})
}

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (*DB, error) {
	registerDriver()

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(driverName, dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS statements (
  id TEXT PRIMARY KEY,
  text TEXT NOT NULL,
  search_text TEXT NOT NULL DEFAULT '',
  in_response_to TEXT NOT NULL DEFAULT '',
  search_in_response_to TEXT NOT NULL DEFAULT '',
  conversation TEXT NOT NULL DEFAULT '',
  persona TEXT NOT NULL DEFAULT '',
  tags TEXT NOT NULL DEFAULT '[]',
  vector BLOB,
  vector_norm REAL NOT NULL DEFAULT 0,
  count INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  last_updated_at INTEGER NOT NULL,
  UNIQUE(text, in_response_to)
);

CREATE INDEX IF NOT EXISTS idx_statements_in_response_to ON statements(in_response_to);
CREATE INDEX IF NOT EXISTS idx_statements_conversation ON statements(conversation);
CREATE INDEX IF NOT EXISTS idx_statements_created_at ON statements(created_at);
CREATE INDEX IF NOT EXISTS idx_statements_last_updated_at ON statements(last_updated_at);

CREATE TABLE IF NOT EXISTS latest_responses (
  conversation TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  text TEXT NOT NULL,
  search_text TEXT NOT NULL DEFAULT '',
  in_response_to TEXT NOT NULL DEFAULT '',
  search_in_response_to TEXT NOT NULL DEFAULT '',
  persona TEXT NOT NULL DEFAULT '',
  tags TEXT NOT NULL DEFAULT '[]',
  vector BLOB,
  vector_norm REAL NOT NULL DEFAULT 0,
  count INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  last_updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vector_cache (
  content_hash TEXT NOT NULL,
  model TEXT NOT NULL,
  vector BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (content_hash, model)
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// StatementCount returns the number of statements in the corpus.
func (db *DB) StatementCount() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM statements").Scan(&count)
	return count, err
}
