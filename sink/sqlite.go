package sink

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/use-agent/recoveryfinder/models"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	full_name   TEXT NOT NULL,
	father_name TEXT NOT NULL,
	address     TEXT NOT NULL,
	country     TEXT NOT NULL,
	state       TEXT NOT NULL,
	city        TEXT NOT NULL,
	price       TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);`

// SQLite stores records in a local database, one row per record.
type SQLite struct {
	db    *sql.DB
	runID string
}

// OpenSQLite opens or creates the database at path and tags every record
// with runID.
func OpenSQLite(path, runID string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(recordsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db, runID: runID}, nil
}

func (s *SQLite) Append(rec models.Record) error {
	_, err := s.db.Exec(`INSERT INTO records
		(run_id, full_name, father_name, address, country, state, city, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, rec.FullName, rec.FatherName, rec.Address, rec.Country, rec.State, rec.City, rec.Price,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
