package tiletable

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tiles (
	level       INTEGER NOT NULL,
	x           INTEGER NOT NULL,
	y           INTEGER NOT NULL,
	file_offset INTEGER NOT NULL,
	byte_count  INTEGER NOT NULL,
	PRIMARY KEY (level, x, y)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS source (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	record_count INTEGER NOT NULL,
	table_offset INTEGER NOT NULL
);
`

// SQLiteIndex keeps the record table in a SQLite sidecar file so large
// tables need not be held in memory. The sidecar is rebuilt when it does
// not match the table it indexes.
type SQLiteIndex struct {
	db     *sql.DB
	lookup *sql.Stmt
}

// OpenSQLiteIndex opens or creates the sidecar at path and fills it from
// records unless it already indexes a table with the same header.
func OpenSQLiteIndex(path string, h Header, records []Record) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tiletable: open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tiletable: connect index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("tiletable: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("tiletable: index schema: %w", err)
	}

	current, err := indexCurrent(db, h)
	if err == nil && !current {
		err = fillIndex(db, h, records)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(`SELECT file_offset, byte_count FROM tiles WHERE level = ? AND x = ? AND y = ?`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tiletable: prepare lookup: %w", err)
	}
	return &SQLiteIndex{db: db, lookup: stmt}, nil
}

func indexCurrent(db *sql.DB, h Header) (bool, error) {
	var count, offset int64
	err := db.QueryRow(`SELECT record_count, table_offset FROM source WHERE id = 1`).Scan(&count, &offset)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tiletable: read index source: %w", err)
	}
	return count == int64(h.RecordCount) && offset == h.TableOffset, nil
}

func fillIndex(db *sql.DB, h Header, records []Record) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("tiletable: begin index build: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tiles`); err != nil {
		return fmt.Errorf("tiletable: clear index: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tiles (level, x, y, file_offset, byte_count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("tiletable: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Z != 0 {
			continue
		}
		if _, err := stmt.Exec(rec.Level, rec.X, rec.Y, int64(rec.Offset), rec.ByteCount); err != nil {
			return fmt.Errorf("tiletable: index record: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO source (id, record_count, table_offset) VALUES (1, ?, ?)`,
		h.RecordCount, h.TableOffset); err != nil {
		return fmt.Errorf("tiletable: record index source: %w", err)
	}
	return tx.Commit()
}

// Lookup queries the sidecar for the record at the coordinates.
func (ix *SQLiteIndex) Lookup(level, x, y int) (Record, bool, error) {
	var offset int64
	var count uint32
	err := ix.lookup.QueryRow(level, x, y).Scan(&offset, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("tiletable: index lookup: %w", err)
	}
	return Record{
		X:         uint32(x),
		Y:         uint32(y),
		Level:     uint32(level),
		Offset:    uint64(offset),
		ByteCount: count,
	}, true, nil
}

// Close closes the sidecar database.
func (ix *SQLiteIndex) Close() error {
	if ix.db == nil {
		return nil
	}
	ix.lookup.Close()
	err := ix.db.Close()
	ix.db = nil
	return err
}
