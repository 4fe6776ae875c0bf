package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the SQLite file at path and migrates it
// to the latest schema version.
func Open(path string) (db *sql.DB, err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err = open(path)
	if err != nil {
		return
	}

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return
}

func open(path string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// a single connection serializes writers, which is all a kiosk needs
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return
}
