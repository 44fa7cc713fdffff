//go:build sqlite_cgo

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// openSourceDB opens the source cache with the cgo driver. WAL and a busy
// timeout keep concurrent cache fills from tripping over each other.
func openSourceDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
}
