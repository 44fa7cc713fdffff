//go:build !sqlite_cgo

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// openSourceDB opens the source cache with the pure-Go driver. The driver
// serializes writes itself, but a single connection avoids SQLITE_BUSY when
// several requests fill the cache at once.
func openSourceDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
