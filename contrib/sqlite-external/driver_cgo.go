//go:build cgo_sqlite

package sqliteexternal

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql name mattn/go-sqlite3 registers.
	DriverName = "sqlite3"

	DriverType = "cgo"

	DriverPackage = "github.com/mattn/go-sqlite3"
)
