// Package sqlite selects the SQLite driver used for the procedure history
// store. The default build uses the pure Go modernc.org/sqlite driver; building
// with -tags cgo_sqlite switches to mattn/go-sqlite3 through
// contrib/sqlite-external.
//
// Use Open instead of sql.Open so the registered driver name and the
// driver-specific connection options always match.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBusyTimeout is how long a connection waits on a locked database
// before failing. Two hosts sharing one history file would otherwise fail
// immediately.
const DefaultBusyTimeout = 5 * time.Second

// DriverName returns the database/sql driver name of the selected driver.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" or "cgo".
func DriverType() string {
	return driverType
}

// IsCGO reports whether the cgo driver is compiled in.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens the database file at path with the busy timeout applied.
// The special path ":memory:" opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing database file without write access.
func OpenReadOnly(path string) (*sql.DB, error) {
	return open(path, true)
}

// MustOpen is Open for initialization code that cannot continue without
// the database.
func MustOpen(path string) *sql.DB {
	db, err := Open(path)
	if err != nil {
		panic(fmt.Sprintf("sqlite: failed to open %s: %v", path, err))
	}
	return db
}

func open(path string, readOnly bool) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(path, readOnly, DefaultBusyTimeout))
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	return db, nil
}

// DSN builds the data source name for path in the syntax the selected
// driver understands.
func DSN(path string, readOnly bool, busy time.Duration) string {
	q := url.Values{}
	if readOnly {
		// mode=ro is a URI parameter, honored only for file: names.
		if !strings.HasPrefix(path, "file:") {
			path = "file:" + path
		}
		q.Set("mode", "ro")
	}
	ms := busy.Milliseconds()
	if IsCGO() {
		q.Set("_busy_timeout", fmt.Sprint(ms))
	} else {
		q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", ms))
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Info describes the compiled-in driver.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns the driver description shown by the version command.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
