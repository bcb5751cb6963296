// Package sqliteexternal registers the cgo SQLite driver
// (github.com/mattn/go-sqlite3) for hosts built with the cgo_sqlite tag.
//
// It lives outside core so the default build stays free of cgo:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/picman-pdb
//
// Without the tag core/sqlite uses modernc.org/sqlite and this package
// compiles to nothing but this comment.
package sqliteexternal
