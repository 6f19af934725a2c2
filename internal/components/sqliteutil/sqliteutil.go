package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

func isRemote(dsn string) bool {
	return strings.HasPrefix(dsn, "libsql://") ||
		strings.HasPrefix(dsn, "https://") ||
		strings.HasPrefix(dsn, "http://")
}

// OpenDB opens the database at `dsn` and applies `schema` to it.
//
// `dsn` is either a local file path (or ":memory:") opened with modernc sqlite,
// or a remote libsql url.
func OpenDB(schema, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, wrapOpenDB(fmt.Errorf("a database path was not specified"))
	}

	var db *sql.DB
	var err error
	if isRemote(dsn) {
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	} else {
		if dsn != ":memory:" {
			err = os.MkdirAll(filepath.Dir(dsn), 0777)
			if err != nil {
				return nil, wrapOpenDB(err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		// see this stackoverflow post for information on why the following
		// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		// it also keeps ":memory:" databases from being a different database per connection.
		db.SetMaxOpenConns(1)
		if dsn != ":memory:" {
			_, err = db.Exec("PRAGMA journal_mode=WAL")
			if err != nil {
				return nil, wrapOpenDB(err)
			}
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(fmt.Errorf("apply schema: %w", err))
	}
	return db, nil
}
