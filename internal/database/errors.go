package database

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrConflict reports that a transaction lost a race for the database lock
	// and may be retried.
	ErrConflict = errors.New("storage conflict")
	// ErrDuplicate reports a uniqueness violation (queue name within a chat,
	// member within a queue, chat ID).
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound reports that a targeted row does not exist.
	ErrNotFound = errors.New("record not found")
)

// classify maps driver errors onto the package sentinels while keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	code := sqliteErr.Code()
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT:
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
	}
	return err
}
