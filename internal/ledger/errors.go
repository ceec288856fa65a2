package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blitz-labs/tankrank/internal/ledger/rebuild"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrBusy reports that the store's lock-wait timeout elapsed while another
// writer held the database. The operation is safe to retry.
var ErrBusy = errors.New("ledger: lock wait exceeded")

// ValidationError rejects malformed input before it reaches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown tank, alias, or submission.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ConflictError reports a uniqueness or reference conflict the caller must
// resolve: a rename colliding with an existing name, a duplicate
// player-tank pair, or a removal refused while submissions still reference
// the tank.
type ConflictError struct {
	Op     string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// IntegrityError is re-exported from the rebuild package so callers can
// match migration failures without importing the planner.
type IntegrityError = rebuild.IntegrityError

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// classify maps driver-level failures onto the store's error taxonomy.
// Busy/locked results become ErrBusy, unique violations become
// ConflictError, everything else passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isBusyErr(err) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	if isUniqueErr(err) {
		var ce *ConflictError
		if !errors.As(err, &ce) {
			return &ConflictError{Op: "write", Detail: err.Error()}
		}
	}
	return err
}

func isBusyErr(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isUniqueErr(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
