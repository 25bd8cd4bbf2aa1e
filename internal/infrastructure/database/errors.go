package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Error kinds for the database package.
//
// Every failure reported by the engine is wrapped in an *Error whose Kind is
// one of these sentinels, so callers can branch with errors.Is():
//
//	if errors.Is(err, database.ErrConstraint) {
//	    // duplicate name, missing foreign key, ...
//	}
var (
	// ErrConnection is returned when the underlying store cannot be opened.
	ErrConnection = errors.New("database: connection failed")

	// ErrTransaction is the parent kind of all transaction misuse errors.
	ErrTransaction = errors.New("database: transaction error")

	// ErrTransactionActive is returned by Begin when a transaction is already open.
	ErrTransactionActive = fmt.Errorf("%w: transaction already active", ErrTransaction)

	// ErrNoTransaction is returned by Commit when no transaction is open.
	ErrNoTransaction = fmt.Errorf("%w: no active transaction", ErrTransaction)

	// ErrSyntax is returned when SQL text cannot be compiled.
	ErrSyntax = errors.New("database: syntax error")

	// ErrConstraint is returned when a step violates a constraint.
	ErrConstraint = errors.New("database: constraint violation")

	// ErrDatatypeMismatch is returned when a value does not fit the column or parameter type.
	ErrDatatypeMismatch = errors.New("database: datatype mismatch")

	// ErrBindRange is returned when a parameter index is out of range.
	ErrBindRange = errors.New("database: bind index out of range")

	// ErrResource is returned when the engine runs out of memory or disk.
	ErrResource = errors.New("database: resource exhausted")

	// ErrStatementState is returned when an operation is illegal in the statement's current state.
	ErrStatementState = errors.New("database: invalid statement state")

	// ErrCacheLimit is returned when a statement cache capacity is out of bounds.
	ErrCacheLimit = errors.New("database: cache capacity out of range")

	// ErrBusy is returned when the database file is locked by another connection.
	ErrBusy = errors.New("database: busy")

	// ErrEngine is returned for engine failures that fit no other kind.
	ErrEngine = errors.New("database: engine error")

	// ErrClosed is returned when the Engine has already been closed.
	ErrClosed = errors.New("database: engine closed")
)

// Error describes a failure reported by (or detected on the way to) SQLite.
//
// Msg always carries the native diagnostic text when the engine produced one.
type Error struct {
	Kind error         // One of the sentinel kinds above.
	Op   string        // Operation that failed, e.g. "prepare" or "execute: create gifts".
	Code sqlite3.ErrNo // Primary SQLite result code; zero when the engine was not consulted.
	Msg  string        // Native diagnostic or a description of the misuse.
}

// Error returns the kind, operation, and diagnostic in one line.
func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%v: %s (code %d): %s", e.Kind, e.Op, int(e.Code), e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Op, e.Msg)
}

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Operation names used in Error.Op.
const (
	opOpen     = "open"
	opExecute  = "execute"
	opBegin    = "begin"
	opCommit   = "commit"
	opRollback = "rollback"
	opPrepare  = "prepare"
	opBind     = "bind"
	opStep     = "step"
	opReset    = "reset"
	opFinalize = "finalize"
	opRow      = "row"
)

// primaryCodeMask strips extended result code bits.
const primaryCodeMask = 0xff

// newError builds an Error for a condition detected without the engine.
func newError(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// classify converts an engine error into an *Error with the matching kind.
// Non-SQLite errors become ErrEngine with their text preserved.
func classify(op string, err error) *Error {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		code := sqlErr.Code & primaryCodeMask
		return &Error{
			Kind: kindFor(op, code),
			Op:   op,
			Code: code,
			Msg:  sqlErr.Error(),
		}
	}

	return &Error{Kind: ErrEngine, Op: op, Msg: err.Error()}
}

// kindFor maps a primary SQLite result code to an error kind.
//
// SQLITE_ERROR means malformed SQL only while compiling, which prepare and
// Execute do. From step the SQL has already compiled, so it is a runtime
// failure such as integer overflow or RAISE(FAIL). SQLITE_MISUSE from step is
// reported as bad SQL; anywhere else it is a lifecycle mistake.
func kindFor(op string, code sqlite3.ErrNo) error {
	compiles := op == opPrepare || strings.HasPrefix(op, opExecute)

	switch code {
	case sqlite3.ErrConstraint:
		return ErrConstraint
	case sqlite3.ErrMismatch:
		return ErrDatatypeMismatch
	case sqlite3.ErrRange:
		return ErrBindRange
	case sqlite3.ErrNomem, sqlite3.ErrFull, sqlite3.ErrTooBig:
		return ErrResource
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return ErrBusy
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return ErrConnection
	case sqlite3.ErrMisuse:
		if op == opStep {
			return ErrSyntax
		}
		return ErrStatementState
	case sqlite3.ErrError:
		if compiles {
			return ErrSyntax
		}
		return ErrEngine
	default:
		return ErrEngine
	}
}

// bindRangeMessage describes an out-of-range parameter index.
func bindRangeMessage(index, count int) string {
	if count == 0 {
		return fmt.Sprintf("index %d: statement has no parameters", index)
	}
	return fmt.Sprintf("index %d outside [1, %d]", index, count)
}
