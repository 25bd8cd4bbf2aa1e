package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
)

// Handle is a compiled SQLite statement.
//
// It owns the driver statement, the values bound to its parameters, and the
// cursor of the current execution. A Handle is owned either by the
// StatementCache or by exactly one Statement; it is never shared.
//
// Bindings survive a reset, as they do in SQLite. Parameters that were never
// bound execute as NULL.
type Handle struct {
	sql    string
	stmt   driver.Stmt
	params []driver.NamedValue

	// Execution state.
	rows   driver.Rows
	row    []driver.Value
	hasRow bool
	done   bool

	// Column metadata, filled lazily.
	names     []string
	declTypes []string

	finalized bool
}

// newHandle wraps a freshly compiled driver statement.
func newHandle(query string, stmt driver.Stmt) *Handle {
	n := stmt.NumInput()
	if n < 0 {
		n = 0
	}

	params := make([]driver.NamedValue, n)
	for i := range params {
		params[i] = driver.NamedValue{Ordinal: i + 1}
	}

	return &Handle{
		sql:    query,
		stmt:   stmt,
		params: params,
	}
}

// SQL returns the text the handle was compiled from.
func (h *Handle) SQL() string {
	return h.sql
}

// ParameterCount returns the number of bind parameters in the statement.
func (h *Handle) ParameterCount() int {
	return len(h.params)
}

// bind stores v for the 1-based parameter index.
func (h *Handle) bind(index int, v driver.Value) error {
	if index < 1 || index > len(h.params) {
		return newError(ErrBindRange, opBind, bindRangeMessage(index, len(h.params)))
	}
	h.params[index-1].Value = v
	return nil
}

// clearBindings sets every parameter back to NULL.
func (h *Handle) clearBindings() {
	for i := range h.params {
		h.params[i].Value = nil
	}
}

// step advances the execution by one row.
//
// The first call after a reset executes the statement with the current
// bindings. It returns true while rows are produced and false once the
// statement has run to completion; further calls keep returning false until
// the handle is reset.
func (h *Handle) step() (bool, error) {
	if h.finalized {
		return false, newError(ErrStatementState, opStep, "statement is finalized")
	}
	if h.done {
		return false, nil
	}

	if h.rows == nil {
		querier, ok := h.stmt.(driver.StmtQueryContext)
		if !ok {
			return false, newError(ErrEngine, opStep, "driver statement does not support QueryContext")
		}

		rows, err := querier.QueryContext(context.Background(), h.params)
		if err != nil {
			return false, err
		}
		h.rows = rows
		h.row = make([]driver.Value, len(rows.Columns()))
	}

	if err := h.rows.Next(h.row); err != nil {
		h.hasRow = false
		if errors.Is(err, io.EOF) {
			h.done = true
			return false, nil
		}
		return false, err
	}

	h.hasRow = true
	return true, nil
}

// reset discards the current execution so the statement can run again.
// Errors from the engine's reset only repeat the failure of the last step,
// which the caller has already seen, so they are dropped.
func (h *Handle) reset() {
	if h.rows != nil {
		_ = h.rows.Close() //nolint:errcheck // Repeats the last step's error
		h.rows = nil
	}
	h.hasRow = false
	h.done = false
}

// current returns the values of the row produced by the last step.
func (h *Handle) current() ([]driver.Value, bool) {
	return h.row, h.hasRow
}

// describe loads column names and declared types.
//
// While an execution is open the live cursor is used. Otherwise the statement
// is opened without stepping, which SQLite allows at no cost, and closed again.
func (h *Handle) describe() {
	if h.names != nil || h.finalized {
		return
	}

	rows := h.rows
	if rows == nil {
		querier, ok := h.stmt.(driver.StmtQueryContext)
		if !ok {
			return
		}
		opened, err := querier.QueryContext(context.Background(), nil)
		if err != nil {
			return
		}
		defer opened.Close() //nolint:errcheck // Nothing was stepped
		rows = opened
	}

	h.names = rows.Columns()
	h.declTypes = make([]string, len(h.names))
	if typed, ok := rows.(driver.RowsColumnTypeDatabaseTypeName); ok {
		for i := range h.declTypes {
			h.declTypes[i] = typed.ColumnTypeDatabaseTypeName(i)
		}
	}
}

// columnNames returns the result column names.
func (h *Handle) columnNames() []string {
	h.describe()
	return h.names
}

// columnDeclType returns the declared type of column i, or "" if unknown.
func (h *Handle) columnDeclType(i int) string {
	h.describe()
	if i < 0 || i >= len(h.declTypes) {
		return ""
	}
	return h.declTypes[i]
}

// finalize releases the compiled statement. It is safe to call twice.
func (h *Handle) finalize() error {
	if h.finalized {
		return nil
	}
	h.reset()
	h.finalized = true
	return h.stmt.Close()
}
