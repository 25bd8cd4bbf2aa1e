package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// StepResult is the outcome of a successful Step.
type StepResult int

// Step outcomes.
const (
	// StepRow means a result row is available through Row.
	StepRow StepResult = iota + 1

	// StepDone means the statement has run to completion.
	StepDone
)

// String returns "row" or "done".
func (r StepResult) String() string {
	switch r {
	case StepRow:
		return "row"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(r))
	}
}

// StatementState is the lifecycle state of a Statement.
type StatementState int

// Statement states.
//
//	Prepared -> Reset <-> Stepped -> Finalized
//
// Finalized is terminal and reachable from every state.
const (
	StatePrepared StatementState = iota
	StateReset
	StateStepped
	StateFinalized
)

// String returns the state name.
func (s StatementState) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateReset:
		return "reset"
	case StateStepped:
		return "stepped"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// source is where a Statement's handle came from. It decides what
// finalizing the statement does to the handle.
type source interface {
	handle() *Handle
	release(e *Engine) error
	cached() bool
}

// ownedSource is a handle the statement compiled for itself.
type ownedSource struct {
	h *Handle
}

func (s ownedSource) handle() *Handle { return s.h }
func (s ownedSource) cached() bool    { return false }

// release destroys the handle. Once the engine is closed the native
// connection is gone and the driver refuses to finalize; that is not reported.
func (s ownedSource) release(e *Engine) error {
	if err := s.h.finalize(); err != nil && !e.closed.Load() {
		return classify(opFinalize, err)
	}
	return nil
}

// cachedSource is a handle borrowed from the engine's cache.
type cachedSource struct {
	h *Handle
}

func (s cachedSource) handle() *Handle { return s.h }
func (s cachedSource) cached() bool    { return true }

func (s cachedSource) release(e *Engine) error {
	s.h.reset()
	status := e.ReleaseCached(s.h)
	if status == CacheOK || e.closed.Load() {
		return nil
	}
	return newError(ErrStatementState, opFinalize,
		fmt.Sprintf("returning statement to cache: %s", status))
}

// Statement is a compiled SQL statement bound to an Engine.
//
// A Statement either borrows its handle from the engine's cache or owns a
// handle compiled just for it. Finalize returns a borrowed handle to the cache
// and destroys an owned one. Either way the Statement is unusable afterwards.
//
// Typical use:
//
//	stmt, err := database.NewStatement(engine, "INSERT INTO gifts (name, price) VALUES (?, ?)")
//	if err != nil {
//	    return err
//	}
//	defer stmt.Close()
//
//	if err := stmt.Reset(); err != nil { ... }
//	stmt.BindText(1, "Scarf")
//	stmt.BindFloat(2, 24.99)
//	if _, err := stmt.Step(); err != nil { ... }
//
// A Statement is not safe for concurrent use.
type Statement struct {
	engine *Engine
	src    source
	state  StatementState
}

// NewStatement compiles query or borrows it from the engine's cache.
//
// If the cached copy is borrowed by another Statement, a private copy is
// compiled and is never offered to the cache. A miss compiles the statement
// and offers it to the cache; when the cache accepts it, this Statement
// borrows it back at once.
//
// Returns:
//   - *Statement: In the Prepared state
//   - error: ErrSyntax for invalid SQL with the native diagnostic; ErrClosed after Engine.Close
func NewStatement(e *Engine, query string) (*Statement, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	h, status := e.GetCached(query)
	switch status {
	case CacheOK:
		return &Statement{engine: e, src: cachedSource{h: h}, state: StatePrepared}, nil

	case CacheBusy:
		h, err := e.Prepare(query)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("cached statement busy, compiled private copy", "sql", query)
		return &Statement{engine: e, src: ownedSource{h: h}, state: StatePrepared}, nil
	}

	compiled, err := e.Prepare(query)
	if err != nil {
		return nil, err
	}

	if put := e.AddToCache(query, compiled); put != CacheOK {
		e.logger.Debug("statement not cached", "sql", query, "status", put.String())
		return &Statement{engine: e, src: ownedSource{h: compiled}, state: StatePrepared}, nil
	}

	borrowed, got := e.GetCached(query)
	if got != CacheOK {
		// Another goroutine borrowed it between Put and Get.
		h, err := e.Prepare(query)
		if err != nil {
			return nil, err
		}
		return &Statement{engine: e, src: ownedSource{h: h}, state: StatePrepared}, nil
	}

	return &Statement{engine: e, src: cachedSource{h: borrowed}, state: StatePrepared}, nil
}

// State returns the lifecycle state.
func (s *Statement) State() StatementState {
	return s.state
}

// IsCached reports whether the handle is borrowed from the cache.
func (s *Statement) IsCached() bool {
	return s.src != nil && s.src.cached()
}

// SQL returns the statement text, or "" once finalized.
func (s *Statement) SQL() string {
	if s.src == nil {
		return ""
	}
	return s.src.handle().SQL()
}

// ParameterCount returns the number of bind parameters, or 0 once finalized.
func (s *Statement) ParameterCount() int {
	if s.src == nil {
		return 0
	}
	return s.src.handle().ParameterCount()
}

// ColumnCount returns the number of result columns, or 0 once finalized.
func (s *Statement) ColumnCount() int {
	if s.src == nil {
		return 0
	}
	return len(s.src.handle().columnNames())
}

// ColumnName returns the name of result column i (0-based).
func (s *Statement) ColumnName(i int) string {
	if s.src == nil {
		return ""
	}
	names := s.src.handle().columnNames()
	if i < 0 || i >= len(names) {
		return ""
	}
	return names[i]
}

// DeclType returns the declared type of result column i, upper-cased,
// or "" for expressions and unknown columns.
func (s *Statement) DeclType(i int) string {
	if s.src == nil {
		return ""
	}
	return s.src.handle().columnDeclType(i)
}

// ColumnType returns the storage class of column i in the current row.
// Without a current row it returns ColumnNull.
func (s *Statement) ColumnType(i int) ColumnType {
	if s.src == nil {
		return ColumnNull
	}
	values, ok := s.src.handle().current()
	if !ok || i < 0 || i >= len(values) {
		return ColumnNull
	}
	return columnTypeOf(values[i])
}

// checkBindable rejects binding outside the Reset state.
func (s *Statement) checkBindable() error {
	switch s.state {
	case StateReset:
		return nil
	case StateFinalized:
		return newError(ErrStatementState, opBind, "statement is finalized")
	default:
		return newError(ErrStatementState, opBind,
			fmt.Sprintf("cannot bind in state %s; call Reset first", s.state))
	}
}

func (s *Statement) bind(index int, v driver.Value) error {
	if err := s.checkBindable(); err != nil {
		return err
	}
	return s.src.handle().bind(index, v)
}

// BindInt binds an int to the 1-based parameter index.
func (s *Statement) BindInt(index, v int) error {
	return s.bind(index, int64(v))
}

// BindInt64 binds a 64-bit integer.
func (s *Statement) BindInt64(index int, v int64) error {
	return s.bind(index, v)
}

// BindFloat binds a float64.
func (s *Statement) BindFloat(index int, v float64) error {
	return s.bind(index, v)
}

// BindText binds a string.
func (s *Statement) BindText(index int, v string) error {
	return s.bind(index, v)
}

// BindBlob binds bytes. A nil slice binds an empty blob, not NULL.
func (s *Statement) BindBlob(index int, v []byte) error {
	if v == nil {
		v = []byte{}
	}
	return s.bind(index, v)
}

// BindBool binds 1 for true and 0 for false.
func (s *Statement) BindBool(index int, v bool) error {
	var n int64
	if v {
		n = 1
	}
	return s.bind(index, n)
}

// BindNull binds NULL.
func (s *Statement) BindNull(index int) error {
	return s.bind(index, nil)
}

// Bind binds v according to its Go type.
//
// Supported: nil, int, int32, int64, uint32, float32, float64, string,
// []byte, bool and time.Time (stored as RFC 3339 text).
//
// Returns:
//   - error: ErrDatatypeMismatch for any other type
func (s *Statement) Bind(index int, v any) error {
	switch x := v.(type) {
	case nil:
		return s.BindNull(index)
	case int:
		return s.BindInt(index, x)
	case int32:
		return s.BindInt64(index, int64(x))
	case int64:
		return s.BindInt64(index, x)
	case uint32:
		return s.BindInt64(index, int64(x))
	case float32:
		return s.BindFloat(index, float64(x))
	case float64:
		return s.BindFloat(index, x)
	case string:
		return s.BindText(index, x)
	case []byte:
		return s.BindBlob(index, x)
	case bool:
		return s.BindBool(index, x)
	case time.Time:
		return s.BindText(index, x.UTC().Format(time.RFC3339))
	default:
		if err := s.checkBindable(); err != nil {
			return err
		}
		return newError(ErrDatatypeMismatch, opBind, fmt.Sprintf("index %d: unsupported type %T", index, v))
	}
}

// ClearBindings sets every parameter back to NULL.
func (s *Statement) ClearBindings() error {
	if s.state == StateFinalized {
		return newError(ErrStatementState, opBind, "statement is finalized")
	}
	s.src.handle().clearBindings()
	return nil
}

// Step runs the statement up to the next result row.
//
// After StepDone further calls keep returning StepDone until Reset. On
// failure the statement is reset, keeping its bindings, so it can be
// rebound and stepped again.
//
// Returns:
//   - StepResult: StepRow or StepDone
//   - error: ErrConstraint, ErrDatatypeMismatch, ErrBusy, ... with the native diagnostic
func (s *Statement) Step() (StepResult, error) {
	if s.state == StateFinalized {
		return 0, newError(ErrStatementState, opStep, "statement is finalized")
	}

	h := s.src.handle()
	row, err := h.step()
	if err != nil {
		h.reset()
		s.state = StateReset

		dbErr := classify(opStep, err)
		s.engine.recordError(dbErr)
		s.engine.logger.Debug("step failed", "sql", h.SQL(), "error", dbErr.Msg)
		return 0, dbErr
	}

	s.state = StateStepped
	if row {
		return StepRow, nil
	}
	return StepDone, nil
}

// Row returns a snapshot of the current result row.
//
// Returns:
//   - error: ErrStatementState unless the last Step returned StepRow
func (s *Statement) Row() (Row, error) {
	if s.state != StateStepped {
		return Row{}, newError(ErrStatementState, opRow, fmt.Sprintf("no current row in state %s", s.state))
	}

	h := s.src.handle()
	values, ok := h.current()
	if !ok {
		return Row{}, newError(ErrStatementState, opRow, "statement has no current row")
	}

	snapshot := make([]driver.Value, len(values))
	copy(snapshot, values)
	return Row{names: h.columnNames(), values: snapshot}, nil
}

// Reset readies the statement to run again. Bindings are kept.
func (s *Statement) Reset() error {
	if s.state == StateFinalized {
		return newError(ErrStatementState, opReset, "statement is finalized")
	}
	s.src.handle().reset()
	s.state = StateReset
	return nil
}

// Exec resets the statement, binds args to parameters 1..n and steps it to
// completion, discarding any rows.
func (s *Statement) Exec(args ...any) error {
	if err := s.Reset(); err != nil {
		return err
	}
	if err := s.ClearBindings(); err != nil {
		return err
	}
	for i, arg := range args {
		if err := s.Bind(i+1, arg); err != nil {
			return err
		}
	}
	for {
		res, err := s.Step()
		if err != nil {
			return err
		}
		if res == StepDone {
			return nil
		}
	}
}

// Finalize releases the statement. A borrowed handle goes back to the cache
// and stays compiled; an owned handle is destroyed. Finalize is idempotent.
func (s *Statement) Finalize() error {
	if s.state == StateFinalized {
		return nil
	}

	src := s.src
	s.src = nil
	s.state = StateFinalized
	return src.release(s.engine)
}

// Close is Finalize, for use with defer.
func (s *Statement) Close() error {
	return s.Finalize()
}
