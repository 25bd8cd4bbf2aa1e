package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/logging"
)

// Engine configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	// DefaultCacheCapacity is used when Config.CacheCapacity is zero.
	DefaultCacheCapacity = 64
)

// Logger defines the logging interface used inside the package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config contains engine configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file, or MemoryPath.
	// The directory will be created if it doesn't exist.
	Path string

	// Debug routes engine logging to the supplied logger. When false every
	// record is discarded.
	Debug bool

	// CacheCapacity is the number of compiled statements kept in the
	// statement cache. Zero selects DefaultCacheCapacity.
	CacheCapacity int

	// WALMode enables Write-Ahead Logging. Ignored for in-memory databases.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// ForeignKeys enables foreign key enforcement.
	ForeignKeys bool
}

// Engine owns one native SQLite connection and the statement cache built on it.
//
// At most one transaction is open at a time. Execute, Begin, Commit, Rollback
// and Prepare serialise on an internal mutex; the lock covers the body of a
// single call, never a whole transaction.
type Engine struct {
	mu     sync.Mutex
	conn   driver.Conn
	active bool

	cache  *StatementCache
	path   string
	id     string
	logger *logging.Logger

	errMu   sync.Mutex
	lastErr string

	closed atomic.Bool
}

// Open creates the engine with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures busy timeout, foreign keys, and WAL mode
//  4. Verifies the file is a readable database
//  5. Sets appropriate file permissions (0600)
//  6. Creates the statement cache
//
// Parameters:
//   - cfg: Engine configuration
//   - logger: Used only when cfg.Debug is set; nil selects logging.Default()
//
// Returns:
//   - *Engine: Connected engine
//   - error: ErrConnection if the store cannot be opened, ErrCacheLimit for a bad capacity
func Open(cfg Config, logger *logging.Logger) (*Engine, error) {
	capacity := cfg.CacheCapacity
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	cache, err := NewStatementCache(capacity)
	if err != nil {
		return nil, err
	}

	memory := cfg.Path == MemoryPath
	if !memory {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, newError(ErrConnection, opOpen, fmt.Sprintf("creating database directory: %v", err))
		}
	}

	drv := &sqlite3.SQLiteDriver{}
	conn, err := drv.Open(buildDSN(cfg))
	if err != nil {
		return nil, openError(err)
	}

	id := uuid.NewString()
	switch {
	case !cfg.Debug:
		logger = logging.Discard()
	case logger == nil:
		logger = logging.Default()
	}
	logger = logger.With("component", "database", "engine_id", id)

	e := &Engine{
		conn:   conn,
		cache:  cache,
		path:   cfg.Path,
		id:     id,
		logger: logger,
	}
	cache.SetLogger(logger)

	// Reading the schema fails fast on files that are not databases.
	if err := e.exec("SELECT count(*) FROM sqlite_master", opOpen); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, openError(err)
	}

	if !memory {
		// Ignore error - the file exists after the verification query.
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Best effort
	}

	logger.Info("database opened", "path", cfg.Path, "cache_capacity", capacity, "wal", cfg.WALMode && !memory)
	return e, nil
}

// buildDSN builds the go-sqlite3 connection string.
// See: https://github.com/mattn/go-sqlite3#connection-string
func buildDSN(cfg Config) string {
	memory := cfg.Path == MemoryPath

	var b strings.Builder
	if memory {
		b.WriteString("file::memory:")
	} else {
		b.WriteString("file:")
		b.WriteString(cfg.Path)
	}

	fmt.Fprintf(&b, "?_busy_timeout=%d", cfg.BusyTimeout*msPerSecond)
	if cfg.ForeignKeys {
		b.WriteString("&_foreign_keys=on")
	}
	if cfg.WALMode && !memory {
		b.WriteString("&_journal_mode=WAL&_synchronous=NORMAL")
	}
	return b.String()
}

// openError reports any failure while opening as ErrConnection, keeping the
// native code and text.
func openError(err error) *Error {
	dbErr := classify(opOpen, err)
	return &Error{Kind: ErrConnection, Op: opOpen, Code: dbErr.Code, Msg: dbErr.Msg}
}

// Close flushes the statement cache and closes the native connection.
// Calling Close more than once is a no-op.
//
// Statements still borrowed from the cache are finalized as well; using them
// afterwards returns ErrStatementState or ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cache.ClearAll() == CacheBusy {
		e.logger.Warn("closing with borrowed statements", "in_use", e.cache.Stats().InUse)
		e.cache.purge()
	}

	if e.active {
		e.logger.Warn("closing with an open transaction; SQLite will roll it back")
		e.active = false
	}

	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	e.logger.Info("database closed")
	return nil
}

// Path returns the path the engine was opened with.
func (e *Engine) Path() string {
	return e.path
}

// ID returns the engine's instance identifier, a random UUID.
func (e *Engine) ID() string {
	return e.id
}

// Cache returns the engine's statement cache.
func (e *Engine) Cache() *StatementCache {
	return e.cache
}

// InTransaction reports whether a transaction is open.
func (e *Engine) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// LastError returns the native diagnostic of the most recent engine failure,
// or "" if nothing has failed yet.
func (e *Engine) LastError() string {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

// recordError remembers err as the last engine failure.
func (e *Engine) recordError(err *Error) {
	e.errMu.Lock()
	e.lastErr = err.Msg
	e.errMu.Unlock()
}

// HealthCheck verifies the database is accessible and functioning.
// It runs "SELECT 1" through the statement cache.
//
// Parameters:
//   - ctx: Checked before the query runs
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stmt, err := NewStatement(e, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	res, err := stmt.Step()
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if res != StepRow {
		return fmt.Errorf("database health check failed: %w",
			newError(ErrEngine, opStep, "SELECT 1 returned no row"))
	}
	row, err := stmt.Row()
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if row.Int(0) != 1 {
		return fmt.Errorf("database health check failed: %w",
			newError(ErrEngine, opRow, fmt.Sprintf("SELECT 1 returned %v", row.Value(0))))
	}
	return nil
}

// Execute runs SQL that takes no parameters. The text may hold several
// statements separated by semicolons; they run in order and stop at the
// first failure.
//
// Parameters:
//   - query: SQL text
//   - label: Short description used in errors and logs, e.g. "create gifts"
//
// Returns:
//   - error: *Error carrying the native diagnostic and the label
func (e *Engine) Execute(query, label string) error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	op := opExecute
	if label != "" {
		op = opExecute + ": " + label
	}
	return e.exec(query, op)
}

// exec runs query on the native connection. Callers hold e.mu, except Open
// which owns the engine exclusively.
func (e *Engine) exec(query, op string) error {
	execer, ok := e.conn.(driver.ExecerContext)
	if !ok {
		return newError(ErrEngine, op, "driver connection does not support ExecContext")
	}

	if _, err := execer.ExecContext(context.Background(), query, nil); err != nil {
		dbErr := classify(op, err)
		e.recordError(dbErr)
		e.logger.Error("statement failed", "op", op, "error", dbErr.Msg)
		return dbErr
	}

	e.logger.Debug("statement executed", "op", op)
	return nil
}

// Begin opens a transaction.
//
// Returns:
//   - error: ErrTransactionActive if one is already open
func (e *Engine) Begin() error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return newError(ErrTransactionActive, opBegin, "a transaction is already open on this engine")
	}

	if err := e.exec("BEGIN", opBegin); err != nil {
		return err
	}

	e.active = true
	e.logger.Debug("transaction started")
	return nil
}

// Commit commits the open transaction.
//
// When COMMIT fails the engine follows the connection: if SQLite kept the
// transaction open (a deferred constraint, a busy database) it stays open and
// must be rolled back or committed again.
//
// Returns:
//   - error: ErrNoTransaction if none is open; the native failure otherwise
func (e *Engine) Commit() error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return newError(ErrNoTransaction, opCommit, "commit without begin")
	}

	if err := e.exec("COMMIT", opCommit); err != nil {
		e.active = !e.autocommit()
		return err
	}
	e.active = false

	e.logger.Debug("transaction committed")
	return nil
}

// Rollback rolls back the open transaction. Without one it does nothing.
//
// The engine always leaves the transactional state. A failed ROLLBACK is
// logged and returned.
func (e *Engine) Rollback() error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil
	}

	err := e.exec("ROLLBACK", opRollback)
	e.active = false
	if err != nil {
		return err
	}

	e.logger.Debug("transaction rolled back")
	return nil
}

// autocommit reports whether the native connection is outside a transaction.
func (e *Engine) autocommit() bool {
	if conn, ok := e.conn.(*sqlite3.SQLiteConn); ok {
		return conn.AutoCommit()
	}
	return true
}

// Prepare compiles query into a new handle, bypassing the statement cache.
// The caller owns the handle.
//
// Returns:
//   - *Handle: Compiled statement
//   - error: ErrSyntax for empty or invalid SQL, otherwise classified by code
func (e *Engine) Prepare(query string) (*Handle, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return nil, newError(ErrSyntax, opPrepare, "empty statement")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stmt, err := e.conn.Prepare(query)
	if err != nil {
		dbErr := classify(opPrepare, err)
		e.recordError(dbErr)
		e.logger.Error("prepare failed", "sql", query, "error", dbErr.Msg)
		return nil, dbErr
	}

	return newHandle(query, stmt), nil
}

// GetCached borrows the cached handle for query. See StatementCache.Get.
func (e *Engine) GetCached(query string) (*Handle, CacheStatus) {
	return e.cache.Get(query)
}

// AddToCache offers h to the cache under query. See StatementCache.Put.
func (e *Engine) AddToCache(query string, h *Handle) CacheStatus {
	return e.cache.Put(query, h)
}

// ReleaseCached returns a borrowed handle. See StatementCache.Release.
func (e *Engine) ReleaseCached(h *Handle) CacheStatus {
	return e.cache.Release(h)
}
