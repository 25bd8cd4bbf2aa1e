// Package database provides SQLite connection and statement management for
// Gift Planner Core.
//
// This package manages:
//   - One native SQLite connection per Engine, with WAL mode and busy timeout
//   - Scoped transactions that roll back unless committed
//   - Prepared statements with typed binding and step-wise execution
//   - An LRU cache of compiled statements shared by all Statements of an Engine
//   - Schema migrations embedded in the binary
//
// # Statement lifecycle
//
//	Prepared -> Reset <-> Stepped -> Finalized
//
// NewStatement borrows the compiled statement from the cache when it is idle,
// compiles a private copy when another Statement holds it, and compiles and
// caches it on a miss. Parameters can only be bound after Reset. Finalize
// hands a borrowed statement back to the cache; it is never destroyed while
// borrowed.
//
// # Errors
//
// Engine failures are *Error values whose Kind is one of the sentinel errors
// (ErrSyntax, ErrConstraint, ...) and whose Msg is SQLite's own diagnostic:
//
//	if errors.Is(err, database.ErrConstraint) {
//	    // duplicate recipient name
//	}
//
// Cache outcomes are CacheStatus codes, not errors.
//
// Usage:
//
//	engine, err := database.Open(database.Config{Path: cfg.Database.Path, CacheCapacity: 64}, logger)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	tx, err := database.Begin(engine)
//	if err != nil {
//	    return err
//	}
//	defer tx.Close()
//
//	stmt, err := database.NewStatement(engine, "INSERT INTO recipients (name) VALUES (?)")
//	if err != nil {
//	    return err
//	}
//	defer stmt.Close()
//
//	if err := stmt.Exec("Alice"); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// Security Considerations:
//   - Use bound parameters for all values (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
package database
