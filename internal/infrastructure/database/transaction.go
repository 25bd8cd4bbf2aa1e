package database

import "fmt"

// Transaction is a scoped transaction on an Engine.
//
// It begins on construction and rolls back on Close unless Commit succeeded:
//
//	tx, err := database.Begin(engine)
//	if err != nil {
//	    return err
//	}
//	defer tx.Close() // Rolls back unless committed
//
//	// ... execute statements ...
//
//	return tx.Commit()
type Transaction struct {
	engine    *Engine
	committed bool
	closed    bool
}

// Begin opens a transaction on e.
//
// Returns:
//   - *Transaction: Open transaction, nil on error
//   - error: ErrTransactionActive if e already has one open
func Begin(e *Engine) (*Transaction, error) {
	if err := e.Begin(); err != nil {
		return nil, err
	}
	return &Transaction{engine: e}, nil
}

// Commit commits the transaction. After a failed commit Close still rolls
// back whatever the connection kept open.
func (t *Transaction) Commit() error {
	if t.closed || t.committed {
		return newError(ErrNoTransaction, opCommit, "transaction already finished")
	}

	if err := t.engine.Commit(); err != nil {
		return err
	}
	t.committed = true
	return nil
}

// Committed reports whether Commit succeeded.
func (t *Transaction) Committed() bool {
	return t.committed
}

// Close rolls back the transaction unless it was committed. Failures are
// logged, never returned. Only the first call has any effect.
func (t *Transaction) Close() {
	if t.closed {
		return
	}
	t.closed = true

	if t.committed {
		return
	}
	if err := t.engine.Rollback(); err != nil {
		t.engine.logger.Error("rollback failed", "error", err)
	}
}

// WithTransaction runs fn inside a transaction on e. The transaction commits
// when fn returns nil and rolls back otherwise.
//
// Example:
//
//	err := database.WithTransaction(engine, func() error {
//	    if err := engine.Execute(deleteGifts, "delete gifts"); err != nil {
//	        return err
//	    }
//	    return engine.Execute(deleteRecipient, "delete recipient")
//	})
func WithTransaction(e *Engine, fn func() error) error {
	tx, err := Begin(e)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Close()

	if err := fn(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
