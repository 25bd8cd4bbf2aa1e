// Package audit provides access to the audit_logs table, a history of
// changes made to the gift planner database.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

const insertAuditLog = `INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// AuditLog is one recorded change. Details is stored as a JSON object.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit logs. Empty fields match everything.
type Filter struct {
	Action     string // e.g. migrate, create, delete
	EntityType string // e.g. schema, gift, recipient, event
	EntityID   string
	Limit      int // 1-200, 50 when unset
	Offset     int
}

// where returns the WHERE clause for f and its arguments. Only fixed
// column names reach the SQL; values are bound.
func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value != "" {
			clauses = append(clauses, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and lists audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs through a database engine. Its
// statements go through the engine's statement cache, so repeated writes
// reuse one compiled INSERT.
type SQLiteRepository struct {
	engine *database.Engine
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(engine *database.Engine) *SQLiteRepository {
	return &SQLiteRepository{engine: engine}
}

// Create inserts log, filling in ID and CreatedAt when they are unset.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details any
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	stmt, err := database.NewStatement(r.engine, insertAuditLog)
	if err != nil {
		return fmt.Errorf("preparing audit insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	err = stmt.Exec(
		log.ID, log.Action, log.EntityType,
		orNull(log.EntityID), orNull(log.UserID),
		log.Source, details,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}

	return nil
}

// orNull stores empty strings as NULL.
func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns a page of the logs matching filter, newest first, and the
// total number of matches.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLimit
	case filter.Limit > maxLimit:
		filter.Limit = maxLimit
	}
	filter.Offset = max(filter.Offset, 0)

	where, args := filter.where()

	total, err := r.count("SELECT COUNT(*) FROM audit_logs"+where, args)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs" +
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	logs, err := r.query(query, append(args, filter.Limit, filter.Offset))
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func (r *SQLiteRepository) count(query string, args []any) (int, error) {
	stmt, err := r.prepare(query, args)
	if err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	row, err := stmt.Row()
	if err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	return row.Int(0), nil
}

func (r *SQLiteRepository) query(query string, args []any) ([]AuditLog, error) {
	stmt, err := r.prepare(query, args)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	logs := []AuditLog{}
	for {
		res, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("querying audit logs: %w", err)
		}
		if res == database.StepDone {
			return logs, nil
		}

		row, err := stmt.Row()
		if err != nil {
			return nil, fmt.Errorf("reading audit log: %w", err)
		}
		log, err := scanAuditLog(row)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
}

// prepare compiles (or borrows) query and binds args to it.
func (r *SQLiteRepository) prepare(query string, args []any) (*database.Statement, error) {
	stmt, err := database.NewStatement(r.engine, query)
	if err != nil {
		return nil, err
	}
	if err := stmt.Reset(); err != nil {
		stmt.Close() //nolint:errcheck // Already failing
		return nil, err
	}
	for i, arg := range args {
		if err := stmt.Bind(i+1, arg); err != nil {
			stmt.Close() //nolint:errcheck // Already failing
			return nil, err
		}
	}
	return stmt, nil
}

func scanAuditLog(row database.Row) (AuditLog, error) {
	log := AuditLog{
		ID:         row.Text(0),
		Action:     row.Text(1),
		EntityType: row.Text(2),
		EntityID:   row.Text(3),
		UserID:     row.Text(4),
		Source:     row.Text(5),
	}

	if details := row.Text(6); details != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details), &m) == nil {
			log.Details = m
		}
	}

	createdAt := row.Text(7)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t

	return log, nil
}
