package database

import (
	"database/sql/driver"
	"math"
	"strconv"
	"time"
)

// ColumnType is the storage class of a value in a result row.
type ColumnType int

// Storage classes.
const (
	ColumnNull ColumnType = iota
	ColumnInteger
	ColumnFloat
	ColumnText
	ColumnBlob
)

// String returns the SQLite name of the storage class.
func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "INTEGER"
	case ColumnFloat:
		return "FLOAT"
	case ColumnText:
		return "TEXT"
	case ColumnBlob:
		return "BLOB"
	default:
		return "NULL"
	}
}

// columnTypeOf reports the storage class of a value decoded by the driver.
// Dates and booleans come back typed when the column is declared that way;
// they are stored as TEXT and INTEGER.
func columnTypeOf(v driver.Value) ColumnType {
	switch v.(type) {
	case nil:
		return ColumnNull
	case int64, bool:
		return ColumnInteger
	case float64:
		return ColumnFloat
	case string, time.Time:
		return ColumnText
	case []byte:
		return ColumnBlob
	default:
		return ColumnNull
	}
}

// Row is a snapshot of the current result row of a Statement.
//
// Column indices are 0-based. NULL and out-of-range columns read as the zero
// value of the requested type.
type Row struct {
	names  []string
	values []driver.Value
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.values)
}

// Name returns the name of column col, or "" if out of range.
func (r Row) Name(col int) string {
	if col < 0 || col >= len(r.names) {
		return ""
	}
	return r.names[col]
}

// Value returns the raw driver value of column col.
func (r Row) Value(col int) any {
	if col < 0 || col >= len(r.values) {
		return nil
	}
	return r.values[col]
}

// Type returns the storage class of column col.
func (r Row) Type(col int) ColumnType {
	return columnTypeOf(r.Value(col))
}

// IsNull reports whether column col is NULL.
func (r Row) IsNull(col int) bool {
	return r.Value(col) == nil
}

// Int64 reads column col as an integer.
// Floats are truncated and numeric text is parsed, as SQLite does.
func (r Row) Int64(col int) int64 {
	switch v := r.Value(col).(type) {
	case int64:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	case time.Time:
		return v.Unix()
	default:
		return 0
	}
}

// Int reads column col as an int.
func (r Row) Int(col int) int {
	n := r.Int64(col)
	if n > math.MaxInt || n < math.MinInt {
		return 0
	}
	return int(n)
}

// Float reads column col as a float64.
func (r Row) Float(col int) float64 {
	switch v := r.Value(col).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Text reads column col as a string. NULL reads as "".
func (r Row) Text(col int) string {
	switch v := r.Value(col).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Blob reads column col as bytes. The slice is a copy owned by the caller.
func (r Row) Blob(col int) []byte {
	switch v := r.Value(col).(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case string:
		return []byte(v)
	case nil:
		return nil
	default:
		return []byte(r.Text(col))
	}
}

// Bool reads column col as a boolean: any non-zero integer is true.
func (r Row) Bool(col int) bool {
	if v, ok := r.Value(col).(bool); ok {
		return v
	}
	return r.Int64(col) != 0
}

// ColumnValue lists the Go types Column can extract.
type ColumnValue interface {
	int | int64 | float64 | string | bool | []byte
}

// Column reads column col of r as T.
//
// Example:
//
//	name := database.Column[string](row, 0)
//	budget := database.Column[float64](row, 1)
func Column[T ColumnValue](r Row, col int) T {
	var out any
	var zero T
	switch any(zero).(type) {
	case int:
		out = r.Int(col)
	case int64:
		out = r.Int64(col)
	case float64:
		out = r.Float(col)
	case string:
		out = r.Text(col)
	case bool:
		out = r.Bool(col)
	case []byte:
		out = r.Blob(col)
	}
	return out.(T)
}
