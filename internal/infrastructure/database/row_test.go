package database

import (
	"bytes"
	"database/sql/driver"
	"testing"
	"time"
)

func TestRow_Accessors(t *testing.T) {
	stamp := time.Date(2026, 12, 25, 9, 0, 0, 0, time.UTC)
	row := Row{
		names: []string{"id", "name", "budget", "photo", "note", "bought", "when", "count"},
		values: []driver.Value{
			int64(42), "Alice", 19.99, []byte{0xCA, 0xFE}, nil, true, stamp, "17",
		},
	}

	if row.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", row.Len())
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Int", row.Int(0), 42},
		{"Int64", row.Int64(0), int64(42)},
		{"Float from int", row.Float(0), 42.0},
		{"Text", row.Text(1), "Alice"},
		{"Text from int", row.Text(0), "42"},
		{"Float", row.Float(2), 19.99},
		{"Int truncates float", row.Int(2), 19},
		{"Text from float", row.Text(2), "19.99"},
		{"Text of NULL", row.Text(4), ""},
		{"Int of NULL", row.Int(4), 0},
		{"Float of NULL", row.Float(4), 0.0},
		{"Bool of NULL", row.Bool(4), false},
		{"Bool", row.Bool(5), true},
		{"Int from bool", row.Int(5), 1},
		{"Text of time", row.Text(6), "2026-12-25T09:00:00Z"},
		{"Int parses text", row.Int(7), 17},
		{"Bool from text", row.Bool(7), true},
		{"Name", row.Name(1), "name"},
		{"Name out of range", row.Name(99), ""},
		{"IsNull", row.IsNull(4), true},
		{"IsNull non-null", row.IsNull(1), false},
		{"Type integer", row.Type(0), ColumnInteger},
		{"Type text", row.Type(1), ColumnText},
		{"Type float", row.Type(2), ColumnFloat},
		{"Type blob", row.Type(3), ColumnBlob},
		{"Type null", row.Type(4), ColumnNull},
		{"Type time", row.Type(6), ColumnText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	t.Run("Blob is a copy", func(t *testing.T) {
		b := row.Blob(3)
		if !bytes.Equal(b, []byte{0xCA, 0xFE}) {
			t.Fatalf("Blob() = %x", b)
		}
		b[0] = 0
		if row.Blob(3)[0] != 0xCA {
			t.Error("modifying the returned blob changed the row")
		}
	})

	t.Run("Blob of NULL", func(t *testing.T) {
		if row.Blob(4) != nil {
			t.Errorf("Blob(NULL) = %v, want nil", row.Blob(4))
		}
	})
}

func TestRow_OutOfRange(t *testing.T) {
	row := Row{values: []driver.Value{int64(1)}}

	for _, col := range []int{-1, 1, 100} {
		if row.Value(col) != nil || row.Int(col) != 0 || row.Text(col) != "" || !row.IsNull(col) {
			t.Errorf("column %d should read as NULL", col)
		}
	}

	var empty Row
	if empty.Len() != 0 || empty.Text(0) != "" {
		t.Error("zero Row should be empty")
	}
}

func TestColumn(t *testing.T) {
	row := Row{values: []driver.Value{int64(7), 2.5, "gift", []byte("ab"), int64(0), nil}}

	if got := Column[int](row, 0); got != 7 {
		t.Errorf("Column[int] = %d", got)
	}
	if got := Column[int64](row, 0); got != 7 {
		t.Errorf("Column[int64] = %d", got)
	}
	if got := Column[float64](row, 1); got != 2.5 {
		t.Errorf("Column[float64] = %v", got)
	}
	if got := Column[string](row, 2); got != "gift" {
		t.Errorf("Column[string] = %q", got)
	}
	if got := Column[[]byte](row, 3); string(got) != "ab" {
		t.Errorf("Column[[]byte] = %q", got)
	}
	if got := Column[bool](row, 4); got {
		t.Error("Column[bool] of 0 = true")
	}
	if got := Column[string](row, 5); got != "" {
		t.Errorf("Column[string] of NULL = %q", got)
	}
	if got := Column[[]byte](row, 5); got != nil {
		t.Errorf("Column[[]byte] of NULL = %v", got)
	}
}

func TestColumnType_String(t *testing.T) {
	tests := map[ColumnType]string{
		ColumnNull:    "NULL",
		ColumnInteger: "INTEGER",
		ColumnFloat:   "FLOAT",
		ColumnText:    "TEXT",
		ColumnBlob:    "BLOB",
	}
	for ct, want := range tests {
		if got := ct.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(ct), got, want)
		}
	}
}
