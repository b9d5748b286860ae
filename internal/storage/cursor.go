package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"
)

// Cursor is a materialized result set. Rows are read before the query
// returns, so holding a Cursor never pins a database connection.
// Close is idempotent and drops the rows; reads after Close return zero values.
type Cursor struct {
	mu     sync.RWMutex
	index  map[string]int
	rows   [][]any
	closed bool
}

// NewCursor builds a cursor over in-memory rows
func NewCursor(columns []string, rows [][]any) *Cursor {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}
	return &Cursor{
		index: index,
		rows:  rows,
	}
}

// scanCursor drains rows into a Cursor and closes them
func scanCursor(rows *sql.Rows) (*Cursor, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return NewCursor(columns, data), nil
}

// ColumnIndex returns the index of the named column, or -1
func (c *Cursor) ColumnIndex(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// Len returns the number of rows, 0 once closed
func (c *Cursor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// String returns the value at (row, col) as text
func (c *Cursor) String(row, col int) string {
	v, ok := c.value(row, col)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Int64 returns the value at (row, col) as an integer, 0 if it is not one
func (c *Cursor) Int64(row, col int) int64 {
	v, ok := c.value(row, col)
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(val), 10, 64)
		return n
	default:
		return 0
	}
}

// Close releases the rows. Calling it again is a no-op.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.rows = nil
	return nil
}

// IsClosed reports whether Close has been called
func (c *Cursor) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Cursor) value(row, col int) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || row < 0 || row >= len(c.rows) {
		return nil, false
	}
	r := c.rows[row]
	if col < 0 || col >= len(r) {
		return nil, false
	}
	return r[col], true
}
