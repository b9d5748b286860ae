package types

// ResultHandle is an exclusively owned, revocable view over a result set.
// Close is idempotent; a closed handle must not be read.
type ResultHandle interface {
	// ColumnIndex returns the index of the named column, or -1
	ColumnIndex(name string) int
	Len() int
	String(row, col int) string
	Int64(row, col int) int64
	Close() error
	IsClosed() bool
}
