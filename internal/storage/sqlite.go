package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned once the database has been closed
	ErrUnavailable = errors.New("storage unavailable")
	// ErrInvalidQuery is returned for queries naming unknown tables or columns
	ErrInvalidQuery = errors.New("invalid query")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	closed atomic.Bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so other readers of the cache are not blocked
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection. Later calls are no-ops.
func (s *SQLiteStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Row queries

// buildQuery validates q against the schema and renders it as SQL
func buildQuery(q Query) (string, error) {
	known, ok := tableColumns[q.Table]
	if !ok {
		return "", fmt.Errorf("%w: unknown table %q", ErrInvalidQuery, q.Table)
	}
	if len(q.Columns) == 0 {
		return "", fmt.Errorf("%w: empty projection", ErrInvalidQuery)
	}
	for _, col := range append(slices.Clone(q.Columns), q.DistinctOn, q.OrderBy) {
		if col != "" && !slices.Contains(known, col) {
			return "", fmt.Errorf("%w: unknown column %q in %s", ErrInvalidQuery, col, q.Table)
		}
	}
	if q.DistinctOn != "" && !slices.Contains(q.Columns, q.DistinctOn) {
		return "", fmt.Errorf("%w: distinct column %q not projected", ErrInvalidQuery, q.DistinctOn)
	}

	projection := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		if q.DistinctOn != "" && col != q.DistinctOn {
			projection[i] = fmt.Sprintf("MIN(%s) AS %s", col, col)
			continue
		}
		projection[i] = col
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(projection, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Table)
	if q.Where != "" {
		b.WriteString(" WHERE (")
		b.WriteString(q.Where)
		b.WriteString(")")
	}
	if q.DistinctOn != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(q.DistinctOn)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), nil
}

// queryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) queryWithQuerier(ctx context.Context, qr querier, q Query) (*Cursor, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	stmt, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := qr.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	return scanCursor(rows)
}

// Query runs a projection over one cache table and returns a materialized cursor
func (s *SQLiteStorage) Query(ctx context.Context, q Query) (*Cursor, error) {
	return s.queryWithQuerier(ctx, s.querier(), q)
}

// User operations

// upsertUserWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertUserWithQuerier(ctx context.Context, q querier, user *CachedUser) error {
	query := `
		INSERT INTO cached_users (user_id, name, screen_name, profile_image_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			screen_name = excluded.screen_name,
			profile_image_url = excluded.profile_image_url,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		user.UserID, user.Name, user.ScreenName, user.ProfileImageURL, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertUser(ctx context.Context, user *CachedUser) error {
	return s.upsertUserWithQuerier(ctx, s.querier(), user)
}

// getUserWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getUserWithQuerier(ctx context.Context, q querier, userID int64) (*CachedUser, error) {
	query := `
		SELECT id, user_id, name, screen_name, profile_image_url, updated_at
		FROM cached_users
		WHERE user_id = ?
	`
	var user CachedUser
	var imageURL sql.NullString
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.UserID, &user.Name, &user.ScreenName, &imageURL, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.ProfileImageURL = imageURL.String
	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID int64) (*CachedUser, error) {
	return s.getUserWithQuerier(ctx, s.querier(), userID)
}

// deleteUserWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteUserWithQuerier(ctx context.Context, q querier, userID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM cached_users WHERE user_id = ?`, userID)
	return err
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, userID int64) error {
	return s.deleteUserWithQuerier(ctx, s.querier(), userID)
}

// Hashtag operations

// addHashtagWithQuerier inserts name unless an entry with the same name exists.
// It reports whether a row was inserted.
func (s *SQLiteStorage) addHashtagWithQuerier(ctx context.Context, q querier, name string) (bool, error) {
	query := `
		INSERT INTO cached_hashtags (name, created_at)
		SELECT ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM cached_hashtags WHERE name = ?)
	`
	result, err := q.ExecContext(ctx, query, name, time.Now(), name)
	if err != nil {
		return false, fmt.Errorf("failed to add hashtag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) AddHashtag(ctx context.Context, name string) (bool, error) {
	return s.addHashtagWithQuerier(ctx, s.querier(), name)
}

// deleteHashtagWithQuerier removes every entry with the given name
func (s *SQLiteStorage) deleteHashtagWithQuerier(ctx context.Context, q querier, name string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM cached_hashtags WHERE name = ?`, name)
	return err
}

func (s *SQLiteStorage) DeleteHashtag(ctx context.Context, name string) error {
	return s.deleteHashtagWithQuerier(ctx, s.querier(), name)
}

// Preference operations

// getPreferenceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getPreferenceWithQuerier(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStorage) GetPreference(ctx context.Context, key string) (string, error) {
	return s.getPreferenceWithQuerier(ctx, s.querier(), key)
}

// setPreferenceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) setPreferenceWithQuerier(ctx context.Context, q querier, key, value string) error {
	query := `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) SetPreference(ctx context.Context, key, value string) error {
	return s.setPreferenceWithQuerier(ctx, s.querier(), key, value)
}

// Bool reads a boolean preference, returning def when it is unset or unparsable
func (s *SQLiteStorage) Bool(key string, def bool) bool {
	if s.closed.Load() {
		return def
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	value, err := s.GetPreference(ctx, key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}

// Maintenance

// clearCacheWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) clearCacheWithQuerier(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cached_users`); err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM cached_hashtags`); err != nil {
		return fmt.Errorf("failed to clear hashtags: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearCache(ctx context.Context) error {
	return s.clearCacheWithQuerier(ctx, s.querier())
}

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*CacheStatus, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}

	status := &CacheStatus{}

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_users`).Scan(&status.UsersCount); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT name) FROM cached_hashtags`).Scan(
		&status.HashtagsCount, &status.DistinctHashtags); err != nil {
		return nil, fmt.Errorf("failed to count hashtags: %w", err)
	}

	if version, err := latestVersion(ctx, q); err == nil {
		status.SchemaVersion = version.String()
	}

	// Calculate database size
	var pageCount, pageSize int
	err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeBytes = int64(pageCount) * int64(pageSize)
		status.SizeMB = float64(status.SizeBytes) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		UsersCached:        status.UsersCount > 0,
		HashtagsCached:     status.HashtagsCount > 0,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*CacheStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations. Every call goes through the transaction
// querier: the pool holds a single connection, so touching s.db inside a
// transaction would block.

func (t *sqliteTx) Query(ctx context.Context, q Query) (*Cursor, error) {
	return t.storage.queryWithQuerier(ctx, t.querier(), q)
}

func (t *sqliteTx) UpsertUser(ctx context.Context, user *CachedUser) error {
	return t.storage.upsertUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) GetUser(ctx context.Context, userID int64) (*CachedUser, error) {
	return t.storage.getUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) DeleteUser(ctx context.Context, userID int64) error {
	return t.storage.deleteUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) AddHashtag(ctx context.Context, name string) (bool, error) {
	return t.storage.addHashtagWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) DeleteHashtag(ctx context.Context, name string) error {
	return t.storage.deleteHashtagWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) GetPreference(ctx context.Context, key string) (string, error) {
	return t.storage.getPreferenceWithQuerier(ctx, t.querier(), key)
}

func (t *sqliteTx) SetPreference(ctx context.Context, key, value string) error {
	return t.storage.setPreferenceWithQuerier(ctx, t.querier(), key, value)
}

func (t *sqliteTx) ClearCache(ctx context.Context) error {
	return t.storage.clearCacheWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*CacheStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
