package storage

import (
	"context"
	"time"
)

// Logical table and column names of the candidate caches
const (
	TableCachedUsers    = "cached_users"
	TableCachedHashtags = "cached_hashtags"

	ColumnID              = "id"
	ColumnUserID          = "user_id"
	ColumnName            = "name"
	ColumnScreenName      = "screen_name"
	ColumnProfileImageURL = "profile_image_url"
)

// Storage defines the interface for the local candidate cache
type Storage interface {
	// Row queries
	Query(ctx context.Context, q Query) (*Cursor, error)

	// User cache operations
	UpsertUser(ctx context.Context, user *CachedUser) error
	GetUser(ctx context.Context, userID int64) (*CachedUser, error)
	DeleteUser(ctx context.Context, userID int64) error

	// Hashtag cache operations
	AddHashtag(ctx context.Context, name string) (bool, error)
	DeleteHashtag(ctx context.Context, name string) error

	// Preference operations
	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error

	// Maintenance
	ClearCache(ctx context.Context) error
	GetStatus(ctx context.Context) (*CacheStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Query describes a row query against one cache table.
// Where is a predicate using ? placeholders bound to Args.
type Query struct {
	Table   string
	Columns []string
	Where   string
	Args    []any

	// DistinctOn collapses rows sharing this column; other columns take their MIN
	DistinctOn string
	OrderBy    string
	Limit      int
}

// CachedUser is a user remembered from a received status
type CachedUser struct {
	ID              int64
	UserID          int64
	Name            string
	ScreenName      string
	ProfileImageURL string
	UpdatedAt       time.Time
}

// CacheStatus contains statistics about the candidate cache
type CacheStatus struct {
	UsersCount       int
	HashtagsCount    int
	DistinctHashtags int
	SizeBytes        int64
	SizeMB           float64
	SchemaVersion    string
	Health           HealthStatus
}

// HealthStatus represents the health of the cache
type HealthStatus struct {
	DatabaseAccessible bool
	UsersCached        bool
	HashtagsCached     bool
}

// tableColumns lists the queryable columns of each table
var tableColumns = map[string][]string{
	TableCachedUsers:    {ColumnID, ColumnUserID, ColumnName, ColumnScreenName, ColumnProfileImageURL},
	TableCachedHashtags: {ColumnID, ColumnName},
}
