// Package storage provides the SQLite cache that autocomplete queries.
//
// The storage layer manages:
//   - Users seen in received statuses
//   - Hashtags seen in received statuses
//   - Process-wide preferences
//
// # Database Schema
//
// Tables:
//   - cached_users: user id, display name, screen name, profile image URL
//   - cached_hashtags: tag names (duplicates allowed, collapsed at query time)
//   - preferences: key/value settings such as display_profile_image
//   - schema_version: applied migrations
//
// # Basic Usage
//
// NewSQLiteStorage takes a filesystem path and does not expand "~";
// Config.ResolveDBPath in package config does that and creates the parent
// directory:
//
//	path, err := cfg.ResolveDBPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := storage.NewSQLiteStorage(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertUser(ctx, &storage.CachedUser{
//	    UserID:     42,
//	    Name:       "Mario",
//	    ScreenName: "mario",
//	})
//
// # Row Queries
//
// Query is the contract the autocomplete router builds on. It takes a table,
// a projection and a predicate with ? placeholders, and returns a Cursor:
//
//	cur, err := db.Query(ctx, storage.Query{
//	    Table:   storage.TableCachedUsers,
//	    Columns: []string{storage.ColumnUserID, storage.ColumnName},
//	    Where:   "name LIKE ? ESCAPE '^'",
//	    Args:    []any{"mar%"},
//	})
//	defer cur.Close()
//
// Tables and columns are checked against the schema before any SQL is built.
// A Cursor holds its rows in memory: the pool has a single connection and an
// open cursor must not keep it busy while the next keystroke queries.
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertUser(ctx, user)
//	_, _ = tx.AddHashtag(ctx, "golang")
//
//	return tx.Commit()
//
// # Build Tags
//
// Pure Go build (default, purego tag) uses modernc.org/sqlite.
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo"
package storage
