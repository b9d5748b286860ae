package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/pkg/types"
)

// EscapeChar is declared as the LIKE escape character in every predicate
const EscapeChar = "^"

// UserColumns is the projection returned for mention candidates
var UserColumns = []string{
	storage.ColumnUserID,
	storage.ColumnName,
	storage.ColumnScreenName,
	storage.ColumnProfileImageURL,
}

// HashtagColumns is the projection returned for hashtag candidates
var HashtagColumns = []string{
	storage.ColumnID,
	storage.ColumnName,
}

// Source is the backing store capability the router needs
type Source interface {
	Query(ctx context.Context, q storage.Query) (*storage.Cursor, error)
}

// Descriptor is the transient query built for one keystroke
type Descriptor struct {
	Mode          types.TriggerMode
	EscapedPrefix string
}

// NewDescriptor escapes prefix for mode
func NewDescriptor(mode types.TriggerMode, prefix string) Descriptor {
	return Descriptor{Mode: mode, EscapedPrefix: EscapePrefix(prefix)}
}

// EscapePrefix neutralizes the single-character wildcard: every '_' becomes "^_".
// No other character is altered.
func EscapePrefix(prefix string) string {
	return strings.ReplaceAll(prefix, "_", EscapeChar+"_")
}

// Router translates (mode, prefix) into a query against the matching cache
type Router struct {
	source Source
	limit  int
}

// New creates a Router over source. A nil source makes every query fail
// with types.ErrSourceUnavailable.
func New(source Source) *Router {
	return &Router{source: source}
}

// WithLimit caps the number of rows returned per query; 0 means unlimited
func (r *Router) WithLimit(limit int) *Router {
	r.limit = limit
	return r
}

// Route dispatches d to the cache that serves its mode
func (r *Router) Route(ctx context.Context, d Descriptor) (types.ResultHandle, error) {
	switch d.Mode {
	case types.ModeMention:
		return r.QueryMentionCandidates(ctx, d.EscapedPrefix)
	case types.ModeHashtag:
		return r.QueryHashtagCandidates(ctx, d.EscapedPrefix)
	default:
		return nil, fmt.Errorf("unsupported trigger mode: %d", d.Mode)
	}
}

// QueryMentionCandidates returns cached users whose screen name or display
// name starts with escapedPrefix. An empty prefix returns every user.
func (r *Router) QueryMentionCandidates(ctx context.Context, escapedPrefix string) (types.ResultHandle, error) {
	q := storage.Query{
		Table:   storage.TableCachedUsers,
		Columns: UserColumns,
		OrderBy: storage.ColumnScreenName,
		Limit:   r.limit,
	}
	if escapedPrefix != "" {
		pattern := escapedPrefix + "%"
		q.Where = prefixMatch(storage.ColumnScreenName) + " OR " + prefixMatch(storage.ColumnName)
		q.Args = []any{pattern, pattern}
	}
	return r.run(ctx, q)
}

// QueryHashtagCandidates returns cached hashtags whose name starts with
// escapedPrefix, one row per distinct name. An empty prefix returns every tag.
func (r *Router) QueryHashtagCandidates(ctx context.Context, escapedPrefix string) (types.ResultHandle, error) {
	q := storage.Query{
		Table:      storage.TableCachedHashtags,
		Columns:    HashtagColumns,
		DistinctOn: storage.ColumnName,
		OrderBy:    storage.ColumnName,
		Limit:      r.limit,
	}
	if escapedPrefix != "" {
		q.Where = prefixMatch(storage.ColumnName)
		q.Args = []any{escapedPrefix + "%"}
	}
	return r.run(ctx, q)
}

func (r *Router) run(ctx context.Context, q storage.Query) (types.ResultHandle, error) {
	if r.source == nil {
		return nil, types.ErrSourceUnavailable
	}
	cur, err := r.source.Query(ctx, q)
	if errors.Is(err, storage.ErrUnavailable) {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func prefixMatch(column string) string {
	return column + " LIKE ? ESCAPE '" + EscapeChar + "'"
}
