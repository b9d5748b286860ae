package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/pkg/types"
)

// recordingSource implements Source and remembers the last query
type recordingSource struct {
	last  storage.Query
	calls int
	err   error
}

func (s *recordingSource) Query(ctx context.Context, q storage.Query) (*storage.Cursor, error) {
	s.calls++
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return storage.NewCursor(q.Columns, nil), nil
}

func TestEscapePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"mar", "mar"},
		{"a_b", "a^_b"},
		{"__", "^_^_"},
		{"50%", "50%"},
		{"ü_ñ", "ü^_ñ"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapePrefix(tt.in), "EscapePrefix(%q)", tt.in)
	}
}

func TestEscapePrefix_OnlyUnderscoresChange(t *testing.T) {
	inputs := []string{"a_b_c", "_lead", "trail_", "no-underscore", "^_", "ＡＢ_"}
	for _, in := range inputs {
		out := EscapePrefix(in)
		// Removing the inserted markers gives back the input
		assert.Equal(t, in, strings.ReplaceAll(out, "^_", "_"))
		// Every underscore in the output is preceded by the marker
		for i, r := range out {
			if r == '_' {
				require.Greater(t, i, 0)
				assert.Equal(t, byte('^'), out[i-1], "input %q", in)
			}
		}
	}
}

func TestRoute_Mention(t *testing.T) {
	src := &recordingSource{}
	h, err := New(src).Route(context.Background(), NewDescriptor(types.ModeMention, "mar"))
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, storage.TableCachedUsers, src.last.Table)
	assert.Equal(t, UserColumns, src.last.Columns)
	assert.Equal(t, "screen_name LIKE ? ESCAPE '^' OR name LIKE ? ESCAPE '^'", src.last.Where)
	assert.Equal(t, []any{"mar%", "mar%"}, src.last.Args)
	assert.Empty(t, src.last.DistinctOn)
}

func TestRoute_Hashtag(t *testing.T) {
	src := &recordingSource{}
	_, err := New(src).Route(context.Background(), NewDescriptor(types.ModeHashtag, "and"))
	require.NoError(t, err)

	assert.Equal(t, storage.TableCachedHashtags, src.last.Table)
	assert.Equal(t, HashtagColumns, src.last.Columns)
	assert.Equal(t, "name LIKE ? ESCAPE '^'", src.last.Where)
	assert.Equal(t, []any{"and%"}, src.last.Args)
	assert.Equal(t, storage.ColumnName, src.last.DistinctOn)
}

func TestRoute_EscapedUnderscore(t *testing.T) {
	src := &recordingSource{}
	_, err := New(src).Route(context.Background(), NewDescriptor(types.ModeMention, "a_b"))
	require.NoError(t, err)

	assert.Contains(t, src.last.Where, "ESCAPE '^'")
	assert.Equal(t, []any{"a^_b%", "a^_b%"}, src.last.Args)
}

func TestRoute_EmptyPrefixIsUnfiltered(t *testing.T) {
	src := &recordingSource{}
	r := New(src)

	_, err := r.QueryMentionCandidates(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, src.last.Where)
	assert.Empty(t, src.last.Args)

	_, err = r.QueryHashtagCandidates(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, src.last.Where)
}

func TestRoute_Limit(t *testing.T) {
	src := &recordingSource{}
	_, err := New(src).WithLimit(8).QueryHashtagCandidates(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 8, src.last.Limit)
}

func TestRoute_SourceUnavailable(t *testing.T) {
	_, err := New(nil).QueryMentionCandidates(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)

	src := &recordingSource{err: storage.ErrUnavailable}
	_, err = New(src).QueryHashtagCandidates(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
}

func TestRoute_OtherErrorsPropagate(t *testing.T) {
	boom := errors.New("disk I/O error")
	src := &recordingSource{err: boom}
	_, err := New(src).QueryMentionCandidates(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, types.ErrSourceUnavailable)
}

func TestRoute_UnknownMode(t *testing.T) {
	src := &recordingSource{}
	_, err := New(src).Route(context.Background(), Descriptor{Mode: types.TriggerMode(9)})
	assert.Error(t, err)
	assert.Zero(t, src.calls)
}
