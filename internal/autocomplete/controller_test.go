package autocomplete

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/composecomplete/internal/config"
	"github.com/dshills/composecomplete/internal/router"
	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/internal/worker"
	"github.com/dshills/composecomplete/pkg/types"
)

// countingHandle wraps a cursor and counts Close calls
type countingHandle struct {
	*storage.Cursor
	closes atomic.Int32
}

func (h *countingHandle) Close() error {
	h.closes.Add(1)
	return h.Cursor.Close()
}

func userHandle(rows ...[]any) *countingHandle {
	return &countingHandle{Cursor: storage.NewCursor(router.UserColumns, rows)}
}

func hashtagHandle(rows ...[]any) *countingHandle {
	return &countingHandle{Cursor: storage.NewCursor(router.HashtagColumns, rows)}
}

// fakeRouter records descriptors and hands out prepared handles
type fakeRouter struct {
	mu          sync.Mutex
	descriptors []router.Descriptor
	next        func(d router.Descriptor) (types.ResultHandle, error)
}

func (r *fakeRouter) Route(ctx context.Context, d router.Descriptor) (types.ResultHandle, error) {
	r.mu.Lock()
	r.descriptors = append(r.descriptors, d)
	r.mu.Unlock()
	if r.next == nil {
		if d.Mode == types.ModeMention {
			return userHandle(), nil
		}
		return hashtagHandle(), nil
	}
	return r.next(d)
}

func (r *fakeRouter) last(t *testing.T) router.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.descriptors)
	return r.descriptors[len(r.descriptors)-1]
}

func (r *fakeRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.descriptors)
}

type fakePreferences struct {
	values map[string]bool
	reads  int
}

func (p *fakePreferences) Bool(key string, def bool) bool {
	p.reads++
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

type recordingDisplayer struct {
	targets []any
	refs    []string
}

func (d *recordingDisplayer) DisplayImage(target any, ref string) {
	d.targets = append(d.targets, target)
	d.refs = append(d.refs, ref)
}

func TestRunQuery_MentionScenario(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{Source: StaticText{Body: "hello @mar", Caret: 10}})

	h, err := c.RunQuery(context.Background(), "mar")
	require.NoError(t, err)
	require.NotNil(t, h)
	defer h.Close()

	assert.Equal(t, types.ModeMention, c.Mode())
	assert.Equal(t, router.Descriptor{Mode: types.ModeMention, EscapedPrefix: "mar"}, r.last(t))
}

func TestRunQuery_HashtagScenario(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{Source: StaticText{Body: "check #and", Caret: 10}})

	h, err := c.RunQuery(context.Background(), "and")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, types.ModeHashtag, c.Mode())
	assert.Equal(t, types.ModeHashtag, r.last(t).Mode)
}

func TestRunQuery_EscapesUnderscore(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{Source: StaticText{Body: "@a_b", Caret: 4}})

	h, err := c.RunQuery(context.Background(), "a_b")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "a^_b", r.last(t).EscapedPrefix)
}

func TestRunQuery_FullWidthTrigger(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{Source: StaticText{Body: "こんにちは＠まり", Caret: 8}})
	c.mode = types.ModeHashtag

	h, err := c.RunQuery(context.Background(), "まり")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, types.ModeMention, c.Mode())
}

func TestRunQuery_KeepsModeWithoutTextSource(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{})

	_, err := c.RunQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, types.ModeMention, c.Mode())

	// Switch to hashtags through a source, then detach it
	c.SetTextSource(StaticText{Body: "#x", Caret: 2})
	_, err = c.RunQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, types.ModeHashtag, c.Mode())

	c.SetTextSource(nil)
	_, err = c.RunQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, types.ModeHashtag, c.Mode())
	assert.Equal(t, types.ModeHashtag, r.last(t).Mode)
}

func TestRunQuery_KeepsModeOnMalformedCaret(t *testing.T) {
	r := &fakeRouter{}
	c := New(r, Options{Source: StaticText{Body: "#abc", Caret: 4}})
	_, err := c.RunQuery(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, types.ModeHashtag, c.Mode())

	for _, src := range []StaticText{
		{Body: "@abc", Caret: 99},
		{Body: "@abc", Caret: -1},
		{Body: "abc", Caret: 3},
	} {
		c.SetTextSource(src)
		_, err := c.RunQuery(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, types.ModeHashtag, c.Mode(), "source %+v", src)
	}
}

func TestRunQuery_SourceUnavailable(t *testing.T) {
	c := New(router.New(nil), Options{Source: StaticText{Body: "@m", Caret: 2}})

	h, err := c.RunQuery(context.Background(), "m")
	assert.NoError(t, err)
	assert.Nil(t, h)

	require.NoError(t, c.Filter(context.Background(), "m"))
	assert.False(t, c.IsActive())
	assert.Equal(t, 0, c.Len())

	_, err = c.Candidate(0)
	assert.ErrorIs(t, err, types.ErrInactive)
}

func TestRunQuery_OtherErrorsPropagate(t *testing.T) {
	boom := errors.New("disk on fire")
	r := &fakeRouter{next: func(router.Descriptor) (types.ResultHandle, error) { return nil, boom }}
	c := New(r, Options{})

	_, err := c.RunQuery(context.Background(), "m")
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, c.Filter(context.Background(), "m"), boom)
	assert.False(t, c.IsActive())
}

func TestRunQuery_OverrideOnlyWhenModeUnchanged(t *testing.T) {
	r := &fakeRouter{}
	overrides := 0
	override := userHandle([]any{int64(9), "Override", "ovr", nil})
	c := New(r, Options{Source: StaticText{Body: "@ab", Caret: 3}})
	c.SetFilterOverride(FilterFunc(func(ctx context.Context, prefix string) (types.ResultHandle, error) {
		overrides++
		return override, nil
	}))

	// Mention to Mention: the override runs
	h, err := c.RunQuery(context.Background(), "ab")
	require.NoError(t, err)
	assert.Same(t, override, h)
	assert.Equal(t, 1, overrides)
	assert.Equal(t, 0, r.count())

	// Mode change: the local query runs and the mode is recorded
	c.SetTextSource(StaticText{Body: "#ab", Caret: 3})
	h, err = c.RunQuery(context.Background(), "ab")
	require.NoError(t, err)
	assert.NotSame(t, override, h)
	assert.Equal(t, 1, overrides)
	assert.Equal(t, 1, r.count())
	assert.Equal(t, types.ModeHashtag, c.Mode())

	// Hashtag to Hashtag: back to the override
	_, err = c.RunQuery(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, 2, overrides)
	assert.Equal(t, 1, r.count())

	// Removing the override restores local queries
	c.SetFilterOverride(nil)
	_, err = c.RunQuery(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, 2, r.count())
}

func TestPublish_DisposesPreviousExactlyOnce(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	h1 := userHandle([]any{int64(1), "One", "one", nil})
	h2 := userHandle([]any{int64(2), "Two", "two", nil})

	c.Publish(h1)
	assert.True(t, c.IsActive())
	c.Publish(h2)

	assert.Equal(t, int32(1), h1.closes.Load())
	assert.True(t, h1.IsClosed())
	assert.Equal(t, int32(0), h2.closes.Load())

	cand, err := c.Candidate(0)
	require.NoError(t, err)
	assert.Equal(t, "two", cand.ScreenName)

	// Republishing the current handle changes nothing
	c.Publish(h2)
	assert.Equal(t, int32(0), h2.closes.Load())
	assert.True(t, c.IsActive())
}

func TestPublish_NilClearsSlot(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	h := hashtagHandle([]any{int64(1), "go"})

	c.Publish(h)
	c.Publish(nil)

	assert.Equal(t, int32(1), h.closes.Load())
	assert.False(t, c.IsActive())
}

func TestDispose_Twice(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	h := hashtagHandle([]any{int64(1), "go"})
	c.Publish(h)

	assert.NotPanics(t, func() {
		c.Dispose()
		c.Dispose()
	})
	assert.Equal(t, int32(1), h.closes.Load())
	assert.False(t, c.IsActive())

	// Nothing published yet
	assert.NotPanics(t, New(&fakeRouter{}, Options{}).Dispose)
}

func TestPublish_AfterCloseDisposesImmediately(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	h1 := hashtagHandle([]any{int64(1), "go"})
	c.Publish(h1)

	c.Close()
	c.Close()
	assert.Equal(t, int32(1), h1.closes.Load())

	h2 := hashtagHandle([]any{int64(2), "rust"})
	c.Publish(h2)
	assert.Equal(t, int32(1), h2.closes.Load())
	assert.False(t, c.IsActive())
}

func TestIsActive_ClosedElsewhere(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	h := hashtagHandle([]any{int64(1), "go"})
	c.Publish(h)
	_ = h.Cursor.Close()

	assert.False(t, c.IsActive())
	_, err := c.Stringify(0)
	assert.ErrorIs(t, err, types.ErrInactive)
}

func TestProjectForDisplay(t *testing.T) {
	c := New(&fakeRouter{}, Options{Locale: "en"})

	c.Publish(userHandle(
		[]any{int64(1), "Mario Rossi", "mario", "https://img/mario.png"},
		[]any{int64(2), "Marta", "marta", nil},
	))
	f, err := c.ProjectForDisplay(0)
	require.NoError(t, err)
	assert.Equal(t, types.DisplayFields{
		Primary:   "Mario Rossi",
		Secondary: "@mario",
		Image:     types.ImageReference,
		ImageRef:  "https://img/mario.png",
	}, f)

	f, err = c.ProjectForDisplay(1)
	require.NoError(t, err)
	assert.Equal(t, types.ImageDefaultAvatar, f.Image)
	assert.Empty(t, f.ImageRef)

	c.Publish(hashtagHandle([]any{int64(7), "golang"}))
	f, err = c.ProjectForDisplay(0)
	require.NoError(t, err)
	assert.Equal(t, types.DisplayFields{
		Primary:   "#golang",
		Secondary: "Hashtag",
		Image:     types.ImageHashtagIcon,
	}, f)

	_, err = c.ProjectForDisplay(1)
	assert.ErrorIs(t, err, types.ErrRowOutOfRange)
}

func TestProjectForDisplay_ImagesDisabled(t *testing.T) {
	prefs := &fakePreferences{values: map[string]bool{config.PreferenceDisplayProfileImage: false}}
	c := New(&fakeRouter{}, Options{Preferences: prefs})
	assert.False(t, c.DisplayImages())

	c.Publish(userHandle(
		[]any{int64(1), "Mario", "mario", "https://img/mario.png"},
		[]any{int64(2), "Marta", "marta", ""},
	))
	for row := 0; row < 2; row++ {
		f, err := c.ProjectForDisplay(row)
		require.NoError(t, err)
		assert.Equal(t, types.ImageHidden, f.Image)
		assert.Empty(t, f.ImageRef)
	}

	c.Publish(hashtagHandle([]any{int64(1), "go"}))
	f, err := c.ProjectForDisplay(0)
	require.NoError(t, err)
	assert.Equal(t, types.ImageHidden, f.Image)

	// The preference is read once, at construction
	assert.Equal(t, 1, prefs.reads)
}

func TestProjectForDisplay_LocalizedHashtagLabel(t *testing.T) {
	c := New(&fakeRouter{}, Options{Locale: "ja-JP"})
	c.Publish(hashtagHandle([]any{int64(1), "go"}))

	f, err := c.ProjectForDisplay(0)
	require.NoError(t, err)
	assert.Equal(t, "ハッシュタグ", f.Secondary)
}

func TestProjectForDisplay_UnknownVariant(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	c.Publish(&countingHandle{Cursor: storage.NewCursor([]string{"id"}, [][]any{{int64(1)}})})

	_, err := c.ProjectForDisplay(0)
	assert.ErrorIs(t, err, types.ErrUnknownVariant)
}

func TestCandidate_RejectsBlankRows(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	c.Publish(hashtagHandle([]any{int64(1), ""}, []any{int64(2), "go"}))

	_, err := c.ProjectForDisplay(0)
	assert.ErrorIs(t, err, types.ErrEmptyCandidate)
	_, err = c.Stringify(0)
	assert.ErrorIs(t, err, types.ErrEmptyCandidate)

	f, err := c.ProjectForDisplay(1)
	require.NoError(t, err)
	assert.Equal(t, "#go", f.Primary)

	c.Publish(userHandle([]any{int64(3), "", "", nil}))
	_, err = c.Candidate(0)
	assert.ErrorIs(t, err, types.ErrEmptyCandidate)
}

func TestBindView(t *testing.T) {
	images := &recordingDisplayer{}
	c := New(&fakeRouter{}, Options{Images: images})
	c.Publish(userHandle(
		[]any{int64(1), "Mario", "mario", "https://img/mario.png"},
		[]any{int64(2), "Marta", "marta", nil},
	))

	type row struct{ n int }
	target := &row{n: 0}
	_, err := c.BindView(target, 0)
	require.NoError(t, err)
	_, err = c.BindView(&row{n: 1}, 1)
	require.NoError(t, err)

	require.Len(t, images.refs, 1)
	assert.Equal(t, "https://img/mario.png", images.refs[0])
	assert.Same(t, target, images.targets[0])
}

func TestStringify(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	c.Publish(userHandle(
		[]any{int64(1), "Mario", "mario", nil},
		[]any{int64(2), "No Handle", "", nil},
	))

	s, err := c.Stringify(0)
	require.NoError(t, err)
	assert.Equal(t, "mario", s)

	s, err = c.Stringify(1)
	require.NoError(t, err)
	assert.Equal(t, "No Handle", s)

	c.Publish(hashtagHandle([]any{int64(1), "golang"}))
	s, err = c.Stringify(0)
	require.NoError(t, err)
	assert.Equal(t, "golang", s)
}

func TestCandidate_Variants(t *testing.T) {
	c := New(&fakeRouter{}, Options{})
	c.Publish(userHandle([]any{int64(42), "Mario", "mario", "u"}))

	cand, err := c.Candidate(0)
	require.NoError(t, err)
	assert.Equal(t, types.Candidate{Kind: types.KindUser, ID: 42, Name: "Mario", ScreenName: "mario", ProfileImageURL: "u"}, cand)
	assert.NoError(t, cand.Validate())

	c.Publish(hashtagHandle([]any{int64(3), "go"}))
	cand, err = c.Candidate(0)
	require.NoError(t, err)
	assert.Equal(t, types.Candidate{Kind: types.KindHashtag, ID: 3, Name: "go"}, cand)
	assert.NoError(t, cand.Validate())
}

func TestFilter_UsesWorker(t *testing.T) {
	w := worker.New()
	defer w.Close()

	r := &fakeRouter{next: func(d router.Descriptor) (types.ResultHandle, error) {
		return hashtagHandle([]any{int64(1), "android"}, []any{int64(2), "andromeda"}), nil
	}}
	c := New(r, Options{Worker: w, Source: StaticText{Body: "check #and", Caret: 10}})
	defer c.Close()

	require.NoError(t, c.Filter(context.Background(), "and"))
	assert.True(t, c.IsActive())
	assert.Equal(t, 2, c.Len())
}

// liveText is a TextSource the test edits while a query is pending
type liveText struct {
	mu    sync.Mutex
	body  string
	caret int
	read  chan struct{}
}

func (l *liveText) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.body
}

// SelectionEnd is read after Text and signals that detection has sampled
// the source
func (l *liveText) SelectionEnd() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case l.read <- struct{}{}:
	default:
	}
	return l.caret
}

func (l *liveText) set(body string, caret int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.body, l.caret = body, caret
}

func TestFilter_DetectsModeBeforeQueueing(t *testing.T) {
	w := worker.New()
	defer w.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = w.Do(context.Background(), func(ctx context.Context) {
			close(started)
			<-release
		})
	}()
	<-started

	src := &liveText{body: "@ma", caret: 3, read: make(chan struct{}, 1)}
	r := &fakeRouter{}
	c := New(r, Options{Worker: w, Source: src})
	c.mode = types.ModeHashtag
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Filter(context.Background(), "ma") }()

	<-src.read
	src.set("@mar", 4)
	assert.Equal(t, types.ModeMention, c.Mode())
	assert.Equal(t, 0, r.count())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, router.Descriptor{Mode: types.ModeMention, EscapedPrefix: "ma"}, r.last(t))
	assert.Equal(t, types.ModeMention, c.Mode())
}

func TestFilter_OverrideDecidedBeforeQueueing(t *testing.T) {
	w := worker.New()
	defer w.Close()

	r := &fakeRouter{}
	var overridden atomic.Int32
	c := New(r, Options{Worker: w, Source: StaticText{Body: "@ma", Caret: 3}})
	defer c.Close()
	c.SetFilterOverride(FilterFunc(func(ctx context.Context, prefix string) (types.ResultHandle, error) {
		overridden.Add(1)
		return userHandle([]any{int64(1), "Mario", "mario", nil}), nil
	}))

	require.NoError(t, c.Filter(context.Background(), "ma"))
	assert.Equal(t, int32(1), overridden.Load())
	assert.Equal(t, 0, r.count())
	assert.Equal(t, 1, c.Len())

	c.SetTextSource(StaticText{Body: "#ma", Caret: 3})
	require.NoError(t, c.Filter(context.Background(), "ma"))
	assert.Equal(t, int32(1), overridden.Load())
	assert.Equal(t, types.ModeHashtag, r.last(t).Mode)
}

func TestFilter_PanickingOverrideKeepsWorker(t *testing.T) {
	w := worker.New()
	defer w.Close()

	c := New(&fakeRouter{}, Options{Worker: w, Source: StaticText{Body: "@ma", Caret: 3}})
	defer c.Close()
	c.SetFilterOverride(FilterFunc(func(ctx context.Context, prefix string) (types.ResultHandle, error) {
		panic("override failed")
	}))

	err := c.Filter(context.Background(), "ma")
	require.ErrorIs(t, err, worker.ErrPanic)
	assert.False(t, c.IsActive())

	c.SetFilterOverride(nil)
	require.NoError(t, c.Filter(context.Background(), "ma"))
	assert.True(t, c.IsActive())
}

func TestFilter_CancelledBeforeStart(t *testing.T) {
	w := worker.New()
	defer w.Close()

	r := &fakeRouter{}
	c := New(r, Options{Worker: w})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Filter(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.count())
	assert.False(t, c.IsActive())
}

func TestController_ConcurrentPublishAndRead(t *testing.T) {
	c := New(&fakeRouter{}, Options{})

	const publishers, perPublisher = 4, 50
	var (
		mu      sync.Mutex
		handles []*countingHandle
		wg      sync.WaitGroup
	)
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if cand, err := c.Candidate(0); err == nil {
					// A live read never sees a disposed handle
					assert.Equal(t, "tag", cand.Name)
				}
				_ = c.Len()
			}
		}()
	}

	var pub sync.WaitGroup
	for p := 0; p < publishers; p++ {
		pub.Add(1)
		go func() {
			defer pub.Done()
			for i := 0; i < perPublisher; i++ {
				h := hashtagHandle([]any{int64(i), "tag"})
				mu.Lock()
				handles = append(handles, h)
				mu.Unlock()
				c.Publish(h)
			}
		}()
	}
	pub.Wait()
	close(stop)
	wg.Wait()
	c.Close()

	require.Len(t, handles, publishers*perPublisher)
	for _, h := range handles {
		assert.Equal(t, int32(1), h.closes.Load())
	}
}
