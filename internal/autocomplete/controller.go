package autocomplete

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"unicode/utf8"

	"github.com/dshills/composecomplete/internal/config"
	"github.com/dshills/composecomplete/internal/router"
	"github.com/dshills/composecomplete/pkg/types"
)

// Router routes a query descriptor to the matching candidate cache
type Router interface {
	Route(ctx context.Context, d router.Descriptor) (types.ResultHandle, error)
}

// FilterOverride lets a host substitute its own query strategy
type FilterOverride interface {
	RunQuery(ctx context.Context, prefix string) (types.ResultHandle, error)
}

// FilterFunc adapts a function to FilterOverride
type FilterFunc func(ctx context.Context, prefix string) (types.ResultHandle, error)

func (f FilterFunc) RunQuery(ctx context.Context, prefix string) (types.ResultHandle, error) {
	return f(ctx, prefix)
}

// ImageDisplayer loads a profile image into a view
type ImageDisplayer interface {
	DisplayImage(target any, ref string)
}

// Preferences is read-only access to process-wide settings
type Preferences interface {
	Bool(key string, def bool) bool
}

// Executor runs a function on a background goroutine and waits for it
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context)) error
}

// Options configures a Controller. Every field is optional.
type Options struct {
	Preferences Preferences
	Images      ImageDisplayer
	Worker      Executor
	Source      TextSource
	Locale      string
	Logger      *log.Logger
}

// Controller owns the current result handle of one compose view. It decides
// the trigger mode, dispatches queries and swaps result handles.
type Controller struct {
	router        Router
	images        ImageDisplayer
	worker        Executor
	logger        *log.Logger
	hashtagLabel  string
	displayImages bool

	// modeMu guards the dispatch state
	modeMu   sync.Mutex
	mode     types.TriggerMode
	source   TextSource
	override FilterOverride

	// mu guards the handle slot. Readers hold the read lock for the whole
	// read; Publish takes the write lock to swap.
	mu      sync.RWMutex
	current *slot
	closed  bool
}

// slot pairs a handle with its schema, resolved once at publish time
type slot struct {
	handle types.ResultHandle
	schema schema
}

// New creates a controller. The display_profile_image preference is read
// from opts.Preferences here and never again.
func New(r Router, opts Options) *Controller {
	c := &Controller{
		router:        r,
		images:        opts.Images,
		worker:        opts.Worker,
		logger:        opts.Logger,
		hashtagLabel:  hashtagLabel(opts.Locale),
		displayImages: true,
		mode:          types.ModeMention,
		source:        opts.Source,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if opts.Preferences != nil {
		c.displayImages = opts.Preferences.Bool(config.PreferenceDisplayProfileImage, true)
	}
	return c
}

// SetTextSource attaches the live text; nil detaches it
func (c *Controller) SetTextSource(src TextSource) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	c.source = src
}

// SetFilterOverride installs a host query strategy; nil removes it
func (c *Controller) SetFilterOverride(o FilterOverride) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	c.override = o
}

// Mode returns the mode of the last dispatched query
func (c *Controller) Mode() types.TriggerMode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

// DisplayImages reports the display_profile_image setting read at construction
func (c *Controller) DisplayImages() bool {
	return c.displayImages
}

// detectModeLocked falls back to the last mode when no text source is
// attached or the caret does not fit the text. Caller holds modeMu.
func (c *Controller) detectModeLocked(prefix string) types.TriggerMode {
	if c.source == nil {
		return c.mode
	}
	mode, ok := DetectMode(c.source.Text(), c.source.SelectionEnd(), utf8.RuneCountInString(prefix))
	if !ok {
		return c.mode
	}
	return mode
}

// RunQuery picks the trigger mode for prefix and queries the matching cache.
// When a filter override is installed and the mode has not changed, the
// override runs instead. An unavailable store yields no handle and no error.
func (c *Controller) RunQuery(ctx context.Context, prefix string) (types.ResultHandle, error) {
	return c.unavailableAsEmpty(c.dispatch(prefix)(ctx))
}

// query is the store side of one dispatch
type query func(ctx context.Context) (types.ResultHandle, error)

// dispatch reads the text source, records the mode and returns the query to
// run. It runs on the caller's goroutine; only the returned query may be
// handed to the worker.
func (c *Controller) dispatch(prefix string) query {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	mode := c.detectModeLocked(prefix)
	if c.override != nil && mode == c.mode {
		override := c.override
		return func(ctx context.Context) (types.ResultHandle, error) {
			return override.RunQuery(ctx, prefix)
		}
	}
	c.mode = mode

	d := router.NewDescriptor(mode, prefix)
	return func(ctx context.Context) (types.ResultHandle, error) {
		return c.router.Route(ctx, d)
	}
}

func (c *Controller) unavailableAsEmpty(h types.ResultHandle, err error) (types.ResultHandle, error) {
	if errors.Is(err, types.ErrSourceUnavailable) {
		c.logger.Printf("autocomplete: %v, showing no candidates", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	return h, nil
}

// Filter dispatches the query for prefix and publishes the result. Mode
// detection happens before Filter hands the store query to the background
// worker. Without a worker the query runs on the calling goroutine.
func (c *Controller) Filter(ctx context.Context, prefix string) error {
	if c.worker == nil {
		h, err := c.RunQuery(ctx, prefix)
		if err != nil {
			return err
		}
		c.Publish(h)
		return nil
	}

	q := c.dispatch(prefix)
	var (
		h    types.ResultHandle
		qerr error
	)
	if err := c.worker.Do(ctx, func(ctx context.Context) {
		h, qerr = c.unavailableAsEmpty(q(ctx))
	}); err != nil {
		return err
	}
	if qerr != nil {
		return qerr
	}
	c.Publish(h)
	return nil
}

// Publish makes h the current handle and disposes the one it replaces.
// Publishing after Close disposes h right away.
func (c *Controller) Publish(h types.ResultHandle) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.dispose(h)
		return
	}
	var old types.ResultHandle
	if c.current != nil {
		if c.current.handle == h {
			c.mu.Unlock()
			return
		}
		old = c.current.handle
	}
	if h != nil {
		c.current = &slot{handle: h, schema: resolveSchema(h)}
	} else {
		c.current = nil
	}
	c.mu.Unlock()

	// No reader can still be inside old: they all hold the read lock,
	// which the swap above waited for.
	c.dispose(old)
}

// Dispose closes and clears the current handle. It is safe to call
// repeatedly and with no handle.
func (c *Controller) Dispose() {
	c.mu.Lock()
	var old types.ResultHandle
	if c.current != nil {
		old = c.current.handle
		c.current = nil
	}
	c.mu.Unlock()
	c.dispose(old)
}

// Close disposes the current handle and any handle published afterwards
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Dispose()
}

// IsActive reports whether a current handle exists and is open
func (c *Controller) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeLocked()
}

func (c *Controller) activeLocked() bool {
	return c.current != nil && !c.current.handle.IsClosed()
}

func (c *Controller) dispose(h types.ResultHandle) {
	if h == nil || h.IsClosed() {
		return
	}
	if err := h.Close(); err != nil {
		c.logger.Printf("autocomplete: dispose result set: %v", err)
	}
}

// read runs fn against the current slot while holding the read lock
func (c *Controller) read(fn func(s *slot) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.activeLocked() {
		return types.ErrInactive
	}
	return fn(c.current)
}

// Len returns the number of candidates, 0 when inactive
func (c *Controller) Len() int {
	n := 0
	_ = c.read(func(s *slot) error {
		n = s.handle.Len()
		return nil
	})
	return n
}

// Candidate returns the record at row
func (c *Controller) Candidate(row int) (types.Candidate, error) {
	var cand types.Candidate
	err := c.read(func(s *slot) error {
		var err error
		cand, err = s.schema.record(s.handle, row)
		return err
	})
	return cand, err
}

// ProjectForDisplay returns the row's text and image directive
func (c *Controller) ProjectForDisplay(row int) (types.DisplayFields, error) {
	cand, err := c.Candidate(row)
	if err != nil {
		return types.DisplayFields{}, err
	}
	return project(cand, c.displayImages, c.hashtagLabel), nil
}

// BindView projects row and hands a profile image reference, if shown, to
// the image displayer together with target.
func (c *Controller) BindView(target any, row int) (types.DisplayFields, error) {
	fields, err := c.ProjectForDisplay(row)
	if err != nil {
		return fields, err
	}
	if fields.Image == types.ImageReference && c.images != nil {
		c.images.DisplayImage(target, fields.ImageRef)
	}
	return fields, nil
}

// Stringify returns the text committed when row is accepted: the screen
// name of a user (display name if it has none) or the tag name.
func (c *Controller) Stringify(row int) (string, error) {
	cand, err := c.Candidate(row)
	if err != nil {
		return "", err
	}
	if cand.IsUser() && cand.ScreenName != "" {
		return cand.ScreenName, nil
	}
	return cand.Name, nil
}
