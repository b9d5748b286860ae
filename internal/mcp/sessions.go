package mcp

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/composecomplete/internal/autocomplete"
)

// session is one compose view driven through the complete tool
type session struct {
	id string

	// mu serializes completions within the session
	mu         sync.Mutex
	controller *autocomplete.Controller
}

// sessionTable keeps the most recently used sessions. Evicted sessions have
// their controller closed, which disposes their result set.
type sessionTable struct {
	cache *lru.Cache[string, *session]
}

func newSessionTable(size int) (*sessionTable, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.NewWithEvict[string, *session](size, func(_ string, sess *session) {
		sess.controller.Close()
	})
	if err != nil {
		return nil, err
	}
	return &sessionTable{cache: cache}, nil
}

// create registers a new session around c
func (t *sessionTable) create(c *autocomplete.Controller) *session {
	sess := &session{id: uuid.NewString(), controller: c}
	t.cache.Add(sess.id, sess)
	return sess
}

func (t *sessionTable) get(id string) (*session, bool) {
	return t.cache.Get(id)
}

// end removes and closes the session; it reports whether it existed
func (t *sessionTable) end(id string) bool {
	return t.cache.Remove(id)
}

func (t *sessionTable) len() int {
	return t.cache.Len()
}

func (t *sessionTable) closeAll() {
	t.cache.Purge()
}
