package sessiongate

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guardianentry/sessiongate/store"
)

// sessionCache is a bounded map from user ID to the last session snapshot
// read from or written to the store. Entries are hints only.
type sessionCache struct {
	entries *lru.Cache[string, *store.Session]
}

func newSessionCache(size int) (*sessionCache, error) {
	entries, err := lru.New[string, *store.Session](size)
	if err != nil {
		return nil, err
	}
	return &sessionCache{entries: entries}, nil
}

func (c *sessionCache) get(userID string) (*store.Session, bool) {
	s, ok := c.entries.Get(userID)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (c *sessionCache) put(s *store.Session) {
	c.entries.Add(s.UserID, s.Clone())
}

func (c *sessionCache) evict(userID string) {
	c.entries.Remove(userID)
}

func (c *sessionCache) len() int {
	return c.entries.Len()
}
