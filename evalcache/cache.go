// Package evalcache memoizes strong-engine evaluations. Lines explored for
// different tiers reach the same positions often, and depth-limited
// evaluations of a FEN do not change between calls.
package evalcache

import (
	"sync"

	"github.com/cespare/xxhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"puzzle-rater/survival"
	"puzzle-rater/uci"
)

type key struct {
	hash  uint64
	depth int
}

type entry struct {
	fen string
	ev  uci.Evaluation
}

// Cache is a bounded LRU cache in front of an Evaluator. It is safe for
// concurrent use.
type Cache struct {
	inner   survival.Evaluator
	entries *lru.Cache[key, entry]

	mu     sync.Mutex
	hits   int
	misses int
}

var _ survival.Evaluator = (*Cache)(nil)

// New wraps inner. A size of zero or less disables caching.
func New(inner survival.Evaluator, size int) *Cache {
	c := &Cache{inner: inner}
	if size > 0 {
		// lru.New only fails on a non-positive size.
		c.entries, _ = lru.New[key, entry](size)
	}
	return c
}

func (c *Cache) EvaluateBest(fen string, depth int) (uci.Evaluation, error) {
	if c.entries == nil {
		return c.inner.EvaluateBest(fen, depth)
	}
	k := key{hash: xxhash.Sum64String(fen), depth: depth}
	// A hash collision is checked against the stored FEN and treated as a
	// miss.
	if e, ok := c.entries.Get(k); ok && e.fen == fen {
		c.count(true)
		return e.ev, nil
	}
	c.count(false)

	ev, err := c.inner.EvaluateBest(fen, depth)
	if err != nil {
		return ev, err
	}
	c.entries.Add(k, entry{fen: fen, ev: ev})
	return ev, nil
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// Stats returns the hit and miss counts so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// LogStats writes the counters at debug level.
func (c *Cache) LogStats() {
	h, m := c.Stats()
	log.Debug().Int("hits", h).Int("misses", m).Int("size", c.Len()).Msg("eval-cache")
}
