package main

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Tag labels cached queries so they can be invalidated together.
type Tag string

const (
	TagBooks   Tag = "books"
	TagBorrows Tag = "borrows"
)

// QueryStatus is the lifecycle position of a cached query.
type QueryStatus string

const (
	StatusIdle    QueryStatus = "idle"
	StatusLoading QueryStatus = "loading"
	StatusSuccess QueryStatus = "success"
	StatusError   QueryStatus = "error"
)

// QueryState is the snapshot delivered to subscribers on every transition.
// Data keeps the last successful result even when a later fetch failed.
type QueryState struct {
	Key       QueryKey    `json:"key"`
	Version   uint64      `json:"version"`
	Status    QueryStatus `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Err       error       `json:"-"`
	Fetching  bool        `json:"fetching"`
	Stale     bool        `json:"stale"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Fetcher loads the data of a query from the remote api.
type Fetcher func(ctx context.Context) (interface{}, error)

// Listener is called on loading, data and error transitions of a query.
type Listener func(QueryState)

// CacheStats holds counters exposed on the ops endpoint.
type CacheStats struct {
	Entries       int    `json:"entries"`
	Subscribers   int    `json:"subscribers"`
	Waiting       int    `json:"waiting"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Fetches       uint64 `json:"fetches"`
	Invalidations uint64 `json:"invalidations"`
	Evictions     uint64 `json:"evictions"`
}

type subscriber struct {
	id     string
	fn     Listener
	mu     sync.Mutex
	last   uint64
	closed atomic.Bool
}

// deliver calls the listener in version order. Older or repeated
// snapshots are dropped and nothing is delivered once closed.
func (s *subscriber) deliver(state QueryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() || (s.last != 0 && state.Version <= s.last) {
		return
	}
	s.last = state.Version
	s.fn(state)
}

type notice struct {
	sub   *subscriber
	state QueryState
}

type cacheEntry struct {
	key         QueryKey
	tags        map[Tag]struct{}
	fetch       Fetcher
	state       QueryState
	hasData     bool
	stale       bool
	generation  uint64
	inflight    int
	waiting     int
	subscribers map[string]*subscriber
	lastUsed    time.Time
}

// QueryCache caches remote query results by key, shares in-flight
// fetches of identical keys and refetches subscribed queries when
// one of their tags is invalidated.
type QueryCache struct {
	logger        *zap.Logger
	clock         TickerClocker
	ids           UIDHandler
	keepUnusedFor time.Duration
	ctx           context.Context
	cancel        context.CancelFunc

	mu      sync.Mutex
	entries map[QueryKey]*cacheEntry
	group   singleflight.Group

	hits          atomic.Uint64
	misses        atomic.Uint64
	fetches       atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64
}

// NewQueryCache provides an empty cache. Entries without subscribers
// become evictable once unused for keepUnusedFor.
func NewQueryCache(logger *zap.Logger, clock TickerClocker, ids UIDHandler, keepUnusedFor time.Duration) *QueryCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &QueryCache{
		logger:        logger,
		clock:         clock,
		ids:           ids,
		keepUnusedFor: keepUnusedFor,
		ctx:           ctx,
		cancel:        cancel,
		entries:       make(map[QueryKey]*cacheEntry),
	}
}

// Close aborts background fetches.
func (c *QueryCache) Close() {
	c.cancel()
}

// Query returns the cached data of key if it is fresh. Otherwise it fetches,
// sharing the network call with any identical query already in flight.
// Canceling ctx only stops waiting, the shared fetch keeps running.
func (c *QueryCache) Query(ctx context.Context, key QueryKey, tags []Tag, fetch Fetcher) (interface{}, error) {
	c.mu.Lock()
	e := c.entryLocked(key, tags, fetch)
	if e.hasData && !e.stale {
		data := e.state.Data
		c.mu.Unlock()
		c.hits.Add(1)
		return data, nil
	}
	c.misses.Add(1)
	ch := c.flightLocked(e)
	e.waiting++
	c.mu.Unlock()

	return c.wait(ctx, e, ch)
}

// Refetch marks key stale and loads it again.
func (c *QueryCache) Refetch(ctx context.Context, key QueryKey, tags []Tag, fetch Fetcher) (interface{}, error) {
	c.mu.Lock()
	e := c.entryLocked(key, tags, fetch)
	e.generation++
	e.stale = true
	ch := c.flightLocked(e)
	e.waiting++
	c.mu.Unlock()

	return c.wait(ctx, e, ch)
}

func (c *QueryCache) wait(ctx context.Context, e *cacheEntry, ch <-chan singleflight.Result) (interface{}, error) {
	defer func() {
		c.mu.Lock()
		e.waiting--
		e.lastUsed = c.clock.Now()
		c.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers listener on key. The current state is delivered at once
// when there is one, and a fetch starts if the entry is empty or stale.
func (c *QueryCache) Subscribe(key QueryKey, tags []Tag, fetch Fetcher, listener Listener) *Subscription {
	sub := &subscriber{id: c.ids.Generate(SubscriptionIDPrefix), fn: listener}

	c.mu.Lock()
	e := c.entryLocked(key, tags, fetch)
	e.subscribers[sub.id] = sub
	snapshot := c.snapshotLocked(e)
	if !e.hasData || e.stale {
		c.flightLocked(e)
	}
	c.mu.Unlock()

	if snapshot.Status != StatusIdle {
		sub.deliver(snapshot)
	}
	return &Subscription{id: sub.id, key: key, cache: c, sub: sub}
}

func (c *QueryCache) unsubscribe(key QueryKey, sub *subscriber) {
	sub.closed.Store(true)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		delete(e.subscribers, sub.id)
		e.lastUsed = c.clock.Now()
	}
	c.mu.Unlock()
}

// Invalidate marks every entry carrying one of tags as stale and
// refetches in background those which have subscribers. A fetch that
// started before the invalidation can no longer mark its entry fresh.
func (c *QueryCache) Invalidate(tags ...Tag) int {
	var notices []notice
	count := 0

	c.mu.Lock()
	for _, e := range c.entries {
		if !e.hasAnyTag(tags) {
			continue
		}
		count++
		e.generation++
		e.stale = true
		notices = append(notices, c.bumpLocked(e)...)
		if len(e.subscribers) > 0 {
			c.flightLocked(e)
		}
	}
	c.mu.Unlock()

	c.invalidations.Add(uint64(count))
	deliver(notices)
	c.logger.Debug("cache: tags invalidated", zap.Any("cache.tags", tags), zap.Int("cache.entries", count))
	return count
}

// Peek returns the current state of key without fetching.
func (c *QueryCache) Peek(key QueryKey) (QueryState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return QueryState{}, false
	}
	return c.snapshotLocked(e), true
}

// Sweep evicts the entries nobody subscribes to, waits on or fetched
// recently. It returns the number of evicted entries.
func (c *QueryCache) Sweep() int {
	now := c.clock.Now()
	evicted := 0
	c.mu.Lock()
	for key, e := range c.entries {
		if len(e.subscribers) > 0 || e.waiting > 0 || e.inflight > 0 {
			continue
		}
		if now.Sub(e.lastUsed) < c.keepUnusedFor {
			continue
		}
		delete(c.entries, key)
		evicted++
	}
	c.mu.Unlock()
	c.evictions.Add(uint64(evicted))
	return evicted
}

// Stats returns a snapshot of the cache counters.
func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	stats := CacheStats{Entries: len(c.entries)}
	for _, e := range c.entries {
		stats.Subscribers += len(e.subscribers)
		stats.Waiting += e.waiting
	}
	c.mu.Unlock()
	stats.Hits = c.hits.Load()
	stats.Misses = c.misses.Load()
	stats.Fetches = c.fetches.Load()
	stats.Invalidations = c.invalidations.Load()
	stats.Evictions = c.evictions.Load()
	return stats
}

func (c *QueryCache) entryLocked(key QueryKey, tags []Tag, fetch Fetcher) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{
			key:         key,
			tags:        make(map[Tag]struct{}, len(tags)),
			state:       QueryState{Key: key, Status: StatusIdle},
			subscribers: make(map[string]*subscriber),
		}
		c.entries[key] = e
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}
	if fetch != nil {
		e.fetch = fetch
	}
	e.lastUsed = c.clock.Now()
	return e
}

// flightLocked joins or starts the fetch of the entry current generation.
func (c *QueryCache) flightLocked(e *cacheEntry) <-chan singleflight.Result {
	gen := e.generation
	fetch := e.fetch
	return c.group.DoChan(string(e.key)+"#"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		c.mu.Lock()
		e.inflight++
		var notices []notice
		if c.isCurrentLocked(e, gen) {
			e.state.Fetching = true
			if !e.hasData {
				e.state.Status = StatusLoading
			}
			notices = c.bumpLocked(e)
		}
		c.mu.Unlock()
		deliver(notices)

		c.fetches.Add(1)
		data, err := fetch(c.ctx)

		c.mu.Lock()
		e.inflight--
		notices = nil
		if c.entries[e.key] == e {
			e.state.Fetching = e.inflight > 0
			if e.generation == gen {
				if err == nil {
					e.state.Data = data
					e.state.Status = StatusSuccess
					e.state.Err = nil
					e.state.UpdatedAt = c.clock.Now()
					e.hasData = true
					e.stale = false
				} else {
					e.state.Status = StatusError
					e.state.Err = err
				}
			}
			notices = c.bumpLocked(e)
		}
		c.mu.Unlock()
		deliver(notices)

		if err != nil {
			c.logger.Warn("cache: fetch failed", zap.String("cache.key", string(e.key)), zap.Error(err))
		}
		return data, err
	})
}

func (c *QueryCache) isCurrentLocked(e *cacheEntry, gen uint64) bool {
	return c.entries[e.key] == e && e.generation == gen
}

func (c *QueryCache) snapshotLocked(e *cacheEntry) QueryState {
	s := e.state
	s.Stale = e.stale
	return s
}

// bumpLocked versions the entry state and prepares one notice per subscriber.
func (c *QueryCache) bumpLocked(e *cacheEntry) []notice {
	e.state.Version++
	if len(e.subscribers) == 0 {
		return nil
	}
	snapshot := c.snapshotLocked(e)
	notices := make([]notice, 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		notices = append(notices, notice{sub: sub, state: snapshot})
	}
	return notices
}

func (e *cacheEntry) hasAnyTag(tags []Tag) bool {
	for _, t := range tags {
		if _, ok := e.tags[t]; ok {
			return true
		}
	}
	return false
}

func deliver(notices []notice) {
	for _, n := range notices {
		n.sub.deliver(n.state)
	}
}

// Subscription is the handle of a registered listener.
type Subscription struct {
	id    string
	key   QueryKey
	cache *QueryCache
	sub   *subscriber
	once  sync.Once
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Key returns the subscribed query key.
func (s *Subscription) Key() QueryKey {
	return s.key
}

// Unsubscribe stops deliveries. Responses arriving later are discarded.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cache.unsubscribe(s.key, s.sub)
	})
}
