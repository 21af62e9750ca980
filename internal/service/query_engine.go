package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/certdesk/admin-console/internal/domain/query"
)

// DefaultKeepUnusedFor is how long an entry without subscribers stays cached.
const DefaultKeepUnusedFor = 60 * time.Second

var (
	// ErrEngineClosed is carried by results produced after Close.
	ErrEngineClosed = errors.New("query engine closed")

	// ErrSubscriptionClosed is returned by Wait on a closed subscription.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrCacheReset is carried by subscribed entries whose data was dropped
	// by Reset. RefetchReset starts them again.
	ErrCacheReset = errors.New("cached data was reset")
)

// EngineStats is a point-in-time view of the cache.
type EngineStats struct {
	Entries    int  `json:"entries" yaml:"entries"`
	Subscribed int  `json:"subscribed" yaml:"subscribed"`
	InFlight   int  `json:"in_flight" yaml:"in_flight"`
	Closed     bool `json:"closed" yaml:"closed"`
}

// QueryEngineOption configures a QueryEngine.
type QueryEngineOption func(*QueryEngine)

// WithKeepUnusedFor sets how long unsubscribed entries are kept.
func WithKeepUnusedFor(d time.Duration) QueryEngineOption {
	return func(e *QueryEngine) {
		if d > 0 {
			e.keepUnused = d
		}
	}
}

// WithEngineMetrics records cache activity in m.
func WithEngineMetrics(m *Metrics) QueryEngineOption {
	return func(e *QueryEngine) {
		e.metrics = m
	}
}

// QueryEngine caches query results by key, deduplicates in-flight fetches,
// and refetches or evicts entries when their tags are invalidated.
//
// All entry state lives under one mutex. Fetches run on their own
// goroutines; results are applied under the mutex and published to
// subscribers as whole snapshots.
type QueryEngine struct {
	mu         sync.Mutex
	entries    map[query.Key]*cacheEntry
	keepUnused time.Duration
	logger     *slog.Logger
	metrics    *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type cacheEntry struct {
	key      query.Key
	endpoint string
	args     string
	tags     []query.Tag
	fetch    query.FetchFunc

	state query.Result
	// changed is closed and replaced on every state change.
	changed chan struct{}

	subs           map[*Subscription]struct{}
	inflight       bool
	refetchPending bool
	// generation discards results of fetches started before a reset or eviction.
	generation uint64
	evicted    bool
	gcTimer    *time.Timer
}

// NewQueryEngine creates an empty engine. Close it to stop background work.
func NewQueryEngine(logger *slog.Logger, opts ...QueryEngineOption) *QueryEngine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &QueryEngine{
		entries:    make(map[query.Key]*cacheEntry),
		keepUnused: DefaultKeepUnusedFor,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe joins the entry for def, creating it if needed. A new entry, or
// one that has never succeeded, starts a fetch unless one is in flight.
// The current snapshot is available immediately through Current and Updates.
func (e *QueryEngine) Subscribe(def query.Definition) *Subscription {
	key, args, err := query.BuildKey(def.Endpoint, def.Params)
	if err != nil {
		e.logger.Error("cannot build cache key", "endpoint", def.Endpoint, "error", err)
		return detachedSubscription("", query.Result{Status: query.StatusError, Err: err})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return detachedSubscription(key, query.Result{Status: query.StatusError, Err: ErrEngineClosed})
	}

	ent, existed := e.entries[key]
	if !existed {
		ent = &cacheEntry{
			key:      key,
			endpoint: def.Endpoint,
			args:     args,
			tags:     append([]query.Tag(nil), def.Tags...),
			fetch:    def.Fetch,
			state:    query.Result{Status: query.StatusUninitialized},
			changed:  make(chan struct{}),
			subs:     make(map[*Subscription]struct{}),
		}
		e.entries[key] = ent
		e.metrics.entries(len(e.entries))
		e.logger.Debug("cache entry created", "endpoint", def.Endpoint, "key", key, "args", args)
	}
	if ent.gcTimer != nil {
		ent.gcTimer.Stop()
		ent.gcTimer = nil
	}

	sub := &Subscription{
		engine:  e,
		entry:   ent,
		key:     key,
		updates: make(chan query.Result, 1),
	}
	ent.subs[sub] = struct{}{}

	needsFetch := !ent.inflight &&
		(ent.state.Status == query.StatusUninitialized || ent.state.Status == query.StatusError)
	e.metrics.subscribed(def.Endpoint, existed && !needsFetch)

	if needsFetch {
		e.startFetchLocked(ent)
	} else {
		sub.push(ent.state)
	}
	return sub
}

// Mutate runs m on the caller's goroutine. Mutations are never cached or
// deduplicated. On success the tags in m.Invalidates are invalidated.
func (e *QueryEngine) Mutate(ctx context.Context, m query.Mutation) query.MutationResult {
	res := query.MutationResult{Endpoint: m.Endpoint}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		res.Status = query.StatusError
		res.Err = ErrEngineClosed
		return res
	}

	data, err := safeFetch(ctx, m.Endpoint, m.Do)
	e.metrics.mutated(m.Endpoint, err)
	if err != nil {
		e.logger.Debug("mutation failed", "endpoint", m.Endpoint, "error", err)
		res.Status = query.StatusError
		res.Err = err
		return res
	}

	res.Status = query.StatusSuccess
	res.Data = data
	if len(m.Invalidates) > 0 {
		res.Invalidation = e.InvalidateTags(m.Invalidates...)
	}
	e.logger.Debug("mutation succeeded", "endpoint", m.Endpoint,
		"refetched", res.Invalidation.Refetched, "evicted", res.Invalidation.Evicted)
	return res
}

// InvalidateTags marks every entry providing a matching tag as stale.
// Subscribed entries refetch, or refetch once their in-flight fetch
// completes. Unsubscribed entries are evicted.
func (e *QueryEngine) InvalidateTags(tags ...query.Tag) query.InvalidationReport {
	var report query.InvalidationReport
	if len(tags) == 0 {
		return report
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, ent := range e.entries {
		if !query.Overlaps(tags, ent.tags) {
			continue
		}

		if len(ent.subs) == 0 {
			e.evictLocked(key, ent)
			report.Evicted++
			continue
		}

		report.Refetched++
		e.metrics.refetchedOnInvalidation()
		if ent.inflight {
			ent.refetchPending = true
			continue
		}
		e.startFetchLocked(ent)
	}

	e.metrics.evicted("invalidated", report.Evicted)
	e.metrics.entries(len(e.entries))
	e.logger.Debug("tags invalidated", "tags", tags,
		"refetched", report.Refetched, "evicted", report.Evicted)
	return report
}

// Reset drops all cached data. Unsubscribed entries are removed; subscribed
// entries publish an error snapshot carrying ErrCacheReset and wait for
// RefetchReset or a manual refetch. Results of fetches already in flight are
// discarded.
func (e *QueryEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := 0
	for key, ent := range e.entries {
		if len(ent.subs) == 0 {
			e.evictLocked(key, ent)
			dropped++
			continue
		}
		ent.generation++
		ent.inflight = false
		ent.refetchPending = false
		e.setStateLocked(ent, query.Result{Status: query.StatusError, Err: ErrCacheReset})
	}

	e.metrics.evicted("reset", dropped)
	e.metrics.entries(len(e.entries))
	e.logger.Debug("query cache reset", "dropped", dropped, "kept", len(e.entries))
}

// RefetchReset starts a fetch for every subscribed entry left idle by Reset
// and returns how many were started.
func (e *QueryEngine) RefetchReset() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := 0
	for _, ent := range e.entries {
		if len(ent.subs) == 0 || ent.inflight || !errors.Is(ent.state.Err, ErrCacheReset) {
			continue
		}
		e.startFetchLocked(ent)
		started++
	}
	if started > 0 {
		e.logger.Debug("refetching reset entries", "count", started)
	}
	return started
}

// Stats returns entry counts.
func (e *QueryEngine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := EngineStats{Entries: len(e.entries), Closed: e.closed}
	for _, ent := range e.entries {
		if len(ent.subs) > 0 {
			s.Subscribed++
		}
		if ent.inflight {
			s.InFlight++
		}
	}
	return s
}

// Close cancels in-flight fetches, stops GC timers, and waits for fetch
// goroutines to finish. Further subscriptions carry ErrEngineClosed.
func (e *QueryEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, ent := range e.entries {
		if ent.gcTimer != nil {
			ent.gcTimer.Stop()
			ent.gcTimer = nil
		}
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// startFetchLocked launches a fetch for ent. Caller must hold e.mu and must
// have checked that no fetch is in flight.
func (e *QueryEngine) startFetchLocked(ent *cacheEntry) {
	if e.closed {
		return
	}

	ent.inflight = true
	gen := ent.generation

	next := ent.state
	next.Status = query.StatusLoading
	next.IsFetching = true
	e.setStateLocked(ent, next)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		data, err := safeFetch(e.ctx, ent.endpoint, ent.fetch)
		e.complete(ent, gen, data, err)
	}()
}

// complete applies a fetch result unless the entry was reset or evicted
// since the fetch started.
func (e *QueryEngine) complete(ent *cacheEntry, gen uint64, data any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.fetched(ent.endpoint, err)

	if ent.evicted || ent.generation != gen {
		e.logger.Debug("discarding result of superseded fetch", "endpoint", ent.endpoint, "key", ent.key)
		return
	}
	ent.inflight = false

	next := ent.state
	next.IsFetching = false
	if err != nil {
		// Data from the last success stays visible.
		next.Status = query.StatusError
		next.Err = err
		e.logger.Debug("fetch failed", "endpoint", ent.endpoint, "key", ent.key, "error", err)
	} else {
		next = query.Result{
			Status:      query.StatusSuccess,
			Data:        data,
			HasData:     true,
			FulfilledAt: time.Now(),
		}
	}
	e.setStateLocked(ent, next)

	if !ent.refetchPending {
		return
	}
	ent.refetchPending = false
	if len(ent.subs) > 0 {
		e.startFetchLocked(ent)
		return
	}
	// Invalidated while in flight and abandoned since: the data is stale.
	e.evictLocked(ent.key, ent)
	e.metrics.evicted("invalidated", 1)
	e.metrics.entries(len(e.entries))
}

func (e *QueryEngine) setStateLocked(ent *cacheEntry, next query.Result) {
	ent.state = next
	close(ent.changed)
	ent.changed = make(chan struct{})
	for sub := range ent.subs {
		sub.push(next)
	}
}

func (e *QueryEngine) evictLocked(key query.Key, ent *cacheEntry) {
	if ent.gcTimer != nil {
		ent.gcTimer.Stop()
		ent.gcTimer = nil
	}
	ent.evicted = true
	ent.generation++
	ent.inflight = false
	close(ent.changed)
	ent.changed = make(chan struct{})
	delete(e.entries, key)
}

// release removes sub from its entry and schedules GC when it was the last.
func (e *QueryEngine) release(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.updates)

	ent := sub.entry
	delete(ent.subs, sub)
	close(ent.changed)
	ent.changed = make(chan struct{})

	if len(ent.subs) > 0 || ent.evicted || e.closed {
		return
	}
	ent.gcTimer = time.AfterFunc(e.keepUnused, func() { e.collect(ent) })
}

// collect evicts ent if it is still unused when its GC timer fires.
func (e *QueryEngine) collect(ent *cacheEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ent.evicted || len(ent.subs) > 0 || e.entries[ent.key] != ent {
		return
	}
	e.evictLocked(ent.key, ent)
	e.metrics.evicted("gc", 1)
	e.metrics.entries(len(e.entries))
	e.logger.Debug("cache entry collected", "endpoint", ent.endpoint, "key", ent.key)
}

// safeFetch runs fn, turning a panic into an error.
func safeFetch(ctx context.Context, endpoint string, fn query.FetchFunc) (data any, err error) {
	if fn == nil {
		return nil, fmt.Errorf("%s: no fetch function", endpoint)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic during fetch: %v", endpoint, r)
		}
	}()
	return fn(ctx)
}

// Subscription is one consumer's interest in a cache entry. While any
// subscription is open the entry is kept and refetched on invalidation.
type Subscription struct {
	engine  *QueryEngine
	entry   *cacheEntry
	key     query.Key
	updates chan query.Result
	closed  bool

	// static is the fixed result of a subscription with no entry.
	static *query.Result
	once   sync.Once
}

func detachedSubscription(key query.Key, r query.Result) *Subscription {
	s := &Subscription{
		key:     key,
		updates: make(chan query.Result, 1),
		static:  &r,
	}
	s.updates <- r
	return s
}

// push delivers r, replacing any snapshot the consumer has not read yet.
// Caller must hold the engine mutex.
func (s *Subscription) push(r query.Result) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- r
}

// Key returns the cache key this subscription is attached to.
func (s *Subscription) Key() query.Key {
	return s.key
}

// Current returns the entry's latest snapshot.
func (s *Subscription) Current() query.Result {
	if s.static != nil {
		return *s.static
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.entry.state
}

// Updates delivers snapshots as the entry changes. Only the latest unread
// snapshot is kept. The channel is closed by Close.
func (s *Subscription) Updates() <-chan query.Result {
	return s.updates
}

// Refetch fetches the entry again, or joins the fetch already in flight.
func (s *Subscription) Refetch() {
	if s.static != nil {
		return
	}
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed || s.entry.evicted || s.entry.inflight {
		return
	}
	e.startFetchLocked(s.entry)
}

// Wait blocks until pred accepts the entry's snapshot or ctx is done.
func (s *Subscription) Wait(ctx context.Context, pred func(query.Result) bool) (query.Result, error) {
	if s.static != nil {
		if pred(*s.static) {
			return *s.static, nil
		}
		<-ctx.Done()
		return *s.static, ctx.Err()
	}

	e := s.engine
	for {
		e.mu.Lock()
		closed := s.closed
		state := s.entry.state
		changed := s.entry.changed
		e.mu.Unlock()

		if closed {
			return state, ErrSubscriptionClosed
		}
		if pred(state) {
			return state, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// WaitSettled waits until no fetch is in flight and the entry has a result.
func (s *Subscription) WaitSettled(ctx context.Context) (query.Result, error) {
	return s.Wait(ctx, query.Result.Settled)
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.static != nil {
		s.once.Do(func() { close(s.updates) })
		return
	}
	s.engine.release(s)
}
