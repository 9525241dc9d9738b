package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/logtrace"
)

// Status describes the observable state of a cached query.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchFunc performs the network operation backing a key.
type FetchFunc func(ctx context.Context) (any, error)

// PollIntervalFunc decides the delay before the next background refresh of a
// key based on the most recently observed value. err is non-nil when the last
// refresh failed at the transport level; the job's own status, not the
// transport outcome, is the sole authority for stopping, so implementations
// normally keep polling while err != nil. Returning 0 disables polling.
type PollIntervalFunc func(value any, err error) time.Duration

// Snapshot is the state of a query as seen by a subscriber.
type Snapshot struct {
	Data   any
	Status Status
	Err    error
}

// call tracks one outstanding network request. Concurrent reads for the same
// key share a call instead of issuing duplicate requests.
type call struct {
	done   chan struct{}
	value  any
	err    error
	seq    uint64
	invGen uint64 // entry invalidation generation at issue time
}

// entry is the cached state for one key.
type entry struct {
	key       Key
	value     any
	err       error
	status    Status
	fetchedAt time.Time
	stale     bool   // set by invalidation
	invGen    uint64 // bumped by every invalidation of this entry
	issued    uint64 // sequence of the most recently issued request
	subs      map[*Subscription]struct{}
	fetch     FetchFunc // retained while observed, for polls and invalidation refreshes
	pollFn    PollIntervalFunc
	timer     *time.Timer
}

// Store is the shared query cache. The entry map and in-flight table are the
// only shared mutable state; every access goes through Store methods under a
// single mutex.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*call
	mounts   int
	logger   zerolog.Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		inflight: make(map[string]*call),
		logger:   logtrace.ComponentLogger("querycache"),
	}
}

// Mount attaches the store to an active consumer scope. Mount is idempotent
// and reference-counted; each Mount must be paired with an Unmount.
func (s *Store) Mount() {
	s.mu.Lock()
	s.mounts++
	s.mu.Unlock()
}

// Unmount detaches one consumer scope. When the reference count reaches zero
// all poll timers are cancelled. Cached values are retained for a future
// mount; in-flight requests are not aborted, their late responses land
// subject to the sequence rule.
func (s *Store) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounts == 0 {
		return
	}
	s.mounts--
	if s.mounts > 0 {
		return
	}
	for _, e := range s.entries {
		e.stopTimerLocked()
	}
}

// Mounted reports whether at least one consumer scope is attached.
func (s *Store) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounts > 0
}

// Fetch returns the value for key, using the cached entry when it is fresh
// within staleTime. A miss or stale hit triggers fn; concurrent fetches for
// the same key share a single outstanding request. ctx cancellation abandons
// the wait but not the request itself.
func (s *Store) Fetch(ctx context.Context, key Key, fn FetchFunc, staleTime time.Duration) (any, error) {
	ck := key.String()
	s.mu.Lock()
	e := s.entryLocked(key)
	if e.freshLocked(staleTime) {
		v := e.value
		s.mu.Unlock()
		return v, nil
	}
	if c, ok := s.inflight[ck]; ok {
		s.mu.Unlock()
		return waitCall(ctx, c)
	}
	c := s.beginCallLocked(e, ck)
	s.mu.Unlock()

	go s.runCall(context.WithoutCancel(ctx), c, e, ck, fn)
	return waitCall(ctx, c)
}

// Refetch forces a fresh request for key, superseding any request already in
// flight. The superseded request's response is discarded when it arrives.
func (s *Store) Refetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	ck := key.String()
	s.mu.Lock()
	e := s.entryLocked(key)
	c := s.beginCallLocked(e, ck)
	s.mu.Unlock()

	go s.runCall(context.WithoutCancel(ctx), c, e, ck, fn)
	return waitCall(ctx, c)
}

// Peek returns the cached value for key without triggering any request.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	if !ok || e.status != StatusSuccess {
		return nil, false
	}
	return e.value, true
}

// Invalidate marks every entry sharing one of the given key prefixes as
// stale. Entries with active subscribers are refreshed immediately;
// unobserved entries are refetched only when they next gain an observer.
func (s *Store) Invalidate(prefixes ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		for _, p := range prefixes {
			if !e.key.HasPrefix(p) {
				continue
			}
			e.stale = true
			e.invGen++
			if len(e.subs) > 0 && e.fetch != nil {
				s.refetchLocked(e)
			}
			break
		}
	}
}

// entryLocked returns the entry for key, creating it if needed.
func (s *Store) entryLocked(key Key) *entry {
	ck := key.String()
	e, ok := s.entries[ck]
	if !ok {
		e = &entry{
			key:    key,
			status: StatusIdle,
			subs:   make(map[*Subscription]struct{}),
		}
		s.entries[ck] = e
	}
	return e
}

func (e *entry) freshLocked(staleTime time.Duration) bool {
	if e.status != StatusSuccess || e.stale {
		return false
	}
	if staleTime <= 0 {
		return false
	}
	return time.Since(e.fetchedAt) < staleTime
}

func (e *entry) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// beginCallLocked registers a new outstanding request for the entry and
// assigns it the next sequence number. Any request already in flight for the
// same key is superseded.
func (s *Store) beginCallLocked(e *entry, ck string) *call {
	e.issued++
	c := &call{done: make(chan struct{}), seq: e.issued, invGen: e.invGen}
	s.inflight[ck] = c
	if e.status != StatusSuccess {
		e.status = StatusLoading
	}
	s.notifyLocked(e)
	return c
}

// runCall executes the request and commits its result. The result is
// discarded when a newer request for the same key was issued while this one
// was in flight; the cache always reflects the most recently issued request.
func (s *Store) runCall(ctx context.Context, c *call, e *entry, ck string, fn FetchFunc) {
	value, err := fn(ctx)

	s.mu.Lock()
	c.value, c.err = value, err
	if cur, ok := s.inflight[ck]; ok && cur == c {
		delete(s.inflight, ck)
	}
	if c.seq == e.issued {
		if err == nil {
			e.value = value
			e.err = nil
			e.status = StatusSuccess
			// an invalidation that arrived while this call was in flight
			// outlives the commit: only a call issued after the mark may
			// clear it
			e.stale = c.invGen != e.invGen
		} else {
			e.err = err
			e.status = StatusError
			s.logger.Debug().Str("key", ck).Err(err).Msg("fetch failed")
		}
		e.fetchedAt = time.Now()
		s.notifyLocked(e)
		s.schedulePollLocked(e)
	}
	close(c.done)
	s.mu.Unlock()
}

// refetchLocked issues a forced background refresh for an observed entry.
func (s *Store) refetchLocked(e *entry) {
	ck := e.key.String()
	c := s.beginCallLocked(e, ck)
	go s.runCall(context.Background(), c, e, ck, e.fetch)
}

// schedulePollLocked arms the entry's poll timer from its interval function.
// A single timer serves every subscriber of the key. The timer is not armed
// when the interval function reports disabled or no subscriber remains.
func (s *Store) schedulePollLocked(e *entry) {
	e.stopTimerLocked()
	if e.pollFn == nil || len(e.subs) == 0 {
		return
	}
	d := e.pollFn(e.value, e.err)
	if d <= 0 {
		return
	}
	e.timer = time.AfterFunc(d, func() {
		s.pollTick(e)
	})
}

func (s *Store) pollTick(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounts == 0 || len(e.subs) == 0 || e.fetch == nil {
		return
	}
	s.refetchLocked(e)
}

func (s *Store) notifyLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := Snapshot{Data: e.value, Status: e.status, Err: e.err}
	for sub := range e.subs {
		sub.push(snap)
	}
}

func waitCall(ctx context.Context, c *call) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
