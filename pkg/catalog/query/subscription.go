package query

import (
	"context"
	"sync"
	"time"
)

// SubscribeOptions configures a Subscription. The recognized fields and their
// defaults are fixed: Enabled gates whether any request is issued at all,
// StaleTime controls how long a cached value is served without refetching,
// and PollInterval enables background polling for job-style keys.
type SubscribeOptions struct {
	Enabled      bool
	StaleTime    time.Duration
	PollInterval PollIntervalFunc
}

// DefaultSubscribeOptions returns the baseline options: enabled, with the
// five-minute stale time used for slow-changing catalog metadata. Job-status
// reads deliberately override StaleTime to zero so every observation
// refetches; the two defaults are intentionally different.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{
		Enabled:   true,
		StaleTime: 5 * time.Minute,
	}
}

// Subscription is the binding adapter handed to reactive consumers. It
// reflects the cached state of one key and receives a conflated stream of
// snapshot updates. A disabled subscription stays idle and never issues a
// request.
type Subscription struct {
	store *Store
	key   Key
	entry *entry // nil for disabled subscriptions

	mu      sync.Mutex
	last    Snapshot
	closed  bool
	updates chan Snapshot
}

// Subscribe attaches an observer to key. The fetch function is retained for
// background refreshes while the key remains observed. Subscribe panics when
// the store has no active mount; that is a programmer error in the consumer's
// lifecycle wiring, not a runtime condition.
func (s *Store) Subscribe(key Key, fn FetchFunc, opts SubscribeOptions) *Subscription {
	s.mu.Lock()
	if s.mounts == 0 {
		s.mu.Unlock()
		panic("query: Subscribe called on a store with no active mount")
	}

	sub := &Subscription{
		store:   s,
		key:     key,
		updates: make(chan Snapshot, 1),
	}

	if !opts.Enabled {
		sub.last = Snapshot{Status: StatusIdle}
		s.mu.Unlock()
		return sub
	}

	e := s.entryLocked(key)
	e.subs[sub] = struct{}{}
	e.fetch = fn
	if opts.PollInterval != nil {
		e.pollFn = opts.PollInterval
	}
	sub.entry = e

	if e.freshLocked(opts.StaleTime) {
		sub.last = Snapshot{Data: e.value, Status: e.status, Err: e.err}
		s.schedulePollLocked(e)
		s.mu.Unlock()
		return sub
	}

	ck := key.String()
	if _, ok := s.inflight[ck]; !ok {
		c := s.beginCallLocked(e, ck)
		go s.runCall(context.Background(), c, e, ck, fn)
	}
	sub.last = Snapshot{Data: e.value, Status: e.status, Err: e.err}
	s.mu.Unlock()
	return sub
}

// Snapshot returns the most recent state observed by this subscription.
func (sub *Subscription) Snapshot() Snapshot {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.last
}

// Updates returns a conflated channel of snapshot updates. Slow consumers
// only ever see the latest state; intermediate snapshots are dropped.
func (sub *Subscription) Updates() <-chan Snapshot {
	return sub.updates
}

// Refetch forces a fresh request for the subscribed key, superseding any
// request in flight. It is a no-op for disabled subscriptions.
func (sub *Subscription) Refetch() {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.entry == nil || sub.entry.fetch == nil {
		return
	}
	s.refetchLocked(sub.entry)
}

// Close detaches the observer. When the key's subscriber count reaches zero
// its poll timer is cancelled; an in-flight request is left to finish so a
// late response can still populate the cache for a future subscriber.
func (sub *Subscription) Close() {
	s := sub.store
	s.mu.Lock()
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		s.mu.Unlock()
		return
	}
	sub.closed = true
	sub.mu.Unlock()
	if sub.entry != nil {
		delete(sub.entry.subs, sub)
		if len(sub.entry.subs) == 0 {
			sub.entry.stopTimerLocked()
		}
	}
	s.mu.Unlock()
}

// push delivers a snapshot, replacing any undelivered one.
func (sub *Subscription) push(snap Snapshot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.last = snap
	if sub.closed {
		return
	}
	select {
	case <-sub.updates:
	default:
	}
	select {
	case sub.updates <- snap:
	default:
	}
}
