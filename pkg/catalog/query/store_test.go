package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetch(calls *atomic.Int32, value any) FetchFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestFetchCaching(t *testing.T) {
	t.Run("FreshHitSkipsNetwork", func(t *testing.T) {
		s := NewStore()
		key := Key{"properties", "theme"}
		var calls atomic.Int32
		fn := countingFetch(&calls, []string{"Health", "Education"})

		v, err := s.Fetch(context.Background(), key, fn, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []string{"Health", "Education"}, v)

		v, err = s.Fetch(context.Background(), key, fn, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []string{"Health", "Education"}, v)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("ZeroStaleTimeAlwaysRefetches", func(t *testing.T) {
		s := NewStore()
		key := Key{"datastore", "imports"}
		var calls atomic.Int32
		fn := countingFetch(&calls, "state")

		_, err := s.Fetch(context.Background(), key, fn, 0)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), key, fn, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("ErrorSurfaced", func(t *testing.T) {
		s := NewStore()
		key := Key{"datasets", "single", "missing"}
		wantErr := errors.New("not found")
		_, err := s.Fetch(context.Background(), key, func(ctx context.Context) (any, error) {
			return nil, wantErr
		}, time.Minute)
		assert.ErrorIs(t, err, wantErr)

		_, ok := s.Peek(key)
		assert.False(t, ok)
	})
}

func TestRequestCoalescing(t *testing.T) {
	s := NewStore()
	key := MustBuildKey("datasets", "search", map[string]any{"keyword": "health"})

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "results", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Fetch(context.Background(), key, fn, time.Minute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let both goroutines reach the in-flight table before releasing
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "results", results[0])
	assert.Equal(t, "results", results[1])
}

func TestLastWriterWins(t *testing.T) {
	s := NewStore()
	key := Key{"datasets", "single", "dataset-123"}

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	slow := func(ctx context.Context) (any, error) {
		close(firstStarted)
		<-releaseFirst
		return "old", nil
	}
	fast := func(ctx context.Context) (any, error) {
		return "new", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// this call is superseded before it resolves; its result is dropped
		s.Fetch(context.Background(), key, slow, time.Minute)
	}()
	<-firstStarted

	v, err := s.Refetch(context.Background(), key, fast)
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(releaseFirst)
	<-done

	// give the stale response a chance to (incorrectly) land
	time.Sleep(50 * time.Millisecond)
	v, ok := s.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestInvalidate(t *testing.T) {
	t.Run("MarkStaleNotEagerRefetch", func(t *testing.T) {
		s := NewStore()
		key := MustBuildKey("datasets", "search", map[string]any{"page": 1})
		var calls atomic.Int32
		fn := countingFetch(&calls, "page-1")

		_, err := s.Fetch(context.Background(), key, fn, time.Hour)
		require.NoError(t, err)

		s.Invalidate(Key{"datasets"})
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load(), "unobserved key must not refetch on invalidation")

		// next explicit read refetches despite the long stale time
		_, err = s.Fetch(context.Background(), key, fn, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("PrefixMarksSubtree", func(t *testing.T) {
		s := NewStore()
		var searchCalls, singleCalls, harvestCalls atomic.Int32
		searchKey := MustBuildKey("datasets", "search", map[string]any{"keyword": "health"})
		singleKey := Key{"datasets", "single", "dataset-123"}
		harvestKey := Key{"harvest", "plans"}

		_, err := s.Fetch(context.Background(), searchKey, countingFetch(&searchCalls, "s"), time.Hour)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), singleKey, countingFetch(&singleCalls, "d"), time.Hour)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), harvestKey, countingFetch(&harvestCalls, "h"), time.Hour)
		require.NoError(t, err)

		s.Invalidate(Key{"datasets"})

		_, err = s.Fetch(context.Background(), searchKey, countingFetch(&searchCalls, "s"), time.Hour)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), singleKey, countingFetch(&singleCalls, "d"), time.Hour)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), harvestKey, countingFetch(&harvestCalls, "h"), time.Hour)
		require.NoError(t, err)

		assert.Equal(t, int32(2), searchCalls.Load())
		assert.Equal(t, int32(2), singleCalls.Load())
		assert.Equal(t, int32(1), harvestCalls.Load(), "unrelated prefix must stay cached")
	})

	t.Run("MarkSurvivesInflightCommit", func(t *testing.T) {
		s := NewStore()
		key := Key{"datasets", "single", "dataset-123"}

		started := make(chan struct{})
		release := make(chan struct{})
		slow := func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "pre-mutation", nil
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Fetch(context.Background(), key, slow, time.Hour)
		}()
		<-started

		// the mark lands while the request is still in flight
		s.Invalidate(Key{"datasets"})
		close(release)
		<-done

		// the in-flight response commits but must not clear the mark
		var calls atomic.Int32
		v, err := s.Fetch(context.Background(), key, countingFetch(&calls, "post-mutation"), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, "post-mutation", v)
		assert.Equal(t, int32(1), calls.Load(), "invalidated key must refetch even after an in-flight commit")
	})

	t.Run("ObservedKeyRefreshesImmediately", func(t *testing.T) {
		s := NewStore()
		s.Mount()
		defer s.Unmount()

		key := Key{"datasets", "single", "dataset-123"}
		var calls atomic.Int32
		sub := s.Subscribe(key, countingFetch(&calls, "v"), SubscribeOptions{Enabled: true, StaleTime: time.Hour})
		defer sub.Close()

		waitForStatus(t, sub, StatusSuccess)
		assert.Equal(t, int32(1), calls.Load())

		s.Invalidate(Key{"datasets"})
		assert.Eventually(t, func() bool {
			return calls.Load() == 2
		}, time.Second, 5*time.Millisecond, "observed key must refresh after invalidation")
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("DisabledIssuesNoCall", func(t *testing.T) {
		s := NewStore()
		s.Mount()
		defer s.Unmount()

		var calls atomic.Int32
		sub := s.Subscribe(Key{"datasets", "single", ""}, countingFetch(&calls, "v"), SubscribeOptions{Enabled: false})
		defer sub.Close()

		time.Sleep(50 * time.Millisecond)
		snap := sub.Snapshot()
		assert.Equal(t, StatusIdle, snap.Status)
		assert.Nil(t, snap.Data)
		assert.NoError(t, snap.Err)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("PanicsWithoutMount", func(t *testing.T) {
		s := NewStore()
		assert.Panics(t, func() {
			s.Subscribe(Key{"datasets"}, countingFetch(&atomic.Int32{}, nil), SubscribeOptions{Enabled: true})
		})
	})

	t.Run("SharedCacheHit", func(t *testing.T) {
		s := NewStore()
		s.Mount()
		defer s.Unmount()

		key := Key{"properties", "values", "theme"}
		var calls atomic.Int32
		fn := countingFetch(&calls, []string{"Health", "Education"})
		opts := SubscribeOptions{Enabled: true, StaleTime: 5 * time.Minute}

		sub1 := s.Subscribe(key, fn, opts)
		defer sub1.Close()
		waitForStatus(t, sub1, StatusSuccess)

		sub2 := s.Subscribe(key, fn, opts)
		defer sub2.Close()
		snap := sub2.Snapshot()
		assert.Equal(t, StatusSuccess, snap.Status)
		assert.Equal(t, []string{"Health", "Education"}, snap.Data)
		assert.Equal(t, int32(1), calls.Load(), "second observer within the staleness window must not hit the network")
	})

	t.Run("RefetchForcesCall", func(t *testing.T) {
		s := NewStore()
		s.Mount()
		defer s.Unmount()

		key := Key{"datasets", "single", "dataset-123"}
		var calls atomic.Int32
		sub := s.Subscribe(key, countingFetch(&calls, "v"), SubscribeOptions{Enabled: true, StaleTime: time.Hour})
		defer sub.Close()
		waitForStatus(t, sub, StatusSuccess)

		sub.Refetch()
		assert.Eventually(t, func() bool {
			return calls.Load() == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("TransportErrorKeepsPreviousData", func(t *testing.T) {
		s := NewStore()
		s.Mount()
		defer s.Unmount()

		key := Key{"harvest", "runs", "run-1"}
		var fail atomic.Bool
		fn := func(ctx context.Context) (any, error) {
			if fail.Load() {
				return nil, errors.New("transport down")
			}
			return "run-state", nil
		}
		sub := s.Subscribe(key, fn, SubscribeOptions{Enabled: true})
		defer sub.Close()
		waitForStatus(t, sub, StatusSuccess)

		fail.Store(true)
		sub.Refetch()
		waitForStatus(t, sub, StatusError)
		snap := sub.Snapshot()
		assert.Equal(t, "run-state", snap.Data, "error state retains last good data")
		assert.Error(t, snap.Err)
	})
}

func waitForStatus(t *testing.T, sub *Subscription, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sub.Snapshot().Status == want
	}, time.Second, 2*time.Millisecond, "subscription never reached status %s", want)
}
