package profile

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

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	err      error
	delay    time.Duration
	calls    atomic.Int64
}

func (f *fakeStore) GetProfile(ctx context.Context, accountID string) (*Profile, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func TestHydrator_Resolve(t *testing.T) {
	t.Run("Resolves existing profile", func(t *testing.T) {
		store := &fakeStore{profiles: map[string]*Profile{
			"U1": {DisplayName: "Alice", Username: "alice", PhotoURL: "https://img/alice.png"},
		}}
		h := NewHydrator(store)

		r := h.Resolve(context.Background(), "U1")
		assert.False(t, r.Fallback)
		assert.NoError(t, r.Err)
		assert.Equal(t, "Alice", r.Profile.DisplayName)
		assert.Equal(t, "U1", r.Profile.AccountID)
	})

	t.Run("Missing profile yields cached fallback", func(t *testing.T) {
		store := &fakeStore{profiles: map[string]*Profile{}}
		h := NewHydrator(store)

		r := h.Resolve(context.Background(), "ghost")
		assert.True(t, r.Fallback)
		assert.NoError(t, r.Err)
		assert.Equal(t, Fallback("ghost"), r.Profile)

		h.Resolve(context.Background(), "ghost")
		assert.Equal(t, int64(1), store.calls.Load())
	})

	t.Run("Fetch error yields fallback and is not cached", func(t *testing.T) {
		store := &fakeStore{err: errors.New("profile service down")}
		h := NewHydrator(store)

		r := h.Resolve(context.Background(), "U1")
		assert.True(t, r.Fallback)
		assert.Error(t, r.Err)
		assert.Equal(t, FallbackName, r.Profile.DisplayName)
		assert.Empty(t, r.Profile.PhotoURL)

		store.mu.Lock()
		store.err = nil
		store.profiles = map[string]*Profile{"U1": {DisplayName: "Alice"}}
		store.mu.Unlock()

		r = h.Resolve(context.Background(), "U1")
		assert.False(t, r.Fallback)
		assert.Equal(t, "Alice", r.Profile.DisplayName)
	})

	t.Run("Cache is never invalidated", func(t *testing.T) {
		store := &fakeStore{profiles: map[string]*Profile{"U1": {DisplayName: "Alice"}}}
		h := NewHydrator(store)
		h.Resolve(context.Background(), "U1")

		store.mu.Lock()
		store.profiles["U1"] = &Profile{DisplayName: "Alice Renamed"}
		store.mu.Unlock()

		r := h.Resolve(context.Background(), "U1")
		assert.Equal(t, "Alice", r.Profile.DisplayName)
	})
}

func TestHydrator_Concurrent(t *testing.T) {
	t.Run("Concurrent calls for one id share a fetch", func(t *testing.T) {
		store := &fakeStore{
			profiles: map[string]*Profile{"U1": {DisplayName: "Alice"}},
			delay:    50 * time.Millisecond,
		}
		h := NewHydrator(store)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := h.Resolve(context.Background(), "U1")
				assert.Equal(t, "Alice", r.Profile.DisplayName)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), store.calls.Load())
		assert.Equal(t, int64(1), h.Fetches())
	})

	t.Run("Different ids resolve in parallel", func(t *testing.T) {
		profiles := map[string]*Profile{}
		ids := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "A"}
		for _, id := range ids {
			profiles[id] = &Profile{DisplayName: "name-" + id}
		}
		store := &fakeStore{profiles: profiles, delay: 100 * time.Millisecond}
		h := NewHydrator(store)

		start := time.Now()
		out := h.ResolveMany(context.Background(), ids)
		elapsed := time.Since(start)

		require.Len(t, out, 10)
		assert.Equal(t, "name-C", out["C"].Profile.DisplayName)
		assert.Equal(t, int64(10), store.calls.Load())
		// десять последовательных запросов заняли бы секунду
		assert.Less(t, elapsed, 600*time.Millisecond)
	})
}
