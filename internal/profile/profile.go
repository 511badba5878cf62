// Package profile resolves author identifiers to current display profiles.
package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrNotFound = errors.New("profile not found")

// FallbackName is shown for authors whose profile cannot be resolved.
const FallbackName = "Deleted user"

type Profile struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	PhotoURL    string `json:"photoUrl"`
}

// Fallback is the deterministic profile used when resolution fails.
func Fallback(accountID string) Profile {
	return Profile{AccountID: accountID, DisplayName: FallbackName}
}

// Store is the external profile source.
type Store interface {
	GetProfile(ctx context.Context, accountID string) (*Profile, error)
}

// Resolved carries the profile and whether the fallback was used. Err is set
// when the fallback was caused by a fetch failure rather than a missing record.
type Resolved struct {
	Profile  Profile
	Fallback bool
	Err      error
}

// Hydrator resolves profiles with in-flight de-duplication and a process
// lifetime cache. Found and missing profiles are cached; fetch errors are not.
type Hydrator struct {
	store Store
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]Resolved

	fetches int64
}

func NewHydrator(store Store) *Hydrator {
	return &Hydrator{
		store: store,
		cache: make(map[string]Resolved),
	}
}

// Resolve never fails: on error or absence it returns the fallback profile.
func (h *Hydrator) Resolve(ctx context.Context, accountID string) Resolved {
	if r, ok := h.cached(accountID); ok {
		return r
	}

	v, _, _ := h.group.Do(accountID, func() (interface{}, error) {
		if r, ok := h.cached(accountID); ok {
			return r, nil
		}
		r := h.fetch(ctx, accountID)
		if r.Err == nil {
			h.mu.Lock()
			h.cache[accountID] = r
			h.mu.Unlock()
		}
		return r, nil
	})
	return v.(Resolved)
}

// ResolveMany resolves distinct ids concurrently.
func (h *Hydrator) ResolveMany(ctx context.Context, accountIDs []string) map[string]Resolved {
	out := make(map[string]Resolved, len(accountIDs))
	seen := make(map[string]struct{}, len(accountIDs))
	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		id := id
		g.Go(func() error {
			r := h.Resolve(ctx, id)
			mu.Lock()
			out[id] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Fetches is the number of calls made to the underlying store.
func (h *Hydrator) Fetches() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fetches
}

func (h *Hydrator) cached(accountID string) (Resolved, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.cache[accountID]
	return r, ok
}

func (h *Hydrator) fetch(ctx context.Context, accountID string) Resolved {
	h.mu.Lock()
	h.fetches++
	h.mu.Unlock()

	p, err := h.store.GetProfile(ctx, accountID)
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && p == nil):
		return Resolved{Profile: Fallback(accountID), Fallback: true}
	case err != nil:
		log.Warn().Err(err).Str("account_id", accountID).Msg("profile fetch failed, using fallback")
		return Resolved{Profile: Fallback(accountID), Fallback: true, Err: err}
	}

	resolved := *p
	resolved.AccountID = accountID
	return Resolved{Profile: resolved}
}
