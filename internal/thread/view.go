package thread

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

// View is one viewer's copy of a thread. Reloads may overlap; the result of
// the most recently issued reload wins and older results are dropped.
type View struct {
	loader   *Loader
	threadID string
	viewer   auth.Viewer

	issued atomic.Uint64

	mu         sync.Mutex
	applied    uint64
	showHidden bool
	tree       *Tree
}

func NewView(loader *Loader, threadID string, viewer auth.Viewer) *View {
	return &View{loader: loader, threadID: threadID, viewer: viewer}
}

func (v *View) ThreadID() string { return v.threadID }

// Reload fetches the thread again. A result that arrives after a newer one
// has been applied is discarded.
func (v *View) Reload(ctx context.Context) error {
	token := v.issued.Add(1)

	v.mu.Lock()
	show := v.showHidden
	v.mu.Unlock()

	tree, err := v.loader.Load(ctx, v.threadID, Options{Viewer: v.viewer, ShowHidden: show})

	v.mu.Lock()
	defer v.mu.Unlock()

	if token <= v.applied {
		log.Debug().Str("thread_id", v.threadID).Uint64("token", token).Msg("stale reload discarded")
		return nil
	}
	// неудачная загрузка тоже считается последней: более старый результат уже не нужен
	v.applied = token
	if err != nil {
		return err
	}
	v.tree = tree.WithShowHidden(v.showHidden)
	return nil
}

// SetShowHidden switches the moderation filter without reloading.
func (v *View) SetShowHidden(show bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.showHidden = show
	if v.tree != nil {
		v.tree = v.tree.WithShowHidden(show)
	}
}

// Tree is the current presentation, nil before the first reload.
func (v *View) Tree() *Tree {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tree
}

// Mutate applies fn to the local copy of the node at addr. It reports false
// when the node is not loaded.
func (v *View) Mutate(addr threadpath.Address, fn func(*comment.Node)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tree == nil {
		return false
	}
	node, ok := comment.Find(v.tree.all, addr)
	if !ok {
		return false
	}
	fn(node)
	v.tree = v.tree.WithShowHidden(v.showHidden)
	return true
}

// Watch reloads the view on every change event of its thread until ctx is
// done.
func (v *View) Watch(ctx context.Context, manager subscription.Manager) {
	events, cancel := manager.Subscribe(v.threadID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := v.Reload(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).
					Str("thread_id", v.threadID).
					Str("kind", string(event.Kind)).
					Msg("reload after thread event failed")
			}
		}
	}
}
