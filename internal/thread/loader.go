// Package thread assembles the comment tree of a thread for one viewer.
package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/moderation"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

const (
	DefaultDepthLimit       = 2
	DefaultFetchConcurrency = 8
)

// ProfileResolver never fails; see profile.Hydrator.
type ProfileResolver interface {
	Resolve(ctx context.Context, accountID string) profile.Resolved
	ResolveMany(ctx context.Context, accountIDs []string) map[string]profile.Resolved
}

type ReportCounter interface {
	Count(ctx context.Context, addr threadpath.Address) (int, error)
}

type Options struct {
	Viewer     auth.Viewer
	ShowHidden bool
}

// Tree is a loaded thread. Nodes is already filtered for the viewer.
type Tree struct {
	Thread      comment.Thread  `json:"thread"`
	Nodes       []*comment.Node `json:"comments"`
	HiddenCount int             `json:"hiddenCount"`
	ShowHidden  bool            `json:"showHidden"`
	Degraded    bool            `json:"degraded,omitempty"`

	all []*comment.Node
}

// WithShowHidden re-applies the moderation filter to the unfiltered nodes.
func (t *Tree) WithShowHidden(show bool) *Tree {
	out := *t
	out.ShowHidden = show
	out.Nodes = moderation.FilterTree(t.all, show)
	out.HiddenCount = 0
	if !show {
		out.HiddenCount = moderation.CountHidden(t.all)
	}
	return &out
}

type Loader struct {
	store       document.Store
	threads     *Registry
	profiles    ProfileResolver
	reports     ReportCounter
	depthLimit  int
	concurrency int
}

func NewLoader(store document.Store, profiles ProfileResolver, reports ReportCounter, depthLimit, concurrency int) *Loader {
	if depthLimit < 0 {
		depthLimit = DefaultDepthLimit
	}
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Loader{
		store:       store,
		threads:     NewRegistry(store),
		profiles:    profiles,
		reports:     reports,
		depthLimit:  depthLimit,
		concurrency: concurrency,
	}
}

// Load reads the thread's comments down to the depth limit. Only a failure to
// list the top-level comments fails the load; everything below degrades.
func (l *Loader) Load(ctx context.Context, threadID string, opts Options) (*Tree, error) {
	if !threadpath.ValidID(threadID) {
		return nil, &threadpath.PathError{Path: threadID, Reason: "invalid thread id"}
	}

	t, degraded := l.thread(ctx, threadID)

	snaps, err := l.store.List(ctx, threadpath.CommentsCollection(threadID))
	if err != nil {
		return nil, fmt.Errorf("could not list comments of thread %s: %w", threadID, err)
	}

	w := walk{Loader: l, thread: t, opts: opts}
	nodes := w.level(ctx, snaps, nil, 0)

	tree := &Tree{Thread: t, all: nodes, Degraded: degraded || w.degraded(nodes)}
	return tree.WithShowHidden(opts.ShowHidden), nil
}

// LoadSubtree loads one node and its replies with the same depth budget, for
// "load more" under a node that was cut off.
func (l *Loader) LoadSubtree(ctx context.Context, addr threadpath.Address, opts Options) (*Tree, error) {
	path, err := addr.Encode()
	if err != nil {
		return nil, err
	}

	t, degraded := l.thread(ctx, addr.ThreadID)

	snap, err := l.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, fmt.Errorf("comment %s: %w", path, document.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get comment %s: %w", path, err)
	}

	w := walk{Loader: l, thread: t, opts: opts}
	var nodes []*comment.Node
	if node := w.node(ctx, snap, addr, 0, nil); node != nil {
		nodes = append(nodes, node)
	}

	tree := &Tree{Thread: t, all: nodes, Degraded: degraded || w.degraded(nodes)}
	return tree.WithShowHidden(opts.ShowHidden), nil
}

// thread reads the owner and flags. A missing thread document is not an error:
// the owner is then unknown and only authors and moderators may delete.
func (l *Loader) thread(ctx context.Context, threadID string) (comment.Thread, bool) {
	t, err := l.threads.Get(ctx, threadID)
	switch {
	case err == nil:
		return t, false
	case errors.Is(err, ErrNotFound):
		return comment.Thread{ID: threadID}, false
	default:
		log.Warn().Err(err).Str("thread_id", threadID).Msg("thread document unavailable, owner unknown")
		return comment.Thread{ID: threadID}, true
	}
}

type walk struct {
	*Loader
	thread comment.Thread
	opts   Options
}

// level hydrates siblings concurrently and keeps their store order.
func (w walk) level(ctx context.Context, snaps []*document.Snapshot, parent *threadpath.Address, depth int) []*comment.Node {
	nodes := make([]*comment.Node, len(snaps))

	// авторов уровня подтягиваем одним пакетом, до обхода узлов
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if id, ok := snap.Data[comment.FieldAuthorID].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	var authors map[string]profile.Resolved
	if len(ids) > 0 {
		authors = w.profiles.ResolveMany(ctx, ids)
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, snap := range snaps {
		i, snap := i, snap
		addr := threadpath.Address{ThreadID: w.thread.ID, NodeID: snap.ID}
		if parent != nil {
			addr = parent.Child(snap.ID)
		}
		g.Go(func() error {
			nodes[i] = w.node(ctx, snap, addr, depth, authors)
			return nil
		})
	}
	_ = g.Wait()

	out := nodes[:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// node hydrates one comment. depth is relative to the root of the walk.
func (w walk) node(ctx context.Context, snap *document.Snapshot, addr threadpath.Address, depth int, authors map[string]profile.Resolved) *comment.Node {
	rec, err := comment.Decode(snap)
	if err != nil {
		log.Warn().Err(err).Str("path", snap.Path).Msg("skipping unreadable comment")
		return nil
	}

	n := &comment.Node{
		Record:  rec,
		Address: addr,
		ID:      snap.ID,
		Path:    snap.Path,
		Replies: []*comment.Node{},
	}

	author, ok := authors[rec.AuthorID]
	if !ok {
		author = w.profiles.Resolve(ctx, rec.AuthorID)
	}
	n.Author = author.Profile
	n.AuthorFallback = author.Fallback

	count, err := w.reports.Count(ctx, addr)
	if err != nil {
		log.Warn().Err(err).Str("path", snap.Path).Msg("report count unavailable, treating comment as visible")
		n.Degraded = true
		count = 0
	}
	n.ReportCount = count
	n.Hidden = moderation.VisibilityOf(count) == moderation.Hidden

	viewerID := w.opts.Viewer.ID
	n.LikeCount = len(rec.Likes)
	n.LikedByViewer = viewerID != "" && rec.LikedBy(viewerID)
	n.IsOwn = viewerID != "" && rec.AuthorID == viewerID
	n.CanEdit = moderation.CanEdit(n, viewerID)
	n.CanDelete = moderation.CanDelete(n, viewerID, w.thread.OwnerID, w.opts.Viewer.IsModerator)

	replies := threadpath.RepliesCollection(addr)
	if depth >= w.depthLimit {
		// дальше не спускаемся - только счетчик для "load more"
		total, err := w.store.Count(ctx, replies)
		if err != nil {
			log.Warn().Err(err).Str("path", snap.Path).Msg("reply count unavailable")
			n.Degraded = true
			return n
		}
		n.ReplyCount = total
		n.HasMoreReplies = total > 0
		return n
	}

	snaps, err := w.store.List(ctx, replies)
	if err != nil {
		log.Warn().Err(err).Str("path", snap.Path).Msg("replies unavailable")
		n.Degraded = true
		return n
	}
	n.Replies = w.level(ctx, snaps, &addr, depth+1)
	n.ReplyCount = len(n.Replies)
	return n
}

func (w walk) degraded(nodes []*comment.Node) bool {
	found := false
	comment.Walk(nodes, func(n *comment.Node) {
		if n.Degraded {
			found = true
		}
	})
	return found
}
