// Package interaction applies user mutations to comment nodes: posting,
// liking, editing, deleting and reporting.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/mention"
	"github.com/VitaminP8/commentree/internal/moderation"
	"github.com/VitaminP8/commentree/internal/report"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/thread"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

const DefaultMaxLength = 2000

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("not allowed")
	ErrNotFound         = errors.New("comment not found")
	ErrInvalidText      = errors.New("invalid comment text")
	ErrCommentsDisabled = errors.New("comments are disabled for this thread")
)

// LocalState is the caller's loaded copy of the thread. thread.View
// implements it.
type LocalState interface {
	Mutate(addr threadpath.Address, fn func(*comment.Node)) bool
	Reload(ctx context.Context) error
}

type MentionDispatcher interface {
	Dispatch(ctx context.Context, sub mention.Submission) mention.Result
}

type Config struct {
	MaxLength int
	// CountEdits включает инкремент editCount при каждом сохранении правки
	CountEdits bool
}

type PostResult struct {
	Address  threadpath.Address `json:"-"`
	Path     string             `json:"path"`
	Mentions mention.Result     `json:"mentions"`
}

type Engine struct {
	store    document.Store
	threads  *thread.Registry
	ledger   *report.Ledger
	mentions MentionDispatcher
	events   subscription.Manager
	cfg      Config
}

// NewEngine wires the engine. mentions and events may be nil.
func NewEngine(store document.Store, ledger *report.Ledger, mentions MentionDispatcher, events subscription.Manager, cfg Config) *Engine {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return &Engine{
		store:    store,
		threads:  thread.NewRegistry(store),
		ledger:   ledger,
		mentions: mentions,
		events:   events,
		cfg:      cfg,
	}
}

// Post writes a new comment, top level when parent is nil. Mentions are
// dispatched only after the comment is stored and never fail the post.
func (e *Engine) Post(ctx context.Context, local LocalState, viewer auth.Viewer, threadID string, parent *threadpath.Address, text string) (res PostResult, err error) {
	defer func() {
		e.finish(ctx, local, threadID, subscription.KindPosted, res.Path, viewer.ID, err)
	}()

	if viewer.ID == "" {
		return PostResult{}, ErrUnauthorized
	}
	if err := e.validText(text); err != nil {
		return PostResult{}, err
	}

	t, err := e.threads.Get(ctx, threadID)
	if err != nil {
		return PostResult{}, err
	}
	if t.CommentsDisabled {
		return PostResult{}, ErrCommentsDisabled
	}

	collection := threadpath.CommentsCollection(threadID)
	var ancestors []string
	var replyTo *comment.ReplyTo
	if parent != nil {
		if parent.ThreadID != threadID {
			return PostResult{}, &threadpath.PathError{Path: parent.String(), Reason: "parent belongs to another thread"}
		}
		target, err := e.get(ctx, *parent)
		if err != nil {
			return PostResult{}, err
		}
		collection = threadpath.RepliesCollection(*parent)
		ancestors = parent.Segments()
		replyTo = &comment.ReplyTo{
			AuthorID: target.AuthorID,
			Snippet:  comment.Snippet(target.Text, comment.SnippetLength),
		}
	}

	id, err := e.store.Add(ctx, collection, comment.NewFields(viewer.ID, text, ancestors, replyTo))
	if err != nil {
		return PostResult{}, fmt.Errorf("could not save comment: %w", err)
	}

	addr := threadpath.Address{ThreadID: threadID, NodeID: id}
	if parent != nil {
		addr = parent.Child(id)
	}
	res = PostResult{Address: addr, Path: addr.MustEncode()}

	if e.mentions != nil {
		res.Mentions = e.mentions.Dispatch(ctx, mention.Submission{AuthorID: viewer.ID, Address: addr, Text: text})
	}
	return res, nil
}

// ToggleLike flips accountID in the node's like set. The local copy is
// changed first; if the durable write fails it is put back and the error is
// returned. There is no retry. liked is the membership after the call.
func (e *Engine) ToggleLike(ctx context.Context, local LocalState, addr threadpath.Address, accountID string) (liked bool, err error) {
	path := addr.MustEncode()
	defer func() {
		e.finish(ctx, local, addr.ThreadID, subscription.KindLiked, path, accountID, err)
	}()

	if accountID == "" {
		return false, ErrUnauthorized
	}

	cmd := &likeCommand{addr: addr, accountID: accountID}
	if !cmd.apply(local) {
		rec, err := e.get(ctx, addr)
		if err != nil {
			return false, err
		}
		cmd.liked = !rec.LikedBy(accountID)
	}

	update := document.ArrayRemove(accountID)
	if cmd.liked {
		update = document.ArrayUnion(accountID)
	}
	if err := e.store.Update(ctx, path, document.Fields{comment.FieldLikes: update}); err != nil {
		cmd.rollback(local)
		if errors.Is(err, document.ErrNotFound) {
			return !cmd.liked, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return !cmd.liked, fmt.Errorf("could not save like: %w", err)
	}
	return cmd.liked, nil
}

// Edit replaces the text of the viewer's own comment and stamps editedAt.
func (e *Engine) Edit(ctx context.Context, local LocalState, viewer auth.Viewer, addr threadpath.Address, text string) (err error) {
	path := addr.MustEncode()
	defer func() {
		e.finish(ctx, local, addr.ThreadID, subscription.KindEdited, path, viewer.ID, err)
	}()

	if viewer.ID == "" {
		return ErrUnauthorized
	}
	if err := e.validText(text); err != nil {
		return err
	}

	rec, err := e.get(ctx, addr)
	if err != nil {
		return err
	}
	if !moderation.CanEdit(&comment.Node{Record: rec}, viewer.ID) {
		return ErrForbidden
	}

	updates := document.Fields{
		comment.FieldText:     text,
		comment.FieldEditedAt: document.ServerTimestamp,
	}
	if e.cfg.CountEdits {
		updates[comment.FieldEditCount] = document.Increment(1)
	}
	if err := e.store.Update(ctx, path, updates); err != nil {
		return fmt.Errorf("could not save edit: %w", err)
	}
	return nil
}

// Delete removes a node together with its replies and their reports. The
// permission check happens before anything is written.
func (e *Engine) Delete(ctx context.Context, local LocalState, viewer auth.Viewer, addr threadpath.Address) (err error) {
	path := addr.MustEncode()
	defer func() {
		e.finish(ctx, local, addr.ThreadID, subscription.KindDeleted, path, viewer.ID, err)
	}()

	if viewer.ID == "" {
		return ErrUnauthorized
	}

	rec, err := e.get(ctx, addr)
	if err != nil {
		return err
	}

	var ownerID string
	t, err := e.threads.Get(ctx, addr.ThreadID)
	switch {
	case err == nil:
		ownerID = t.OwnerID
	case errors.Is(err, thread.ErrNotFound):
	default:
		log.Warn().Err(err).Str("thread_id", addr.ThreadID).Msg("thread owner unavailable for delete check")
	}

	if !moderation.CanDelete(&comment.Node{Record: rec}, viewer.ID, ownerID, viewer.IsModerator) {
		return ErrForbidden
	}

	return e.cascade(ctx, addr)
}

// Report files a report against the node for the viewer.
func (e *Engine) Report(ctx context.Context, local LocalState, viewer auth.Viewer, addr threadpath.Address, reason report.Reason, details string) (receipt report.Receipt, err error) {
	path := addr.MustEncode()
	defer func() {
		e.finish(ctx, local, addr.ThreadID, subscription.KindReported, path, viewer.ID, err)
	}()

	if viewer.ID == "" {
		return report.Receipt{}, ErrUnauthorized
	}
	return e.ledger.Submit(ctx, addr, viewer.ID, reason, details)
}

// cascade deletes replies depth first, then the node's reports, then the node.
// Review queue copies stay for audit.
func (e *Engine) cascade(ctx context.Context, addr threadpath.Address) error {
	replies, err := e.store.List(ctx, threadpath.RepliesCollection(addr))
	if err != nil {
		return fmt.Errorf("could not list replies: %w", err)
	}
	for _, snap := range replies {
		if err := e.cascade(ctx, addr.Child(snap.ID)); err != nil {
			return err
		}
	}

	if err := e.ledger.Purge(ctx, addr); err != nil {
		return err
	}

	path := addr.MustEncode()
	if err := e.store.Delete(ctx, path); err != nil && !errors.Is(err, document.ErrNotFound) {
		return fmt.Errorf("could not delete comment %s: %w", path, err)
	}
	return nil
}

func (e *Engine) get(ctx context.Context, addr threadpath.Address) (comment.Record, error) {
	path, err := addr.Encode()
	if err != nil {
		return comment.Record{}, err
	}
	snap, err := e.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return comment.Record{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return comment.Record{}, fmt.Errorf("could not get comment: %w", err)
	}
	return comment.Decode(snap)
}

func (e *Engine) validText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidText)
	}
	if utf8.RuneCountInString(text) > e.cfg.MaxLength {
		return fmt.Errorf("%w: max %d characters", ErrInvalidText, e.cfg.MaxLength)
	}
	return nil
}

// finish publishes the change and reloads the caller's copy, whatever the
// outcome of the mutation.
func (e *Engine) finish(ctx context.Context, local LocalState, threadID string, kind subscription.Kind, path, actorID string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("path", path).Str("actor_id", actorID).Msg("mutation failed")
	} else {
		log.Info().Str("kind", string(kind)).Str("path", path).Str("actor_id", actorID).Msg("mutation applied")
	}

	if e.events != nil && threadpath.ValidID(threadID) {
		e.events.Publish(threadID, subscription.Event{
			ThreadID: threadID,
			Kind:     kind,
			Path:     path,
			ActorID:  actorID,
			Failed:   err != nil,
		})
	}

	if local != nil {
		if rerr := local.Reload(ctx); rerr != nil {
			log.Warn().Err(rerr).Str("thread_id", threadID).Msg("reload after mutation failed")
		}
	}
}
