package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

var (
	ErrNotFound = errors.New("thread not found")
	ErrExists   = errors.New("thread already exists")
)

// Registry хранит документы тредов: владельца и флаг отключенных комментариев
type Registry struct {
	store document.Store
}

func NewRegistry(store document.Store) *Registry {
	return &Registry{store: store}
}

// Create регистрирует тред. Пустой id - сгенерировать.
func (r *Registry) Create(ctx context.Context, id, ownerID string) (comment.Thread, error) {
	if ownerID == "" {
		return comment.Thread{}, errors.New("thread owner is required")
	}

	fields := document.Fields{
		"ownerId":          ownerID,
		"commentsDisabled": false,
		"createdAt":        document.ServerTimestamp,
	}

	if id == "" {
		newID, err := r.store.Add(ctx, threadpath.ThreadsCollection(), fields)
		if err != nil {
			return comment.Thread{}, fmt.Errorf("could not create thread: %w", err)
		}
		id = newID
	} else {
		if !threadpath.ValidID(id) {
			return comment.Thread{}, &threadpath.PathError{Path: id, Reason: "invalid thread id"}
		}
		_, err := r.store.Get(ctx, threadpath.ThreadPath(id))
		if err == nil {
			return comment.Thread{}, fmt.Errorf("%s: %w", id, ErrExists)
		}
		if !errors.Is(err, document.ErrNotFound) {
			return comment.Thread{}, fmt.Errorf("could not check thread: %w", err)
		}
		if err := r.store.Set(ctx, threadpath.ThreadPath(id), fields); err != nil {
			return comment.Thread{}, fmt.Errorf("could not create thread: %w", err)
		}
	}

	log.Info().Str("thread_id", id).Str("owner_id", ownerID).Msg("thread created")
	return comment.Thread{ID: id, OwnerID: ownerID}, nil
}

func (r *Registry) Get(ctx context.Context, id string) (comment.Thread, error) {
	if !threadpath.ValidID(id) {
		return comment.Thread{}, &threadpath.PathError{Path: id, Reason: "invalid thread id"}
	}

	snap, err := r.store.Get(ctx, threadpath.ThreadPath(id))
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return comment.Thread{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return comment.Thread{}, fmt.Errorf("could not get thread: %w", err)
	}

	var t comment.Thread
	if err := snap.DataTo(&t); err != nil {
		return comment.Thread{}, err
	}
	t.ID = id
	return t, nil
}

// SetCommentsDisabled включает или выключает комментирование треда
func (r *Registry) SetCommentsDisabled(ctx context.Context, id string, disabled bool) error {
	if !threadpath.ValidID(id) {
		return &threadpath.PathError{Path: id, Reason: "invalid thread id"}
	}

	err := r.store.Update(ctx, threadpath.ThreadPath(id), document.Fields{"commentsDisabled": disabled})
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("could not update thread: %w", err)
	}
	return nil
}
