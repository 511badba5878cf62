// Package mention finds @handles in comment text and notifies the mentioned
// accounts.
package mention

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/threadpath"
	"github.com/VitaminP8/commentree/internal/user"
)

// TypeMention is the notification type written for mentions.
const TypeMention = "mention"

// A handle starts after '@' that is not glued to a word or another '@', so
// addresses like a@b.com never match. Dots are allowed between name parts.
var handlePattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)`)

type Notification struct {
	ID              string    `json:"id,omitempty"`
	Type            string    `json:"type"`
	SourceAccountID string    `json:"sourceAccountId"`
	TargetAccountID string    `json:"targetAccountId"`
	ThreadID        string    `json:"threadId"`
	CommentPath     string    `json:"commentPath"`
	Snippet         string    `json:"snippet"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Directory maps a handle to an account id. Lookups are case-insensitive and
// unknown handles yield user.ErrNotFound.
type Directory interface {
	FindByUsername(ctx context.Context, handle string) (string, error)
}

// Sink persists notifications.
type Sink interface {
	Append(ctx context.Context, accountID string, n Notification) error
}

// Submission describes a comment that was just written.
type Submission struct {
	AuthorID string
	Address  threadpath.Address
	Text     string
}

// Result of a dispatch. Notified holds account ids, Unresolved and Failed hold
// handles.
type Result struct {
	Notified   []string `json:"notified"`
	Unresolved []string `json:"unresolved"`
	Failed     []string `json:"failed"`
}

// Scan returns the distinct handles mentioned in text in order of first
// appearance. Handles differing only in case count once.
func Scan(text string) []string {
	matches := handlePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		handle := m[1]
		key := strings.ToLower(handle)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, handle)
	}
	return out
}

type Dispatcher struct {
	directory Directory
	sink      Sink
	now       func() time.Time
}

func NewDispatcher(directory Directory, sink Sink) *Dispatcher {
	return &Dispatcher{directory: directory, sink: sink, now: time.Now}
}

// Dispatch notifies every account mentioned in the submission once. It never
// fails: unknown handles and sink errors are reported in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, sub Submission) Result {
	var res Result

	handles := Scan(sub.Text)
	if len(handles) == 0 {
		return res
	}

	path, err := sub.Address.Encode()
	if err != nil {
		log.Warn().Err(err).Msg("mention dispatch skipped, bad comment address")
		res.Failed = handles
		return res
	}
	snippet := comment.Snippet(sub.Text, comment.SnippetLength)

	notified := make(map[string]struct{}, len(handles))
	for _, handle := range handles {
		accountID, err := d.directory.FindByUsername(ctx, handle)
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				log.Warn().Err(err).Str("handle", handle).Msg("mention lookup failed")
			}
			res.Unresolved = append(res.Unresolved, handle)
			continue
		}
		if accountID == "" {
			res.Unresolved = append(res.Unresolved, handle)
			continue
		}
		// сам себя автор не уведомляет, а разные handle одного аккаунта дают одно уведомление
		if accountID == sub.AuthorID {
			continue
		}
		if _, ok := notified[accountID]; ok {
			continue
		}

		n := Notification{
			Type:            TypeMention,
			SourceAccountID: sub.AuthorID,
			TargetAccountID: accountID,
			ThreadID:        sub.Address.ThreadID,
			CommentPath:     path,
			Snippet:         snippet,
			CreatedAt:       d.now().UTC(),
		}
		if err := d.sink.Append(ctx, accountID, n); err != nil {
			log.Warn().Err(err).
				Str("handle", handle).
				Str("account_id", accountID).
				Str("path", path).
				Msg("mention notification not delivered")
			res.Failed = append(res.Failed, handle)
			continue
		}
		notified[accountID] = struct{}{}
		res.Notified = append(res.Notified, accountID)
	}

	log.Debug().
		Str("path", path).
		Int("notified", len(res.Notified)).
		Int("unresolved", len(res.Unresolved)).
		Int("failed", len(res.Failed)).
		Msg("mentions dispatched")
	return res
}

// StoreSink keeps notifications in the document store under
// notifications/{accountId}/items.
type StoreSink struct {
	store document.Store
}

func NewStoreSink(store document.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Append(ctx context.Context, accountID string, n Notification) error {
	if !threadpath.ValidID(accountID) {
		return fmt.Errorf("invalid account id %q", accountID)
	}
	_, err := s.store.Add(ctx, threadpath.NotificationsCollection(accountID), document.Fields{
		"type":            n.Type,
		"sourceAccountId": n.SourceAccountID,
		"targetAccountId": n.TargetAccountID,
		"threadId":        n.ThreadID,
		"commentPath":     n.CommentPath,
		"snippet":         n.Snippet,
		"read":            false,
		"createdAt":       document.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("could not save notification: %w", err)
	}
	return nil
}

// List returns the notifications of an account, oldest first.
func (s *StoreSink) List(ctx context.Context, accountID string) ([]Notification, error) {
	if !threadpath.ValidID(accountID) {
		return nil, fmt.Errorf("invalid account id %q", accountID)
	}
	snaps, err := s.store.List(ctx, threadpath.NotificationsCollection(accountID))
	if err != nil {
		return nil, fmt.Errorf("could not list notifications: %w", err)
	}
	out := make([]Notification, 0, len(snaps))
	for _, snap := range snaps {
		var n Notification
		if err := snap.DataTo(&n); err != nil {
			return nil, err
		}
		n.ID = snap.ID
		out = append(out, n)
	}
	return out, nil
}
