// Package comment holds the discussion domain types shared by the loader,
// the moderation gate and the interaction engine.
package comment

import (
	"time"
	"unicode/utf8"

	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

// Persisted field names of a comment document.
const (
	FieldText       = "text"
	FieldAuthorID   = "authorId"
	FieldCreatedAt  = "createdAt"
	FieldEditedAt   = "editedAt"
	FieldEditCount  = "editCount"
	FieldLikes      = "likes"
	FieldDepth      = "depth"
	FieldParentPath = "parentPath"
	FieldReplyTo    = "replyTo"
)

const SnippetLength = 80

// Thread is the post or event a discussion hangs off.
type Thread struct {
	ID               string `json:"id"`
	OwnerID          string `json:"ownerId"`
	CommentsDisabled bool   `json:"commentsDisabled"`
}

// ReplyTo summarizes the comment a reply answers.
type ReplyTo struct {
	AuthorID string `json:"authorId"`
	Snippet  string `json:"snippet"`
}

// Record is a comment node as stored.
type Record struct {
	Text       string     `json:"text"`
	AuthorID   string     `json:"authorId"`
	CreatedAt  time.Time  `json:"createdAt"`
	EditedAt   *time.Time `json:"editedAt"`
	EditCount  int        `json:"editCount"`
	Likes      []string   `json:"likes"`
	Depth      int        `json:"depth"`
	ParentPath []string   `json:"parentPath"`
	ReplyTo    *ReplyTo   `json:"replyTo,omitempty"`
}

// NewFields returns the document body of a freshly posted comment. The
// creation time is assigned by the store.
func NewFields(authorID, text string, parentPath []string, replyTo *ReplyTo) document.Fields {
	if parentPath == nil {
		parentPath = []string{}
	}
	fields := document.Fields{
		FieldText:       text,
		FieldAuthorID:   authorID,
		FieldCreatedAt:  document.ServerTimestamp,
		FieldEditedAt:   nil,
		FieldEditCount:  0,
		FieldLikes:      []string{},
		FieldDepth:      len(parentPath),
		FieldParentPath: parentPath,
	}
	if replyTo != nil {
		fields[FieldReplyTo] = replyTo
	}
	return fields
}

// Decode reads a comment document.
func Decode(snap *document.Snapshot) (Record, error) {
	var r Record
	if err := snap.DataTo(&r); err != nil {
		return Record{}, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = snap.CreateTime
	}
	return r, nil
}

// LikedBy reports whether accountID is in the like set.
func (r Record) LikedBy(accountID string) bool {
	for _, id := range r.Likes {
		if id == accountID {
			return true
		}
	}
	return false
}

// Snippet shortens text to at most n runes.
func Snippet(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "…"
}

// Node is a hydrated comment ready for display.
type Node struct {
	Record
	Address        threadpath.Address `json:"-"`
	ID             string             `json:"id"`
	Path           string             `json:"path"`
	Author         profile.Profile    `json:"author"`
	AuthorFallback bool               `json:"authorFallback"`
	LikeCount      int                `json:"likeCount"`
	LikedByViewer  bool               `json:"likedByViewer"`
	ReportCount    int                `json:"reportCount"`
	Hidden         bool               `json:"hidden"`
	IsOwn          bool               `json:"isOwn"`
	CanEdit        bool               `json:"canEdit"`
	CanDelete      bool               `json:"canDelete"`
	Degraded       bool               `json:"degraded,omitempty"`
	Replies        []*Node            `json:"replies"`
	ReplyCount     int                `json:"replyCount"`
	HasMoreReplies bool               `json:"hasMoreReplies"`
}

// Clone copies the node's own state. Replies are shared with n.
func (n *Node) Clone() *Node {
	c := *n
	c.Likes = append([]string(nil), n.Likes...)
	return &c
}

// Restore puts back the state captured by Clone, keeping the current replies.
func (n *Node) Restore(saved *Node) {
	replies := n.Replies
	*n = *saved
	n.Likes = append([]string(nil), saved.Likes...)
	n.Replies = replies
}

// Walk visits nodes depth first, parents before replies.
func Walk(nodes []*Node, fn func(*Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Replies, fn)
	}
}

// Find returns the node at addr.
func Find(nodes []*Node, addr threadpath.Address) (*Node, bool) {
	var found *Node
	Walk(nodes, func(n *Node) {
		if found == nil && n.Address.Equal(addr) {
			found = n
		}
	})
	return found, found != nil
}
