package interaction

import (
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

// likeCommand is the optimistic part of a like toggle: it snapshots the local
// node, applies the toggle and can put the snapshot back.
type likeCommand struct {
	addr      threadpath.Address
	accountID string

	liked   bool
	saved   *comment.Node
	applied bool
}

// apply toggles the local copy. It reports false when there is no local copy
// of the node, in which case liked is left for the caller to decide.
func (c *likeCommand) apply(local LocalState) bool {
	if local == nil {
		return false
	}
	c.applied = local.Mutate(c.addr, func(n *comment.Node) {
		c.saved = n.Clone()
		c.liked = !n.LikedBy(c.accountID)
		n.Likes = toggled(n.Likes, c.accountID, c.liked)
		n.LikeCount = len(n.Likes)
		n.LikedByViewer = c.liked
	})
	return c.applied
}

func (c *likeCommand) rollback(local LocalState) {
	if !c.applied {
		return
	}
	local.Mutate(c.addr, func(n *comment.Node) {
		n.Restore(c.saved)
	})
}

// toggled returns a new like set with accountID added or removed.
func toggled(likes []string, accountID string, add bool) []string {
	out := make([]string, 0, len(likes)+1)
	for _, id := range likes {
		if id != accountID {
			out = append(out, id)
		}
	}
	if add {
		out = append(out, accountID)
	}
	return out
}
