// Package moderation decides comment visibility and permissions. Nothing in
// here performs I/O.
package moderation

import "github.com/VitaminP8/commentree/internal/comment"

// HiddenThreshold is the report count at which a node is hidden.
const HiddenThreshold = 10

type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "hidden"
)

func VisibilityOf(reportCount int) Visibility {
	if reportCount >= HiddenThreshold {
		return Hidden
	}
	return Visible
}

// FilterTree drops hidden nodes together with their replies unless showHidden
// is set. Each reply is judged on its own count. The input is left untouched.
func FilterTree(nodes []*comment.Node, showHidden bool) []*comment.Node {
	out := make([]*comment.Node, 0, len(nodes))
	for _, n := range nodes {
		if !showHidden && VisibilityOf(n.ReportCount) == Hidden {
			continue
		}
		cp := *n
		cp.Replies = FilterTree(n.Replies, showHidden)
		out = append(out, &cp)
	}
	return out
}

// CountHidden is the number of nodes FilterTree would drop, replies of
// dropped nodes included.
func CountHidden(nodes []*comment.Node) int {
	n := 0
	for _, node := range nodes {
		if VisibilityOf(node.ReportCount) == Hidden {
			n++
			comment.Walk(node.Replies, func(*comment.Node) { n++ })
			continue
		}
		n += CountHidden(node.Replies)
	}
	return n
}

func CanDelete(node *comment.Node, viewerID, threadOwnerID string, isGlobalModerator bool) bool {
	if viewerID == "" {
		return false
	}
	return node.AuthorID == viewerID || (threadOwnerID != "" && threadOwnerID == viewerID) || isGlobalModerator
}

// CanEdit allows only the author to change the text.
func CanEdit(node *comment.Node, viewerID string) bool {
	return viewerID != "" && node.AuthorID == viewerID
}
