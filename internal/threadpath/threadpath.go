// Package threadpath builds and parses the canonical address of comment nodes.
//
// Every other package works with Address values; this is the only place where
// store paths are assembled or split.
package threadpath

import (
	"errors"
	"fmt"
	"strings"
)

const (
	separator = "/"

	threadsSegment  = "thread"
	commentsSegment = "comments"
	repliesSegment  = "replies"
	reportsSegment  = "reports"

	globalReportQueue = "globalReportQueue"
	notificationsRoot = "notifications"
	notificationItems = "items"
)

// ErrMalformed is wrapped by every decoding and validation failure.
var ErrMalformed = errors.New("malformed path")

// PathError describes a structural problem with a path or identifier.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformed.Error(), e.Path, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrMalformed }

// Address locates one comment node: the thread, the ancestor chain from the
// thread root (empty for top-level comments) and the node itself.
type Address struct {
	ThreadID  string
	Ancestors []string
	NodeID    string
}

// New validates the parts and returns an Address that owns its ancestor slice.
func New(threadID string, ancestors []string, nodeID string) (Address, error) {
	addr := Address{
		ThreadID:  threadID,
		Ancestors: append([]string(nil), ancestors...),
		NodeID:    nodeID,
	}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Validate checks that every identifier is usable as a path segment.
func (a Address) Validate() error {
	if err := validID(a.ThreadID, "thread id"); err != nil {
		return err
	}
	for _, id := range a.Ancestors {
		if err := validID(id, "ancestor id"); err != nil {
			return err
		}
	}
	return validID(a.NodeID, "node id")
}

// Depth is 0 for top-level comments.
func (a Address) Depth() int { return len(a.Ancestors) }

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.ThreadID == "" && a.NodeID == "" && len(a.Ancestors) == 0
}

// Child returns the address of a direct reply to a.
func (a Address) Child(id string) Address {
	ancestors := make([]string, 0, len(a.Ancestors)+1)
	ancestors = append(ancestors, a.Ancestors...)
	ancestors = append(ancestors, a.NodeID)
	return Address{ThreadID: a.ThreadID, Ancestors: ancestors, NodeID: id}
}

// Parent returns the address of the node a replies to. ok is false for
// top-level comments.
func (a Address) Parent() (Address, bool) {
	if len(a.Ancestors) == 0 {
		return Address{}, false
	}
	last := len(a.Ancestors) - 1
	return Address{
		ThreadID:  a.ThreadID,
		Ancestors: append([]string(nil), a.Ancestors[:last]...),
		NodeID:    a.Ancestors[last],
	}, true
}

// Equal compares addresses segment by segment.
func (a Address) Equal(b Address) bool {
	if a.ThreadID != b.ThreadID || a.NodeID != b.NodeID || len(a.Ancestors) != len(b.Ancestors) {
		return false
	}
	for i := range a.Ancestors {
		if a.Ancestors[i] != b.Ancestors[i] {
			return false
		}
	}
	return true
}

// String is the encoded path, or a placeholder for invalid addresses.
func (a Address) String() string {
	path, err := a.Encode()
	if err != nil {
		return "<invalid address>"
	}
	return path
}

// Encode returns the store path of the node.
func (a Address) Encode() (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a.collection() + separator + a.NodeID, nil
}

// MustEncode is Encode for addresses that were already validated. It panics on
// invalid input: a bad address at this point is a programming error.
func (a Address) MustEncode() string {
	path, err := a.Encode()
	if err != nil {
		panic(err)
	}
	return path
}

// collection is the path of the collection that holds the node.
func (a Address) collection() string {
	if len(a.Ancestors) == 0 {
		return CommentsCollection(a.ThreadID)
	}
	var b strings.Builder
	b.WriteString(CommentsCollection(a.ThreadID))
	b.WriteString(separator)
	b.WriteString(a.Ancestors[0])
	for _, id := range a.Ancestors[1:] {
		b.WriteString(separator + repliesSegment + separator + id)
	}
	b.WriteString(separator + repliesSegment)
	return b.String()
}

// Encode is the functional form of Address.Encode.
func Encode(threadID string, parentPath []string, nodeID string) (string, error) {
	return Address{ThreadID: threadID, Ancestors: parentPath, NodeID: nodeID}.Encode()
}

// Decode parses a node path produced by Encode.
func Decode(path string) (Address, error) {
	segments := strings.Split(path, separator)
	// thread/{t}/comments/{c}[/replies/{r}]*
	if len(segments) < 4 || len(segments)%2 != 0 {
		return Address{}, &PathError{Path: path, Reason: "unexpected number of segments"}
	}
	if segments[0] != threadsSegment {
		return Address{}, &PathError{Path: path, Reason: "must start with " + threadsSegment}
	}
	if segments[2] != commentsSegment {
		return Address{}, &PathError{Path: path, Reason: "third segment must be " + commentsSegment}
	}

	ids := []string{segments[3]}
	for i := 4; i < len(segments); i += 2 {
		if segments[i] != repliesSegment {
			return Address{}, &PathError{Path: path, Reason: fmt.Sprintf("segment %d must be %s", i, repliesSegment)}
		}
		ids = append(ids, segments[i+1])
	}

	addr := Address{
		ThreadID:  segments[1],
		Ancestors: append([]string(nil), ids[:len(ids)-1]...),
		NodeID:    ids[len(ids)-1],
	}
	if err := addr.Validate(); err != nil {
		return Address{}, &PathError{Path: path, Reason: err.Error()}
	}
	return addr, nil
}

// Segments returns the ancestor chain followed by the node id.
func (a Address) Segments() []string {
	out := make([]string, 0, len(a.Ancestors)+1)
	out = append(out, a.Ancestors...)
	return append(out, a.NodeID)
}

// ThreadsCollection holds the thread documents.
func ThreadsCollection() string {
	return threadsSegment
}

// ThreadPath is the document of the thread itself.
func ThreadPath(threadID string) string {
	return threadsSegment + separator + threadID
}

// CommentsCollection holds the top-level comments of a thread.
func CommentsCollection(threadID string) string {
	return ThreadPath(threadID) + separator + commentsSegment
}

// RepliesCollection holds the direct replies to the node at a.
func RepliesCollection(a Address) string {
	return a.MustEncode() + separator + repliesSegment
}

// ReportsCollection holds the report records filed against the node at a.
func ReportsCollection(a Address) string {
	return a.MustEncode() + separator + reportsSegment
}

// GlobalReportQueue holds denormalized copies of every report.
func GlobalReportQueue() string {
	return globalReportQueue
}

// NotificationsCollection holds the notifications of one account.
func NotificationsCollection(accountID string) string {
	return notificationsRoot + separator + accountID + separator + notificationItems
}

// ValidID reports whether id can be used as a path segment.
func ValidID(id string) bool {
	return validID(id, "id") == nil
}

func validID(id, what string) error {
	if id == "" {
		return &PathError{Path: id, Reason: what + " is empty"}
	}
	if strings.Contains(id, separator) {
		return &PathError{Path: id, Reason: what + " contains " + separator}
	}
	return nil
}
