// Package report records report events against comment nodes and counts them.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/threadpath"
)

var (
	ErrInvalidReason  = errors.New("invalid report reason")
	ErrDetailsTooLong = errors.New("report details too long")
	ErrTargetNotFound = errors.New("reported comment not found")
	ErrUnauthorized   = errors.New("reporter is required")
)

type Reason string

const (
	ReasonSpam           Reason = "spam"
	ReasonHarassment     Reason = "harassment"
	ReasonHate           Reason = "hate"
	ReasonMisinformation Reason = "misinformation"
	ReasonInappropriate  Reason = "inappropriate"
	ReasonOther          Reason = "other"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonHarassment, ReasonHate, ReasonMisinformation, ReasonInappropriate, ReasonOther:
		return true
	}
	return false
}

const DefaultDetailsMax = 500

// Record is one report event. The per-node copy and the review queue copy
// share this shape.
type Record struct {
	ID         string    `json:"id,omitempty"`
	Reason     Reason    `json:"reason"`
	Details    string    `json:"details,omitempty"`
	ReporterID string    `json:"reporterId"`
	CreatedAt  time.Time `json:"createdAt"`
	ThreadID   string    `json:"threadId"`
	TargetPath string    `json:"targetPath"`
	TargetText string    `json:"targetText"`
}

// Receipt is returned for every report that counts towards moderation.
// QueueErr is set when the review queue copy could not be written.
type Receipt struct {
	ID       string
	QueueErr error
}

type Ledger struct {
	store      document.Store
	detailsMax int
}

func NewLedger(store document.Store, detailsMax int) *Ledger {
	if detailsMax <= 0 {
		detailsMax = DefaultDetailsMax
	}
	return &Ledger{store: store, detailsMax: detailsMax}
}

// Submit writes the report under the node and then into the global review
// queue. The per-node write decides success; a failed queue write is only a
// warning.
func (l *Ledger) Submit(ctx context.Context, addr threadpath.Address, reporterID string, reason Reason, details string) (Receipt, error) {
	if reporterID == "" {
		return Receipt{}, ErrUnauthorized
	}
	if !reason.Valid() {
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	if utf8.RuneCountInString(details) > l.detailsMax {
		return Receipt{}, fmt.Errorf("%w: max %d characters", ErrDetailsTooLong, l.detailsMax)
	}

	path, err := addr.Encode()
	if err != nil {
		return Receipt{}, err
	}

	snap, err := l.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return Receipt{}, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
		}
		return Receipt{}, fmt.Errorf("could not read reported comment: %w", err)
	}
	target, err := comment.Decode(snap)
	if err != nil {
		return Receipt{}, err
	}

	fields := document.Fields{
		"reason":     reason,
		"details":    details,
		"reporterId": reporterID,
		"createdAt":  document.ServerTimestamp,
		"threadId":   addr.ThreadID,
		"targetPath": path,
		"targetText": target.Text,
	}

	id, err := l.store.Add(ctx, threadpath.ReportsCollection(addr), fields)
	if err != nil {
		return Receipt{}, fmt.Errorf("could not save report: %w", err)
	}

	receipt := Receipt{ID: id}
	fields["nodeReportId"] = id
	if _, err := l.store.Add(ctx, threadpath.GlobalReportQueue(), fields); err != nil {
		receipt.QueueErr = err
		log.Warn().Err(err).
			Str("path", path).
			Str("report_id", id).
			Msg("report saved but review queue copy failed")
	}

	log.Info().
		Str("path", path).
		Str("reporter_id", reporterID).
		Str("reason", string(reason)).
		Msg("comment reported")

	return receipt, nil
}

// Count is the number of report events filed against exactly this node.
func (l *Ledger) Count(ctx context.Context, addr threadpath.Address) (int, error) {
	if err := addr.Validate(); err != nil {
		return 0, err
	}
	n, err := l.store.Count(ctx, threadpath.ReportsCollection(addr))
	if err != nil {
		return 0, fmt.Errorf("could not count reports: %w", err)
	}
	return n, nil
}

// Reports lists the report events of one node, oldest first.
func (l *Ledger) Reports(ctx context.Context, addr threadpath.Address) ([]Record, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return l.list(ctx, threadpath.ReportsCollection(addr))
}

// Queue lists the global review queue, oldest first.
func (l *Ledger) Queue(ctx context.Context) ([]Record, error) {
	return l.list(ctx, threadpath.GlobalReportQueue())
}

// Purge removes the per-node reports of a deleted comment. Review queue copies
// are kept for audit.
func (l *Ledger) Purge(ctx context.Context, addr threadpath.Address) error {
	snaps, err := l.store.List(ctx, threadpath.ReportsCollection(addr))
	if err != nil {
		return fmt.Errorf("could not list reports: %w", err)
	}
	for _, snap := range snaps {
		if err := l.store.Delete(ctx, snap.Path); err != nil && !errors.Is(err, document.ErrNotFound) {
			return fmt.Errorf("could not delete report %s: %w", snap.ID, err)
		}
	}
	return nil
}

func (l *Ledger) list(ctx context.Context, collection string) ([]Record, error) {
	snaps, err := l.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("could not list reports: %w", err)
	}
	out := make([]Record, 0, len(snaps))
	for _, snap := range snaps {
		var r Record
		if err := snap.DataTo(&r); err != nil {
			return nil, err
		}
		r.ID = snap.ID
		out = append(out, r)
	}
	return out, nil
}
