// Package approval is the human-in-the-loop gate for generated content:
// a pending record is PENDING until a channel reaction approves or
// rejects it, or it expires after a configured age. All three outcomes
// are terminal; approval is the only one that publishes.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"petrel/internal/dedup"
	"petrel/internal/logging"
	"petrel/internal/metrics"
	"petrel/internal/model"
	"petrel/internal/notify"
	"petrel/internal/store/agentstore"
)

// ErrNotPending is returned when an operation references an id that is
// not in the pending set.
var ErrNotPending = errors.New("approval: not pending")

// DefaultExpiry is how long a record may sit without a decision.
const DefaultExpiry = 24 * time.Hour

// Publisher performs the deferred publish for an approved record.
type Publisher func(ctx context.Context, p model.PendingPost) error

// Store is the key-value persistence for the pending set.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
}

// Workflow drives pending records to a terminal state.
type Workflow struct {
	store    Store
	notifier notify.Notifier
	publish  Publisher
	key      string
	expiry   time.Duration
	nowFn    func() time.Time
}

func New(store Store, notifier notify.Notifier, publish Publisher, username string, expiry time.Duration, nowFn func() time.Time) *Workflow {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Workflow{
		store:    store,
		notifier: notifier,
		publish:  publish,
		key:      dedup.Key("posting", username, "pending"),
		expiry:   expiry,
		nowFn:    nowFn,
	}
}

// Pending returns the durable pending set.
func (w *Workflow) Pending(ctx context.Context) ([]model.PendingPost, error) {
	v, err := w.store.Get(ctx, w.key)
	if err != nil {
		if errors.Is(err, agentstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out []model.PendingPost
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Workflow) savePending(ctx context.Context, records []model.PendingPost) error {
	if len(records) == 0 {
		return w.store.Delete(ctx, w.key)
	}
	b, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return w.store.Set(ctx, w.key, string(b), time.Time{})
}

// Submit posts the approval embed and persists a PENDING record. It
// returns immediately; the decision arrives through PollOnce.
func (w *Workflow) Submit(ctx context.Context, text, roomID string) (string, error) {
	id := uuid.NewString()
	ref, err := w.notifier.Post(ctx, notify.Embed{
		Title:  "Post approval required",
		Text:   text,
		Footer: "react 👍 to approve, ❌ to reject · " + id,
	})
	if err != nil {
		return "", fmt.Errorf("notify approval channel: %w", err)
	}
	records, err := w.Pending(ctx)
	if err != nil {
		return "", err
	}
	records = append(records, model.PendingPost{
		ID:         id,
		Text:       text,
		RoomID:     roomID,
		MessageRef: ref.Timestamp,
		ChannelRef: ref.Channel,
		CreatedAt:  w.nowFn(),
		Status:     model.StatusPending,
	})
	if err := w.savePending(ctx, records); err != nil {
		return "", err
	}
	logging.Info("approval_submitted", map[string]any{"id": id})
	return id, nil
}

// PollOnce advances every pending record one step. Expiry is checked
// first and short-circuits the reaction query for that record. Each
// record yields exactly one terminal notification and one removal;
// approval is the only transition that publishes. A failed publish keeps
// the record pending for the next cycle.
func (w *Workflow) PollOnce(ctx context.Context) error {
	records, err := w.Pending(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	now := w.nowFn()
	kept := records[:0]
	changed := false
	for _, rec := range records {
		ref := notify.MessageRef{Channel: rec.ChannelRef, Timestamp: rec.MessageRef}
		if now.Sub(rec.CreatedAt) > w.expiry {
			if err := w.notifier.Reply(ctx, ref, "Expired without a decision; discarded."); err != nil {
				logging.Error("approval_expiry_notify_failed", map[string]any{"id": rec.ID, "error": err.Error()})
			}
			metrics.Approvals.WithLabelValues("expired").Inc()
			logging.Info("approval_expired", map[string]any{"id": rec.ID})
			changed = true
			continue
		}
		approve, reject, err := w.notifier.Reactions(ctx, ref)
		if err != nil {
			logging.Error("approval_reactions_failed", map[string]any{"id": rec.ID, "error": err.Error()})
			kept = append(kept, rec)
			continue
		}
		switch {
		case approve:
			if err := w.publish(ctx, rec); err != nil {
				logging.Error("approval_publish_failed", map[string]any{"id": rec.ID, "error": err.Error()})
				kept = append(kept, rec)
				continue
			}
			rec.Status = model.StatusApproved
			if err := w.notifier.Reply(ctx, ref, "Approved and published."); err != nil {
				logging.Error("approval_notify_failed", map[string]any{"id": rec.ID, "error": err.Error()})
			}
			metrics.Approvals.WithLabelValues("approved").Inc()
			logging.Info("approval_approved", map[string]any{"id": rec.ID})
			changed = true
		case reject:
			rec.Status = model.StatusRejected
			if err := w.notifier.Reply(ctx, ref, "Rejected; discarded."); err != nil {
				logging.Error("approval_notify_failed", map[string]any{"id": rec.ID, "error": err.Error()})
			}
			metrics.Approvals.WithLabelValues("rejected").Inc()
			logging.Info("approval_rejected", map[string]any{"id": rec.ID})
			changed = true
		default:
			kept = append(kept, rec)
		}
	}
	if !changed {
		return nil
	}
	return w.savePending(ctx, kept)
}

// RunLoop polls on a fixed interval until ctx is done.
func (w *Workflow) RunLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("approval_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := w.PollOnce(ctx); err != nil {
				logging.Error("approval_poll_error", map[string]any{"error": err.Error()})
			}
		}
	}
}
