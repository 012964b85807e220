package platform

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"petrel/internal/logging"
	"petrel/internal/model"
)

// DryRun wraps a Client: reads pass through, writes are logged and skipped.
// The full decision pipeline upstream runs unchanged; only the
// side-effecting platform calls are substituted.
type DryRun struct {
	Client
	seq atomic.Int64
}

func NewDryRun(c Client) *DryRun { return &DryRun{Client: c} }

func (d *DryRun) CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error) {
	logging.Info("dry_run_post", map[string]any{"text": text, "parent": parentID, "quote": quoteID})
	return model.Post{
		ID:        fmt.Sprintf("dry-%d", d.seq.Add(1)),
		Text:      text,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (d *DryRun) Like(ctx context.Context, userID, postID string) error {
	logging.Info("dry_run_like", map[string]any{"post": postID})
	return nil
}

func (d *DryRun) Follow(ctx context.Context, userID, targetID string) error {
	logging.Info("dry_run_follow", map[string]any{"target": targetID})
	return nil
}

func (d *DryRun) Unfollow(ctx context.Context, userID, targetID string) error {
	logging.Info("dry_run_unfollow", map[string]any{"target": targetID})
	return nil
}
