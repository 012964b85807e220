// Package autocopy mirrors posts from tracked accounts, deduplicated
// through a capped list so the same source post is never copied twice.
package autocopy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"petrel/internal/config"
	"petrel/internal/dedup"
	"petrel/internal/logging"
	"petrel/internal/metrics"
	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/sched"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
)

type Runner struct {
	cfg    config.AutoCopyConfig
	sess   *session.Session
	db     *agentstore.DB
	copied *dedup.List
	rnd    *rand.Rand
}

func NewRunner(ctx context.Context, cfg config.AutoCopyConfig, sess *session.Session, db *agentstore.DB) (*Runner, error) {
	copied, err := dedup.LoadList(ctx, db, dedup.Key("autocopy", sess.Username, "copied"), cfg.MaxTracked)
	if err != nil {
		return nil, fmt.Errorf("load copied cache: %w", err)
	}
	return &Runner{
		cfg:    cfg,
		sess:   sess,
		db:     db,
		copied: copied,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// RunOnce picks one tracked account and mirrors its newest qualifying
// post.
func (r *Runner) RunOnce(ctx context.Context) error {
	if len(r.cfg.TargetAccounts) == 0 {
		return nil
	}
	username := r.cfg.TargetAccounts[r.rnd.Intn(len(r.cfg.TargetAccounts))]
	u, err := r.sess.Client.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logging.Warn("copy_target_missing", map[string]any{"username": username})
			return nil
		}
		return err
	}
	posts, err := r.sess.Client.GetUserPosts(ctx, u.ID, 20)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if r.cfg.RequireMedia && len(p.MediaURLs) == 0 {
			continue
		}
		if r.cfg.AvoidDuplicates && r.copied.Has(p.ID) {
			continue
		}
		return r.copy(ctx, username, p)
	}
	logging.Info("copy_no_candidates", map[string]any{"username": username})
	return nil
}

func (r *Runner) copy(ctx context.Context, username string, p model.Post) error {
	res, err := r.sess.Queue.Enqueue(ctx, "copy", func(ctx context.Context) (any, error) {
		return r.sess.Client.CreatePost(ctx, p.Text, "", "")
	})
	if err != nil {
		return err
	}
	published := res.(model.Post)
	now := time.Now().UTC()
	if err := r.copied.Add(ctx, p.ID, model.CopiedPost{
		ID:       published.ID,
		SourceID: p.ID,
		Username: username,
		CopiedAt: now,
	}); err != nil {
		return err
	}
	metrics.IncAction(model.KindCopy)
	if err := r.db.PutAction(ctx, now, model.KindCopy, p.ID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	logging.Info("post_copied", map[string]any{"source": p.ID, "id": published.ID, "from": username})
	return nil
}

// Loop builds the fixed-interval copy loop.
func (r *Runner) Loop() *sched.Loop {
	return sched.NewLoop("autocopy", sched.FixedDelay(time.Duration(r.cfg.IntervalMinutes)*time.Minute), r.RunOnce)
}
