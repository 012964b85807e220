// Package posting is the autonomous post loop: generate, clean, then
// publish directly, hand off for approval, or dry-run log.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"petrel/internal/approval"
	"petrel/internal/config"
	"petrel/internal/gen"
	"petrel/internal/logging"
	"petrel/internal/metrics"
	"petrel/internal/model"
	"petrel/internal/sched"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
)

type Runner struct {
	cfg       config.PostingConfig
	sess      *session.Session
	db        *agentstore.DB
	generator gen.Generator
	// approvals is nil when approval is not required; posts then publish
	// directly.
	approvals *approval.Workflow
}

func NewRunner(cfg config.PostingConfig, sess *session.Session, db *agentstore.DB, g gen.Generator, approvals *approval.Workflow) *Runner {
	return &Runner{cfg: cfg, sess: sess, db: db, generator: g, approvals: approvals}
}

// RunOnce generates one post and routes it. With approval required the
// side effect is deferred to the approval poller.
func (r *Runner) RunOnce(ctx context.Context) error {
	prompt := fmt.Sprintf("Write a single short social post in the voice of @%s. No hashtags, no preamble.", r.sess.Username)
	text, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate post: %w", err)
	}
	text = gen.CleanForPublish(text, r.cfg.MaxPostLength)
	if text == "" {
		return errors.New("generated post empty after cleanup")
	}
	if r.cfg.ApprovalRequired && r.approvals != nil {
		id, err := r.approvals.Submit(ctx, text, r.sess.Username)
		if err != nil {
			return err
		}
		logging.Info("post_pending_approval", map[string]any{"id": id})
		return nil
	}
	return r.publishText(ctx, text)
}

// Publish is the approval workflow's deferred publish hook.
func (r *Runner) Publish(ctx context.Context, p model.PendingPost) error {
	return r.publishText(ctx, p.Text)
}

func (r *Runner) publishText(ctx context.Context, text string) error {
	res, err := r.sess.Queue.Enqueue(ctx, "post", func(ctx context.Context) (any, error) {
		return r.sess.Client.CreatePost(ctx, text, "", "")
	})
	if err != nil {
		return err
	}
	post := res.(model.Post)
	logging.Info("post_published", map[string]any{"id": post.ID, "chars": len(text)})
	metrics.IncAction("post")
	if err := r.db.PutAction(ctx, time.Now().UTC(), "post", post.ID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	_ = r.db.CreateMemory(ctx, model.Memory{
		ID:        post.ID,
		RoomID:    r.sess.Username,
		AuthorID:  r.sess.Profile.ID,
		Text:      text,
		CreatedAt: post.CreatedAt,
	})
	return nil
}

// Loop builds the self-rescheduling post loop with a uniform-random delay
// in the configured interval bounds.
func (r *Runner) Loop() *sched.Loop {
	min := time.Duration(r.cfg.IntervalMinMinutes) * time.Minute
	max := time.Duration(r.cfg.IntervalMaxMinutes) * time.Minute
	l := sched.NewLoop("posting", sched.RandomDelay(min, max), r.RunOnce)
	l.RunAtStart = r.cfg.PostImmediately
	return l
}
