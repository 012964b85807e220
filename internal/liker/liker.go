// Package liker likes substantial comments under popular posts from
// tracked accounts, bounded by a daily cap.
package liker

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
	"petrel/internal/rank"
	"petrel/internal/sched"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
)

type Runner struct {
	cfg   config.AutoLikeConfig
	sess  *session.Session
	db    *agentstore.DB
	liked *dedup.Set
	rnd   *rand.Rand
	nowFn func() time.Time
}

func NewRunner(ctx context.Context, cfg config.AutoLikeConfig, sess *session.Session, db *agentstore.DB, nowFn func() time.Time) (*Runner, error) {
	liked, err := dedup.LoadSet(ctx, db, dedup.Key("autolike", sess.Username, "liked"))
	if err != nil {
		return nil, fmt.Errorf("load liked cache: %w", err)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Runner{
		cfg:   cfg,
		sess:  sess,
		db:    db,
		liked: liked,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn: nowFn,
	}, nil
}

// RunOnce likes up to LikesPerRun qualifying comments on one popular post
// from a tracked account, respecting the daily cap.
func (r *Runner) RunOnce(ctx context.Context) error {
	if len(r.cfg.TargetAccounts) == 0 {
		return nil
	}
	now := r.nowFn().UTC()
	if r.cfg.MaxLikesPerDay > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		n, err := r.db.CountActionsWithin(ctx, dayStart, dayStart.Add(24*time.Hour), model.KindLike)
		if err != nil {
			return err
		}
		if n >= r.cfg.MaxLikesPerDay {
			logging.Info("like_daily_cap", map[string]any{"count": n})
			return nil
		}
	}
	username := r.cfg.TargetAccounts[r.rnd.Intn(len(r.cfg.TargetAccounts))]
	u, err := r.sess.Client.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logging.Warn("like_target_missing", map[string]any{"username": username})
			return nil
		}
		return err
	}
	posts, err := r.sess.Client.GetUserPosts(ctx, u.ID, 20)
	if err != nil {
		return err
	}
	popular, err := rank.PopularPost(posts, r.rnd)
	if err != nil {
		if errors.Is(err, rank.ErrNoCandidates) {
			logging.Info("like_no_popular_post", map[string]any{"username": username})
			return nil
		}
		return err
	}
	comments := rank.Commenters(ctx, r.sess.Client, popular, 100)
	rank.Shuffle(r.rnd, comments)

	likedThisRun := 0
	for _, c := range comments {
		if likedThisRun >= r.cfg.LikesPerRun {
			break
		}
		if len(c.Text) < r.cfg.MinCommentLength || r.liked.Has(c.ID) {
			continue
		}
		if err := r.like(ctx, popular.ID, c); err != nil {
			logging.Error("like_failed", map[string]any{"comment": c.ID, "error": err.Error()})
			continue
		}
		likedThisRun++
	}
	logging.Info("like_run_done", map[string]any{"liked": likedThisRun, "source": popular.ID})
	return nil
}

func (r *Runner) like(ctx context.Context, postID string, c model.Post) error {
	_, err := r.sess.Queue.Enqueue(ctx, "like", func(ctx context.Context) (any, error) {
		return nil, r.sess.Client.Like(ctx, r.sess.Profile.ID, c.ID)
	})
	if err != nil {
		return err
	}
	now := r.nowFn().UTC()
	if err := r.liked.Add(ctx, c.ID, model.LikedComment{
		ID:       c.ID,
		PostID:   postID,
		Username: c.AuthorUsername,
		LikedAt:  now,
	}); err != nil {
		return err
	}
	metrics.IncAction(model.KindLike)
	if err := r.db.PutAction(ctx, now, model.KindLike, c.ID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// Loop builds the fixed-interval like loop.
func (r *Runner) Loop() *sched.Loop {
	return sched.NewLoop("autolike", sched.FixedDelay(time.Duration(r.cfg.IntervalMinutes)*time.Minute), r.RunOnce)
}
