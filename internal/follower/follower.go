// Package follower grows the account's graph from commenters on popular
// posts and unwinds each follow after a configured number of days.
package follower

import (
	"context"
	"encoding/json"
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
	cfg      config.AutoFollowConfig
	sess     *session.Session
	db       *agentstore.DB
	followed *dedup.Set
	rnd      *rand.Rand
	nowFn    func() time.Time
}

func NewRunner(ctx context.Context, cfg config.AutoFollowConfig, sess *session.Session, db *agentstore.DB, nowFn func() time.Time) (*Runner, error) {
	followed, err := dedup.LoadSet(ctx, db, dedup.Key("autofollow", sess.Username, "followed"))
	if err != nil {
		return nil, fmt.Errorf("load followed cache: %w", err)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Runner{
		cfg:      cfg,
		sess:     sess,
		db:       db,
		followed: followed,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn:    nowFn,
	}, nil
}

// RunOnce executes due unfollows first, then follows new commenters from
// a popular post, up to the per-run quota.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.unfollowDue(ctx)
	return r.followNew(ctx)
}

// unfollowDue scans every followed record and unfollows the expired ones.
// Per-user failures are logged; the scan continues.
func (r *Runner) unfollowDue(ctx context.Context) {
	now := r.nowFn()
	var due []model.FollowedUser
	r.followed.Range(func(id string, meta json.RawMessage) bool {
		var f model.FollowedUser
		if err := json.Unmarshal(meta, &f); err != nil {
			logging.Error("followed_record_corrupt", map[string]any{"user": id, "error": err.Error()})
			return true
		}
		if !f.UnfollowAt.After(now) {
			due = append(due, f)
		}
		return true
	})
	for _, f := range due {
		_, err := r.sess.Queue.Enqueue(ctx, "unfollow", func(ctx context.Context) (any, error) {
			return nil, r.sess.Client.Unfollow(ctx, r.sess.Profile.ID, f.UserID)
		})
		if err != nil {
			logging.Error("unfollow_failed", map[string]any{"user": f.UserID, "error": err.Error()})
			continue
		}
		if err := r.followed.Remove(ctx, f.UserID); err != nil {
			logging.Error("followed_remove_failed", map[string]any{"user": f.UserID, "error": err.Error()})
			continue
		}
		logging.Info("unfollowed", map[string]any{"user": f.UserID, "username": f.Username})
	}
}

func (r *Runner) followNew(ctx context.Context) error {
	if len(r.cfg.TargetAccounts) == 0 {
		return nil
	}
	username := r.cfg.TargetAccounts[r.rnd.Intn(len(r.cfg.TargetAccounts))]
	u, err := r.sess.Client.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logging.Warn("follow_target_missing", map[string]any{"username": username})
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
			logging.Info("follow_no_popular_post", map[string]any{"username": username})
			return nil
		}
		return err
	}
	commenters := rank.Commenters(ctx, r.sess.Client, popular, 100)
	rank.Shuffle(r.rnd, commenters)

	followedThisRun := 0
	for _, c := range commenters {
		if followedThisRun >= r.cfg.UsersPerRun {
			break
		}
		if c.AuthorID == r.sess.Profile.ID || r.followed.Has(c.AuthorID) {
			continue
		}
		if r.cfg.MaxFollowerCount > 0 {
			count, err := r.followerCount(ctx, c)
			if err != nil {
				logging.Error("follower_count_failed", map[string]any{"user": c.AuthorID, "error": err.Error()})
				continue
			}
			if count >= r.cfg.MaxFollowerCount {
				continue
			}
		}
		if err := r.follow(ctx, c); err != nil {
			logging.Error("follow_failed", map[string]any{"user": c.AuthorID, "error": err.Error()})
			continue
		}
		followedThisRun++
	}
	logging.Info("follow_run_done", map[string]any{"followed": followedThisRun, "source": popular.ID})
	return nil
}

func (r *Runner) followerCount(ctx context.Context, c model.Post) (int, error) {
	if c.AuthorUsername == "" {
		return 0, nil
	}
	return r.sess.Client.GetFollowerCount(ctx, c.AuthorUsername)
}

func (r *Runner) follow(ctx context.Context, c model.Post) error {
	_, err := r.sess.Queue.Enqueue(ctx, "follow", func(ctx context.Context) (any, error) {
		return nil, r.sess.Client.Follow(ctx, r.sess.Profile.ID, c.AuthorID)
	})
	if err != nil {
		return err
	}
	now := r.nowFn()
	rec := model.FollowedUser{
		UserID:     c.AuthorID,
		Username:   c.AuthorUsername,
		FollowedAt: now,
		UnfollowAt: now.Add(time.Duration(r.cfg.UnfollowAfterDays) * 24 * time.Hour),
	}
	if err := r.followed.Add(ctx, c.AuthorID, rec); err != nil {
		return err
	}
	metrics.IncAction(model.KindFollow)
	if err := r.db.PutAction(ctx, now, model.KindFollow, c.AuthorID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	logging.Info("followed", map[string]any{"user": c.AuthorID, "unfollow_at": rec.UnfollowAt})
	return nil
}

// Loop builds the fixed-interval follow loop.
func (r *Runner) Loop() *sched.Loop {
	return sched.NewLoop("autofollow", sched.FixedDelay(time.Duration(r.cfg.IntervalMinutes)*time.Minute), r.RunOnce)
}
