// Package interactions watches mentions and tracked accounts and replies
// with generated text, gated by the governor and deduplicated through the
// conversation memory store.
package interactions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"petrel/internal/config"
	"petrel/internal/gen"
	"petrel/internal/governor"
	"petrel/internal/logging"
	"petrel/internal/metrics"
	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
	"petrel/internal/thread"
)

const cursorName = "interactions:last_seen"

// maxInactiveSleep caps the sleep while outside active hours so shutdown
// stays responsive.
const maxInactiveSleep = 5 * time.Minute

type Runner struct {
	cfg            config.ActionsConfig
	sess           *session.Session
	db             *agentstore.DB
	gov            *governor.Governor
	generator      gen.Generator
	maxThreadDepth int
	maxPostLength  int
}

func NewRunner(cfg config.ActionsConfig, sess *session.Session, db *agentstore.DB, gov *governor.Governor, g gen.Generator, maxPostLength int) *Runner {
	return &Runner{
		cfg:            cfg,
		sess:           sess,
		db:             db,
		gov:            gov,
		generator:      g,
		maxThreadDepth: thread.DefaultMaxDepth,
		maxPostLength:  maxPostLength,
	}
}

// RunOnce polls mentions and tracked accounts for new posts past the
// cursor and replies to each new candidate. Per-item failures are logged
// and skipped; one bad candidate never aborts the batch.
func (r *Runner) RunOnce(ctx context.Context) error {
	candidates, err := r.gatherCandidates(ctx)
	if err != nil {
		return err
	}
	lastSeen := r.loadCursor(ctx)
	maxSeen := lastSeen
	for _, cand := range candidates {
		id := parseID(cand.ID)
		if id != 0 && id <= lastSeen {
			continue
		}
		if id > maxSeen {
			maxSeen = id
		}
		if cand.AuthorID == r.sess.Profile.ID {
			continue
		}
		if err := r.handleCandidate(ctx, cand); err != nil {
			logging.Error("interaction_failed", map[string]any{"post": cand.ID, "error": err.Error()})
		}
	}
	if maxSeen > lastSeen {
		if err := r.db.SaveCursor(ctx, cursorName, strconv.FormatUint(maxSeen, 10)); err != nil {
			logging.Error("cursor_save_failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

func (r *Runner) gatherCandidates(ctx context.Context) ([]model.Post, error) {
	mentions, err := r.sess.Client.GetMentions(ctx, r.sess.Profile.ID, 20)
	if err != nil {
		return nil, fmt.Errorf("fetch mentions: %w", err)
	}
	out := mentions
	for _, username := range r.cfg.TargetUsers {
		u, err := r.sess.Client.GetUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				logging.Warn("target_user_missing", map[string]any{"username": username})
				continue
			}
			logging.Error("target_user_lookup_failed", map[string]any{"username": username, "error": err.Error()})
			continue
		}
		posts, err := r.sess.Client.GetUserPosts(ctx, u.ID, 10)
		if err != nil {
			logging.Error("target_posts_failed", map[string]any{"username": username, "error": err.Error()})
			continue
		}
		out = append(out, posts...)
	}
	sort.Slice(out, func(i, j int) bool { return parseID(out[i].ID) < parseID(out[j].ID) })
	return out, nil
}

func (r *Runner) handleCandidate(ctx context.Context, cand model.Post) error {
	// Already replied to in a previous run.
	if _, err := r.db.GetMemoryByID(ctx, cand.ID); err == nil {
		return nil
	} else if !errors.Is(err, agentstore.ErrNotFound) {
		return err
	}
	if !r.gov.CanPerform(model.KindReply) {
		logging.Info("reply_governed", map[string]any{"post": cand.ID})
		return nil
	}
	chain, err := thread.Build(ctx, r.sess.Client, r.db, cand, r.maxThreadDepth)
	if err != nil {
		return fmt.Errorf("build thread: %w", err)
	}
	text, err := r.generator.Generate(ctx, replyPrompt(r.sess.Username, chain))
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	text = gen.CleanForPublish(text, r.maxPostLength)
	if text == "" {
		return errors.New("generated reply empty after cleanup")
	}
	res, err := r.sess.Queue.Enqueue(ctx, "reply", func(ctx context.Context) (any, error) {
		return r.sess.Client.CreatePost(ctx, text, cand.ID, "")
	})
	if err != nil {
		return err
	}
	reply := res.(model.Post)
	r.gov.RecordPerformed(model.KindReply)
	metrics.IncAction(model.KindReply)
	if err := r.db.PutAction(ctx, time.Now().UTC(), model.KindReply, cand.ID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	logging.Info("reply_sent", map[string]any{"post": cand.ID, "reply": reply.ID})
	return nil
}

func replyPrompt(username string, chain []model.Post) string {
	out := fmt.Sprintf("You are @%s. Write one short reply to the last post in this conversation. No hashtags.\n", username)
	for _, p := range chain {
		out += fmt.Sprintf("@%s: %s\n", p.AuthorUsername, p.Text)
	}
	return out
}

func (r *Runner) loadCursor(ctx context.Context) uint64 {
	v, err := r.db.LoadCursor(ctx, cursorName)
	if err != nil || v == "" {
		return 0
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}

func parseID(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}

// ProcessActions is one iteration of the long-running action loop: when
// outside active hours it sleeps toward the window opening (capped);
// otherwise it engages up to MaxPerCycle popular candidates from the
// tracked accounts with likes and, when enabled, retweets.
func (r *Runner) ProcessActions(ctx context.Context) (time.Duration, error) {
	now := time.Now()
	if !r.gov.Active(now) {
		wait := r.gov.TimeUntilActive(now)
		if wait > maxInactiveSleep {
			wait = maxInactiveSleep
		}
		logging.Info("actions_inactive", map[string]any{"sleep": wait.String()})
		return wait, nil
	}
	candidates, err := r.gatherCandidates(ctx)
	if err != nil {
		return 0, err
	}
	// Most-engaged first.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LikeCount+candidates[i].RepostCount > candidates[j].LikeCount+candidates[j].RepostCount
	})
	processed := 0
	for _, cand := range candidates {
		if processed >= r.cfg.MaxPerCycle {
			break
		}
		if cand.AuthorID == r.sess.Profile.ID {
			continue
		}
		if _, err := r.db.GetMemoryByID(ctx, cand.ID); err == nil {
			continue
		} else if !errors.Is(err, agentstore.ErrNotFound) {
			return 0, err
		}
		acted := false
		if r.gov.CanPerform(model.KindLike) {
			if err := r.doAction(ctx, model.KindLike, cand); err != nil {
				logging.Error("like_failed", map[string]any{"post": cand.ID, "error": err.Error()})
			} else {
				acted = true
			}
		}
		if r.cfg.EnableRetweets && r.gov.CanPerform(model.KindRetweet) {
			if err := r.doAction(ctx, model.KindRetweet, cand); err != nil {
				logging.Error("retweet_failed", map[string]any{"post": cand.ID, "error": err.Error()})
			} else {
				acted = true
			}
		}
		if acted {
			processed++
			_ = r.db.CreateMemory(ctx, model.Memory{
				ID:        cand.ID,
				RoomID:    cand.ConversationID,
				AuthorID:  cand.AuthorID,
				Text:      cand.Text,
				CreatedAt: cand.CreatedAt,
			})
		}
	}
	return time.Duration(r.cfg.IntervalMinutes) * time.Minute, nil
}

func (r *Runner) doAction(ctx context.Context, kind string, cand model.Post) error {
	_, err := r.sess.Queue.Enqueue(ctx, kind, func(ctx context.Context) (any, error) {
		switch kind {
		case model.KindLike:
			return nil, r.sess.Client.Like(ctx, r.sess.Profile.ID, cand.ID)
		case model.KindRetweet:
			return r.sess.Client.CreatePost(ctx, "", "", cand.ID)
		default:
			return nil, fmt.Errorf("unsupported action kind %q", kind)
		}
	})
	if err != nil {
		return err
	}
	r.gov.RecordPerformed(kind)
	metrics.IncAction(kind)
	if err := r.db.PutAction(ctx, time.Now().UTC(), kind, cand.ID); err != nil {
		logging.Error("action_log_failed", map[string]any{"error": err.Error()})
	}
	return nil
}
