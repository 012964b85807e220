package interactions

import (
	"context"
	"testing"
	"time"

	"petrel/internal/config"
	"petrel/internal/gen"
	"petrel/internal/governor"
	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/queue"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
)

type fakeClient struct {
	mentions []model.Post
	users    map[string]model.User
	posts    map[string][]model.Post

	replies  []string // parent ids replied to
	likes    []string
	retweets []string // quoted ids
}

func (f *fakeClient) GetMentions(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return f.mentions, nil
}

func (f *fakeClient) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	u, ok := f.users[username]
	if !ok {
		return model.User{}, platform.ErrNotFound
	}
	return u, nil
}

func (f *fakeClient) GetUserPosts(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return f.posts[userID], nil
}

func (f *fakeClient) GetPost(ctx context.Context, id string) (model.Post, error) {
	return model.Post{}, platform.ErrNotFound
}

func (f *fakeClient) CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error) {
	if quoteID != "" {
		f.retweets = append(f.retweets, quoteID)
	} else {
		f.replies = append(f.replies, parentID)
	}
	return model.Post{ID: "out", Text: text, ParentID: parentID}, nil
}

func (f *fakeClient) Like(ctx context.Context, userID, postID string) error {
	f.likes = append(f.likes, postID)
	return nil
}

func (f *fakeClient) SearchRecent(ctx context.Context, query string, limit int) ([]model.Post, error) {
	return nil, nil
}
func (f *fakeClient) GetFollowerCount(ctx context.Context, username string) (int, error) {
	return 0, nil
}
func (f *fakeClient) Follow(ctx context.Context, userID, targetID string) error   { return nil }
func (f *fakeClient) Unfollow(ctx context.Context, userID, targetID string) error { return nil }

func setup(t *testing.T, ctx context.Context, client platform.Client, cfg config.ActionsConfig, hours config.ActiveHoursConfig, nowFn func() time.Time) (*Runner, *agentstore.DB) {
	t.Helper()
	db, err := agentstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	q := queue.New(queue.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	go q.Run(ctx)
	sess := &session.Session{Username: "me", Client: client, Queue: q, Profile: model.User{ID: "900", Username: "me"}}
	gov := governor.New(cfg, hours, nowFn)
	return NewRunner(cfg, sess, db, gov, &gen.Noop{Text: "generated reply"}, 280), db
}

func alwaysActive() config.ActiveHoursConfig { return config.ActiveHoursConfig{Start: -1, End: -1} }

func TestRepliesOncePerCandidate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{
		mentions: []model.Post{{ID: "101", AuthorID: "u1", AuthorUsername: "u1", ConversationID: "101", Text: "hi @me"}},
	}
	cfg := config.ActionsConfig{MaxRepliesPerHour: 10}
	r, _ := setup(t, ctx, client, cfg, alwaysActive(), nil)

	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 1 || client.replies[0] != "101" {
		t.Fatalf("expected one reply to 101, got %v", client.replies)
	}
	// Same mention surfacing again must not produce a second reply.
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 1 {
		t.Fatalf("expected no repeat reply, got %v", client.replies)
	}
}

func TestCursorAdvancesPastProcessedIDs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{
		mentions: []model.Post{
			{ID: "105", AuthorID: "u1", ConversationID: "105", Text: "a"},
			{ID: "103", AuthorID: "u2", ConversationID: "103", Text: "b"},
		},
	}
	cfg := config.ActionsConfig{MaxRepliesPerHour: 10}
	r, db := setup(t, ctx, client, cfg, alwaysActive(), nil)

	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	v, err := db.LoadCursor(ctx, cursorName)
	if err != nil || v != "105" {
		t.Fatalf("expected cursor 105, got %q %v", v, err)
	}
	// A stale mention below the cursor is ignored even without a memory.
	client.mentions = []model.Post{{ID: "104", AuthorID: "u3", ConversationID: "104", Text: "late"}}
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 2 {
		t.Fatalf("expected stale mention skipped, got %v", client.replies)
	}
}

func TestOwnPostsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{
		mentions: []model.Post{{ID: "201", AuthorID: "900", ConversationID: "201", Text: "self"}},
	}
	cfg := config.ActionsConfig{MaxRepliesPerHour: 10}
	r, _ := setup(t, ctx, client, cfg, alwaysActive(), nil)
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 0 {
		t.Fatalf("own post must not be replied to, got %v", client.replies)
	}
}

func TestGovernorBlocksReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{
		mentions: []model.Post{
			{ID: "301", AuthorID: "u1", ConversationID: "301", Text: "a"},
			{ID: "302", AuthorID: "u2", ConversationID: "302", Text: "b"},
		},
	}
	cfg := config.ActionsConfig{MaxRepliesPerHour: 1}
	r, _ := setup(t, ctx, client, cfg, alwaysActive(), nil)
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 1 {
		t.Fatalf("hourly cap of 1 should allow exactly one reply, got %v", client.replies)
	}
}

func TestProcessActionsEngagesMostPopular(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{
		users: map[string]model.User{"alice": {ID: "alice-id"}},
		posts: map[string][]model.Post{
			"alice-id": {
				{ID: "401", AuthorID: "alice-id", ConversationID: "401", LikeCount: 2},
				{ID: "402", AuthorID: "alice-id", ConversationID: "402", LikeCount: 50, RepostCount: 10},
				{ID: "403", AuthorID: "alice-id", ConversationID: "403", LikeCount: 5},
			},
		},
	}
	cfg := config.ActionsConfig{
		TargetUsers:     []string{"alice"},
		MaxPerCycle:     1,
		IntervalMinutes: 5,
		MaxLikesPerHour: 20,
		EnableRetweets:  true,
	}
	r, _ := setup(t, ctx, client, cfg, alwaysActive(), nil)

	pause, err := r.ProcessActions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pause != 5*time.Minute {
		t.Fatalf("expected configured interval pause, got %v", pause)
	}
	if len(client.likes) != 1 || client.likes[0] != "402" {
		t.Fatalf("expected the most engaged post liked, got %v", client.likes)
	}
	if len(client.retweets) != 1 || client.retweets[0] != "402" {
		t.Fatalf("expected the same post retweeted, got %v", client.retweets)
	}
	// The engaged post is remembered; the next cycle moves on.
	if _, err := r.ProcessActions(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.likes) != 2 || client.likes[1] != "403" {
		t.Fatalf("expected next most engaged on second cycle, got %v", client.likes)
	}
}

func TestProcessActionsSleepsWhenInactive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{}
	hours := config.ActiveHoursConfig{Start: 9, End: 17, Timezone: "UTC"}
	r, _ := setup(t, ctx, client, config.ActionsConfig{IntervalMinutes: 5}, hours, nil)

	pause, err := r.ProcessActions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Regardless of distance to the window, the sleep is capped.
	if pause <= 0 || pause > 5*time.Minute {
		t.Fatalf("inactive pause out of range: %v", pause)
	}
}
