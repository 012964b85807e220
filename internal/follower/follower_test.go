package follower

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"petrel/internal/config"
	"petrel/internal/dedup"
	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/queue"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
)

type fakeClient struct {
	users     map[string]model.User
	posts     map[string][]model.Post // by author id
	replies   map[string][]model.Post // by conversation id
	followers map[string]int          // by username

	follows   []string
	unfollows []string
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

func (f *fakeClient) SearchRecent(ctx context.Context, query string, limit int) ([]model.Post, error) {
	for conv, posts := range f.replies {
		if query == "conversation_id:"+conv {
			return posts, nil
		}
	}
	return nil, nil
}

func (f *fakeClient) GetPost(ctx context.Context, id string) (model.Post, error) {
	return model.Post{}, platform.ErrNotFound
}
func (f *fakeClient) GetMentions(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return nil, nil
}
func (f *fakeClient) GetFollowerCount(ctx context.Context, username string) (int, error) {
	return f.followers[username], nil
}
func (f *fakeClient) CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error) {
	return model.Post{}, nil
}
func (f *fakeClient) Like(ctx context.Context, userID, postID string) error { return nil }
func (f *fakeClient) Follow(ctx context.Context, userID, targetID string) error {
	f.follows = append(f.follows, targetID)
	return nil
}
func (f *fakeClient) Unfollow(ctx context.Context, userID, targetID string) error {
	f.unfollows = append(f.unfollows, targetID)
	return nil
}

func newSession(t *testing.T, ctx context.Context, client platform.Client) *session.Session {
	t.Helper()
	q := queue.New(queue.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	go q.Run(ctx)
	return &session.Session{
		Username: "me",
		Client:   client,
		Queue:    q,
		Profile:  model.User{ID: "me-id", Username: "me"},
	}
}

func TestFollowRunQuotaAndFilters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// alice's most replied post, plus quieter ones that never qualify.
	popular := model.Post{ID: "pop", AuthorID: "alice-id", ConversationID: "pop", ReplyCount: 12}
	client := &fakeClient{
		users: map[string]model.User{"alice": {ID: "alice-id", Username: "alice"}},
		posts: map[string][]model.Post{
			"alice-id": {popular, {ID: "q1", AuthorID: "alice-id"}, {ID: "q2", AuthorID: "alice-id"}},
		},
		replies:   map[string][]model.Post{"pop": nil},
		followers: map[string]int{},
	}
	// 8 distinct commenters: c1..c3 already followed, c4/c5 over the
	// follower ceiling, c6..c8 eligible.
	for i := 1; i <= 8; i++ {
		id := fmt.Sprintf("c%d", i)
		client.replies["pop"] = append(client.replies["pop"], model.Post{
			ID: "r" + id, AuthorID: id, AuthorUsername: id, ConversationID: "pop", Text: "reply",
		})
		client.followers[id] = 100
	}
	client.followers["c4"] = 5000
	client.followers["c5"] = 9000

	db, err := agentstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	seed, err := dedup.LoadSet(ctx, db, dedup.Key("autofollow", "me", "followed"))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"c1", "c2", "c3"} {
		rec := model.FollowedUser{UserID: id, UnfollowAt: now.Add(72 * time.Hour)}
		if err := seed.Add(ctx, id, rec); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.AutoFollowConfig{
		TargetAccounts:    []string{"alice"},
		UsersPerRun:       5,
		MaxFollowerCount:  1000,
		UnfollowAfterDays: 7,
	}
	r, err := NewRunner(ctx, cfg, newSession(t, ctx, client), db, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if len(client.follows) != 3 {
		t.Fatalf("expected exactly 3 follows, got %v", client.follows)
	}
	seen := map[string]bool{}
	for _, id := range client.follows {
		seen[id] = true
	}
	for _, id := range []string{"c6", "c7", "c8"} {
		if !seen[id] {
			t.Fatalf("expected %s followed, got %v", id, client.follows)
		}
	}
	// Each follow persists an unwind date days in the future.
	reload, err := dedup.LoadSet(ctx, db, dedup.Key("autofollow", "me", "followed"))
	if err != nil {
		t.Fatal(err)
	}
	if reload.Len() != 6 {
		t.Fatalf("expected 3 seeded + 3 new records, got %d", reload.Len())
	}
	var rec model.FollowedUser
	reload.Range(func(id string, meta json.RawMessage) bool {
		if id == "c6" {
			_ = json.Unmarshal(meta, &rec)
		}
		return true
	})
	if want := now.Add(7 * 24 * time.Hour); !rec.UnfollowAt.Equal(want) {
		t.Fatalf("expected unfollow at %v, got %v", want, rec.UnfollowAt)
	}
}

func TestUnfollowDueRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{users: map[string]model.User{}}
	db, err := agentstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	seed, _ := dedup.LoadSet(ctx, db, dedup.Key("autofollow", "me", "followed"))
	_ = seed.Add(ctx, "old", model.FollowedUser{UserID: "old", UnfollowAt: now.Add(-time.Hour)})
	_ = seed.Add(ctx, "fresh", model.FollowedUser{UserID: "fresh", UnfollowAt: now.Add(48 * time.Hour)})

	cfg := config.AutoFollowConfig{} // no targets: only the unfollow pass runs
	r, err := NewRunner(ctx, cfg, newSession(t, ctx, client), db, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(client.unfollows) != 1 || client.unfollows[0] != "old" {
		t.Fatalf("expected only the expired record unfollowed, got %v", client.unfollows)
	}
	reload, _ := dedup.LoadSet(ctx, db, dedup.Key("autofollow", "me", "followed"))
	if reload.Has("old") || !reload.Has("fresh") {
		t.Fatal("expected expired record removed and fresh record kept")
	}
}
