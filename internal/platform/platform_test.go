package platform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"petrel/internal/model"
)

type stubClient struct {
	searchFn func(ctx context.Context, query string, limit int) ([]model.Post, error)
	writes   int
}

func (s *stubClient) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return model.User{ID: "u1", Username: username}, nil
}
func (s *stubClient) GetUserPosts(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return []model.Post{{ID: "p1"}}, nil
}
func (s *stubClient) GetPost(ctx context.Context, id string) (model.Post, error) {
	return model.Post{ID: id}, nil
}
func (s *stubClient) SearchRecent(ctx context.Context, query string, limit int) ([]model.Post, error) {
	if s.searchFn != nil {
		return s.searchFn(ctx, query, limit)
	}
	return nil, nil
}
func (s *stubClient) GetMentions(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return nil, nil
}
func (s *stubClient) GetFollowerCount(ctx context.Context, username string) (int, error) {
	return 42, nil
}
func (s *stubClient) CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error) {
	s.writes++
	return model.Post{}, nil
}
func (s *stubClient) Like(ctx context.Context, userID, postID string) error {
	s.writes++
	return nil
}
func (s *stubClient) Follow(ctx context.Context, userID, targetID string) error {
	s.writes++
	return nil
}
func (s *stubClient) Unfollow(ctx context.Context, userID, targetID string) error {
	s.writes++
	return nil
}

func TestDryRunSkipsWrites(t *testing.T) {
	ctx := context.Background()
	stub := &stubClient{}
	d := NewDryRun(stub)

	p, err := d.CreatePost(ctx, "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.ID, "dry-") {
		t.Fatalf("expected synthetic id, got %q", p.ID)
	}
	p2, _ := d.CreatePost(ctx, "again", "", "")
	if p2.ID == p.ID {
		t.Fatal("synthetic ids must be distinct")
	}
	if err := d.Like(ctx, "u", "p"); err != nil {
		t.Fatal(err)
	}
	if err := d.Follow(ctx, "u", "t"); err != nil {
		t.Fatal(err)
	}
	if err := d.Unfollow(ctx, "u", "t"); err != nil {
		t.Fatal(err)
	}
	if stub.writes != 0 {
		t.Fatalf("writes must not reach the platform, got %d", stub.writes)
	}
	// Reads pass through.
	if n, err := d.GetFollowerCount(ctx, "x"); err != nil || n != 42 {
		t.Fatalf("read should pass through, got %d %v", n, err)
	}
}

func TestSearchWithTimeoutReturnsEmpty(t *testing.T) {
	stub := &stubClient{searchFn: func(ctx context.Context, query string, limit int) ([]model.Post, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	start := time.Now()
	got := SearchWithTimeout(context.Background(), stub, "q", 10, 20*time.Millisecond)
	if got != nil {
		t.Fatalf("expected empty result on timeout, got %v", got)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout did not bound the call")
	}
}

func TestSearchWithTimeoutSwallowsErrors(t *testing.T) {
	stub := &stubClient{searchFn: func(ctx context.Context, query string, limit int) ([]model.Post, error) {
		return nil, errors.New("upstream broken")
	}}
	if got := SearchWithTimeout(context.Background(), stub, "q", 10, time.Second); got != nil {
		t.Fatalf("expected nil on error, got %v", got)
	}
}

func TestSearchWithTimeoutPassesResults(t *testing.T) {
	stub := &stubClient{searchFn: func(ctx context.Context, query string, limit int) ([]model.Post, error) {
		return []model.Post{{ID: "r1"}, {ID: "r2"}}, nil
	}}
	got := SearchWithTimeout(context.Background(), stub, "q", 10, time.Second)
	if len(got) != 2 {
		t.Fatalf("expected 2 posts, got %v", got)
	}
}

// Reference vector from the OAuth 1.0a signing example in the platform's
// developer documentation.
func TestOAuth1Signature(t *testing.T) {
	s := newOAuth1Signer(
		"xvz1evFS4wEEPTGEFPHBog",
		"kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		"370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		"LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	)
	s.nowFn = func() time.Time { return time.Unix(1318622958, 0) }
	s.nonceFn = func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" }

	req, err := http.NewRequest(http.MethodPost, "https://api.twitter.com/1.1/statuses/update.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.sign(req, map[string]string{
		"include_entities": "true",
		"status":           "Hello Ladies + Gentlemen, a signed OAuth request!",
	})
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "OAuth ") {
		t.Fatalf("unexpected header: %q", auth)
	}
	if !strings.Contains(auth, `oauth_signature="tnnArxj06cWHq44gCs1OSKk%2FjLY%3D"`) {
		t.Fatalf("signature mismatch: %q", auth)
	}
}
