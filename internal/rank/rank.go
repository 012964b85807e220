// Package rank selects engagement targets by post popularity.
package rank

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"petrel/internal/model"
	"petrel/internal/platform"
)

// ErrNoCandidates is returned when no post qualifies.
var ErrNoCandidates = errors.New("rank: no candidate posts")

// topSample bounds the random pick: one of the five most-replied posts,
// for diversity over a strict greedy choice.
const topSample = 5

// PopularPost picks one post from those with at least one reply: sort
// descending by reply count, then sample uniformly from the top 5.
func PopularPost(posts []model.Post, rnd *rand.Rand) (model.Post, error) {
	candidates := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if p.ReplyCount > 0 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return model.Post{}, ErrNoCandidates
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReplyCount > candidates[j].ReplyCount
	})
	n := topSample
	if len(candidates) < n {
		n = len(candidates)
	}
	return candidates[rnd.Intn(n)], nil
}

// Commenters returns the posts replying within a post's conversation,
// excluding the original author's own.
func Commenters(ctx context.Context, client platform.Client, post model.Post, limit int) []model.Post {
	convID := post.ConversationID
	if convID == "" {
		convID = post.ID
	}
	replies := platform.SearchWithTimeout(ctx, client, "conversation_id:"+convID, limit, 0)
	out := make([]model.Post, 0, len(replies))
	seen := make(map[string]struct{})
	for _, r := range replies {
		if r.AuthorID == "" || r.AuthorID == post.AuthorID {
			continue
		}
		if _, ok := seen[r.AuthorID]; ok {
			continue
		}
		seen[r.AuthorID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Shuffle permutes posts in place.
func Shuffle(rnd *rand.Rand, posts []model.Post) {
	rnd.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
}
