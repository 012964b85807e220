package platform

import (
	"context"
	"time"

	"petrel/internal/logging"
	"petrel/internal/model"
)

// DefaultSearchTimeout bounds a single search call. Search on the platform
// is slow and occasionally hangs; losing a cycle's results is preferable to
// stalling the loop behind it.
const DefaultSearchTimeout = 15 * time.Second

// SearchWithTimeout races SearchRecent against a timeout. On timeout it
// returns an empty result rather than an error.
func SearchWithTimeout(ctx context.Context, c Client, query string, limit int, timeout time.Duration) []model.Post {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	type result struct {
		posts []model.Post
		err   error
	}
	ch := make(chan result, 1)
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		posts, err := c.SearchRecent(sctx, query, limit)
		ch <- result{posts, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			logging.Warn("search_failed", map[string]any{"query": query, "error": r.err.Error()})
			return nil
		}
		return r.posts
	case <-sctx.Done():
		logging.Warn("search_timeout", map[string]any{"query": query})
		return nil
	}
}
