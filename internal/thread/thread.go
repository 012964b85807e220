// Package thread reconstructs the ancestor chain of a post for use as
// generation context.
package thread

import (
	"context"
	"errors"

	"petrel/internal/logging"
	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/store/agentstore"
)

// DefaultMaxDepth bounds the ancestor walk.
const DefaultMaxDepth = 10

// MemoryStore persists each visited post once.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m model.Memory) error
	GetMemoryByID(ctx context.Context, id string) (model.Memory, error)
}

// Build walks parent references from leaf toward the root, bounded by
// maxDepth and a visited set, and returns the chain oldest first:
// result[0] is the root-most fetched ancestor, the last element the leaf.
// Each node is persisted as a conversation memory exactly once. A missing
// parent ends the walk without error.
func Build(ctx context.Context, client platform.Client, mem MemoryStore, leaf model.Post, maxDepth int) ([]model.Post, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := make(map[string]struct{})
	var chain []model.Post

	cur := leaf
	for depth := 0; depth < maxDepth; depth++ {
		if _, ok := visited[cur.ID]; ok {
			break
		}
		visited[cur.ID] = struct{}{}
		chain = append([]model.Post{cur}, chain...)
		if err := persistOnce(ctx, mem, cur); err != nil {
			return nil, err
		}
		if cur.ParentID == "" {
			break
		}
		parent, err := client.GetPost(ctx, cur.ParentID)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				logging.Warn("thread_parent_missing", map[string]any{"post": cur.ID, "parent": cur.ParentID})
				break
			}
			return nil, err
		}
		cur = parent
	}
	return chain, nil
}

func persistOnce(ctx context.Context, mem MemoryStore, p model.Post) error {
	if mem == nil {
		return nil
	}
	if _, err := mem.GetMemoryByID(ctx, p.ID); err == nil {
		return nil
	} else if !errors.Is(err, agentstore.ErrNotFound) {
		return err
	}
	return mem.CreateMemory(ctx, model.Memory{
		ID:        p.ID,
		RoomID:    p.ConversationID,
		AuthorID:  p.AuthorID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
	})
}
