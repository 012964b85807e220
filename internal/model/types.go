package model

import "time"

// User represents a subset of platform user fields used by the agent.
type User struct {
	ID             string
	Username       string
	Name           string
	Description    string
	CreatedAt      time.Time
	FollowersCount int
	FollowingCount int
	PostCount      int
	Verified       bool
	URL            string
}

// Post represents a single unit of platform content.
type Post struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Text           string
	CreatedAt      time.Time
	// ParentID is set when the post replies to another post.
	ParentID       string
	ConversationID string
	ReplyCount     int
	LikeCount      int
	RepostCount    int
	QuoteCount     int
	Language       string
	MediaURLs      []string
	PermanentURL   string
}

// Action kinds the governor and action log track.
const (
	KindReply   = "reply"
	KindLike    = "like"
	KindRetweet = "retweet"
	KindQuote   = "quote"
	KindFollow  = "follow"
	KindCopy    = "copy"
)

// FollowedUser is a follow we made, with its scheduled unfollow time.
// Exactly one record exists per user id.
type FollowedUser struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	FollowedAt time.Time `json:"followedAt"`
	UnfollowAt time.Time `json:"unfollowAt"`
}

// CopiedPost records a post we mirrored, keyed by the source post id.
type CopiedPost struct {
	ID       string    `json:"id"`
	SourceID string    `json:"sourceId"`
	Username string    `json:"username"`
	CopiedAt time.Time `json:"copiedAt"`
}

// LikedComment records a comment we liked.
type LikedComment struct {
	ID       string    `json:"id"`
	PostID   string    `json:"postId"`
	Username string    `json:"username"`
	LikedAt  time.Time `json:"likedAt"`
}

// Approval statuses. Expiry is a terminal outcome but is never written
// back as a status: expired records are removed after notification.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// PendingPost is generated content awaiting a human decision.
type PendingPost struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	RoomID     string    `json:"roomId"`
	MessageRef string    `json:"messageRef"`
	ChannelRef string    `json:"channelRef"`
	CreatedAt  time.Time `json:"createdAt"`
	Status     string    `json:"status"`
}

// Memory is a post persisted once as conversation context.
type Memory struct {
	ID        string
	RoomID    string
	AuthorID  string
	Text      string
	CreatedAt time.Time
	Raw       string
}
