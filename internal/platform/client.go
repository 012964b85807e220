package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"petrel/internal/metrics"
	"petrel/internal/model"
)

// ErrNotFound is returned when a profile or post does not exist.
var ErrNotFound = errors.New("platform: not found")

// Client is the full platform capability surface. Implementations provide
// every capability at construction time; nothing is attached later.
type Client interface {
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUserPosts(ctx context.Context, userID string, limit int) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (model.Post, error)
	SearchRecent(ctx context.Context, query string, limit int) ([]model.Post, error)
	GetMentions(ctx context.Context, userID string, limit int) ([]model.Post, error)
	GetFollowerCount(ctx context.Context, username string) (int, error)
	CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error)
	Like(ctx context.Context, userID, postID string) error
	Follow(ctx context.Context, userID, targetID string) error
	Unfollow(ctx context.Context, userID, targetID string) error
}

// HTTPClient talks to the platform API: bearer token for reads, OAuth1.0a
// signed requests for writes.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	signer      *oauth1Signer
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	postCache   *lru.Cache[string, model.Post]
}

// Credentials holds everything the HTTP client needs to authenticate.
type Credentials struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

const postCacheSize = 4096

func NewHTTPClient(creds Credentials) *HTTPClient {
	cache, _ := lru.New[string, model.Post](postCacheSize)
	c := &HTTPClient{
		baseURL:     "https://api.twitter.com/2",
		bearerToken: creds.BearerToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		postCache:   cache,
	}
	if creds.ConsumerKey != "" {
		c.signer = newOAuth1Signer(creds.ConsumerKey, creds.ConsumerSecret, creds.AccessToken, creds.AccessSecret)
	}
	return c
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

type rawUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"created_at"`
	Verified      bool      `json:"verified"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
	} `json:"public_metrics"`
}

func (r rawUser) toModel() model.User {
	return model.User{
		ID:             r.ID,
		Username:       r.Username,
		Name:           r.Name,
		CreatedAt:      r.CreatedAt,
		Verified:       r.Verified,
		Description:    r.Description,
		URL:            r.URL,
		FollowersCount: r.PublicMetrics.FollowersCount,
		FollowingCount: r.PublicMetrics.FollowingCount,
		PostCount:      r.PublicMetrics.TweetCount,
	}
}

type rawPost struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Lang           string    `json:"lang"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	PublicMetrics  struct {
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		RetweetCount int `json:"retweet_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

func (r rawPost) toModel() model.Post {
	p := model.Post{
		ID:             r.ID,
		AuthorID:       r.AuthorID,
		Text:           r.Text,
		CreatedAt:      r.CreatedAt,
		Language:       r.Lang,
		ConversationID: r.ConversationID,
		ReplyCount:     r.PublicMetrics.ReplyCount,
		LikeCount:      r.PublicMetrics.LikeCount,
		RepostCount:    r.PublicMetrics.RetweetCount,
		QuoteCount:     r.PublicMetrics.QuoteCount,
		MediaURLs:      r.Attachments.MediaKeys,
	}
	for _, ref := range r.ReferencedTweets {
		if ref.Type == "replied_to" {
			p.ParentID = ref.ID
		}
	}
	return p
}

const postFields = "tweet.fields=created_at,public_metrics,lang,author_id,conversation_id,referenced_tweets&expansions=attachments.media_keys"

func (c *HTTPClient) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var out model.User
	if username == "" {
		return out, errors.New("empty username")
	}
	u := fmt.Sprintf("%s/users/by/username/%s?user.fields=public_metrics,created_at,verified,description,url",
		c.baseURL, url.PathEscape(username))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return out, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return out, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("platform api status %d", resp.StatusCode)
	}
	var raw struct {
		Data rawUser `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	if raw.Data.ID == "" {
		return out, ErrNotFound
	}
	return raw.Data.toModel(), nil
}

// GetFollowerCount returns the follower count for a username.
func (c *HTTPClient) GetFollowerCount(ctx context.Context, username string) (int, error) {
	u, err := c.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.FollowersCount, nil
}

// GetUserPosts returns recent original posts for a user.
func (c *HTTPClient) GetUserPosts(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	u := fmt.Sprintf("%s/users/%s/tweets?max_results=%d&%s&exclude=retweets,replies",
		c.baseURL, url.PathEscape(userID), clamp(limit, 5, 100), postFields)
	return c.getPosts(ctx, u)
}

// SearchRecent searches recent posts matching query.
func (c *HTTPClient) SearchRecent(ctx context.Context, query string, limit int) ([]model.Post, error) {
	u := fmt.Sprintf("%s/tweets/search/recent?max_results=%d&%s&query=%s",
		c.baseURL, clamp(limit, 10, 100), postFields, url.QueryEscape(query))
	return c.getPosts(ctx, u)
}

// GetMentions returns posts that mention the user.
func (c *HTTPClient) GetMentions(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	u := fmt.Sprintf("%s/users/%s/mentions?max_results=%d&%s",
		c.baseURL, url.PathEscape(userID), clamp(limit, 5, 100), postFields)
	return c.getPosts(ctx, u)
}

func (c *HTTPClient) getPosts(ctx context.Context, u string) ([]model.Post, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("platform api status %d", resp.StatusCode)
	}
	var raw struct {
		Data []rawPost `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Post, 0, len(raw.Data))
	for _, d := range raw.Data {
		p := d.toModel()
		c.postCache.Add(p.ID, p)
		out = append(out, p)
	}
	return out, nil
}

// GetPost fetches a single post by id, read-through cached.
func (c *HTTPClient) GetPost(ctx context.Context, id string) (model.Post, error) {
	if p, ok := c.postCache.Get(id); ok {
		return p, nil
	}
	var out model.Post
	u := fmt.Sprintf("%s/tweets/%s?%s", c.baseURL, url.PathEscape(id), postFields)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return out, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return out, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("platform api status %d", resp.StatusCode)
	}
	var raw struct {
		Data rawPost `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	if raw.Data.ID == "" {
		return out, ErrNotFound
	}
	out = raw.Data.toModel()
	c.postCache.Add(out.ID, out)
	return out, nil
}

// CreatePost publishes a post. parentID makes it a reply, quoteID a quote.
func (c *HTTPClient) CreatePost(ctx context.Context, text, parentID, quoteID string) (model.Post, error) {
	var out model.Post
	body := map[string]any{"text": text}
	if parentID != "" {
		body["reply"] = map[string]string{"in_reply_to_tweet_id": parentID}
	}
	if quoteID != "" {
		body["quote_tweet_id"] = quoteID
	}
	var raw struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/tweets", body, &raw); err != nil {
		return out, err
	}
	out = model.Post{ID: raw.Data.ID, Text: raw.Data.Text, ParentID: parentID, CreatedAt: time.Now().UTC()}
	return out, nil
}

// Like likes a post on behalf of userID.
func (c *HTTPClient) Like(ctx context.Context, userID, postID string) error {
	u := fmt.Sprintf("%s/users/%s/likes", c.baseURL, url.PathEscape(userID))
	return c.doSigned(ctx, http.MethodPost, u, map[string]any{"tweet_id": postID}, nil)
}

// Follow follows targetID on behalf of userID.
func (c *HTTPClient) Follow(ctx context.Context, userID, targetID string) error {
	u := fmt.Sprintf("%s/users/%s/following", c.baseURL, url.PathEscape(userID))
	return c.doSigned(ctx, http.MethodPost, u, map[string]any{"target_user_id": targetID}, nil)
}

// Unfollow removes a follow.
func (c *HTTPClient) Unfollow(ctx context.Context, userID, targetID string) error {
	u := fmt.Sprintf("%s/users/%s/following/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(targetID))
	return c.doSigned(ctx, http.MethodDelete, u, nil, nil)
}

// doSigned issues an OAuth1.0a-signed JSON request for write endpoints.
func (c *HTTPClient) doSigned(ctx context.Context, method, u string, body any, out any) error {
	if c.signer == nil {
		return errors.New("write credentials not configured")
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// JSON bodies do not participate in the OAuth1 signature base string.
	c.signer.sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("platform api status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			if b, err := req.GetBody(); err == nil {
				r.Body = b
			}
		}
		resp, err := c.httpClient.Do(r)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				metrics.IncAPIRetry(req.URL.Path)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
