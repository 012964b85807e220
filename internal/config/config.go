package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, per-feature schedules, caps, and approval settings.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Posting     PostingConfig     `yaml:"posting"`
	Actions     ActionsConfig     `yaml:"actions"`
	ActiveHours ActiveHoursConfig `yaml:"activeHours"`
	AutoCopy    AutoCopyConfig    `yaml:"autoCopy"`
	AutoFollow  AutoFollowConfig  `yaml:"autoFollow"`
	AutoLike    AutoLikeConfig    `yaml:"autoLike"`
	Approval    ApprovalConfig    `yaml:"approval"`
	Generation  GenerationConfig  `yaml:"generation"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AccountConfig struct {
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// Bearer token for read endpoints. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// OAuth1.0a credentials for write actions (post/like/follow)
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
}

type PostingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval bounds in minutes; each cycle sleeps a uniform-random
	// duration within [min,max].
	IntervalMinMinutes int  `yaml:"intervalMinMinutes"`
	IntervalMaxMinutes int  `yaml:"intervalMaxMinutes"`
	PostImmediately    bool `yaml:"postImmediately"`
	MaxPostLength      int  `yaml:"maxPostLength"`
	DryRun             bool `yaml:"dryRun"`
	ApprovalRequired   bool `yaml:"approvalRequired"`
}

type ActionsConfig struct {
	Enabled         bool     `yaml:"enabled"`
	IntervalMinutes int      `yaml:"intervalMinutes"`
	MaxPerCycle     int      `yaml:"maxPerCycle"`
	PollIntervalSec int      `yaml:"pollIntervalSec"`
	TargetUsers     []string `yaml:"targetUsers"`
	EnableRetweets  bool     `yaml:"enableRetweets"`
	// Per-hour caps; 0 means uncapped.
	MaxRepliesPerHour  int `yaml:"maxRepliesPerHour"`
	MaxLikesPerHour    int `yaml:"maxLikesPerHour"`
	MaxRetweetsPerHour int `yaml:"maxRetweetsPerHour"`
	MaxQuotesPerHour   int `yaml:"maxQuotesPerHour"`
}

type ActiveHoursConfig struct {
	// Start/End hours 0-23. -1 disables the window (always active).
	Start int `yaml:"start"`
	End   int `yaml:"end"`
	// IANA timezone name, e.g. "America/New_York". Empty means UTC.
	Timezone string `yaml:"timezone"`
}

type AutoCopyConfig struct {
	Enabled         bool     `yaml:"enabled"`
	TargetAccounts  []string `yaml:"targetAccounts"`
	IntervalMinutes int      `yaml:"intervalMinutes"`
	RequireMedia    bool     `yaml:"requireMedia"`
	AvoidDuplicates bool     `yaml:"avoidDuplicates"`
	MaxTracked      int      `yaml:"maxTracked"`
}

type AutoFollowConfig struct {
	Enabled           bool     `yaml:"enabled"`
	TargetAccounts    []string `yaml:"targetAccounts"`
	IntervalMinutes   int      `yaml:"intervalMinutes"`
	UsersPerRun       int      `yaml:"usersPerRun"`
	MaxFollowerCount  int      `yaml:"maxFollowerCount"`
	UnfollowAfterDays int      `yaml:"unfollowAfterDays"`
}

type AutoLikeConfig struct {
	Enabled          bool     `yaml:"enabled"`
	TargetAccounts   []string `yaml:"targetAccounts"`
	IntervalMinutes  int      `yaml:"intervalMinutes"`
	LikesPerRun      int      `yaml:"likesPerRun"`
	MaxLikesPerDay   int      `yaml:"maxLikesPerDay"`
	MinCommentLength int      `yaml:"minCommentLength"`
}

type ApprovalConfig struct {
	// Slack channel ID for approval embeds. If empty, approval is
	// unavailable and ApprovalRequired must be false.
	SlackChannel string `yaml:"slackChannel"`
	// If empty, read from env SLACK_BOT_TOKEN
	SlackToken          string `yaml:"slackToken"`
	PollIntervalMinutes int    `yaml:"pollIntervalMinutes"`
	ExpiryHours         int    `yaml:"expiryHours"`
}

type GenerationConfig struct {
	Provider string `yaml:"provider"` // "openai" or "none"
	Model    string `yaml:"model"`
	// If empty, read from env OPENAI_API_KEY
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account:     AccountConfig{Username: ""},
		Credentials: CredentialsConfig{BearerToken: ""},
		Posting: PostingConfig{
			Enabled:            true,
			IntervalMinMinutes: 90,
			IntervalMaxMinutes: 180,
			MaxPostLength:      280,
			ApprovalRequired:   false,
		},
		Actions: ActionsConfig{
			Enabled:           false,
			IntervalMinutes:   5,
			MaxPerCycle:       1,
			PollIntervalSec:   120,
			EnableRetweets:    false,
			MaxRepliesPerHour: 10,
			MaxLikesPerHour:   20,
		},
		ActiveHours: ActiveHoursConfig{Start: -1, End: -1, Timezone: "UTC"},
		AutoCopy: AutoCopyConfig{
			Enabled:         false,
			IntervalMinutes: 30,
			RequireMedia:    true,
			AvoidDuplicates: true,
			MaxTracked:      1000,
		},
		AutoFollow: AutoFollowConfig{
			Enabled:           false,
			IntervalMinutes:   60,
			UsersPerRun:       5,
			MaxFollowerCount:  5000,
			UnfollowAfterDays: 7,
		},
		AutoLike: AutoLikeConfig{
			Enabled:          false,
			IntervalMinutes:  45,
			LikesPerRun:      3,
			MaxLikesPerDay:   50,
			MinCommentLength: 10,
		},
		Approval:   ApprovalConfig{PollIntervalMinutes: 5, ExpiryHours: 24},
		Generation: GenerationConfig{Provider: "none", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		Storage:    StorageConfig{DBPath: "./petrel.db"},
		Metrics:    MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("X_ACCESS_SECRET")
	}
	if c.Approval.SlackToken == "" {
		c.Approval.SlackToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if c.Generation.APIKey == "" && c.Generation.Provider == "openai" {
		c.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks required fields. It is called once at startup; a
// validation error is fatal.
func (c *Config) Validate() error {
	if c.Account.Username == "" {
		return errors.New("account.username is required")
	}
	if !c.Posting.DryRun && c.Credentials.BearerToken == "" {
		return errors.New("credentials.bearerToken is required (or set X_BEARER_TOKEN)")
	}
	if c.Posting.IntervalMinMinutes <= 0 || c.Posting.IntervalMaxMinutes < c.Posting.IntervalMinMinutes {
		return fmt.Errorf("posting interval bounds invalid: min=%d max=%d",
			c.Posting.IntervalMinMinutes, c.Posting.IntervalMaxMinutes)
	}
	if h := c.ActiveHours.Start; h < -1 || h > 23 {
		return fmt.Errorf("activeHours.start out of range: %d", h)
	}
	if h := c.ActiveHours.End; h < -1 || h > 23 {
		return fmt.Errorf("activeHours.end out of range: %d", h)
	}
	if (c.ActiveHours.Start >= 0) != (c.ActiveHours.End >= 0) {
		return errors.New("activeHours.start and activeHours.end must be set together")
	}
	if c.Posting.ApprovalRequired {
		if c.Approval.SlackChannel == "" {
			return errors.New("approval.slackChannel is required when posting.approvalRequired")
		}
		if c.Approval.SlackToken == "" {
			return errors.New("approval.slackToken is required (or set SLACK_BOT_TOKEN)")
		}
	}
	if c.AutoFollow.Enabled && len(c.AutoFollow.TargetAccounts) == 0 {
		return errors.New("autoFollow.targetAccounts is required when autoFollow.enabled")
	}
	if c.AutoLike.Enabled && len(c.AutoLike.TargetAccounts) == 0 {
		return errors.New("autoLike.targetAccounts is required when autoLike.enabled")
	}
	if c.AutoCopy.Enabled && len(c.AutoCopy.TargetAccounts) == 0 {
		return errors.New("autoCopy.targetAccounts is required when autoCopy.enabled")
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
