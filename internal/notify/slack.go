// Package notify is the side channel that solicits a human go/no-go on
// generated content before it is published.
package notify

import (
	"context"

	"github.com/slack-go/slack"
)

// MessageRef identifies a posted approval message.
type MessageRef struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// Embed is the approval card posted to the channel.
type Embed struct {
	Title  string
	Text   string
	Footer string
}

// Notifier posts approval embeds, reads decisions off them, and replies
// with outcomes.
type Notifier interface {
	Post(ctx context.Context, e Embed) (MessageRef, error)
	Reactions(ctx context.Context, ref MessageRef) (approve, reject bool, err error)
	Reply(ctx context.Context, ref MessageRef, text string) error
}

// Slack implements Notifier on a Slack channel: the embed is a message
// attachment, decisions are emoji reactions, outcomes are thread replies.
type Slack struct {
	api     *slack.Client
	channel string
}

func NewSlack(token, channel string) *Slack {
	return &Slack{api: slack.New(token), channel: channel}
}

func (s *Slack) Post(ctx context.Context, e Embed) (MessageRef, error) {
	att := slack.Attachment{
		Title:  e.Title,
		Text:   e.Text,
		Footer: e.Footer,
		Color:  "#439FE0",
	}
	ch, ts, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionAttachments(att))
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{Channel: ch, Timestamp: ts}, nil
}

// approveReactions and rejectReactions are the emoji names accepted as
// decisions.
var (
	approveReactions = map[string]bool{"+1": true, "thumbsup": true, "white_check_mark": true}
	rejectReactions  = map[string]bool{"x": true, "-1": true, "thumbsdown": true, "no_entry_sign": true}
)

func (s *Slack) Reactions(ctx context.Context, ref MessageRef) (bool, bool, error) {
	item := slack.ItemRef{Channel: ref.Channel, Timestamp: ref.Timestamp}
	reactions, err := s.api.GetReactionsContext(ctx, item, slack.NewGetReactionsParameters())
	if err != nil {
		return false, false, err
	}
	var approve, reject bool
	for _, r := range reactions {
		if approveReactions[r.Name] {
			approve = true
		}
		if rejectReactions[r.Name] {
			reject = true
		}
	}
	return approve, reject, nil
}

func (s *Slack) Reply(ctx context.Context, ref MessageRef, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, ref.Channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(ref.Timestamp))
	return err
}
