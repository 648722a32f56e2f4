package toast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

var ErrInvalidWebhook = errors.New("invalid webhook url")

var levelEmoji = map[Level]string{
	LevelInfo:    ":information_source:",
	LevelSuccess: ":white_check_mark:",
	LevelWarning: ":warning:",
	LevelError:   ":x:",
}

// SlackSink posts toasts to a Slack incoming webhook.
type SlackSink struct {
	url    string
	client *http.Client
}

func NewSlackSink(webhookURL string, client *http.Client) (*SlackSink, error) {
	u, err := url.Parse(webhookURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWebhook, webhookURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackSink{url: webhookURL, client: client}, nil
}

func (s *SlackSink) Notify(ctx context.Context, t Toast) error {
	msg := &slack.WebhookMessage{Text: levelEmoji[t.Level] + " " + t.Text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

type discordWebhook interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts toasts through a Discord channel webhook.
type DiscordSink struct {
	id      string
	token   string
	session discordWebhook
}

// NewDiscordSink accepts the webhook URL Discord shows in channel settings,
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscordSink(webhookURL string) (*DiscordSink, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordSink{id: id, token: token, session: session}, nil
}

func parseDiscordWebhook(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
}

func (d *DiscordSink) Notify(ctx context.Context, t Toast) error {
	params := &discordgo.WebhookParams{
		Content:         fmt.Sprintf("**%s** %s", t.Level, t.Text),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
