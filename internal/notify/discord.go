package notify

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordSender posts through a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newWebhookClient()}
}

// Send posts to the webhook with the title rendered bold. Discord answers
// 204 No Content on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	}, "discord")
}

// Name identifies the sender in logs.
func (d *DiscordSender) Name() string { return "discord" }
