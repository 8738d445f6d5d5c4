package notify

import (
	"context"
	"fmt"
	"net/http"
)

// TelegramSender posts through the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a sender for the given bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{token: token, chatID: chatID, client: newWebhookClient()}
}

// Send posts to the configured chat via the sendMessage API, with the title
// rendered bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, t.client,
		fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token),
		map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}, "telegram")
}

// Name identifies the sender in logs.
func (t *TelegramSender) Name() string { return "telegram" }
