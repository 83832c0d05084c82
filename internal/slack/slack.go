// Package slack binds the relearn workflow to a Slack incoming webhook.
// One underlying webhook call is made per message, with link unfurling
// enabled so shared images render as previews.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	slackgo "github.com/slack-go/slack"
)

// Webhook posts messages to a Slack incoming webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook for the given incoming-webhook URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: http.DefaultClient}
}

// FormatBatch builds the header message plus one message per link. Link
// messages are wrapped in angle brackets so Slack unfurls them.
// https://api.slack.com/reference/messaging/link-unfurling
func FormatBatch(header string, links []string) []string {
	messages := make([]string, 0, len(links)+1)
	messages = append(messages, fmt.Sprintf("%s (%d images) 🚀", header, len(links)))
	for _, link := range links {
		messages = append(messages, "<"+link+">")
	}
	return messages
}

// PublishLinks sends the header plus one message per link and returns how
// many messages were delivered. Partial delivery is reported through the
// count; an error is returned only when nothing was delivered.
func (w *Webhook) PublishLinks(ctx context.Context, header string, links []string) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	sent := 0
	var failures []string
	for _, msg := range FormatBatch(header, links) {
		if err := w.post(ctx, msg); err != nil {
			failures = append(failures, err.Error())
			continue
		}
		sent++
	}

	if sent == 0 {
		return 0, fmt.Errorf("no messages delivered: %s", strings.Join(failures, "; "))
	}
	return sent, nil
}

func (w *Webhook) post(ctx context.Context, text string) error {
	return slackgo.PostWebhookCustomHTTPContext(ctx, w.url, w.client, &slackgo.WebhookMessage{
		Text:        text,
		UnfurlLinks: true,
		UnfurlMedia: true,
	})
}
