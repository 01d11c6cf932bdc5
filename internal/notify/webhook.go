package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/iaros/marketwatch/internal/models"
)

// WebhookChannel posts a JSON payload to an arbitrary recipient URL. It
// also backs the Slack channel, which is simply a webhook URL configured
// out of band (spec.md §4.9 channel set).
type WebhookChannel struct {
	client *resty.Client
	kind   models.NotificationChannelKind
}

// NewWebhookChannel constructs a Channel that POSTs to whatever URL is
// passed as recipient at send time.
func NewWebhookChannel(client *resty.Client) *WebhookChannel {
	return &WebhookChannel{client: client, kind: models.ChannelWebhook}
}

// NewSlackChannel is a WebhookChannel labeled as the slack kind, mirroring
// manager.py treating SlackChannel as a distinct ChannelType despite
// sharing the webhook transport.
func NewSlackChannel(client *resty.Client) *WebhookChannel {
	return &WebhookChannel{client: client, kind: models.ChannelSlack}
}

func (c *WebhookChannel) Kind() models.NotificationChannelKind { return c.kind }

func (c *WebhookChannel) Send(ctx context.Context, recipient string, subject, message string) ([]byte, error) {
	body := map[string]string{"subject": subject, "text": message}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(recipient)
	if err != nil {
		return nil, err
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"status_code": resp.StatusCode(),
	})
	if resp.IsError() {
		return meta, &httpStatusError{status: resp.StatusCode()}
	}
	return meta, nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("webhook delivery returned status %d", e.status)
}
