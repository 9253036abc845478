// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sparklytics/engine/internal/models"
)

// WebhookChannel posts a JSON payload to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel constructs a WebhookChannel with the given per-request
// timeout.
func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{client: &http.Client{Timeout: timeout}}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() models.DeliveryChannel { return models.ChannelWebhook }

// Validate checks the target URL is a safe, well-formed webhook endpoint.
func (c *WebhookChannel) Validate(target string) error {
	return ValidateWebhookURL(target)
}

// webhookPayload is the JSON body posted to the target URL.
type webhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	BodyText  string    `json:"body_text,omitempty"`
	BodyHTML  string    `json:"body_html,omitempty"`
}

// Send posts msg as JSON to msg.Target. A non-2xx response is returned as
// an error so Manager's circuit breaker counts it as a failure.
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if err := c.Validate(msg.Target); err != nil {
		return err
	}

	payload := webhookPayload{
		Event:     "notification.delivery",
		Timestamp: time.Now().UTC(),
		Subject:   msg.Subject,
		BodyText:  msg.BodyText,
		BodyHTML:  msg.BodyHTML,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sparklytics-Notifier/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
}
