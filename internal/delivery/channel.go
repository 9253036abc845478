// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
Package delivery implements spec §4.L's outbound notification transports:
plain SMTP email and generic HTTP webhooks. It generalizes the teacher's
newsletter delivery channel abstraction (internal/newsletter/delivery) from
newsletter content to the two payloads this engine actually sends -
scheduled report subscriptions and alert firings - and drops the
multi-provider channel set (Discord/Slack/Telegram/in-app) the newsletter
product needed but this spec does not ask for.
*/
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/sparklytics/engine/internal/models"
)

// Message is the content handed to a Channel's Send. Target is the
// recipient address or webhook URL the message resolves to.
type Message struct {
	Target   string
	Subject  string
	BodyText string
	BodyHTML string
}

// Channel is one outbound transport. Implementations never retry
// internally - Manager owns retry/backoff and idempotency.
type Channel interface {
	Name() models.DeliveryChannel
	Validate(target string) error
	Send(ctx context.Context, msg Message) error
}

// Registry resolves a models.DeliveryChannel to its Channel implementation.
type Registry struct {
	channels map[models.DeliveryChannel]Channel
}

// NewRegistry builds a Registry over the given channels, keyed by their
// own Name().
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[models.DeliveryChannel]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Name()] = ch
	}
	return r
}

// Get retrieves a channel by name.
func (r *Registry) Get(name models.DeliveryChannel) (Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// ValidateEmail validates an email address's shape. It does not attempt a
// full RFC 5322 parse, matching the teacher's own pragmatic check.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}
