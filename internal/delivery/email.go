// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/models"
)

// EmailConfig holds the single SMTP relay this engine sends through. Spec
// §4.L only requires one channel-wide relay, unlike the teacher's
// per-schedule ChannelConfig.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Noop     bool
}

// EmailChannel delivers via SMTP. When Noop is set (SPARKLYTICS_SMTP_NOOP)
// it logs and returns success without dialing out, for tests and
// environments with no mail relay configured.
type EmailChannel struct {
	cfg     EmailConfig
	timeout time.Duration
}

// NewEmailChannel constructs an EmailChannel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, timeout: 30 * time.Second}
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() models.DeliveryChannel { return models.ChannelEmail }

// Validate checks the recipient address is well formed.
func (c *EmailChannel) Validate(target string) error {
	return ValidateEmail(target)
}

// Send delivers msg by SMTP to target, or no-ops if Noop is set.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	if err := c.Validate(msg.Target); err != nil {
		return err
	}

	if c.cfg.Noop {
		logging.Info().Str("to", msg.Target).Str("subject", msg.Subject).Msg("delivery: smtp noop, not sending")
		return nil
	}

	return c.sendSMTP(ctx, msg)
}

func (c *EmailChannel) buildMessage(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Target)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.BodyHTML != "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.BodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.BodyText)
	}
	return b.String()
}

func (c *EmailChannel) sendSMTP(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP relay: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if c.cfg.UseTLS {
		tlsConfig := &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(msg.Target); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(c.buildMessage(msg))); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	_ = client.Quit()
	return nil
}
