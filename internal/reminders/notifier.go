// Package reminders decides who should be reminded about dues and hands
// the messages to an outbound notifier.
package reminders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Block is one Slack Block Kit element.
type Block map[string]any

type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

type Notifier interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	url     string
	timeout time.Duration
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{url: webhookURL, timeout: 10 * time.Second}
}

func (n *SlackNotifier) Channel() string { return "slack" }

func (n *SlackNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	code, body, errs := fiber.Post(n.url).JSON(msg).Timeout(n.timeout).Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("slack webhook: %w", errs[0])
	}
	if code != fiber.StatusOK {
		if len(body) > 120 {
			body = body[:120]
		}
		return fmt.Errorf("slack webhook returned %d: %s", code, body)
	}
	return nil
}

// LogNotifier only writes the message text to the log. Used when no
// webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Channel() string { return "log" }

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("[INFO] reminder: %s", msg.Text)
	return nil
}

// NewNotifier picks Slack when a webhook URL is set.
func NewNotifier(webhookURL string) Notifier {
	if webhookURL == "" {
		return LogNotifier{}
	}
	return NewSlackNotifier(webhookURL)
}
