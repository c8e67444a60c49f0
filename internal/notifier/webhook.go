package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

const (
	ColorDown      = "#ff0000"
	ColorRecovered = "#00ff00"

	DefaultUsername = "Error notifier"
	DefaultTimeout  = 5 * time.Second
)

// ErrUnexpectedStatus is wrapped when the webhook answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected webhook status")

// Field is one title/value pair of an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type Attachment struct {
	Color  string  `json:"color"`
	Fields []Field `json:"fields"`
}

// Message is the Slack-compatible webhook body.
type Message struct {
	Username    string       `json:"username"`
	Text        string       `json:"text"`
	IconEmoji   string       `json:"icon_emoji"`
	Attachments []Attachment `json:"attachments"`
}

// WebhookConfig configures a Webhook. Zero values fall back to defaults.
type WebhookConfig struct {
	URL         string
	Method      string
	Username    string
	Environment string
	Timeout     time.Duration
}

// Webhook posts transitions to an incoming-webhook endpoint.
type Webhook struct {
	url         string
	method      string
	username    string
	environment string
	client      *http.Client
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Method == "" {
		cfg.Method = http.MethodPut
	}
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Webhook{
		url:         cfg.URL,
		method:      cfg.Method,
		username:    cfg.Username,
		environment: cfg.Environment,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Message renders the body sent for t.
func (w *Webhook) Message(t service.Transition) Message {
	msg := Message{
		Username:  w.username,
		Text:      "Service is off-line",
		IconEmoji: ":bangbang:",
	}
	color := ColorDown

	if t.Recovered() {
		msg.Text = "Service is back on-line"
		msg.IconEmoji = ":smile:"
		color = ColorRecovered
	}

	previous := "never"
	if t.PreviousTransitionAt != nil {
		previous = humanize.RelTime(*t.PreviousTransitionAt, t.OccurredAt, "ago", "from now")
	}

	msg.Attachments = []Attachment{{
		Color: color,
		Fields: []Field{
			{Title: "Environment", Value: w.environment, Short: true},
			{Title: "Service", Value: t.Descriptor.Name, Short: true},
			{Title: "Previous change", Value: previous, Short: true},
		},
	}}

	return msg
}

func (w *Webhook) Notify(ctx context.Context, t service.Transition) error {
	body, err := json.Marshal(w.Message(t))
	if err != nil {
		return fmt.Errorf("encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
	}

	return nil
}
