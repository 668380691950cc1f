package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Discord struct {
	WebhookURL string
	Username   string
	HTTP       *http.Client
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []Field      `json:"fields"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type WebhookPayload struct {
	Content  string  `json:"content"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		WebhookURL: webhookURL,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Enabled() bool { return d.WebhookURL != "" }

func (d *Discord) Send(ctx context.Context, msg Message) error {
	if !d.Enabled() {
		return fmt.Errorf("discord: %w", ErrNotConfigured)
	}
	b, err := json.Marshal(Payload(msg, d.Username))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := d.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("discord status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}

// Payload builds the webhook body for msg.
func Payload(msg Message, username string) WebhookPayload {
	e := Embed{Title: msg.Title, Description: msg.Text, Color: msg.Color, Fields: msg.Fields}
	if e.Fields == nil {
		e.Fields = []Field{}
	}
	if msg.Footer != "" {
		e.Footer = &EmbedFooter{Text: msg.Footer}
	}
	return WebhookPayload{Username: username, Embeds: []Embed{e}}
}
