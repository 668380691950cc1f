package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramMaxLen = 4096

type Telegram struct {
	Token   string
	ChatID  string
	BaseURL string
	HTTP    *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		BaseURL: "https://api.telegram.org",
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram: %w", ErrNotConfigured)
	}
	payload := map[string]any{"chat_id": t.ChatID, "text": PlainText(msg), "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.BaseURL, "/"), t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}

// PlainText flattens a message for channels without rich formatting.
func PlainText(msg Message) string {
	var sb strings.Builder
	sb.WriteString(msg.Title)
	if msg.Text != "" {
		sb.WriteString("\n\n")
		sb.WriteString(msg.Text)
	}
	for _, f := range msg.Fields {
		sb.WriteString("\n\n")
		sb.WriteString(f.Name)
		sb.WriteString("\n")
		sb.WriteString(f.Value)
	}
	if msg.Footer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(msg.Footer)
	}
	out := strings.ReplaceAll(sb.String(), "**", "")
	if r := []rune(out); len(r) > telegramMaxLen {
		out = string(r[:telegramMaxLen-3]) + "..."
	}
	return out
}
