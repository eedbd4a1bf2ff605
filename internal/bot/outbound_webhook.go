package bot

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

// WebhookOutbound шлёт сообщения в чат-транспорт по CHAT_CALLBACK_URL.
type WebhookOutbound struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookOutbound(url, token string) *WebhookOutbound {
	return &WebhookOutbound{
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookOutbound) Notify(ctx context.Context, userID string, msg Outbound) error {
	return c.send(ctx, map[string]any{
		"user_id": userID,
		"replies": []Outbound{msg},
	})
}

func (c *WebhookOutbound) send(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("callback error: %s body=%s", resp.Status, string(respBody))
	}

	return nil
}
