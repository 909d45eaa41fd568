package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dmcnulty/linecanon/internal/ratelimit"
)

// DiscordSender sends alerts to Discord via webhook. Sends pass through a
// token-bucket limiter so a burst of stale-data findings cannot spam the
// channel.
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string, rps float64) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratelimit.New(rps),
	}
}

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, payload *Payload) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	webhookPayload := map[string]interface{}{
		"embeds": []interface{}{s.buildEmbed(payload)},
	}

	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (s *DiscordSender) buildEmbed(payload *Payload) map[string]interface{} {
	var color int
	switch payload.Severity {
	case SeverityAlert:
		color = 0xFF0000 // Red
	case SeverityWarn:
		color = 0xFFA500 // Orange
	default:
		color = 0x0099FF // Blue
	}

	keys := make([]string, 0, len(payload.Details))
	for k := range payload.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]map[string]interface{}, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, map[string]interface{}{
			"name":   k,
			"value":  payload.Details[k],
			"inline": true,
		})
	}

	return map[string]interface{}{
		"title":       fmt.Sprintf("[%s] %s", payload.Kind, payload.Summary),
		"color":       color,
		"fields":      fields,
		"footer":      map[string]interface{}{"text": payload.Environment},
		"timestamp":   payload.Timestamp.UTC().Format(time.RFC3339),
		"description": payload.Summary,
	}
}
