package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookProvider POSTs messages as JSON to an HTTP endpoint, e.g. a
// carrier gateway or an internal relay operated by the surrounding
// system. Any non-2xx response is a delivery failure.
type WebhookProvider struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookProvider(name, url string) *WebhookProvider {
	return &WebhookProvider{
		name: name,
		url:  url,
		client: &http.Client{
			// Per-call deadlines come from the caller's context; this is
			// a hard backstop against a hung transport.
			Timeout: 30 * time.Second,
		},
	}
}

func (p *WebhookProvider) Name() string { return p.name }

type webhookPayload struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func (p *WebhookProvider) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Channel: string(msg.Channel),
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", p.name, resp.StatusCode)
	}
	return nil
}
