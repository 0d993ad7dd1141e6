package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

const webhookTimeout = 10 * time.Second

// DiscordAdapter posts an alert as a Discord webhook message.
type DiscordAdapter struct {
	url    string
	client *http.Client
	log    *logging.Logger
}

// NewDiscordAdapter creates an adapter, or nil if url is empty.
func NewDiscordAdapter(url string, log *logging.Logger) *DiscordAdapter {
	if url == "" {
		return nil
	}
	return &DiscordAdapter{url: url, client: &http.Client{Timeout: webhookTimeout}, log: log}
}

func (d *DiscordAdapter) Send(alertType string, severity model.Severity, message string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"content": fmt.Sprintf("**[%s]** %s: %s", strings.ToUpper(string(severity)), alertType, message),
	}
	if err := postJSON(d.client, d.url, payload); err != nil && d.log != nil {
		d.log.WithError(err).Warn("discord notification failed")
	}
}

// SlackAdapter posts an alert as a Slack incoming-webhook message.
type SlackAdapter struct {
	url    string
	client *http.Client
	log    *logging.Logger
}

// NewSlackAdapter creates an adapter, or nil if url is empty.
func NewSlackAdapter(url string, log *logging.Logger) *SlackAdapter {
	if url == "" {
		return nil
	}
	return &SlackAdapter{url: url, client: &http.Client{Timeout: webhookTimeout}, log: log}
}

func (s *SlackAdapter) Send(alertType string, severity model.Severity, message string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"text": fmt.Sprintf("*[%s]* %s: %s", strings.ToUpper(string(severity)), alertType, message),
	}
	if err := postJSON(s.client, s.url, payload); err != nil && s.log != nil {
		s.log.WithError(err).Warn("slack notification failed")
	}
}

// GenericWebhookAdapter posts the full alert as a structured JSON document
// to an arbitrary endpoint, for integrations with no opinion on shape.
type GenericWebhookAdapter struct {
	url    string
	client *http.Client
	log    *logging.Logger
}

// NewGenericWebhookAdapter creates an adapter, or nil if url is empty.
func NewGenericWebhookAdapter(url string, log *logging.Logger) *GenericWebhookAdapter {
	if url == "" {
		return nil
	}
	return &GenericWebhookAdapter{url: url, client: &http.Client{Timeout: webhookTimeout}, log: log}
}

func (g *GenericWebhookAdapter) Send(alertType string, severity model.Severity, message string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"alert_type": alertType,
		"severity":   severity,
		"message":    message,
		"details":    details,
	}
	if err := postJSON(g.client, g.url, payload); err != nil && g.log != nil {
		g.log.WithError(err).Warn("generic webhook notification failed")
	}
}

func postJSON(client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
