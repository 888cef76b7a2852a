package notify

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/ai/session"
)

// timeout is the timeout for webhook request. Default to 30 seconds.
var timeout = 30 * time.Second

// WebhookChannel posts guardian events as JSON to a configured endpoint.
type WebhookChannel struct {
	url string
}

// NewWebhookChannel creates a webhook channel for the given URL.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url}
}

func (w *WebhookChannel) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Send posts the event to the webhook endpoint.
func (w *WebhookChannel) Send(event session.GuardianEvent) error {
	body, err := json.Marshal(webhookPayload{
		Kind:      event.Kind,
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Module:    event.Module,
		Message:   event.Message,
		At:        event.At,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", w.url)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", w.url)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", w.url)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", w.url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", w.url, resp.StatusCode, b)
	}
	return nil
}
