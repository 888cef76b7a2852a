package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/session"
)

type recordingChannel struct {
	mu     sync.Mutex
	events []session.GuardianEvent
	done   chan struct{}
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(event session.GuardianEvent) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func TestDispatcherFansOut(t *testing.T) {
	ch := &recordingChannel{done: make(chan struct{}, 1)}
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), ch)

	d.NotifyAsync(session.GuardianEvent{Kind: "cost_alert", UserID: "kid-1"})

	select {
	case <-ch.done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel never received the event")
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.events, 1)
	assert.Equal(t, "cost_alert", ch.events[0].Kind)
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	err := ch.Send(session.GuardianEvent{
		Kind:      "provider_down",
		SessionID: "sess-1",
		UserID:    "kid-1",
		Module:    "math",
		Message:   "provider unavailable",
		At:        time.Now(),
	})
	require.NoError(t, err)

	payload := <-received
	assert.Equal(t, "provider_down", payload.Kind)
	assert.Equal(t, "kid-1", payload.UserID)
}

func TestWebhookChannelRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	err := ch.Send(session.GuardianEvent{Kind: "cost_alert"})
	assert.Error(t, err)
}
