// Package notify delivers guardian alerts over the configured channels.
// Dispatch is fire-and-forget: a slow or broken channel never blocks a turn.
package notify

import (
	"log/slog"

	"github.com/hrygo/tutorsense/ai/session"
)

// Channel delivers one event to a single destination.
type Channel interface {
	Name() string
	Send(event session.GuardianEvent) error
}

// Dispatcher fans events out to all configured channels asynchronously.
// It implements session.GuardianNotifier.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// NotifyAsync delivers the event on a new goroutine per channel.
func (d *Dispatcher) NotifyAsync(event session.GuardianEvent) {
	for _, ch := range d.channels {
		ch := ch
		go func() {
			if err := ch.Send(event); err != nil {
				d.logger.Warn("guardian notification failed",
					"channel", ch.Name(),
					"kind", event.Kind,
					"session_id", event.SessionID,
					"error", err,
				)
			}
		}()
	}
}

// Channels returns the number of configured channels.
func (d *Dispatcher) Channels() int {
	return len(d.channels)
}
