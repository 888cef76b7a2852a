package fallback

import (
	"log/slog"

	"github.com/hrygo/tutorsense/store/catalog"
)

// Decision is the handling verdict for one classified failure.
type Decision struct {
	Kind Kind

	// Fallback is offline content to serve in place of the provider reply.
	// Nil when the policy serves no fallback (or the bank is empty).
	Fallback *catalog.ContentItem

	ShouldRetry     bool
	WaitTimeSeconds int

	// QueueForReplay asks the caller to queue the utterance for FIFO replay
	// once availability returns.
	QueueForReplay bool

	// NotifyGuardian asks the caller to fire the guardian channel.
	NotifyGuardian bool
}

// policy is one row of the fixed handling table.
type policy struct {
	retry    bool
	wait     int // seconds
	fallback bool
	queue    bool
	notify   bool
}

// policyTable is the fixed per-kind handling policy. Transient kinds serve
// fallback content and queue the utterance; auth failures do neither.
var policyTable = map[Kind]policy{
	KindRateLimit:          {retry: true, wait: 60, fallback: true, queue: true},
	KindTimeout:            {retry: true, wait: 10, fallback: true, queue: true},
	KindNetworkUnavailable: {retry: true, wait: 30, fallback: true, queue: true},
	KindAuthFailure:        {retry: false, notify: true},
	KindServiceMaintenance: {retry: true, wait: 300, fallback: true, queue: true, notify: true},
	KindUnknown:            {retry: false, fallback: true},
}

// Handler resolves provider failures against the policy table and the
// offline content bank.
type Handler struct {
	bank *Bank
}

// NewHandler creates a failure handler over the given content bank.
func NewHandler(bank *Bank) *Handler {
	return &Handler{bank: bank}
}

// Retriable reports whether the policy for a kind allows in-turn retries.
func Retriable(kind Kind) bool {
	return policyTable[kind].retry
}

// HandleContext carries the turn context a decision may need.
type HandleContext struct {
	SessionID string
	Module    string
}

// Handle classifies the error and applies the policy table.
// Transport errors are never surfaced raw to the caller.
func (h *Handler) Handle(err error, hctx HandleContext) Decision {
	kind := Classify(err)
	p := policyTable[kind]

	decision := Decision{
		Kind:            kind,
		ShouldRetry:     p.retry,
		WaitTimeSeconds: p.wait,
		QueueForReplay:  p.queue,
		NotifyGuardian:  p.notify,
	}
	if p.fallback && h.bank != nil {
		if item, ok := h.bank.Pick(hctx.Module); ok {
			decision.Fallback = item
		}
	}

	slog.Warn("provider failure handled",
		"kind", kind,
		"session_id", hctx.SessionID,
		"module", hctx.Module,
		"retry", decision.ShouldRetry,
		"wait_s", decision.WaitTimeSeconds,
		"has_fallback", decision.Fallback != nil,
		"error", err,
	)
	return decision
}
