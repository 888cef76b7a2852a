// Package optimizer implements cost-aware request shaping: conversation
// history compression, cost/quality tier selection and token spend tracking.
package optimizer

import (
	"fmt"
	"strings"

	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/ai/internal/strutil"
)

// Compression defaults.
const (
	// DefaultWindow is the number of most recent messages kept verbatim.
	DefaultWindow = 10

	// summaryKeywords is how many keywords the synthetic middle message carries.
	summaryKeywords = 8
)

// OptimizedRequest is the shaped request handed to the provider.
type OptimizedRequest struct {
	Messages         []llm.Message
	Instructions     string
	EstimatedTokens  int
	CompressionRatio float64 // optimized tokens / original tokens, 1 when nothing was cut
}

// Optimizer compresses conversation history before provider calls.
type Optimizer struct {
	window int
	// compact per-module instruction templates, substituted when available
	instructionTemplates map[string]string
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithWindow overrides the verbatim tail window.
func WithWindow(w int) Option {
	return func(o *Optimizer) {
		if w > 0 {
			o.window = w
		}
	}
}

// WithInstructionTemplate registers a compact instruction template for a module.
func WithInstructionTemplate(module, template string) Option {
	return func(o *Optimizer) { o.instructionTemplates[module] = template }
}

// New creates an Optimizer with default compact templates for the built-in
// tutoring modules.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		window: DefaultWindow,
		instructionTemplates: map[string]string{
			"math":    "You are a friendly math tutor for a child. Short answers, one concept at a time, always encourage.",
			"science": "You are a curious science guide for a child. Short answers, concrete examples, always encourage.",
			"reading": "You are a patient reading coach for a child. Short answers, simple words, always encourage.",
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize shapes (history, instructions) for a provider call.
// The first message and the most recent window are kept verbatim; the middle
// collapses into one synthetic message built from keyword tags. Near-identical
// messages are deduplicated by normalized-text hash. Compression here is a
// bag-of-keywords heuristic, not language understanding.
func (o *Optimizer) Optimize(history []llm.Message, instructions, module string) *OptimizedRequest {
	if tpl, ok := o.instructionTemplates[module]; ok {
		instructions = tpl
	}

	originalTokens := estimateTokens(history) + estimateText(instructions)

	deduped := dedupe(history)

	var messages []llm.Message
	if len(deduped) <= o.window+1 {
		messages = deduped
	} else {
		first := deduped[0]
		tail := deduped[len(deduped)-o.window:]
		middle := deduped[1 : len(deduped)-o.window]

		messages = make([]llm.Message, 0, len(tail)+2)
		messages = append(messages, first)
		if synthetic, ok := summarize(middle); ok {
			messages = append(messages, synthetic)
		}
		messages = append(messages, tail...)
	}

	optimizedTokens := estimateTokens(messages) + estimateText(instructions)
	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(optimizedTokens) / float64(originalTokens)
		if ratio > 1 {
			ratio = 1
		}
	}

	return &OptimizedRequest{
		Messages:         messages,
		Instructions:     instructions,
		EstimatedTokens:  optimizedTokens,
		CompressionRatio: ratio,
	}
}

// dedupe drops messages whose normalized text already occurred.
func dedupe(history []llm.Message) []llm.Message {
	seen := make(map[string]struct{}, len(history))
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		h := m.Role + ":" + strutil.HashText(m.Content)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, m)
	}
	return out
}

// summarize collapses the middle of a conversation into one synthetic message
// of keyword tags.
func summarize(middle []llm.Message) (llm.Message, bool) {
	if len(middle) == 0 {
		return llm.Message{}, false
	}

	var b strings.Builder
	for _, m := range middle {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	keywords := strutil.TopKeywords(b.String(), summaryKeywords)
	if len(keywords) == 0 {
		return llm.Message{}, false
	}

	content := fmt.Sprintf("[Earlier in this conversation, %d messages covered: %s]",
		len(middle), strings.Join(keywords, ", "))
	return llm.SystemPrompt(content), true
}

// estimateTokens approximates token usage at four characters per token.
func estimateTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateText(m.Content)
	}
	return total
}

func estimateText(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}
