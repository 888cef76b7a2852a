// Package session implements the per-conversation state machine and the
// orchestrator that drives each tutoring turn through memory, optimization,
// caching and the provider.
package session

import (
	"sync"
	"time"

	"github.com/hrygo/tutorsense/ai/core/llm"
)

// State is the session lifecycle state.
// Created -> Active -> (BreakSuggested) -> Active|Ended -> Ended.
type State string

const (
	StateCreated State = "created"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// EnergyLevel is the classified energy of the learner.
type EnergyLevel string

const (
	EnergyHigh   EnergyLevel = "high"
	EnergyMedium EnergyLevel = "medium"
	EnergyLow    EnergyLevel = "low"
)

// PerformanceLevel is the classified performance of the learner.
type PerformanceLevel string

const (
	PerfStruggling  PerformanceLevel = "struggling"
	PerfProgressing PerformanceLevel = "progressing"
	PerfExcelling   PerformanceLevel = "excelling"
)

// conceptTally tracks per-topic attempt outcomes within one session.
type conceptTally struct {
	attempts int
	correct  int
}

// Session is one continuous tutoring interaction for a user and module.
// All mutation happens under mu; the orchestrator serializes turns so there
// is never more than one in-flight provider call per session.
type Session struct {
	mu sync.Mutex

	ID                string
	UserID            string
	Module            string
	State             State
	StartedAt         time.Time
	LastInteractionAt time.Time

	Energy      EnergyLevel
	Performance PerformanceLevel

	MessageCount       int
	TopicsDiscussed    []string // ordered, unique
	MasteredConcepts   map[string]struct{}
	ReviewConcepts     map[string]struct{}
	MissionProgressPct float64

	// BreakSuggested is one-way: set at most once per session.
	BreakSuggested bool

	history   []llm.Message
	tallies   map[string]*conceptTally
	vocab     map[string]struct{}
	mistakes  []string
	questions []string
}

func newSession(id, userID, module string, now time.Time) *Session {
	return &Session{
		ID:                id,
		UserID:            userID,
		Module:            module,
		State:             StateCreated,
		StartedAt:         now,
		LastInteractionAt: now,
		Energy:            EnergyMedium,
		Performance:       PerfProgressing,
		MasteredConcepts:  make(map[string]struct{}),
		ReviewConcepts:    make(map[string]struct{}),
		tallies:           make(map[string]*conceptTally),
		vocab:             make(map[string]struct{}),
	}
}

// addTopic appends a topic preserving order and uniqueness.
func (s *Session) addTopic(topic string) {
	for _, t := range s.TopicsDiscussed {
		if t == topic {
			return
		}
	}
	s.TopicsDiscussed = append(s.TopicsDiscussed, topic)
}

// currentTopic is the most recently discussed topic, or the module name
// before any topic was tagged.
func (s *Session) currentTopic() string {
	if len(s.TopicsDiscussed) == 0 {
		return s.Module
	}
	return s.TopicsDiscussed[len(s.TopicsDiscussed)-1]
}

func (s *Session) tally(topic string) *conceptTally {
	t := s.tallies[topic]
	if t == nil {
		t = &conceptTally{}
		s.tallies[topic] = t
	}
	return t
}
