package session

import (
	"context"
	"sort"
	"time"

	"github.com/hrygo/tutorsense/ai/memory"
	"github.com/hrygo/tutorsense/ai/observability/logging"
)

// Summary is the guardian-facing digest of one finished session.
type Summary struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	Module           string    `json:"module"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationMinutes  int       `json:"duration_minutes"`
	Messages         int       `json:"messages"`
	TopicsDiscussed  []string  `json:"topics_discussed"`
	MasteredConcepts []string  `json:"mastered_concepts"`
	ReviewConcepts   []string  `json:"review_concepts"`
	ProgressPct      float64   `json:"progress_pct"`
	Energy           string    `json:"energy"`
	Performance      string    `json:"performance"`
	EndReason        string    `json:"end_reason"` // requested or inactivity
}

// End closes a session, consolidates its memory and archives the summary.
// The session is unregistered even when a persistence step fails; summaries
// are best-effort, learning state is not lost beyond this session.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (*Summary, error) {
	return o.end(ctx, sessionID, "requested")
}

func (o *Orchestrator) end(ctx context.Context, sessionID, reason string) (*Summary, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateEnded {
		return nil, ErrSessionEnded
	}
	s.State = StateEnded
	now := o.now()

	o.mu.Lock()
	delete(o.sessions, sessionID)
	active := len(o.sessions)
	o.mu.Unlock()
	o.deps.Exporter.SetActiveSessions(active)

	logger := logging.WithSession(o.deps.Logger, s.ID, s.UserID, s.Module)
	summary := o.buildSummary(s, now, reason)

	entry := &memory.ShortTermEntry{
		SessionID:      s.ID,
		Date:           now,
		Module:         s.Module,
		Topics:         append([]string(nil), s.TopicsDiscussed...),
		Mistakes:       append([]string(nil), s.mistakes...),
		VocabularyUsed: sortedKeys(s.vocab),
		Energy:         string(s.Energy),
	}
	if err := o.deps.Consolidator.RecordSession(ctx, s.UserID, entry); err != nil {
		logger.Warn("short-term memory write failed", "error", err)
	}

	if err := o.deps.Consolidator.UpdateLongTerm(ctx, s.UserID, o.buildSignals(s)); err != nil {
		logger.Warn("long-term profile update failed", "error", err)
	}

	if o.deps.Archiver != nil {
		if err := o.deps.Archiver.ArchiveSession(ctx, summary); err != nil {
			logger.Warn("session archive failed", "error", err)
		}
	}

	logger.Info("session ended",
		"reason", reason,
		"duration_min", summary.DurationMinutes,
		"messages", summary.Messages,
		"topics", len(summary.TopicsDiscussed),
	)
	return summary, nil
}

func (o *Orchestrator) buildSummary(s *Session, now time.Time, reason string) *Summary {
	return &Summary{
		SessionID:        s.ID,
		UserID:           s.UserID,
		Module:           s.Module,
		StartedAt:        s.StartedAt,
		EndedAt:          now,
		DurationMinutes:  int(now.Sub(s.StartedAt).Minutes()),
		Messages:         s.MessageCount,
		TopicsDiscussed:  append([]string(nil), s.TopicsDiscussed...),
		MasteredConcepts: sortedKeys(s.MasteredConcepts),
		ReviewConcepts:   sortedKeys(s.ReviewConcepts),
		ProgressPct:      s.MissionProgressPct,
		Energy:           string(s.Energy),
		Performance:      string(s.Performance),
		EndReason:        reason,
	}
}

// buildSignals converts the session's observations into profile signals.
func (o *Orchestrator) buildSignals(s *Session) memory.Signals {
	mentions := make(map[string]int, len(s.TopicsDiscussed))
	for _, topic := range s.TopicsDiscussed {
		if t := s.tallies[topic]; t != nil {
			mentions[topic] = t.attempts
		} else {
			mentions[topic] = 1
		}
	}

	concepts := make([]memory.ConceptSignal, 0, len(s.tallies))
	for topic, t := range s.tallies {
		level := 0.0
		if t.attempts > 0 {
			level = float64(t.correct) / float64(t.attempts) * 100
		}
		concepts = append(concepts, memory.ConceptSignal{
			Concept:  topic,
			Module:   s.Module,
			Attempts: t.attempts,
			Correct:  t.correct,
			Level:    level,
		})
	}
	sort.Slice(concepts, func(i, j int) bool { return concepts[i].Concept < concepts[j].Concept })

	var traits []string
	if s.Performance == PerfExcelling {
		traits = append(traits, "fast learner in "+s.Module)
	}
	if s.Energy == EnergyLow {
		traits = append(traits, "prefers shorter sessions")
	}

	return memory.Signals{
		TopicMentions: mentions,
		Concepts:      concepts,
		Mistakes:      append([]string(nil), s.mistakes...),
		Traits:        traits,
		Questions:     append([]string(nil), s.questions...),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
