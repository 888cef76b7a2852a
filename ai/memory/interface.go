// Package memory provides the short/long-term memory consolidator that builds
// personalized context for a learner.
package memory

import (
	"context"
	"time"
)

// ShortTermEntry is one session's footprint in the per-user ring buffer.
type ShortTermEntry struct {
	SessionID      string    `json:"session_id"`
	Date           time.Time `json:"date"`
	Module         string    `json:"module"`
	Topics         []string  `json:"topics"`
	Mistakes       []string  `json:"mistakes"`
	VocabularyUsed []string  `json:"vocabulary_used"`
	Energy         string    `json:"energy"`
}

// Interest is one ranked interest in the long-term profile.
type Interest struct {
	Topic         string    `json:"topic"`
	MentionCount  int       `json:"mention_count"`
	Strength      float64   `json:"strength"` // 0-10, derived from mentions
	LastMentioned time.Time `json:"last_mentioned"`
}

// LearningStyle is the preferred learning channel pair.
type LearningStyle struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// ConceptMasteryRecord tracks accuracy over repeated attempts of one concept.
// MasteryFlag transitions false to true exactly once and never reverts.
type ConceptMasteryRecord struct {
	Concept         string    `json:"concept"`
	Module          string    `json:"module"`
	Attempts        int       `json:"attempts"`
	CorrectAttempts int       `json:"correct_attempts"`
	Level           float64   `json:"level"` // blended mastery level 0-100
	MasteryFlag     bool      `json:"mastery_flag"`
	FirstSeen       time.Time `json:"first_seen"`
	HoursToMastery  float64   `json:"hours_to_mastery,omitempty"`
}

// LongTermProfile persists indefinitely and is updated incrementally.
type LongTermProfile struct {
	UserID              string                           `json:"user_id"`
	Interests           []*Interest                      `json:"interests"`
	LearningStyle       LearningStyle                    `json:"learning_style"`
	FavoriteTopics      []string                         `json:"favorite_topics"`
	ChallengingConcepts []string                         `json:"challenging_concepts"`
	PersonalityTraits   []string                         `json:"personality_traits"`
	RecurringQuestions  []string                         `json:"recurring_questions"`
	Concepts            map[string]*ConceptMasteryRecord `json:"concepts"`
	Confidence          float64                          `json:"confidence"` // 0-100
	UpdatedAt           time.Time                        `json:"updated_at"`
}

// Store is the durable memory surface the consolidator needs. The store
// collaborator is eventually consistent; reads may lag writes.
type Store interface {
	// GetProfile returns the profile, or (nil, nil) when none exists yet.
	GetProfile(ctx context.Context, userID string) (*LongTermProfile, error)

	// PutProfile upserts the profile.
	PutProfile(ctx context.Context, profile *LongTermProfile) error

	// RecentEntries returns up to limit short-term entries, newest first.
	RecentEntries(ctx context.Context, userID string, limit int) ([]*ShortTermEntry, error)

	// AppendEntry appends to the user's ring buffer, trimming beyond its bound.
	AppendEntry(ctx context.Context, userID string, entry *ShortTermEntry) error
}

// PersonalContext is the consolidated context handed to the orchestrator.
type PersonalContext struct {
	Greeting        string
	SuggestedTopics []string
	// AvoidTopics lists topics covered in the last 3 sessions, to reduce repetition.
	AvoidTopics []string
	Profile     *LongTermProfile
	Recent      []*ShortTermEntry
}

// ConceptSignal is one concept's attempt outcome within a session.
type ConceptSignal struct {
	Concept string
	Module  string
	// Attempts and Correct are the increments observed this session.
	Attempts int
	Correct  int
	// Level is the freshly observed mastery estimate 0-100, blended into the
	// stored level as stored*0.7 + new*0.3.
	Level float64
}

// Signals carries everything a finished turn or session contributes to the
// long-term profile.
type Signals struct {
	// TopicMentions counts topic mentions observed this session.
	TopicMentions map[string]int
	Concepts      []ConceptSignal
	Mistakes      []string
	Traits        []string
	Questions     []string
}
