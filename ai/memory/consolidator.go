package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Consolidation policy constants.
const (
	// DefaultShortTermLimit is the K most recent entries merged into context.
	DefaultShortTermLimit = 10

	// avoidSessions is how many recent sessions feed the avoid-list.
	avoidSessions = 3

	// confidenceIncrement is added per update, capped at 100.
	confidenceIncrement = 2.0

	// masteryAttempts / masteryRatio are the irreversible mastery gate.
	masteryAttempts = 5
	masteryRatio    = 0.8

	// interestHalfLifeDays controls staleness decay of interest strength.
	interestHalfLifeDays = 30

	// favoriteTopicsCount is the size of the favorite-topic shortlist.
	favoriteTopicsCount = 3
)

// Consolidator merges short-term session memory with the long-term profile.
type Consolidator struct {
	store Store
	limit int
	now   func() time.Time
}

// NewConsolidator creates a consolidator over the given store.
func NewConsolidator(store Store, shortTermLimit int) *Consolidator {
	if shortTermLimit <= 0 {
		shortTermLimit = DefaultShortTermLimit
	}
	return &Consolidator{store: store, limit: shortTermLimit, now: time.Now}
}

// BuildContext produces the personalized context for a user: a greeting,
// ranked suggested topics and an avoid-list of recently covered topics.
func (c *Consolidator) BuildContext(ctx context.Context, userID string) (*PersonalContext, error) {
	profile, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load long-term profile")
	}
	if profile == nil {
		profile = newProfile(userID)
	}

	recent, err := c.store.RecentEntries(ctx, userID, c.limit)
	if err != nil {
		return nil, errors.Wrap(err, "load short-term entries")
	}

	avoid := avoidTopics(recent)
	suggested := c.rankTopics(profile, avoid)

	return &PersonalContext{
		Greeting:        c.greeting(profile, recent),
		SuggestedTopics: suggested,
		AvoidTopics:     avoid,
		Profile:         profile,
		Recent:          recent,
	}, nil
}

// RecordSession appends a session's footprint to the short-term ring buffer.
func (c *Consolidator) RecordSession(ctx context.Context, userID string, entry *ShortTermEntry) error {
	return errors.Wrap(c.store.AppendEntry(ctx, userID, entry), "append short-term entry")
}

// UpdateLongTerm folds session signals into the long-term profile.
// Interest strength is min(10, mentionCount*2); mastery level blends as
// stored*0.7 + new*0.3; confidence rises by a fixed increment capped at 100.
// The mastery flag is one-way: once set it never reverts, and hours-to-mastery
// is recorded as elapsed time since the concept was first observed.
func (c *Consolidator) UpdateLongTerm(ctx context.Context, userID string, signals Signals) error {
	profile, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load long-term profile")
	}
	if profile == nil {
		profile = newProfile(userID)
	}

	now := c.now()

	for topic, mentions := range signals.TopicMentions {
		interest := findInterest(profile, topic)
		if interest == nil {
			interest = &Interest{Topic: topic}
			profile.Interests = append(profile.Interests, interest)
		}
		interest.MentionCount += mentions
		interest.Strength = math.Min(10, float64(interest.MentionCount)*2)
		interest.LastMentioned = now
	}

	for _, sig := range signals.Concepts {
		key := sig.Module + "/" + sig.Concept
		record := profile.Concepts[key]
		if record == nil {
			record = &ConceptMasteryRecord{
				Concept:   sig.Concept,
				Module:    sig.Module,
				FirstSeen: now,
			}
			profile.Concepts[key] = record
		}
		record.Attempts += sig.Attempts
		record.CorrectAttempts += sig.Correct
		record.Level = record.Level*0.7 + sig.Level*0.3

		if !record.MasteryFlag &&
			record.Attempts >= masteryAttempts &&
			float64(record.CorrectAttempts)/float64(record.Attempts) >= masteryRatio {
			record.MasteryFlag = true
			record.HoursToMastery = now.Sub(record.FirstSeen).Hours()
			slog.Info("concept mastered",
				"user_id", userID,
				"concept", sig.Concept,
				"module", sig.Module,
				"hours_to_mastery", record.HoursToMastery,
			)
		}
	}

	profile.ChallengingConcepts = mergeUnique(profile.ChallengingConcepts, signals.Mistakes)
	profile.PersonalityTraits = mergeUnique(profile.PersonalityTraits, signals.Traits)
	profile.RecurringQuestions = mergeUnique(profile.RecurringQuestions, signals.Questions)
	profile.FavoriteTopics = c.topFavorites(profile)
	if style, ok := inferLearningStyle(signals); ok {
		profile.LearningStyle = style
	}
	profile.Confidence = math.Min(100, profile.Confidence+confidenceIncrement)
	profile.UpdatedAt = now

	return errors.Wrap(c.store.PutProfile(ctx, profile), "persist long-term profile")
}

func newProfile(userID string) *LongTermProfile {
	return &LongTermProfile{
		UserID:   userID,
		Concepts: make(map[string]*ConceptMasteryRecord),
	}
}

func findInterest(profile *LongTermProfile, topic string) *Interest {
	for _, interest := range profile.Interests {
		if interest.Topic == topic {
			return interest
		}
	}
	return nil
}

// effectiveStrength applies staleness decay: strength halves every
// interestHalfLifeDays since the topic was last mentioned.
func (c *Consolidator) effectiveStrength(interest *Interest) float64 {
	if interest.LastMentioned.IsZero() {
		return interest.Strength
	}
	days := c.now().Sub(interest.LastMentioned).Hours() / 24
	if days <= 0 {
		return interest.Strength
	}
	return interest.Strength * math.Pow(0.5, days/interestHalfLifeDays)
}

// rankTopics orders interests by decayed strength, most recent mention as the
// tie-break, skipping anything on the avoid-list.
func (c *Consolidator) rankTopics(profile *LongTermProfile, avoid []string) []string {
	avoidSet := make(map[string]struct{}, len(avoid))
	for _, topic := range avoid {
		avoidSet[topic] = struct{}{}
	}

	interests := make([]*Interest, 0, len(profile.Interests))
	for _, interest := range profile.Interests {
		if _, skip := avoidSet[interest.Topic]; skip {
			continue
		}
		interests = append(interests, interest)
	}

	sort.SliceStable(interests, func(i, j int) bool {
		si, sj := c.effectiveStrength(interests[i]), c.effectiveStrength(interests[j])
		if si != sj {
			return si > sj
		}
		return interests[i].LastMentioned.After(interests[j].LastMentioned)
	})

	topics := make([]string, len(interests))
	for i, interest := range interests {
		topics[i] = interest.Topic
	}
	return topics
}

// topFavorites returns the strongest decayed interests as the favorite-topic
// shortlist.
func (c *Consolidator) topFavorites(profile *LongTermProfile) []string {
	ranked := c.rankTopics(profile, nil)
	if len(ranked) > favoriteTopicsCount {
		ranked = ranked[:favoriteTopicsCount]
	}
	return ranked
}

// inferLearningStyle reads the engagement shape of one session: a learner who
// asks about as many questions as they make attempts leans on spoken
// explanation first, otherwise hands-on practice leads. Sessions with no
// engagement signals leave the stored style untouched.
func inferLearningStyle(signals Signals) (LearningStyle, bool) {
	attempts := 0
	for _, sig := range signals.Concepts {
		attempts += sig.Attempts
	}
	if attempts == 0 && len(signals.Questions) == 0 {
		return LearningStyle{}, false
	}
	if len(signals.Questions) > 0 && len(signals.Questions)*2 >= attempts {
		return LearningStyle{Primary: "verbal", Secondary: "practice"}, true
	}
	return LearningStyle{Primary: "practice", Secondary: "verbal"}, true
}

// avoidTopics collects the topics of the last few sessions.
func avoidTopics(recent []*ShortTermEntry) []string {
	seen := make(map[string]struct{})
	var topics []string
	for i, entry := range recent {
		if i >= avoidSessions {
			break
		}
		for _, topic := range entry.Topics {
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics
}

// greeting picks a template conditioned on streaks and recent achievements.
func (c *Consolidator) greeting(profile *LongTermProfile, recent []*ShortTermEntry) string {
	streak := sessionStreak(recent, c.now())

	var mastered string
	var masteredAt time.Time
	for _, record := range profile.Concepts {
		if record.MasteryFlag && record.FirstSeen.After(masteredAt) {
			mastered = record.Concept
			masteredAt = record.FirstSeen
		}
	}

	switch {
	case len(recent) == 0:
		return "Hi there! I'm excited to learn together. What should we explore first?"
	case mastered != "" && c.now().Sub(profile.UpdatedAt) < 48*time.Hour:
		return fmt.Sprintf("Welcome back, champion! You mastered %s recently. Ready for the next challenge?", mastered)
	case streak >= 3:
		return fmt.Sprintf("Amazing, that's %d days in a row! Let's keep the streak going.", streak)
	case len(recent[0].Topics) > 0:
		return fmt.Sprintf("Welcome back! Last time we talked about %s. Want to continue, or try something new?", recent[0].Topics[0])
	default:
		return "Welcome back! What are you curious about today?"
	}
}

// sessionStreak counts consecutive calendar days with a session, ending today
// or yesterday.
func sessionStreak(recent []*ShortTermEntry, now time.Time) int {
	days := make(map[string]struct{}, len(recent))
	for _, entry := range recent {
		days[entry.Date.Format("2006-01-02")] = struct{}{}
	}

	streak := 0
	cursor := now
	if _, ok := days[cursor.Format("2006-01-02")]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for {
		if _, ok := days[cursor.Format("2006-01-02")]; !ok {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range incoming {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		existing = append(existing, s)
	}
	return existing
}
