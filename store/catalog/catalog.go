// Package catalog loads the read-only content catalogue: offline fallback
// items and curriculum topic lists. Loaded once at startup.
package catalog

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// ContentType classifies a fallback content item.
type ContentType string

const (
	TypeQuiz      ContentType = "quiz"
	TypeFact      ContentType = "fact"
	TypeJoke      ContentType = "joke"
	TypeChallenge ContentType = "challenge"
)

// ContentItem is one piece of precomputed offline material.
type ContentItem struct {
	ID          string      `json:"id"`
	Type        ContentType `json:"type"`
	Module      string      `json:"module"`
	Payload     string      `json:"payload"`
	RewardValue int         `json:"reward_value"`
}

// Catalog is the static content source.
type Catalog struct {
	Items  []ContentItem       `json:"items"`
	Topics map[string][]string `json:"topics"` // module -> curriculum topics
}

// Load reads a catalogue from a JSON file. An empty path returns the built-in
// default catalogue.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalogue %s", path)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "parse catalogue %s", path)
	}
	if len(c.Items) == 0 {
		return nil, errors.Errorf("catalogue %s contains no items", path)
	}
	return &c, nil
}

// ByModule returns the items for a module.
func (c *Catalog) ByModule(module string) []ContentItem {
	var items []ContentItem
	for _, item := range c.Items {
		if item.Module == module {
			items = append(items, item)
		}
	}
	return items
}

// ModuleTopics returns curriculum topics for a module.
func (c *Catalog) ModuleTopics(module string) []string {
	if c.Topics == nil {
		return nil
	}
	return c.Topics[module]
}

// Modules returns the known module names, sorted.
func (c *Catalog) Modules() []string {
	modules := make([]string, 0, len(c.Topics))
	for module := range c.Topics {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// Default returns the built-in offline bank, used when no catalogue file is
// configured.
func Default() *Catalog {
	return &Catalog{
		Items: []ContentItem{
			{ID: "math-quiz-1", Type: TypeQuiz, Module: "math", Payload: "Quick quiz! What is 7 x 8?", RewardValue: 10},
			{ID: "math-quiz-2", Type: TypeQuiz, Module: "math", Payload: "If you cut a pizza into 8 slices and eat 2, what fraction is left?", RewardValue: 10},
			{ID: "math-fact-1", Type: TypeFact, Module: "math", Payload: "Zero is the only number that can't be represented in Roman numerals!", RewardValue: 5},
			{ID: "math-joke-1", Type: TypeJoke, Module: "math", Payload: "Why was six afraid of seven? Because seven eight nine!", RewardValue: 5},
			{ID: "math-challenge-1", Type: TypeChallenge, Module: "math", Payload: "Challenge: count by 3s from 3 to 30 out loud!", RewardValue: 15},
			{ID: "science-quiz-1", Type: TypeQuiz, Module: "science", Payload: "Quick quiz! Which planet is known as the Red Planet?", RewardValue: 10},
			{ID: "science-fact-1", Type: TypeFact, Module: "science", Payload: "A bolt of lightning is five times hotter than the surface of the sun!", RewardValue: 5},
			{ID: "science-joke-1", Type: TypeJoke, Module: "science", Payload: "Why can't you trust an atom? Because they make up everything!", RewardValue: 5},
			{ID: "science-challenge-1", Type: TypeChallenge, Module: "science", Payload: "Challenge: name three animals that can fly!", RewardValue: 15},
			{ID: "reading-quiz-1", Type: TypeQuiz, Module: "reading", Payload: "Quick quiz! What do we call the person who writes a book?", RewardValue: 10},
			{ID: "reading-fact-1", Type: TypeFact, Module: "reading", Payload: "The longest word in English has 189,819 letters and takes hours to say!", RewardValue: 5},
			{ID: "reading-challenge-1", Type: TypeChallenge, Module: "reading", Payload: "Challenge: find five things in your room that start with the letter B!", RewardValue: 15},
		},
		Topics: map[string][]string{
			"math":    {"counting", "addition", "subtraction", "multiplication", "fractions", "shapes"},
			"science": {"animals", "plants", "space", "weather", "the human body", "volcanoes"},
			"reading": {"story time", "new words", "rhymes", "comprehension"},
		},
	}
}
