package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Selection weights. They must sum to 1.0.
const (
	weightTriggers    = 0.35
	weightCategory    = 0.25
	weightDescription = 0.20
	weightTools       = 0.20

	// languageMultiplier boosts agents whose declared languages or
	// frameworks match the context. Scores are capped at 1.0 after it.
	languageMultiplier = 1.15

	// MinSelectionScore is the floor below which the fallback agent wins.
	MinSelectionScore = 0.60

	// runnerUpMargin defines "ambiguous": candidates within this distance
	// of the leader are reported alongside it.
	runnerUpMargin = 0.02
)

// Filters narrow the candidate set before scoring.
type Filters struct {
	RequiredTools []string
	Exclude       []string
	Category      string
}

// Candidate pairs an agent with its computed score.
type Candidate struct {
	Agent *Agent
	Score float64
}

// Selection is the outcome of one selector run.
type Selection struct {
	Agent     *Agent
	Score     float64
	Rationale string
	RunnersUp []Candidate
	Fallback  bool
}

// Selector scores agents from a registry against a task context.
type Selector struct {
	registry *Registry
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select returns the best-matching agent for the context, or the
// general-purpose fallback when nothing scores above MinSelectionScore.
func (s *Selector) Select(tc TaskContext, filters *Filters) (Selection, error) {
	if tc.Empty() {
		return s.fallback("empty task context")
	}

	var candidates []Candidate
	for _, a := range s.registry.List() {
		if a.Name == FallbackAgent || excluded(a, filters) {
			continue
		}
		candidates = append(candidates, Candidate{Agent: a, Score: Score(a, tc, filters)})
	}
	if len(candidates) == 0 {
		return s.fallback("no eligible agents")
	}

	// Rank by score, then priority, then name.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Agent.Priority != candidates[j].Agent.Priority {
			return candidates[i].Agent.Priority > candidates[j].Agent.Priority
		}
		return candidates[i].Agent.Name < candidates[j].Agent.Name
	})

	leader := candidates[0]
	if leader.Score < MinSelectionScore {
		return s.fallback(fmt.Sprintf("best candidate %s scored %.2f, below %.2f", leader.Agent.Name, leader.Score, MinSelectionScore))
	}

	sel := Selection{
		Agent:     leader.Agent,
		Score:     leader.Score,
		Rationale: fmt.Sprintf("matched %s (score %.2f)", leader.Agent.Name, leader.Score),
	}
	for _, c := range candidates[1:] {
		if leader.Score-c.Score <= runnerUpMargin {
			sel.RunnersUp = append(sel.RunnersUp, c)
		}
	}
	if len(sel.RunnersUp) > 0 {
		names := make([]string, len(sel.RunnersUp))
		for i, c := range sel.RunnersUp {
			names[i] = fmt.Sprintf("%s (%.2f)", c.Agent.Name, c.Score)
		}
		sel.Rationale += "; close runners-up: " + strings.Join(names, ", ")
	}
	return sel, nil
}

func (s *Selector) fallback(reason string) (Selection, error) {
	a, ok := s.registry.Get(FallbackAgent)
	if !ok {
		// The fallback agent may be absent in a minimal install; a
		// synthetic descriptor keeps selection total.
		a = &Agent{Name: FallbackAgent, Category: "general", Description: "General-purpose agent"}
	}
	return Selection{Agent: a, Rationale: "fallback: " + reason, Fallback: true}, nil
}

func excluded(a *Agent, filters *Filters) bool {
	if filters == nil {
		return false
	}
	for _, name := range filters.Exclude {
		if a.Name == name {
			return true
		}
	}
	if filters.Category != "" && a.Category != filters.Category {
		return true
	}
	return false
}

// Score computes the weighted match between one agent and a context.
func Score(a *Agent, tc TaskContext, filters *Filters) float64 {
	kw := make(map[string]bool, len(tc.Keywords))
	for _, k := range tc.Keywords {
		kw[k] = true
	}

	triggerScore := 0.0
	if len(a.Triggers) > 0 {
		hits := 0
		for _, trig := range a.Triggers {
			if kw[strings.ToLower(trig)] {
				hits++
			}
		}
		triggerScore = float64(hits) / float64(len(a.Triggers))
	}

	categoryScore := 0.0
	for _, cat := range tc.Categories {
		if strings.EqualFold(cat, a.Category) {
			categoryScore = 1.0
			break
		}
	}

	descScore := descriptionOverlap(a.Description, kw)

	toolScore := 1.0
	if filters != nil && len(filters.RequiredTools) > 0 && !a.HasTools(filters.RequiredTools) {
		toolScore = 0.0
	}

	score := weightTriggers*triggerScore +
		weightCategory*categoryScore +
		weightDescription*descScore +
		weightTools*toolScore

	if matchesLanguage(a, tc) {
		score *= languageMultiplier
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// descriptionOverlap is the fraction of description tokens present in the
// context keywords.
func descriptionOverlap(description string, keywords map[string]bool) float64 {
	tokens := tokenizeKeywords(description)
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		if keywords[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func matchesLanguage(a *Agent, tc TaskContext) bool {
	for _, lang := range tc.Languages {
		for _, al := range a.Languages {
			if strings.EqualFold(lang, al) {
				return true
			}
		}
	}
	for _, fw := range tc.Frameworks {
		for _, af := range a.Frameworks {
			if strings.EqualFold(fw, af) {
				return true
			}
		}
	}
	return false
}
