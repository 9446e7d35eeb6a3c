package router

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/superclaude/engine/internal/provider"
)

// Tie-break policies for consensus queries.
const (
	TieBreakPriority        = "priority"
	TieBreakLongestMajority = "longest-majority"
	TieBreakAbstain         = "abstain"
)

// ReasonInsufficientVoters marks a consensus whose surviving voter count
// dropped below quorum.
const ReasonInsufficientVoters = "insufficient_voters"

// DefaultConsensusTimeout bounds the whole fan-out.
const DefaultConsensusTimeout = 120 * time.Second

// VerdictExtractor normalizes a raw response into an equivalence key. Two
// votes agree iff their keys are equal.
type VerdictExtractor func(resp *provider.ChatResponse) string

// DefaultExtractor prefers a structured "answer" field when the response is
// JSON, otherwise the trimmed lowercased text.
func DefaultExtractor(resp *provider.ChatResponse) string {
	var structured struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &structured); err == nil && structured.Answer != "" {
		return strings.ToLower(strings.TrimSpace(structured.Answer))
	}
	return strings.ToLower(strings.TrimSpace(resp.Text))
}

// ConsensusQuery describes one multi-model vote.
type ConsensusQuery struct {
	Prompt   string
	Models   []provider.ModelDescriptor
	Quorum   int
	TieBreak string
	Timeout  time.Duration
	Extract  VerdictExtractor
	Params   provider.Params
}

// Vote is one model's contribution.
type Vote struct {
	Model    provider.ModelDescriptor `json:"model"`
	Verdict  string                   `json:"verdict"`
	Text     string                   `json:"-"`
	Metadata map[string]any           `json:"metadata,omitempty"`
}

// ConsensusResult aggregates the votes.
type ConsensusResult struct {
	Votes          []Vote  `json:"votes"`
	WinningVerdict string  `json:"winning_verdict,omitempty"`
	AgreementScore float64 `json:"agreement_score"`
	Dissent        []Vote  `json:"dissent,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Failures       int     `json:"failures"`
}

// Consensus fans the prompt out to every model in parallel and aggregates
// verdicts. The default quorum is ceil(n/2)+1 of the n queried models.
// Individual voter failures shrink the effective electorate; if it drops
// below quorum the result is unresolved with reason insufficient_voters.
func (r *Router) Consensus(ctx context.Context, query ConsensusQuery) (*ConsensusResult, error) {
	timeout := query.Timeout
	if timeout <= 0 {
		timeout = DefaultConsensusTimeout
	}
	extract := query.Extract
	if extract == nil {
		extract = DefaultExtractor
	}
	quorum := query.Quorum
	if quorum <= 0 {
		quorum = (len(query.Models)+1)/2 + 1
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	votes := make([]Vote, 0, len(query.Models))
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, model := range query.Models {
		model := model
		g.Go(func() error {
			adapter, ok := r.adapters.Get(model.Provider)
			if !ok {
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			resp, err := adapter.Chat(gctx, model, query.Prompt, query.Params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return nil // voter failure is not a query failure
			}
			votes = append(votes, Vote{
				Model:    model,
				Verdict:  extract(resp),
				Text:     resp.Text,
				Metadata: resp.RawMetadata,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stable vote order regardless of arrival.
	sort.Slice(votes, func(i, j int) bool { return votes[i].Model.Ref() < votes[j].Model.Ref() })

	result := &ConsensusResult{Votes: votes, Failures: failures}
	if len(votes) < quorum {
		result.Reason = ReasonInsufficientVoters
		result.Dissent = votes
		return result, nil
	}

	classes := make(map[string][]Vote)
	for _, v := range votes {
		classes[v.Verdict] = append(classes[v.Verdict], v)
	}

	majority := largestClasses(classes)
	largest := len(classes[majority[0]])
	result.AgreementScore = float64(largest) / float64(len(votes))

	if largest < quorum {
		result.Dissent = votes
		return result, nil
	}

	winner := majority[0]
	if len(majority) > 1 {
		winner = breakTie(query.TieBreak, majority, classes)
		if winner == "" {
			result.Dissent = votes
			return result, nil
		}
	}

	result.WinningVerdict = winner
	for _, v := range votes {
		if v.Verdict != winner {
			result.Dissent = append(result.Dissent, v)
		}
	}
	return result, nil
}

// largestClasses returns the verdicts of maximal class size, name-sorted
// for determinism.
func largestClasses(classes map[string][]Vote) []string {
	max := 0
	for _, vs := range classes {
		if len(vs) > max {
			max = len(vs)
		}
	}
	var out []string
	for verdict, vs := range classes {
		if len(vs) == max {
			out = append(out, verdict)
		}
	}
	sort.Strings(out)
	return out
}

// breakTie resolves equally sized majority classes per policy. Returns ""
// when the policy abstains.
func breakTie(policy string, tied []string, classes map[string][]Vote) string {
	switch policy {
	case TieBreakPriority:
		best, bestPriority := "", -1
		for _, verdict := range tied {
			for _, v := range classes[verdict] {
				if v.Model.Priority > bestPriority {
					best, bestPriority = verdict, v.Model.Priority
				}
			}
		}
		return best
	case TieBreakLongestMajority:
		best, bestLen := "", -1
		for _, verdict := range tied {
			total := 0
			for _, v := range classes[verdict] {
				total += len(v.Text)
			}
			if total > bestLen {
				best, bestLen = verdict, total
			}
		}
		return best
	default: // abstain
		return ""
	}
}
