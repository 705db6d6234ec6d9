// Package budget bounds how much stored knowledge an agent receives and how
// large a single shard may be.
package budget

import (
	"fmt"
	"strings"

	"shardgate/internal/config"
	"shardgate/internal/logging"
	"shardgate/internal/types"
)

// =============================================================================
// Token Budget Advisor
// =============================================================================
// Budgets are looked up per agent. Selection is a single stable first-fit pass
// over candidates already ranked by the retrieval collaborator.

// Candidate is one ranked retrieval result.
type Candidate struct {
	Content string
	Score   float64
	Type    string
	Agent   string
	// Tokens overrides the estimate when positive.
	Tokens int
}

// TokenCount returns the token estimate used for budgeting.
func (c Candidate) TokenCount() int {
	if c.Tokens > 0 {
		return c.Tokens
	}
	return types.EstimateTokens(c.Content)
}

// Selection is the accepted prefix of the candidate list.
type Selection struct {
	Items       []Candidate
	TotalTokens int
	Budget      int
}

// Advisor holds the per-agent budget table.
type Advisor struct {
	defaultTokens int
	maxMemories   int
	agents        map[string]int
}

// New builds an advisor from config. Zero values fall back to the stock table.
func New(cfg config.BudgetConfig) *Advisor {
	def := config.DefaultBudgetConfig()
	a := &Advisor{
		defaultTokens: cfg.DefaultTokens,
		maxMemories:   cfg.MaxMemories,
		agents:        make(map[string]int, len(def.Agents)),
	}
	if a.defaultTokens <= 0 {
		a.defaultTokens = def.DefaultTokens
	}
	if a.maxMemories <= 0 {
		a.maxMemories = def.MaxMemories
	}
	for agent, tokens := range def.Agents {
		a.agents[agent] = tokens
	}
	for agent, tokens := range cfg.Agents {
		if tokens > 0 {
			a.agents[agent] = tokens
		}
	}
	return a
}

// Budget returns the token ceiling for agent. Unlisted agents get the default.
func (a *Advisor) Budget(agent string) int {
	if tokens, ok := a.agents[agent]; ok {
		return tokens
	}
	return a.defaultTokens
}

// MaxMemories returns the maximum number of items selected for agent.
func (a *Advisor) MaxMemories(string) int {
	return a.maxMemories
}

// Select walks candidates in order. Candidates scoring below minScore are
// skipped; the rest are accepted until the next one would exceed the agent's
// token ceiling or memory cap, at which point selection stops.
func (a *Advisor) Select(agent string, candidates []Candidate, minScore float64) Selection {
	sel := Selection{Budget: a.Budget(agent)}
	limit := a.MaxMemories(agent)

	for _, c := range candidates {
		if c.Score < minScore {
			continue
		}
		tokens := c.TokenCount()
		if sel.TotalTokens+tokens > sel.Budget || len(sel.Items) >= limit {
			logging.BudgetDebug("Select: stopping at candidate %d tokens (%d/%d used, %d/%d items)",
				tokens, sel.TotalTokens, sel.Budget, len(sel.Items), limit)
			break
		}
		sel.Items = append(sel.Items, c)
		sel.TotalTokens += tokens
	}

	logging.Budget("Select(%s): %d/%d candidates, %d/%d tokens",
		agent, len(sel.Items), len(candidates), sel.TotalTokens, sel.Budget)
	logging.Audit().ContextSelected(agent, len(sel.Items), len(candidates), sel.TotalTokens, sel.Budget)
	return sel
}

// ShardCeiling returns the ingestion token ceiling for a shard of memType.
// Types with a wider band than the default keep their own upper bound when it
// exceeds the configured ceiling.
func ShardCeiling(memType types.MemoryType, maxTokensPerShard int) int {
	upper := memType.TokenBounds().Max
	if upper > types.DefaultTokenBounds.Max && upper > maxTokensPerShard {
		return upper
	}
	return maxTokensPerShard
}

// FormatBlock renders one candidate as a context block.
func FormatBlock(c Candidate) string {
	return fmt.Sprintf("[%s | %s | score: %.2f]\n%s\n", c.Type, c.Agent, c.Score, c.Content)
}

// FormatForContext joins rendered blocks, stopping before maxTokens would be
// exceeded. Block cost is measured on the rendered text.
func FormatForContext(items []Candidate, maxTokens int) string {
	var blocks []string
	used := 0
	for _, c := range items {
		block := FormatBlock(c)
		tokens := types.EstimateTokens(block)
		if used+tokens > maxTokens {
			break
		}
		blocks = append(blocks, block)
		used += tokens
	}
	return strings.Join(blocks, "\n")
}
