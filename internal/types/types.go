package types

import (
	"sort"
	"strings"
)

// =============================================================================
// MEMORY TYPES
// =============================================================================

// MemoryType is the knowledge category of a shard. The set is closed.
type MemoryType string

const (
	TypeArchitectureDecision MemoryType = "architecture_decision"
	TypeAgentSpec            MemoryType = "agent_spec"
	TypeStoryOutcome         MemoryType = "story_outcome"
	TypeErrorPattern         MemoryType = "error_pattern"
	TypeDatabaseSchema       MemoryType = "database_schema"
	TypeConfigPattern        MemoryType = "config_pattern"
	TypeIntegrationExample   MemoryType = "integration_example"
	TypeBestPractice         MemoryType = "best_practice"
	TypeChatMemory           MemoryType = "chat_memory"
)

// AllMemoryTypes lists every memory type in declaration order.
var AllMemoryTypes = []MemoryType{
	TypeArchitectureDecision,
	TypeAgentSpec,
	TypeStoryOutcome,
	TypeErrorPattern,
	TypeDatabaseSchema,
	TypeConfigPattern,
	TypeIntegrationExample,
	TypeBestPractice,
	TypeChatMemory,
}

// TokenBounds is an inclusive token-count band.
type TokenBounds struct {
	Min int
	Max int
}

// Contains reports whether n lies inside the band.
func (b TokenBounds) Contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

// DefaultTokenBounds applies to every type without its own band.
var DefaultTokenBounds = TokenBounds{Min: 50, Max: 300}

var typeTokenBounds = map[MemoryType]TokenBounds{
	TypeChatMemory: {Min: 50, Max: 1000}, // session and rollup summaries
}

var actionableTypes = map[MemoryType]bool{
	TypeStoryOutcome:         true,
	TypeErrorPattern:         true,
	TypeIntegrationExample:   true,
	TypeConfigPattern:        true,
	TypeArchitectureDecision: true,
}

var typePrefixes = map[MemoryType][]string{
	TypeArchitectureDecision: {"arch-", "arch-decision-"},
	TypeAgentSpec:            {"agent-"},
	TypeStoryOutcome:         {"story-"},
	TypeErrorPattern:         {"error-"},
	TypeDatabaseSchema:       {"schema-"},
	TypeConfigPattern:        {"config-"},
	TypeIntegrationExample:   {"integration-"},
	TypeBestPractice:         {"bp-"},
	TypeChatMemory:           {"chat-"},
}

// String returns the wire form of the type.
func (t MemoryType) String() string { return string(t) }

// Valid reports whether t is one of the known memory types.
func (t MemoryType) Valid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// Collection returns the logical collection the type is stored in.
func (t MemoryType) Collection() Collection {
	switch t {
	case TypeBestPractice:
		return CollectionBestPractices
	case TypeChatMemory:
		return CollectionAgentMemory
	default:
		return CollectionKnowledge
	}
}

// TokenBounds returns the allowed estimated-token band for the type.
func (t MemoryType) TokenBounds() TokenBounds {
	if b, ok := typeTokenBounds[t]; ok {
		return b
	}
	return DefaultTokenBounds
}

// RequiresFileReference reports whether content of this type must cite a
// path:line location.
func (t MemoryType) RequiresFileReference() bool {
	return actionableTypes[t]
}

// ExpectedPrefixes returns the unique-id prefixes conventionally used for t.
func (t MemoryType) ExpectedPrefixes() []string {
	return typePrefixes[t]
}

// ParseMemoryType converts a raw string into a MemoryType.
func ParseMemoryType(s string) (MemoryType, bool) {
	t := MemoryType(strings.TrimSpace(s))
	return t, t.Valid()
}

// ActionableTypes returns the types that require a file reference, sorted.
func ActionableTypes() []MemoryType {
	out := make([]MemoryType, 0, len(actionableTypes))
	for t := range actionableTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// AGENTS
// =============================================================================

// Agent identifies the producer of a shard.
type Agent string

const (
	AgentAnalyst          Agent = "analyst"
	AgentArchitect        Agent = "architect"
	AgentDev              Agent = "dev"
	AgentPM               Agent = "pm"
	AgentSM               Agent = "sm"
	AgentTEA              Agent = "tea"
	AgentTechWriter       Agent = "tech-writer"
	AgentUXDesigner       Agent = "ux-designer"
	AgentQuickFlowSoloDev Agent = "quick-flow-solo-dev"
)

// AllAgents lists every agent identity.
var AllAgents = []Agent{
	AgentAnalyst,
	AgentArchitect,
	AgentDev,
	AgentPM,
	AgentSM,
	AgentTEA,
	AgentTechWriter,
	AgentUXDesigner,
	AgentQuickFlowSoloDev,
}

func (a Agent) String() string { return string(a) }

// Valid reports whether a is a known agent.
func (a Agent) Valid() bool {
	for _, known := range AllAgents {
		if a == known {
			return true
		}
	}
	return false
}

// ParseAgent converts a raw string into an Agent.
func ParseAgent(s string) (Agent, bool) {
	a := Agent(strings.TrimSpace(s))
	return a, a.Valid()
}

// =============================================================================
// IMPORTANCE
// =============================================================================

// Importance ranks how much a shard matters at retrieval time.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// AllImportance lists the importance levels from most to least important.
var AllImportance = []Importance{ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow}

func (i Importance) String() string { return string(i) }

// Valid reports whether i is a known importance level.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	}
	return false
}

// ParseImportance converts a raw string into an Importance.
func ParseImportance(s string) (Importance, bool) {
	i := Importance(strings.TrimSpace(s))
	return i, i.Valid()
}

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection is a logical partition of the vector store. Physical names are
// resolved through CollectionNames.
type Collection string

const (
	CollectionKnowledge     Collection = "knowledge"
	CollectionBestPractices Collection = "best_practices"
	CollectionAgentMemory   Collection = "agent_memory"
)

// AllCollections lists the collections in scan order.
var AllCollections = []Collection{CollectionKnowledge, CollectionBestPractices, CollectionAgentMemory}

func (c Collection) String() string { return string(c) }

// CollectionNames maps logical collections to physical store names.
type CollectionNames struct {
	Knowledge     string `yaml:"knowledge" json:"knowledge"`
	BestPractices string `yaml:"best_practices" json:"best_practices"`
	AgentMemory   string `yaml:"agent_memory" json:"agent_memory"`
}

// DefaultCollectionNames returns the stock physical collection names.
func DefaultCollectionNames() CollectionNames {
	return CollectionNames{
		Knowledge:     "bmad-knowledge",
		BestPractices: "bmad-best-practices",
		AgentMemory:   "agent-memory",
	}
}

// Name returns the physical name of c.
func (n CollectionNames) Name(c Collection) string {
	switch c {
	case CollectionKnowledge:
		return n.Knowledge
	case CollectionBestPractices:
		return n.BestPractices
	case CollectionAgentMemory:
		return n.AgentMemory
	}
	return ""
}

// All returns the physical names of every collection in scan order.
func (n CollectionNames) All() []string {
	return []string{n.Knowledge, n.BestPractices, n.AgentMemory}
}

// ForType returns the physical collection a memory type is stored in.
func (n CollectionNames) ForType(t MemoryType) string {
	return n.Name(t.Collection())
}
