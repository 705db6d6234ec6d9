package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTypeCollectionMapping(t *testing.T) {
	counts := map[Collection]int{}
	for _, memType := range AllMemoryTypes {
		c := memType.Collection()
		assert.Contains(t, AllCollections, c, memType)
		counts[c]++
	}
	assert.Equal(t, 7, counts[CollectionKnowledge])
	assert.Equal(t, 1, counts[CollectionBestPractices])
	assert.Equal(t, 1, counts[CollectionAgentMemory])
}

func TestEnumsAreClosed(t *testing.T) {
	assert.Len(t, AllMemoryTypes, 9)
	assert.Len(t, AllAgents, 9)
	assert.Len(t, AllImportance, 4)

	_, ok := ParseMemoryType("random_note")
	assert.False(t, ok)
	_, ok = ParseAgent("")
	assert.False(t, ok)
	a, ok := ParseAgent(" tech-writer ")
	assert.True(t, ok)
	assert.Equal(t, AgentTechWriter, a)
	_, ok = ParseImportance("urgent")
	assert.False(t, ok)
}

func TestActionableTypes(t *testing.T) {
	assert.ElementsMatch(t, []MemoryType{
		TypeStoryOutcome, TypeErrorPattern, TypeIntegrationExample,
		TypeConfigPattern, TypeArchitectureDecision,
	}, ActionableTypes())
	assert.False(t, TypeBestPractice.RequiresFileReference())
	assert.False(t, TypeChatMemory.RequiresFileReference())
}

func TestCollectionNames(t *testing.T) {
	names := DefaultCollectionNames()
	assert.Equal(t, "bmad-knowledge", names.ForType(TypeDatabaseSchema))
	assert.Equal(t, "bmad-best-practices", names.ForType(TypeBestPractice))
	assert.Equal(t, "agent-memory", names.ForType(TypeChatMemory))
	assert.Equal(t, []string{"bmad-knowledge", "bmad-best-practices", "agent-memory"}, names.All())
}
