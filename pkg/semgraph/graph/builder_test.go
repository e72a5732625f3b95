package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	db, err := dict.OpenDB("", false, true)
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d, err := dict.Open(db, 0, 100)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}
	return NewBuilder(d)
}

func TestBuildAssignsSymbolsInOrder(t *testing.T) {
	b := testBuilder(t)

	g, err := b.Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo"},
		{Term: "amizade", Category: "social", Class: "substantivo"},
	})
	require.NoError(t, err)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "#0001", g.Nodes[0].Symbol.String())
	assert.Equal(t, "amor", g.Nodes[0].Term)
	assert.Equal(t, "#0002", g.Nodes[1].Symbol.String())
	assert.Equal(t, "amizade", g.Nodes[1].Term)

	assert.Equal(t, semgraph.FormatVersion, g.FormatVersion)
	assert.NotEmpty(t, g.BuildID)
	assert.NotZero(t, g.BuiltAt)
	for _, n := range g.Nodes {
		assert.Equal(t, semgraph.StatusActive, n.Status)
		assert.Equal(t, uint32(1), n.Version)
	}
}

func TestRebuildKeepsSymbols(t *testing.T) {
	b := testBuilder(t)

	first, err := b.Build([]semgraph.EntityNode{{Term: "amor", Category: "emocional", Class: "substantivo"}})
	require.NoError(t, err)

	second, err := b.Build([]semgraph.EntityNode{
		{Term: "medo", Category: "emocional", Class: "substantivo"},
		{Term: "amor", Category: "emocional", Class: "substantivo"},
	})
	require.NoError(t, err)

	bySymbol := make(map[string]semgraph.Symbol)
	for _, n := range second.Nodes {
		bySymbol[n.Term] = n.Symbol
	}
	assert.Equal(t, first.Nodes[0].Symbol, bySymbol["amor"])
	assert.NotEqual(t, bySymbol["amor"], bySymbol["medo"])
}

func TestSemanticRelations(t *testing.T) {
	b := testBuilder(t)

	g, err := b.Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo", Related: []string{"amizade", "carinho"}},
		{Term: "amizade", Category: "social", Class: "substantivo"},
		{Term: "carinho", Category: "emocional", Class: "substantivo"},
	})
	require.NoError(t, err)

	require.Len(t, g.Relations, 2)
	for _, rel := range g.Relations {
		assert.Equal(t, semgraph.RelSemantic, rel.Type)
		assert.Equal(t, g.Nodes[0].Symbol, rel.Source)
	}
}

func TestDanglingRelatedAborts(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo", Related: []string{"inexistente"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrConsistency))
	assert.Contains(t, err.Error(), "inexistente")
}

func TestDanglingConsequenceAborts(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build([]semgraph.EntityNode{
		{Term: "raiva", Category: "emocional", Class: "substantivo", Consequence: "briga"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrConsistency))
}

func TestCausalRelationCarriesPlausibility(t *testing.T) {
	b := testBuilder(t)

	g, err := b.Build([]semgraph.EntityNode{
		{Term: "raiva", Category: "emocional", Class: "substantivo", Consequence: "briga", Plausibility: 70},
		{Term: "briga", Category: "social", Class: "substantivo"},
	})
	require.NoError(t, err)

	require.Len(t, g.Relations, 1)
	rel := g.Relations[0]
	assert.Equal(t, semgraph.RelCausal, rel.Type)
	assert.Equal(t, 70, rel.Weight)
}

func TestContextAndEmotionRelationsAreOpportunistic(t *testing.T) {
	b := testBuilder(t)

	// "familia" has a node, "trabalho" does not; only the former
	// produces a contextual edge. Same for the emotion field.
	g, err := b.Build([]semgraph.EntityNode{
		{Term: "saudade", Category: "emocional", Class: "substantivo",
			Contexts: []string{"familia", "trabalho"}, Emotion: "tristeza", Intensity: 60},
		{Term: "familia", Category: "social", Class: "substantivo"},
		{Term: "tristeza", Category: "emocional", Class: "substantivo"},
	})
	require.NoError(t, err)

	var contextual, emotional int
	for _, rel := range g.Relations {
		switch rel.Type {
		case semgraph.RelContextual:
			contextual++
		case semgraph.RelEmotional:
			emotional++
			assert.Equal(t, 60, rel.Weight)
		}
	}
	assert.Equal(t, 1, contextual)
	assert.Equal(t, 1, emotional)
}

func TestNoSelfLoopsOrDuplicates(t *testing.T) {
	b := testBuilder(t)

	g, err := b.Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo",
			Related: []string{"amor", "amizade", "amizade"}},
		{Term: "amizade", Category: "social", Class: "substantivo"},
	})
	require.NoError(t, err)
	assert.Len(t, g.Relations, 1)
}

func TestEmptyInputAborts(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrConsistency))
}

func TestVerify(t *testing.T) {
	b := testBuilder(t)

	g, err := b.Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo", Related: []string{"amizade"}},
		{Term: "amizade", Category: "social", Class: "substantivo"},
	})
	require.NoError(t, err)
	require.NoError(t, b.Verify(g))

	// Tampering with an endpoint breaks the orphan invariant.
	g.Relations[0].Target = semgraph.Symbol(999)
	err = b.Verify(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrConsistency))
}
