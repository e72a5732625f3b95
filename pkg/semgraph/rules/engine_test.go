package rules

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing id", "rules:\n  - if: {emotion: raiva}\n    then: {tone: negativo}\n"},
		{"missing then", "rules:\n  - id: r1\n    if: {emotion: raiva}\n"},
		{"unknown key", "rules:\n  - id: r1\n    iff: {emotion: raiva}\n    then: {tone: negativo}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, semgraph.ErrInvalidInput))
		})
	}
}

func TestEvaluateSingleRule(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: raiva-conflito
    priority: 10
    if:
      emotion: raiva
      context: conflito
    then:
      category: emocional
      tone: negativo
    message: raiva em conflito marca a entrada como emocional negativa
`))
	require.NoError(t, err)

	node := &semgraph.EntityNode{
		Term:     "raiva",
		Emotion:  "raiva",
		Contexts: []string{"conflito", "familia"},
	}
	trace := NewTrace("run-1")

	effects, err := NewEngine().Evaluate(node, rs, trace)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"category": "emocional", "tone": "negativo"}, effects)

	require.NoError(t, Apply(node, effects))
	assert.Equal(t, "emocional", node.Category)
	assert.Equal(t, "negativo", node.Tone)

	// Exactly one trace entry for the one triggered rule.
	require.Equal(t, 1, trace.Len())
	entry := trace.Entries()[0]
	assert.Equal(t, "raiva-conflito", entry.RuleID)
	assert.Equal(t, "raiva", entry.Term)
	assert.Equal(t, "run-1", entry.RunID)
	assert.NotZero(t, entry.At)
}

func TestEvaluateNoMatchNoTrace(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: raiva-conflito
    if: {emotion: raiva, context: conflito}
    then: {tone: negativo}
`))
	require.NoError(t, err)

	// Emotion matches but the context predicate does not.
	node := &semgraph.EntityNode{Term: "raiva", Emotion: "raiva", Contexts: []string{"familia"}}
	trace := NewTrace("run-1")

	effects, err := NewEngine().Evaluate(node, rs, trace)
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Zero(t, trace.Len())
}

func TestEvaluateIdempotent(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: r1
    if: {emotion: medo}
    then: {tone: negativo, intention: alertar}
`))
	require.NoError(t, err)

	node := &semgraph.EntityNode{Term: "medo", Emotion: "medo"}
	eng := NewEngine()

	first, err := eng.Evaluate(node, rs, nil)
	require.NoError(t, err)
	require.NoError(t, Apply(node, first))

	second, err := eng.Evaluate(node, rs, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, Apply(node, second))
	assert.Equal(t, "negativo", node.Tone)
	assert.Equal(t, "alertar", node.Intention)
}

func TestHigherPriorityOverwrites(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: refine
    priority: 20
    if: {context: luto}
    then: {tone: melancolico}
  - id: base
    priority: 10
    if: {emotion: tristeza}
    then: {tone: negativo, category: emocional}
`))
	require.NoError(t, err)

	node := &semgraph.EntityNode{Term: "luto", Emotion: "tristeza", Contexts: []string{"luto"}}
	trace := NewTrace("")

	effects, err := NewEngine().Evaluate(node, rs, trace)
	require.NoError(t, err)
	// Later priority wins the shared field, earlier keeps the rest.
	assert.Equal(t, "melancolico", effects["tone"])
	assert.Equal(t, "emocional", effects["category"])
	assert.Equal(t, 2, trace.Len())
}

func TestExclusiveConflictSamePriority(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: a
    priority: 10
    exclusive: true
    if: {emotion: raiva}
    then: {tone: negativo}
  - id: b
    priority: 10
    exclusive: true
    if: {context: conflito}
    then: {tone: agressivo}
`))
	require.NoError(t, err)

	node := &semgraph.EntityNode{Term: "raiva", Emotion: "raiva", Contexts: []string{"conflito"}}

	_, err = NewEngine().Evaluate(node, rs, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrRuleConflict))
	assert.Contains(t, err.Error(), `"a"`)
	assert.Contains(t, err.Error(), `"b"`)
}

func TestExclusiveAgreementIsNotConflict(t *testing.T) {
	rs, err := Parse([]byte(`
rules:
  - id: a
    priority: 10
    exclusive: true
    if: {emotion: raiva}
    then: {tone: negativo}
  - id: b
    priority: 10
    exclusive: true
    if: {context: conflito}
    then: {tone: negativo}
`))
	require.NoError(t, err)

	node := &semgraph.EntityNode{Term: "raiva", Emotion: "raiva", Contexts: []string{"conflito"}}

	effects, err := NewEngine().Evaluate(node, rs, nil)
	require.NoError(t, err)
	assert.Equal(t, "negativo", effects["tone"])
}

func TestTraceMirrorsToAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trace, f, err := OpenTrace("run-7", path)
	require.NoError(t, err)

	trace.Append(TraceEntry{RuleID: "r1", Term: "amor", Effects: map[string]string{"tone": "positivo"}})
	trace.Append(TraceEntry{RuleID: "r2", Term: "amor"})
	require.NoError(t, f.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []TraceEntry
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var e TraceEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, sc.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].RuleID)
	assert.Equal(t, "run-7", got[0].RunID)
	assert.Equal(t, "positivo", got[0].Effects["tone"])
	assert.Equal(t, "r2", got[1].RuleID)
}
