package semgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolString(t *testing.T) {
	assert.Equal(t, "#0001", Symbol(1).String())
	assert.Equal(t, "#0042", Symbol(42).String())
	assert.Equal(t, "#9999", Symbol(9999).String())
	// Wider than four digits once the space grows past it.
	assert.Equal(t, "#65536", Symbol(65536).String())
}

func TestParseSymbol(t *testing.T) {
	for _, in := range []string{"#0042", "42", "#42"} {
		sym, err := ParseSymbol(in)
		require.NoError(t, err, in)
		assert.Equal(t, Symbol(42), sym)
	}

	for _, in := range []string{"", "#", "quarenta", "#-1"} {
		_, err := ParseSymbol(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
}

func TestAttrRoundTrip(t *testing.T) {
	n := &EntityNode{Term: "amor", Intensity: 85}

	v, ok := n.Attr("term")
	assert.True(t, ok)
	assert.Equal(t, "amor", v)

	v, ok = n.Attr("intensity")
	assert.True(t, ok)
	assert.Equal(t, "85", v)

	_, ok = n.Attr("bogus")
	assert.False(t, ok)

	require.NoError(t, n.SetAttr("tone", "positivo"))
	assert.Equal(t, "positivo", n.Tone)

	require.NoError(t, n.SetAttr("intensity", "40"))
	assert.Equal(t, 40, n.Intensity)

	err := n.SetAttr("intensity", "alto")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = n.SetAttr("bogus", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestContextAttrIsIdempotentAppend(t *testing.T) {
	n := &EntityNode{Contexts: []string{"familia"}}

	assert.Equal(t, []string{"familia"}, n.AttrValues("context"))

	require.NoError(t, n.SetAttr("context", "trabalho"))
	require.NoError(t, n.SetAttr("context", "trabalho"))
	assert.Equal(t, []string{"familia", "trabalho"}, n.Contexts)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitValidation, ExitCode(ErrValidation))
	assert.Equal(t, ExitValidation, ExitCode(ErrRuleConflict))
	assert.Equal(t, ExitConsistency, ExitCode(ErrConsistency))
	assert.Equal(t, ExitIO, ExitCode(ErrIO))
	assert.Equal(t, ExitIO, ExitCode(ErrCodecMismatch))
	assert.Equal(t, ExitCapacity, ExitCode(ErrCapacityExceeded))
	assert.Equal(t, ExitError, ExitCode(errors.New("anything else")))

	// Wrapped errors map the same as bare sentinels.
	wrapped := &wrapErr{ErrConsistency}
	assert.Equal(t, ExitConsistency, ExitCode(wrapped))
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }
