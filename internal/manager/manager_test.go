package manager

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
	"github.com/dgtm-project/dgtm/pkg/semgraph/graph"
)

func commit(t *testing.T, cfg *semgraph.Config, terms ...string) {
	t.Helper()
	db, err := dict.OpenDB(cfg.DictDir, false, false)
	if err != nil {
		t.Fatalf("open dict db: %v", err)
	}
	defer db.Close()
	d, err := dict.Open(db, cfg.SymbolCapacity, cfg.CacheSize)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}

	nodes := make([]semgraph.EntityNode, 0, len(terms))
	for _, term := range terms {
		nodes = append(nodes, semgraph.EntityNode{
			Term: term, Category: "emocional", Class: "substantivo",
		})
	}
	g, err := graph.NewBuilder(d).Build(nodes)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if _, err := container.Write(g, cfg.BlobPath, cfg.IndexPath, cfg.ChunkRecords); err != nil {
		t.Fatalf("write container: %v", err)
	}
}

func TestOpenAndLookup(t *testing.T) {
	cfg := semgraph.DefaultConfig(t.TempDir())
	commit(t, cfg, "amor", "medo")

	m := New()
	t.Cleanup(m.CloseAll)

	h, err := m.Open(cfg)
	require.NoError(t, err)

	node, _, err := h.Lookup("amor")
	require.NoError(t, err)
	assert.Equal(t, "amor", node.Term)

	term, err := h.Term(node.Symbol)
	require.NoError(t, err)
	assert.Equal(t, "amor", term)

	_, _, err = h.Lookup("inexistente")
	assert.True(t, errors.Is(err, semgraph.ErrNotFound))
}

func TestHandleCached(t *testing.T) {
	cfg := semgraph.DefaultConfig(t.TempDir())
	commit(t, cfg, "amor")

	m := New()
	t.Cleanup(m.CloseAll)

	h1, err := m.Open(cfg)
	require.NoError(t, err)
	h2, err := m.Open(cfg)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
}

func TestReopensAfterNewBuild(t *testing.T) {
	cfg := semgraph.DefaultConfig(t.TempDir())

	// Build both versions up front; the dictionary is a superset either
	// way, so the blob/index pairs can be swapped in underneath the
	// manager like a real build commit would.
	commit(t, cfg, "amor")
	blob1, idx1 := snapshot(t, cfg)
	commit(t, cfg, "amor", "medo", "raiva")
	blob2, idx2 := snapshot(t, cfg)

	restore(t, cfg, blob1, idx1)

	m := New()
	t.Cleanup(m.CloseAll)

	h1, err := m.Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, h1.reader.Len())

	restore(t, cfg, blob2, idx2)
	// Force a distinct mtime; rename preserves sub-second timestamps
	// only on some filesystems.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(cfg.BlobPath, future, future))

	h2, err := m.Open(cfg)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, 3, h2.reader.Len())
}

func snapshot(t *testing.T, cfg *semgraph.Config) ([]byte, []byte) {
	t.Helper()
	blob, err := os.ReadFile(cfg.BlobPath)
	require.NoError(t, err)
	idx, err := os.ReadFile(cfg.IndexPath)
	require.NoError(t, err)
	return blob, idx
}

func restore(t *testing.T, cfg *semgraph.Config, blob, idx []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.BlobPath, blob, 0o644))
	require.NoError(t, os.WriteFile(cfg.IndexPath, idx, 0o644))
}

func TestOpenMissingDataset(t *testing.T) {
	cfg := semgraph.DefaultConfig(t.TempDir())

	m := New()
	t.Cleanup(m.CloseAll)

	_, err := m.Open(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, semgraph.ErrNotFound))
}
