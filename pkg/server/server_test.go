package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgtm-project/dgtm/internal/manager"
	"github.com/dgtm-project/dgtm/pkg/export"
	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
	"github.com/dgtm-project/dgtm/pkg/semgraph/graph"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// commitDataset builds and commits a small graph under a fresh data
// dir, the same way the build stage would.
func commitDataset(t *testing.T) *semgraph.Config {
	t.Helper()
	cfg := semgraph.DefaultConfig(t.TempDir())

	db, err := dict.OpenDB(cfg.DictDir, false, false)
	if err != nil {
		t.Fatalf("open dict db: %v", err)
	}
	d, err := dict.Open(db, cfg.SymbolCapacity, cfg.CacheSize)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}

	g, err := graph.NewBuilder(d).Build([]semgraph.EntityNode{
		{Term: "amor", Category: "emocional", Class: "substantivo",
			Tone: "positivo", Intensity: 85, Plausibility: 90, Related: []string{"amizade"}},
		{Term: "amizade", Category: "social", Class: "substantivo",
			Tone: "positivo", Intensity: 70, Plausibility: 80},
	})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if _, err := container.Write(g, cfg.BlobPath, cfg.IndexPath, cfg.ChunkRecords); err != nil {
		t.Fatalf("write container: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close dict db: %v", err)
	}
	return cfg
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := commitDataset(t)
	mgr := manager.New()
	t.Cleanup(mgr.CloseAll)
	return New(cfg, mgr)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	w := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLookupTerm(t *testing.T) {
	s := testServer(t)

	w := get(t, s, "/v1/lookup/term/amor")
	require.Equal(t, http.StatusOK, w.Code)

	var resp nodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "amor", resp.Node.Term)
	assert.Equal(t, "#0001", resp.Symbol)
	require.Len(t, resp.Relations, 1)
	assert.Equal(t, "semantic", resp.Relations[0].Type)
	assert.Equal(t, "#0002", resp.Relations[0].Target)
}

func TestLookupSymbol(t *testing.T) {
	s := testServer(t)

	for _, path := range []string{"/v1/lookup/symbol/%232", "/v1/lookup/symbol/2"} {
		w := get(t, s, path)
		require.Equal(t, http.StatusOK, w.Code, path)

		var resp nodeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "amizade", resp.Node.Term)
	}
}

func TestLookupUnknownTerm(t *testing.T) {
	s := testServer(t)
	w := get(t, s, "/v1/lookup/term/inexistente")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupBadSymbol(t *testing.T) {
	s := testServer(t)
	w := get(t, s, "/v1/lookup/symbol/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	s := testServer(t)

	w := get(t, s, "/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats["nodes"])
	assert.EqualValues(t, 1, stats["relations"])
}

func TestExportD3(t *testing.T) {
	s := testServer(t)

	w := get(t, s, "/v1/export/d3")
	require.Equal(t, http.StatusOK, w.Code)

	var g export.D3Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "amor", g.Nodes[0].Name)
	require.Len(t, g.Links, 1)
	assert.Equal(t, "semantic", g.Links[0].Relation)
}

func TestNoGraphYet(t *testing.T) {
	cfg := semgraph.DefaultConfig(t.TempDir())
	mgr := manager.New()
	t.Cleanup(mgr.CloseAll)
	s := New(cfg, mgr)

	w := get(t, s, "/v1/lookup/term/amor")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
