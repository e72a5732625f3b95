// Package manager owns the read side of committed graphs: it opens
// blob/index readers together with their dictionaries, caches a
// bounded number of open datasets, and transparently reopens a dataset
// when a new build has been swapped in underneath it.
package manager

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgtm-project/dgtm/pkg/export"
	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
)

// MaxOpenGraphs bounds how many datasets stay open at once; the least
// recently used one is closed on eviction.
const MaxOpenGraphs = 8

// Handle is one open dataset: its container reader plus the dictionary
// that resolves terms to symbols.
type Handle struct {
	cfg     *semgraph.Config
	reader  *container.Reader
	dictDB  *badger.DB
	dict    *dict.Dictionary
	blobMod time.Time
}

// Lookup resolves a term through the dictionary and fetches the record
// from the container.
func (h *Handle) Lookup(term string) (*semgraph.EntityNode, []semgraph.Relation, error) {
	sym, err := h.dict.Symbol(term)
	if err != nil {
		return nil, nil, err
	}
	return h.reader.Lookup(sym)
}

// LookupSymbol fetches the record for a symbol directly.
func (h *Handle) LookupSymbol(sym semgraph.Symbol) (*semgraph.EntityNode, []semgraph.Relation, error) {
	return h.reader.Lookup(sym)
}

// Term resolves a symbol back to its term.
func (h *Handle) Term(sym semgraph.Symbol) (string, error) {
	return h.dict.Term(sym)
}

// Stats describes the open build.
func (h *Handle) Stats() map[string]any {
	hdr := h.reader.Header()
	return map[string]any{
		"nodes":     hdr.NodeCount,
		"relations": hdr.RelCount,
		"chunks":    hdr.ChunkCount,
		"built_at":  hdr.BuiltAt,
		"version":   hdr.Version,
		"symbols":   h.dict.Len(),
	}
}

// ExportD3 renders the open build as a D3 visualization graph.
func (h *Handle) ExportD3() (*export.D3Graph, error) {
	return export.FromReader(h.reader)
}

func (h *Handle) close() {
	h.reader.Close()
	h.dictDB.Close()
}

// Manager caches open dataset handles keyed by data directory.
type Manager struct {
	mu      sync.Mutex
	handles *lru.Cache[string, *Handle]
}

// New returns an empty manager.
func New() *Manager {
	handles, _ := lru.NewWithEvict[string, *Handle](MaxOpenGraphs, func(_ string, h *Handle) {
		h.close()
	})
	return &Manager{handles: handles}
}

// Open returns the handle for the dataset rooted at cfg.DataDir,
// opening or reopening it as needed. A dataset whose blob has been
// atomically replaced since it was opened is closed and reopened, so
// readers always observe a complete committed version.
func (m *Manager) Open(cfg *semgraph.Config) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(cfg.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("%w: no committed graph at %s: %v", semgraph.ErrNotFound, cfg.BlobPath, err)
	}

	if h, ok := m.handles.Get(cfg.DataDir); ok {
		if h.blobMod.Equal(info.ModTime()) {
			return h, nil
		}
		m.handles.Remove(cfg.DataDir) // eviction hook closes it
	}

	reader, err := container.Open(cfg.BlobPath, cfg.IndexPath, container.DefaultChunkCache)
	if err != nil {
		return nil, err
	}
	dictDB, err := dict.OpenDB(cfg.DictDir, true, false)
	if err != nil {
		reader.Close()
		return nil, err
	}
	d, err := dict.Open(dictDB, cfg.SymbolCapacity, cfg.CacheSize)
	if err != nil {
		reader.Close()
		dictDB.Close()
		return nil, err
	}

	h := &Handle{
		cfg:     cfg,
		reader:  reader,
		dictDB:  dictDB,
		dict:    d,
		blobMod: info.ModTime(),
	}
	m.handles.Add(cfg.DataDir, h)
	return h, nil
}

// CloseAll closes every open dataset.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles.Purge()
}
