package semgraph

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config carries the fixed, pre-configured paths and tuning knobs every
// stage runs with. Stages take no required arguments; orchestration
// overrides individual values through the environment.
type Config struct {
	// DataDir is the root under which all artifacts live.
	DataDir string

	// StagingDir holds the Badger staging store for node records.
	StagingDir string

	// DictDir holds the Badger-backed symbol dictionary.
	DictDir string

	// BlobPath and IndexPath are the committed graph artifacts.
	BlobPath  string
	IndexPath string

	// SchemaPath and RulesPath are the canonical schema and the
	// coherence rule definitions, loaded once per run.
	SchemaPath string
	RulesPath  string

	// InputPath is the enriched node input file consumed by ingest.
	InputPath string

	// AuditPath is the append-only JSONL audit log.
	AuditPath string

	// BatchSize bounds each committed pipeline round.
	BatchSize int

	// SymbolCapacity is the number of assignable symbol codes. The
	// default admits a full 16-bit space (codes 1..65536) even though
	// symbols are stored as uint32.
	SymbolCapacity uint32

	// ChunkRecords is the number of node records per container chunk.
	ChunkRecords int

	// CacheSize sizes the dictionary and chunk LRU caches.
	CacheSize int
}

// DefaultConfig returns the standard layout rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		StagingDir:     filepath.Join(dataDir, "staging"),
		DictDir:        filepath.Join(dataDir, "dict"),
		BlobPath:       filepath.Join(dataDir, "graph.blob"),
		IndexPath:      filepath.Join(dataDir, "graph.idx"),
		SchemaPath:     filepath.Join(dataDir, "schema.yaml"),
		RulesPath:      filepath.Join(dataDir, "rules.yaml"),
		InputPath:      filepath.Join(dataDir, "input", "nodes.yaml"),
		AuditPath:      filepath.Join(dataDir, "audit.jsonl"),
		BatchSize:      300,
		SymbolCapacity: 1 << 16,
		ChunkRecords:   256,
		CacheSize:      10000,
	}
}

// ConfigFromEnv builds a Config from DGTM_* environment variables,
// falling back to the default layout under DGTM_DATA_DIR (./data).
func ConfigFromEnv() *Config {
	dataDir := os.Getenv("DGTM_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	cfg := DefaultConfig(dataDir)

	if v := os.Getenv("DGTM_SCHEMA"); v != "" {
		cfg.SchemaPath = v
	}
	if v := os.Getenv("DGTM_RULES"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("DGTM_INPUT"); v != "" {
		cfg.InputPath = v
	}
	if v := os.Getenv("DGTM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("DGTM_SYMBOL_CAPACITY"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			cfg.SymbolCapacity = uint32(n)
		}
	}
	return cfg
}
