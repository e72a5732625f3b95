// Package staging is the Badger-backed store node records pass through
// between pipeline stages. Stages communicate exclusively through
// committed records and batch markers here; there is no shared
// in-memory state across stages, so any stage can crash and resume
// from its last committed marker.
package staging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// ProcessStatus tracks where a record is in the pipeline. Distinct
// from semgraph.Status, which is the node's lifecycle in the committed
// graph.
type ProcessStatus string

const (
	StageEnriched    ProcessStatus = "enriched"
	StageValidated   ProcessStatus = "validated"
	StageNeedsReview ProcessStatus = "needs_review"
)

// Key prefixes. Records are keyed by term; the status index allows
// scanning one stage's backlog without touching the rest.
const (
	nodePrefix   = byte(0x01) // term -> Record (JSON)
	statusPrefix = byte(0x02) // status | 0x00 | term -> nil
	markerPrefix = byte(0xF0) // stage name -> Marker (JSON)
)

// Record wraps a node with its pipeline position and any validation
// issues recorded against it.
type Record struct {
	Node      semgraph.EntityNode `json:"node"`
	Stage     ProcessStatus       `json:"stage"`
	Issues    []string            `json:"issues,omitempty"`
	UpdatedAt int64               `json:"updated_at"`
}

// Marker is a committed batch checkpoint for one stage.
type Marker struct {
	Round     uint64 `json:"round"`
	RunID     string `json:"run_id,omitempty"`
	Processed int    `json:"processed"`
	At        int64  `json:"at"`
}

// Config controls how the staging store opens its Badger instance.
type Config struct {
	Dir        string
	ReadOnly   bool
	InMemory   bool
	SyncWrites bool
}

// Store is the staging database.
type Store struct {
	db       *badger.DB
	readOnly bool
}

// Open opens (or creates) the staging store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.ReadOnly = cfg.ReadOnly
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open staging db %s: %v", semgraph.ErrIO, cfg.Dir, err)
	}
	return &Store{db: db, readOnly: cfg.ReadOnly}, nil
}

// Put upserts one record, moving its status index entry if the stage
// changed.
func (s *Store) Put(rec Record) error {
	return s.PutBatch([]Record{rec})
}

// PutBatch upserts records in a single write batch.
func (s *Store) PutBatch(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().Unix()

	// Read the previous stages first so stale index entries get removed.
	prev := make(map[string]ProcessStatus, len(recs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, rec := range recs {
			old, err := getRecord(txn, rec.Node.Term)
			if err == nil {
				prev[rec.Node.Term] = old.Stage
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: staging read: %v", semgraph.ErrIO, err)
	}

	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	for _, rec := range recs {
		if rec.Node.Term == "" {
			return fmt.Errorf("%w: record with empty term", semgraph.ErrInvalidInput)
		}
		if rec.UpdatedAt == 0 {
			rec.UpdatedAt = now
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encode record %q: %v", semgraph.ErrInvalidInput, rec.Node.Term, err)
		}
		if err := batch.Set(nodeKey(rec.Node.Term), data); err != nil {
			return fmt.Errorf("%w: staging write: %v", semgraph.ErrIO, err)
		}
		if old, ok := prev[rec.Node.Term]; ok && old != rec.Stage {
			if err := batch.Delete(statusKey(old, rec.Node.Term)); err != nil {
				return fmt.Errorf("%w: staging write: %v", semgraph.ErrIO, err)
			}
		}
		if err := batch.Set(statusKey(rec.Stage, rec.Node.Term), nil); err != nil {
			return fmt.Errorf("%w: staging write: %v", semgraph.ErrIO, err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("%w: staging flush: %v", semgraph.ErrIO, err)
	}
	return nil
}

// Get fetches one record by term.
func (s *Store) Get(term string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, term)
		return err
	})
	return rec, err
}

// Has reports whether a term is already staged.
func (s *Store) Has(term string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(nodeKey(term))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: staging read: %v", semgraph.ErrIO, err)
	}
	return true, nil
}

// ByStage returns up to limit records currently at stage, in term
// order. limit <= 0 means no limit.
func (s *Store) ByStage(stage ProcessStatus, limit int) ([]Record, error) {
	var out []Record
	prefix := append([]byte{statusPrefix}, stage...)
	prefix = append(prefix, 0x00)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			term := string(it.Item().Key()[len(prefix):])
			rec, err := getRecord(txn, term)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountByStage tallies records per pipeline stage.
func (s *Store) CountByStage() (map[ProcessStatus]int, error) {
	counts := make(map[ProcessStatus]int)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{statusPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			for i := 1; i < len(key); i++ {
				if key[i] == 0x00 {
					counts[ProcessStatus(key[1:i])]++
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: staging scan: %v", semgraph.ErrIO, err)
	}
	return counts, nil
}

// Marker returns the last committed checkpoint for a stage, or a zero
// marker when the stage has never committed.
func (s *Store) Marker(stage string) (Marker, error) {
	var m Marker
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(markerKey(stage))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return m, fmt.Errorf("%w: read marker %s: %v", semgraph.ErrIO, stage, err)
	}
	return m, nil
}

// CommitMarker records a completed round. A crash after this point
// resumes from here instead of reprocessing the round.
func (s *Store) CommitMarker(stage string, m Marker) error {
	if m.At == 0 {
		m.At = time.Now().Unix()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode marker: %v", semgraph.ErrInvalidInput, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(markerKey(stage), data)
	})
	if err != nil {
		return fmt.Errorf("%w: commit marker %s: %v", semgraph.ErrIO, stage, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getRecord(txn *badger.Txn, term string) (Record, error) {
	var rec Record
	item, err := txn.Get(nodeKey(term))
	if err == badger.ErrKeyNotFound {
		return rec, fmt.Errorf("%w: term %q not staged", semgraph.ErrNotFound, term)
	}
	if err != nil {
		return rec, fmt.Errorf("%w: staging read: %v", semgraph.ErrIO, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return rec, fmt.Errorf("%w: decode record %q: %v", semgraph.ErrIO, term, err)
	}
	return rec, nil
}

func nodeKey(term string) []byte {
	return append([]byte{nodePrefix}, term...)
}

func statusKey(stage ProcessStatus, term string) []byte {
	key := append([]byte{statusPrefix}, stage...)
	key = append(key, 0x00)
	return append(key, term...)
}

func markerKey(stage string) []byte {
	return append([]byte{markerPrefix}, stage...)
}
