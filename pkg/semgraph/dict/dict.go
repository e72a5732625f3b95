// Package dict implements the persistent symbol dictionary: an
// injective, replay-stable bidirectional mapping between terms and
// fixed-width symbols, backed by BadgerDB with LRU caches in front.
package dict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Key prefixes for dictionary storage.
const (
	forwardPrefix = byte(0x80) // term -> symbol
	reversePrefix = byte(0x81) // symbol -> term
	systemPrefix  = byte(0xFF) // counter and other metadata
)

// Dictionary is the single source of truth for symbol uniqueness.
// Lookups are pure reads; Allocate is serialized by the allocator lock.
type Dictionary struct {
	db    *badger.DB
	alloc *Allocator

	forward *expirable.LRU[string, semgraph.Symbol]
	reverse *expirable.LRU[semgraph.Symbol, string]
}

// Open creates a dictionary over db. capacity of 0 means
// DefaultCapacity; cacheSize sizes each LRU (no expiration).
func Open(db *badger.DB, capacity uint32, cacheSize int) (*Dictionary, error) {
	alloc, err := NewAllocator(db, capacity)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	return &Dictionary{
		db:      db,
		alloc:   alloc,
		forward: expirable.NewLRU[string, semgraph.Symbol](cacheSize, nil, 0),
		reverse: expirable.NewLRU[semgraph.Symbol, string](cacheSize, nil, 0),
	}, nil
}

// Allocate returns the existing symbol for term, or assigns the next
// free one. The counter advance and both mapping directions commit in
// a single transaction.
func (d *Dictionary) Allocate(term string) (semgraph.Symbol, error) {
	if term == "" {
		return 0, fmt.Errorf("%w: empty term", semgraph.ErrInvalidInput)
	}
	if sym, ok := d.forward.Get(term); ok {
		return sym, nil
	}
	if sym, err := d.lookupSymbol(term); err == nil {
		return sym, nil
	} else if !errors.Is(err, semgraph.ErrNotFound) {
		return 0, err
	}

	d.alloc.mu.Lock()
	defer d.alloc.mu.Unlock()

	// Re-check under the lock: another writer may have won the race.
	if sym, err := d.lookupSymbol(term); err == nil {
		return sym, nil
	} else if !errors.Is(err, semgraph.ErrNotFound) {
		return 0, err
	}

	var sym semgraph.Symbol
	err := d.db.Update(func(txn *badger.Txn) error {
		var err error
		sym, err = d.alloc.reserve(txn)
		if err != nil {
			return err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(sym))
		if err := txn.Set(forwardKey(term), buf); err != nil {
			return err
		}
		return txn.Set(reverseKey(sym), []byte(term))
	})
	if err != nil {
		if errors.Is(err, semgraph.ErrCapacityExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: allocate %q: %v", semgraph.ErrIO, term, err)
	}
	d.alloc.advance()

	d.forward.Add(term, sym)
	d.reverse.Add(sym, term)
	slog.Debug("symbol allocated", "term", term, "symbol", sym.String())
	return sym, nil
}

// Symbol resolves a term to its symbol without allocating.
// Returns semgraph.ErrNotFound for unknown terms.
func (d *Dictionary) Symbol(term string) (semgraph.Symbol, error) {
	if sym, ok := d.forward.Get(term); ok {
		return sym, nil
	}
	return d.lookupSymbol(term)
}

// Term resolves a symbol back to its term.
// Returns semgraph.ErrNotFound for unallocated symbols.
func (d *Dictionary) Term(sym semgraph.Symbol) (string, error) {
	if term, ok := d.reverse.Get(sym); ok {
		return term, nil
	}
	var term string
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(reverseKey(sym))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: symbol %s", semgraph.ErrNotFound, sym)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			term = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	d.reverse.Add(sym, term)
	d.forward.Add(term, sym)
	return term, nil
}

func (d *Dictionary) lookupSymbol(term string) (semgraph.Symbol, error) {
	var sym semgraph.Symbol
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(forwardKey(term))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: term %q", semgraph.ErrNotFound, term)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sym = semgraph.Symbol(binary.BigEndian.Uint32(val))
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	d.forward.Add(term, sym)
	d.reverse.Add(sym, term)
	return sym, nil
}

// NextFree returns the symbol the next allocation would receive.
func (d *Dictionary) NextFree() semgraph.Symbol { return d.alloc.NextFree() }

// Len returns the number of allocated symbols.
func (d *Dictionary) Len() uint32 { return d.alloc.Allocated() }

// forwardKey builds the term -> symbol key:
// [0x80 | len(2) | term bytes]. The length prefix keeps terms that are
// prefixes of each other from colliding in range scans.
func forwardKey(term string) []byte {
	key := make([]byte, 3+len(term))
	key[0] = forwardPrefix
	binary.BigEndian.PutUint16(key[1:3], uint16(len(term)))
	copy(key[3:], term)
	return key
}

// reverseKey builds the symbol -> term key: [0x81 | symbol(4)].
// BigEndian so lexicographic order matches numeric order.
func reverseKey(sym semgraph.Symbol) []byte {
	key := make([]byte, 5)
	key[0] = reversePrefix
	binary.BigEndian.PutUint32(key[1:5], uint32(sym))
	return key
}
