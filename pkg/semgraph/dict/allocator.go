package dict

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// DefaultCapacity is the number of assignable codes, a full 16-bit
// space: with base 1 the codes run 1..65536 inclusive. Symbols are
// stored as uint32, so widening is a configuration change, not a
// format change.
const DefaultCapacity uint32 = 1 << 16

// Key for the persisted allocation counter. System keys live outside
// the forward/reverse prefix space.
var counterKey = []byte{systemPrefix, 0x01}

// Allocator hands out symbols from a monotonically increasing counter
// starting at 1. Allocation is serialized behind a single lock and the
// counter is persisted in the same transaction as the mapping it backs,
// so a replayed dictionary can never hand the same symbol to two terms.
type Allocator struct {
	db       *badger.DB
	capacity uint32

	mu   sync.Mutex
	next uint32 // next symbol to hand out
}

// NewAllocator loads the persisted counter and returns an allocator
// capped at capacity (DefaultCapacity when zero).
func NewAllocator(db *badger.DB, capacity uint32) (*Allocator, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	a := &Allocator{db: db, capacity: capacity}
	if err := a.loadCounter(); err != nil {
		return nil, fmt.Errorf("load symbol counter: %w", err)
	}
	return a, nil
}

// reserve returns the next free symbol and the transaction write that
// persists the advanced counter. Must be called with mu held; the
// caller commits the write together with the term mapping.
// capacity counts assignable codes: codes 1..capacity are valid.
func (a *Allocator) reserve(txn *badger.Txn) (semgraph.Symbol, error) {
	if a.next > a.capacity {
		return 0, fmt.Errorf("%w: %d symbols allocated, capacity %d",
			semgraph.ErrCapacityExceeded, a.next-1, a.capacity)
	}
	sym := semgraph.Symbol(a.next)

	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, a.next)
	if err := txn.Set(counterKey, buf); err != nil {
		return 0, err
	}
	return sym, nil
}

// advance moves the in-memory counter past a successfully committed
// reservation. Must be called with mu held.
func (a *Allocator) advance() {
	a.next++
}

func (a *Allocator) loadCounter() error {
	a.next = 1
	return a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(counterKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) >= 4 {
				// The stored value is the last reserved symbol.
				a.next = binary.BigEndian.Uint32(val) + 1
			}
			return nil
		})
	})
}

// NextFree returns the symbol the next allocation would receive.
func (a *Allocator) NextFree() semgraph.Symbol {
	a.mu.Lock()
	defer a.mu.Unlock()
	return semgraph.Symbol(a.next)
}

// Allocated returns how many symbols have been handed out.
func (a *Allocator) Allocated() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - 1
}
