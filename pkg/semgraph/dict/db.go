package dict

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// OpenDB opens the Badger instance backing a dictionary. The default
// logger is disabled; slog carries anything worth saying.
func OpenDB(dir string, readOnly, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ReadOnly = readOnly
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open dictionary db %s: %v", semgraph.ErrIO, dir, err)
	}
	return db, nil
}
