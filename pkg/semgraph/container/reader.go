package container

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/zstd"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// DefaultChunkCache is the number of decompressed chunks kept warm for
// repeated lookups.
const DefaultChunkCache = 16

// Reader serves point lookups against a committed blob/index pair.
// It decompresses only the addressed chunk per lookup, with a small
// LRU amortizing repeated hits into the same chunk. Safe for
// concurrent use.
type Reader struct {
	f       *os.File
	header  Header
	table   []ChunkInfo
	index   map[semgraph.Symbol]IndexEntry
	dataOff int64

	dec   *zstd.Decoder
	mu    sync.Mutex // guards chunk loads; lookups against cache are lock-free
	cache *expirable.LRU[uint32, []byte]
}

// Open maps the blob header, chunk table and index into memory and
// verifies that both artifacts belong to the same build.
func Open(blobPath, indexPath string, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultChunkCache
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open blob %s: %v", semgraph.ErrIO, blobPath, err)
	}

	headerBuf := make([]byte, blobHeaderSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read blob header %s: %v", semgraph.ErrIO, blobPath, err)
	}
	header, err := decodeHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	tableBuf := make([]byte, int(header.ChunkCount)*chunkEntrySize)
	if _, err := f.ReadAt(tableBuf, blobHeaderSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read chunk table %s: %v", semgraph.ErrIO, blobPath, err)
	}
	table := make([]ChunkInfo, header.ChunkCount)
	for i := range table {
		table[i] = decodeChunkEntry(tableBuf[i*chunkEntrySize:])
	}

	indexBuf, err := os.ReadFile(indexPath)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read index %s: %v", semgraph.ErrIO, indexPath, err)
	}
	indexBuild, index, err := decodeIndex(indexBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if indexBuild != header.BuildID {
		f.Close()
		return nil, fmt.Errorf("%w: index build does not match blob build", semgraph.ErrIO)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: init zstd decoder: %v", semgraph.ErrIO, err)
	}

	return &Reader{
		f:       f,
		header:  header,
		table:   table,
		index:   index,
		dataOff: int64(blobHeaderSize + len(tableBuf)),
		dec:     dec,
		cache:   expirable.NewLRU[uint32, []byte](cacheSize, nil, 0),
	}, nil
}

// Header returns the blob header.
func (r *Reader) Header() Header { return r.header }

// Len returns the number of indexed symbols.
func (r *Reader) Len() int { return len(r.index) }

// Symbols returns every indexed symbol.
func (r *Reader) Symbols() []semgraph.Symbol {
	out := make([]semgraph.Symbol, 0, len(r.index))
	for sym := range r.index {
		out = append(out, sym)
	}
	return out
}

// Lookup retrieves one node and its outgoing relations by symbol.
func (r *Reader) Lookup(sym semgraph.Symbol) (*semgraph.EntityNode, []semgraph.Relation, error) {
	entry, ok := r.index[sym]
	if !ok {
		return nil, nil, fmt.Errorf("%w: symbol %s not indexed", semgraph.ErrNotFound, sym)
	}
	chunk, err := r.chunk(entry.Chunk)
	if err != nil {
		return nil, nil, err
	}
	if int(entry.Offset)+int(entry.Length) > len(chunk) {
		return nil, nil, fmt.Errorf("%w: index entry for %s exceeds chunk bounds", semgraph.ErrIO, sym)
	}
	return decodeNode(chunk[entry.Offset : entry.Offset+entry.Length])
}

// chunk returns the decompressed payload of one chunk, from cache when
// warm.
func (r *Reader) chunk(id uint32) ([]byte, error) {
	if raw, ok := r.cache.Get(id); ok {
		return raw, nil
	}
	if int(id) >= len(r.table) {
		return nil, fmt.Errorf("%w: chunk %d out of range", semgraph.ErrIO, id)
	}
	info := r.table[id]

	r.mu.Lock()
	defer r.mu.Unlock()
	if raw, ok := r.cache.Get(id); ok {
		return raw, nil
	}

	comp := make([]byte, info.CompLen)
	if _, err := r.f.ReadAt(comp, r.dataOff+int64(info.Offset)); err != nil {
		return nil, fmt.Errorf("%w: read chunk %d: %v", semgraph.ErrIO, id, err)
	}
	raw, err := r.dec.DecodeAll(comp, make([]byte, 0, info.RawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress chunk %d: %v", semgraph.ErrCodecMismatch, id, err)
	}
	if uint32(len(raw)) != info.RawLen {
		return nil, fmt.Errorf("%w: chunk %d decompressed to %d bytes, expected %d",
			semgraph.ErrIO, id, len(raw), info.RawLen)
	}
	r.cache.Add(id, raw)
	return raw, nil
}

// Close releases the blob handle and decoder.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
