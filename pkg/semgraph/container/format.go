// Package container persists a graph as a chunked, independently
// compressed binary blob plus a per-symbol index. Any single node can
// be retrieved by decompressing only its chunk; the full blob is never
// decompressed for a point lookup.
//
// Blob layout:
//
//	[magic(4) | version(2) | codec(1) | flags(1) | buildID(16) |
//	 builtAt(8) | nodeCount(4) | relCount(4) | chunkCount(4)]
//	chunk table: chunkCount x [id(4) | offset(8) | clen(4) | rlen(4) | records(4)]
//	data: concatenated compressed chunks
//
// Index layout:
//
//	[magic(4) | version(2) | reserved(2) | buildID(16) | count(4)]
//	entries: count x [symbol(4) | chunk(4) | offset(4) | length(4)]
//
// All integers are BigEndian. Offsets in the chunk table are relative
// to the start of the data section; offsets in index entries are
// relative to the start of the decompressed chunk payload.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

var (
	blobMagic  = [4]byte{'D', 'G', 'T', 'M'}
	indexMagic = [4]byte{'D', 'G', 'T', 'I'}
)

// Codec identifiers. Zstandard at a high level is the only codec for
// now; the byte exists so a reader can refuse what it cannot decode.
const (
	CodecZstd byte = 1
)

const (
	blobHeaderSize  = 44
	chunkEntrySize  = 24
	indexHeaderSize = 28
	indexEntrySize  = 16

	// DefaultChunkRecords bounds per-chunk decompression cost.
	DefaultChunkRecords = 256
)

// Header is the decoded blob header.
type Header struct {
	Version    uint16
	Codec      byte
	BuildID    [16]byte
	BuiltAt    int64
	NodeCount  uint32
	RelCount   uint32
	ChunkCount uint32
}

// ChunkInfo is one chunk table entry.
type ChunkInfo struct {
	ID      uint32
	Offset  uint64 // into the data section
	CompLen uint32
	RawLen  uint32
	Records uint32
}

// IndexEntry addresses one symbol's record span.
type IndexEntry struct {
	Chunk  uint32
	Offset uint32 // into the decompressed chunk
	Length uint32
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, blobHeaderSize)
	copy(buf[0:4], blobMagic[:])
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = h.Codec
	buf[7] = 0
	copy(buf[8:24], h.BuildID[:])
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.BuiltAt))
	binary.BigEndian.PutUint32(buf[32:36], h.NodeCount)
	binary.BigEndian.PutUint32(buf[36:40], h.RelCount)
	binary.BigEndian.PutUint32(buf[40:44], h.ChunkCount)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < blobHeaderSize {
		return h, fmt.Errorf("%w: blob header truncated (%d bytes)", semgraph.ErrIO, len(buf))
	}
	if [4]byte(buf[0:4]) != blobMagic {
		return h, fmt.Errorf("%w: bad blob magic %q", semgraph.ErrIO, buf[0:4])
	}
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	if h.Version != semgraph.FormatVersion {
		return h, fmt.Errorf("%w: blob format v%d, reader expects v%d",
			semgraph.ErrIO, h.Version, semgraph.FormatVersion)
	}
	h.Codec = buf[6]
	if h.Codec != CodecZstd {
		return h, fmt.Errorf("%w: unknown codec id %d", semgraph.ErrCodecMismatch, h.Codec)
	}
	copy(h.BuildID[:], buf[8:24])
	h.BuiltAt = int64(binary.BigEndian.Uint64(buf[24:32]))
	h.NodeCount = binary.BigEndian.Uint32(buf[32:36])
	h.RelCount = binary.BigEndian.Uint32(buf[36:40])
	h.ChunkCount = binary.BigEndian.Uint32(buf[40:44])
	return h, nil
}

func encodeChunkEntry(c ChunkInfo) []byte {
	buf := make([]byte, chunkEntrySize)
	binary.BigEndian.PutUint32(buf[0:4], c.ID)
	binary.BigEndian.PutUint64(buf[4:12], c.Offset)
	binary.BigEndian.PutUint32(buf[12:16], c.CompLen)
	binary.BigEndian.PutUint32(buf[16:20], c.RawLen)
	binary.BigEndian.PutUint32(buf[20:24], c.Records)
	return buf
}

func decodeChunkEntry(buf []byte) ChunkInfo {
	return ChunkInfo{
		ID:      binary.BigEndian.Uint32(buf[0:4]),
		Offset:  binary.BigEndian.Uint64(buf[4:12]),
		CompLen: binary.BigEndian.Uint32(buf[12:16]),
		RawLen:  binary.BigEndian.Uint32(buf[16:20]),
		Records: binary.BigEndian.Uint32(buf[20:24]),
	}
}

func encodeIndex(buildID [16]byte, syms []semgraph.Symbol, entries map[semgraph.Symbol]IndexEntry) []byte {
	buf := make([]byte, indexHeaderSize, indexHeaderSize+len(syms)*indexEntrySize)
	copy(buf[0:4], indexMagic[:])
	binary.BigEndian.PutUint16(buf[4:6], semgraph.FormatVersion)
	copy(buf[8:24], buildID[:])
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(syms)))
	for _, sym := range syms {
		e := entries[sym]
		entry := make([]byte, indexEntrySize)
		binary.BigEndian.PutUint32(entry[0:4], uint32(sym))
		binary.BigEndian.PutUint32(entry[4:8], e.Chunk)
		binary.BigEndian.PutUint32(entry[8:12], e.Offset)
		binary.BigEndian.PutUint32(entry[12:16], e.Length)
		buf = append(buf, entry...)
	}
	return buf
}

func decodeIndex(buf []byte) ([16]byte, map[semgraph.Symbol]IndexEntry, error) {
	var buildID [16]byte
	if len(buf) < indexHeaderSize {
		return buildID, nil, fmt.Errorf("%w: index header truncated (%d bytes)", semgraph.ErrIO, len(buf))
	}
	if [4]byte(buf[0:4]) != indexMagic {
		return buildID, nil, fmt.Errorf("%w: bad index magic %q", semgraph.ErrIO, buf[0:4])
	}
	version := binary.BigEndian.Uint16(buf[4:6])
	if version != semgraph.FormatVersion {
		return buildID, nil, fmt.Errorf("%w: index format v%d, reader expects v%d",
			semgraph.ErrIO, version, semgraph.FormatVersion)
	}
	copy(buildID[:], buf[8:24])
	// Validate the declared count in int arithmetic before allocating
	// anything sized by it; a forged count must not overflow the
	// comparison or balloon the map pre-allocation.
	count := int(binary.BigEndian.Uint32(buf[24:28]))
	if count > (len(buf)-indexHeaderSize)/indexEntrySize {
		return buildID, nil, fmt.Errorf("%w: index declares %d entries, only %d bytes of entry data",
			semgraph.ErrIO, count, len(buf)-indexHeaderSize)
	}
	entries := make(map[semgraph.Symbol]IndexEntry, count)
	for i := 0; i < count; i++ {
		off := indexHeaderSize + i*indexEntrySize
		sym := semgraph.Symbol(binary.BigEndian.Uint32(buf[off : off+4]))
		entries[sym] = IndexEntry{
			Chunk:  binary.BigEndian.Uint32(buf[off+4 : off+8]),
			Offset: binary.BigEndian.Uint32(buf[off+8 : off+12]),
			Length: binary.BigEndian.Uint32(buf[off+12 : off+16]),
		}
	}
	return buildID, entries, nil
}
