package container

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// WriteResult summarizes a committed container.
type WriteResult struct {
	BuildID   string
	Nodes     int
	Relations int
	Chunks    int
	BlobSize  int
	IndexSize int
}

// Write serializes the graph into fixed-size chunks, compresses each
// chunk independently, and commits blob and index by writing to
// temporary paths and renaming over the targets. A crash mid-write
// never exposes a half-written artifact: readers see either the prior
// complete pair or the new complete pair.
//
// chunkRecords bounds the number of node records per chunk
// (DefaultChunkRecords when <= 0). Writes favor compression ratio
// over speed; builds are infrequent relative to reads.
func Write(g *semgraph.Graph, blobPath, indexPath string, chunkRecords int) (*WriteResult, error) {
	if chunkRecords <= 0 {
		chunkRecords = DefaultChunkRecords
	}

	buildID, err := uuid.Parse(g.BuildID)
	if err != nil {
		buildID = uuid.New()
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("%w: init zstd encoder: %v", semgraph.ErrIO, err)
	}
	defer enc.Close()

	relsBySource := make(map[semgraph.Symbol][]semgraph.Relation)
	for _, rel := range g.Relations {
		relsBySource[rel.Source] = append(relsBySource[rel.Source], rel)
	}

	var (
		table   []ChunkInfo
		data    []byte
		syms    = make([]semgraph.Symbol, 0, len(g.Nodes))
		entries = make(map[semgraph.Symbol]IndexEntry, len(g.Nodes))
	)
	for start := 0; start < len(g.Nodes); start += chunkRecords {
		end := min(start+chunkRecords, len(g.Nodes))
		chunkID := uint32(len(table))

		var raw []byte
		for i := start; i < end; i++ {
			n := &g.Nodes[i]
			if err := checkRecordLimits(n, relsBySource[n.Symbol]); err != nil {
				return nil, err
			}
			recOff := len(raw)
			raw = encodeNode(raw, n, relsBySource[n.Symbol])
			syms = append(syms, n.Symbol)
			entries[n.Symbol] = IndexEntry{
				Chunk:  chunkID,
				Offset: uint32(recOff),
				Length: uint32(len(raw) - recOff),
			}
		}

		comp := enc.EncodeAll(raw, nil)
		table = append(table, ChunkInfo{
			ID:      chunkID,
			Offset:  uint64(len(data)),
			CompLen: uint32(len(comp)),
			RawLen:  uint32(len(raw)),
			Records: uint32(end - start),
		})
		data = append(data, comp...)
	}

	header := Header{
		Version:    g.FormatVersion,
		Codec:      CodecZstd,
		BuildID:    [16]byte(buildID),
		BuiltAt:    g.BuiltAt,
		NodeCount:  uint32(len(g.Nodes)),
		RelCount:   uint32(len(g.Relations)),
		ChunkCount: uint32(len(table)),
	}
	blob := encodeHeader(header)
	for _, c := range table {
		blob = append(blob, encodeChunkEntry(c)...)
	}
	blob = append(blob, data...)

	index := encodeIndex([16]byte(buildID), syms, entries)

	// Stage both files completely before swapping either in, so the
	// rename pair is as close together as possible.
	blobTmp, err := stageFile(blobPath, blob)
	if err != nil {
		return nil, err
	}
	indexTmp, err := stageFile(indexPath, index)
	if err != nil {
		os.Remove(blobTmp)
		return nil, err
	}
	if err := os.Rename(blobTmp, blobPath); err != nil {
		os.Remove(blobTmp)
		os.Remove(indexTmp)
		return nil, fmt.Errorf("%w: commit blob %s: %v", semgraph.ErrIO, blobPath, err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		os.Remove(indexTmp)
		return nil, fmt.Errorf("%w: commit index %s: %v", semgraph.ErrIO, indexPath, err)
	}

	res := &WriteResult{
		BuildID:   buildID.String(),
		Nodes:     len(g.Nodes),
		Relations: len(g.Relations),
		Chunks:    len(table),
		BlobSize:  len(blob),
		IndexSize: len(index),
	}
	slog.Info("container committed",
		"build_id", res.BuildID,
		"nodes", res.Nodes,
		"relations", res.Relations,
		"chunks", res.Chunks,
		"blob_bytes", res.BlobSize,
	)
	return res, nil
}

// stageFile writes data to a temporary file in the target's directory
// and fsyncs it, returning the temp path ready for rename.
func stageFile(target string, data []byte) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", semgraph.ErrIO, dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: stage %s: %v", semgraph.ErrIO, target, err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("%w: stage %s: %v", semgraph.ErrIO, target, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("%w: fsync %s: %v", semgraph.ErrIO, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("%w: close %s: %v", semgraph.ErrIO, name, err)
	}
	return name, nil
}
