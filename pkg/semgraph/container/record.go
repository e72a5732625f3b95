package container

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Record kinds within a chunk. A node record is immediately followed
// by its outgoing relation records; the index entry spans them all, so
// one lookup returns the node together with its edges.
const (
	recordNode     byte = 1
	recordRelation byte = 2
)

// maxFieldBytes bounds every length-prefixed field, list, and the
// relation count in a record; all the prefixes are u16.
const maxFieldBytes = math.MaxUint16

// checkRecordLimits rejects nodes that cannot be represented with the
// u16 prefixes of the record layout. Writing such a node would wrap
// the prefix while appending the full payload, committing a blob whose
// record can never be decoded again.
func checkRecordLimits(n *semgraph.EntityNode, rels []semgraph.Relation) error {
	if len(rels) > maxFieldBytes {
		return fmt.Errorf("%w: record %s has %d relations, limit %d",
			semgraph.ErrInvalidInput, n.Symbol, len(rels), maxFieldBytes)
	}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"term", n.Term},
		{"category", n.Category},
		{"class", n.Class},
		{"intention", n.Intention},
		{"emotion", n.Emotion},
		{"tone", n.Tone},
		{"consequence", n.Consequence},
	} {
		if len(f.value) > maxFieldBytes {
			return fmt.Errorf("%w: record %s: %s is %d bytes, limit %d",
				semgraph.ErrInvalidInput, n.Symbol, f.name, len(f.value), maxFieldBytes)
		}
	}
	for _, list := range []struct {
		name   string
		values []string
	}{
		{"contexts", n.Contexts},
		{"examples", n.Examples},
		{"related", n.Related},
	} {
		if len(list.values) > maxFieldBytes {
			return fmt.Errorf("%w: record %s: %s has %d entries, limit %d",
				semgraph.ErrInvalidInput, n.Symbol, list.name, len(list.values), maxFieldBytes)
		}
		for _, s := range list.values {
			if len(s) > maxFieldBytes {
				return fmt.Errorf("%w: record %s: %s entry is %d bytes, limit %d",
					semgraph.ErrInvalidInput, n.Symbol, list.name, len(s), maxFieldBytes)
			}
		}
	}
	return nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendStrings(buf []byte, list []string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(list)))
	for _, s := range list {
		buf = appendString(buf, s)
	}
	return buf
}

// encodeNode appends the node record followed by its relations.
func encodeNode(buf []byte, n *semgraph.EntityNode, rels []semgraph.Relation) []byte {
	buf = append(buf, recordNode)
	buf = binary.BigEndian.AppendUint32(buf, uint32(n.Symbol))
	buf = append(buf, byte(n.Status))
	buf = binary.BigEndian.AppendUint32(buf, n.Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(n.UpdatedAt))
	buf = append(buf, byte(n.Intensity), byte(n.Plausibility))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rels)))
	buf = appendString(buf, n.Term)
	buf = appendString(buf, n.Category)
	buf = appendString(buf, n.Class)
	buf = appendString(buf, n.Intention)
	buf = appendString(buf, n.Emotion)
	buf = appendString(buf, n.Tone)
	buf = appendString(buf, n.Consequence)
	buf = appendStrings(buf, n.Contexts)
	buf = appendStrings(buf, n.Examples)
	buf = appendStrings(buf, n.Related)
	for _, rel := range rels {
		buf = append(buf, recordRelation)
		buf = binary.BigEndian.AppendUint32(buf, uint32(rel.Source))
		buf = binary.BigEndian.AppendUint32(buf, uint32(rel.Target))
		buf = append(buf, byte(rel.Type), byte(rel.Weight))
	}
	return buf
}

// cursor is a bounds-checked reader over a decompressed chunk span.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("%w: record truncated at offset %d", semgraph.ErrIO, c.off)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8() byte {
	b := c.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	b := c.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (c *cursor) u64() uint64 {
	b := c.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (c *cursor) str() string {
	n := int(c.u16())
	b := c.bytes(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (c *cursor) strs() []string {
	n := int(c.u16())
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.str())
	}
	return out
}

// decodeNode parses one node record and its trailing relations from
// the exact byte span the index addressed.
func decodeNode(span []byte) (*semgraph.EntityNode, []semgraph.Relation, error) {
	c := &cursor{buf: span}
	if kind := c.u8(); kind != recordNode {
		return nil, nil, fmt.Errorf("%w: expected node record, got kind %d", semgraph.ErrIO, kind)
	}
	n := &semgraph.EntityNode{}
	n.Symbol = semgraph.Symbol(c.u32())
	n.Status = semgraph.Status(c.u8())
	n.Version = c.u32()
	n.UpdatedAt = int64(c.u64())
	n.Intensity = int(c.u8())
	n.Plausibility = int(c.u8())
	relCount := int(c.u16())
	n.Term = c.str()
	n.Category = c.str()
	n.Class = c.str()
	n.Intention = c.str()
	n.Emotion = c.str()
	n.Tone = c.str()
	n.Consequence = c.str()
	n.Contexts = c.strs()
	n.Examples = c.strs()
	n.Related = c.strs()

	var rels []semgraph.Relation
	for i := 0; i < relCount; i++ {
		if kind := c.u8(); kind != recordRelation {
			return nil, nil, fmt.Errorf("%w: expected relation record, got kind %d", semgraph.ErrIO, kind)
		}
		rels = append(rels, semgraph.Relation{
			Source: semgraph.Symbol(c.u32()),
			Target: semgraph.Symbol(c.u32()),
			Type:   semgraph.RelationType(c.u8()),
			Weight: int(c.u8()),
		})
	}
	if c.err != nil {
		return nil, nil, c.err
	}
	return n, rels, nil
}
