// Package semgraph defines the shared data model for the semantic graph
// store: entity nodes with linguistic and affective attributes, typed
// relations between their symbols, and the schema that constrains them.
//
// Nodes enter the system already enriched by an external collaborator,
// pass through validation, receive a stable compact symbol from the
// dictionary, and are linked into a directed graph that is persisted as
// a chunked compressed container with a per-symbol index.
package semgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatVersion is the on-disk format version shared by the graph blob
// and its index. Bumped only on incompatible layout changes.
const FormatVersion uint16 = 2

// Symbol is a fixed-width numeric code uniquely identifying a term.
// Symbols are allocated monotonically and never reused, even after the
// node is deprecated, so back-references stored elsewhere stay valid.
type Symbol uint32

// String returns the display form used by the symbol table ("#0042").
func (s Symbol) String() string {
	return fmt.Sprintf("#%04d", uint32(s))
}

// ParseSymbol parses the display form ("#0042" or "42") back into a Symbol.
func ParseSymbol(s string) (Symbol, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad symbol %q", ErrInvalidInput, s)
	}
	return Symbol(v), nil
}

// Status marks a node's lifecycle within the committed graph.
// Nodes are never physically deleted; deprecation preserves symbol and
// relation integrity.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusDeprecated
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDeprecated:
		return "deprecated"
	}
	return "unknown"
}

// RelationType enumerates the typed edges of the graph.
type RelationType uint8

const (
	RelSemantic RelationType = iota + 1
	RelContextual
	RelCausal
	RelEmotional
)

func (r RelationType) String() string {
	switch r {
	case RelSemantic:
		return "semantic"
	case RelContextual:
		return "contextual"
	case RelCausal:
		return "causal"
	case RelEmotional:
		return "emotional"
	}
	return "unknown"
}

// EntityNode is a semantic entity record. Intensity and Plausibility
// are bounded scores in [0,100]. Every active node carries exactly one
// symbol once it has been through a graph build.
type EntityNode struct {
	Term         string   `json:"term" yaml:"term"`
	Category     string   `json:"category" yaml:"category"`
	Class        string   `json:"class" yaml:"class"`
	Contexts     []string `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	Examples     []string `json:"examples,omitempty" yaml:"examples,omitempty"`
	Intention    string   `json:"intention,omitempty" yaml:"intention,omitempty"`
	Emotion      string   `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	Tone         string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Intensity    int      `json:"intensity" yaml:"intensity"`
	Plausibility int      `json:"plausibility" yaml:"plausibility"`
	Consequence  string   `json:"consequence,omitempty" yaml:"consequence,omitempty"`
	Related      []string `json:"related,omitempty" yaml:"related,omitempty"`

	Symbol    Symbol `json:"symbol,omitempty" yaml:"-"`
	Status    Status `json:"status,omitempty" yaml:"-"`
	Version   uint32 `json:"version,omitempty" yaml:"-"`
	UpdatedAt int64  `json:"updated_at,omitempty" yaml:"-"`
}

// Attr returns the scalar value of a named attribute. The second
// return reports whether the field name is known.
func (n *EntityNode) Attr(field string) (string, bool) {
	switch field {
	case "term":
		return n.Term, true
	case "category":
		return n.Category, true
	case "class":
		return n.Class, true
	case "intention":
		return n.Intention, true
	case "emotion":
		return n.Emotion, true
	case "tone":
		return n.Tone, true
	case "consequence":
		return n.Consequence, true
	case "intensity":
		return strconv.Itoa(n.Intensity), true
	case "plausibility":
		return strconv.Itoa(n.Plausibility), true
	}
	return "", false
}

// AttrValues returns all values a field can match against. Scalar
// fields yield one value; "context" yields every context tag.
func (n *EntityNode) AttrValues(field string) []string {
	if field == "context" {
		return n.Contexts
	}
	if v, ok := n.Attr(field); ok {
		return []string{v}
	}
	return nil
}

// SetAttr assigns a named attribute. Setting "context" appends the tag
// if it is not already present, keeping repeated application a no-op.
func (n *EntityNode) SetAttr(field, value string) error {
	switch field {
	case "category":
		n.Category = value
	case "class":
		n.Class = value
	case "intention":
		n.Intention = value
	case "emotion":
		n.Emotion = value
	case "tone":
		n.Tone = value
	case "consequence":
		n.Consequence = value
	case "intensity", "plausibility":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be numeric, got %q", ErrInvalidInput, field, value)
		}
		if field == "intensity" {
			n.Intensity = v
		} else {
			n.Plausibility = v
		}
	case "context":
		for _, c := range n.Contexts {
			if c == value {
				return nil
			}
		}
		n.Contexts = append(n.Contexts, value)
	default:
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalidInput, field)
	}
	return nil
}

// Relation is a typed directed edge between two symbols. Weight is a
// bounded score in [0,100]; zero means unset.
type Relation struct {
	Source Symbol       `json:"source"`
	Target Symbol       `json:"target"`
	Type   RelationType `json:"type"`
	Weight int          `json:"weight,omitempty"`
}

// Graph is the output of a build run: the full node and relation set,
// stamped with the format version and build identity. Graphs are
// rebuilt as atomic units; no partial mutation is exposed.
type Graph struct {
	Nodes         []EntityNode
	Relations     []Relation
	FormatVersion uint16
	BuiltAt       int64
	BuildID       string
}
