package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// inputFile is the enriched node input contract: a list of records
// produced by the external enrichment collaborator. Unknown fields are
// rejected rather than silently ignored.
type inputFile struct {
	Nodes []semgraph.EntityNode `yaml:"nodes"`
}

// LoadInput reads and normalizes the enriched node input file. Terms
// are trimmed and lowercased; empty records are dropped.
func LoadInput(path string) ([]semgraph.EntityNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read input %s: %v", semgraph.ErrIO, path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var in inputFile
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: parse input %s: %v", semgraph.ErrInvalidInput, path, err)
	}

	out := make([]semgraph.EntityNode, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		n.Term = NormalizeTerm(n.Term)
		if n.Term == "" {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// NormalizeTerm applies the canonical term normalization used at every
// boundary: surrounding whitespace stripped, lowercased.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
