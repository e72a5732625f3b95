// Package rules models enrichment and coherence rules as data:
// condition/effect pairs evaluated by a single generic interpreter.
// Rules are ordered; evaluation is deterministic and idempotent.
package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Rule is one condition/effect pair. The condition is a conjunction of
// attribute-equality predicates; the effect assigns attribute values.
// Exclusive effects refuse to be overwritten by another exclusive rule
// at the same priority.
type Rule struct {
	ID        string            `yaml:"id"`
	Priority  int               `yaml:"priority"`
	If        map[string]string `yaml:"if"`
	Then      map[string]string `yaml:"then"`
	Exclusive bool              `yaml:"exclusive,omitempty"`
	Message   string            `yaml:"message,omitempty"`
}

// Matches reports whether every condition predicate holds for node.
// List-valued fields (context) match on membership.
func (r *Rule) Matches(node *semgraph.EntityNode) bool {
	for field, want := range r.If {
		values := node.AttrValues(field)
		found := false
		for _, v := range values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RuleSet is an ordered collection of rules loaded once per run.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rule definition file. Unknown keys are rejected.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read rules %s: %v", semgraph.ErrIO, path, err)
	}
	return Parse(data)
}

// Parse decodes a rule set from YAML bytes.
func Parse(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("%w: parse rules: %v", semgraph.ErrInvalidInput, err)
	}
	for i, r := range rs.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: rule %d has no id", semgraph.ErrInvalidInput, i)
		}
		if len(r.If) == 0 || len(r.Then) == 0 {
			return nil, fmt.Errorf("%w: rule %q needs both if and then", semgraph.ErrInvalidInput, r.ID)
		}
	}
	return &rs, nil
}
