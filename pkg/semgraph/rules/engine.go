package rules

import (
	"fmt"
	"sort"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Engine evaluates a rule set against a node. It is stateless; the
// trace is its only observable side effect.
type Engine struct{}

// NewEngine returns a rule interpreter.
func NewEngine() *Engine { return &Engine{} }

// Evaluate matches node against rs and returns the merged effect set.
// Rules run in priority order (then declaration order, stable), and a
// later rule overwrites an earlier rule's assignment for the same
// field. Two exclusive rules at the same priority that disagree on a
// field are a conflict: the engine never silently picks a winner.
// One trace entry is appended per triggered rule.
func (e *Engine) Evaluate(node *semgraph.EntityNode, rs *RuleSet, trace *Trace) (map[string]string, error) {
	ordered := make([]Rule, len(rs.Rules))
	copy(ordered, rs.Rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	effects := make(map[string]string)
	// Owner of each field's current value, for conflict detection.
	type owner struct {
		rule      string
		priority  int
		exclusive bool
	}
	owners := make(map[string]owner)

	for _, r := range ordered {
		if !r.Matches(node) {
			continue
		}
		applied := make(map[string]string, len(r.Then))
		for field, value := range r.Then {
			if prev, ok := owners[field]; ok && prev.exclusive && r.Exclusive &&
				prev.priority == r.Priority && effects[field] != value {
				return nil, fmt.Errorf("%w: rules %q and %q both claim %s at priority %d (%q vs %q)",
					semgraph.ErrRuleConflict, prev.rule, r.ID, field, r.Priority, effects[field], value)
			}
			effects[field] = value
			applied[field] = value
			owners[field] = owner{rule: r.ID, priority: r.Priority, exclusive: r.Exclusive}
		}
		if trace != nil {
			trace.Append(TraceEntry{
				RuleID:  r.ID,
				Term:    node.Term,
				Effects: applied,
				Message: r.Message,
			})
		}
	}
	return effects, nil
}

// Apply assigns an effect set to node. Applying the effects produced
// by Evaluate and re-evaluating yields the same effects again, so the
// whole cycle is idempotent.
func Apply(node *semgraph.EntityNode, effects map[string]string) error {
	fields := make([]string, 0, len(effects))
	for f := range effects {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := node.SetAttr(f, effects[f]); err != nil {
			return err
		}
	}
	return nil
}
