// Package validate checks enriched node records against the canonical
// schema: required fields, bounded scores, closed enumerations, and
// cross-field coherence run through the rule engine. Errors are
// collected, never short-circuited; a failing node is excluded from
// graph construction but does not abort the batch.
package validate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/agext/levenshtein"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/rules"
)

// Issue is one recorded validation failure on a node.
type Issue struct {
	Field      string `json:"field"`
	Value      string `json:"value,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (i Issue) String() string {
	if i.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean %q?)", i.Field, i.Message, i.Suggestion)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Result is the outcome for one node. Valid nodes may still carry
// enrichment effects applied by coherence rules.
type Result struct {
	Node   semgraph.EntityNode
	Issues []Issue
}

// OK reports whether the node passed every check.
func (r *Result) OK() bool { return len(r.Issues) == 0 }

// Validator holds the schema and coherence rules for a run.
type Validator struct {
	schema    *semgraph.Schema
	engine    *rules.Engine
	coherence *rules.RuleSet
}

// New builds a validator. coherence may be nil when no rule file is
// configured.
func New(schema *semgraph.Schema, coherence *rules.RuleSet) *Validator {
	return &Validator{
		schema:    schema,
		engine:    rules.NewEngine(),
		coherence: coherence,
	}
}

// Validate runs every check against node and returns the validated
// copy with all issues found. Rule effects are applied to the returned
// node before the enum checks so a rule-assigned value is itself
// validated.
func (v *Validator) Validate(node semgraph.EntityNode, trace *rules.Trace) Result {
	res := Result{Node: node}

	if node.Term == "" {
		res.addIssue("term", "", "required field missing")
	}
	if node.Category == "" {
		res.addIssue("category", "", "required field missing")
	}
	if node.Class == "" {
		res.addIssue("class", "", "required field missing")
	}

	if node.Intensity < 0 || node.Intensity > 100 {
		res.addIssue("intensity", fmt.Sprint(node.Intensity), "out of range [0,100]")
	}
	if node.Plausibility < 0 || node.Plausibility > 100 {
		res.addIssue("plausibility", fmt.Sprint(node.Plausibility), "out of range [0,100]")
	}

	// Coherence and enrichment rules. A rule conflict is a validation
	// failure for this node, not a batch failure.
	if v.coherence != nil {
		effects, err := v.engine.Evaluate(&res.Node, v.coherence, trace)
		if err != nil {
			if errors.Is(err, semgraph.ErrRuleConflict) {
				res.addIssue("rules", "", err.Error())
			} else {
				res.addIssue("rules", "", fmt.Sprintf("rule evaluation failed: %v", err))
			}
		} else if err := rules.Apply(&res.Node, effects); err != nil {
			res.addIssue("rules", "", fmt.Sprintf("rule effect rejected: %v", err))
		}
	}

	for _, field := range []string{"category", "class", "intention", "emotion", "tone"} {
		value, _ := res.Node.Attr(field)
		if value == "" {
			continue // optional unless required above
		}
		if !v.schema.Allows(field, value) {
			res.addIssue(field, value, "value not in schema enumeration")
			if s := closest(value, v.schema.Enum(field)); s != "" {
				res.Issues[len(res.Issues)-1].Suggestion = s
			}
		}
	}

	if !res.OK() {
		slog.Debug("node failed validation", "term", node.Term, "issues", len(res.Issues))
	}
	return res
}

func (r *Result) addIssue(field, value, message string) {
	r.Issues = append(r.Issues, Issue{Field: field, Value: value, Message: message})
}

// closest picks the enum member nearest to value, if any is close
// enough to be a plausible typo.
func closest(value string, enum []string) string {
	best := ""
	bestScore := 0.0
	for _, candidate := range enum {
		score := levenshtein.Match(value, candidate, nil)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore >= 0.7 {
		return best
	}
	return ""
}
