package guardrail

import (
	"encoding/json"
	"fmt"
)

// Rule names a protocol requirement.
type Rule string

const (
	RuleValidateBeforeApply Rule = "validate-before-apply"
	RuleFetchBeforeUse      Rule = "fetch-before-use"
)

// CallRecord is one executed tool call of a turn, in execution order.
type CallRecord struct {
	Name   string
	Args   map[string]any
	Output map[string]any // result envelope
}

// Succeeded reports whether the envelope carries success=true.
func (c CallRecord) Succeeded() bool {
	ok, _ := c.Output["success"].(bool)
	return ok
}

func (c CallRecord) data() map[string]any {
	d, _ := c.Output["data"].(map[string]any)
	return d
}

// Violation is a protocol breach found in a call log.
type Violation struct {
	Index   int
	Tool    string
	Rule    Rule
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("call %d (%s) violates %s: %s", v.Index, v.Tool, v.Rule, v.Message)
}

var graphMutations = map[string]bool{
	"addNode":            true,
	"removeNode":         true,
	"connectNodes":       true,
	"setNodeWidgetValue": true,
	"clearWorkflow":      true,
}

// Audit checks a turn's calls against the protocol. The tools enforce
// validation on their own; the audit only makes ordering mistakes visible.
func Audit(calls []CallRecord) []Violation {
	var violations []Violation

	validated := make(map[string]bool) // canonical workflows reported valid
	current := ""                      // canonical graph after the last apply, if unchanged since
	searched := ""                     // search tool with hits not yet followed by a fetch

	for i, c := range calls {
		switch c.Name {
		case "validateWorkflow":
			if !c.Succeeded() {
				continue
			}
			valid, _ := c.data()["valid"].(bool)
			raw, _ := c.Args["workflow"].(string)
			if raw == "" {
				raw = current
			}
			if valid && raw != "" {
				validated[canonical(raw)] = true
			}

		case "searchTemplates", "webSearch":
			if c.Succeeded() && hasHits(c.data()) {
				searched = c.Name
			}

		case "getTemplate", "webFetch", "getSkill":
			if c.Succeeded() {
				searched = ""
			}

		case "applyWorkflow":
			raw, _ := c.Args["workflow"].(string)
			if !validated[canonical(raw)] {
				violations = append(violations, Violation{
					Index:   i,
					Tool:    c.Name,
					Rule:    RuleValidateBeforeApply,
					Message: "applyWorkflow was called without a prior valid validateWorkflow of the same workflow",
				})
			}
			if searched != "" {
				violations = append(violations, Violation{
					Index:   i,
					Tool:    c.Name,
					Rule:    RuleFetchBeforeUse,
					Message: fmt.Sprintf("%s results were used without fetching the source", searched),
				})
			}
			if c.Succeeded() {
				current = canonical(raw)
			}

		default:
			if graphMutations[c.Name] && c.Succeeded() {
				current = ""
			}
		}
	}
	return violations
}

// canonical re-encodes JSON so that formatting differences compare equal.
func canonical(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(out)
}

func hasHits(data map[string]any) bool {
	for _, key := range []string{"templates", "results"} {
		switch v := data[key].(type) {
		case []any:
			return len(v) > 0
		case nil:
			continue
		default:
			// Typed slices from in-process tools.
			b, err := json.Marshal(v)
			return err == nil && string(b) != "[]" && string(b) != "null"
		}
	}
	return false
}
