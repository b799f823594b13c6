package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeSummary describes how applying a workflow changed the graph.
type ChangeSummary struct {
	Added   int    `json:"added_lines"`
	Removed int    `json:"removed_lines"`
	Diff    string `json:"diff,omitempty"`
}

// Summarize produces a line diff between two API-format prompts.
func Summarize(before, after APIPrompt, maxDiffChars int) ChangeSummary {
	oldText := promptText(before)
	newText := promptText(after)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var summary ChangeSummary
	var out strings.Builder
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				summary.Added++
				out.WriteString("+" + line)
			case diffmatchpatch.DiffDelete:
				summary.Removed++
				out.WriteString("-" + line)
			}
		}
	}

	summary.Diff = out.String()
	if maxDiffChars > 0 && len(summary.Diff) > maxDiffChars {
		summary.Diff = summary.Diff[:maxDiffChars] + fmt.Sprintf("\n... (%d more chars)", len(summary.Diff)-maxDiffChars)
	}
	return summary
}

func promptText(p APIPrompt) string {
	if len(p) == 0 {
		return ""
	}
	// encoding/json sorts map keys, so the text is stable.
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return ""
	}
	return string(data) + "\n"
}
