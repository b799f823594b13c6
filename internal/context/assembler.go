package context

import (
	"context"
	"strings"

	"comfypilot/internal/chat"
	"comfypilot/internal/config"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/logging"
)

// Mode selects how the system message of a request is built.
type Mode int

const (
	// ModeUnchanged leaves a caller-provided system message alone.
	ModeUnchanged Mode = iota
	// ModeFull sends the assembled context (first turn of a thread).
	ModeFull
	// ModeContinuation sends only a short reminder.
	ModeContinuation
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeContinuation:
		return "continuation"
	default:
		return "unchanged"
	}
}

// ContinuationReminder is the whole system message on later turns.
const ContinuationReminder = "Keep applying the rules, tools and context from the start of this conversation. " + guardrail.CriticalRule

// OnDemandNotice tells the model where the heavier resources live.
const OnDemandNotice = `## Resources loaded on demand

Two kinds of resources are not included here and must be fetched with tools when relevant:
- The user's saved skills (their own reusable procedures and preferences): call listSkills, then getSkill with an id.
- Model skills (technical guides for specific model families such as recommended samplers, resolutions and prompt style): call listModelSkills, then getModelSkill with an id or a model filename.`

// SelectMode applies the system message decision rule to an outgoing request.
func SelectMode(outgoing []*chat.Message) Mode {
	if chat.CountRole(outgoing, chat.RoleSystem) > 0 {
		return ModeUnchanged
	}
	if chat.CountRole(outgoing, chat.RoleAssistant) > 0 {
		return ModeContinuation
	}
	return ModeFull
}

// Section describes one assembled part for diagnostics.
type Section struct {
	Name      string `json:"name"`
	Source    string `json:"source,omitempty"`
	Chars     int    `json:"chars"`
	Truncated bool   `json:"truncated,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Report records what an assembly produced.
type Report struct {
	Mode     Mode      `json:"-"`
	Sections []Section `json:"sections"`
	Total    int       `json:"total"`
}

// Truncated reports whether any section lost text.
func (r Report) Truncated() bool {
	for _, s := range r.Sections {
		if s.Truncated {
			return true
		}
	}
	return false
}

// Assembler builds system messages from a Loader.
type Assembler struct {
	loader *Loader
	cfg    config.ContextConfig
}

// NewAssembler creates an assembler.
func NewAssembler(loader *Loader, cfg config.ContextConfig) *Assembler {
	return &Assembler{loader: loader, cfg: cfg}
}

// Assemble builds the system message text for mode. ModeUnchanged yields "".
func (a *Assembler) Assemble(ctx context.Context, mode Mode) (string, Report) {
	report := Report{Mode: mode}
	switch mode {
	case ModeContinuation:
		report.Sections = []Section{{Name: "reminder", Chars: len(ContinuationReminder)}}
		report.Total = len(ContinuationReminder)
		return ContinuationReminder, report
	case ModeUnchanged:
		return "", report
	}

	// (1) core instructions and (2) skill documents share the aggregate cap.
	instr := a.loader.LoadInstructions()
	parts := []string{instr.Text}
	if !strings.Contains(instr.Text, guardrail.Protocol) {
		parts = append(parts, guardrail.Protocol)
	}
	docs := a.loader.LoadSkillDocs()
	for _, d := range docs {
		parts = append(parts, d.Text)
	}
	core := truncateFragment(Fragment{
		Source:   instr.Source,
		Text:     strings.Join(parts, "\n\n"),
		MaxChars: a.cfg.SystemMaxChars,
		Fallback: instr.Fallback,
	})
	if core.Truncated {
		logging.Warn("system instructions truncated",
			"max_chars", a.cfg.SystemMaxChars,
			"skill_docs", len(docs))
	}

	env := a.loader.LoadEnvironment(ctx)
	user := a.loader.LoadUserContext(ctx)

	var out []string
	add := func(name string, f Fragment) {
		if f.Empty() {
			return
		}
		out = append(out, f.Text)
		report.Sections = append(report.Sections, Section{
			Name:      name,
			Source:    f.Source,
			Chars:     len(f.Text),
			Truncated: f.Truncated,
			Fallback:  f.Fallback,
		})
	}
	add("instructions", core)
	add("on_demand", Fragment{Source: "builtin", Text: OnDemandNotice})
	add("environment", env)
	add("user", user)

	text := strings.Join(out, "\n\n")
	report.Total = len(text)
	logging.Debug("system context assembled", "mode", mode.String(), "chars", report.Total, "truncated", report.Truncated())
	return text, report
}

// Prepare returns outgoing with the system message required by the
// decision rule prepended. The input slice is not modified.
func (a *Assembler) Prepare(ctx context.Context, outgoing []*chat.Message) ([]*chat.Message, Mode) {
	mode := SelectMode(outgoing)
	if mode == ModeUnchanged {
		return outgoing, mode
	}
	text, _ := a.Assemble(ctx, mode)

	out := make([]*chat.Message, 0, len(outgoing)+1)
	out = append(out, chat.NewSystemMessage(text))
	out = append(out, outgoing...)
	return out, mode
}
