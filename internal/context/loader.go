package context

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"comfypilot/internal/config"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/logging"
	"comfypilot/internal/memory"
)

// instructionFiles are tried in order under the instructions directory.
var instructionFiles = []string{
	"instructions.md",
	"INSTRUCTIONS.md",
	"system.md",
}

// skillDocsPattern selects ordered skill documents; numeric prefixes
// (01_, 02_) set the order.
const skillDocsPattern = "skills/**/*.md"

const fallbackRole = `You are a ComfyUI workflow assistant. You help the user build, inspect and fix node-graph workflows by calling the provided tools. Keep answers short and concrete, and prefer tools over guessing.`

// UnavailableEnvironment replaces an environment summary that could not be read.
const UnavailableEnvironment = "Environment summary unavailable."

// UserContextSource provides the user's rules and narrative. memory.Store implements it.
type UserContextSource interface {
	UserContext(ctx context.Context) (memory.UserContext, error)
}

// EnvironmentSource summarizes installed nodes and models. comfy.Inventory implements it.
type EnvironmentSource interface {
	Summary(ctx context.Context) (string, error)
}

// Loader reads context sources and applies their character caps. Failures
// never propagate: a broken source degrades to a fallback fragment.
type Loader struct {
	dir  string
	cfg  config.ContextConfig
	user UserContextSource
	env  EnvironmentSource
}

// NewLoader creates a loader. user and env may be nil.
func NewLoader(dir string, cfg config.ContextConfig, user UserContextSource, env EnvironmentSource) *Loader {
	return &Loader{dir: dir, cfg: cfg, user: user, env: env}
}

// FallbackInstructions is the built-in core fragment text.
func FallbackInstructions() string {
	return fallbackRole + "\n\n" + guardrail.Protocol
}

// LoadInstructions returns the core instructions, or the built-in fallback
// when no instructions file is usable.
func (l *Loader) LoadInstructions() Fragment {
	for _, name := range instructionFiles {
		path := filepath.Join(l.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logging.Warn("failed to read instructions file", "path", path, "error", err)
			}
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			logging.Warn("instructions file is empty", "path", path)
			continue
		}
		logging.Debug("loaded instructions", "path", path, "chars", len(text))
		return Fragment{Source: path, Text: text}
	}

	logging.Warn("using built-in instructions", "dir", l.dir)
	return Fragment{Source: "builtin", Text: FallbackInstructions(), Fallback: true}
}

// LoadSkillDocs returns the skill documents ordered by path.
func (l *Loader) LoadSkillDocs() []Fragment {
	if l.dir == "" {
		return nil
	}
	paths, err := doublestar.FilepathGlob(filepath.Join(l.dir, filepath.FromSlash(skillDocsPattern)))
	if err != nil {
		logging.Warn("failed to list skill documents", "dir", l.dir, "error", err)
		return nil
	}
	sort.Strings(paths)

	var out []Fragment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn("failed to read skill document", "path", path, "error", err)
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			rel = path
		}
		out = append(out, Fragment{Source: filepath.ToSlash(rel), Text: text})
	}
	return out
}

// LoadUserContext renders the user's rules, persona and goals.
func (l *Loader) LoadUserContext(ctx context.Context) Fragment {
	f := Fragment{Source: "user", MaxChars: l.cfg.UserMaxChars}
	if l.user == nil {
		return f
	}
	uc, err := l.user.UserContext(ctx)
	if err != nil {
		logging.Warn("user context unavailable", "error", err)
		return f
	}

	var sections []string
	if rules := l.formatRules(uc.Rules); rules != "" {
		sections = append(sections, rules)
	}

	var narrative []string
	if p := strings.TrimSpace(uc.Persona); p != "" {
		narrative = append(narrative, "## Persona\n"+p)
	}
	if g := strings.TrimSpace(uc.Goals); g != "" {
		narrative = append(narrative, "## Goals\n"+g)
	}
	if len(narrative) > 0 {
		text, cut := Truncate(strings.Join(narrative, "\n\n"), l.cfg.NarrativeMaxChars)
		f.Truncated = cut
		sections = append(sections, text)
	}

	f.Text = strings.Join(sections, "\n\n")
	return truncateFragment(f)
}

func (l *Loader) formatRules(rules []string) string {
	var kept []string
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## User rules\n")
	shown := kept
	if limit := l.cfg.MaxRules; limit > 0 && len(kept) > limit {
		shown = kept[:limit]
	}
	for _, r := range shown {
		sb.WriteString("- " + r + "\n")
	}
	if omitted := len(kept) - len(shown); omitted > 0 {
		fmt.Fprintf(&sb, "(%d more rules omitted)\n", omitted)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// LoadEnvironment returns the installed nodes and models summary.
func (l *Loader) LoadEnvironment(ctx context.Context) Fragment {
	f := Fragment{Source: "environment", MaxChars: l.cfg.EnvironmentMaxChars}
	if l.env == nil {
		f.Text, f.Fallback = UnavailableEnvironment, true
		return f
	}
	summary, err := l.env.Summary(ctx)
	if err != nil || strings.TrimSpace(summary) == "" {
		logging.Warn("environment summary unavailable", "error", err)
		f.Text, f.Fallback = UnavailableEnvironment, true
		return f
	}
	f.Text = "## Environment\n" + strings.TrimSpace(summary)
	return truncateFragment(f)
}
