// Package skills loads model-specific technical skills: markdown documents
// with YAML front matter describing how to use a model family (recommended
// samplers, resolutions, prompt style). The library hot-reloads when files
// under its directory change.
package skills

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"comfypilot/internal/logging"
	"comfypilot/internal/watcher"
)

// ErrNotFound is returned for an unknown skill.
var ErrNotFound = errors.New("model skill not found")

// Skill is one model skill document.
type Skill struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Models      []string `yaml:"models" json:"models,omitempty"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	Body        string   `yaml:"-" json:"body,omitempty"`
	Path        string   `yaml:"-" json:"-"`
}

// Summary drops the body for listings.
func (s Skill) Summary() Skill {
	s.Body = ""
	return s
}

// AppliesTo reports whether the skill covers the given model filename.
// Patterns in Models are doublestar globs, e.g. "sd_xl_*".
func (s Skill) AppliesTo(model string) bool {
	base := strings.ToLower(filepath.Base(model))
	for _, pattern := range s.Models {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), base); ok {
			return true
		}
	}
	return false
}

var frontMatterDelim = []byte("---")

// Parse splits a document into front matter and body. A document without
// front matter gets its ID from the file name and its name from the first
// heading.
func Parse(path string, data []byte) (Skill, error) {
	var sk Skill
	body := data

	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if bytes.HasPrefix(trimmed, frontMatterDelim) {
		rest := trimmed[len(frontMatterDelim):]
		end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
		if end < 0 {
			return Skill{}, fmt.Errorf("%s: unterminated front matter", path)
		}
		if err := yaml.Unmarshal(rest[:end], &sk); err != nil {
			return Skill{}, fmt.Errorf("%s: invalid front matter: %w", path, err)
		}
		body = rest[end+1+len(frontMatterDelim):]
	}

	sk.Body = strings.TrimSpace(string(body))
	sk.Path = path
	if sk.ID == "" {
		sk.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if sk.Name == "" {
		sk.Name = firstHeading(sk.Body)
		if sk.Name == "" {
			sk.Name = sk.ID
		}
	}
	return sk, nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// Library holds the loaded skills.
type Library struct {
	dir     string
	skills  map[string]Skill
	watcher *watcher.Watcher
	mu      sync.RWMutex
}

// NewLibrary creates a library rooted at dir. Call Load to read it.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, skills: make(map[string]Skill)}
}

// Load (re)reads every **/*.md document. A missing directory yields an
// empty library. Unparseable documents are skipped with a warning.
func (l *Library) Load() error {
	if _, err := os.Stat(l.dir); errors.Is(err, os.ErrNotExist) {
		l.mu.Lock()
		l.skills = make(map[string]Skill)
		l.mu.Unlock()
		return nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(l.dir, "**", "*.md"))
	if err != nil {
		return fmt.Errorf("failed to list model skills: %w", err)
	}

	loaded := make(map[string]Skill, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn("skipping unreadable model skill", "path", path, "error", err)
			continue
		}
		sk, err := Parse(path, data)
		if err != nil {
			logging.Warn("skipping invalid model skill", "path", path, "error", err)
			continue
		}
		if prev, dup := loaded[sk.ID]; dup {
			logging.Warn("duplicate model skill id", "id", sk.ID, "kept", prev.Path, "ignored", path)
			continue
		}
		loaded[sk.ID] = sk
	}

	l.mu.Lock()
	l.skills = loaded
	l.mu.Unlock()
	logging.Debug("model skills loaded", "dir", l.dir, "count", len(loaded))
	return nil
}

// Watch reloads the library whenever a document changes.
func (l *Library) Watch(cfg watcher.Config) error {
	if _, err := os.Stat(l.dir); err != nil {
		return fmt.Errorf("cannot watch model skills: %w", err)
	}
	w, err := watcher.New(l.dir, cfg)
	if err != nil {
		return err
	}
	w.SetHandler(func(changes map[string]watcher.Operation) {
		for path := range changes {
			if strings.HasSuffix(path, ".md") || filepath.Ext(path) == "" {
				if err := l.Load(); err != nil {
					logging.Warn("model skill reload failed", "error", err)
				}
				return
			}
		}
	})
	if err := w.Start(); err != nil {
		return err
	}

	l.mu.Lock()
	l.watcher = w
	l.mu.Unlock()
	return nil
}

// Close stops watching.
func (l *Library) Close() error {
	l.mu.Lock()
	w := l.watcher
	l.watcher = nil
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// List returns summaries of every skill, by ID.
func (l *Library) List() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Skill, 0, len(l.skills))
	for _, sk := range l.skills {
		out = append(out, sk.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get finds a skill by ID, falling back to the first skill whose model
// patterns match ref as a model filename.
func (l *Library) Get(ref string) (Skill, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if sk, ok := l.skills[ref]; ok {
		return sk, nil
	}
	ids := make([]string, 0, len(l.skills))
	for id := range l.skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if l.skills[id].AppliesTo(ref) {
			return l.skills[id], nil
		}
	}
	return Skill{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Len returns the number of loaded skills.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.skills)
}
