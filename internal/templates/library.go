// Package templates serves a curated library of known-good workflows. Each
// template is an API-format JSON file with an optional YAML sidecar of the
// same name carrying its metadata.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"comfypilot/internal/graph"
	"comfypilot/internal/logging"
)

// ErrNotFound is returned for an unknown template.
var ErrNotFound = errors.New("template not found")

// Meta is the sidecar metadata.
type Meta struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
}

// Template is one library entry.
type Template struct {
	ID string `json:"id"`
	Meta
	NodeTypes []string        `json:"node_types"`
	Models    []string        `json:"models,omitempty"`
	Workflow  graph.APIPrompt `json:"workflow,omitempty"`
}

// Summary drops the workflow for listings.
func (t Template) Summary() Template {
	t.Workflow = nil
	return t
}

// Library is the loaded template set.
type Library struct {
	dir       string
	templates map[string]Template
	mu        sync.RWMutex
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, templates: make(map[string]Template)}
}

// Load reads every **/*.json template. Invalid files are skipped with a warning.
func (l *Library) Load() error {
	loaded := make(map[string]Template)
	if _, err := os.Stat(l.dir); errors.Is(err, os.ErrNotExist) {
		l.swap(loaded)
		return nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(l.dir, "**", "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	for _, path := range matches {
		t, err := loadTemplate(l.dir, path)
		if err != nil {
			logging.Warn("skipping invalid template", "path", path, "error", err)
			continue
		}
		loaded[t.ID] = t
	}
	l.swap(loaded)
	logging.Debug("templates loaded", "dir", l.dir, "count", len(loaded))
	return nil
}

func (l *Library) swap(m map[string]Template) {
	l.mu.Lock()
	l.templates = m
	l.mu.Unlock()
}

func loadTemplate(root, path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var prompt graph.APIPrompt
	if err := json.Unmarshal(data, &prompt); err != nil {
		return Template{}, fmt.Errorf("not an API-format workflow: %w", err)
	}
	if len(prompt) == 0 {
		return Template{}, errors.New("workflow has no nodes")
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	id := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
	t := Template{ID: id, Workflow: prompt}

	sidecar := strings.TrimSuffix(path, ".json") + ".yaml"
	if meta, err := os.ReadFile(sidecar); err == nil {
		if err := yaml.Unmarshal(meta, &t.Meta); err != nil {
			return Template{}, fmt.Errorf("invalid sidecar %s: %w", filepath.Base(sidecar), err)
		}
	}
	if t.Name == "" {
		t.Name = filepath.Base(id)
	}

	nodes, err := graph.NodesFromAPI(prompt, nil)
	if err != nil {
		return Template{}, err
	}
	refs := graph.CollectReferences(nodes, nil)
	t.NodeTypes = refs.NodeTypes
	seen := make(map[string]bool)
	for _, m := range refs.Models {
		if !seen[m.Name] {
			seen[m.Name] = true
			t.Models = append(t.Models, m.Name)
		}
	}
	sort.Strings(t.Models)
	return t, nil
}

// Search ranks templates by how many query terms appear in the name,
// tags, description and node types. Name and tag hits weigh more.
func (l *Library) Search(query string, limit int) []Template {
	terms := strings.Fields(strings.ToLower(query))

	l.mu.RLock()
	type hit struct {
		t     Template
		score int
	}
	var hits []hit
	for _, t := range l.templates {
		score := 0
		for _, term := range terms {
			switch {
			case strings.Contains(strings.ToLower(t.Name), term) || strings.Contains(strings.ToLower(t.ID), term):
				score += 3
			case containsFold(t.Tags, term):
				score += 2
			case strings.Contains(strings.ToLower(t.Description), term) || containsFold(t.NodeTypes, term):
				score++
			}
		}
		if score > 0 || len(terms) == 0 {
			hits = append(hits, hit{t.Summary(), score})
		}
	}
	l.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].t.ID < hits[j].t.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Template, len(hits))
	for i, h := range hits {
		out[i] = h.t
	}
	return out
}

func containsFold(list []string, term string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// Get returns a template with its workflow.
func (l *Library) Get(id string) (Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return t, nil
}

// Len returns the number of loaded templates.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.templates)
}
