package comfy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"comfypilot/internal/graph"
	"comfypilot/internal/logging"
)

// Source is the subset of Client the Inventory scans.
type Source interface {
	ObjectInfo(ctx context.Context) (map[string]RawNodeInfo, error)
	ModelFolders(ctx context.Context) ([]string, error)
	Models(ctx context.Context, folder string) ([]string, error)
}

// Inventory caches what is installed on the ComfyUI server: node
// definitions and model files. It satisfies graph.Catalog and
// graph.Registry against the latest snapshot.
type Inventory struct {
	src Source
	ttl time.Duration

	mu        sync.RWMutex
	defs      map[string]graph.NodeDef
	models    map[string][]string
	scannedAt time.Time

	refreshMu sync.Mutex
}

// NewInventory creates an empty inventory. Nothing is fetched until the
// first Refresh or EnsureFresh.
func NewInventory(src Source, ttl time.Duration) *Inventory {
	return &Inventory{
		src:    src,
		ttl:    ttl,
		defs:   make(map[string]graph.NodeDef),
		models: make(map[string][]string),
	}
}

// Refresh rescans the server unconditionally.
func (i *Inventory) Refresh(ctx context.Context) error {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()
	return i.refresh(ctx)
}

// EnsureFresh rescans when the snapshot is older than the TTL.
func (i *Inventory) EnsureFresh(ctx context.Context) error {
	if !i.stale() {
		return nil
	}
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()
	// Another caller may have refreshed while we waited.
	if !i.stale() {
		return nil
	}
	return i.refresh(ctx)
}

func (i *Inventory) stale() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.scannedAt.IsZero() || (i.ttl > 0 && time.Since(i.scannedAt) > i.ttl)
}

func (i *Inventory) refresh(ctx context.Context) error {
	start := time.Now()

	info, err := i.src.ObjectInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to load node definitions: %w", err)
	}
	folders, err := i.src.ModelFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list model folders: %w", err)
	}

	models := make(map[string][]string, len(folders))
	var modelsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, folder := range folders {
		folder := folder
		g.Go(func() error {
			files, err := i.src.Models(gctx, folder)
			if err != nil {
				return fmt.Errorf("failed to list models in %s: %w", folder, err)
			}
			sort.Strings(files)
			modelsMu.Lock()
			models[folder] = files
			modelsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	defs := make(map[string]graph.NodeDef, len(info))
	for name, raw := range info {
		defs[name] = ParseNodeDef(name, raw)
	}

	i.mu.Lock()
	i.defs = defs
	i.models = models
	i.scannedAt = time.Now()
	i.mu.Unlock()

	logging.Info("inventory refreshed", "node_types", len(defs), "model_folders", len(models), "duration", time.Since(start))
	return nil
}

// ScannedAt returns when the snapshot was taken.
func (i *Inventory) ScannedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.scannedAt
}

// NodeDef implements graph.Catalog.
func (i *Inventory) NodeDef(classType string) (graph.NodeDef, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	d, ok := i.defs[classType]
	return d, ok
}

// NodeTypes implements graph.Catalog.
func (i *Inventory) NodeTypes() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.defs))
	for name := range i.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasNodeType implements graph.Registry.
func (i *Inventory) HasNodeType(classType string) bool {
	_, ok := i.NodeDef(classType)
	return ok
}

// HasModel implements graph.Registry.
func (i *Inventory) HasModel(folder, filename string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	files := i.models[folder]
	idx := sort.SearchStrings(files, filename)
	return idx < len(files) && files[idx] == filename
}

// Models implements graph.Registry.
func (i *Inventory) Models(folder string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]string(nil), i.models[folder]...)
}

// ModelFolders lists folders that hold at least one file.
func (i *Inventory) ModelFolders() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []string
	for folder, files := range i.models {
		if len(files) > 0 {
			out = append(out, folder)
		}
	}
	sort.Strings(out)
	return out
}

// Search returns node definitions whose name, display name or category
// contains every query term, best matches first.
func (i *Inventory) Search(query string, limit int) []graph.NodeDef {
	terms := strings.Fields(strings.ToLower(query))

	i.mu.RLock()
	type hit struct {
		def   graph.NodeDef
		score int
	}
	var hits []hit
	for _, def := range i.defs {
		name := strings.ToLower(def.Name)
		hay := name + " " + strings.ToLower(def.DisplayName) + " " + strings.ToLower(def.Category)
		score := 0
		matched := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				matched = false
				break
			}
			if strings.Contains(name, t) {
				score += 2
			} else {
				score++
			}
		}
		if matched {
			hits = append(hits, hit{def, score})
		}
	}
	i.mu.RUnlock()

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].def.Name < hits[b].def.Name
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]graph.NodeDef, len(hits))
	for k, h := range hits {
		out[k] = h.def
	}
	return out
}

// Summary renders a compact environment description for the system
// context: node type count, categories and model files per folder.
func (i *Inventory) Summary(ctx context.Context) (string, error) {
	if err := i.EnsureFresh(ctx); err != nil {
		return "", err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	categories := make(map[string]int)
	for _, def := range i.defs {
		top := def.Category
		if idx := strings.Index(top, "/"); idx > 0 {
			top = top[:idx]
		}
		if top == "" {
			top = "uncategorized"
		}
		categories[top]++
	}
	catNames := make([]string, 0, len(categories))
	for c := range categories {
		catNames = append(catNames, c)
	}
	sort.Strings(catNames)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d node types installed", len(i.defs))
	if len(catNames) > 0 {
		parts := make([]string, len(catNames))
		for k, c := range catNames {
			parts[k] = fmt.Sprintf("%s (%d)", c, categories[c])
		}
		sb.WriteString(" across categories: " + strings.Join(parts, ", "))
	}
	sb.WriteString(".\n")

	folders := make([]string, 0, len(i.models))
	for f := range i.models {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	for _, f := range folders {
		files := i.models[f]
		if len(files) == 0 {
			continue
		}
		shown := files
		if len(shown) > 10 {
			shown = shown[:10]
		}
		fmt.Fprintf(&sb, "models/%s: %s", f, strings.Join(shown, ", "))
		if len(files) > len(shown) {
			fmt.Fprintf(&sb, " (+%d more)", len(files)-len(shown))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
