package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/genai"

	"comfypilot/internal/logging"
)

// Registry maps tool names to definitions and dispatches calls.
type Registry struct {
	tools         map[string]Definition
	localTimeout  time.Duration
	remoteTimeout time.Duration
	mu            sync.RWMutex
}

// NewRegistry creates a new tool registry. Zero timeouts disable the deadline.
func NewRegistry(localTimeout, remoteTimeout time.Duration) *Registry {
	return &Registry{
		tools:         make(map[string]Definition),
		localTimeout:  localTimeout,
		remoteTimeout: remoteTimeout,
	}
}

// Register adds a tool. Names are unique; a definition needs a schema and an executor.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("tool %s has no executor", def.Name)
	}
	if def.Parameters == nil {
		return fmt.Errorf("tool %s has no parameter schema", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// MustRegister adds a tool and logs a warning on error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			logging.Warn("failed to register tool", "tool", def.Name, "error", err)
		}
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the function declarations in name order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// GenaiTools returns the tools in Gemini format.
func (r *Registry) GenaiTools() []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: r.Declarations()}}
}

// Dispatch validates args against the tool's schema and runs it. Every
// failure, including a panicking executor, comes back as an error Result.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result Result) {
	def, ok := r.Get(name)
	if !ok {
		return Errorf("unknown tool: %s (available: %v)", name, r.Names())
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(def.Parameters, args); err != nil {
		logging.Debug("tool arguments rejected", "tool", name, "error", err)
		return NewErrorResult(err.Error())
	}

	timeout := r.localTimeout
	if def.Kind == KindRemote {
		timeout = r.remoteTimeout
	}
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logging.Error("tool executor panicked", "tool", name, "panic", p)
			result = Errorf("internal error in %s: %v", name, p)
		}
		logging.Info("tool execution completed",
			"tool", name,
			"kind", def.Kind.String(),
			"success", result.Success,
			"duration", time.Since(start))
	}()

	result = def.Execute(ctx, args)
	if !result.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result = Errorf("%s timed out after %s: %s", name, timeout, result.Error)
	}
	return result
}
