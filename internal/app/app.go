package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"comfypilot/internal/agent"
	"comfypilot/internal/chat"
	"comfypilot/internal/client"
	"comfypilot/internal/comfy"
	"comfypilot/internal/commands"
	"comfypilot/internal/config"
	appcontext "comfypilot/internal/context"
	"comfypilot/internal/graph"
	"comfypilot/internal/logging"
	"comfypilot/internal/memory"
	"comfypilot/internal/skills"
	"comfypilot/internal/templates"
	"comfypilot/internal/tools"
	"comfypilot/internal/ui"
)

// App is the interactive chat session: one workflow, one active thread and
// everything the agentic loop needs to serve it.
type App struct {
	config  *config.Config
	version string

	store     *memory.Store
	comfy     *comfy.Client
	inventory *comfy.Inventory
	workflow  *graph.Workflow
	skills    *skills.Library
	templates *templates.Library

	provider   client.Provider
	registry   *tools.Registry
	assembler  *appcontext.Assembler
	trimmer    *appcontext.Trimmer
	compressor *appcontext.Compressor

	commandHandler *commands.Handler
	renderer       *ui.Renderer
	in             io.Reader
	out            io.Writer

	mu         sync.Mutex
	controller *agent.Controller

	exit func(code int)
}

var _ commands.AppInterface = (*App)(nil)

// Thread returns the active thread.
func (a *App) Thread() *chat.Thread {
	return a.Controller().Thread()
}

// Controller returns the loop controller of the active thread.
func (a *App) Controller() *agent.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// Workflow returns the workflow under construction.
func (a *App) Workflow() *graph.Workflow { return a.workflow }

// Registry returns the tool registry.
func (a *App) Registry() *tools.Registry { return a.registry }

// Assembler returns the system context assembler.
func (a *App) Assembler() *appcontext.Assembler { return a.assembler }

// Store returns the memory store.
func (a *App) Store() *memory.Store { return a.store }

// Config returns the configuration.
func (a *App) Config() *config.Config { return a.config }

// Version returns the build version.
func (a *App) Version() string { return a.version }

// NewThread cancels any running turn, clears the workflow and starts an
// empty thread. The next message gets the full system context again.
func (a *App) NewThread(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.controller != nil {
		a.controller.Cancel()
	}
	a.workflow.Clear()
	a.controller = a.newController(chat.NewThread())
	logging.Info("new thread", "thread", a.controller.Thread().ID)
	return nil
}

// ResumeThread loads a stored thread and its workflow.
func (a *App) ResumeThread(ctx context.Context, id string) error {
	t, nodes, err := a.store.LoadThread(ctx, id)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.controller != nil {
		a.controller.Cancel()
	}
	a.workflow.Replace(nodes)
	a.controller = a.newController(t)
	logging.Info("resumed thread", "thread", t.ID, "messages", t.Len(), "nodes", len(nodes))
	return nil
}

// Rules lists the user's rules.
func (a *App) Rules(ctx context.Context) ([]memory.Rule, error) {
	return a.store.Rules(ctx)
}

// AddRule stores a rule.
func (a *App) AddRule(ctx context.Context, text string) (memory.Rule, error) {
	return a.store.AddRule(ctx, text)
}

// DeleteRule removes a rule.
func (a *App) DeleteRule(ctx context.Context, id int64) error {
	return a.store.DeleteRule(ctx, id)
}

// Send runs one user turn on the active thread, streaming to the renderer.
func (a *App) Send(ctx context.Context, text string) (*agent.TurnResult, error) {
	r := a.renderer
	h := &agent.Handler{
		OnText:       r.Stream,
		OnToolStart:  r.ToolStart,
		OnToolResult: r.ToolResult,
		OnNotice:     r.Notice,
	}
	res, err := a.Controller().Send(ctx, text, h)
	r.Flush()
	return res, err
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	if c := a.Controller(); c != nil {
		c.Cancel()
	}
	if a.skills != nil {
		if err := a.skills.Close(); err != nil {
			logging.Debug("error stopping model skill watcher", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}

func (a *App) newController(t *chat.Thread) *agent.Controller {
	return agent.NewController(agent.Options{
		Thread:       t,
		Provider:     a.provider,
		Registry:     a.registry,
		Assembler:    a.assembler,
		Trimmer:      a.trimmer,
		Compressor:   a.compressor,
		Workflow:     a.workflow,
		Saver:        a.store,
		RoundCap:     a.config.Loop.RoundCap,
		ModelTimeout: a.config.Loop.ModelTimeout,
		MaxParallel:  a.config.Tools.MaxParallel,
	})
}
