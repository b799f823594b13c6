package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"comfypilot/internal/chat"
	"comfypilot/internal/client"
	"comfypilot/internal/comfy"
	"comfypilot/internal/commands"
	"comfypilot/internal/config"
	appcontext "comfypilot/internal/context"
	"comfypilot/internal/graph"
	"comfypilot/internal/logging"
	"comfypilot/internal/memory"
	"comfypilot/internal/security"
	"comfypilot/internal/skills"
	"comfypilot/internal/templates"
	"comfypilot/internal/tools"
	"comfypilot/internal/ui"
	"comfypilot/internal/watcher"
)

// DatabaseFile is the memory store file name under the data directory.
const DatabaseFile = "comfypilot.db"

// Builder provides a fluent interface for constructing App instances.
type Builder struct {
	cfg     *config.Config
	version string

	provider client.Provider
	in       io.Reader
	out      io.Writer
	plain    bool
	watch    bool
	offline  bool

	store      *memory.Store
	comfy      *comfy.Client
	inventory  *comfy.Inventory
	workflow   *graph.Workflow
	skills     *skills.Library
	templates  *templates.Library
	registry   *tools.Registry
	assembler  *appcontext.Assembler
	trimmer    *appcontext.Trimmer
	compressor *appcontext.Compressor

	// For error collection during build
	buildErrors []error
	mu          sync.Mutex
}

// NewBuilder creates a new Builder for cfg.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{
		cfg:     cfg,
		version: "dev",
		in:      os.Stdin,
		out:     os.Stdout,
		watch:   true,
	}
}

// WithVersion sets the version reported by the app.
func (b *Builder) WithVersion(v string) *Builder {
	b.version = v
	return b
}

// WithProvider uses p instead of creating one from the configuration.
func (b *Builder) WithProvider(p client.Provider) *Builder {
	b.provider = p
	return b
}

// WithIO sets the REPL input and output. Plain output skips markdown
// rendering and highlighting.
func (b *Builder) WithIO(in io.Reader, out io.Writer, plain bool) *Builder {
	b.in, b.out, b.plain = in, out, plain
	return b
}

// WithoutWatch disables model skill hot reload.
func (b *Builder) WithoutWatch() *Builder {
	b.watch = false
	return b
}

// Offline skips provider creation. The app can assemble context and run
// commands but not send messages.
func (b *Builder) Offline() *Builder {
	b.offline = true
	b.watch = false
	return b
}

// Build constructs the App instance, returning any errors encountered.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	if err := b.initStore(); err != nil {
		b.addError(err)
		return nil, b.finalizeError()
	}
	if err := b.initBackend(); err != nil {
		b.addError(err)
	}
	if err := b.initLibraries(); err != nil {
		b.addError(err)
	}
	if err := b.initProvider(ctx); err != nil {
		b.addError(err)
	}
	if err := b.finalizeError(); err != nil {
		b.store.Close()
		return nil, err
	}

	b.initTools()
	b.initContext()
	return b.assembleApp(), nil
}

func (b *Builder) initStore() error {
	store, err := memory.Open(filepath.Join(b.cfg.Paths.DataDir, DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	b.store = store
	return nil
}

// initBackend creates the ComfyUI client and its inventory. Nothing is
// fetched here: an unreachable server only degrades the environment summary.
func (b *Builder) initBackend() error {
	c, err := comfy.NewClient(b.cfg.Comfy.BaseURL, b.cfg.Comfy.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("invalid comfy.base_url: %w", err)
	}
	b.comfy = c
	b.inventory = comfy.NewInventory(c, b.cfg.Comfy.InventoryTTL)
	b.workflow = graph.NewWorkflow(b.inventory)
	return nil
}

func (b *Builder) initLibraries() error {
	b.skills = skills.NewLibrary(b.cfg.Paths.ModelSkillsDir)
	if err := b.skills.Load(); err != nil {
		return err
	}
	if b.watch {
		if err := b.skills.Watch(watcher.DefaultConfig()); err != nil {
			logging.Debug("model skill hot reload disabled", "error", err)
		}
	}

	b.templates = templates.NewLibrary(b.cfg.Paths.TemplatesDir)
	if err := b.templates.Load(); err != nil {
		return err
	}
	logging.Debug("libraries loaded", "model_skills", b.skills.Len(), "templates", b.templates.Len())
	return nil
}

func (b *Builder) initProvider(ctx context.Context) error {
	if b.provider != nil || b.offline {
		return nil
	}
	p, err := client.NewProvider(ctx, b.cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	b.provider = p
	logging.Debug("provider created", "provider", p.Name(), "model", p.Model())
	return nil
}

// initTools registers every tool set against the shared workflow.
func (b *Builder) initTools() {
	r := tools.NewRegistry(b.cfg.Tools.LocalTimeout, b.cfg.Tools.RemoteTimeout)
	r.MustRegister(tools.GraphTools(b.workflow)...)
	r.MustRegister(tools.WorkflowTools(b.workflow, b.inventory, b.comfy)...)
	r.MustRegister(tools.EnvironmentTools(b.inventory)...)
	r.MustRegister(tools.UserSkillTools(b.store)...)
	r.MustRegister(tools.ModelSkillTools(b.skills)...)
	r.MustRegister(tools.TemplateTools(b.templates)...)
	r.MustRegister(tools.WebTools(tools.WebConfig{
		SearchURL: b.cfg.Tools.SearchURL,
		Client:    security.NewHTTPClient(b.cfg.Tools.RemoteTimeout),
		Guard:     security.NewURLGuard(),
	})...)
	b.registry = r
}

func (b *Builder) initContext() {
	loader := appcontext.NewLoader(b.cfg.Paths.InstructionsDir, b.cfg.Context, b.store, b.inventory)
	b.assembler = appcontext.NewAssembler(loader, b.cfg.Context)
	b.trimmer = appcontext.NewTrimmer(b.cfg.History.MaxMessages, b.cfg.History.KeepToolRounds)
	b.compressor = appcontext.NewCompressor(b.cfg.Context.ToolOutputMaxChars, security.NewRedactor())
}

func (b *Builder) assembleApp() *App {
	a := &App{
		config:         b.cfg,
		version:        b.version,
		store:          b.store,
		comfy:          b.comfy,
		inventory:      b.inventory,
		workflow:       b.workflow,
		skills:         b.skills,
		templates:      b.templates,
		provider:       b.provider,
		registry:       b.registry,
		assembler:      b.assembler,
		trimmer:        b.trimmer,
		compressor:     b.compressor,
		commandHandler: commands.NewHandler(),
		renderer:       ui.NewRenderer(b.out, b.plain),
		in:             b.in,
		out:            b.out,
		exit:           os.Exit,
	}
	a.controller = a.newController(chat.NewThread())
	return a
}

func (b *Builder) addError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildErrors = append(b.buildErrors, err)
}

// finalizeError combines all build errors into a single error.
func (b *Builder) finalizeError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buildErrors) == 0 {
		return nil
	}
	msg := fmt.Sprintf("app build failed with %d error(s)", len(b.buildErrors))
	for i, err := range b.buildErrors {
		msg += fmt.Sprintf("\n  %d. %s", i+1, err.Error())
	}
	return fmt.Errorf("%s", msg)
}
