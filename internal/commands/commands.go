package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"comfypilot/internal/chat"
	"comfypilot/internal/config"
	"comfypilot/internal/graph"
	"comfypilot/internal/memory"
)

// ErrQuit is returned by /quit.
var ErrQuit = errors.New("quit")

// Command represents a slash command.
type Command interface {
	Name() string
	Description() string
	Usage() string
	Execute(ctx context.Context, args []string, app AppInterface) (string, error)
}

// AppInterface defines what commands need from the application.
type AppInterface interface {
	Thread() *chat.Thread
	Workflow() *graph.Workflow
	NewThread(ctx context.Context) error
	Rules(ctx context.Context) ([]memory.Rule, error)
	AddRule(ctx context.Context, text string) (memory.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	Config() *config.Config
	Version() string
}

// Handler manages slash commands.
type Handler struct {
	commands map[string]Command
}

// NewHandler creates a new command handler with built-in commands.
func NewHandler() *Handler {
	h := &Handler{
		commands: make(map[string]Command),
	}

	h.Register(&HelpCommand{handler: h})
	h.Register(&NewCommand{})
	h.Register(&CopyCommand{})
	h.Register(&WorkflowCommand{})
	h.Register(&RulesCommand{})
	h.Register(&QuitCommand{})

	return h
}

// Register adds a command to the handler.
func (h *Handler) Register(cmd Command) {
	h.commands[cmd.Name()] = cmd
}

// Parse checks if input is a slash command and extracts name and args.
// Returns (name, args, isCommand). Unknown names are not commands, so a
// message starting with a path is sent to the model as is.
func (h *Handler) Parse(input string) (string, []string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return "", nil, false
	}

	name := strings.TrimPrefix(parts[0], "/")
	if _, exists := h.commands[name]; !exists {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return name, args, true
}

// Execute runs a command by name.
func (h *Handler) Execute(ctx context.Context, name string, args []string, app AppInterface) (string, error) {
	cmd, exists := h.commands[name]
	if !exists {
		return "", fmt.Errorf("unknown command: /%s", name)
	}
	return cmd.Execute(ctx, args, app)
}

// ListCommands returns all registered commands, by name.
func (h *Handler) ListCommands() []Command {
	cmds := make([]Command, 0, len(h.commands))
	for _, cmd := range h.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}

// GetCommand returns a command by name.
func (h *Handler) GetCommand(name string) (Command, bool) {
	cmd, ok := h.commands[name]
	return cmd, ok
}
