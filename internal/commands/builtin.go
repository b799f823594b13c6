package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// HelpCommand shows help for commands.
type HelpCommand struct {
	handler *Handler
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Show help for commands" }
func (c *HelpCommand) Usage() string       { return "/help [command]" }

func (c *HelpCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	if len(args) > 0 {
		cmd, exists := c.handler.GetCommand(strings.TrimPrefix(args[0], "/"))
		if !exists {
			return fmt.Sprintf("Unknown command: /%s\nUse /help to see all commands.", args[0]), nil
		}
		return fmt.Sprintf("/%s - %s\n\nUsage: %s", cmd.Name(), cmd.Description(), cmd.Usage()), nil
	}

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, cmd := range c.handler.ListCommands() {
		fmt.Fprintf(&sb, "  %-20s %s\n", cmd.Usage(), cmd.Description())
	}
	sb.WriteString("\nAnything else is sent to the assistant.")
	return sb.String(), nil
}

// NewCommand starts a new conversation with an empty workflow.
type NewCommand struct{}

func (c *NewCommand) Name() string        { return "new" }
func (c *NewCommand) Description() string { return "Start a new conversation" }
func (c *NewCommand) Usage() string       { return "/new" }

func (c *NewCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	if err := app.NewThread(ctx); err != nil {
		return "", fmt.Errorf("failed to start a new conversation: %w", err)
	}
	return "Started a new conversation (" + app.Thread().ID + ").", nil
}

// CopyCommand copies the current workflow, in ComfyUI API format, to the clipboard.
type CopyCommand struct{}

func (c *CopyCommand) Name() string        { return "copy" }
func (c *CopyCommand) Description() string { return "Copy the workflow as API-format JSON" }
func (c *CopyCommand) Usage() string       { return "/copy" }

func (c *CopyCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	w := app.Workflow()
	if w == nil || w.Len() == 0 {
		return "The workflow is empty; nothing to copy.", nil
	}
	if clipboard.Unsupported {
		return "Clipboard not available. Install xclip, xsel, or wl-copy on Linux.", nil
	}

	data, err := json.MarshalIndent(w.ToAPI(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := writeClipboard(string(data)); err != nil {
		return "", fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return fmt.Sprintf("Copied %d nodes (%d bytes) to the clipboard.", w.Len(), len(data)), nil
}

// WorkflowCommand prints the current workflow. The output is rendered by the caller.
type WorkflowCommand struct{}

func (c *WorkflowCommand) Name() string        { return "workflow" }
func (c *WorkflowCommand) Description() string { return "Show the current workflow" }
func (c *WorkflowCommand) Usage() string       { return "/workflow" }

func (c *WorkflowCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	w := app.Workflow()
	if w == nil || w.Len() == 0 {
		return "The workflow is empty.", nil
	}
	data, err := json.MarshalIndent(w.ToAPI(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}
	return string(data), nil
}

// RulesCommand lists, adds and deletes the user's standing rules.
type RulesCommand struct{}

func (c *RulesCommand) Name() string        { return "rules" }
func (c *RulesCommand) Description() string { return "List, add or delete standing rules" }
func (c *RulesCommand) Usage() string       { return "/rules [add <text>|rm <id>]" }

func (c *RulesCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	if len(args) == 0 {
		rules, err := app.Rules(ctx)
		if err != nil {
			return "", err
		}
		if len(rules) == 0 {
			return "No rules yet. Add one with /rules add <text>.", nil
		}
		var sb strings.Builder
		for _, r := range rules {
			fmt.Fprintf(&sb, "%3d  %s\n", r.ID, r.Text)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	switch args[0] {
	case "add":
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return "Usage: " + c.Usage(), nil
		}
		r, err := app.AddRule(ctx, text)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added rule %d. It applies from the next conversation.", r.ID), nil
	case "rm", "delete":
		if len(args) != 2 {
			return "Usage: " + c.Usage(), nil
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Sprintf("Invalid rule id: %s", args[1]), nil
		}
		if err := app.DeleteRule(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted rule %d.", id), nil
	default:
		return "Usage: " + c.Usage(), nil
	}
}

// QuitCommand ends the session.
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Description() string { return "Exit" }
func (c *QuitCommand) Usage() string       { return "/quit" }

func (c *QuitCommand) Execute(ctx context.Context, args []string, app AppInterface) (string, error) {
	return "", ErrQuit
}

// IsQuit reports whether err asks the session to end.
func IsQuit(err error) bool {
	return errors.Is(err, ErrQuit)
}
