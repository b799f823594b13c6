package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"comfypilot/internal/agent"
	"comfypilot/internal/commands"
	"comfypilot/internal/logging"
)

// Run reads lines from the input until EOF, /quit or Ctrl-C at the prompt.
// Slash commands are handled locally; everything else is a user turn.
func (a *App) Run(ctx context.Context) error {
	if a.provider == nil {
		return errors.New("no model provider: the app was built offline")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cleanup := a.setupSignalHandler(ctx)
	defer cleanup()

	a.renderer.Info(fmt.Sprintf("comfypilot %s · %s/%s · /help for commands",
		a.version, a.provider.Name(), a.provider.Model()))

	input := newLineReader(a.in, a.out, filepath.Join(a.config.Paths.DataDir, HistoryFile))
	defer input.Close()

	for {
		raw, err := input.ReadLine(a.renderer.Prompt())
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		err = a.HandleInput(ctx, line)
		if commands.IsQuit(err) {
			return nil
		}
		if err != nil {
			a.renderer.Error(err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// HandleInput processes one REPL line.
func (a *App) HandleInput(ctx context.Context, line string) error {
	if name, args, ok := a.commandHandler.Parse(line); ok {
		out, err := a.commandHandler.Execute(ctx, name, args, a)
		if err != nil {
			return err
		}
		if name == "workflow" && strings.HasPrefix(out, "{") {
			a.renderer.JSON(json.RawMessage(out))
			return nil
		}
		a.renderer.Info(out)
		return nil
	}

	res, err := a.Send(ctx, line)
	if err != nil {
		if res != nil && res.StopReason == agent.StopCancelled {
			a.renderer.Info("Cancelled.")
			return nil
		}
		return err
	}
	logging.Debug("turn result",
		"stop", res.StopReason,
		"rounds", res.Rounds,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens)
	return nil
}
