package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"comfypilot/internal/app"
	"comfypilot/internal/config"
	"comfypilot/internal/logging"
)

var (
	version  = "0.1.0"
	cfgFile  string
	model    string
	provider string
	threadID string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "comfypilot",
		Short: "Chat assistant that builds ComfyUI workflows",
		Long: `comfypilot is a terminal chat assistant for ComfyUI. It builds, inspects
and fixes node-graph workflows by calling tools against a running ComfyUI
server, using Gemini or Ollama models.`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/comfypilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "model provider: gemini or ollama")
	rootCmd.Flags().StringVar(&threadID, "thread", "", "resume a stored conversation")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("comfypilot version %s\n", version)
		},
	})
	rootCmd.AddCommand(newPromptCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newWorkflowCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if model != "" {
		cfg.Model.Name = model
	}
	if provider != "" {
		cfg.API.Provider = provider
	}

	if err := logging.EnableFileLogging(cfg.Paths.DataDir, logging.ParseLevel(cfg.Logging.Level)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging not available: %v\n", err)
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingAuth) {
			return fmt.Errorf("%w\nconfig file: %s", err, config.GetConfigPath())
		}
		return err
	}

	ctx := context.Background()
	application, err := app.NewBuilder(cfg).WithVersion(version).Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	if threadID != "" {
		if err := application.ResumeThread(ctx, threadID); err != nil {
			return err
		}
	}
	return application.Run(ctx)
}

// buildOffline creates an app without a model provider for the inspection
// commands.
func buildOffline(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewBuilder(cfg).WithVersion(version).Offline().Build(ctx)
}
