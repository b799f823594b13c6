package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"comfypilot/internal/app"
	appcontext "comfypilot/internal/context"
	"comfypilot/internal/graph"
	"comfypilot/internal/highlight"
)

func withOfflineApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx := context.Background()
	a, err := buildOffline(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newPromptCmd() *cobra.Command {
	var reportOnly bool
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system context sent on the first turn of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(func(ctx context.Context, a *app.App) error {
				text, report := a.Assembler().Assemble(ctx, appcontext.ModeFull)
				if !reportOnly {
					fmt.Println(text)
					fmt.Println()
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SECTION\tSOURCE\tCHARS\tNOTE")
				for _, s := range report.Sections {
					var notes []string
					if s.Truncated {
						notes = append(notes, "truncated")
					}
					if s.Fallback {
						notes = append(notes, "fallback")
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Source, s.Chars, strings.Join(notes, ","))
				}
				fmt.Fprintf(w, "total\t\t%d\t\n", report.Total)
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&reportOnly, "report", false, "print only the section report")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools declared to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(func(ctx context.Context, a *app.App) error {
				reg := a.Registry()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, name := range reg.Names() {
					def, _ := reg.Get(name)
					fmt.Fprintf(w, "%s\t%s\t%s\n", name, def.Kind, firstSentence(def.Description))
				}
				return w.Flush()
			})
		},
	}
}

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage standing rules included in every conversation",
	}

	rulesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(func(ctx context.Context, a *app.App) error {
				rules, err := a.Rules(ctx)
				if err != nil {
					return err
				}
				for _, r := range rules {
					fmt.Printf("%3d  %s\n", r.ID, r.Text)
				}
				return nil
			})
		},
	})
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "add <text>",
		Short: "Add a rule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(func(ctx context.Context, a *app.App) error {
				r, err := a.AddRule(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Printf("Added rule %d\n", r.ID)
				return nil
			})
		},
	})
	return rulesCmd
}

func newWorkflowCmd() *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect workflows of stored conversations",
	}
	workflowCmd.AddCommand(&cobra.Command{
		Use:   "show [thread-id]",
		Short: "Print a conversation's workflow in API format (default: most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(func(ctx context.Context, a *app.App) error {
				id := ""
				if len(args) == 1 {
					id = args[0]
				} else {
					threads, err := a.Store().Threads(ctx, 1)
					if err != nil {
						return err
					}
					if len(threads) == 0 {
						return fmt.Errorf("no stored conversations")
					}
					id = threads[0].ID
				}

				_, nodes, err := a.Store().LoadThread(ctx, id)
				if err != nil {
					return err
				}
				fmt.Println(highlight.New("monokai").JSON(graph.NodesToAPI(nodes)))
				return nil
			})
		},
	})
	return workflowCmd
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i > 0 {
		return s[:i+1]
	}
	return s
}
