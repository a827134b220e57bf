package main

import (
	"context"
	"fmt"
	"strings"

	"seqthink/internal/config"
	"seqthink/internal/journal"
	"seqthink/internal/mcp"
	"seqthink/internal/thinking"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// =============================================================================
// JOURNAL COMMANDS
// =============================================================================

var (
	journalPath      string
	transcriptMD     bool
	transcriptBranch string
)

// sessionsCmd lists journal sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded thinking sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

// transcriptCmd replays one session
var transcriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print the steps of a recorded session",
	Long: `Print the steps of a recorded session in the order they were accepted.

The session id may be abbreviated to any unique prefix. With --markdown the
transcript is rendered as Markdown for the terminal; otherwise each step is
drawn as the same bordered block the server logs.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "seqthink %s (MCP protocol %s)\n", config.Version, mcp.ProtocolVersion)
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, transcriptCmd} {
		c.Flags().StringVar(&journalPath, "journal", "", "Journal database (default: from config)")
	}
	transcriptCmd.Flags().BoolVar(&transcriptMD, "markdown", false, "Render as Markdown")
	transcriptCmd.Flags().StringVar(&transcriptBranch, "branch", "", "Only show steps filed under this branch id")
}

// openJournal resolves the journal path from the flag or the config.
func openJournal() (*journal.Journal, error) {
	path := journalPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.Path
	}
	return journal.Open(path)
}

func runSessions(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.Sessions(cmdContext(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No recorded sessions found.")
		return nil
	}

	fmt.Fprintln(out, "Recorded Sessions")
	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, s := range sessions {
		last := "-"
		if !s.LastStep.IsZero() {
			last = s.LastStep.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "  %s  %-5s  %3d steps  started %s  last %s\n",
			s.ID, s.Transport, s.Steps, s.StartedAt.Local().Format("2006-01-02 15:04:05"), last)
	}
	fmt.Fprintln(out, strings.Repeat("─", 72))
	fmt.Fprintf(out, "Total: %d sessions\n", len(sessions))
	fmt.Fprintf(out, "\nUse: seqthink transcript <session-id>\n")
	return nil
}

func runTranscript(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmdContext(cmd)

	id, err := j.ResolveSession(ctx, args[0])
	if err != nil {
		return err
	}
	steps, err := j.Steps(ctx, id)
	if err != nil {
		return err
	}
	if transcriptBranch != "" {
		steps = filterBranch(steps, transcriptBranch)
	}

	out := cmd.OutOrStdout()
	if len(steps) == 0 {
		fmt.Fprintf(out, "Session %s has no matching steps.\n", id)
		return nil
	}

	if transcriptMD {
		rendered, err := renderMarkdown(thinking.Markdown("Session "+id, steps))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	}

	f := thinking.NewFormatter(out)
	for _, s := range steps {
		fmt.Fprintln(out, f.Format(s))
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// filterBranch keeps the steps that were filed under id.
func filterBranch(steps []thinking.Step, id string) []thinking.Step {
	var kept []thinking.Step
	for _, s := range steps {
		if s.Branched() && *s.BranchID == id {
			kept = append(kept, s)
		}
	}
	return kept
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(md)
}
