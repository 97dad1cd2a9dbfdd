package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-modpanel/internal/logarchive"
	"go-modpanel/internal/render"
)

var (
	logsLines   int
	searchLimit int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the backend's recent log lines",
	Long: `Prints the log lines returned with the current status. The backend
only keeps its most recent lines; use 'logs search' to query lines archived
by 'watch --archive' or 'status --archive'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPanel()
		if err != nil {
			return err
		}
		if err := p.Refresh(cmd.Context()); err != nil {
			return backendErr(err)
		}
		snap := p.Snapshot()
		if globalConfig.ArchiveLogs {
			archiveLines(snap)
		}
		fmt.Fprint(cmd.OutOrStdout(), render.Logs(snap.Logs, logsLines))
		return nil
	},
}

var logsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the local log archive",
	Long: `Searches archived log lines. The query uses bleve's query string
syntax, for example:

  modpanel logs search timeout
  modpanel logs search '+phase:Fixing +error:true'

An empty query lists the newest archived lines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		archive, err := st.openArchive()
		if err != nil {
			return err
		}
		hits, total, err := archive.Search(strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, render.MutedStyle.Render("No archived lines match."))
			return nil
		}
		for _, h := range hits {
			fmt.Fprintln(out, formatHit(h))
		}
		fmt.Fprintln(out, render.MutedStyle.Render(fmt.Sprintf("%d of %d matches", len(hits), total)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsSearchCmd)
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "Number of lines to show (0 shows all)")
	logsCmd.Flags().BoolVar(&archiveFlag, "archive", false, "Add the returned log lines to the local log archive (overrides config)")
	logsSearchCmd.Flags().IntVarP(&searchLimit, "limit", "l", logarchive.DefaultLimit, "Maximum number of matches to print")
}

func formatHit(h logarchive.Hit) string {
	seen := "-"
	if !h.SeenAt.IsZero() {
		seen = h.SeenAt.Local().Format(time.DateTime)
	}
	return fmt.Sprintf("%s %s %s", render.MutedStyle.Render(seen), render.MutedStyle.Render("["+h.Phase+"]"), render.LogLine(h.Line))
}
