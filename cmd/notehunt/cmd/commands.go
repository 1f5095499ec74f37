package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notehunt/internal/engine"
	"github.com/Aman-CERP/notehunt/internal/ui"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the root and index changes until interrupted",
		Long: `Register watches under the root, crawl it once, then keep the state table
in step with every change and index Pending notes periodically.

Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadWrite)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", opts.cfg.Root)
			return e.Watch(cmd.Context())
		},
	}
}

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Walk the root once and reconcile the state table",
		Long: `Walk the root and record every matching note. New and changed notes become
Pending; notes no longer on disk are marked Deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadWrite)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			res, err := e.Crawl(cmd.Context())
			if err != nil {
				return err
			}

			summary := crawlSummary(res)
			r := ui.NewSummaryRenderer(cmd.OutOrStdout(), ui.PlainOutput(cmd.OutOrStdout()))
			if jsonOutput {
				return r.JSON(summary)
			}
			r.Crawl(summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	var crawl bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index every Pending note",
		Long: `Read every Pending note into the search index and mark it Complete.
Notes that cannot be read stay Pending for the next run.

Examples:
  notehunt index
  notehunt index --crawl --batch-size 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadWrite)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			out := cmd.OutOrStdout()
			r := ui.NewSummaryRenderer(out, ui.PlainOutput(out))

			if crawl {
				cres, err := e.Crawl(cmd.Context())
				if err != nil {
					return err
				}
				if !jsonOutput {
					r.Crawl(crawlSummary(cres))
				}
			}

			res, err := e.Index(cmd.Context())
			if err != nil {
				return err
			}

			summary := ui.IndexSummary{
				RunID:    res.RunID.String(),
				Pending:  res.Pending,
				Indexed:  res.Indexed,
				Failed:   res.Failed,
				Batches:  res.Batches,
				Duration: res.Duration,
			}
			if jsonOutput {
				return r.JSON(summary)
			}
			r.Index(summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&crawl, "crawl", false, "Crawl the root before indexing")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Files reported per completion batch (default from config)")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show file counts per status and index size",
		Long: `Show how many notes are in each status and how many documents the index
holds. Works while 'notehunt watch' is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadOnly)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			st, err := e.Status(cmd.Context())
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				Root:             st.Root,
				DataDir:          st.DataDir,
				Backend:          string(st.Backend),
				IndexPath:        st.IndexPath,
				Counts:           st.Counts,
				Tracked:          st.Tracked,
				IndexedDocuments: st.IndexedDocuments,
				IndexSize:        st.IndexSize,
				IndexUnavailable: st.IndexUnavailable,
			}
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.PlainOutput(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed notes",
		Long: `Search the index for notes containing any of the query words, best match
first.

Examples:
  notehunt search grocery list
  notehunt search "meeting notes" --limit 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			e, err := opts.openEngine(cmd.Context(), engine.ReadOnly)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			hits, err := e.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := ui.NewResultsRenderer(out, ui.PlainOutput(out), opts.cfg.Root)
			res := ui.SearchResults{Query: query, Hits: hits}
			if jsonOutput {
				return r.RenderJSON(res)
			}
			return r.Render(res)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", engine.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reindex [paths...]",
		Short: "Mark notes Pending so the next index run reads them again",
		Long: `Move the given notes, or every Complete and Error note with --all, back to
Pending. Run 'notehunt index' afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadWrite)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			n, err := e.Reindex(cmd.Context(), args, all)
			if err != nil {
				return err
			}
			ui.NewSummaryRenderer(cmd.OutOrStdout(), ui.PlainOutput(cmd.OutOrStdout())).Count("Requeued", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Requeue every Complete and Error note")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove Deleted notes from the state table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.openEngine(cmd.Context(), engine.ReadWrite)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			n, err := e.Purge(cmd.Context())
			if err != nil {
				return err
			}
			ui.NewSummaryRenderer(cmd.OutOrStdout(), ui.PlainOutput(cmd.OutOrStdout())).Count("Purged", n)
			return nil
		},
	}
}

func crawlSummary(res engine.CrawlResult) ui.CrawlSummary {
	return ui.CrawlSummary{
		Root:     res.Root,
		Observed: res.Observed,
		Merged:   res.Merged,
		Deleted:  res.Deleted,
		Duration: res.Duration,
	}
}
