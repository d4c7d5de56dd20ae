package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/crawler"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Walk the listing and archive one headline article per page",
		Long: `Probes listing offsets from --start-from up to --max-start, following the
headline link of each page. The walk stops at the first page that fails to load
or carries no headline link. Articles already stored are skipped, so an
interrupted crawl can simply be run again.

Exit status is 0 when at least one headline link was found, 1 when the walk
completed without finding any, and 2 when the first listing page could not be
fetched or setup failed.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsAppAnnotation: "true"},
		RunE:        runCrawlCommand,
	}
	cmd.Flags().Int("start-from", 0, "first listing offset to probe")
	cmd.Flags().Int("max-start", 0, "last listing offset to probe (inclusive)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return fatal(err)
	}
	walker, err := appInstance.BuildCrawl(cmd.Context())
	if err != nil {
		return fatal(err)
	}
	summary, err := walker.Run(cmd.Context())
	if err != nil {
		return fatal(fmt.Errorf("run crawler: %w", err))
	}

	appInstance.GetLogger().Info("crawl command finished",
		zap.String("run_id", summary.RunID),
		zap.String("halt_reason", string(summary.HaltReason)),
	)
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s halted at offset %d (%s): pages=%d links=%d saved=%d skipped=%d failed=%d\n",
		summary.RunID, summary.LastOffset, summary.HaltReason,
		summary.PagesProbed, summary.LinksFound, summary.Saved, summary.Skipped, summary.Failed,
	)
	return crawlExit(summary)
}

// crawlExit maps a finished walk onto the process exit status.
func crawlExit(summary crawler.RunSummary) error {
	switch {
	case summary.AnyLinks:
		return nil
	case summary.HaltReason == crawler.HaltFetchFailed:
		return &exitError{
			code: ExitFatal,
			err:  fmt.Errorf("listing fetch failed at offset %d before any link was found", summary.LastOffset),
		}
	case summary.HaltReason == crawler.HaltCanceled:
		return &exitError{code: ExitFatal, err: errors.New("crawl interrupted before any link was found")}
	default:
		return &exitError{code: ExitNoLinks}
	}
}
