package cmd

import (
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/news-archiver/internal/app"
	"github.com/JakeFAU/news-archiver/internal/reextract"
)

// newReextractCmd creates and configures the 'reextract' subcommand.
func newReextractCmd() *cobra.Command {
	var (
		opts     reextract.Options
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "reextract",
		Short: "Re-derive article text from stored HTML",
		Long: `Runs the text extraction cascade (boilerplate removal, content containers,
then all paragraphs) over the stored HTML of articles whose text is empty.
--force reprocesses every selected article and overwrites existing text.
No network requests are made.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return fatal(err)
			}
			runner, err := appInstance.BuildReextract(cmd.Context())
			if err != nil {
				if errors.Is(err, app.ErrDatabaseMissing) {
					return fatal(fmt.Errorf("%w; run crawl first", err))
				}
				return fatal(err)
			}

			runOpts := opts
			var bar *progressbar.ProgressBar
			if progress {
				bar = progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("reextract"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				runOpts.Progress = bar
			}
			report, err := runner.Run(cmd.Context(), runOpts)
			if bar != nil {
				_ = bar.Finish() //nolint:errcheck // progress output is best effort
			}
			if err != nil {
				return fatal(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"selected=%d updated=%d unchanged=%d missing=%d empty=%d failed=%d\n",
				report.Selected, report.Updated, report.Unchanged, report.Missing, report.Empty, report.Failed,
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "reprocess articles that already have text and overwrite it")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "only process the article with this id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "process at most this many articles")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")
	cmd.Flags().Int("workers", 0, "parallel extraction workers (overrides extract.workers)")
	return cmd
}
