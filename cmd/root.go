// Package cmd defines and implements the CLI commands for the news-archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/app"
	"github.com/JakeFAU/news-archiver/internal/config"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitNoLinks = 1
	ExitFatal   = 2
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// needsAppAnnotation marks commands that run against the application services.
const needsAppAnnotation = "needs-app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	BuildCrawl(ctx context.Context) (app.CrawlRunner, error)
	BuildReextract(ctx context.Context) (app.ReextractRunner, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg config.Config) (App, error) {
	return app.New(cfg)
}

// exitError carries a process exit code. A nil err means the code is not a failure worth printing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func fatal(err error) error {
	return &exitError{code: ExitFatal, err: err}
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "news-archiver",
		Short: "Polite, resumable archiver for a paginated news listing.",
		Long: `news-archiver walks a news site's paginated listing by offset, saves the
headline article of every page (raw HTML, images and metadata) and can later
re-derive clean article text from the stored HTML without touching the network.`,
		SilenceErrors: true,
		SilenceUsage:  true,

		// Config is loaded here so subcommand flags are already parsed and can be bound.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[needsAppAnnotation] != "true" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fatal(fmt.Errorf("load config: %w", err))
			}
			appInstance, err := newApp(cfg)
			if err != nil {
				return fatal(fmt.Errorf("failed to initialize application services: %w", err))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("out-dir", "", "output directory for html, images and the SQLite database")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReextractCmd())

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	executed, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitOK
	}
	// Post-run hooks are skipped when RunE fails.
	if executed != nil && executed.Context() != nil {
		if appInstance, ok := executed.Context().Value(appKey).(App); ok && appInstance != nil {
			appInstance.Close()
		}
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.err)
		}
		return exitErr.code
	}
	// Flag and argument errors from cobra itself.
	fmt.Fprintln(stderr, "Error:", err)
	return ExitFatal
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
