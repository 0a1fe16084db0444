package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/report"
)

type analyzeOptions struct {
	urls   []string
	query  string
	format string
	limit  int
	out    string
}

// newAnalyzeCmd creates the 'analyze' command with one subcommand per mode
// plus 'all'.
func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis and print the ranked signals",
		Long: `Fetches every URL (given with --url, or found by searching --query), extracts
the mode's signals and prints them sorted by frequency.`,
	}
	cmd.PersistentFlags().StringArrayVar(&opts.urls, "url", nil, "URL to analyze (repeatable)")
	cmd.PersistentFlags().StringVar(&opts.query, "query", "", "search query used when no --url is given")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "", "output format: terminal, markdown or json (default from config)")
	cmd.PersistentFlags().IntVar(&opts.limit, "limit", 0, "maximum ranked entries to print (default from config)")
	cmd.PersistentFlags().StringVar(&opts.out, "out", "", "write the report to this file instead of stdout")

	for _, mode := range analysis.Modes() {
		cmd.AddCommand(newModeCmd(mode, opts))
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run every analysis concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts, analysis.Modes())
		},
	})
	return cmd
}

func newModeCmd(mode analysis.Mode, opts *analyzeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: "Rank " + mode.Title(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts, []analysis.Mode{mode})
		},
	}
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions, modes []analysis.Mode) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.format, appInstance.Config().Report.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := make([]analysis.Result, len(modes))
	runErrs := make([]error, len(modes))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range modes {
		g.Go(func() error {
			res, err := appInstance.Analyze(gctx, mode, opts.urls, opts.query)
			results[i], runErrs[i] = res, err
			if err != nil && res.RunID == "" {
				return fmt.Errorf("analyze %s: %w", mode, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd.OutOrStdout(), opts.out)
	if err != nil {
		return err
	}
	defer closeOut()

	for i, res := range results {
		if err := appInstance.Render(ctx, out, res, format, opts.limit); err != nil {
			return err
		}
		if runErrs[i] != nil {
			appInstance.Logger().Warn("analysis interrupted, partial result printed",
				zap.String("mode", string(modes[i])), zap.Error(runErrs[i]))
		}
	}
	return errors.Join(runErrs...)
}

func resolveFormat(flag, fallback string) (report.Format, error) {
	if flag == "" {
		flag = fallback
	}
	format, err := report.ParseFormat(flag)
	if err != nil {
		return "", fmt.Errorf("--format: %w", err)
	}
	return format, nil
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}
	// #nosec G304 -- the output path is supplied by the operator.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
