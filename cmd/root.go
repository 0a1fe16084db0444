// Package cmd defines and implements the CLI commands for the signal-tally
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/app"
	"github.com/JakeFAU/signal-tally/internal/config"
	"github.com/JakeFAU/signal-tally/internal/report"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 15 * time.Second

// App defines the application interface that commands use.
type App interface {
	Logger() *zap.Logger
	Config() config.Config
	Analyze(ctx context.Context, mode analysis.Mode, urls []string, query string) (analysis.Result, error)
	Render(ctx context.Context, out io.Writer, result analysis.Result, format report.Format, limit int) error
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "signal-tally",
		Short: "Rank the signals found across a set of documents.",
		Long: `signal-tally fetches a list of documents concurrently, extracts one kind of
signal from each (crime reporting features or paper section headings), and
ranks the signals by how often they occur across the whole set.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				appInstance.Logger().Warn("application shutdown incomplete", zap.Error(err))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newAnalyzeCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
