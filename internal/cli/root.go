// Package cli implements reportctl, the operator command line for the
// shift report pipeline.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/shift-reports/internal/app"
	"github.com/joseph-ayodele/shift-reports/internal/common"
)

type rootOptions struct {
	envFile string
	verbose bool
}

// NewRootCmd builds the reportctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Operate the shift report pipeline",
		Long: `reportctl submits shift report files, inspects and flags the upload
ledger, and exports history. It reads the same environment (or .env file)
as the reportsd daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load when present")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline events to stderr")

	root.AddCommand(
		newMigrateCmd(opts),
		newSubmitCmd(opts),
		newIngestDirCmd(opts),
		newListCmd(opts),
		newFlagCmd(opts),
		newUnflagCmd(opts),
		newClearCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// Execute runs reportctl with ctx and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func (o *rootOptions) config() (*common.Config, error) {
	if err := common.LoadDotEnv(o.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	return common.LoadConfig(), nil
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg *common.Config) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// open builds the app for one command and returns a closer that drains it.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cmd.Context(), cfg, o.logger(cmd, cfg))
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Close(ctx)
	}, nil
}
