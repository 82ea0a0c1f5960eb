package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/ingest"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd, cfg)
			db, err := repository.Open(cmd.Context(), repository.Config{
				Driver:      cfg.Database.Driver,
				DSN:         cfg.Database.DSN,
				DialTimeout: cfg.Database.DialTimeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to connect database: %w", err)
			}
			defer db.Close(logger)
			if err := repository.Migrate(cmd.Context(), db, logger); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		reportType  string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "submit --type <report-type> <file>...",
		Short: "Submit files and wait for extraction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := constants.ParseReportType(reportType)
			if err != nil {
				return err
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			results := make([]ingest.FileResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(concurrency, 1))
			for i, path := range args {
				g.Go(func() error {
					res := ingest.FileResult{Path: path, ReportType: rt}
					u, err := a.Gateway.SubmitPath(ctx, path, rt)
					if err != nil {
						res.Err = err.Error()
					} else {
						res.UploadID, res.Status, res.Deduplicated = u.ID, u.Status, u.Deduplicated
						if u.ErrorMessage != nil {
							res.Err = *u.ErrorMessage
						}
					}
					results[i] = res
					return nil
				})
			}
			_ = g.Wait()

			failed := printResults(cmd, results)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&reportType, "type", "t", "", "report type: efficiency, factory, qc or waste")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "files processed at once")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newIngestDirCmd(opts *rootOptions) *cobra.Command {
	var (
		reportType    string
		concurrency   int
		includeHidden bool
	)
	cmd := &cobra.Command{
		Use:   "ingest-dir <root>",
		Short: "Submit every report file under a directory",
		Long: `Walks <root> and submits each image or PDF. Without --type the report
type is the first directory under root, e.g. root/waste/monday.jpg.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rt constants.ReportType
			if reportType != "" {
				var err error
				if rt, err = constants.ParseReportType(reportType); err != nil {
					return err
				}
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			results, stats, err := a.Gateway.IngestDirectory(cmd.Context(), args[0], ingest.DirOptions{
				ReportType:  rt,
				SkipHidden:  !includeHidden,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}
			failed := printResults(cmd, results)
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d succeeded=%d failed=%d deduplicated=%d\n",
				stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed, stats.Deduplicated)
			if failed > 0 {
				return fmt.Errorf("%d files failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&reportType, "type", "t", "", "report type for every file")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "files processed at once")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also submit dot files and dot directories")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the upload ledger, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			rows, err := a.Ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRECORDS\tUPLOADED\tFILE\tNOTE")
			for _, u := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					u.ID, u.ReportType, u.DisplayStatus(), u.RecordCount,
					u.UploadedAt.Format("2006-01-02 15:04:05"), u.FileName, note(u))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "rows to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newFlagCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "flag <upload-id>",
		Short: "Mark an upload for manual review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid upload id: %w", err)
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			u, err := a.Ledger.Flag(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s flagged (status %s)\n", u.ID, u.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the upload needs review")
	return cmd
}

func newUnflagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unflag <upload-id>",
		Short: "Clear the review flag on an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid upload id: %w", err)
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			u, err := a.Ledger.Unflag(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unflagged (status %s)\n", u.ID, u.Status)
			return nil
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear --yes",
		Short: "Delete every ledger row",
		Long:  "Deletes all upload ledger rows. Extracted records and stored files are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the ledger without --yes")
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			n, err := a.Ledger.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d uploads\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export -o <file.xlsx>",
		Short: "Write the ledger and all records to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !strings.EqualFold(filepath.Ext(out), ".xlsx") {
				return fmt.Errorf("output %q must end in .xlsx", out)
			}
			a, closeApp, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			b, err := a.Exporter.ExportXLSX(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "shift-reports.xlsx", "destination file")
	return cmd
}

// printResults writes one line per file and returns how many failed.
func printResults(cmd *cobra.Command, results []ingest.FileResult) int {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTYPE\tUPLOAD\tSTATUS\tERROR")
	failed := 0
	for _, r := range results {
		id := "-"
		if r.UploadID != uuid.Nil {
			id = r.UploadID.String()
		}
		status := string(r.Status)
		switch {
		case status == "":
			status = "rejected"
		case r.Deduplicated:
			status += " (duplicate)"
		}
		if r.Err != "" || r.Status == constants.UploadStatusError {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Path, r.ReportType, id, status, r.Err)
	}
	_ = tw.Flush()
	return failed
}

func note(u *entity.Upload) string {
	switch {
	case u.Flagged && u.FlagReason != nil:
		return *u.FlagReason
	case u.ErrorMessage != nil:
		return *u.ErrorMessage
	}
	return ""
}
