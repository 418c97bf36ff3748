package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"goglm/adapters/excel"
	"goglm/app"
	"goglm/domain/dataset"
	"goglm/internal"
	"goglm/internal/api"
	"goglm/internal/container"
	"goglm/internal/lift"
	"goglm/internal/testkit"
)

func parsePartition(raw string) (dataset.Partition, error) {
	p, ok := dataset.ParsePartition(raw)
	if !ok {
		return "", fmt.Errorf("--dataset must be train or test, got %q", raw)
	}
	return p, nil
}

func newBaseValuesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "base-values",
		Short: "Print the exposure-weighted base value of every feature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				rows, err := c.Service.BaseValueRows(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func newRelativitiesCmd(opts *rootOptions) *cobra.Command {
	var interactions bool

	cmd := &cobra.Command{
		Use:   "relativities",
		Short: "Print one-way relativities, or interaction cells with --interactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				if interactions {
					rows, err := c.Service.InteractionRelativities(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), rows)
				}
				rows, err := c.Service.Relativities(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().BoolVar(&interactions, "interactions", false, "Print the interaction grids instead")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print variable-level statistics joined with coefficients and relativities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				stats, err := c.Service.VariableLevelStats(ctx)
				if err != nil {
					return err
				}
				for _, d := range stats.Diagnostics {
					c.Log.Warn().Str("term", d.Term).Str("reason", d.Reason).Msg("coefficient not matched to a level")
				}
				return printJSON(cmd.OutOrStdout(), stats.Rows)
			})
		},
	}
}

func newLiftCmd(opts *rootOptions) *cobra.Command {
	var bins int
	var datasetName string

	cmd := &cobra.Command{
		Use:   "lift",
		Short: "Print the lift chart of a partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, err := parsePartition(datasetName)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				rows, err := c.Service.LiftChart(ctx, bins, partition)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().IntVar(&bins, "bins", 0, "Number of equal-exposure bins (default GOGLM_LIFT_BINS)")
	cmd.Flags().StringVar(&datasetName, "dataset", "train", "train or test")
	return cmd
}

// univariateFlags are shared by the univariate and export commands
type univariateFlags struct {
	bins      int
	maxLevels int
	rescale   string
	binning   string
}

func (f *univariateFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.bins, "univariate-bins", 0, "Bins for numeric variables (default GOGLM_UNIVARIATE_BINS)")
	cmd.Flags().IntVar(&f.maxLevels, "max-levels", 0, "Fold categorical levels beyond this many into Others (0 keeps all)")
	cmd.Flags().StringVar(&f.rescale, "rescale", string(lift.RescaleNone), "none, base_level or ratio")
	cmd.Flags().StringVar(&f.binning, "binning", "", "equal_width or quantile (default from GOGLM_QUANTILE_BINS)")
}

func (f *univariateFlags) options(def lift.UnivariateOptions) (lift.UnivariateOptions, error) {
	opts := def
	if f.bins > 0 {
		opts.NumericBins = f.bins
	}
	opts.MaxLevels = f.maxLevels
	mode, err := lift.ParseRescale(f.rescale)
	if err != nil {
		return opts, err
	}
	opts.Rescale = mode
	switch b := lift.Binning(f.binning); b {
	case "":
	case lift.BinningEqualWidth, lift.BinningQuantile:
		opts.Binning = b
	default:
		return opts, fmt.Errorf("--binning must be %s or %s, got %q", lift.BinningEqualWidth, lift.BinningQuantile, f.binning)
	}
	return opts, nil
}

func newUnivariateCmd(opts *rootOptions) *cobra.Command {
	var flags univariateFlags
	var datasetName string

	cmd := &cobra.Command{
		Use:   "univariate <variable>",
		Short: "Print the actual-vs-expected curve of one input variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, err := parsePartition(datasetName)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				uopts, err := flags.options(c.Service.UnivariateDefaults())
				if err != nil {
					return err
				}
				rows, err := c.Service.Univariate(ctx, args[0], partition, uopts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&datasetName, "dataset", "train", "train or test")
	return cmd
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	var datasetName string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print deviance, likelihood and information criteria on a partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, err := parsePartition(datasetName)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				m, err := c.Service.Metrics(ctx, partition)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}

	cmd.Flags().StringVar(&datasetName, "dataset", "train", "train or test")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out, csvDir, datasetName string
	var bins int
	var precision int32
	var flags univariateFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every report to an xlsx workbook (--out) or a directory of CSV files (--csv)",
		Long: `Write the relativities, interaction grids, variable-level statistics, lift chart and the
univariate curve of every included input to an xlsx workbook, or to one CSV file per report.

Example: goglm export --spec model.yaml --coefficients coefs.csv --train train.csv --out report.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (out == "") == (csvDir == "") {
				return fmt.Errorf("exactly one of --out or --csv is required")
			}
			partition, err := parsePartition(datasetName)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				reports, err := collectReports(ctx, c, bins, partition, &flags)
				if err != nil {
					return err
				}
				cfg := excel.DefaultConfig()
				if precision > 0 {
					cfg.Precision = precision
				}
				exporter := excel.NewExporter(cfg, c.Log)
				if out != "" {
					return writeFile(out, func(w io.Writer) error { return exporter.WriteWorkbook(w, reports) })
				}
				return writeCSVReports(exporter, csvDir, reports)
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Workbook path")
	cmd.Flags().StringVar(&csvDir, "csv", "", "Directory for CSV files")
	cmd.Flags().StringVar(&datasetName, "dataset", "train", "Partition of the lift chart and univariate curves")
	cmd.Flags().IntVar(&bins, "bins", 0, "Lift chart bins (default GOGLM_LIFT_BINS)")
	cmd.Flags().Int32Var(&precision, "precision", 0, "Decimal places of exported figures (default 6)")
	flags.register(cmd)
	return cmd
}

func collectReports(ctx context.Context, c *container.Container, bins int, partition dataset.Partition, flags *univariateFlags) (excel.Reports, error) {
	var reports excel.Reports
	var err error

	if reports.Relativities, err = c.Service.Relativities(ctx); err != nil {
		return reports, err
	}
	if reports.Interactions, err = c.Service.InteractionRelativities(ctx); err != nil {
		return reports, err
	}
	stats, err := c.Service.VariableLevelStats(ctx)
	if err != nil {
		return reports, err
	}
	reports.VariableStats = stats.Rows
	if reports.Lift, err = c.Service.LiftChart(ctx, bins, partition); err != nil {
		return reports, err
	}

	uopts, err := flags.options(c.Service.UnivariateDefaults())
	if err != nil {
		return reports, err
	}
	for _, f := range c.Service.Features() {
		if !f.IsInput() {
			continue
		}
		rows, err := c.Service.Univariate(ctx, f.Name, partition, uopts)
		if err != nil {
			return reports, err
		}
		reports.Univariate = append(reports.Univariate, rows...)
	}
	return reports, nil
}

func writeCSVReports(exporter *excel.Exporter, dir string, reports excel.Reports) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"relativities.csv", func(w io.Writer) error { return exporter.WriteRelativitiesCSV(w, reports.Relativities) }},
		{"interactions.csv", func(w io.Writer) error { return exporter.WriteInteractionsCSV(w, reports.Interactions) }},
		{"variable_level_stats.csv", func(w io.Writer) error { return exporter.WriteVariableStatsCSV(w, reports.VariableStats) }},
		{"lift.csv", func(w io.Writer) error { return exporter.WriteLiftCSV(w, reports.Lift) }},
		{"univariate.csv", func(w io.Writer) error { return exporter.WriteUnivariateCSV(w, reports.Univariate) }},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Store the current relativities, level statistics and lift chart in Postgres (DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				archive, err := c.Service.Archive(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					ID        string    `json:"id"`
					ModelID   string    `json:"model_id"`
					CreatedAt time.Time `json:"created_at"`
					Stats     int       `json:"variable_level_stats"`
				}{archive.ID.String(), archive.ModelID.String(), archive.CreatedAt.Time(), len(archive.VariableStats)})
			})
		},
	}
}

func newCacheClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-clear",
		Short: "Drop the cached artifacts of the model, including those in Redis (REDIS_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				return c.Service.Invalidate(ctx)
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reports over HTTP, with Prometheus metrics at /metrics/prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *container.Container) error {
				if port == "" {
					port = c.Config.Server.Port
				}
				srv := &http.Server{
					Addr:              ":" + port,
					Handler:           api.NewServer([]*app.AnalysisService{c.Service}, c.Metrics.Handler(), c.Log),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					c.Log.Info().Str("addr", srv.Addr).Msg("serving reports")
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				c.Log.Info().Msg("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT or 8080)")
	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	cfg := testkit.DefaultPortfolioConfig()
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic motor portfolio with its model spec and coefficient table",
		Long: `Simulate Poisson claim counts for a synthetic motor portfolio and write spec.yaml,
coefficients.csv, train.csv and test.csv to the output directory, ready for the other commands.

Example: goglm generate --out demo && goglm relativities --spec demo/spec.yaml --coefficients demo/coefficients.csv --train demo/train.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Policies < 1 {
				return fmt.Errorf("--policies must be at least 1")
			}
			if cfg.TestShare < 0 || cfg.TestShare >= 1 {
				return fmt.Errorf("--test-share must be in [0, 1)")
			}
			logger := internal.NewConsoleLogger(internal.ParseLogLevel(opts.logLevel))

			p, err := testkit.NewPortfolioGenerator(cfg).Generate()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			spec, err := p.Spec.Marshal()
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(out, "spec.yaml"), spec, 0o644); err != nil {
				return err
			}

			exporter := excel.NewExporter(excel.DefaultConfig(), logger)
			writes := map[string]func(io.Writer) error{
				"coefficients.csv": func(w io.Writer) error { return exporter.WriteCoefficientsCSV(w, p.Coefficients) },
				"train.csv":        func(w io.Writer) error { return exporter.WriteFrameCSV(w, p.Train) },
				"test.csv":         func(w io.Writer) error { return exporter.WriteFrameCSV(w, p.Test) },
			}
			for name, write := range writes {
				if err := writeFile(filepath.Join(out, name), write); err != nil {
					return err
				}
			}

			logger.Info().
				Str("dir", out).
				Int("train", p.Train.Len()).
				Int("test", p.Test.Len()).
				Msg("portfolio written")
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "portfolio", "Output directory")
	cmd.Flags().IntVar(&cfg.Policies, "policies", cfg.Policies, "Number of policies")
	cmd.Flags().Float64Var(&cfg.TestShare, "test-share", cfg.TestShare, "Share of policies held out for test")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed; equal seeds give equal portfolios")
	return cmd
}
