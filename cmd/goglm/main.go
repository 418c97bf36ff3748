package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"goglm/internal"
	"goglm/internal/config"
	"goglm/internal/container"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand
type rootOptions struct {
	specPath         string
	coefficientsPath string
	trainPath        string
	testPath         string
	envFile          string
	logLevel         string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "goglm",
		Short: "Relativities, level statistics, lift charts and univariate curves for fitted GLMs",
		Long: `goglm reports on a fitted generalized linear model described by a YAML spec and a
coefficient table, scored against train and test data files (CSV or xlsx).

Flags override the GOGLM_* environment variables, which may also come from an env file.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.specPath, "spec", "", "Model spec YAML (GOGLM_MODEL_SPEC)")
	flags.StringVar(&opts.coefficientsPath, "coefficients", "", "Coefficient table, CSV or xlsx (GOGLM_COEFFICIENTS)")
	flags.StringVar(&opts.trainPath, "train", "", "Training data file (GOGLM_TRAIN_DATA)")
	flags.StringVar(&opts.testPath, "test", "", "Test data file (GOGLM_TEST_DATA)")
	flags.StringVar(&opts.envFile, "env-file", "", "Env file to load before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (LOG_LEVEL)")

	rootCmd.AddCommand(
		newBaseValuesCmd(opts),
		newRelativitiesCmd(opts),
		newStatsCmd(opts),
		newLiftCmd(opts),
		newUnivariateCmd(opts),
		newMetricsCmd(opts),
		newExportCmd(opts),
		newArchiveCmd(opts),
		newCacheClearCmd(opts),
		newServeCmd(opts),
		newGenerateCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the environment, then applies flag overrides
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
		}
	} else {
		// A missing .env is fine
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Paths.ModelSpec, o.specPath)
	override(&cfg.Paths.Coefficients, o.coefficientsPath)
	override(&cfg.Paths.TrainData, o.trainPath)
	override(&cfg.Paths.TestData, o.testPath)
	override(&cfg.LogLevel, o.logLevel)
	return cfg, nil
}

// open builds and initializes the container; callers must Shutdown it
func (o *rootOptions) open(ctx context.Context) (*container.Container, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg, internal.NewConsoleLogger(internal.ParseLogLevel(cfg.LogLevel)))
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		_ = c.Shutdown(ctx)
		return nil, err
	}
	return c, nil
}

// run opens the container around fn
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *container.Container) error) error {
	ctx := cmd.Context()
	c, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Shutdown(context.Background()); err != nil {
			c.Log.Warn().Err(err).Msg("shutdown failed")
		}
	}()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
