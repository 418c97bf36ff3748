package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
	"goglm/internal/basevalue"
	"goglm/internal/cache"
	"goglm/internal/errors"
	"goglm/internal/levelstats"
	"goglm/internal/lift"
	"goglm/internal/relativity"
	"goglm/internal/terms"
	"goglm/ports"
)

// MetricsReporter computes fit statistics of the model over one partition
type MetricsReporter interface {
	Metrics(ctx context.Context, frame *dataset.Frame, partition dataset.Partition) (report.ModelMetrics, error)
}

// Options configure an AnalysisService
type Options struct {
	Relativity relativity.Options
	LiftBins   int
	Univariate lift.UnivariateOptions

	// Metrics defaults to the model itself when it implements MetricsReporter
	Metrics MetricsReporter
	Store   ports.ReportStore
	Logger  zerolog.Logger
}

// DefaultOptions returns the engine defaults with no report store
func DefaultOptions() Options {
	return Options{
		Relativity: relativity.DefaultOptions(),
		LiftBins:   lift.DefaultBins,
		Univariate: lift.DefaultUnivariateOptions(),
		Logger:     zerolog.Nop(),
	}
}

// AnalysisService computes and caches every report of one fitted model
type AnalysisService struct {
	model   ports.FittedModel
	rows    ports.RowProvider
	cache   *cache.Cache
	engine  *relativity.Engine
	metrics MetricsReporter
	store   ports.ReportStore
	opts    Options
	log     zerolog.Logger
}

// NewAnalysisService binds a model to its rows. A nil cache gets a private in-memory one.
func NewAnalysisService(m ports.FittedModel, rows ports.RowProvider, c *cache.Cache, opts Options) *AnalysisService {
	if opts.LiftBins < 1 {
		opts.LiftBins = lift.DefaultBins
	}
	if opts.Univariate.NumericBins < 1 {
		opts.Univariate.NumericBins = lift.DefaultNumericBins
	}
	if opts.Univariate.Binning == "" {
		opts.Univariate.Binning = lift.BinningEqualWidth
	}
	if opts.Univariate.Rescale == "" {
		opts.Univariate.Rescale = lift.RescaleNone
	}
	if c == nil {
		c = cache.New(cache.Options{Logger: opts.Logger})
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = m.(MetricsReporter)
	}
	log := opts.Logger.With().Str("model_id", m.ID().String()).Logger()
	opts.Relativity.Logger = log

	return &AnalysisService{
		model:   m,
		rows:    rows,
		cache:   c,
		engine:  relativity.NewEngine(m, opts.Relativity),
		metrics: metrics,
		store:   opts.Store,
		opts:    opts,
		log:     log,
	}
}

// ModelID identifies the bound model
func (s *AnalysisService) ModelID() core.ModelID {
	return s.model.ID()
}

// Features returns the model's feature list
func (s *AnalysisService) Features() []model.Feature {
	return s.model.Features()
}

// UnivariateDefaults returns the configured univariate options
func (s *AnalysisService) UnivariateDefaults() lift.UnivariateOptions {
	return s.opts.Univariate
}

// LiftBins returns the configured lift bin count
func (s *AnalysisService) LiftBins() int {
	return s.opts.LiftBins
}

func (s *AnalysisService) exposureColumn() string {
	column, _ := s.model.ExposureVariable()
	return column
}

func (s *AnalysisService) wrap(err error, operation string) error {
	return errors.Wrapf(err, "model %s: %s", s.ModelID(), operation)
}

// Frame returns the rows of one partition
func (s *AnalysisService) Frame(ctx context.Context, partition dataset.Partition) (*dataset.Frame, error) {
	var (
		frame *dataset.Frame
		err   error
	)
	switch partition {
	case dataset.PartitionTrain:
		frame, err = s.rows.TrainRows(ctx)
	case dataset.PartitionTest:
		frame, err = s.rows.TestRows(ctx)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("model %s: unknown dataset %q", s.ModelID(), partition))
	}
	if err != nil {
		return nil, s.wrap(err, "load "+string(partition)+" rows")
	}
	return frame, nil
}

func (s *AnalysisService) terms(ctx context.Context) (*terms.Table, error) {
	coefficients, err := s.model.CoefficientTable(ctx)
	if err != nil {
		return nil, s.wrap(err, "read coefficients")
	}
	return terms.ParseTable(coefficients, s.log), nil
}

// BaseValues resolves the reference value of every included input from the training rows
func (s *AnalysisService) BaseValues(ctx context.Context) (*basevalue.BaseValues, error) {
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), string(core.ArtifactBaseValues), func(ctx context.Context) (*basevalue.BaseValues, error) {
		train, err := s.Frame(ctx, dataset.PartitionTrain)
		if err != nil {
			return nil, err
		}
		base, err := basevalue.Resolve(s.ModelID(), train, s.model.Features(), s.exposureColumn())
		if err != nil {
			return nil, s.wrap(err, "resolve base values")
		}
		return base, nil
	})
}

// BaseValueRows renders the base values as a table
func (s *AnalysisService) BaseValueRows(ctx context.Context) ([]report.BaseValueRow, error) {
	base, err := s.BaseValues(ctx)
	if err != nil {
		return nil, err
	}
	return base.Rows(), nil
}

func (s *AnalysisService) relativities(ctx context.Context) (*relativity.Result, error) {
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), string(core.ArtifactRelativities), func(ctx context.Context) (*relativity.Result, error) {
		base, err := s.BaseValues(ctx)
		if err != nil {
			return nil, err
		}
		table, err := s.terms(ctx)
		if err != nil {
			return nil, err
		}
		train, err := s.Frame(ctx, dataset.PartitionTrain)
		if err != nil {
			return nil, err
		}
		result, err := s.engine.Compute(ctx, relativity.Input{
			ModelID:        s.ModelID(),
			Base:           base,
			Terms:          table,
			Interactions:   s.model.Interactions(),
			Template:       train.Rows[0],
			ExposureColumn: s.exposureColumn(),
		})
		if err != nil {
			return nil, s.wrap(err, "compute relativities")
		}
		return result, nil
	})
}

// Relativities returns the one-way relativity table led by the baseline row
func (s *AnalysisService) Relativities(ctx context.Context) ([]report.RelativityRow, error) {
	result, err := s.relativities(ctx)
	if err != nil {
		return nil, err
	}
	return result.RelativityRows(), nil
}

// InteractionRelativities returns every cell of every declared pair
func (s *AnalysisService) InteractionRelativities(ctx context.Context) ([]report.InteractionRelativityRow, error) {
	result, err := s.relativities(ctx)
	if err != nil {
		return nil, err
	}
	return result.InteractionRows(), nil
}

// VariableLevelStats joins coefficients, relativities and exposure into one table
func (s *AnalysisService) VariableLevelStats(ctx context.Context) (*levelstats.Result, error) {
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), string(core.ArtifactVariableStats), func(ctx context.Context) (*levelstats.Result, error) {
		result, err := s.relativities(ctx)
		if err != nil {
			return nil, err
		}
		base, err := s.BaseValues(ctx)
		if err != nil {
			return nil, err
		}
		table, err := s.terms(ctx)
		if err != nil {
			return nil, err
		}
		train, err := s.Frame(ctx, dataset.PartitionTrain)
		if err != nil {
			return nil, err
		}
		stats, err := levelstats.Assemble(levelstats.Input{
			ModelID:      s.ModelID(),
			Base:         base,
			Relativities: result,
			Terms:        table,
			Interactions: s.model.Interactions(),
			Train:        train,
			Logger:       s.log,
		})
		if err != nil {
			return nil, s.wrap(err, "assemble variable level stats")
		}
		return stats, nil
	})
}

// Predictions scores every row of a partition once
func (s *AnalysisService) Predictions(ctx context.Context, partition dataset.Partition) ([]float64, error) {
	artifact := core.ArtifactPredictedTrain
	if partition == dataset.PartitionTest {
		artifact = core.ArtifactPredictedTest
	}
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), string(artifact), func(ctx context.Context) ([]float64, error) {
		frame, err := s.Frame(ctx, partition)
		if err != nil {
			return nil, err
		}
		preds, err := s.model.Predict(ctx, frame.Rows)
		if err != nil {
			if !core.IsConfigurationError(err) {
				err = core.NewOracleError(s.ModelID(), "predict "+string(partition), err)
			}
			return nil, s.wrap(err, "predictions")
		}
		if len(preds) != frame.Len() {
			return nil, s.wrap(core.NewOracleError(s.ModelID(), "predict "+string(partition),
				fmt.Errorf("returned %d predictions for %d rows", len(preds), frame.Len())), "predictions")
		}
		return preds, nil
	})
}

// LiftChart bins a partition into bins groups of equal exposure. bins < 1 uses the configured count.
func (s *AnalysisService) LiftChart(ctx context.Context, bins int, partition dataset.Partition) ([]report.LiftRow, error) {
	if bins < 1 {
		bins = s.opts.LiftBins
	}
	artifact := fmt.Sprintf("%s:%s:%d", core.ArtifactLiftChart, partition, bins)
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), artifact, func(ctx context.Context) ([]report.LiftRow, error) {
		frame, err := s.Frame(ctx, partition)
		if err != nil {
			return nil, err
		}
		preds, err := s.Predictions(ctx, partition)
		if err != nil {
			return nil, err
		}
		targets, row, ok := frame.Floats(s.model.TargetVariable())
		if !ok {
			return nil, s.wrap(core.NewInvalidValueError(s.model.TargetVariable(), row, "target must be numeric"), "lift chart")
		}
		obs := lift.Observations{Predictions: preds, Targets: targets}
		if column := s.exposureColumn(); column != "" {
			obs.Exposure = frame.Weights(column)
		}
		rows, err := lift.Chart(s.ModelID(), partition, obs, bins)
		if err != nil {
			return nil, s.wrap(err, "lift chart")
		}
		return rows, nil
	})
}

// Univariate builds the actual-vs-expected curve of one variable. Zero-valued options fall back
// to the configured defaults.
func (s *AnalysisService) Univariate(ctx context.Context, variable string, partition dataset.Partition, opts lift.UnivariateOptions) ([]report.UnivariateRow, error) {
	def := s.opts.Univariate
	if opts.NumericBins < 1 {
		opts.NumericBins = def.NumericBins
	}
	if opts.Binning == "" {
		opts.Binning = def.Binning
	}
	if opts.MaxLevels < 1 {
		opts.MaxLevels = def.MaxLevels
	}
	if opts.Rescale == "" {
		opts.Rescale = def.Rescale
	}

	artifact := fmt.Sprintf("%s:%s:%s:%d:%s:%d:%s", core.ArtifactUnivariate, variable, partition,
		opts.NumericBins, opts.Binning, opts.MaxLevels, opts.Rescale)
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), artifact, func(ctx context.Context) ([]report.UnivariateRow, error) {
		frame, err := s.Frame(ctx, partition)
		if err != nil {
			return nil, err
		}
		base, err := s.BaseValues(ctx)
		if err != nil {
			return nil, err
		}
		fitted, err := s.Predictions(ctx, partition)
		if err != nil {
			return nil, err
		}
		rows, err := lift.Univariate(ctx, s.model, lift.UnivariateInput{
			ModelID:        s.ModelID(),
			Variable:       variable,
			Partition:      partition,
			Frame:          frame,
			Base:           base,
			Features:       s.model.Features(),
			TargetColumn:   s.model.TargetVariable(),
			ExposureColumn: s.exposureColumn(),
			Fitted:         fitted,
		}, opts)
		if err != nil {
			return nil, s.wrap(err, "univariate "+variable)
		}
		return rows, nil
	})
}

// Metrics reports deviance and information criteria over a partition
func (s *AnalysisService) Metrics(ctx context.Context, partition dataset.Partition) (report.ModelMetrics, error) {
	if s.metrics == nil {
		return report.ModelMetrics{}, s.wrap(core.NewConfigurationError(s.ModelID(), "model does not report fit metrics"), "metrics")
	}
	artifact := fmt.Sprintf("%s:%s", core.ArtifactModelMetrics, partition)
	return cache.GetOrCreate(ctx, s.cache, s.ModelID(), artifact, func(ctx context.Context) (report.ModelMetrics, error) {
		frame, err := s.Frame(ctx, partition)
		if err != nil {
			return report.ModelMetrics{}, err
		}
		m, err := s.metrics.Metrics(ctx, frame, partition)
		if err != nil {
			return report.ModelMetrics{}, s.wrap(err, "metrics "+string(partition))
		}
		return m, nil
	})
}

// Archive persists the relativities, variable-level stats and train lift chart as one run
func (s *AnalysisService) Archive(ctx context.Context) (*report.Archive, error) {
	if s.store == nil {
		return nil, s.wrap(core.NewConfigurationError(s.ModelID(), "no report store configured"), "archive")
	}
	result, err := s.relativities(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.VariableLevelStats(ctx)
	if err != nil {
		return nil, err
	}
	liftRows, err := s.LiftChart(ctx, s.opts.LiftBins, dataset.PartitionTrain)
	if err != nil {
		return nil, err
	}

	archive := &report.Archive{
		ID:            core.NewReportID(),
		ModelID:       s.ModelID(),
		CreatedAt:     core.Now(),
		Baseline:      result.Baseline,
		Relativities:  result.RelativityRows(),
		VariableStats: stats.Rows,
		Lift:          liftRows,
	}
	if err := s.store.SaveReport(ctx, archive); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, s.wrap(err, "archive"))
	}
	s.log.Info().Str("report_id", archive.ID.String()).Int("stats", len(archive.VariableStats)).Msg("report archived")
	return archive, nil
}

// Invalidate drops every cached artifact of the model
func (s *AnalysisService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, s.ModelID())
}
