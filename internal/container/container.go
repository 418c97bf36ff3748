package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"goglm/adapters/excel"
	"goglm/adapters/postgres"
	"goglm/adapters/redis"
	"goglm/app"
	"goglm/internal/cache"
	"goglm/internal/config"
	"goglm/internal/glm"
	"goglm/internal/lift"
	"goglm/internal/metrics"
	"goglm/internal/relativity"
	"goglm/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	// Infrastructure, nil when not configured
	DB     *sqlx.DB
	Remote *redis.ArtifactCache

	Metrics *metrics.Registry
	Cache   *cache.Cache
	Store   ports.ReportStore

	Spec    *config.ModelSpec
	Model   *glm.Model
	Rows    ports.RowProvider
	Service *app.AnalysisService
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{Config: cfg, Log: logger, Metrics: metrics.NewRegistry()}, nil
}

// Init connects the optional infrastructure, loads the model and builds the analysis service
func (c *Container) Init(ctx context.Context) error {
	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := c.initCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if err := c.initModel(); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	c.initService()

	c.Log.Info().
		Str("model_id", c.Model.ID().String()).
		Bool("database", c.DB != nil).
		Bool("redis", c.Remote != nil).
		Msg("container initialized")
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	if !c.Config.Database.Enabled {
		return nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return err
	}
	if err := postgres.EnsureSchema(ctx, db, c.Log); err != nil {
		db.Close()
		return err
	}
	c.DB = db
	c.Store = postgres.NewReportRepository(db)
	return nil
}

func (c *Container) initCache() error {
	opts := cache.Options{Observer: c.Metrics, Logger: c.Log}
	if url := c.Config.Cache.RedisURL; url != "" {
		remote, err := redis.NewArtifactCache(url, c.Config.Cache.TTL)
		if err != nil {
			return err
		}
		c.Remote = remote
		opts.Remote = remote
	}
	c.Cache = cache.New(opts)
	return nil
}

func (c *Container) initModel() error {
	paths := c.Config.Paths
	if paths.ModelSpec == "" || paths.Coefficients == "" {
		return fmt.Errorf("a model spec and a coefficient table are required")
	}
	spec, err := config.LoadModelSpec(paths.ModelSpec)
	if err != nil {
		return err
	}
	coefficients, err := excel.NewDataReader(paths.Coefficients, excel.DefaultConfig(), c.Log).ReadCoefficients()
	if err != nil {
		return err
	}
	m, err := glm.NewModel(spec, coefficients, c.Log)
	if err != nil {
		return err
	}

	c.Spec = spec
	c.Model = m
	c.Rows = &excel.FileRows{
		TrainPath: paths.TrainData,
		TestPath:  paths.TestData,
		Features:  spec.ModelFeatures(),
		Config:    excel.DefaultConfig(),
		Logger:    c.Log,
	}
	return nil
}

func (c *Container) initService() {
	engine := c.Config.Engine
	univariate := lift.DefaultUnivariateOptions()
	univariate.NumericBins = engine.UnivariateBins
	if engine.QuantileBinning {
		univariate.Binning = lift.BinningQuantile
	}

	c.Service = app.NewAnalysisService(metrics.Instrument(c.Model, c.Metrics), c.Rows, c.Cache, app.Options{
		Relativity: relativity.Options{NumericSamples: engine.NumericSamples, Workers: engine.Workers},
		LiftBins:   engine.LiftBins,
		Univariate: univariate,
		Metrics:    c.Model,
		Store:      c.Store,
		Logger:     c.Log,
	})
}

// Shutdown releases connections
func (c *Container) Shutdown(context.Context) error {
	var firstErr error
	if c.Remote != nil {
		if err := c.Remote.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
