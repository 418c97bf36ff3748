package app

import (
	"context"
	stderrors "errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/report"
	"goglm/internal/errors"
	"goglm/internal/lift"
	"goglm/internal/testkit"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveReport(ctx context.Context, archive *report.Archive) error {
	return m.Called(ctx, archive).Error(0)
}

func (m *mockStore) LatestVariableStats(ctx context.Context, modelID core.ModelID) ([]report.VariableStatRow, error) {
	args := m.Called(ctx, modelID)
	rows, _ := args.Get(0).([]report.VariableStatRow)
	return rows, args.Error(1)
}

type fixture struct {
	portfolio *testkit.Portfolio
	model     *testkit.CountingModel
	service   *AnalysisService
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	p, err := testkit.NewPortfolioGenerator(testkit.PortfolioConfig{Policies: 400, TestShare: 0.25, Seed: 7}).Generate()
	require.NoError(t, err)

	counting := testkit.NewCountingModel(p.Model)
	opts := DefaultOptions()
	opts.Metrics = p.Model
	if mutate != nil {
		mutate(&opts)
	}
	return &fixture{portfolio: p, model: counting, service: NewAnalysisService(counting, p.Rows(), nil, opts)}
}

func totalExposure(frame *dataset.Frame) float64 {
	total := 0.0
	for _, w := range frame.Weights("Exposure") {
		total += w
	}
	return total
}

func TestBaseValues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.service.BaseValueRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Region", rows[0].Variable)
	assert.Equal(t, "categorical", rows[0].Kind)
	assert.Equal(t, "Petrol", rows[3].Value)

	first, err := f.service.BaseValues(ctx)
	require.NoError(t, err)
	second, err := f.service.BaseValues(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRelativities(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.service.Relativities(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, report.BaseLabel, rows[0].Variable)
	assert.Greater(t, rows[0].Relativity, 0.0)

	base, err := f.service.BaseValues(ctx)
	require.NoError(t, err)
	byValue := make(map[string]map[string]float64)
	for _, r := range rows[1:] {
		if byValue[r.Variable] == nil {
			byValue[r.Variable] = make(map[string]float64)
		}
		byValue[r.Variable][r.Value] = r.Relativity
	}
	for _, feature := range []string{"Region", "Fuel"} {
		v, _ := base.Value(feature)
		assert.InDelta(t, 1.0, byValue[feature][v.String()], 1e-12, feature)
	}
	assert.InDelta(t, math.Exp(0.1), byValue["Fuel"]["Diesel"], 1e-9)
	assert.Len(t, byValue["VehicleAge"], DefaultOptions().Relativity.NumericSamples)
}

func TestRelativitiesAreComputedOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Relativities(ctx)
	require.NoError(t, err)
	calls := f.model.Calls()
	require.Positive(t, calls)

	_, err = f.service.Relativities(ctx)
	require.NoError(t, err)
	_, err = f.service.InteractionRelativities(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, f.model.Calls())

	require.NoError(t, f.service.Invalidate(ctx))
	_, err = f.service.Relativities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*calls, f.model.Calls())
}

func TestInteractionRelativities(t *testing.T) {
	f := newFixture(t, nil)

	rows, err := f.service.InteractionRelativities(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	regions := make(map[string]bool)
	for _, r := range rows {
		assert.Equal(t, "Region", r.First)
		assert.Equal(t, "VehicleAge", r.Second)
		regions[r.FirstValue] = true
		if !r.Active {
			assert.Equal(t, 1.0, r.Pure)
		}
	}
	assert.Len(t, regions, 4)
}

func TestVariableLevelStats(t *testing.T) {
	f := newFixture(t, nil)

	stats, err := f.service.VariableLevelStats(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, stats.Rows)

	pct := make(map[string]float64)
	for _, r := range stats.Rows {
		if r.Variable == "Region" || r.Variable == "Fuel" {
			pct[r.Variable] += r.ExposureWeightPct
		}
	}
	assert.InDelta(t, 100, pct["Region"], 1e-9)
	assert.InDelta(t, 100, pct["Fuel"], 1e-9)
}

func TestLiftChart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.service.LiftChart(ctx, 5, dataset.PartitionTest)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.LessOrEqual(t, len(rows), 5)

	exposure, count := 0.0, 0
	for _, r := range rows {
		exposure += r.Exposure
		count += r.Rows
		assert.Equal(t, dataset.PartitionTest, r.Dataset)
	}
	assert.InDelta(t, totalExposure(f.portfolio.Test), exposure, 1e-9)
	assert.Equal(t, f.portfolio.Test.Len(), count)

	calls := f.model.Calls()
	_, err = f.service.LiftChart(ctx, 0, dataset.PartitionTest)
	require.NoError(t, err)
	assert.Equal(t, calls, f.model.Calls(), "predictions are reused across bin counts")
}

func TestUnivariate(t *testing.T) {
	f := newFixture(t, nil)

	rows, err := f.service.Univariate(context.Background(), "Region", dataset.PartitionTrain, lift.UnivariateOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	categories := make([]string, len(rows))
	exposure := 0.0
	for i, r := range rows {
		categories[i] = r.Category
		exposure += r.Exposure
	}
	assert.True(t, sort.StringsAreSorted(categories))
	assert.InDelta(t, totalExposure(f.portfolio.Train), exposure, 1e-9)
}

func TestUnivariateRescaleBaseLevel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	base, err := f.service.BaseValues(ctx)
	require.NoError(t, err)
	region, _ := base.Value("Region")

	rows, err := f.service.Univariate(ctx, "Region", dataset.PartitionTrain, lift.UnivariateOptions{Rescale: lift.RescaleBaseLevel})
	require.NoError(t, err)
	for _, r := range rows {
		if r.Category == region.String() {
			assert.InDelta(t, 1.0, r.FittedAverage, 1e-12)
			assert.InDelta(t, 1.0, r.BaseLevelPrediction, 1e-12)
		}
	}
}

func TestUnivariateUnknownVariable(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Univariate(context.Background(), "Colour", dataset.PartitionTrain, lift.UnivariateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownVariable)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

func TestUnivariateRejectCandidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.service.Univariate(ctx, "PolicyId", dataset.PartitionTrain, lift.UnivariateOptions{MaxLevels: 10})
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, lift.OthersLabel, rows[9].Category)

	exposure := 0.0
	for _, r := range rows {
		assert.Equal(t, "PolicyId", r.Variable)
		assert.Greater(t, r.BaseLevelPrediction, 0.0)
		exposure += r.Exposure
	}
	assert.InDelta(t, totalExposure(f.portfolio.Train), exposure, 1e-9)

	_, err = f.service.Univariate(ctx, "ClaimCount", dataset.PartitionTrain, lift.UnivariateOptions{})
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)

	m, err := f.service.Metrics(context.Background(), dataset.PartitionTrain)
	require.NoError(t, err)
	assert.Equal(t, "poisson", m.Family)
	assert.Equal(t, f.portfolio.Train.Len(), m.Rows)
	assert.Greater(t, m.Deviance, 0.0)
	assert.Greater(t, m.AIC, 0.0)
}

func TestMetricsWithoutReporter(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Metrics = nil })

	_, err := f.service.Metrics(context.Background(), dataset.PartitionTrain)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "motor-frequency")
}

func TestOracleFailureCarriesModelID(t *testing.T) {
	f := newFixture(t, nil)
	f.model.FailWith(stderrors.New("scoring service unavailable"))

	_, err := f.service.Relativities(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsOracleError(err))
	assert.Equal(t, errors.CodeOracleFailure, errors.GetCode(err))
	assert.Contains(t, err.Error(), "motor-frequency")

	f.model.FailWith(nil)
	_, err = f.service.Relativities(context.Background())
	assert.NoError(t, err, "failures are not cached")
}

func TestFrameErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Frame(ctx, "holdout")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	noTest := NewAnalysisService(f.model, testkit.StaticRows{Train: f.portfolio.Train}, nil, DefaultOptions())
	_, err = noTest.LiftChart(ctx, 4, dataset.PartitionTest)
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestArchive(t *testing.T) {
	store := &mockStore{}
	f := newFixture(t, func(o *Options) { o.Store = store })

	store.On("SaveReport", mock.Anything, mock.MatchedBy(func(a *report.Archive) bool {
		return a.ModelID == "motor-frequency" && len(a.VariableStats) > 0 && len(a.Lift) > 0
	})).Return(nil).Once()

	archive, err := f.service.Archive(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, archive.ID)
	assert.Equal(t, report.BaseLabel, archive.Relativities[0].Variable)
	store.AssertExpectations(t)
}

func TestArchiveErrors(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.Archive(context.Background())
	assert.ErrorIs(t, err, core.ErrConfiguration)

	store := &mockStore{}
	store.On("SaveReport", mock.Anything, mock.Anything).Return(stderrors.New("connection refused"))
	withStore := newFixture(t, func(o *Options) { o.Store = store })
	_, err = withStore.service.Archive(context.Background())
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
}
