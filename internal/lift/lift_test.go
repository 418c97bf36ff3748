package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goglm/domain/core"
	"goglm/domain/dataset"
)

func TestChartEqualExposureBins(t *testing.T) {
	rows, err := Chart("m1", dataset.PartitionTrain, Observations{
		Predictions: []float64{4, 1, 3, 2},
		Targets:     []float64{5, 0, 2, 1},
	}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 0, rows[0].Bin)
	assert.Equal(t, 2, rows[0].Rows)
	assert.Equal(t, 2.0, rows[0].Exposure)
	assert.Equal(t, 1.5, rows[0].WeightedPredicted)
	assert.Equal(t, 0.5, rows[0].WeightedObserved)
	assert.Equal(t, 1.0, rows[0].ScoreMin)
	assert.Equal(t, 2.0, rows[0].ScoreMax)

	assert.Equal(t, 1, rows[1].Bin)
	assert.Equal(t, 3.5, rows[1].WeightedPredicted)
	assert.Equal(t, 3.5, rows[1].WeightedObserved)
	assert.Equal(t, dataset.PartitionTrain, rows[1].Dataset)
}

func TestChartPartitionsEveryRowOnce(t *testing.T) {
	preds := []float64{0.3, 0.1, 0.9, 0.5, 0.5, 0.2, 0.8, 0.7, 0.4, 0.6, 0.05}
	exposure := []float64{1, 0.5, 2, 1, 1, 0.25, 3, 1, 0.75, 1, 2}
	targets := make([]float64, len(preds))

	rows, err := Chart("m1", dataset.PartitionTest, Observations{Predictions: preds, Targets: targets, Exposure: exposure}, 4)
	require.NoError(t, err)

	total, count := 0.0, 0
	for i, r := range rows {
		total += r.Exposure
		count += r.Rows
		assert.LessOrEqual(t, r.ScoreMin, r.ScoreMax)
		if i > 0 {
			assert.Greater(t, r.Bin, rows[i-1].Bin)
			assert.LessOrEqual(t, rows[i-1].ScoreMax, r.ScoreMin, "bins are monotonic in score")
		}
	}
	assert.InDelta(t, 13.5, total, 1e-12)
	assert.Equal(t, len(preds), count)
}

func TestChartSkipsEmptyBins(t *testing.T) {
	rows, err := Chart("m1", dataset.PartitionTrain, Observations{
		Predictions: []float64{1, 2},
		Targets:     []float64{0, 1},
		Exposure:    []float64{10, 1},
	}, 4)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the heavy row fills the top bin on its own")
	assert.Equal(t, 3, rows[0].Bin)
	assert.Equal(t, 2, rows[0].Rows)
	assert.Equal(t, 11.0, rows[0].Exposure)
}

func TestChartDefaultsBinCount(t *testing.T) {
	preds := make([]float64, 16)
	for i := range preds {
		preds[i] = float64(i)
	}
	rows, err := Chart("m1", dataset.PartitionTrain, Observations{Predictions: preds, Targets: preds}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, DefaultBins)
}

func TestChartTiesKeepRowOrder(t *testing.T) {
	rows, err := Chart("m1", dataset.PartitionTrain, Observations{
		Predictions: []float64{1, 1, 1, 1},
		Targets:     []float64{1, 2, 3, 4},
	}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.5, rows[0].WeightedObserved)
	assert.Equal(t, 3.5, rows[1].WeightedObserved)
}

func TestChartErrors(t *testing.T) {
	_, err := Chart("m1", dataset.PartitionTrain, Observations{
		Predictions: []float64{1, 2},
		Targets:     []float64{1, 2},
		Exposure:    []float64{0, 0},
	}, 2)
	assert.ErrorIs(t, err, core.ErrZeroExposure)

	_, err = Chart("m1", dataset.PartitionTrain, Observations{
		Predictions: []float64{1, 2},
		Targets:     []float64{1, 2},
		Exposure:    []float64{1, -1},
	}, 2)
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	_, err = Chart("m1", dataset.PartitionTrain, Observations{Predictions: []float64{1, 2}, Targets: []float64{1}}, 2)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Chart("m1", dataset.PartitionTrain, Observations{}, 2)
	assert.ErrorIs(t, err, core.ErrZeroExposure)
}
