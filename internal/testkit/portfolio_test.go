package testkit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goglm/domain/core"
	"goglm/domain/dataset"
)

func smallPortfolio(t *testing.T, seed int64) *Portfolio {
	t.Helper()
	p, err := NewPortfolioGenerator(PortfolioConfig{Policies: 300, TestShare: 0.3, Seed: seed}).Generate()
	require.NoError(t, err)
	return p
}

func TestPortfolioIsDeterministic(t *testing.T) {
	a := smallPortfolio(t, 7)
	b := smallPortfolio(t, 7)
	assert.Equal(t, a.Train.Rows, b.Train.Rows)
	assert.Equal(t, a.Test.Rows, b.Test.Rows)
}

func TestPortfolioShape(t *testing.T) {
	p := smallPortfolio(t, 42)
	assert.Equal(t, 300, p.Train.Len()+p.Test.Len())
	assert.Greater(t, p.Test.Len(), 30)
	assert.Greater(t, p.Train.Len(), p.Test.Len())

	claims := 0.0
	for _, row := range p.Train.Rows {
		for _, col := range PortfolioColumns {
			_, ok := row[col]
			require.True(t, ok, "column %s", col)
		}
		exposure := row["Exposure"].Number
		assert.Greater(t, exposure, 0.0)
		assert.LessOrEqual(t, exposure, 1.0)
		age := row["VehicleAge"].Number
		assert.GreaterOrEqual(t, age, 0.0)
		assert.LessOrEqual(t, age, 20.0)
		claims += row["ClaimCount"].Number
	}
	assert.Greater(t, claims, 0.0, "a 10% claim rate yields claims in 200 policies")
}

func TestPortfolioModelMatchesSpec(t *testing.T) {
	p := smallPortfolio(t, 1)
	assert.Equal(t, core.ModelID("motor-frequency"), p.Model.ID())
	assert.Len(t, p.Spec.InteractionPairs(), 1)
	assert.Equal(t, len(MotorCoefficients()), p.Model.Parameters())
}

func TestCountingModel(t *testing.T) {
	p := smallPortfolio(t, 3)
	m := NewCountingModel(p.Model)

	_, err := m.Predict(context.Background(), p.Test.Rows)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, p.Test.Len(), m.Rows())

	boom := errors.New("scoring service unavailable")
	m.FailWith(boom)
	_, err = m.Predict(context.Background(), p.Test.Rows[:1])
	assert.ErrorIs(t, err, boom)

	m.Reset()
	assert.Equal(t, 0, m.Calls())
}

func TestStaticRows(t *testing.T) {
	p := smallPortfolio(t, 5)
	rows := p.Rows()
	train, err := rows.TrainRows(context.Background())
	require.NoError(t, err)
	assert.Same(t, p.Train, train)

	_, err = StaticRows{Train: dataset.NewFrame("train", nil, nil)}.TestRows(context.Background())
	assert.ErrorIs(t, err, core.ErrNotFound)
}
