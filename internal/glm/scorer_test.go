package glm

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/internal/config"
)

const frequencySpec = `
id: motor
target: ClaimCount
exposure: Exposure
family: poisson
link: log
features:
  - name: Region
    kind: categorical
  - name: Age
    kind: numeric
interactions:
  - [Region, Age]
`

func frequencyCoefficients() []model.CoefficientTerm {
	return []model.CoefficientTerm{
		{Term: "intercept", Coefficient: -2},
		{Term: "dummy:Region:South", Coefficient: math.Log(1.2)},
		{Term: "Age:_", Coefficient: 0.01},
		{Term: "interaction:Region:South::Age:_", Coefficient: 0.005},
		{Term: "Region:South:garbage", Coefficient: 9},
	}
}

func newFrequencyModel(t *testing.T) *Model {
	t.Helper()
	spec, err := config.ParseModelSpec([]byte(frequencySpec))
	require.NoError(t, err)
	m, err := NewModel(spec, frequencyCoefficients(), zerolog.Nop())
	require.NoError(t, err)
	return m
}

func row(region string, age, exposure float64) dataset.Row {
	return dataset.Row{"Region": dataset.Cat(region), "Age": dataset.Num(age), "Exposure": dataset.Num(exposure)}
}

func TestPredictLogLinkWithExposure(t *testing.T) {
	m := newFrequencyModel(t)
	preds, err := m.Predict(context.Background(), []dataset.Row{
		row("North", 0, 1),
		row("South", 10, 2),
	})
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-2), preds[0], 1e-12)
	assert.InDelta(t, math.Exp(-2+math.Log(1.2)+0.1+0.05)*2, preds[1], 1e-12)
	assert.Equal(t, 4, m.Parameters(), "the malformed term is left out")
}

func TestModelDescribesItself(t *testing.T) {
	m := newFrequencyModel(t)
	assert.Equal(t, core.ModelID("motor"), m.ID())
	assert.Equal(t, "ClaimCount", m.TargetVariable())
	exposure, ok := m.ExposureVariable()
	assert.True(t, ok)
	assert.Equal(t, "Exposure", exposure)
	assert.Equal(t, []model.InteractionPair{{First: "Region", Second: "Age"}}, m.Interactions())
	assert.Len(t, model.Inputs(m.Features()), 2)

	table, err := m.CoefficientTable(context.Background())
	require.NoError(t, err)
	assert.Len(t, table, 5)
	table[0].Coefficient = 100
	again, _ := m.CoefficientTable(context.Background())
	assert.Equal(t, -2.0, again[0].Coefficient, "callers get a copy")
}

func TestPredictIdentityLinkWithOffset(t *testing.T) {
	spec, err := config.ParseModelSpec([]byte(`
target: Loss
offsets: [Base]
features:
  - name: Age
    kind: numeric
`))
	require.NoError(t, err)
	m, err := NewModel(spec, []model.CoefficientTerm{
		{Term: "intercept", Coefficient: 1},
		{Term: "Age:_", Coefficient: 2},
	}, zerolog.Nop())
	require.NoError(t, err)

	preds, err := m.Predict(context.Background(), []dataset.Row{{"Age": dataset.Num(3), "Base": dataset.Num(10)}})
	require.NoError(t, err)
	assert.Equal(t, []float64{17}, preds)
}

func TestPredictErrors(t *testing.T) {
	m := newFrequencyModel(t)

	_, err := m.Predict(context.Background(), []dataset.Row{{"Region": dataset.Cat("North"), "Exposure": dataset.Num(1)}})
	assert.ErrorIs(t, err, core.ErrMissingColumn)

	_, err = m.Predict(context.Background(), []dataset.Row{row("North", 30, 0)})
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	_, err = m.Predict(context.Background(), []dataset.Row{{"Region": dataset.Cat("North"), "Age": dataset.Cat("old"), "Exposure": dataset.Num(1)}})
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Predict(ctx, []dataset.Row{row("North", 30, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewModelRejectsUnknownVariables(t *testing.T) {
	spec, err := config.ParseModelSpec([]byte(frequencySpec))
	require.NoError(t, err)
	_, err = NewModel(spec, append(frequencyCoefficients(), model.CoefficientTerm{Term: "dummy:Fuel:Diesel", Coefficient: 0.1}), zerolog.Nop())
	assert.ErrorIs(t, err, core.ErrUnknownVariable)

	spec.Link = "probit"
	_, err = NewModel(spec, frequencyCoefficients(), zerolog.Nop())
	assert.ErrorIs(t, err, core.ErrInvalidModelSpec)
}

func TestPredictIsSafeForConcurrentUse(t *testing.T) {
	m := newFrequencyModel(t)
	rows := []dataset.Row{row("South", 40, 1), row("North", 20, 0.5)}
	want, err := m.Predict(context.Background(), rows)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Predict(context.Background(), rows)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestLinkRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		power float64
		mu    float64
	}{
		{"identity", 0, 3.5},
		{"log", 0, 0.2},
		{"logit", 0, 0.3},
		{"cloglog", 0, 0.4},
		{"inverse_power", 0, 2},
		{"Inverse Squared", 0, 2},
		{"power", 0.5, 4},
		{"power", 0, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			link, err := ParseLink(tc.name, tc.power)
			require.NoError(t, err)
			assert.InDelta(t, tc.mu, link.Inverse(link.Apply(tc.mu)), 1e-12)
		})
	}

	link, err := ParseLink("power", 0)
	require.NoError(t, err)
	assert.True(t, link.IsLog(), "power 0 is the log link")

	_, err = ParseLink("probit", 0)
	assert.ErrorIs(t, err, core.ErrInvalidModelSpec)
}
