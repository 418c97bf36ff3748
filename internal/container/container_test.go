package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goglm/domain/dataset"
	"goglm/domain/report"
	"goglm/internal/config"
)

const specYAML = `
id: home
target: Claims
exposure: Years
family: poisson
link: log
features:
  - name: Zone
    kind: categorical
  - name: Rooms
    kind: numeric
`

const coefficientsCSV = `term,coefficient,standard_error,p_value
intercept,-2,0.1,0.001
dummy:Zone:B,0.5,0.2,0.01
Rooms:_,0.1,0.05,0.04
`

const trainCSV = `Zone,Rooms,Years,Claims
A,2,1,0
A,3,1,1
B,4,2,1
B,5,1,0
A,3,0.5,0
`

func writeFiles(t *testing.T) config.PathConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	return config.PathConfig{
		ModelSpec:    write("spec.yaml", specYAML),
		Coefficients: write("coefficients.csv", coefficientsCSV),
		TrainData:    write("train.csv", trainCSV),
	}
}

func testConfig(paths config.PathConfig) *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			NumericSamples: 5,
			Workers:        2,
			LiftBins:       2,
			UnivariateBins: 3,
		},
		Paths: paths,
	}
}

func TestInitBuildsService(t *testing.T) {
	c, err := New(testConfig(writeFiles(t)), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	defer c.Shutdown(context.Background())

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Remote)
	assert.Nil(t, c.Store)
	assert.Equal(t, "home", c.Model.ID().String())

	rows, err := c.Service.Relativities(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, report.BaseLabel, rows[0].Variable)
	zones := 0
	for _, r := range rows {
		if r.Variable == "Zone" {
			zones++
		}
	}
	assert.Equal(t, 2, zones)

	lift, err := c.Service.LiftChart(context.Background(), 0, dataset.PartitionTrain)
	require.NoError(t, err)
	assert.NotEmpty(t, lift)

	_, err = c.Service.LiftChart(context.Background(), 0, dataset.PartitionTest)
	assert.Error(t, err, "no test file configured")
}

func TestInitRequiresModelFiles(t *testing.T) {
	c, err := New(testConfig(config.PathConfig{}), zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, c.Init(context.Background()))
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, zerolog.Nop())
	assert.Error(t, err)
}
