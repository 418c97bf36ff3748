package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
)

var portfolioFeatures = []model.Feature{
	{Name: "Region", Kind: model.KindCategorical, Role: model.RoleInput, Included: true},
	{Name: "Age", Kind: model.KindNumeric, Role: model.RoleInput, Included: true},
	{Name: "Claims", Kind: model.KindNumeric, Role: model.RoleTarget},
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSVData(t *testing.T) {
	path := writeFile(t, "policies.csv", " Region ,Age,Claims\nNorth, 40 ,1\nSouth,30\n")

	raw, err := NewDataReader(path, DefaultConfig(), zerolog.Nop()).ReadData()
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Age", "Claims"}, raw.Headers)
	require.Len(t, raw.Rows, 2)
	assert.Equal(t, "40", raw.Rows[0]["Age"])
	_, present := raw.Rows[1]["Claims"]
	assert.False(t, present, "short rows leave trailing columns absent")
}

func TestReadDataMissingFile(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "nope.csv"), DefaultConfig(), zerolog.Nop()).ReadData()
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestReadDataHeaderOnly(t *testing.T) {
	path := writeFile(t, "empty.csv", "Region,Age\n")
	_, err := NewDataReader(path, DefaultConfig(), zerolog.Nop()).ReadData()
	assert.Error(t, err)
}

func TestReadExcelData(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{{"Region", "Age", "Claims"}, {"North", 40, 1}, {"East", 55.5, 0}}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "policies.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	frame, err := NewDataReader(path, DefaultConfig(), zerolog.Nop()).ReadFrame("train", portfolioFeatures)
	require.NoError(t, err)

	require.Equal(t, 2, frame.Len())
	assert.Equal(t, dataset.Cat("East"), frame.Rows[1]["Region"])
	assert.Equal(t, dataset.Num(55.5), frame.Rows[1]["Age"])
	assert.Equal(t, dataset.Num(1), frame.Rows[0]["Claims"])
}

func TestReadExcelUsesConfiguredSheet(t *testing.T) {
	f := excelize.NewFile()
	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	header := []any{"Region"}
	row := []any{"West"}
	require.NoError(t, f.SetSheetRow("Data", "A1", &header))
	require.NoError(t, f.SetSheetRow("Data", "A2", &row))
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	raw, err := NewDataReader(path, Config{Sheet: "Data"}, zerolog.Nop()).ReadData()
	require.NoError(t, err)
	require.Len(t, raw.Rows, 1)
	assert.Equal(t, "West", raw.Rows[0]["Region"])
}

func TestTypeFrame(t *testing.T) {
	raw := &RawTable{
		Headers: []string{"Region", "Age", "Claims", "Note"},
		Rows: []RawRowData{
			{"Region": "North", "Age": "40", "Claims": "2", "Note": "7"},
		},
	}
	frame, err := TypeFrame("test", raw, portfolioFeatures)
	require.NoError(t, err)

	assert.Equal(t, "test", frame.Name)
	assert.Equal(t, dataset.Num(40), frame.Rows[0]["Age"])
	assert.Equal(t, dataset.Cat("7"), frame.Rows[0]["Note"], "undeclared columns stay categorical")
}

func TestTypeFrameErrors(t *testing.T) {
	t.Run("missing input column", func(t *testing.T) {
		raw := &RawTable{Headers: []string{"Region"}, Rows: []RawRowData{{"Region": "North"}}}
		_, err := TypeFrame("train", raw, portfolioFeatures)
		assert.ErrorIs(t, err, core.ErrMissingColumn)
	})
	t.Run("non numeric cell", func(t *testing.T) {
		raw := &RawTable{
			Headers: []string{"Region", "Age"},
			Rows:    []RawRowData{{"Region": "North", "Age": "old"}},
		}
		_, err := TypeFrame("train", raw, portfolioFeatures)
		assert.ErrorIs(t, err, core.ErrInvalidValue)
	})
}

func TestFileRows(t *testing.T) {
	train := writeFile(t, "train.csv", "Region,Age,Claims\nNorth,40,1\nSouth,30,0\n")
	rows := &FileRows{TrainPath: train, Features: portfolioFeatures, Config: DefaultConfig(), Logger: zerolog.Nop()}

	frame, err := rows.TrainRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Len())
	assert.Equal(t, "train", frame.Name)

	again, err := rows.TrainRows(context.Background())
	require.NoError(t, err)
	assert.Same(t, frame, again, "frames are read once")

	_, err = rows.TestRows(context.Background())
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestParseCoefficients(t *testing.T) {
	raw := &RawTable{
		Headers: []string{"Term", "Estimate", "SE"},
		Rows: []RawRowData{
			{"Term": "intercept", "Estimate": "-2.3", "SE": "0.1"},
			{"Term": "", "Estimate": "9"},
			{"Term": "Region:South", "Estimate": "0.18"},
		},
	}
	terms, err := ParseCoefficients(raw)
	require.NoError(t, err)

	require.Len(t, terms, 2)
	assert.Equal(t, model.CoefficientTerm{Term: "intercept", Coefficient: -2.3, StandardError: 0.1}, terms[0])
	assert.Equal(t, "Region:South", terms[1].Term)
	assert.Zero(t, terms[1].StandardError)
}

func TestParseCoefficientsErrors(t *testing.T) {
	_, err := ParseCoefficients(&RawTable{Headers: []string{"term"}})
	assert.ErrorIs(t, err, core.ErrMissingColumn)

	_, err = ParseCoefficients(&RawTable{
		Headers: []string{"term", "coefficient"},
		Rows:    []RawRowData{{"term": "intercept", "coefficient": "abc"}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	_, err = ParseCoefficients(&RawTable{
		Headers: []string{"term", "coefficient"},
		Rows:    []RawRowData{{"term": "intercept", "coefficient": ""}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestReadCoefficientsFromCSV(t *testing.T) {
	path := writeFile(t, "coefs.csv", "term,coefficient,standard_error,p_value\nintercept,-1.5,0.2,0.001\nAge:_,0.01,,\n")
	terms, err := NewDataReader(path, DefaultConfig(), zerolog.Nop()).ReadCoefficients()
	require.NoError(t, err)

	require.Len(t, terms, 2)
	assert.Equal(t, 0.001, terms[0].PValue)
	assert.Equal(t, 0.01, terms[1].Coefficient)
}
