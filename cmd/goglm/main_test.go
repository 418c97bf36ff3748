package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"goglm/domain/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func generate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := execute(t, "generate", "--out", dir, "--policies", "300", "--seed", "5", "--log-level", "error")
	require.NoError(t, err)
	for _, name := range []string{"spec.yaml", "coefficients.csv", "train.csv", "test.csv"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	return dir
}

func modelArgs(dir string, args ...string) []string {
	return append(args,
		"--spec", filepath.Join(dir, "spec.yaml"),
		"--coefficients", filepath.Join(dir, "coefficients.csv"),
		"--train", filepath.Join(dir, "train.csv"),
		"--test", filepath.Join(dir, "test.csv"),
		"--log-level", "error",
	)
}

func TestGenerateThenReport(t *testing.T) {
	dir := generate(t)

	out, err := execute(t, modelArgs(dir, "relativities")...)
	require.NoError(t, err)
	var rels []report.RelativityRow
	require.NoError(t, json.Unmarshal([]byte(out), &rels))
	require.NotEmpty(t, rels)
	assert.Equal(t, report.BaseLabel, rels[0].Variable)

	out, err = execute(t, modelArgs(dir, "lift", "--bins", "5", "--dataset", "test")...)
	require.NoError(t, err)
	var liftRows []report.LiftRow
	require.NoError(t, json.Unmarshal([]byte(out), &liftRows))
	assert.LessOrEqual(t, len(liftRows), 5)

	out, err = execute(t, modelArgs(dir, "univariate", "Region", "--rescale", "ratio")...)
	require.NoError(t, err)
	var uni []report.UnivariateRow
	require.NoError(t, json.Unmarshal([]byte(out), &uni))
	assert.Len(t, uni, 4)
}

func TestExport(t *testing.T) {
	dir := generate(t)

	workbook := filepath.Join(dir, "report.xlsx")
	_, err := execute(t, modelArgs(dir, "export", "--out", workbook, "--univariate-bins", "5")...)
	require.NoError(t, err)
	f, err := excelize.OpenFile(workbook)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Relativities", "Interactions", "VariableLevelStats", "LiftChart", "Univariate"}, f.GetSheetList())

	csvDir := filepath.Join(dir, "csv")
	_, err = execute(t, modelArgs(dir, "export", "--csv", csvDir)...)
	require.NoError(t, err)
	entries, err := os.ReadDir(csvDir)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestFlagErrors(t *testing.T) {
	dir := generate(t)

	_, err := execute(t, modelArgs(dir, "lift", "--dataset", "holdout")...)
	assert.Error(t, err)

	_, err = execute(t, modelArgs(dir, "export")...)
	assert.Error(t, err, "an export target is required")

	_, err = execute(t, modelArgs(dir, "univariate", "Region", "--binning", "kmeans")...)
	assert.Error(t, err)

	_, err = execute(t, "relativities", "--log-level", "error")
	assert.Error(t, err, "no model files configured")
}
