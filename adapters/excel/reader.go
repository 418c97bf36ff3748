package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	log      zerolog.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, cfg Config, logger zerolog.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	sheet := cfg.Sheet
	if sheet == "" {
		sheet = DefaultConfig().Sheet
	}
	return &DataReader{filePath: filePath, fileType: fileType, sheet: sheet, log: logger}
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*RawTable, error) {
	r.log.Debug().Str("file", r.filePath).Str("type", r.fileType).Msg("reading table")

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s file not found: %s", core.ErrDatasetNotFound, strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the configured sheet
func (r *DataReader) readExcelData() (*RawTable, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.sheet, err)
	}
	r.log.Debug().Dur("elapsed", time.Since(startTime)).Int("rows", len(rows)).Msg("sheet read")

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}
	return r.processRows(rows), nil
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*RawTable, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	readStart := time.Now()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.log.Debug().Dur("elapsed", time.Since(readStart)).Int("rows", len(rows)).Msg("CSV file read")

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}
	return r.processRows(rows), nil
}

// processRows converts raw string rows into a RawTable. Short rows leave their trailing
// columns absent.
func (r *DataReader) processRows(rows [][]string) *RawTable {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	dataRows := make([]RawRowData, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}

	return &RawTable{Headers: headers, Rows: dataRows}
}

// ReadFrame reads the file and types every column named by features: numeric features must
// parse as numbers, everything else is kept as a level.
func (r *DataReader) ReadFrame(name string, features []model.Feature) (*dataset.Frame, error) {
	raw, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return TypeFrame(name, raw, features)
}

// TypeFrame converts a raw table into a frame typed by the feature kinds
func TypeFrame(name string, raw *RawTable, features []model.Feature) (*dataset.Frame, error) {
	numeric := make(map[string]bool, len(features))
	for _, f := range features {
		if f.IsNumeric() {
			numeric[f.Name] = true
		}
	}
	header := make(map[string]bool, len(raw.Headers))
	for _, h := range raw.Headers {
		header[h] = true
	}
	for _, f := range features {
		if f.IsInput() && !header[f.Name] {
			return nil, core.NewMissingColumnError(f.Name, 0)
		}
	}

	rows := make([]dataset.Row, len(raw.Rows))
	for i, rawRow := range raw.Rows {
		row := make(dataset.Row, len(rawRow))
		for col, cell := range rawRow {
			if !numeric[col] {
				row[col] = dataset.Cat(cell)
				continue
			}
			x, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, core.NewInvalidValueError(col, i, fmt.Sprintf("%q is not a number", cell))
			}
			row[col] = dataset.Num(x)
		}
		rows[i] = row
	}
	return dataset.NewFrame(name, raw.Headers, rows), nil
}

// FileRows provides the train and test frames from files, read once on first use
type FileRows struct {
	TrainPath string
	TestPath  string
	Features  []model.Feature
	Config    Config
	Logger    zerolog.Logger

	trainOnce, testOnce sync.Once
	train, test         *dataset.Frame
	trainErr, testErr   error
}

func (p *FileRows) TrainRows(context.Context) (*dataset.Frame, error) {
	p.trainOnce.Do(func() {
		p.train, p.trainErr = p.load(dataset.PartitionTrain, p.TrainPath)
	})
	return p.train, p.trainErr
}

func (p *FileRows) TestRows(context.Context) (*dataset.Frame, error) {
	p.testOnce.Do(func() {
		p.test, p.testErr = p.load(dataset.PartitionTest, p.TestPath)
	})
	return p.test, p.testErr
}

func (p *FileRows) load(partition dataset.Partition, path string) (*dataset.Frame, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no %s file configured", core.ErrDatasetNotFound, partition)
	}
	return NewDataReader(path, p.Config, p.Logger).ReadFrame(string(partition), p.Features)
}
