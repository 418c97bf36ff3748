package dataset

import (
	"math"
	"strconv"
)

// Value is a single cell: either a categorical level or a numeric scalar
type Value struct {
	Level   string  `json:"level,omitempty"`
	Number  float64 `json:"number,omitempty"`
	Numeric bool    `json:"numeric"`
}

// Cat builds a categorical value
func Cat(level string) Value {
	return Value{Level: level}
}

// Num builds a numeric value
func Num(number float64) Value {
	return Value{Number: number, Numeric: true}
}

// String renders the value the way it appears in reporting tables.
// Numbers use the shortest representation that round-trips.
func (v Value) String() string {
	if v.Numeric {
		return FormatNumber(v.Number)
	}
	return v.Level
}

// Equal compares kind and content
func (v Value) Equal(other Value) bool {
	if v.Numeric != other.Numeric {
		return false
	}
	if v.Numeric {
		return v.Number == other.Number
	}
	return v.Level == other.Level
}

// Float returns the numeric content, parsing categorical levels that hold numbers
func (v Value) Float() (float64, bool) {
	if v.Numeric {
		return v.Number, !math.IsNaN(v.Number)
	}
	f, err := strconv.ParseFloat(v.Level, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatNumber renders a float for keys and labels
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Row maps column names to values
type Row map[string]Value

// Clone returns a shallow copy safe to mutate
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Frame is an ordered, read-only table of rows
type Frame struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewFrame creates a frame with the given column order
func NewFrame(name string, columns []string, rows []Row) *Frame {
	return &Frame{Name: name, Columns: columns, Rows: rows}
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// HasColumn reports whether the column is declared
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Weights returns the per-row weight from column, or 1 for every row when column is empty.
// Rows without a numeric weight get 0.
func (f *Frame) Weights(column string) []float64 {
	w := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		if column == "" {
			w[i] = 1
			continue
		}
		if x, ok := row[column].Float(); ok {
			w[i] = x
		}
	}
	return w
}

// Floats extracts a numeric column; ok is false at the first non-numeric cell
func (f *Frame) Floats(column string) ([]float64, int, bool) {
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		v, present := row[column]
		if !present {
			return nil, i, false
		}
		x, ok := v.Float()
		if !ok {
			return nil, i, false
		}
		out[i] = x
	}
	return out, -1, true
}

// Partition names the train/test split a frame or report belongs to
type Partition string

const (
	PartitionTrain Partition = "train"
	PartitionTest  Partition = "test"
)

// ParsePartition accepts train/test and the boolean trainTest convention (true = train)
func ParsePartition(s string) (Partition, bool) {
	switch s {
	case "train", "true", "":
		return PartitionTrain, true
	case "test", "false":
		return PartitionTest, true
	}
	return "", false
}
