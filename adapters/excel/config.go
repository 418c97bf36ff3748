package excel

// Config holds settings shared by the readers and the exporter
type Config struct {
	Sheet     string `json:"sheet"`
	Precision int32  `json:"precision"`
}

// DefaultConfig reads and writes Sheet1 and rounds exported figures to 6 decimal places
func DefaultConfig() Config {
	return Config{
		Sheet:     "Sheet1",
		Precision: 6,
	}
}
