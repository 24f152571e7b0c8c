package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is tabular export content. Each row must carry one value per
// header, in header order.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// CSVExporter renders a Dataset as CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("csv row %d has %d values, want %d", i, len(row), len(data.Headers))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
