package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is an ordered table. Rows are keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Width returns the number of columns.
func (d Dataset) Width() int {
	return len(d.Headers)
}

// CSVExporter renders datasets as RFC 4180 CSV.
type CSVExporter struct {
	bom bool
}

// CSVOption configures CSVExporter.
type CSVOption func(*CSVExporter)

// WithUTF8BOM prefixes the output with a byte order mark so spreadsheet tools detect UTF-8.
func WithUTF8BOM() CSVOption {
	return func(e *CSVExporter) {
		e.bom = true
	}
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render writes the header row followed by one record per row. Missing cells are blank.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if data.Width() == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.WriteString("\ufeff")
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, data.Width())
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
