// Package dataset owns the single analytic relation the assistant answers
// questions about: a materialized Parquet file plus its column list.
package dataset

import (
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Dataset is immutable once opened and may be shared by any number of
// assistants; each binds it into its own engine.
type Dataset struct {
	Path    string
	Columns []Column
	NumRows int64
}

// Open reads the Parquet footer at path and returns the dataset it describes.
func Open(path string) (*Dataset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read parquet footer %q: %w", path, err)
	}

	fields := pf.Schema().Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("dataset %q has no columns", path)
	}
	columns := make([]Column, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, Column{Name: field.Name(), Type: field.Type().String()})
	}
	return &Dataset{Path: path, Columns: columns, NumRows: pf.NumRows()}, nil
}

func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, column := range d.Columns {
		names = append(names, column.Name)
	}
	return names
}
