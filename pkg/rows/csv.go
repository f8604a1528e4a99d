// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/teradata-labs/recheck/pkg/types"
)

// CSVIterator streams rows from a CSV file. The header row fixes the
// schema; short records are padded with nil, long records truncated.
type CSVIterator struct {
	file      *os.File
	reader    *csv.Reader
	columns   []string
	keyColumn string
	index     int
}

// OpenCSV opens a CSV source and reads its header.
func OpenCSV(path, keyColumn string) (*CSVIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open input %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close() //nolint:errcheck
		if err == io.EOF {
			return nil, fmt.Errorf("input %s is empty", path)
		}
		return nil, fmt.Errorf("cannot read header of %s: %w", path, err)
	}

	return &CSVIterator{file: f, reader: r, columns: header, keyColumn: keyColumn}, nil
}

// Columns returns the schema fixed by the header.
func (it *CSVIterator) Columns() []string {
	return append([]string(nil), it.columns...)
}

// Next returns the next row, or io.EOF.
func (it *CSVIterator) Next() (*types.Row, error) {
	record, err := it.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("malformed record at row %d: %w", it.index+2, err)
	}

	values := make(map[string]any, len(it.columns))
	for i, column := range it.columns {
		if i < len(record) {
			values[column] = coerce(record[i])
		} else {
			values[column] = nil
		}
	}

	row := &types.Row{
		ID:     rowID(it.index, it.keyColumn, values),
		Index:  it.index,
		Values: values,
	}
	it.index++
	return row, nil
}

// Close releases the underlying file.
func (it *CSVIterator) Close() error {
	return it.file.Close()
}

var _ Iterator = (*CSVIterator)(nil)
