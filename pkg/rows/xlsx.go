// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rows

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/teradata-labs/recheck/pkg/types"
)

// XLSXIterator streams rows from the first sheet of a workbook.
type XLSXIterator struct {
	file      *excelize.File
	rows      *excelize.Rows
	columns   []string
	keyColumn string
	index     int
	total     int
}

// OpenXLSX opens a workbook and reads the header of its first sheet.
func OpenXLSX(path, keyColumn string) (*XLSXIterator, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open workbook %s: %w", path, err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	sheet := sheets[0]

	// A full pass up front gives progress reporting a denominator;
	// workbooks are loaded into memory by the library anyway.
	all, err := f.GetRows(sheet)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("cannot scan sheet %s: %w", sheet, err)
	}
	total := len(all) - 1
	if total < 0 {
		total = 0
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("cannot read sheet %s: %w", sheet, err)
	}
	if !rows.Next() {
		rows.Close() //nolint:errcheck
		f.Close()    //nolint:errcheck
		return nil, fmt.Errorf("workbook %s is empty", path)
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close() //nolint:errcheck
		f.Close()    //nolint:errcheck
		return nil, fmt.Errorf("cannot read header of %s: %w", path, err)
	}

	return &XLSXIterator{file: f, rows: rows, columns: header, keyColumn: keyColumn, total: total}, nil
}

// Total reports the number of data rows in the sheet.
func (it *XLSXIterator) Total() int {
	return it.total
}

// Next returns the next row, or io.EOF.
func (it *XLSXIterator) Next() (*types.Row, error) {
	if !it.rows.Next() {
		if err := it.rows.Error(); err != nil {
			return nil, fmt.Errorf("sheet read failed at row %d: %w", it.index+2, err)
		}
		return nil, io.EOF
	}
	record, err := it.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("cannot read row %d: %w", it.index+2, err)
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

// Close releases the workbook.
func (it *XLSXIterator) Close() error {
	it.rows.Close() //nolint:errcheck
	return it.file.Close()
}

var (
	_ Iterator = (*XLSXIterator)(nil)
	_ Counter  = (*XLSXIterator)(nil)
)
