// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rows

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVHeaderFixesSchema(t *testing.T) {
	path := writeCSV(t, "id,title,price\n1,Moby-Dick,19.99\n2,Omoo\n")
	it, err := OpenCSV(path, "id")
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck

	assert.Equal(t, []string{"id", "title", "price"}, it.Columns())

	rows, err := ReadAll(it)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, "Moby-Dick", rows[0].Values["title"])
	assert.Equal(t, 19.99, rows[0].Values["price"])

	// Short records are padded with nil.
	assert.Nil(t, rows[1].Values["price"])
}

func TestCSVFallbackRowID(t *testing.T) {
	path := writeCSV(t, "title\nMoby-Dick\n")
	it, err := OpenCSV(path, "")
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck

	rows, err := ReadAll(it)
	require.NoError(t, err)
	assert.Equal(t, "row-1", rows[0].ID)
}

func TestCSVEmptyFileRejected(t *testing.T) {
	path := writeCSV(t, "")
	_, err := OpenCSV(path, "")
	assert.Error(t, err)
}

func TestCoercion(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", 42.0},
		{"19.99", 19.99},
		{"0.5", 0.5},
		{"0", 0.0},
		{"007", "007"},
		{"", nil},
		{"Moby-Dick", "Moby-Dick"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coerce(tt.in), tt.in)
	}
}

func TestOpenPicksByExtension(t *testing.T) {
	path := writeCSV(t, "id\n1\n")
	it, err := Open(path, "id")
	require.NoError(t, err)
	require.NoError(t, it.Close())

	_, err = Open("input.parquet", "")
	assert.Error(t, err)
}

func TestXLSXIterator(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"id", "title"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"b-1", "Moby-Dick"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"b-2", "Omoo"}))

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	it, err := OpenXLSX(path, "id")
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck

	assert.Equal(t, 2, it.Total())

	rows, err := ReadAll(it)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b-1", rows[0].ID)
	assert.Equal(t, "Omoo", rows[1].Values["title"])
}
