// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rows turns tabular inputs into Row streams. The first row of
// a source fixes the column schema; every later row is projected onto
// it. CSV and XLSX sources are provided.
package rows

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/teradata-labs/recheck/pkg/types"
)

// Iterator yields rows in input order. Next returns io.EOF when the
// source is exhausted.
type Iterator interface {
	Next() (*types.Row, error)
	Close() error
}

// Counter is implemented by iterators that know their total row count
// up front, letting progress reporting show a real denominator.
type Counter interface {
	Total() int
}

// Open picks a source by file extension: .csv, .xlsx.
func Open(path, keyColumn string) (Iterator, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return OpenCSV(path, keyColumn)
	case ".xlsx":
		return OpenXLSX(path, keyColumn)
	default:
		return nil, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
}

// ReadAll drains an iterator.
func ReadAll(it Iterator) ([]types.Row, error) {
	var out []types.Row
	for {
		row, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *row)
	}
}

// rowID derives a stable identifier: the key column's value when it is
// present and non-empty, else the 1-based position.
func rowID(index int, keyColumn string, values map[string]any) string {
	if keyColumn != "" {
		if v, ok := values[keyColumn]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			if v != nil {
				return fmt.Sprintf("%v", v)
			}
		}
	}
	return "row-" + strconv.Itoa(index+1)
}

// coerce turns a cell string into the narrowest scalar: bool, number,
// or the string itself. Empty cells become nil.
func coerce(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		// Leading zeros usually mean an identifier, not a number.
		if !strings.HasPrefix(trimmed, "0") || trimmed == "0" || strings.HasPrefix(trimmed, "0.") {
			return n
		}
	}
	return cell
}
