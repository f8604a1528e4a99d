// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/teradata-labs/recheck/pkg/types"
)

// Renderer writes a report in one output format.
type Renderer interface {
	Render(w io.Writer, report *types.RunReport) error
}

// ForFormat returns the renderer for "json", "markdown", or "csv".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return JSONRenderer{}, nil
	case "markdown", "md":
		return MarkdownRenderer{}, nil
	case "csv":
		return CSVRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// JSONRenderer emits the full report as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, report *types.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// MarkdownRenderer emits a human-readable summary with a per-row table.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(w io.Writer, report *types.RunReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Validation Report %s\n\n", report.RunID)
	fmt.Fprintf(&b, "- Outcome: **%s**\n", report.Outcome)
	fmt.Fprintf(&b, "- Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Finished: %s\n\n", report.FinishedAt.Format("2006-01-02 15:04:05 MST"))

	s := report.Summary
	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Rows | Processed | Succeeded | Failed | Avg confidence | Error rate |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.3f | %.1f%% |\n\n",
		s.TotalRows, s.Processed, s.Succeeded, s.Failed, s.AvgConfidence, s.ErrorRate*100)

	if len(report.Statistics.FieldAccuracy) > 0 {
		fmt.Fprintf(&b, "## Field accuracy\n\n| Field | Accuracy |\n|---|---|\n")
		for _, field := range sortedKeys(report.Statistics.FieldAccuracy) {
			fmt.Fprintf(&b, "| %s | %.1f%% |\n", field, report.Statistics.FieldAccuracy[field]*100)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Rows\n\n| # | Row | Match | Confidence | Issues |\n|---|---|---|---|---|\n")
	for _, r := range report.Results {
		fmt.Fprintf(&b, "| %d | %s | %s | %.3f | %s |\n",
			r.RowIndex, r.RowID, mark(r.OverallMatch), r.OverallConfidence, rowIssues(r))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// CSVRenderer emits one line per field decision, for spreadsheet
// triage.
type CSVRenderer struct{}

func (CSVRenderer) Render(w io.Writer, report *types.RunReport) error {
	cw := csv.NewWriter(w)
	header := []string{"rowIndex", "rowId", "field", "csvValue", "webValue", "match", "confidence", "method", "issues"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range report.Results {
		for _, d := range r.FieldDecisions {
			record := []string{
				strconv.Itoa(r.RowIndex),
				r.RowID,
				d.CSVField,
				d.CSVValue,
				d.WebValue,
				strconv.FormatBool(d.Match),
				strconv.FormatFloat(d.Confidence, 'f', 3, 64),
				string(d.Method),
				strings.Join(d.Issues, ";"),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func mark(match bool) string {
	if match {
		return "✓"
	}
	return "✗"
}

func rowIssues(r types.RowResult) string {
	var issues []string
	for _, e := range r.Errors {
		issues = append(issues, string(e.Kind))
	}
	for _, d := range r.FieldDecisions {
		issues = append(issues, d.Issues...)
	}
	if len(issues) == 0 {
		return "-"
	}
	return strings.Join(issues, ", ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
