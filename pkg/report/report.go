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

// Package report assembles the final RunReport from frozen row results
// and renders it as JSON, Markdown, or CSV.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/teradata-labs/recheck/pkg/types"
)

// Build assembles a run report. totalRows is the number of input rows
// scanned, which exceeds len(results) only when the run was cut short.
func Build(runID string, startedAt, finishedAt time.Time, outcome types.RunOutcome, totalRows int, results []types.RowResult) *types.RunReport {
	sorted := append([]types.RowResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RowIndex < sorted[j].RowIndex })

	report := &types.RunReport{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Outcome:    outcome,
		Results:    sorted,
		Summary:    summarize(startedAt, finishedAt, totalRows, sorted),
		Statistics: statistics(sorted),
	}
	return report
}

// StripObservations removes page observations from every row result,
// for reports that should carry verdicts without captured evidence.
func StripObservations(report *types.RunReport) {
	for i := range report.Results {
		report.Results[i].Observation = nil
	}
}

func summarize(startedAt, finishedAt time.Time, totalRows int, results []types.RowResult) types.Summary {
	s := types.Summary{
		TotalRows: totalRows,
		Processed: len(results),
	}

	var confidenceSum float64
	for _, r := range results {
		if r.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
		confidenceSum += r.OverallConfidence
	}
	if s.Processed > 0 {
		s.AvgConfidence = confidenceSum / float64(s.Processed)
		s.ErrorRate = float64(s.Failed) / float64(s.Processed)
	}
	if elapsed := finishedAt.Sub(startedAt).Seconds(); elapsed > 0 {
		s.ThroughputRowsPerSec = float64(s.Processed) / elapsed
	}
	return s
}

func statistics(results []types.RowResult) types.Statistics {
	stats := types.Statistics{
		ConfidenceHistogram: make(map[string]int),
		MethodUsage:         make(map[types.Method]int),
		FieldAccuracy:       make(map[string]float64),
		ErrorsByKind:        make(map[types.ErrorKind]int),
	}

	fieldMatches := make(map[string]int)
	fieldTotals := make(map[string]int)

	for _, r := range results {
		stats.ConfidenceHistogram[bucket(r.OverallConfidence)]++
		for _, d := range r.FieldDecisions {
			stats.MethodUsage[d.Method]++
			fieldTotals[d.CSVField]++
			if d.Match {
				fieldMatches[d.CSVField]++
			}
		}
		for _, e := range r.Errors {
			stats.ErrorsByKind[e.Kind]++
		}
	}

	for field, total := range fieldTotals {
		stats.FieldAccuracy[field] = float64(fieldMatches[field]) / float64(total)
	}
	return stats
}

// bucket maps a confidence to its histogram bin, "0.0-0.1" through
// "0.9-1.0". Exactly 1.0 lands in the top bin.
func bucket(confidence float64) string {
	bin := int(confidence * 10)
	if bin > 9 {
		bin = 9
	}
	if bin < 0 {
		bin = 0
	}
	return fmt.Sprintf("0.%d-%s", bin, upperBound(bin))
}

func upperBound(bin int) string {
	if bin == 9 {
		return "1.0"
	}
	return fmt.Sprintf("0.%d", bin+1)
}
