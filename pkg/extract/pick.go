// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package extract

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/teradata-labs/recheck/pkg/ocr"
	"github.com/teradata-labs/recheck/pkg/types"
)

// Format gates for types where OCR output must look like the thing it
// claims to be before we accept it.
var fieldPatterns = map[types.FieldType]*regexp.Regexp{
	types.FieldTypeEmail:    regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	types.FieldTypePhone:    regexp.MustCompile(`\+?[0-9][0-9 ().-]{6,}[0-9]`),
	types.FieldTypeCurrency: regexp.MustCompile(`[$€£¥]?\s?-?[0-9][0-9.,]*`),
	types.FieldTypeNumber:   regexp.MustCompile(`-?[0-9][0-9.,]*`),
}

// highConfidence is the per-word bar for accepting a token outright.
const highConfidence = 0.8

// pickValue selects the best reading from an OCR result for the
// mapping's field type. Pattern-gated types must match their format
// regex; freeform types prefer the line nearest a recognized field
// label, then the first high-confidence word, then the whole text.
func pickValue(result *ocr.Result, mapping types.FieldMapping) (string, float64) {
	if result == nil {
		return "", 0
	}

	if pattern, ok := fieldPatterns[mapping.FieldType]; ok {
		return pickPattern(result, pattern)
	}

	if value, confidence, ok := pickLabeledLine(result, mapping.CSVField); ok {
		return value, confidence
	}

	for _, word := range result.Words {
		if word.Confidence >= highConfidence {
			return word.Text, word.Confidence
		}
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", 0
	}
	return text, result.Confidence
}

// pickPattern returns the first pattern match, preferring per-word hits
// so the match carries the word's own confidence.
func pickPattern(result *ocr.Result, pattern *regexp.Regexp) (string, float64) {
	for _, word := range result.Words {
		if m := pattern.FindString(word.Text); m != "" {
			return m, word.Confidence
		}
	}
	if m := pattern.FindString(result.Text); m != "" {
		return m, result.Confidence
	}
	return "", 0
}

// pickLabeledLine looks for a line that starts with something close to
// the field's label and returns the remainder after the separator.
// "Published Date: October 18, 1851" answers a "published_date" field.
func pickLabeledLine(result *ocr.Result, csvField string) (string, float64, bool) {
	label := humanize(csvField)
	lines := splitLines(result.Text)
	if label == "" || len(lines) == 0 {
		return "", 0, false
	}

	prefixes := make([]string, len(lines))
	for i, line := range lines {
		prefix := line
		if idx := strings.IndexAny(line, ":|"); idx > 0 {
			prefix = line[:idx]
		}
		prefixes[i] = prefix
	}

	matches := fuzzy.Find(label, prefixes)
	if len(matches) == 0 {
		return "", 0, false
	}

	line := lines[matches[0].Index]
	idx := strings.IndexAny(line, ":|")
	if idx < 0 || idx+1 >= len(line) {
		return "", 0, false
	}
	value := strings.TrimSpace(line[idx+1:])
	if value == "" {
		return "", 0, false
	}
	return value, result.Confidence, true
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// humanize turns snake_case or kebab-case into space-separated words.
func humanize(field string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(field)
	return strings.TrimSpace(replaced)
}
