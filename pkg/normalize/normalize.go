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

// Package normalize canonicalizes scalar values per declared field type.
// Every function here is pure and deterministic: identical inputs always
// yield identical outputs, which the decision cache and the test suite
// depend on. Normalization never panics on ill-typed input; failures are
// reported as a tagged Result so the decision engine can surface them.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/teradata-labs/recheck/pkg/types"
)

// CaseMode selects letter-case canonicalization.
type CaseMode string

const (
	CaseLower    CaseMode = "lowercase"
	CaseUpper    CaseMode = "uppercase"
	CaseTitle    CaseMode = "titleCase"
	CasePreserve CaseMode = "preserve"
)

// WhitespacePolicy is applied first: leading trim, trailing trim, then
// internal collapse.
type WhitespacePolicy struct {
	TrimLeading      bool `json:"trimLeading" yaml:"trimLeading"`
	TrimTrailing     bool `json:"trimTrailing" yaml:"trimTrailing"`
	CollapseInternal bool `json:"collapseInternal" yaml:"collapseInternal"`
}

// SpecialCharPolicy governs accent and punctuation unification.
type SpecialCharPolicy struct {
	StripAccents bool `json:"stripAccents" yaml:"stripAccents"`
	UnifyQuotes  bool `json:"unifyQuotes" yaml:"unifyQuotes"`
	UnifyDashes  bool `json:"unifyDashes" yaml:"unifyDashes"`
}

// NumberPolicy governs numeric and currency parsing.
type NumberPolicy struct {
	DecimalSeparator     string `json:"decimalSeparator" yaml:"decimalSeparator"`
	ThousandSeparator    string `json:"thousandSeparator" yaml:"thousandSeparator"`
	StripCurrencySymbols bool   `json:"stripCurrencySymbols" yaml:"stripCurrencySymbols"`
}

// DatePolicy governs date parsing and output. Formats use Go reference
// time layouts.
type DatePolicy struct {
	TargetFormat         string   `json:"targetFormat" yaml:"targetFormat"`
	AcceptedInputFormats []string `json:"acceptedInputFormats" yaml:"acceptedInputFormats"`
}

// Policy is the full normalization policy for a run.
type Policy struct {
	Whitespace   WhitespacePolicy             `json:"whitespace" yaml:"whitespace"`
	Case         map[types.FieldType]CaseMode `json:"case" yaml:"case"`
	SpecialChars SpecialCharPolicy            `json:"specialChars" yaml:"specialChars"`
	Numbers      NumberPolicy                 `json:"numbers" yaml:"numbers"`
	Dates        DatePolicy                   `json:"dates" yaml:"dates"`
}

// DefaultPolicy returns the policy applied when a run configures nothing.
func DefaultPolicy() Policy {
	return Policy{
		Whitespace: WhitespacePolicy{
			TrimLeading:      true,
			TrimTrailing:     true,
			CollapseInternal: true,
		},
		Case: map[types.FieldType]CaseMode{
			types.FieldTypeEmail:   CaseLower,
			types.FieldTypeName:    CaseTitle,
			types.FieldTypeText:    CasePreserve,
			types.FieldTypeAddress: CaseTitle,
		},
		SpecialChars: SpecialCharPolicy{
			StripAccents: true,
			UnifyQuotes:  true,
			UnifyDashes:  true,
		},
		Numbers: NumberPolicy{
			DecimalSeparator:     ".",
			ThousandSeparator:    ",",
			StripCurrencySymbols: true,
		},
		Dates: DatePolicy{
			TargetFormat: "2006-01-02",
			AcceptedInputFormats: []string{
				"2006-01-02",
				"01/02/2006",
				"02.01.2006",
				"Jan 2, 2006",
				"January 2, 2006",
				"2006-01-02T15:04:05Z07:00",
			},
		},
	}
}

// Result is the tagged outcome of a normalization.
type Result struct {
	OK     bool
	Reason string
	// Text is the canonical string form used for comparison and caching.
	Text string
	// Number is set for number/currency fields when OK.
	Number float64
	// Bool is set for boolean fields when OK.
	Bool bool
}

// Failure builds a failed Result.
func Failure(reason string) Result {
	return Result{OK: false, Reason: reason}
}

var titleCaser = cases.Title(language.Und)

var currencyRunes = map[rune]bool{
	'$': true, '€': true, '£': true, '¥': true, '₹': true, '₩': true, '¢': true,
}

// Normalize canonicalizes value for the given field type under policy.
func Normalize(value any, fieldType types.FieldType, policy Policy) Result {
	s, ok := Stringify(value)
	if !ok {
		return Failure(fmt.Sprintf("unsupported value type %T", value))
	}

	s = applyWhitespace(s, policy.Whitespace)
	s = applySpecialChars(s, policy.SpecialChars)

	switch fieldType {
	case types.FieldTypeNumber, types.FieldTypeCurrency:
		return normalizeNumber(s, policy.Numbers)
	case types.FieldTypeDate:
		return normalizeDate(s, policy.Dates)
	case types.FieldTypeBoolean:
		return normalizeBool(s)
	case types.FieldTypePhone:
		return normalizePhone(s)
	}

	s = applyCase(s, caseFor(fieldType, policy))
	return Result{OK: true, Text: s}
}

// Stringify converts a scalar cell value to its string form. Returns
// false for non-scalar types.
func Stringify(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case time.Time:
		return v.Format(time.RFC3339), true
	default:
		return "", false
	}
}

func applyWhitespace(s string, p WhitespacePolicy) string {
	if p.TrimLeading {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
	}
	if p.TrimTrailing {
		s = strings.TrimRightFunc(s, unicode.IsSpace)
	}
	if p.CollapseInternal {
		s = strings.Join(strings.Fields(s), " ")
	}
	return s
}

func applySpecialChars(s string, p SpecialCharPolicy) string {
	if p.StripAccents {
		s = stripAccents(s)
	}
	if p.UnifyQuotes {
		replacer := strings.NewReplacer(
			"‘", "'", "’", "'", "‚", "'", "′", "'",
			"“", `"`, "”", `"`, "„", `"`, "″", `"`,
		)
		s = replacer.Replace(s)
	}
	if p.UnifyDashes {
		replacer := strings.NewReplacer(
			"–", "-", "—", "-", "−", "-", "‐", "-", "‑", "-",
		)
		s = replacer.Replace(s)
	}
	return s
}

// stripAccents decomposes to NFD, drops combining marks, and recomposes.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func caseFor(fieldType types.FieldType, policy Policy) CaseMode {
	if mode, ok := policy.Case[fieldType]; ok {
		return mode
	}
	switch fieldType {
	case types.FieldTypeEmail:
		return CaseLower
	case types.FieldTypeName:
		return CaseTitle
	default:
		return CasePreserve
	}
}

func applyCase(s string, mode CaseMode) string {
	switch mode {
	case CaseLower:
		return strings.ToLower(s)
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseTitle:
		return titleCaser.String(s)
	default:
		return s
	}
}

// canonicalNumber matches a number already in canonical form. Values in
// this form bypass separator handling so normalization stays idempotent
// under locale policies where "." is the thousand separator.
var canonicalNumber = func(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	digits, dot := 0, false
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func normalizeNumber(s string, p NumberPolicy) Result {
	if s == "" {
		return Failure("empty numeric value")
	}

	if p.StripCurrencySymbols {
		s = strings.Map(func(r rune) rune {
			if currencyRunes[r] {
				return -1
			}
			return r
		}, s)
		s = strings.TrimSpace(s)
	}

	if !canonicalNumber(s) {
		if p.ThousandSeparator != "" {
			s = strings.ReplaceAll(s, p.ThousandSeparator, "")
		}
		if p.DecimalSeparator != "" && p.DecimalSeparator != "." {
			s = strings.ReplaceAll(s, p.DecimalSeparator, ".")
		}
		s = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Failure(fmt.Sprintf("not a number: %q", s))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Failure("number is not finite")
	}

	return Result{OK: true, Text: strconv.FormatFloat(f, 'f', -1, 64), Number: f}
}

func normalizeDate(s string, p DatePolicy) Result {
	if s == "" {
		return Failure("empty date value")
	}

	target := p.TargetFormat
	if target == "" {
		target = "2006-01-02"
	}

	// The target format is always accepted so re-normalizing an already
	// canonical date is a fixed point.
	formats := append([]string{target}, p.AcceptedInputFormats...)
	for _, layout := range formats {
		if layout == "" {
			continue
		}
		if ts, err := time.Parse(layout, s); err == nil {
			return Result{OK: true, Text: ts.Format(target)}
		}
	}
	return Failure(fmt.Sprintf("date %q matches no accepted format", s))
}

func normalizeBool(s string) Result {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "checked", "on":
		return Result{OK: true, Text: "true", Bool: true}
	case "false", "no", "n", "0", "unchecked", "off", "":
		return Result{OK: true, Text: "false", Bool: false}
	default:
		return Failure(fmt.Sprintf("not a boolean: %q", s))
	}
}

// normalizePhone keeps digits and a single leading plus.
func normalizePhone(s string) Result {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return Failure("no digits in phone value")
	}
	return Result{OK: true, Text: out}
}
