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

package adjudicator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Parse layers, in the order they are attempted. Exactly one layer
// produces the verdict; every attempt is logged at debug level.
const (
	LayerDirect    = "direct"
	LayerBrace     = "brace_match"
	LayerFence     = "code_fence"
	LayerLabel     = "label"
	LayerRepair    = "repair"
	LayerKeyScrape = "key_scrape"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	labelRe      = regexp.MustCompile(`(?is)(?:result|response)\s*:\s*(\{.*)`)
	trailingRe   = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe    = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	matchScrape  = regexp.MustCompile(`(?i)["']?match["']?\s*[:=]\s*["']?(true|false|yes|no)["']?`)
	confScrape   = regexp.MustCompile(`(?i)["']?confidence["']?\s*[:=]\s*["']?([0-9]*\.?[0-9]+)["']?`)
	reasonScrape = regexp.MustCompile(`(?i)["']?reasoning["']?\s*[:=]\s*["']?([^"'\n}]+)`)
)

// ParseVerdict extracts a Verdict from a raw backend response. It tries
// five parse layers in order, then falls back to key-pattern scraping.
// The returned layer names whichever attempt succeeded.
func ParseVerdict(raw string, logger *zap.Logger) (*Verdict, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty adjudicator response")
	}

	type attempt struct {
		layer     string
		candidate func() (string, bool)
	}
	attempts := []attempt{
		{LayerDirect, func() (string, bool) { return trimmed, true }},
		{LayerBrace, func() (string, bool) { return braceMatched(trimmed) }},
		{LayerFence, func() (string, bool) {
			m := fenceRe.FindStringSubmatch(trimmed)
			if m == nil {
				return "", false
			}
			return strings.TrimSpace(m[1]), true
		}},
		{LayerLabel, func() (string, bool) {
			m := labelRe.FindStringSubmatch(trimmed)
			if m == nil {
				return "", false
			}
			return braceMatched(m[1])
		}},
		{LayerRepair, func() (string, bool) {
			candidate, ok := braceMatched(trimmed)
			if !ok {
				candidate = trimmed
			}
			return repairJSON(candidate), true
		}},
	}

	for _, a := range attempts {
		candidate, ok := a.candidate()
		if !ok {
			logger.Debug("adjudicator parse layer skipped, no candidate",
				zap.String("layer", a.layer))
			continue
		}
		v, err := decodeVerdict(candidate)
		if err != nil {
			logger.Debug("adjudicator parse layer failed",
				zap.String("layer", a.layer),
				zap.Error(err))
			continue
		}
		logger.Debug("adjudicator response parsed", zap.String("layer", a.layer))
		v.Raw = raw
		return v, a.layer, nil
	}

	// Last resort: scrape key patterns from free text.
	v, err := scrapeVerdict(trimmed)
	if err != nil {
		logger.Debug("adjudicator key scrape failed", zap.Error(err))
		return nil, "", fmt.Errorf("adjudicator response unparseable: %w", err)
	}
	logger.Debug("adjudicator response parsed", zap.String("layer", LayerKeyScrape))
	v.Raw = raw
	return v, LayerKeyScrape, nil
}

// decodeVerdict unmarshals a candidate JSON object and validates it
// carries a usable match verdict.
func decodeVerdict(candidate string) (*Verdict, error) {
	var probe struct {
		Match         *bool    `json:"match"`
		Confidence    *float64 `json:"confidence"`
		Reasoning     string   `json:"reasoning"`
		NormalizedCSV string   `json:"normalizedCsv"`
		NormalizedWeb string   `json:"normalizedWeb"`
	}
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, err
	}
	if probe.Match == nil {
		return nil, fmt.Errorf("no match field in response")
	}

	v := &Verdict{
		Match:         *probe.Match,
		Reasoning:     probe.Reasoning,
		NormalizedCSV: probe.NormalizedCSV,
		NormalizedWeb: probe.NormalizedWeb,
	}
	if probe.Confidence != nil {
		v.Confidence = clamp01(*probe.Confidence)
	} else if v.Match {
		v.Confidence = 0.5
	}
	return v, nil
}

// braceMatched returns the first balanced {...} block in s.
func braceMatched(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repairJSON fixes the common model mistakes: trailing commas, bare
// keys, and single-quoted strings.
func repairJSON(s string) string {
	s = trailingRe.ReplaceAllString(s, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

// scrapeVerdict pulls match/confidence/reasoning out of free text.
func scrapeVerdict(s string) (*Verdict, error) {
	m := matchScrape.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("no match key found in text")
	}
	verdict := &Verdict{}
	switch strings.ToLower(m[1]) {
	case "true", "yes":
		verdict.Match = true
	default:
		verdict.Match = false
	}

	if c := confScrape.FindStringSubmatch(s); c != nil {
		if f, err := strconv.ParseFloat(c[1], 64); err == nil {
			verdict.Confidence = clamp01(f)
		}
	} else if verdict.Match {
		verdict.Confidence = 0.5
	}

	if r := reasonScrape.FindStringSubmatch(s); r != nil {
		verdict.Reasoning = strings.TrimSpace(r[1])
	}
	return verdict, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
