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

// Package config loads and validates the run configuration: URL
// template, field mappings, decision rules, performance knobs, and
// evidence settings. Files are YAML or JSON; structure is checked
// against an embedded JSON schema before semantic validation.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/recheck/pkg/fuzzy"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/types"
)

//go:embed schema.json
var schemaJSON string

// ConfidenceRules fixes the decision thresholds.
type ConfidenceRules struct {
	MinimumOverall      float64 `json:"minimumOverall" yaml:"minimumOverall"`
	MinimumField        float64 `json:"minimumField" yaml:"minimumField"`
	OCRThreshold        float64 `json:"ocrThreshold" yaml:"ocrThreshold"`
	FuzzyMatchThreshold float64 `json:"fuzzyMatchThreshold" yaml:"fuzzyMatchThreshold"`
}

// FuzzyRules wraps the comparator config with an enable switch.
type FuzzyRules struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	fuzzy.Config `yaml:",inline"`
}

// ErrorHandling governs retries and escalation.
type ErrorHandling struct {
	MaxRetryAttempts    int      `json:"maxRetryAttempts" yaml:"maxRetryAttempts"`
	RetryDelayMs        int      `json:"retryDelayMs" yaml:"retryDelayMs"`
	ExponentialBackoff  bool     `json:"exponentialBackoff" yaml:"exponentialBackoff"`
	CriticalErrors      []string `json:"criticalErrors" yaml:"criticalErrors"`
	RecoverableErrors   []string `json:"recoverableErrors" yaml:"recoverableErrors"`
	EscalationThreshold float64  `json:"escalationThreshold" yaml:"escalationThreshold"`
}

// Rules groups the decision-making configuration.
type Rules struct {
	Confidence    ConfidenceRules  `json:"confidence" yaml:"confidence"`
	Fuzzy         FuzzyRules       `json:"fuzzy" yaml:"fuzzy"`
	Normalization normalize.Policy `json:"normalization" yaml:"normalization"`
	ErrorHandling ErrorHandling    `json:"errorHandling" yaml:"errorHandling"`
	// Aggregation selects how field confidences roll up: "minimum"
	// (default) or "weighted_average".
	Aggregation string `json:"aggregation" yaml:"aggregation"`
	// RulesetVersion feeds the decision cache key.
	RulesetVersion string `json:"rulesetVersion" yaml:"rulesetVersion"`
}

// Caching toggles the run's caches.
type Caching struct {
	DOMSnapshots        bool `json:"domSnapshots" yaml:"domSnapshots"`
	OCRResults          bool `json:"ocrResults" yaml:"ocrResults"`
	ValidationDecisions bool `json:"validationDecisions" yaml:"validationDecisions"`
	TTLSeconds          int  `json:"ttl" yaml:"ttl"`
}

// TimeoutsMs holds the per-stage budgets in milliseconds.
type TimeoutsMs struct {
	Navigation         int `json:"navigation" yaml:"navigation"`
	DOMExtraction      int `json:"domExtraction" yaml:"domExtraction"`
	OCRProcessing      int `json:"ocrProcessing" yaml:"ocrProcessing"`
	ValidationDecision int `json:"validationDecision" yaml:"validationDecision"`
	EvidenceCollection int `json:"evidenceCollection" yaml:"evidenceCollection"`
}

// Performance groups throughput knobs.
type Performance struct {
	BatchSize       int        `json:"batchSize" yaml:"batchSize"`
	ParallelWorkers int        `json:"parallelWorkers" yaml:"parallelWorkers"`
	Caching         Caching    `json:"caching" yaml:"caching"`
	Timeouts        TimeoutsMs `json:"timeouts" yaml:"timeouts"`
}

// Evidence groups the audit-trail settings. The capture toggles are
// pointers so an absent key defaults to on while an explicit false
// still disables.
type Evidence struct {
	RetentionDays        int   `json:"retentionDays" yaml:"retentionDays"`
	ScreenshotEnabled    *bool `json:"screenshotEnabled" yaml:"screenshotEnabled"`
	DOMSnapshotEnabled   *bool `json:"domSnapshotEnabled" yaml:"domSnapshotEnabled"`
	CompressionEnabled   bool  `json:"compressionEnabled" yaml:"compressionEnabled"`
	CompressionAfterDays int   `json:"compressionAfter" yaml:"compressionAfter"`
	IncludeInReports     *bool `json:"includeInReports" yaml:"includeInReports"`
}

// CaptureScreenshots reports the screenshot toggle; on unless disabled.
func (e Evidence) CaptureScreenshots() bool {
	return e.ScreenshotEnabled == nil || *e.ScreenshotEnabled
}

// CaptureDOM reports the DOM snapshot toggle; on unless disabled.
func (e Evidence) CaptureDOM() bool {
	return e.DOMSnapshotEnabled == nil || *e.DOMSnapshotEnabled
}

// EvidenceInReports reports whether page observations stay in the run
// report; on unless disabled.
func (e Evidence) EvidenceInReports() bool {
	return e.IncludeInReports == nil || *e.IncludeInReports
}

// Browser selects and sizes the page driver.
type Browser struct {
	Name           string `json:"name" yaml:"name"`
	Headless       bool   `json:"headless" yaml:"headless"`
	ViewportWidth  int    `json:"viewportWidth" yaml:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight" yaml:"viewportHeight"`
}

// Endpoints points at the external engines.
type Endpoints struct {
	// LLM lists adjudicator candidates probed in order.
	LLM []string `json:"llm" yaml:"llm"`
	// OCR is the recognition service base URL; empty disables OCR.
	OCR string `json:"ocr" yaml:"ocr"`
	// AnthropicModel switches the adjudicator to the Anthropic API when
	// set; the key comes from ANTHROPIC_API_KEY.
	AnthropicModel string `json:"anthropicModel" yaml:"anthropicModel"`
}

// ValidationConfig is the full run configuration.
type ValidationConfig struct {
	URLTemplate   string               `json:"urlTemplate" yaml:"urlTemplate"`
	FieldMappings []types.FieldMapping `json:"fieldMappings" yaml:"fieldMappings"`
	Rules         Rules                `json:"rules" yaml:"rules"`
	Performance   Performance          `json:"performance" yaml:"performance"`
	Evidence      Evidence             `json:"evidence" yaml:"evidence"`
	Browser       Browser              `json:"browser" yaml:"browser"`
	Endpoints     Endpoints            `json:"endpoints" yaml:"endpoints"`
}

// Load reads, schema-checks, defaults, and validates a config file.
func Load(path string) (*ValidationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrConfigInvalid, false, err, "cannot read config %s", path)
	}
	return Parse(data)
}

// Parse does the same for in-memory YAML or JSON.
func Parse(data []byte) (*ValidationConfig, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, types.WrapError(types.ErrConfigInvalid, false, err, "config is not valid YAML/JSON")
	}

	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	var cfg ValidationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, types.WrapError(types.ErrConfigInvalid, false, err, "config does not map onto the expected structure")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkSchema(raw any) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return types.WrapError(types.ErrConfigInvalid, false, err, "config is not representable as JSON")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return types.WrapError(types.ErrConfigInvalid, false, err, "schema validation failed")
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return types.NewError(types.ErrConfigInvalid, false, "config rejected by schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ApplyDefaults fills every unset knob with its stock value.
func (c *ValidationConfig) ApplyDefaults() {
	for i := range c.FieldMappings {
		if c.FieldMappings[i].Strategy == "" {
			c.FieldMappings[i].Strategy = types.StrategyDOM
		}
	}

	if c.Rules.Confidence.MinimumOverall == 0 {
		c.Rules.Confidence.MinimumOverall = 0.8
	}
	if c.Rules.Confidence.MinimumField == 0 {
		c.Rules.Confidence.MinimumField = 0.7
	}
	if c.Rules.Confidence.OCRThreshold == 0 {
		c.Rules.Confidence.OCRThreshold = 0.5
	}
	if c.Rules.Confidence.FuzzyMatchThreshold == 0 {
		c.Rules.Confidence.FuzzyMatchThreshold = 0.8
	}

	if len(c.Rules.Fuzzy.Algorithms) == 0 {
		c.Rules.Fuzzy = FuzzyRules{Enabled: true, Config: fuzzy.DefaultConfig()}
	}
	if c.Rules.Fuzzy.Threshold == 0 {
		c.Rules.Fuzzy.Threshold = c.Rules.Confidence.FuzzyMatchThreshold
	}

	if c.Rules.Normalization.Case == nil {
		c.Rules.Normalization = normalize.DefaultPolicy()
	}

	if c.Rules.ErrorHandling.MaxRetryAttempts == 0 {
		c.Rules.ErrorHandling.MaxRetryAttempts = 3
	}
	if c.Rules.ErrorHandling.RetryDelayMs == 0 {
		c.Rules.ErrorHandling.RetryDelayMs = 2000
	}
	if c.Rules.ErrorHandling.EscalationThreshold == 0 {
		c.Rules.ErrorHandling.EscalationThreshold = 0.2
	}
	if len(c.Rules.ErrorHandling.RecoverableErrors) == 0 {
		c.Rules.ErrorHandling.RecoverableErrors = []string{
			string(types.ErrElementNotFound),
			string(types.ErrOCRLowConfidence),
			string(types.ErrNavigationTimeout),
			string(types.ErrTransport),
		}
	}
	if c.Rules.Aggregation == "" {
		c.Rules.Aggregation = "minimum"
	}
	if c.Rules.RulesetVersion == "" {
		c.Rules.RulesetVersion = "v1"
	}

	if c.Performance.BatchSize == 0 {
		c.Performance.BatchSize = 50
	}
	if c.Performance.ParallelWorkers == 0 {
		c.Performance.ParallelWorkers = 3
	}
	if c.Performance.Caching.TTLSeconds == 0 {
		c.Performance.Caching.TTLSeconds = 3600
	}
	if c.Performance.Timeouts.Navigation == 0 {
		c.Performance.Timeouts.Navigation = 30000
	}
	if c.Performance.Timeouts.DOMExtraction == 0 {
		c.Performance.Timeouts.DOMExtraction = 15000
	}
	if c.Performance.Timeouts.OCRProcessing == 0 {
		c.Performance.Timeouts.OCRProcessing = 45000
	}
	if c.Performance.Timeouts.ValidationDecision == 0 {
		c.Performance.Timeouts.ValidationDecision = 30000
	}
	if c.Performance.Timeouts.EvidenceCollection == 0 {
		c.Performance.Timeouts.EvidenceCollection = 10000
	}

	if c.Evidence.RetentionDays == 0 {
		c.Evidence.RetentionDays = 30
	}
	if c.Evidence.CompressionAfterDays == 0 {
		c.Evidence.CompressionAfterDays = 7
	}

	if c.Browser.Name == "" {
		c.Browser.Name = "chromium"
		c.Browser.Headless = true
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 900
	}
}

// Validate checks the constraints the schema cannot express.
func (c *ValidationConfig) Validate() error {
	if c.URLTemplate == "" {
		return types.NewError(types.ErrConfigInvalid, false, "urlTemplate is required")
	}
	if len(c.FieldMappings) == 0 {
		return types.NewError(types.ErrConfigInvalid, false, "at least one field mapping is required")
	}

	seen := make(map[string]bool, len(c.FieldMappings))
	for i, m := range c.FieldMappings {
		if m.CSVField == "" {
			return types.NewError(types.ErrConfigInvalid, false, "fieldMappings[%d]: csvField is required", i)
		}
		if seen[m.CSVField] {
			return types.NewError(types.ErrConfigInvalid, false, "fieldMappings[%d]: duplicate csvField %q", i, m.CSVField)
		}
		seen[m.CSVField] = true
		if m.WebSelector == "" {
			return types.NewError(types.ErrConfigInvalid, false, "fieldMappings[%d] (%s): webSelector is required", i, m.CSVField)
		}
		if !validFieldType(m.FieldType) {
			return types.NewError(types.ErrConfigInvalid, false, "fieldMappings[%d] (%s): unknown fieldType %q", i, m.CSVField, m.FieldType)
		}
		if !validStrategy(m.Strategy) {
			return types.NewError(types.ErrConfigInvalid, false, "fieldMappings[%d] (%s): unknown strategy %q", i, m.CSVField, m.Strategy)
		}
	}

	if t := c.Rules.Confidence.MinimumOverall; t < 0 || t > 1 {
		return types.NewError(types.ErrConfigInvalid, false, "rules.confidence.minimumOverall must be in [0,1], got %v", t)
	}
	if t := c.Rules.ErrorHandling.EscalationThreshold; t <= 0 || t > 1 {
		return types.NewError(types.ErrConfigInvalid, false, "rules.errorHandling.escalationThreshold must be in (0,1], got %v", t)
	}
	if c.Rules.Aggregation != "minimum" && c.Rules.Aggregation != "weighted_average" {
		return types.NewError(types.ErrConfigInvalid, false, "rules.aggregation must be minimum or weighted_average, got %q", c.Rules.Aggregation)
	}
	for _, alg := range c.Rules.Fuzzy.Algorithms {
		if alg != fuzzy.Levenshtein && alg != fuzzy.JaroWinkler {
			return types.NewError(types.ErrConfigInvalid, false, "unknown fuzzy algorithm %q", alg)
		}
	}
	return nil
}

func validFieldType(t types.FieldType) bool {
	switch t {
	case types.FieldTypeText, types.FieldTypeEmail, types.FieldTypePhone,
		types.FieldTypeCurrency, types.FieldTypeDate, types.FieldTypeName,
		types.FieldTypeAddress, types.FieldTypeNumber, types.FieldTypeBoolean:
		return true
	}
	return false
}

func validStrategy(s types.Strategy) bool {
	switch s {
	case types.StrategyDOM, types.StrategyOCR, types.StrategyHybrid, types.StrategyFuzzy:
		return true
	}
	return false
}

// Describe returns a one-line summary used by check-config.
func (c *ValidationConfig) Describe() string {
	return fmt.Sprintf("%d field mappings, %d workers, template %s",
		len(c.FieldMappings), c.Performance.ParallelWorkers, c.URLTemplate)
}
