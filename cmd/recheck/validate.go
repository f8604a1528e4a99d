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
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/internal/log"
	"github.com/teradata-labs/recheck/pkg/adjudicator"
	"github.com/teradata-labs/recheck/pkg/adjudicator/anthropic"
	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/config"
	"github.com/teradata-labs/recheck/pkg/decision"
	"github.com/teradata-labs/recheck/pkg/evidence"
	"github.com/teradata-labs/recheck/pkg/extract"
	"github.com/teradata-labs/recheck/pkg/navigate"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/ocr"
	"github.com/teradata-labs/recheck/pkg/pipeline"
	"github.com/teradata-labs/recheck/pkg/report"
	"github.com/teradata-labs/recheck/pkg/resource"
	"github.com/teradata-labs/recheck/pkg/rows"
	"github.com/teradata-labs/recheck/pkg/runner"
	"github.com/teradata-labs/recheck/pkg/types"
)

var (
	configPath   string
	inputPath    string
	outputDir    string
	reportFormat string
	keyColumn    string
	workers      int
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a validation pass over an input file",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Validation config file (required)")
	validateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input CSV or XLSX file (required)")
	validateCmd.Flags().StringVarP(&outputDir, "output", "o", "out", "Output directory for report and evidence")
	validateCmd.Flags().StringVarP(&reportFormat, "format", "f", "json", "Report format (json, markdown, csv)")
	validateCmd.Flags().StringVar(&keyColumn, "key-column", "", "Column used as the stable row identifier")
	validateCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override performance.parallelWorkers")
	validateCmd.MarkFlagRequired("config") //nolint:errcheck
	validateCmd.MarkFlagRequired("input")  //nolint:errcheck
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger, err := log.New(viper.GetString("log-level"), viper.GetString("log-format"))
	if err != nil {
		return types.WrapError(types.ErrConfigInvalid, false, err, "invalid log settings")
	}
	defer logger.Sync() //nolint:errcheck
	log.SetLogger(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Performance.ParallelWorkers = workers
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return types.WrapError(types.ErrOutputUnwritable, false, err, "cannot create output directory %s", outputDir)
	}

	renderer, err := report.ForFormat(reportFormat)
	if err != nil {
		return types.WrapError(types.ErrConfigInvalid, false, err, "invalid report format")
	}

	input, err := rows.Open(inputPath, keyColumn)
	if err != nil {
		return types.WrapError(types.ErrConfigInvalid, false, err, "cannot open input")
	}
	defer input.Close() //nolint:errcheck

	registry := resource.NewRegistry(resource.Config{Logger: logger})
	ctx, stop := resource.NotifyContext(cmd.Context())
	defer stop()
	defer registry.Shutdown(context.Background())

	factory, err := browser.NewPlaywrightFactory(browser.PlaywrightConfig{
		BrowserName: cfg.Browser.Name,
		Headless:    cfg.Browser.Headless,
		Viewport:    types.Viewport{Width: cfg.Browser.ViewportWidth, Height: cfg.Browser.ViewportHeight},
		Logger:      logger,
	})
	if err != nil {
		return types.WrapError(types.ErrTransport, false, err, "cannot launch browser")
	}
	registry.Register("browser-factory", factory) //nolint:errcheck

	collector, err := evidence.NewCollector(evidence.Config{
		Root:                 filepath.Join(outputDir, "evidence"),
		RetentionDays:        cfg.Evidence.RetentionDays,
		CompressionAfterDays: compressionAfter(cfg),
		Logger:               logger,
	})
	if err != nil {
		return err
	}
	registry.Register("evidence-retention", resource.NewFunc(func(ctx context.Context) error { //nolint:errcheck
		_, err := collector.Sweep(ctx, time.Now())
		return err
	}))

	tracer := observability.NewZapTracer(logger)
	run := runner.New(runner.Config{
		Pipeline:  buildPipeline(cfg, collector, tracer, logger),
		Browsers:  factory,
		Registry:  registry,
		Workers:   cfg.Performance.ParallelWorkers,
		BatchSize: cfg.Performance.BatchSize,
		Retry: runner.RetryPolicy{
			MaxAttempts:    cfg.Rules.ErrorHandling.MaxRetryAttempts,
			BaseDelay:      time.Duration(cfg.Rules.ErrorHandling.RetryDelayMs) * time.Millisecond,
			Exponential:    cfg.Rules.ErrorHandling.ExponentialBackoff,
			RetryableKinds: retryableKinds(cfg),
		},
		EscalationThreshold: cfg.Rules.ErrorHandling.EscalationThreshold,
		Progress: func(p types.Progress) {
			logger.Info("progress",
				zap.Int("processed", p.Processed),
				zap.Int("total", p.Total),
				zap.Duration("eta", p.ETA),
			)
		},
		Tracer: tracer,
		Logger: logger,
	})

	rep, runErr := run.Run(ctx, input)
	if !cfg.Evidence.EvidenceInReports() {
		report.StripObservations(rep)
	}

	reportPath := filepath.Join(outputDir, "report."+extFor(reportFormat))
	out, err := os.Create(reportPath)
	if err != nil {
		return types.WrapError(types.ErrOutputUnwritable, false, err, "cannot write report")
	}
	defer out.Close() //nolint:errcheck
	if err := renderer.Render(out, rep); err != nil {
		return types.WrapError(types.ErrOutputUnwritable, false, err, "report rendering failed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d rows processed, %d matched, %d failed — report: %s\n",
		rep.Summary.Processed, rep.Summary.TotalRows, matched(rep), rep.Summary.Failed, reportPath)

	return runErr
}

func buildPipeline(cfg *config.ValidationConfig, collector *evidence.Collector, tracer observability.Tracer, logger *zap.Logger) *pipeline.Pipeline {
	var adj adjudicator.Adjudicator
	if cfg.Endpoints.AnthropicModel != "" {
		client, err := anthropic.NewClient(anthropic.Config{Model: cfg.Endpoints.AnthropicModel, Logger: logger})
		if err != nil {
			logger.Warn("anthropic adjudicator unavailable, falling back to HTTP discovery", zap.Error(err))
		} else {
			adj = client
		}
	}
	if adj == nil {
		adj = adjudicator.NewClient(adjudicator.Config{
			Endpoints:   cfg.Endpoints.LLM,
			MaxInFlight: int64(cfg.Performance.ParallelWorkers),
			Logger:      logger,
		})
	}

	fuzzyCfg := cfg.Rules.Fuzzy.Config
	if !cfg.Rules.Fuzzy.Enabled {
		// Threshold 1 leaves only exact (post-normalization) equality.
		fuzzyCfg.Threshold = 1
	}

	var cache *decision.Cache
	if cfg.Performance.Caching.ValidationDecisions {
		cache = decision.NewCache(time.Duration(cfg.Performance.Caching.TTLSeconds) * time.Second)
	}

	cacheTTL := time.Duration(cfg.Performance.Caching.TTLSeconds) * time.Second

	var engine ocr.Engine
	if cfg.Endpoints.OCR != "" {
		engine = ocr.NewClient(ocr.ClientConfig{
			BaseURL: cfg.Endpoints.OCR,
			Timeout: time.Duration(cfg.Performance.Timeouts.OCRProcessing) * time.Millisecond,
			Logger:  logger,
		})
		if cfg.Performance.Caching.OCRResults {
			engine = ocr.NewCached(engine, cacheTTL)
		}
	}

	var snapshotTTL time.Duration
	if cfg.Performance.Caching.DOMSnapshots {
		snapshotTTL = cacheTTL
	}

	return pipeline.New(pipeline.Config{
		Navigator: navigate.New(navigate.Config{
			URLTemplate:     cfg.URLTemplate,
			Timeout:         time.Duration(cfg.Performance.Timeouts.Navigation) * time.Millisecond,
			SkipScreenshot:  !cfg.Evidence.CaptureScreenshots(),
			SkipDOMSnapshot: !cfg.Evidence.CaptureDOM(),
			SnapshotTTL:     snapshotTTL,
			Tracer:          tracer,
			Logger:          logger,
		}),
		Extractor: extract.New(extract.Config{
			Normalization:        cfg.Rules.Normalization,
			OCR:                  engine,
			OCRFallbackThreshold: cfg.Rules.Confidence.OCRThreshold,
			SkipScreenshots:      !cfg.Evidence.CaptureScreenshots(),
			Tracer:               tracer,
			Logger:               logger,
		}),
		Engine: decision.NewEngine(decision.Config{
			Normalization:  cfg.Rules.Normalization,
			Fuzzy:          fuzzyCfg,
			FieldThreshold: cfg.Rules.Confidence.MinimumField,
			RulesetVersion: cfg.Rules.RulesetVersion,
			Adjudicator:    adj,
			Cache:          cache,
			Tracer:         tracer,
			Logger:         logger,
		}),
		Evidence:       collector,
		Mappings:       cfg.FieldMappings,
		MinimumOverall: cfg.Rules.Confidence.MinimumOverall,
		Aggregation:    pipeline.Aggregation(cfg.Rules.Aggregation),
		Timeouts: pipeline.Timeouts{
			Navigation:         time.Duration(cfg.Performance.Timeouts.Navigation) * time.Millisecond,
			DOMExtraction:      time.Duration(cfg.Performance.Timeouts.DOMExtraction) * time.Millisecond,
			OCRProcessing:      time.Duration(cfg.Performance.Timeouts.OCRProcessing) * time.Millisecond,
			ValidationDecision: time.Duration(cfg.Performance.Timeouts.ValidationDecision) * time.Millisecond,
			EvidenceCollection: time.Duration(cfg.Performance.Timeouts.EvidenceCollection) * time.Millisecond,
		},
		Tracer: tracer,
		Logger: logger,
	})
}

func retryableKinds(cfg *config.ValidationConfig) []types.ErrorKind {
	kinds := make([]types.ErrorKind, 0, len(cfg.Rules.ErrorHandling.RecoverableErrors))
	for _, k := range cfg.Rules.ErrorHandling.RecoverableErrors {
		kinds = append(kinds, types.ErrorKind(k))
	}
	return kinds
}

func compressionAfter(cfg *config.ValidationConfig) int {
	if !cfg.Evidence.CompressionEnabled {
		return -1
	}
	return cfg.Evidence.CompressionAfterDays
}

func extFor(format string) string {
	switch format {
	case "markdown", "md":
		return "md"
	case "csv":
		return "csv"
	default:
		return "json"
	}
}

func matched(rep *types.RunReport) int {
	n := 0
	for _, r := range rep.Results {
		if r.OverallMatch {
			n++
		}
	}
	return n
}
