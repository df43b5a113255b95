package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/config"
	"github.com/OmkarTuptewar/template-generator/internal/core"
	"github.com/OmkarTuptewar/template-generator/internal/core/extraction"
	"github.com/OmkarTuptewar/template-generator/internal/core/registry"
	"github.com/OmkarTuptewar/template-generator/internal/ingest"
	"github.com/OmkarTuptewar/template-generator/internal/llm"
	"github.com/OmkarTuptewar/template-generator/internal/metrics"
	"github.com/OmkarTuptewar/template-generator/internal/server"
	"github.com/OmkarTuptewar/template-generator/internal/store"
)

type runFlags struct {
	input        string
	output       string
	registry     string
	templateOnly string
	systemPrompt string
	batchSize    int
	concurrency  int
	maxTokens    int
	statusAddr   string
	reset        bool
	fast         bool
	ultraFast    bool
}

func (a *app) addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&a.run.input, "input", "", "input file: JSON array of strings or one JSON string per line")
	f.StringVar(&a.run.output, "output", "", "output JSONL file")
	f.StringVar(&a.run.registry, "registry", "", "entity registry overlay file")
	f.StringVar(&a.run.templateOnly, "template-only", "", "template-only side file (empty string disables it)")
	f.StringVar(&a.run.systemPrompt, "system-prompt", "", "system prompt file (built-in prompt when unset)")
	f.IntVar(&a.run.batchSize, "batch-size", 0, "queries per LLM call")
	f.IntVar(&a.run.concurrency, "concurrency", 0, "parallel LLM calls")
	f.IntVar(&a.run.maxTokens, "max-tokens", 0, "max tokens per LLM response")
	f.StringVar(&a.run.statusAddr, "status-addr", "", "serve /healthz, /stats, /registry and /metrics on this address")
	f.BoolVar(&a.run.reset, "reset", false, "ignore already processed records and start from the first query")
	f.BoolVar(&a.run.fast, "fast", false, "fast preset: batch 20, concurrency 150, max tokens 1536")
	f.BoolVar(&a.run.ultraFast, "ultra-fast", false, "ultra-fast preset: batch 30, concurrency 200, max tokens 1024")
}

// applyRunFlags overlays explicitly set flags on cfg. A preset wins over
// the individual batch, concurrency and token flags.
func applyRunFlags(cmd *cobra.Command, rf runFlags, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Paths.Input = rf.input
	}
	if f.Changed("output") {
		cfg.Paths.Output = rf.output
	}
	if f.Changed("registry") {
		cfg.Paths.Registry = rf.registry
	}
	if f.Changed("template-only") {
		cfg.Paths.TemplateOnly = rf.templateOnly
	}
	if f.Changed("system-prompt") {
		cfg.Paths.SystemPrompt = rf.systemPrompt
	}
	if f.Changed("batch-size") {
		cfg.Batch.Size = rf.batchSize
	}
	if f.Changed("concurrency") {
		cfg.Batch.Concurrency = rf.concurrency
	}
	if f.Changed("max-tokens") {
		cfg.LLM.MaxTokens = rf.maxTokens
	}
	if f.Changed("status-addr") {
		cfg.Status.Addr = rf.statusAddr
	}

	switch {
	case rf.ultraFast:
		return cfg.ApplyPreset("ultra-fast")
	case rf.fast:
		return cfg.ApplyPreset("fast")
	}
	return nil
}

func (a *app) runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := a.logger

	if err := applyRunFlags(cmd, a.run, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.run.ultraFast || a.run.fast {
		logger.Info("performance preset",
			zap.Int("batch_size", cfg.Batch.Size),
			zap.Int("concurrency", cfg.Batch.Concurrency),
			zap.Int("max_tokens", cfg.LLM.MaxTokens))
	}

	systemPrompt, err := loadSystemPrompt(cfg.Paths.SystemPrompt)
	if err != nil {
		return err
	}

	reg, err := registry.Load(cfg.Paths.Registry, registry.WithLogger(logger))
	if err != nil {
		return err
	}

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	m := metrics.New()
	ext := extraction.NewExtractor(client, systemPrompt, reg.Labels())
	ext.MaxAttempts = cfg.Batch.MaxAttempts
	ext.RetryDelay = time.Duration(cfg.Batch.RetryDelayMS) * time.Millisecond
	ext.Logger = logger
	ext.Metrics = m

	skip := 0
	if a.run.reset {
		logger.Info("reset flag enabled, processing all queries from the beginning")
	} else {
		if skip, err = store.CountRecords(cfg.Paths.Output); err != nil {
			return err
		}
		logger.Info("skipping already processed queries", zap.Int("count", skip))
	}

	total, err := ingest.Count(cfg.Paths.Input)
	if err != nil {
		logger.Warn("could not count input queries", zap.Error(err))
	}
	logger.Info("processing queries", zap.Int("total", total), zap.String("input", cfg.Paths.Input))

	cursor, err := ingest.Open(cfg.Paths.Input, skip)
	if err != nil {
		return err
	}
	defer cursor.Close()

	opts := []store.Option{store.WithLogger(logger)}
	if cfg.Paths.TemplateOnly != "" {
		opts = append(opts, store.WithTemplateSink(cfg.Paths.TemplateOnly))
	}
	w, err := store.Open(cfg.Paths.Output, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error("failed to close output", zap.Error(err))
		}
	}()

	proc := core.NewProcessor(ext, reg, w, core.Config{
		BatchSize:   cfg.Batch.Size,
		Concurrency: cfg.Batch.Concurrency,
		Total:       max(total-skip, 0),
	})
	proc.Logger = logger
	proc.Metrics = m

	if cfg.Status.Addr != "" {
		stopStatus := serveStatus(ctx, cfg.Status.Addr, server.NewServer(proc, reg, m, logger), logger)
		defer stopStatus()
	}

	summary, runErr := proc.Run(ctx, cursor.Queries())

	if err := cursor.Err(); err != nil {
		logger.Warn("input ended early", zap.Error(err))
	}
	if n := cursor.Dropped(); n > 0 {
		logger.Info("dropped malformed input records", zap.Int("count", n))
	}
	logger.Info("completed",
		zap.Int("written", summary.Written),
		zap.String("elapsed", fmt.Sprintf("%.2fs", summary.Elapsed.Seconds())),
		zap.String("queries_per_sec", fmt.Sprintf("%.2f", summary.QPS())))
	return runErr
}

func loadSystemPrompt(path string) (string, error) {
	if path == "" {
		return extraction.DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt '%s': %w", path, err)
	}
	return string(data), nil
}

// serveStatus runs the status server until the returned stop func is called.
func serveStatus(ctx context.Context, addr string, srv *server.Server, logger *zap.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
