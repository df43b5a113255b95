// Package core runs the batch pipeline: it groups queries into batches,
// fans them out under a concurrency limit and commits each batch's results
// to the entity registry and the output file.
package core

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OmkarTuptewar/template-generator/internal/core/extraction"
	"github.com/OmkarTuptewar/template-generator/internal/core/leak"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
	"github.com/OmkarTuptewar/template-generator/internal/metrics"
)

// progressEvery is the number of finished batches between progress logs.
const progressEvery = 10

// EntityStore is the shared entity catalog.
type EntityStore interface {
	Snapshot() model.Catalog
	Merge(newValues map[string][]string) (bool, error)
	Blocked(label, value string) bool
}

// ResultSink receives one record per processed query.
type ResultSink interface {
	Append(rec model.OutputRecord) error
}

// Config sizes batches and bounds how many are in flight.
type Config struct {
	BatchSize   int
	Concurrency int
	// Total is the expected number of queries, used only for progress.
	Total int
}

// Progress is a point-in-time view of a run.
type Progress struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	Total               int       `json:"total"`
	BatchesStarted      int       `json:"batches_started"`
	BatchesFinished     int       `json:"batches_finished"`
	Written             int       `json:"written"`
	Templated           int       `json:"templated"`
	Ignored             int       `json:"ignored"`
	DegradedBatches     int       `json:"degraded_batches"`
	Leaks               int       `json:"leaks"`
	CorrectionsSent     int       `json:"corrections_sent"`
	CorrectionsAccepted int       `json:"corrections_accepted"`
	RegistryMerges      int       `json:"registry_merges"`
}

// Summary is the final Progress of a run plus its wall time.
type Summary struct {
	Progress
	Elapsed time.Duration `json:"elapsed"`
}

// QPS is written records per second.
func (s Summary) QPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Written) / s.Elapsed.Seconds()
}

// Processor runs batches of queries through extraction and leak correction
// and writes one record per query to the sink.
type Processor struct {
	Extractor *extraction.Extractor
	Entities  EntityStore
	Sink      ResultSink
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	cfg Config

	// mu serialises registry merges and output appends.
	mu sync.Mutex

	statsMu  sync.Mutex
	progress Progress
}

// NewProcessor clamps BatchSize and Concurrency to at least 1.
func NewProcessor(extractor *extraction.Extractor, entities EntityStore, sink ResultSink, cfg Config) *Processor {
	cfg.BatchSize = max(cfg.BatchSize, 1)
	cfg.Concurrency = max(cfg.Concurrency, 1)
	return &Processor{
		Extractor: extractor,
		Entities:  entities,
		Sink:      sink,
		Logger:    zap.NewNop(),
		cfg:       cfg,
	}
}

// Progress returns a copy of the live counters.
func (p *Processor) Progress() Progress {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.progress
}

// Run consumes queries in batches until the sequence ends, the context is
// cancelled or the sink fails. Each batch either writes one record per
// query or, if cancelled, writes nothing.
func (p *Processor) Run(ctx context.Context, queries iter.Seq[string]) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.Logger.With(zap.String("run_id", runID))

	p.statsMu.Lock()
	p.progress = Progress{RunID: runID, StartedAt: start, Total: p.cfg.Total}
	p.statsMu.Unlock()

	logger.Info("run started",
		zap.Int("total", p.cfg.Total),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int("concurrency", p.cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	seq := 0
	dispatch := func(batch []string) {
		seq++
		blog := logger.With(zap.Int("batch", seq))
		p.updateProgress(func(pr *Progress) { pr.BatchesStarted++ })
		// Blocks while Concurrency batches are in flight.
		g.Go(func() error {
			return p.processBatch(gctx, blog, batch)
		})
	}

	batch := make([]string, 0, p.cfg.BatchSize)
	for q := range queries {
		if gctx.Err() != nil {
			break
		}
		batch = append(batch, q)
		if len(batch) == p.cfg.BatchSize {
			dispatch(batch)
			batch = make([]string, 0, p.cfg.BatchSize)
		}
	}
	if len(batch) > 0 && gctx.Err() == nil {
		dispatch(batch)
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	summary := Summary{Progress: p.Progress(), Elapsed: time.Since(start)}
	fields := []zap.Field{
		zap.Int("written", summary.Written),
		zap.Int("templated", summary.Templated),
		zap.Int("ignored", summary.Ignored),
		zap.Int("degraded_batches", summary.DegradedBatches),
		zap.Int("leaks", summary.Leaks),
		zap.Int("corrections_accepted", summary.CorrectionsAccepted),
		zap.Duration("elapsed", summary.Elapsed),
	}
	if err != nil {
		logger.Warn("run stopped", append(fields, zap.Error(err))...)
		return summary, err
	}
	logger.Info("run finished", fields...)
	return summary, nil
}

func (p *Processor) processBatch(ctx context.Context, logger *zap.Logger, queries []string) error {
	start := time.Now()
	p.Metrics.Inflight(1)
	defer p.Metrics.Inflight(-1)

	// The snapshot is fixed for the whole pipeline of this batch.
	ref := p.Entities.Snapshot()

	extracted, err := p.Extractor.Extract(ctx, queries, ref)
	if err != nil {
		p.Metrics.BatchFinished(metrics.OutcomeCanceled, time.Since(start).Seconds())
		return err
	}

	tracks := make([]queryTrack, len(queries))
	var local Progress
	for i, q := range queries {
		tracks[i] = queryTrack{query: q, result: extracted.Results[i]}
	}

	if extracted.Degraded {
		for i := range tracks {
			if err := tracks[i].advance(stateUnresolved); err != nil {
				return err
			}
		}
		local.DegradedBatches = 1
	} else {
		for i := range tracks {
			if err := p.validate(ctx, logger, &tracks[i], ref, &local); err != nil {
				p.Metrics.BatchFinished(metrics.OutcomeCanceled, time.Since(start).Seconds())
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		p.Metrics.BatchFinished(metrics.OutcomeCanceled, time.Since(start).Seconds())
		return err
	}
	if err := p.commit(logger, tracks, local); err != nil {
		return err
	}

	outcome := metrics.OutcomeOK
	if extracted.Degraded {
		outcome = metrics.OutcomeDegraded
	}
	p.Metrics.BatchFinished(outcome, time.Since(start).Seconds())
	return nil
}

// validate runs leak detection on one validated result and, when values
// leaked, a single correction round-trip.
func (p *Processor) validate(ctx context.Context, logger *zap.Logger, t *queryTrack, ref model.Catalog, local *Progress) error {
	if err := t.advance(stateValidated); err != nil {
		return err
	}
	if t.result.Ignore || !t.result.HasTemplate {
		return t.advance(stateAccepted)
	}

	t.leaks = leak.Find(t.result.Template, ref, p.Entities)
	if len(t.leaks) == 0 {
		return t.advance(stateAccepted)
	}
	if err := t.advance(stateLeakFound); err != nil {
		return err
	}
	local.Leaks += len(t.leaks)
	p.Metrics.Leaks(len(t.leaks))
	logger.Info("leaked entities, retrying with correction hint",
		zap.String("template", t.result.Template),
		zap.Any("leaks", t.leaks))

	if err := t.advance(stateCorrectionSent); err != nil {
		return err
	}
	local.CorrectionsSent++
	corrected, ok := p.Extractor.Correct(ctx, t.query, t.result.Template, t.leaks, ref)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return t.advance(stateUnresolved)
	}
	local.CorrectionsAccepted++
	t.result = corrected
	return t.advance(stateAccepted)
}

// commit merges discovered values and appends the batch's records as one
// critical section.
func (p *Processor) commit(logger *zap.Logger, tracks []queryTrack, local Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range tracks {
		if !t.state.terminal() {
			return fmt.Errorf("query %q not resolved (state %s)", t.query, t.state)
		}
		if !t.result.Ignore && len(t.result.NewEntityValues) > 0 {
			changed, err := p.Entities.Merge(t.result.NewEntityValues)
			if err != nil {
				logger.Error("failed to persist entity registry", zap.Error(err))
			}
			if changed {
				local.RegistryMerges++
				p.Metrics.RegistryGrew()
			}
		}

		if err := p.Sink.Append(model.RecordFor(t.query, t.result)); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		local.Written++
		if t.result.Ignore {
			local.Ignored++
		} else {
			local.Templated++
		}
		p.Metrics.RecordWritten(t.result.Ignore)
	}

	var pr Progress
	p.updateProgress(func(cur *Progress) {
		cur.BatchesFinished++
		cur.Written += local.Written
		cur.Templated += local.Templated
		cur.Ignored += local.Ignored
		cur.DegradedBatches += local.DegradedBatches
		cur.Leaks += local.Leaks
		cur.CorrectionsSent += local.CorrectionsSent
		cur.CorrectionsAccepted += local.CorrectionsAccepted
		cur.RegistryMerges += local.RegistryMerges
		pr = *cur
	})

	if pr.BatchesFinished%progressEvery == 0 {
		fields := []zap.Field{zap.Int("written", pr.Written), zap.Int("batches", pr.BatchesFinished)}
		if pr.Total > 0 {
			fields = append(fields, zap.String("percent", fmt.Sprintf("%.1f", 100*float64(pr.Written)/float64(pr.Total))))
		}
		logger.Info("progress", fields...)
	}
	return nil
}

func (p *Processor) updateProgress(fn func(*Progress)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.progress)
}
