// Package extraction turns batches of queries into templates through the
// LLM, validates the response shape and issues leak corrections.
package extraction

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
	"github.com/OmkarTuptewar/template-generator/internal/llm"
	"github.com/OmkarTuptewar/template-generator/internal/metrics"
)

//go:embed prompts/system_prompt.txt
var DefaultSystemPrompt string

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// ErrShape marks a response that is not a JSON array of result objects of
// the expected length.
var ErrShape = errors.New("invalid extraction response")

type Extractor struct {
	LLM          llm.Client
	SystemPrompt string
	Labels       []string
	MaxAttempts  int
	RetryDelay   time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

func NewExtractor(client llm.Client, systemPrompt string, labels []string) *Extractor {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Extractor{
		LLM:          client,
		SystemPrompt: systemPrompt,
		Labels:       labels,
		MaxAttempts:  DefaultMaxAttempts,
		RetryDelay:   DefaultRetryDelay,
		Logger:       zap.NewNop(),
	}
}

// Batch is the outcome of one extraction with retries.
type Batch struct {
	Results  []model.ExtractionResult
	Attempts int
	// Degraded is set when every attempt failed and Results are all ignores.
	Degraded bool
	LastErr  error
}

// ExtractBatch returns exactly len(queries) results. Failures are absorbed
// into ignore results; the only error is context cancellation.
func (e *Extractor) ExtractBatch(ctx context.Context, queries []string, ref model.Catalog) ([]model.ExtractionResult, error) {
	b, err := e.Extract(ctx, queries, ref)
	if err != nil {
		return nil, err
	}
	return b.Results, nil
}

// Extract is ExtractBatch with attempt accounting.
func (e *Extractor) Extract(ctx context.Context, queries []string, ref model.Catalog) (Batch, error) {
	if len(queries) == 0 {
		return Batch{}, nil
	}

	payload, err := common.Marshal(model.BatchPayload{
		Queries:               queries,
		EntityLabels:          e.Labels,
		EntityValuesReference: ref,
	})
	if err != nil {
		return e.degrade(queries, 0, fmt.Errorf("failed to encode payload: %w", err)), nil
	}

	attempts := max(e.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		results, err := e.attempt(ctx, string(payload), len(queries))
		if err == nil {
			return Batch{Results: results, Attempts: attempt}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Batch{}, ctxErr
		}
		lastErr = err
		e.Logger.Debug("extraction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("queries", len(queries)),
			zap.Error(err))

		if attempt < attempts && e.RetryDelay > 0 {
			timer := time.NewTimer(e.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Batch{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return e.degrade(queries, attempts, lastErr), nil
}

func (e *Extractor) degrade(queries []string, attempts int, err error) Batch {
	e.Logger.Error("llm batch failed after retries",
		zap.Int("attempts", attempts),
		zap.Int("queries", len(queries)),
		zap.Error(err))
	return Batch{
		Results:  model.IgnoredBatch(len(queries)),
		Attempts: attempts,
		Degraded: true,
		LastErr:  err,
	}
}

func (e *Extractor) attempt(ctx context.Context, payload string, n int) ([]model.ExtractionResult, error) {
	raw, err := e.LLM.Generate(ctx, e.SystemPrompt, payload)
	e.Metrics.LLMCall(metrics.CallExtract, err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate templates: %w", err)
	}
	results, err := DecodeResults(raw, n)
	if err != nil {
		e.Metrics.InvalidResponse(metrics.CallExtract)
		return nil, err
	}
	return results, nil
}

// DecodeResults parses a raw LLM response into exactly n results. The
// response must be a JSON array (optionally inside a code fence) of objects
// each carrying a boolean "ignore".
func DecodeResults(raw string, n int) ([]model.ExtractionResult, error) {
	elems, err := common.ParseJSON[[]json.RawMessage](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if len(elems) != n {
		return nil, fmt.Errorf("%w: got %d results for %d queries", ErrShape, len(elems), n)
	}
	results := make([]model.ExtractionResult, n)
	for i, elem := range elems {
		res, err := decodeResult(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: result %d: %v", ErrShape, i, err)
		}
		results[i] = res
	}
	return results, nil
}

func decodeResult(raw json.RawMessage) (model.ExtractionResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return model.ExtractionResult{}, errors.New("not an object")
	}

	var res model.ExtractionResult
	ignore, ok := fields["ignore"]
	if !ok {
		return res, errors.New("missing 'ignore' field")
	}
	switch string(bytes.TrimSpace(ignore)) {
	case "true":
		res.Ignore = true
	case "false":
	default:
		return res, errors.New("'ignore' is not a boolean")
	}

	if tmpl, ok := fields["template"]; ok {
		if !isString(tmpl) || json.Unmarshal(tmpl, &res.Template) != nil {
			return res, errors.New("'template' is not a string")
		}
		res.HasTemplate = true
	}

	if nev, ok := fields["new_entity_values"]; ok {
		res.NewEntityValues = decodeNewValues(nev)
	}
	return res, nil
}

// decodeNewValues keeps string values under array-valued labels and drops
// everything else.
func decodeNewValues(raw json.RawMessage) map[string][]string {
	var byLabel map[string]json.RawMessage
	if json.Unmarshal(raw, &byLabel) != nil || len(byLabel) == 0 {
		return nil
	}
	out := make(map[string][]string, len(byLabel))
	for label, list := range byLabel {
		var items []json.RawMessage
		if !isArray(list) || json.Unmarshal(list, &items) != nil {
			continue
		}
		for _, item := range items {
			var v string
			if isString(item) && json.Unmarshal(item, &v) == nil {
				out[label] = append(out[label], v)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isString(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '"'
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
