package extraction

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
	"github.com/OmkarTuptewar/template-generator/internal/metrics"
)

const (
	correctionHeader = "Your previous template left these entity values as literal text. " +
		"Every one of them MUST become a {PLACEHOLDER}:\n"
	correctionInstruction = "Return the corrected JSON ARRAY with ALL listed literal values " +
		"replaced by their correct {LABEL} placeholder. " +
		"Do NOT leave any of them as text."
)

// CorrectionErrors lists each leaked value with the placeholder it must
// become.
func CorrectionErrors(leaks []model.LeakedEntity) string {
	lines := make([]string, len(leaks))
	for i, l := range leaks {
		lines[i] = fmt.Sprintf(`  - "%s" must be replaced with {%s}`, l.Value, l.Label)
	}
	return correctionHeader + strings.Join(lines, "\n")
}

// Correct sends one correction request for a template with leaked values.
// The returned result replaces the original only when ok is true. There is
// no second attempt.
func (e *Extractor) Correct(ctx context.Context, query, template string, leaks []model.LeakedEntity, ref model.Catalog) (model.ExtractionResult, bool) {
	payload, err := common.Marshal(model.CorrectionPayload{
		Queries:               []string{query},
		PreviousTemplate:      template,
		Errors:                CorrectionErrors(leaks),
		Instruction:           correctionInstruction,
		EntityLabels:          e.Labels,
		EntityValuesReference: ref,
	})
	if err != nil {
		e.Logger.Warn("correction payload encoding failed", zap.Error(err))
		return model.ExtractionResult{}, false
	}

	raw, err := e.LLM.Generate(ctx, e.SystemPrompt, string(payload))
	e.Metrics.LLMCall(metrics.CallCorrect, err)
	if err != nil {
		e.Logger.Warn("correction retry failed", zap.Error(err))
		e.Metrics.Correction(false)
		return model.ExtractionResult{}, false
	}

	results, err := DecodeResults(raw, 1)
	if err != nil {
		e.Metrics.InvalidResponse(metrics.CallCorrect)
		e.Metrics.Correction(false)
		e.Logger.Warn("correction retry failed", zap.Error(err))
		return model.ExtractionResult{}, false
	}
	e.Metrics.Correction(true)
	return results[0], true
}
