package model

import (
	"encoding/json"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
)

// ExtractionResult is the per-query answer of the extraction capability.
// Matches one element of the JSON array the system prompt asks for.
type ExtractionResult struct {
	Ignore          bool                `json:"ignore"`
	Template        string              `json:"template,omitempty"`
	NewEntityValues map[string][]string `json:"new_entity_values,omitempty"`

	// HasTemplate distinguishes a missing "template" key from an empty one.
	HasTemplate bool `json:"-"`
}

// Ignored is the fail-open result used whenever a batch cannot be extracted.
func Ignored() ExtractionResult {
	return ExtractionResult{Ignore: true}
}

// IgnoredBatch returns n ignore results.
func IgnoredBatch(n int) []ExtractionResult {
	out := make([]ExtractionResult, n)
	for i := range out {
		out[i] = Ignored()
	}
	return out
}

// LeakedEntity is a catalog value found as literal text in a template.
type LeakedEntity struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// BatchPayload is the user message of an extraction call.
type BatchPayload struct {
	Queries               []string `json:"queries"`
	EntityLabels          []string `json:"entity_labels"`
	EntityValuesReference Catalog  `json:"entity_values_reference"`
}

// CorrectionPayload is the user message of a leak correction call.
type CorrectionPayload struct {
	Queries               []string `json:"queries"`
	PreviousTemplate      string   `json:"previous_template"`
	Errors                string   `json:"errors"`
	Instruction           string   `json:"instruction"`
	EntityLabels          []string `json:"entity_labels"`
	EntityValuesReference Catalog  `json:"entity_values_reference"`
}

// OutputRecord is one line of the output JSONL file.
type OutputRecord struct {
	Query    string
	Template string
	Ignore   bool
}

// RecordFor builds the output record of a query from its final result.
func RecordFor(query string, res ExtractionResult) OutputRecord {
	if res.Ignore {
		return OutputRecord{Query: query, Ignore: true}
	}
	return OutputRecord{Query: query, Template: res.Template}
}

// MarshalJSON emits either {"query","template"} or {"query","ignore":true}.
func (r OutputRecord) MarshalJSON() ([]byte, error) {
	if r.Ignore {
		return common.Marshal(struct {
			Query  string `json:"query"`
			Ignore bool   `json:"ignore"`
		}{r.Query, true})
	}
	return common.Marshal(struct {
		Query    string `json:"query"`
		Template string `json:"template"`
	}{r.Query, r.Template})
}

// UnmarshalJSON accepts both record shapes.
func (r *OutputRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Query    string `json:"query"`
		Template string `json:"template"`
		Ignore   bool   `json:"ignore"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = OutputRecord{Query: raw.Query, Template: raw.Template, Ignore: raw.Ignore}
	return nil
}

