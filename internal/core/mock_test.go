package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OmkarTuptewar/template-generator/internal/core/extraction"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
	"github.com/OmkarTuptewar/template-generator/internal/core/registry"
)

// MockSink collects records in memory and can fail after a number of
// appends.
type MockSink struct {
	mu        sync.Mutex
	records   []model.OutputRecord
	FailAfter int
	Err       error
}

func (m *MockSink) Append(rec model.OutputRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil && len(m.records) >= m.FailAfter {
		return m.Err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MockSink) Records() []model.OutputRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OutputRecord(nil), m.records...)
}

// llmRequest is the part of a user payload the mocks look at.
type llmRequest struct {
	Queries          []string `json:"queries"`
	PreviousTemplate *string  `json:"previous_template"`
}

func (r llmRequest) correction() bool { return r.PreviousTemplate != nil }

func decodeRequest(prompt string) llmRequest {
	var req llmRequest
	if err := json.Unmarshal([]byte(prompt), &req); err != nil {
		panic(fmt.Sprintf("mock llm got non-JSON payload: %v", err))
	}
	return req
}

// templateAll answers every query with a plain template that contains no
// catalog value.
func templateAll(req llmRequest) string {
	out := make([]string, len(req.Queries))
	for i, q := range req.Queries {
		out[i] = fmt.Sprintf(`{"ignore": false, "template": "{SEMANTIC} %s"}`, q)
	}
	return "[" + strings.Join(out, ",") + "]"
}

var errSinkFull = errors.New("disk full")

var testSeed = registry.Seed{
	Labels: []string{"SOURCE_NAME", "DESTINATION_NAME", "DEPARTURE_DATE", "OPERATOR", "SEMANTIC"},
	Values: []registry.LabelValues{
		{Label: "SOURCE_NAME", Values: []string{"Pune", "Bangalore", "Bangalore City"}},
		{Label: "DESTINATION_NAME", Values: []string{"Goa"}},
		{Label: "DEPARTURE_DATE", Values: []string{"tomorrow", "today"}},
		{Label: "OPERATOR", Values: []string{"VRL"}},
		{Label: "SEMANTIC", Values: []string{"cheapest"}},
	},
	Blocklist: map[string][]string{"OPERATOR": {"travels"}},
}

type harness struct {
	proc     *Processor
	registry *registry.Registry
	regPath  string
	sink     *MockSink
	llm      *extraction.ScriptedLLMClient
}

func newHarness(t *testing.T, cfg Config, handler func(ctx context.Context, req llmRequest) (string, error)) *harness {
	t.Helper()
	regPath := filepath.Join(t.TempDir(), "new_entity_values.json")
	reg, err := registry.New(regPath, testSeed)
	require.NoError(t, err)

	client := &extraction.ScriptedLLMClient{Handler: func(ctx context.Context, prompt string) (string, error) {
		return handler(ctx, decodeRequest(prompt))
	}}
	ext := extraction.NewExtractor(client, "rules", reg.Labels())
	ext.RetryDelay = time.Millisecond

	sink := &MockSink{}
	return &harness{
		proc:     NewProcessor(ext, reg, sink, cfg),
		registry: reg,
		regPath:  regPath,
		sink:     sink,
		llm:      client,
	}
}
