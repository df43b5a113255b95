package extraction

import (
	"context"
	"errors"
	"sync"
)

// MockLLMClient answers every call with the same response or error.
type MockLLMClient struct {
	Response string
	Err      error
}

func (m *MockLLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Reply is one scripted answer.
type Reply struct {
	Response string
	Err      error
}

// ScriptedLLMClient hands out Replies in call order, then falls back to
// Handler. It is safe for concurrent use and records every prompt.
type ScriptedLLMClient struct {
	Replies []Reply
	Handler func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (s *ScriptedLLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	var reply *Reply
	if len(s.Replies) > 0 {
		reply = &s.Replies[0]
		s.Replies = s.Replies[1:]
	}
	s.mu.Unlock()

	if reply != nil {
		return reply.Response, reply.Err
	}
	if s.Handler != nil {
		return s.Handler(ctx, prompt)
	}
	return "", errors.New("no scripted reply")
}

// Calls is the number of Generate calls so far.
func (s *ScriptedLLMClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of the recorded user payloads.
func (s *ScriptedLLMClient) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
