// Package testhelpers provides shared test utilities for the analyst packages.
package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// MockLLM implements llm.Client with scripted responses. Responses are served
// either by matching rules (first match wins) or from an ordered queue, and
// every request is kept for assertions.
type MockLLM struct {
	mu    sync.Mutex
	queue []scripted
	rules []rule
	calls []llm.Request
}

type scripted struct {
	text string
	err  error
}

type rule struct {
	substr string
	text   string
	err    error
}

// NewMockLLM creates an empty mock client. Unscripted calls fail loudly.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Queue appends a response served in call order, after rules are exhausted.
func (m *MockLLM) Queue(text string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{text: text})
	return m
}

// QueueError appends a failing response served in call order.
func (m *MockLLM) QueueError(err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{err: err})
	return m
}

// Respond serves text for any request whose prompt or system contains substr.
func (m *MockLLM) Respond(substr, text string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{substr: substr, text: text})
	return m
}

// FailOn fails any request whose prompt or system contains substr.
func (m *MockLLM) FailOn(substr string, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{substr: substr, err: err})
	return m
}

// Complete serves the next scripted response.
func (m *MockLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	for _, r := range m.rules {
		if strings.Contains(req.Prompt, r.substr) || strings.Contains(req.System, r.substr) {
			return r.text, r.err
		}
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next.text, next.err
	}

	head := req.Prompt
	if len(head) > 120 {
		head = head[:120] + "..."
	}
	return "", fmt.Errorf("testhelpers: unscripted llm call: %q", head)
}

// Calls returns a copy of every request seen so far.
func (m *MockLLM) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many completions were requested.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewStore opens an in-memory graph store that is closed when the test ends.
func NewStore(tb testing.TB) *graph.Store {
	tb.Helper()

	store, err := graph.Open("sqlite3", ":memory:", logger.NewNop())
	if err != nil {
		tb.Fatalf("open test store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
