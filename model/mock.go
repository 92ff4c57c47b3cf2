package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbuzz790/llm-utilities/core"
)

// MockProvider is a scripted in-memory Provider useful for tests & examples.
// Queued steps are consumed in order; once the queue is empty the handler
// (if any) answers, otherwise the provider echoes the last user text.
type MockProvider struct {
	mu       sync.Mutex
	info     Info
	steps    []mockStep
	handler  func(req *Request) (*Response, error)
	requests []*Request
}

type mockStep struct {
	resp *Response
	err  error
}

// NewMockProvider constructs a MockProvider with tool support enabled.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
	}
}

// Enqueue appends replies to the script.
func (m *MockProvider) Enqueue(resps ...*Response) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range resps {
		m.steps = append(m.steps, mockStep{resp: r})
	}
	return m
}

// EnqueueError appends a failing step to the script.
func (m *MockProvider) EnqueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// EnqueueText appends a plain end_turn reply.
func (m *MockProvider) EnqueueText(text string) *MockProvider {
	return m.Enqueue(&Response{Role: core.RoleAssistant, Content: core.Text(text), StopReason: StopEndTurn})
}

// SetHandler answers requests once the script is exhausted.
func (m *MockProvider) SetHandler(fn func(req *Request) (*Response, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Send implements Provider.
func (m *MockProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req.Clone())
	var step *mockStep
	if len(m.steps) > 0 {
		step = &m.steps[0]
		m.steps = m.steps[1:]
	}
	handler := m.handler
	m.mu.Unlock()

	switch {
	case step != nil && step.err != nil:
		return nil, step.err
	case step != nil:
		cp := *step.resp
		cp.Content = step.resp.Content.Clone()
		if cp.Role == "" {
			cp.Role = core.RoleAssistant
		}
		return &cp, nil
	case handler != nil:
		return handler(req)
	}

	if len(req.Messages) == 0 {
		return nil, NewFatalError("mock", 400, fmt.Errorf("no messages provided"))
	}
	last := req.Messages[len(req.Messages)-1]
	return &Response{
		Role:       core.RoleAssistant,
		Content:    core.Text(fmt.Sprintf("Mock response to: %s", last.Content.PlainText())),
		StopReason: StopEndTurn,
	}, nil
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }

// Requests returns copies of the requests received so far.
func (m *MockProvider) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}

// Calls returns the number of Send calls received.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
