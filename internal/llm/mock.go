package llm

import (
	"context"
	"sync"
)

// MockReply is the canned plan returned by MockGenerator when Reply is empty.
const MockReply = `{
  "analysis": "Mock analysis of the task requirements",
  "files": [
    {
      "path": "MOCK_IMPLEMENTATION.md",
      "action": "create",
      "content": "# Mock Implementation\n\nThis is a mock implementation for testing the AI agent workflow.\n",
      "explanation": "Created a test file for workflow validation"
    }
  ],
  "instructions": "This is a mock implementation for testing purposes"
}`

// MockGenerator returns a fixed reply and records the prompts it receives.
type MockGenerator struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply == "" {
		return MockReply, nil
	}
	return m.Reply, nil
}

// Prompts returns every prompt received so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
