package genai

import (
	"context"
	"strings"
	"sync"
)

// MockClient returns canned completions for local/dev use and tests.
// Replies are consumed in order; when they run out it falls back to a
// fixed acknowledgement.
type MockClient struct {
	mu      sync.Mutex
	replies []string

	// Prompts records everything the client was asked, for assertions.
	Prompts []string
}

func NewMockClient(replies []string) *MockClient {
	return &MockClient{replies: replies}
}

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, prompt)
	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		return reply, nil
	}
	return "I can help with that. " + firstLine(prompt), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
