package testutil

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrMockClosed is returned by a closed MockNATSClient
var ErrMockClosed = errors.New("mock NATS client is closed")

// MockNATSClient is an in-memory core NATS client. Publish delivers
// synchronously, on the calling goroutine, to every subscription whose
// subject matches, including "*" and ">" wildcards.
type MockNATSClient struct {
	mu       sync.Mutex
	messages map[string][][]byte
	subs     []mockSub
	closed   bool
}

type mockSub struct {
	pattern []string
	handler func(context.Context, []byte)
}

// NewMockNATSClient creates an empty client
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{messages: make(map[string][][]byte)}
}

// Publish records data under subject and delivers it to matching handlers.
// Each handler gets a context bounded like the real client's message timeout.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrMockClosed
	}
	c.messages[subject] = append(c.messages[subject], data)

	tokens := strings.Split(subject, ".")
	var handlers []func(context.Context, []byte)
	for _, s := range c.subs {
		if subjectMatches(s.pattern, tokens) {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		h(msgCtx, data)
		cancel()
	}
	return nil
}

// Subscribe registers handler for subject, which may contain wildcards
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrMockClosed
	}
	c.subs = append(c.subs, mockSub{pattern: strings.Split(subject, "."), handler: handler})
	return nil
}

// GetMessages returns a copy of the payloads published on subject
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages[subject])
}

// GetMessageCount returns the number of payloads published on subject
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[subject])
}

// Subjects returns every subject published to, sorted
func (c *MockNATSClient) Subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for s := range c.messages {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Close makes further Publish and Subscribe calls fail
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// subjectMatches applies NATS token matching: "*" matches one token,
// a trailing ">" matches one or more
func subjectMatches(pattern, tokens []string) bool {
	for i, p := range pattern {
		if p == ">" {
			return i == len(pattern)-1 && len(tokens) > i
		}
		if i >= len(tokens) {
			return false
		}
		if p != "*" && p != tokens[i] {
			return false
		}
	}
	return len(pattern) == len(tokens)
}
