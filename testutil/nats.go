package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

// MockNATSClient records what the event mirror publishes, keyed by subject.
// Safe for concurrent use.
type MockNATSClient struct {
	mu         sync.RWMutex
	messages   map[string][][]byte
	publishErr error
}

func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{messages: make(map[string][][]byte)}
}

// SetPublishError makes every following Publish fail with err (nil restores).
func (c *MockNATSClient) SetPublishError(err error) {
	c.mu.Lock()
	c.publishErr = err
	c.mu.Unlock()
}

func (c *MockNATSClient) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.messages[subject] = append(c.messages[subject], data)
	return nil
}

// GetMessages returns a copy of what was published on subject, oldest first.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages[subject]) == 0 {
		return nil
	}
	return append([][]byte(nil), c.messages[subject]...)
}

func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects lists every subject with at least one message, sorted.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	subjects := make([]string, 0, len(c.messages))
	for subject := range c.messages {
		subjects = append(subjects, subject)
	}
	c.mu.RUnlock()
	sort.Strings(subjects)
	return subjects
}

// WaitForMessageCount fails t unless subject reaches count messages in time.
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client.GetMessageCount(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d messages on %s, got %d", count, subject, client.GetMessageCount(subject))
}
