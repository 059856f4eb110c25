// Package history stores per-profile conversation history so each companion
// turn can carry recent context to the inference backend.
package history

import (
	"context"
	"sync"

	"github.com/qianban/qianban/internal/llm"
)

// Store holds recent chat messages per profile.
type Store interface {
	// Append records one message at the end of the profile's history.
	Append(ctx context.Context, profileID string, msg llm.Message) error

	// Recent returns up to n most recent messages in chronological order.
	Recent(ctx context.Context, profileID string, n int) ([]llm.Message, error)

	// Clear removes the profile's history.
	Clear(ctx context.Context, profileID string) error
}

// maxKept bounds how many messages are retained per profile; older entries
// are dropped from the front.
const maxKept = 50

// Memory is the default in-process Store.
type Memory struct {
	mu   sync.Mutex
	data map[string][]llm.Message
}

// NewMemory creates an empty in-memory history store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]llm.Message)}
}

func (m *Memory) Append(_ context.Context, profileID string, msg llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := append(m.data[profileID], msg)
	if len(msgs) > maxKept {
		msgs = msgs[len(msgs)-maxKept:]
	}
	m.data[profileID] = msgs
	return nil
}

func (m *Memory) Recent(_ context.Context, profileID string, n int) ([]llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.data[profileID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) Clear(_ context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, profileID)
	return nil
}
