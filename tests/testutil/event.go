package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

// RecordingHandler is a shared.MessageHandler that records what it receives.
// It can be told to fail a number of deliveries first.
type RecordingHandler struct {
	mu       sync.Mutex
	messages []shared.Message
	failures int
	err      error
}

// NewRecordingHandler creates an empty recording handler.
func NewRecordingHandler() *RecordingHandler {
	return &RecordingHandler{}
}

// FailNext makes the next n deliveries return err.
func (h *RecordingHandler) FailNext(n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = n
	h.err = err
}

// Handle records msg, or fails while failures remain.
func (h *RecordingHandler) Handle(_ context.Context, msg shared.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return h.err
	}
	h.messages = append(h.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (h *RecordingHandler) Messages() []shared.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Count returns the number of recorded messages.
func (h *RecordingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// WaitForMessages waits until h has recorded at least n messages.
func WaitForMessages(t *testing.T, h *RecordingHandler, n int, timeout time.Duration) []shared.Message {
	t.Helper()

	RequireEventually(t, func() bool {
		return h.Count() >= n
	}, timeout, 10*time.Millisecond, "expected %d messages", n)
	return h.Messages()
}
