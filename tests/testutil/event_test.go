package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingHandler(t *testing.T) {
	h := NewRecordingHandler()
	boom := errors.New("boom")
	h.FailNext(2, boom)

	msg := shared.Message{Topic: "t", EventID: "e-1"}
	assert.ErrorIs(t, h.Handle(context.Background(), msg), boom)
	assert.ErrorIs(t, h.Handle(context.Background(), msg), boom)
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, 1, h.Count())
	assert.Equal(t, "e-1", h.Messages()[0].EventID)
}

func TestWaitForMessages(t *testing.T) {
	h := NewRecordingHandler()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.Handle(context.Background(), shared.Message{EventID: "late"})
	}()

	got := WaitForMessages(t, h, 1, time.Second)
	assert.Equal(t, "late", got[0].EventID)
}
