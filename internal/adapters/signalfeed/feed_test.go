package signalfeed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoOrderEngine/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func sig(id int64) domain.Signal {
	return domain.Signal{Symbol: "ETHUSDT", Side: domain.Buy, SignalID: id, SuggestedUSDAmount: 100}
}

func TestFeed_PushAndReceive(t *testing.T) {
	f := New(4, &mockLogger{})
	ctx := context.Background()

	require.True(t, f.Push(ctx, sig(1)))
	require.True(t, f.Push(ctx, sig(2)))

	got := <-f.Signals()
	assert.Equal(t, int64(1), got.SignalID)
	got = <-f.Signals()
	assert.Equal(t, int64(2), got.SignalID)
}

func TestFeed_DropsWhenBufferFull(t *testing.T) {
	f := New(2, &mockLogger{})
	ctx := context.Background()

	require.True(t, f.Push(ctx, sig(1)))
	require.True(t, f.Push(ctx, sig(2)))

	// The producer must never block on a slow consumer.
	assert.False(t, f.Push(ctx, sig(3)))

	got := <-f.Signals()
	assert.Equal(t, int64(1), got.SignalID)
}

func TestFeed_CloseDrainsBufferedSignals(t *testing.T) {
	f := New(4, &mockLogger{})
	ctx := context.Background()

	require.True(t, f.Push(ctx, sig(1)))
	f.Close()
	f.Close() // idempotent

	assert.False(t, f.Push(ctx, sig(2)))

	got, ok := <-f.Signals()
	require.True(t, ok)
	assert.Equal(t, int64(1), got.SignalID)

	_, ok = <-f.Signals()
	assert.False(t, ok, "channel must be closed after the buffer drains")
}

func TestNew_DefaultsBufferSize(t *testing.T) {
	f := New(0, &mockLogger{})
	assert.Equal(t, defaultBuffer, cap(f.ch))
}
