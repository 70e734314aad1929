package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMatchesPatterns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus(0)
	all, err := b.Subscribe(ctx, "heatmap:*")
	require.NoError(t, err)
	prices, err := b.Subscribe(ctx, "prices")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "heatmap:BTC-USDT", []byte("a")))
	require.NoError(t, b.Publish(ctx, "prices", []byte("b")))

	assert.Equal(t, []byte("a"), <-all)
	assert.Equal(t, []byte("b"), <-prices)
	assert.Empty(t, all)
	assert.Empty(t, prices)
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewBus(0).Subscribe(ctx, "prices")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestStreamReadAfterID(t *testing.T) {
	ctx := context.Background()
	b := NewBus(2)
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, b.StreamAppend(ctx, "s", []byte(p)))
	}

	msgs, err := b.StreamRead(ctx, "s", "0-0", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "trimmed to maxLen")
	assert.Equal(t, []byte("2"), msgs[0].Payload)

	rest, err := b.StreamRead(ctx, "s", msgs[0].ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("3"), rest[0].Payload)
}

func TestStreamReadBlocksUntilAppend(t *testing.T) {
	ctx := context.Background()
	b := NewBus(0)
	require.NoError(t, b.StreamAppend(ctx, "s", []byte("old")))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.StreamAppend(ctx, "s", []byte("new"))
	}()

	msgs, err := b.StreamRead(ctx, "s", "$", 10, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("new"), msgs[0].Payload)
}

func TestIDOrdering(t *testing.T) {
	assert.True(t, idAfter("5-1", "4-9"))
	assert.True(t, idAfter("5-2", "5-1"))
	assert.False(t, idAfter("5-1", "5-1"))
	assert.True(t, idAfter("1772460000000-0", "0-0"))
}
