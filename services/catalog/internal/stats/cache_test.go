package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/animefan/internal/platform/events"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []int{1, 2}))
	var got []int
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []int{1, 2}, got)

	now = now.Add(2 * time.Minute)
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTTLCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache(0)
	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 2))

	require.NoError(t, c.Invalidate(ctx, "a"))
	var v int
	hit, _ := c.Get(ctx, "a", &v)
	assert.False(t, hit)
	hit, _ = c.Get(ctx, "b", &v)
	assert.True(t, hit)

	require.NoError(t, c.Invalidate(ctx, "all"))
	hit, _ = c.Get(ctx, "b", &v)
	assert.False(t, hit)
}

func TestInvalidationKey(t *testing.T) {
	envelope, err := json.Marshal(events.Event{EventName: "stats_invalidate", Properties: map[string]any{"key": "genres"}})
	require.NoError(t, err)
	assert.Equal(t, "genres", invalidationKey(envelope))

	bare, err := json.Marshal(events.Event{EventName: "stats_invalidate"})
	require.NoError(t, err)
	assert.Equal(t, InvalidateAll, invalidationKey(bare))

	assert.Equal(t, "platform", invalidationKey([]byte(" platform ")))
}
