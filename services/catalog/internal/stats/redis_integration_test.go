//go:build integration

package stats

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func startRedis(t *testing.T) *RedisCache {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}

	c, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(context.Background())
	require.NoError(t, err)
	port, err := c.MappedPort(context.Background(), "6379")
	require.NoError(t, err)

	rc, err := NewRedisCache(fmt.Sprintf("redis://%s:%s/0", host, port.Port()), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestRedisCache_RoundTripAndInvalidate(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "platform", domain.PlatformStats{TotalAnime: 7}))
	require.NoError(t, rc.Set(ctx, "genres", []domain.GenreStat{{Genre: "Action", AnimeCount: 2}}))
	require.NoError(t, rc.Client.Set(ctx, "unrelated", "keep", 0).Err())

	var got domain.PlatformStats
	ok, err := rc.Get(ctx, "platform", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.TotalAnime)

	require.NoError(t, rc.Invalidate(ctx, "platform"))
	ok, err = rc.Get(ctx, "platform", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Invalidate(ctx, InvalidateAll))
	var genres []domain.GenreStat
	ok, err = rc.Get(ctx, "genres", &genres)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := rc.Client.Get(ctx, "unrelated").Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", v)
}
