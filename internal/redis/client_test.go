package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNewClientConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(ctx, "redis://"+endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, client.Ping(ctx))
	assert.NotNil(t, client.Underlying())
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), "redis://127.0.0.1:1")
	assert.Error(t, err)
}
