package redis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPattern(t *testing.T) {
	assert.False(t, hasPattern("lob:snapshots"))
	assert.True(t, hasPattern("lob:*"))
	assert.True(t, hasPattern("lob:?"))
	assert.True(t, hasPattern("lob:[ab]"))
}

func TestOptions_TLS(t *testing.T) {
	opts := options(ClientConfig{Addr: "localhost:6379", DB: 2})
	assert.Nil(t, opts.TLSConfig)
	assert.Equal(t, 2, opts.DB)

	opts = options(ClientConfig{Addr: "localhost:6379", TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
}

// TestFrameSubscriber_RoundTrip needs a reachable Redis; set
// LOBWATCH_TEST_REDIS_ADDR to run it.
func TestFrameSubscriber_RoundTrip(t *testing.T) {
	addr := os.Getenv("LOBWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOBWATCH_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := New(ctx, ClientConfig{Addr: addr})
	require.NoError(t, err)
	pub, err := New(ctx, ClientConfig{Addr: addr})
	require.NoError(t, err)
	defer pub.Close()

	fs := NewFrameSubscriber(sub, "lobwatch:test:*", slog.New(slog.NewTextHandler(io.Discard, nil)))
	frames, err := fs.Stream(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, "lobwatch:test:a", []byte(`{"timestamp":1}`)))

	select {
	case f := <-frames:
		assert.JSONEq(t, `{"timestamp":1}`, string(f))
	case <-ctx.Done():
		t.Fatal("no frame received")
	}

	require.NoError(t, fs.Close())
	assert.NoError(t, fs.Close())
}
