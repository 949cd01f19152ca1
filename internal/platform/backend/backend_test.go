package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws"
}

// frameServer upgrades every connection, writes frames and then either holds
// the connection open until the client leaves or drops it.
func frameServer(t *testing.T, frames []string, hold bool, conns *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conns != nil {
			conns.Add(1)
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if !hold {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, ch <-chan []byte, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case f, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, string(f))
		case <-timeout:
			t.Fatalf("timed out after %d of %d frames", len(got), n)
		}
	}
	return got
}

func waitClosed(t *testing.T, ch <-chan []byte) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream channel was not closed")
		}
	}
}

func TestWSClient_StreamsFramesInOrder(t *testing.T) {
	srv := frameServer(t, []string{`{"type":"history","data":[]}`, `{"timestamp":1}`, `{"timestamp":2}`}, true, nil)

	c := NewWSClient(WSConfig{URL: wsURL(srv)}, discardLogger())
	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	got := collect(t, ch, 3)
	assert.Equal(t, []string{`{"type":"history","data":[]}`, `{"timestamp":1}`, `{"timestamp":2}`}, got)

	require.NoError(t, c.Close())
	waitClosed(t, ch)
}

func TestWSClient_CloseIsIdempotent(t *testing.T) {
	srv := frameServer(t, nil, true, nil)
	c := NewWSClient(WSConfig{URL: wsURL(srv)}, discardLogger())
	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	waitClosed(t, ch)

	_, err = c.Stream(context.Background())
	assert.True(t, errors.Is(err, domain.ErrClosed))
}

func TestWSClient_NoReconnectByDefault(t *testing.T) {
	var conns atomic.Int32
	srv := frameServer(t, []string{`{"timestamp":1}`}, false, &conns)

	c := NewWSClient(WSConfig{URL: wsURL(srv)}, discardLogger())
	defer c.Close()
	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	waitClosed(t, ch)
	assert.Equal(t, int32(1), conns.Load())
}

func TestWSClient_CloseAfterServerDrop(t *testing.T) {
	srv := frameServer(t, []string{`{"timestamp":1}`}, false, nil)

	c := NewWSClient(WSConfig{URL: wsURL(srv)}, discardLogger())
	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	waitClosed(t, ch)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestWSClient_ReconnectsWhenEnabled(t *testing.T) {
	var conns atomic.Int32
	srv := frameServer(t, []string{`{"timestamp":1}`}, false, &conns)

	c := NewWSClient(WSConfig{
		URL:                  wsURL(srv),
		Reconnect:            true,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		ReconnectMaxAttempts: 3,
	}, discardLogger())
	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	got := collect(t, ch, 3)
	assert.Len(t, got, 3)
	assert.GreaterOrEqual(t, conns.Load(), int32(3))

	require.NoError(t, c.Close())
	waitClosed(t, ch)
}

func TestWSClient_ContextCancelEndsStream(t *testing.T) {
	srv := frameServer(t, nil, true, nil)
	c := NewWSClient(WSConfig{URL: wsURL(srv)}, discardLogger())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Stream(ctx)
	require.NoError(t, err)
	cancel()
	waitClosed(t, ch)
}

func TestWSClient_DialError(t *testing.T) {
	c := NewWSClient(WSConfig{URL: "ws://127.0.0.1:1/ws", HandshakeTimeout: time.Second}, discardLogger())
	_, err := c.Stream(context.Background())
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	base, ceiling := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, Backoff(0, base, ceiling))
	assert.Equal(t, 200*time.Millisecond, Backoff(1, base, ceiling))
	assert.Equal(t, 800*time.Millisecond, Backoff(3, base, ceiling))
	assert.Equal(t, time.Second, Backoff(4, base, ceiling))
	assert.Equal(t, time.Second, Backoff(40, base, ceiling))
}

func TestControlClient_PostReplay(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		ids   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		ids = append(ids, r.Header.Get("X-Request-ID"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewControlClient(srv.URL+"/", time.Second)
	id, err := c.PostReplay(context.Background(), "start")
	require.NoError(t, err)
	_, err = c.PostReplay(context.Background(), "speed/2.5")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"POST /replay/start", "POST /replay/speed/2.5"}, paths)
	assert.Equal(t, id, ids[0])
	assert.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestControlClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "replay not loaded", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewControlClient(srv.URL, time.Second)
	_, err := c.PostReplay(context.Background(), "pause")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "replay not loaded", se.Body)
}
