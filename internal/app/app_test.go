package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobwatch/internal/config"
	"github.com/alanyoungcy/lobwatch/internal/platform/backend"
	"github.com/alanyoungcy/lobwatch/internal/stream/kafka"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// analyticsBackend serves /ws with one history frame and one tick, then
// holds the connection open.
func analyticsBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"history","data":[{"timestamp":1000,"mid_price":100}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":2000,"mid_price":100.25}`))
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

func testConfig(backendURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Backend.HTTP = backendURL
	cfg.Server.Enabled = false
	return &cfg
}

func TestWire_SelectsSource(t *testing.T) {
	cfg := testConfig("http://localhost:8000")
	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.IsType(t, &backend.WSClient{}, deps.Source)
	assert.Nil(t, deps.Server)

	cfg.Stream.Source = config.SourceKafka
	cfg.Server.Enabled = true
	deps, cleanup, err = Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.IsType(t, &kafka.FrameReader{}, deps.Source)
	assert.NotNil(t, deps.Server)
}

func TestWire_BadSource(t *testing.T) {
	cfg := testConfig("http://localhost:8000")
	cfg.Stream.Source = "carrier-pigeon"
	_, _, err := Wire(context.Background(), cfg, discardLogger())
	assert.Error(t, err)

	cfg = testConfig("ftp://localhost")
	_, _, err = Wire(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestWire_IngestsIntoDashboard(t *testing.T) {
	srv := analyticsBackend(t)
	deps, cleanup, err := Wire(context.Background(), testConfig(srv.URL), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = deps.Loop.Run(ctx)
	}()
	go func() { _ = deps.Ingestor.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		cleanup()
		<-done
	})

	require.Eventually(t, func() bool {
		return deps.Dashboard.Views().BufferLen == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 100.25, deps.Dashboard.Views().Liquidity.MidPrice)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	srv := analyticsBackend(t)
	a := New(testConfig(srv.URL), discardLogger())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
