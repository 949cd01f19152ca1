package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a control message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// frameBuffer is the capacity of the channel handed out by Stream.
	frameBuffer = 64
)

// WSConfig configures a WSClient.
type WSConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	// MaxFrameBytes caps a single inbound message. Zero means no limit.
	MaxFrameBytes int64

	// Reconnect enables bounded exponential backoff after a transport
	// failure. When false the stream ends on the first disconnect.
	Reconnect            bool
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int
}

// WSClient reads snapshot frames from the analytics backend's /ws endpoint.
// It is a domain.FrameSource.
type WSClient struct {
	cfg    WSConfig
	dialer websocket.Dialer
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	streamed bool

	// done is closed when the client is shut down.
	done chan struct{}
}

var _ domain.FrameSource = (*WSClient)(nil)

// NewWSClient creates a client for cfg.URL. Nothing is dialled until Stream.
func NewWSClient(cfg WSConfig, logger *slog.Logger) *WSClient {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &WSClient{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger.With(slog.String("component", "backend_ws")),
		done:   make(chan struct{}),
	}
}

// Stream dials the backend and returns a channel of raw frames. The channel
// is closed when the connection ends for good: after Close, after ctx is
// cancelled, or after a transport failure that is not (or can no longer be)
// recovered. Stream may be called once.
func (w *WSClient) Stream(ctx context.Context) (<-chan []byte, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, fmt.Errorf("backend/ws: %w", domain.ErrClosed)
	}
	if w.streamed {
		w.mu.Unlock()
		return nil, fmt.Errorf("backend/ws: stream already open")
	}
	w.streamed = true
	w.mu.Unlock()

	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, frameBuffer)
	go w.run(ctx, conn, out)
	return out, nil
}

// Close sends a normal-closure frame and closes the connection. It is safe
// to call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err := w.conn.Close()
		w.conn = nil
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}

// release closes conn and forgets it if it is still the current connection.
func (w *WSClient) release(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	conn.Close()
}

func (w *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("backend/ws: connect: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("backend/ws: %w", domain.ErrClosed)
	}
	w.conn = conn
	w.mu.Unlock()

	if w.cfg.MaxFrameBytes > 0 {
		conn.SetReadLimit(w.cfg.MaxFrameBytes)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	w.logger.Info("backend ws connected", slog.String("url", w.cfg.URL))
	return conn, nil
}

func (w *WSClient) run(ctx context.Context, conn *websocket.Conn, out chan<- []byte) {
	defer close(out)

	for attempt := 0; ; {
		err := w.readLoop(ctx, conn, out)
		w.release(conn)
		if w.stopping(ctx) {
			return
		}
		w.logger.Warn("backend ws disconnected", slog.String("error", err.Error()))
		if !w.cfg.Reconnect {
			return
		}

		conn = nil
		for conn == nil {
			if w.cfg.ReconnectMaxAttempts > 0 && attempt >= w.cfg.ReconnectMaxAttempts {
				w.logger.Error("backend ws reconnect attempts exhausted", slog.Int("attempts", attempt))
				return
			}
			delay := Backoff(attempt, w.cfg.ReconnectBaseDelay, w.cfg.ReconnectMaxDelay)
			attempt++

			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case <-time.After(delay):
			}

			dialCtx, cancel := context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
			c, err := w.connect(dialCtx)
			cancel()
			if err != nil {
				if w.stopping(ctx) {
					return
				}
				w.logger.Warn("backend ws reconnect failed",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
				continue
			}
			conn = c
		}
		// A successful reconnect resets the budget; the backend replays
		// its history frame first.
		attempt = 0
	}
}

// readLoop pumps messages from conn into out until the read fails.
func (w *WSClient) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go w.pingLoop(ctx, conn, stopPing)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case out <- message:
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return domain.ErrClosed
		}
	}
}

// pingLoop sends periodic pings on conn until stop is closed. Cancelling ctx
// closes conn, which unblocks the pending read.
func (w *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-w.done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (w *WSClient) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Backoff returns the delay before reconnect attempt n (zero-based):
// base * 2^n, capped at ceiling.
func Backoff(n int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}
