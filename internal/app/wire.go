package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/lobwatch/internal/cache/redis"
	"github.com/alanyoungcy/lobwatch/internal/config"
	"github.com/alanyoungcy/lobwatch/internal/dashboard"
	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/feed"
	"github.com/alanyoungcy/lobwatch/internal/metrics"
	"github.com/alanyoungcy/lobwatch/internal/platform/backend"
	"github.com/alanyoungcy/lobwatch/internal/replay"
	"github.com/alanyoungcy/lobwatch/internal/server"
	"github.com/alanyoungcy/lobwatch/internal/server/handler"
	"github.com/alanyoungcy/lobwatch/internal/server/ws"
	"github.com/alanyoungcy/lobwatch/internal/stream/kafka"
)

// Dependencies bundles every component the application runs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics   *metrics.Registry
	Loop      *dashboard.Loop
	Dashboard *dashboard.Dashboard

	// Source is the configured inbound transport, mirrored onto Redis when
	// redis.mirror_channel is set.
	Source   domain.FrameSource
	Ingestor *feed.Ingestor

	Control *backend.ControlClient
	Gateway *replay.Gateway

	Hub *ws.Hub
	// Server is nil when server.enabled is false.
	Server *server.Server
}

// loopQueue bounds the tasks waiting for the dashboard loop.
const loopQueue = 256

// Wire constructs all concrete implementations from the given configuration
// and returns them together with a cleanup function that should be called on
// shutdown to release resources. Cleanup closes the ingestor (and with it the
// transport) before stopping the loop.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	deps.Metrics = metrics.New()

	// --- State owner ---
	deps.Loop = dashboard.NewLoop(loopQueue, logger)
	closers = append(closers, deps.Loop.Stop)
	deps.Dashboard = dashboard.New(deps.Loop, logger)

	// --- Inbound transport ---
	src, err := newSource(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: stream source: %w", err)
	}
	if cfg.Redis.MirrorChannel != "" {
		mirrorClient, err := redis.New(ctx, redisClientConfig(cfg.Redis))
		if err != nil {
			_ = src.Close()
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis mirror: %w", err)
		}
		closers = append(closers, func() { _ = mirrorClient.Close() })
		src = redis.NewFrameMirror(src, mirrorClient, cfg.Redis.MirrorChannel, logger)
	}
	deps.Source = src

	deps.Ingestor = feed.NewIngestor(src, deps.Dashboard.Buffer(), logger,
		feed.WithExecutor(deps.Loop),
		feed.WithAcceptedHandler(deps.Dashboard.OnAccepted),
		feed.WithRecorder(deps.Metrics),
	)
	closers = append(closers, func() {
		if err := deps.Ingestor.Close(); err != nil {
			logger.Warn("wire: close stream source", slog.String("error", err.Error()))
		}
	})

	// --- Replay control ---
	deps.Control = backend.NewControlClient(cfg.Backend.HTTP, cfg.Control.RequestTimeout())
	deps.Gateway = replay.NewGateway(deps.Control, deps.Metrics, cfg.Control.RequestTimeout(), logger)

	// --- Local surface ---
	deps.Hub = ws.NewHub(deps.Dashboard, deps.Metrics, logger)
	unsubscribe := deps.Dashboard.Subscribe(deps.Hub.Publish)
	closers = append(closers, unsubscribe)

	if cfg.Server.Enabled {
		deps.Server = server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		}, server.Handlers{
			Health:    handler.NewHealthHandler(deps.Dashboard, logger),
			Views:     handler.NewViewsHandler(deps.Dashboard, logger),
			Selection: handler.NewSelectionHandler(deps.Dashboard, logger),
			Replay:    handler.NewReplayHandler(deps.Gateway, logger),
			Metrics:   deps.Metrics.Handler(),
		}, deps.Hub, logger)
	}

	return deps, cleanup, nil
}

// newSource builds the transport named by stream.source.
func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.FrameSource, error) {
	switch strings.ToLower(cfg.Stream.Source) {
	case config.SourceWS, "":
		wsURL, err := cfg.Backend.WSURL()
		if err != nil {
			return nil, err
		}
		return backend.NewWSClient(backend.WSConfig{
			URL:                  wsURL,
			HandshakeTimeout:     cfg.Stream.Handshake(),
			MaxFrameBytes:        cfg.Stream.MaxFrameBytes,
			Reconnect:            cfg.Stream.Reconnect,
			ReconnectBaseDelay:   cfg.Stream.ReconnectBase(),
			ReconnectMaxDelay:    cfg.Stream.ReconnectMax(),
			ReconnectMaxAttempts: cfg.Stream.ReconnectMaxAttempts,
		}, logger), nil

	case config.SourceRedis:
		client, err := redis.New(ctx, redisClientConfig(cfg.Redis))
		if err != nil {
			return nil, err
		}
		return redis.NewFrameSubscriber(client, cfg.Redis.Channel, logger), nil

	case config.SourceKafka:
		reader, err := kafka.NewFrameReader(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			GroupID:  cfg.Kafka.GroupID,
			MaxBytes: int(cfg.Stream.MaxFrameBytes),
		}, logger)
		if err != nil {
			return nil, err
		}
		return reader, nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Stream.Source)
	}
}

func redisClientConfig(rc config.RedisConfig) redis.ClientConfig {
	return redis.ClientConfig{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		PoolSize:   rc.PoolSize,
		MaxRetries: rc.MaxRetries,
		TLSEnabled: rc.TLSEnabled,
	}
}
