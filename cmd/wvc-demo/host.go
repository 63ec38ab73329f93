package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	wvc "github.com/Skryldev/webview-channel"
	ginwvc "github.com/Skryldev/webview-channel/gin"
)

func newHostCommand() *cobra.Command {
	var listen string
	var useRedis bool

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve the parent side over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return runHost(cmd.Context(), cfg, useRedis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config")
	cmd.Flags().BoolVar(&useRedis, "redis", false, "also accept one widget through Redis pub/sub")
	return cmd
}

func wireParent(id string, ch *wvc.Channel) {
	logger := log.With().Str("frame_id", id).Logger()

	// init arrives under both the current and the legacy name; answer once.
	var replied sync.Once
	_ = ch.OnInit(func() {
		replied.Do(func() {
			logger.Info().Msg("frame sent init")
			if err := ch.SendInitData(map[string]any{"frameId": id, "connectedAt": time.Now().Unix()}); err != nil {
				logger.Warn().Err(err).Msg("init data not delivered")
			}
		})
	})
	_ = ch.OnReady(func() {
		logger.Info().Msg("frame is ready")
	})
	_ = ch.OnChatData(func(payload json.RawMessage) {
		logger.Info().RawJSON("payload", payload).Msg("chat data")
	})
	_ = ch.OnShareData(func(payload json.RawMessage) {
		logger.Info().RawJSON("payload", payload).Msg("share data")
	})
	_ = ch.OnClose(func() {
		logger.Info().Msg("frame asked to close")
	})
}

func runHost(parent context.Context, cfg wvc.Config, useRedis bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := wvc.NewRegistry(debugOptions()...)
	defer func() { _ = registry.Close() }()

	server := wvc.NewServer(registry, append(cfg.ServerOptions(), wvc.WithServerLogger(log.Logger))...)
	server.OnFrame(func(id wvc.FrameID, ch *wvc.Channel) {
		wireParent(string(id), ch)
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(cfg.Path, ginwvc.Handler(server))
	r.GET("/frames", ginwvc.FramesHandler(server))
	r.POST("/frames/init-data", ginwvc.InitDataHandler(server))
	r.POST("/frames/:frame/init-data", ginwvc.InitDataHandler(server))

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Listen).Str("path", cfg.Path).Msg("host listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if useRedis {
		g.Go(func() error {
			return runRedisParent(gctx, cfg, registry)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("host shutting down")
		server.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runRedisParent(ctx context.Context, cfg wvc.Config, registry *wvc.Registry) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() { _ = client.Close() }()

	outbox, inbox := wvc.RedisChannels(cfg.Redis.Prefix, cfg.Redis.Session, wvc.RoleParent)
	peer, err := wvc.NewRedisPeer(ctx, client, outbox, inbox, log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = peer.Close() }()

	opts := append(cfg.ChannelOptions(), wvc.WithSource(peer))
	ch := registry.ParentChannel(peer, opts...)
	defer func() { _ = ch.Close() }()

	wireParent("redis:"+cfg.Redis.Session, ch)
	peer.Start()

	<-ctx.Done()
	return nil
}
