package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	wvc "github.com/Skryldev/webview-channel"
)

type widgetFlags struct {
	url     string
	query   string
	message string
	share   string
	redis   bool
	close   bool
}

func newWidgetCommand() *cobra.Command {
	var f widgetFlags

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Connect as the embedded side and run the startup handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runWidget(cmd.Context(), cfg, f)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "ws://localhost:8080/ws", "host WebSocket URL")
	cmd.Flags().StringVar(&f.query, "query", "", "query string used to seed init data")
	cmd.Flags().StringVar(&f.message, "message", "hello from the widget", "chat payload sent after ready")
	cmd.Flags().StringVar(&f.share, "share", "", "share payload, skipped when empty")
	cmd.Flags().BoolVar(&f.redis, "redis", false, "connect through Redis pub/sub instead of WebSocket")
	cmd.Flags().BoolVar(&f.close, "close", false, "send a close request and exit after the handshake")
	return cmd
}

type startableSource interface {
	wvc.Peer
	wvc.MessageSource
	Start()
	Close() error
}

func dialWidgetPeer(ctx context.Context, cfg wvc.Config, f widgetFlags) (startableSource, func(), error) {
	if !f.redis {
		peer, err := wvc.Dial(ctx, f.url, nil)
		if err != nil {
			return nil, nil, err
		}
		return peer, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	outbox, inbox := wvc.RedisChannels(cfg.Redis.Prefix, cfg.Redis.Session, wvc.RoleWidget)
	peer, err := wvc.NewRedisPeer(ctx, client, outbox, inbox, log.Logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return peer, func() { _ = client.Close() }, nil
}

func runWidget(parent context.Context, cfg wvc.Config, f widgetFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	peer, cleanup, err := dialWidgetPeer(ctx, cfg, f)
	if err != nil {
		return errors.Wrap(err, "connect widget")
	}
	defer cleanup()
	defer func() { _ = peer.Close() }()

	registry := wvc.NewRegistry(append(cfg.ChannelOptions(), debugOptions()...)...)
	defer func() { _ = registry.Close() }()

	ch := registry.WidgetChannel(peer, wvc.WithSource(peer), wvc.WithQuery(f.query))

	gotInitData := make(chan struct{}, 1)
	_ = ch.OnInitData(func(data map[string]any) {
		log.Info().Interface("init_data", data).Msg("init data")
		select {
		case gotInitData <- struct{}{}:
		default:
		}
	}, true)

	peer.Start()

	if err := ch.SendInit(); err != nil {
		return err
	}

	select {
	case <-gotInitData:
	case <-ctx.Done():
		return nil
	}

	if err := ch.SendReady(); err != nil {
		return err
	}
	if f.message != "" {
		if err := ch.SendToChat(map[string]string{"text": f.message}); err != nil {
			return err
		}
	}
	if f.share != "" {
		if err := ch.SendToShare(map[string]string{"text": f.share}); err != nil {
			return err
		}
	}
	if f.close {
		return ch.SendClose()
	}

	<-ctx.Done()
	return nil
}
