package wvc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisPeer bridges a channel across processes through Redis pub/sub. It
// publishes on one Redis channel and listens on another, so a widget and a
// parent use mirrored names.
type RedisPeer struct {
	client  redis.UniversalClient
	ctx     context.Context
	cancel  context.CancelFunc
	outbox  string
	inbox   string
	pubsub  *redis.PubSub
	logger  zerolog.Logger
	started atomic.Bool

	listeners listenerSet
	closeOnce sync.Once
	done      chan struct{}
}

// RedisChannels returns the pair of Redis channel names used for a session,
// from the point of view of role: (publish to, subscribe to).
func RedisChannels(prefix, session string, role Role) (string, string) {
	toParent := prefix + ":" + session + ":" + string(RoleParent)
	toWidget := prefix + ":" + session + ":" + string(RoleWidget)
	if role == RoleWidget {
		return toParent, toWidget
	}
	return toWidget, toParent
}

func NewRedisPeer(ctx context.Context, client redis.UniversalClient, outbox, inbox string, logger zerolog.Logger) (*RedisPeer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if outbox == "" || inbox == "" {
		return nil, errors.New("redis channel names are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithCancel(ctx)

	ps := client.Subscribe(pctx, inbox)
	if _, err := ps.Receive(pctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, errors.Wrapf(err, "subscribe %s", inbox)
	}

	return &RedisPeer{
		client: client,
		ctx:    pctx,
		cancel: cancel,
		outbox: outbox,
		inbox:  inbox,
		pubsub: ps,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// PostMessage implements Peer.
func (p *RedisPeer) PostMessage(data string) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if err := p.client.Publish(p.ctx, p.outbox, data).Err(); err != nil {
		p.logger.Warn().Err(err).Str("channel", p.outbox).Msg("redis publish failed")
		return errors.Wrapf(err, "publish %s", p.outbox)
	}
	return nil
}

// AddListener implements MessageSource.
func (p *RedisPeer) AddListener(fn func(raw any)) func() {
	return p.listeners.add(fn)
}

// Start begins delivering inbound messages. Later calls are no-ops.
func (p *RedisPeer) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.readLoop()
}

func (p *RedisPeer) readLoop() {
	ch := p.pubsub.Channel()
	for {
		select {
		case <-p.done:
			return
		case msg, ok := <-ch:
			if !ok {
				select {
				case <-p.done:
				default:
					p.logger.Warn().Str("channel", p.inbox).Msg("redis subscription closed unexpectedly")
				}
				return
			}
			p.listeners.deliver(msg.Payload)
		}
	}
}

func (p *RedisPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.cancel()
		err = p.pubsub.Close()
	})
	return err
}
