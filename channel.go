package wvc

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type slots struct {
	init      func()
	ready     func()
	chatData  func(payload json.RawMessage)
	shareData func(payload json.RawMessage)
	close     func()
	initData  func(payload json.RawMessage)
}

// Channel is one side of a widget/parent message channel.
// The role is fixed at construction and every operation checks it.
type Channel struct {
	role          Role
	events        EventSet
	logger        zerolog.Logger
	policy        InitDataPolicy
	legacyAliases bool
	peer          Peer

	mu        sync.RWMutex
	transport Transport
	slots     slots
	initData  map[string]any

	bus      *EventBus
	dispatch HandlerFunc

	removeListener func()
	closeHooks     []func(*Channel)
	closed         atomic.Bool
	closeOnce      sync.Once
}

// NewWidgetChannel builds the embedded side, posting to parent.
func NewWidgetChannel(parent Peer, opts ...Option) *Channel {
	return newChannel(RoleWidget, parent, opts...)
}

// NewParentChannel builds the host side, posting to the frame.
func NewParentChannel(frame Peer, opts ...Option) *Channel {
	return newChannel(RoleParent, frame, opts...)
}

func newChannel(role Role, peer Peer, opts ...Option) *Channel {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	c := &Channel{
		role:          role,
		events:        NewEventSet(cfg.namespace),
		policy:        cfg.policy,
		legacyAliases: cfg.legacyAliases,
		peer:          peer,
		transport:     cfg.transport,
		bus:           NewEventBus(),
	}
	c.logger = channelLogger(cfg.logger, role, c.events.Namespace())
	if c.transport == nil {
		c.transport = peerTransport{peer: peer}
	}
	c.slots = c.defaultSlots()

	if cfg.hasQuery {
		data, err := ParseQuery(cfg.query)
		if err != nil {
			c.logger.Warn().Err(err).Str("query", cfg.query).Msg("init data seeded from a partially parsed query")
		}
		c.initData = data
	}

	c.bus.setInvoker(func(event string, l *Listener, payload json.RawMessage) {
		safeCall(c.logger, event, func() { l.fn(payload) })
	})

	mws := append([]Middleware{RecoverMiddleware(c.logger)}, cfg.middlewares...)
	c.dispatch = Chain(mws...)(c.route)

	if cfg.source != nil {
		c.removeListener = cfg.source.AddListener(c.HandleMessage)
	}

	return c
}

func (c *Channel) defaultSlots() slots {
	return slots{
		init:  func() { c.logger.Info().Msg("init") },
		ready: func() { c.logger.Info().Msg("ready") },
		chatData: func(payload json.RawMessage) {
			c.logger.Info().RawJSON("payload", nonEmptyJSON(payload)).Msg("chat data")
		},
		shareData: func(payload json.RawMessage) {
			c.logger.Info().RawJSON("payload", nonEmptyJSON(payload)).Msg("share data")
		},
		close:    func() { c.logger.Info().Msg("close") },
		initData: func(json.RawMessage) {},
	}
}

func (c *Channel) Role() Role { return c.role }

func (c *Channel) IsWidget() bool { return c.role == RoleWidget }

// Events returns the event vocabulary the channel speaks.
func (c *Channel) Events() EventSet { return c.events }

// InitData returns a copy of the stored init data snapshot, or nil when none
// has been seeded or received.
func (c *Channel) InitData() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.initData)
}

// =========================
// Inbound
// =========================

// HandleMessage parses a raw inbound message and routes it. Parse failures
// are logged and dropped; the channel stays usable.
func (c *Channel) HandleMessage(raw any) {
	if c.closed.Load() {
		return
	}

	env, err := DecodeEnvelope(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("raw", rawForLog(raw)).Msg("failed to parse inbound message")
		return
	}

	if err := c.dispatch(env); err != nil {
		c.logger.Warn().Err(err).Str("event", env.Event).Msg("dispatch failed")
	}
}

func (c *Channel) route(env Envelope) error {
	kind, legacy := c.events.Resolve(env.Event)
	if kind != KindUnknown {
		c.invokeSlot(kind, env.Payload)
		if legacy {
			return nil
		}
	}
	c.bus.Emit(env.Event, env.Payload)
	return nil
}

func (c *Channel) invokeSlot(kind Kind, payload json.RawMessage) {
	c.mu.RLock()
	s := c.slots
	c.mu.RUnlock()

	safeCall(c.logger, kind.String(), func() {
		switch kind {
		case KindInit:
			s.init()
		case KindReady:
			s.ready()
		case KindChatData:
			s.chatData(payload)
		case KindShareData:
			s.shareData(payload)
		case KindClose:
			s.close()
		case KindInitData:
			s.initData(payload)
		}
	})
}

// =========================
// Senders
// =========================

func (c *Channel) SendInit() error {
	return c.sendKind("SendInit", KindInit, nil)
}

func (c *Channel) SendReady() error {
	return c.sendKind("SendReady", KindReady, nil)
}

func (c *Channel) SendToChat(payload any) error {
	return c.sendKind("SendToChat", KindChatData, payload)
}

func (c *Channel) SendToShare(payload any) error {
	return c.sendKind("SendToShare", KindShareData, payload)
}

func (c *Channel) SendClose() error {
	return c.sendKind("SendClose", KindClose, nil)
}

// SendInitData pushes init data to the frame. Parent only.
func (c *Channel) SendInitData(payload any) error {
	return c.sendKind("SendInitData", KindInitData, payload)
}

// SendEvent posts an arbitrary event under the given name only, with no
// legacy alias. Widget only.
func (c *Channel) SendEvent(event string, payload any) error {
	const op = "SendEvent"
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if err := c.checkRole(op, RoleWidget); err != nil {
		return err
	}
	if event == "" {
		c.logger.Warn().Str("op", op).Msg("event name is required")
		return errors.Wrap(ErrInvalidEnvelope, "missing event")
	}

	env, err := newEnvelope(event, payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("cannot encode payload")
		return err
	}
	return c.post(env)
}

func (c *Channel) sendKind(op string, kind Kind, payload any) error {
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if err := c.checkRole(op, kind.Sender()); err != nil {
		return err
	}

	current := c.events.Current(kind)
	env, err := newEnvelope(current, payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("cannot encode payload")
		return err
	}
	if err := c.post(env); err != nil {
		return err
	}
	if !c.legacyAliases {
		return nil
	}

	legacy := env
	legacy.Event = c.events.Legacy(kind)
	legacy.Warning = deprecationWarning(legacy.Event, current)
	return c.post(legacy)
}

func (c *Channel) post(env Envelope) error {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()

	if err := t.Send(env); err != nil {
		terr := &TransportError{Event: env.Event, Err: err}
		c.logger.Warn().Err(err).Str("event", env.Event).Msg("transport failed")
		return terr
	}
	return nil
}

func (c *Channel) checkRole(op string, want Role) error {
	if c.role == want {
		return nil
	}
	err := &RoleError{Op: op, Want: want}
	c.logger.Warn().Str("op", op).Msg(err.Error())
	return err
}

func (c *Channel) checkOpen(op string) error {
	if !c.closed.Load() {
		return nil
	}
	c.logger.Warn().Str("op", op).Msg("channel is closed")
	return ErrChannelClosed
}

// =========================
// Fixed slots
// =========================

func (c *Channel) OnInit(cb func()) error {
	if err := c.checkRole("OnInit", KindInit.Receiver()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb == nil {
		cb = c.defaultSlots().init
	}
	c.slots.init = cb
	return nil
}

func (c *Channel) OnReady(cb func()) error {
	if err := c.checkRole("OnReady", KindReady.Receiver()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb == nil {
		cb = c.defaultSlots().ready
	}
	c.slots.ready = cb
	return nil
}

func (c *Channel) OnChatData(cb func(payload json.RawMessage)) error {
	if err := c.checkRole("OnChatData", KindChatData.Receiver()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb == nil {
		cb = c.defaultSlots().chatData
	}
	c.slots.chatData = cb
	return nil
}

func (c *Channel) OnShareData(cb func(payload json.RawMessage)) error {
	if err := c.checkRole("OnShareData", KindShareData.Receiver()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb == nil {
		cb = c.defaultSlots().shareData
	}
	c.slots.shareData = cb
	return nil
}

func (c *Channel) OnClose(cb func()) error {
	if err := c.checkRole("OnClose", KindClose.Receiver()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb == nil {
		cb = c.defaultSlots().close
	}
	c.slots.close = cb
	return nil
}

// OnInitData subscribes to init data pushed by the parent. Each delivery is
// folded into the stored snapshot before cb sees it. When a snapshot already
// exists cb is called with it right away unless bypass is set.
func (c *Channel) OnInitData(cb func(data map[string]any), bypass bool) error {
	if err := c.checkRole("OnInitData", KindInitData.Receiver()); err != nil {
		return err
	}
	if cb == nil {
		cb = func(map[string]any) {}
	}

	wrapped := func(payload json.RawMessage) {
		snapshot, ok := c.applyInitData(payload)
		if !ok {
			return
		}
		cb(snapshot)
	}

	c.mu.Lock()
	c.slots.initData = wrapped
	existing := copyMap(c.initData)
	c.mu.Unlock()

	if existing != nil && !bypass {
		safeCall(c.logger, c.events.Current(KindInitData), func() { cb(existing) })
	}
	return nil
}

func (c *Channel) applyInitData(payload json.RawMessage) (map[string]any, bool) {
	var incoming map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.logger.Warn().Err(err).RawJSON("payload", nonEmptyJSON(payload)).Msg("init data is not an object")
			return nil, false
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.policy == InitDataReplace && incoming != nil:
		c.initData = incoming
	case c.initData == nil:
		c.initData = make(map[string]any, len(incoming))
		fallthrough
	default:
		for k, v := range incoming {
			c.initData[k] = v
		}
	}
	return copyMap(c.initData), true
}

// =========================
// Dynamic events
// =========================

// On subscribes l to event. Adding the same listener twice is a no-op.
func (c *Channel) On(event string, l *Listener) bool {
	return c.bus.On(event, l)
}

// Off removes l from event.
func (c *Channel) Off(event string, l *Listener) bool {
	return c.bus.Off(event, l)
}

// Subscribe is a shorthand for On with a fresh Listener. The returned func
// unsubscribes it.
func (c *Channel) Subscribe(event string, fn func(payload json.RawMessage)) func() {
	l := Listen(fn)
	c.bus.On(event, l)
	return func() { c.bus.Off(event, l) }
}

// Emit invokes the local subscribers of event. Nothing is sent to the peer.
func (c *Channel) Emit(event string, payload any) error {
	env, err := newEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.bus.Emit(event, env.Payload)
	return nil
}

// =========================
// Transport
// =========================

// SetTransport swaps the delivery strategy. A nil transport restores delivery
// through the peer.
func (c *Channel) SetTransport(t Transport) {
	if t == nil {
		t = peerTransport{peer: c.peer}
	}
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
}

// OverrideTransport installs fn as the delivery step. A widget then replays
// the init handshake so the new peer sees a fresh startup sequence.
func (c *Channel) OverrideTransport(fn SenderFunc) error {
	if fn == nil {
		return errors.Wrap(ErrTransportFailed, "nil sender")
	}
	c.SetTransport(fn)
	if c.role != RoleWidget {
		return nil
	}
	return c.SendInit()
}

// =========================
// Teardown
// =========================

// Close removes the inbound listener and releases any registry handle. Sends
// after Close fail with ErrChannelClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		remove := c.removeListener
		c.removeListener = nil
		hooks := append([]func(*Channel){}, c.closeHooks...)
		c.mu.Unlock()

		if remove != nil {
			remove()
		}
		for _, hook := range hooks {
			hook(c)
		}
	})
	return nil
}

func (c *Channel) Closed() bool { return c.closed.Load() }

func (c *Channel) onClose(hook func(*Channel)) {
	c.mu.Lock()
	c.closeHooks = append(c.closeHooks, hook)
	c.mu.Unlock()
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nonEmptyJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

func rawForLog(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "<unprintable>"
		}
		return string(b)
	}
}
